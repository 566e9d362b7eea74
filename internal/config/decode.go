package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeInto decodes a generic mapping onto out. Keys present in the mapping
// replace the corresponding values in out; absent or null keys keep them.
func decodeInto(values map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			numberToDurationHook,
			mapstructure.StringToTimeDurationHookFunc(),
		),
	})
	if err != nil {
		return fmt.Errorf("create decoder: %w", err)
	}
	return dec.Decode(values)
}

// numberToDurationHook reads bare numbers as seconds
func numberToDurationHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(time.Duration(0)) {
		return data, nil
	}
	switch v := data.(type) {
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int:
		return time.Duration(v) * time.Second, nil
	case int64:
		return time.Duration(v) * time.Second, nil
	}
	return data, nil
}

// describeValidation turns the first validator failure into a field path and
// a readable message
func describeValidation(err error) (string, string) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "", err.Error()
	}

	fe := verrs[0]
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}

	var msg string
	switch fe.Tag() {
	case "required", "required_if":
		msg = "is required"
	case "oneof":
		msg = fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		if fe.Kind() == reflect.Slice || fe.Kind() == reflect.Map {
			msg = fmt.Sprintf("must contain at least %s entries", fe.Param())
		} else {
			msg = fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
		}
	case "max":
		msg = fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "gt":
		msg = fmt.Sprintf("must be > %s, got %v", fe.Param(), fe.Value())
	case "ltfield":
		msg = fmt.Sprintf("must be less than %s", fe.Param())
	default:
		msg = fmt.Sprintf("failed %q constraint", fe.Tag())
	}
	return field, msg
}
