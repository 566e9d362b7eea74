package extract

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Flatten renders a payload value as claim text. Scalars are formatted,
// lists joined with ", " and mappings rendered as "k: v" pairs in key order.
func Flatten(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case json.Number:
		return x.String()
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := Flatten(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	}

	if m, ok := asMap(v); ok {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			if s := Flatten(m[k]); s != "" {
				parts = append(parts, k+": "+s)
			}
		}
		return strings.Join(parts, "; ")
	}

	return fmt.Sprint(v)
}

// asMap accepts both JSON-style and YAML-style decoded mappings
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[k] = val
		}
		return out, true
	}
	return nil, false
}

// normalizePayload turns the accepted payload forms into decoded values:
// a plain string becomes {"body": string}, encoded JSON is decoded, and
// other Go values go through a JSON round trip
func normalizePayload(payload any) (any, error) {
	switch p := payload.(type) {
	case nil:
		return map[string]any{}, nil
	case string:
		return map[string]any{"body": p}, nil
	case json.RawMessage:
		return decodeJSONPayload(p)
	case []byte:
		return decodeJSONPayload(p)
	case map[string]any, []any:
		return p, nil
	}
	if m, ok := asMap(payload); ok {
		return m, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode claims payload: %w", err)
	}
	return decodeJSONPayload(data)
}

func decodeJSONPayload(data []byte) (any, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal([]byte(trimmed), &v); err != nil {
		return nil, fmt.Errorf("decode claims payload: %w", err)
	}
	if s, ok := v.(string); ok {
		return map[string]any{"body": s}, nil
	}
	return v, nil
}
