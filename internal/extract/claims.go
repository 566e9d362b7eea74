// Package extract turns a claims payload into an ordered list of claims
// according to a schema.
package extract

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/nlp"
)

// Extractor applies schema extraction rules to claims payloads
type Extractor struct {
	registry *Registry
}

// NewExtractor creates an extractor with the built-in rules
func NewExtractor() *Extractor {
	return &Extractor{registry: NewRegistry()}
}

var defaultExtractor = NewExtractor()

// Extract applies schema to payload using the built-in rules
func Extract(payload any, schema *model.Schema) ([]model.Claim, error) {
	return defaultExtractor.Extract(payload, schema)
}

// Extract returns one claim per present field (or per sentence/line of a
// split field) in schema order. Schema violations are SchemaErrors and no
// claims are returned with them.
func (e *Extractor) Extract(payload any, schema *model.Schema) ([]model.Claim, error) {
	if schema == nil || len(schema.Fields) == 0 {
		return nil, model.SchemaError("fields", "schema declares no fields")
	}

	data, err := normalizePayload(payload)
	if err != nil {
		return nil, model.Wrap(model.KindInput, "claims", "malformed claims payload", err)
	}

	rules := make([]Rule, len(schema.Fields))
	for i, field := range schema.Fields {
		rule, ok := e.registry.Find(field.SourceOrDefault())
		if !ok {
			return nil, model.SchemaError(field.Name, "unknown source %q", field.Source)
		}
		if field.SourceOrDefault() == model.SourcePath {
			if _, err := ParsePath(field.Path); err != nil {
				return nil, model.SchemaError(field.Name, "invalid path %q: %v", field.Path, err)
			}
		}
		rules[i] = rule
	}

	if schema.Strict {
		if err := checkUnknownKeys(data, schema, rules); err != nil {
			return nil, err
		}
	}

	claims := make([]model.Claim, 0, len(schema.Fields))
	for i, field := range schema.Fields {
		value, found, err := rules[i].Lookup(data, field)
		if err != nil {
			return nil, err
		}

		var texts []string
		if found {
			texts = split(Flatten(value), field.Split)
			found = len(texts) > 0 || field.Split == "" || field.Split == model.SplitNone
		}

		if !found {
			if schema.Strict && field.Required {
				return nil, model.SchemaError(field.Name, "required field %q missing from claims", field.Name)
			}
			if schema.MissingFields == model.MissingEmpty {
				claims = append(claims, model.Claim{Field: field.Name})
			}
			continue
		}

		if len(texts) == 1 && (field.Split == "" || field.Split == model.SplitNone) {
			claims = append(claims, model.Claim{Field: field.Name, Text: texts[0]})
			continue
		}
		for j, text := range texts {
			claims = append(claims, model.Claim{Field: fmt.Sprintf("%s[%d]", field.Name, j), Text: text})
		}
	}

	return claims, nil
}

// split divides a flattened value per the field's split mode
func split(text string, mode model.SplitMode) []string {
	switch mode {
	case model.SplitSentences:
		sentences := nlp.SplitSentences(text)
		out := make([]string, 0, len(sentences))
		for _, s := range sentences {
			if !hasWord(s.Text) {
				continue
			}
			out = append(out, s.Text)
		}
		return out
	case model.SplitLines:
		return nlp.SplitLines(text)
	}
	return []string{text}
}

// hasWord reports whether s holds a letter or digit, not just punctuation
func hasWord(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}

// checkUnknownKeys rejects top-level payload keys no field consumes. A
// text field consumes everything.
func checkUnknownKeys(data any, schema *model.Schema, rules []Rule) error {
	m, ok := asMap(data)
	if !ok {
		return nil
	}

	known := make(map[string]bool, len(schema.Fields))
	for i, field := range schema.Fields {
		if rules[i].Kind() == model.SourceText {
			return nil
		}
		if ref := rules[i].References(field); ref != "" {
			known[ref] = true
		}
	}

	var unknown []string
	for k := range m {
		if !known[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return model.SchemaError(unknown[0], "claims key %q is not declared in the strict schema", unknown[0])
}
