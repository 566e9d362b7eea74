package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// LoadSchemaFile reads a schema from disk, picking the encoding by extension
func LoadSchemaFile(path string) (*model.Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Wrap(model.KindSchema, "", "read schema file", err)
	}
	return ParseSchema(data, FormatFromPath(path))
}

// ParseSchema decodes and validates an encoded schema
func ParseSchema(data []byte, format Format) (*model.Schema, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, model.Wrap(model.KindSchema, "", "malformed schema document", err)
	}
	return schemaFromDocument(doc)
}

// SchemaFromValue accepts a schema as an already-decoded mapping, encoded
// bytes, or a model.Schema
func SchemaFromValue(v any) (*model.Schema, error) {
	switch s := v.(type) {
	case nil:
		return nil, model.SchemaError("", "schema is required")
	case *model.Schema:
		if s == nil {
			return nil, model.SchemaError("", "schema is required")
		}
		cp := *s
		return &cp, checkSchema(&cp)
	case model.Schema:
		return &s, checkSchema(&s)
	case []byte:
		return ParseSchema(s, FormatAuto)
	case json.RawMessage:
		if isNullJSON(s) {
			return nil, model.SchemaError("", "schema is required")
		}
		return ParseSchema(s, FormatAuto)
	case string:
		return ParseSchema([]byte(s), FormatAuto)
	}

	values, err := toMap(v)
	if err != nil {
		return nil, model.Wrap(model.KindSchema, "", "malformed schema document", err)
	}
	return schemaFromDocument(&document{values: values})
}

func schemaFromDocument(doc *document) (*model.Schema, error) {
	if err := normalizeFields(doc); err != nil {
		return nil, err
	}

	schema := model.Schema{MissingFields: model.MissingSkip}
	if err := decodeInto(doc.values, &schema); err != nil {
		return nil, model.Wrap(model.KindSchema, "", "invalid schema", err)
	}
	if err := checkSchema(&schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

// normalizeFields rewrites a "fields" mapping (name -> spec) into the list
// form. Order follows the document when the encoding preserves it, otherwise
// the explicit "order" value and then the name.
func normalizeFields(doc *document) error {
	raw, ok := doc.values["fields"]
	if !ok {
		return nil
	}
	mapping, ok := raw.(map[string]any)
	if !ok {
		return nil
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}

	position := make(map[string]int, len(doc.fieldOrder))
	for i, name := range doc.fieldOrder {
		position[name] = i
	}
	sort.SliceStable(names, func(i, j int) bool {
		pi, iok := position[names[i]]
		pj, jok := position[names[j]]
		if iok && jok {
			return pi < pj
		}
		if iok != jok {
			return iok
		}
		oi, oj := orderOf(mapping[names[i]]), orderOf(mapping[names[j]])
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})

	list := make([]any, 0, len(names))
	for _, name := range names {
		entry := map[string]any{}
		switch spec := mapping[name].(type) {
		case nil:
		case map[string]any:
			for k, v := range spec {
				entry[k] = v
			}
		default:
			return model.SchemaError("fields."+name, "field declaration must be a mapping")
		}
		if declared, ok := entry["name"]; ok && fmt.Sprint(declared) != name {
			return model.SchemaError("fields."+name, "declared name %q does not match key", declared)
		}
		entry["name"] = name
		list = append(list, entry)
	}
	doc.values["fields"] = list
	return nil
}

func orderOf(spec any) float64 {
	m, ok := spec.(map[string]any)
	if !ok {
		return 0
	}
	switch v := m["order"].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return 0
}

// checkSchema runs struct validation and cross-field consistency checks
func checkSchema(schema *model.Schema) error {
	if schema.MissingFields == "" {
		schema.MissingFields = model.MissingSkip
	}
	if err := validate.Struct(schema); err != nil {
		field, msg := describeValidation(err)
		return model.SchemaError(field, "%s", msg)
	}

	seen := make(map[string]bool, len(schema.Fields))
	for i, f := range schema.Fields {
		if seen[f.Name] {
			return model.SchemaError(fmt.Sprintf("fields[%d].name", i), "duplicate field %q", f.Name)
		}
		seen[f.Name] = true

		if f.SourceOrDefault() == model.SourceText && (f.Key != "" || f.Path != "") {
			return model.SchemaError(fmt.Sprintf("fields[%d]", i), "text rule takes no key or path")
		}
	}
	return nil
}

func isNullJSON(data []byte) bool {
	if len(bytes.TrimSpace(data)) == 0 {
		return true
	}
	var v any
	return json.Unmarshal(data, &v) == nil && v == nil
}
