// Package config loads verification schemas and policies. Every encoding is
// first decoded into a generic mapping and then funneled through the same
// mapping decoder, so JSON, YAML and TOML documents cannot differ in meaning.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format is a structured-data encoding
type Format string

const (
	FormatAuto Format = ""
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath guesses the encoding from a file extension
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	}
	return FormatAuto
}

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatAuto, FormatJSON, FormatYAML, FormatTOML:
		return f, nil
	case "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unknown format %q (supported: json, yaml, toml)", s)
}

// document is a decoded configuration document plus the key order of its
// "fields" mapping, when the encoding preserves it
type document struct {
	values     map[string]any
	fieldOrder []string
}

// decodeDocument decodes data into a generic mapping
func decodeDocument(data []byte, format Format) (*document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty document")
	}

	if format == FormatAuto {
		format = FormatYAML
		if trimmed[0] == '{' {
			format = FormatJSON
		}
	}

	switch format {
	case FormatJSON:
		var values map[string]any
		if err := json.Unmarshal(trimmed, &values); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return &document{values: values, fieldOrder: jsonKeyOrder(trimmed, "fields")}, nil

	case FormatYAML:
		var root yaml.Node
		if err := yaml.Unmarshal(trimmed, &root); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		var values map[string]any
		if err := root.Decode(&values); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return &document{values: values, fieldOrder: yamlKeyOrder(&root, "fields")}, nil

	case FormatTOML:
		var values map[string]any
		if err := toml.Unmarshal(trimmed, &values); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		// TOML tables carry no usable key order; fields fall back to "order" then name
		return &document{values: values}, nil
	}

	return nil, fmt.Errorf("unknown format %q", format)
}

// jsonKeyOrder returns the key order of the top-level object member named key
func jsonKeyOrder(data []byte, key string) []string {
	dec := json.NewDecoder(bytes.NewReader(data))
	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil
		}
		if name, _ := tok.(string); name != key {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
			continue
		}

		if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
			return nil
		}
		var order []string
		for dec.More() {
			tok, err := dec.Token()
			if err != nil {
				return nil
			}
			name, _ := tok.(string)
			order = append(order, name)
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil
			}
		}
		return order
	}
	return nil
}

// yamlKeyOrder returns the key order of the top-level mapping entry named key
func yamlKeyOrder(root *yaml.Node, key string) []string {
	node := root
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value != key {
			continue
		}
		value := node.Content[i+1]
		if value.Kind != yaml.MappingNode {
			return nil
		}
		order := make([]string, 0, len(value.Content)/2)
		for j := 0; j+1 < len(value.Content); j += 2 {
			order = append(order, value.Content[j].Value)
		}
		return order
	}
	return nil
}

// toMap converts an arbitrary decoded value into a generic mapping
func toMap(v any) (map[string]any, error) {
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case nil:
		return nil, fmt.Errorf("document is empty")
	}

	// Other shapes (typed maps, structs) go through a JSON round trip
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("document must be a mapping: %w", err)
	}
	return m, nil
}
