package extract

import (
	"sort"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Rule reads the raw value of one schema field from a claims payload
type Rule interface {
	// Kind returns the source kind this rule handles
	Kind() model.SourceKind

	// Lookup returns the field's value and whether it was present
	Lookup(payload any, field model.FieldSpec) (any, bool, error)

	// References returns the top-level payload key the field consumes,
	// or "" when it does not consume a single key
	References(field model.FieldSpec) string
}

// Registry maps source kinds to extraction rules
type Registry struct {
	rules map[model.SourceKind]Rule
}

// NewRegistry creates a registry with the built-in key, path and text rules
func NewRegistry() *Registry {
	registry := &Registry{
		rules: make(map[model.SourceKind]Rule),
	}

	registry.Register(keyRule{})
	registry.Register(pathRule{})
	registry.Register(textRule{})

	return registry
}

// Register registers a rule, replacing any rule of the same kind
func (r *Registry) Register(rule Rule) {
	r.rules[rule.Kind()] = rule
}

// Find returns the rule for a source kind
func (r *Registry) Find(kind model.SourceKind) (Rule, bool) {
	rule, ok := r.rules[kind]
	return rule, ok
}

// keyRule looks up a top-level key
type keyRule struct{}

func (keyRule) Kind() model.SourceKind { return model.SourceKey }

func (keyRule) Lookup(payload any, field model.FieldSpec) (any, bool, error) {
	m, ok := asMap(payload)
	if !ok {
		return nil, false, nil
	}
	v, ok := m[field.LookupKey()]
	if !ok || v == nil {
		return nil, false, nil
	}
	return v, true, nil
}

func (keyRule) References(field model.FieldSpec) string {
	return field.LookupKey()
}

// pathRule walks a dotted path into nested structure
type pathRule struct{}

func (pathRule) Kind() model.SourceKind { return model.SourcePath }

func (pathRule) Lookup(payload any, field model.FieldSpec) (any, bool, error) {
	path, err := ParsePath(field.Path)
	if err != nil {
		return nil, false, model.SchemaError(field.Name, "invalid path %q: %v", field.Path, err)
	}

	matches := path.Eval(payload)
	switch len(matches) {
	case 0:
		return nil, false, nil
	case 1:
		return matches[0], true, nil
	}

	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		if s := Flatten(m); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " "), true, nil
}

func (pathRule) References(field model.FieldSpec) string {
	path, err := ParsePath(field.Path)
	if err != nil {
		return ""
	}
	return path.Root()
}

// textRule consumes the whole payload
type textRule struct{}

func (textRule) Kind() model.SourceKind { return model.SourceText }

func (textRule) Lookup(payload any, field model.FieldSpec) (any, bool, error) {
	m, ok := asMap(payload)
	if !ok {
		if payload == nil {
			return nil, false, nil
		}
		return payload, true, nil
	}
	if len(m) == 0 {
		return nil, false, nil
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		if s := Flatten(m[k]); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n"), true, nil
}

func (textRule) References(field model.FieldSpec) string {
	return ""
}
