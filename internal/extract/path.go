package extract

import (
	"fmt"
	"strconv"
	"strings"
)

type segmentKind int

const (
	segKey    segmentKind = iota // a.b
	segIndex                     // a[0]
	segAll                       // a[*]
	segSelect                    // a[title=HPI]
)

type segment struct {
	kind  segmentKind
	key   string
	index int
	value string
}

// Path is a compiled extraction path such as "sections[title=HPI].text"
type Path struct {
	raw      string
	segments []segment
}

// ParsePath compiles a dotted path. Supported forms: a.b, a[0], a[*].b,
// a[title=HPI].text; a leading [0] addresses a top-level list.
func ParsePath(raw string) (*Path, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty path")
	}

	p := &Path{raw: raw}
	i := 0
	expectKey := true
	for i < len(raw) {
		switch raw[i] {
		case '.':
			if expectKey {
				return nil, fmt.Errorf("empty segment at offset %d", i)
			}
			expectKey = true
			i++
		case '[':
			end := strings.IndexByte(raw[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unclosed '[' at offset %d", i)
			}
			seg, err := parseBracket(raw[i+1 : i+end])
			if err != nil {
				return nil, err
			}
			if expectKey && len(p.segments) > 0 {
				return nil, fmt.Errorf("empty segment before '[' at offset %d", i)
			}
			p.segments = append(p.segments, seg)
			expectKey = false
			i += end + 1
		default:
			if !expectKey {
				return nil, fmt.Errorf("missing '.' before offset %d", i)
			}
			end := strings.IndexAny(raw[i:], ".[")
			if end < 0 {
				end = len(raw) - i
			}
			p.segments = append(p.segments, segment{kind: segKey, key: raw[i : i+end]})
			expectKey = false
			i += end
		}
	}
	if expectKey {
		return nil, fmt.Errorf("path ends with '.'")
	}
	return p, nil
}

func parseBracket(inner string) (segment, error) {
	inner = strings.TrimSpace(inner)
	switch {
	case inner == "":
		return segment{}, fmt.Errorf("empty brackets")
	case inner == "*":
		return segment{kind: segAll}, nil
	case strings.Contains(inner, "="):
		k, v, _ := strings.Cut(inner, "=")
		k = strings.TrimSpace(k)
		v = strings.Trim(strings.TrimSpace(v), `"'`)
		if k == "" {
			return segment{}, fmt.Errorf("selector %q has no key", inner)
		}
		return segment{kind: segSelect, key: k, value: v}, nil
	}

	idx, err := strconv.Atoi(inner)
	if err != nil || idx < 0 {
		return segment{}, fmt.Errorf("invalid index %q", inner)
	}
	return segment{kind: segIndex, index: idx}, nil
}

// String returns the path as written
func (p *Path) String() string {
	return p.raw
}

// Root returns the first key of the path, or "" when it starts with a bracket
func (p *Path) Root() string {
	if len(p.segments) == 0 || p.segments[0].kind != segKey {
		return ""
	}
	return p.segments[0].key
}

// Eval returns every non-null value the path reaches in v, in document order
func (p *Path) Eval(v any) []any {
	current := []any{v}
	for _, seg := range p.segments {
		var next []any
		for _, node := range current {
			next = append(next, seg.apply(node)...)
		}
		if len(next) == 0 {
			return nil
		}
		current = next
	}

	out := make([]any, 0, len(current))
	for _, node := range current {
		if node != nil {
			out = append(out, node)
		}
	}
	return out
}

func (s segment) apply(node any) []any {
	switch s.kind {
	case segKey:
		if m, ok := asMap(node); ok {
			if v, ok := m[s.key]; ok {
				return []any{v}
			}
		}
	case segIndex:
		if list, ok := node.([]any); ok && s.index < len(list) {
			return []any{list[s.index]}
		}
	case segAll:
		if list, ok := node.([]any); ok {
			return list
		}
	case segSelect:
		list, ok := node.([]any)
		if !ok {
			return nil
		}
		for _, item := range list {
			if m, ok := asMap(item); ok && Flatten(m[s.key]) == s.value {
				return []any{item}
			}
		}
	}
	return nil
}
