package model

// Schema declares which claim fields exist, how each is extracted from a
// claims payload, and which validators apply to it
type Schema struct {
	Version       string             `json:"version,omitempty" yaml:"version,omitempty"`
	Strict        bool               `json:"strict" yaml:"strict"`
	MissingFields MissingFieldPolicy `json:"missing_fields,omitempty" yaml:"missing_fields,omitempty" validate:"omitempty,oneof=skip empty"`
	Fields        []FieldSpec        `json:"fields" yaml:"fields" validate:"required,min=1,dive"`
}

// FieldSpec is the declaration of a single claim field
type FieldSpec struct {
	Name       string          `json:"name" yaml:"name" validate:"required"`
	Source     SourceKind      `json:"source,omitempty" yaml:"source,omitempty" validate:"omitempty,oneof=key path text"`
	Key        string          `json:"key,omitempty" yaml:"key,omitempty"`
	Path       string          `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Source path"`
	Split      SplitMode       `json:"split,omitempty" yaml:"split,omitempty" validate:"omitempty,oneof=none sentences lines"`
	Required   bool            `json:"required,omitempty" yaml:"required,omitempty"`
	Validators []ValidatorKind `json:"validators,omitempty" yaml:"validators,omitempty" validate:"dive,oneof=semantic entailment rule"`
	Order      int             `json:"order,omitempty" yaml:"order,omitempty"`
}

// SourceKind selects the extraction rule for a field
type SourceKind string

const (
	SourceKey  SourceKind = "key"  // direct lookup of a top-level key
	SourcePath SourceKind = "path" // dotted path into nested structure
	SourceText SourceKind = "text" // the whole payload as text
)

// SplitMode optionally splits one extracted value into several claims
type SplitMode string

const (
	SplitNone      SplitMode = "none"
	SplitSentences SplitMode = "sentences"
	SplitLines     SplitMode = "lines"
)

// MissingFieldPolicy decides what happens to a field absent from the payload
type MissingFieldPolicy string

const (
	MissingSkip  MissingFieldPolicy = "skip"
	MissingEmpty MissingFieldPolicy = "empty"
)

// LookupKey returns the payload key a key-rule field reads
func (f FieldSpec) LookupKey() string {
	if f.Key != "" {
		return f.Key
	}
	return f.Name
}

// SourceOrDefault returns the extraction rule, defaulting to key lookup
func (f FieldSpec) SourceOrDefault() SourceKind {
	if f.Source == "" {
		return SourceKey
	}
	return f.Source
}
