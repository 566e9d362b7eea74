package model

import "time"

// Policy holds the thresholds and knobs for one verification run
type Policy struct {
	Version           string          `json:"version,omitempty" yaml:"version,omitempty"`
	Retrieval         RetrievalPolicy `json:"retrieval" yaml:"retrieval"`
	Validators        ValidatorPolicy `json:"validators" yaml:"validators"`
	DefaultValidators []ValidatorKind `json:"default_validators" yaml:"default_validators" validate:"dive,oneof=semantic entailment rule"`
	Combiner          CombinerPolicy  `json:"combiner" yaml:"combiner"`
	Quality           QualityPolicy   `json:"quality" yaml:"quality"`
	Backend           BackendPolicy   `json:"backend" yaml:"backend"`
	Run               RunPolicy       `json:"run" yaml:"run"`
}

// RetrievalPolicy configures the evidence retriever
type RetrievalPolicy struct {
	TopK               int     `json:"top_k" yaml:"top_k" validate:"min=1,max=50"`
	MinRelevance       float64 `json:"min_relevance" yaml:"min_relevance" validate:"min=0,max=1"`
	ChunkSize          int     `json:"chunk_size" yaml:"chunk_size" validate:"min=50"`
	ChunkOverlap       int     `json:"chunk_overlap" yaml:"chunk_overlap" validate:"min=0,ltfield=ChunkSize"`
	DedupThreshold     float64 `json:"dedup_threshold" yaml:"dedup_threshold" validate:"gt=0,max=1"`
	LexicalWeight      float64 `json:"lexical_weight" yaml:"lexical_weight" validate:"min=0,max=1"`
	SemanticWeight     float64 `json:"semantic_weight" yaml:"semantic_weight" validate:"min=0,max=1"`
	SemanticCandidates int     `json:"semantic_candidates" yaml:"semantic_candidates" validate:"min=0"`
	StripHTML          bool    `json:"strip_html" yaml:"strip_html"`
}

// ValidatorPolicy holds per-validator settings
type ValidatorPolicy struct {
	Semantic   SemanticPolicy   `json:"semantic" yaml:"semantic"`
	Entailment EntailmentPolicy `json:"entailment" yaml:"entailment"`
	Rule       RulePolicy       `json:"rule" yaml:"rule"`
}

// SemanticPolicy configures the similarity validator
type SemanticPolicy struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	SupportThreshold float64 `json:"support_threshold" yaml:"support_threshold" validate:"gt=0,max=1"`
	Required         bool    `json:"required" yaml:"required"`
}

// EntailmentPolicy configures the entailment validator
type EntailmentPolicy struct {
	Enabled                bool    `json:"enabled" yaml:"enabled"`
	SupportThreshold       float64 `json:"support_threshold" yaml:"support_threshold" validate:"gt=0,max=1"`
	ContradictionThreshold float64 `json:"contradiction_threshold" yaml:"contradiction_threshold" validate:"gt=0,max=1"`
	Required               bool    `json:"required" yaml:"required"`
}

// RulePolicy configures the rule validator
type RulePolicy struct {
	Enabled          bool       `json:"enabled" yaml:"enabled"`
	SupportThreshold float64    `json:"support_threshold" yaml:"support_threshold" validate:"gt=0,max=1"`
	Builtin          []RuleKind `json:"builtin" yaml:"builtin" validate:"dive,oneof=number date"`
	Rules            []RuleSpec `json:"rules,omitempty" yaml:"rules,omitempty" validate:"dive"`
	Required         bool       `json:"required" yaml:"required"`
}

// RuleKind names a family of structured-content rules
type RuleKind string

const (
	RuleNumber  RuleKind = "number"
	RuleDate    RuleKind = "date"
	RuleEnum    RuleKind = "enum"
	RulePattern RuleKind = "pattern"
)

// RuleSpec is a user-declared rule
type RuleSpec struct {
	Name    string   `json:"name" yaml:"name" validate:"required"`
	Kind    RuleKind `json:"kind" yaml:"kind" validate:"required,oneof=enum pattern"`
	Values  []string `json:"values,omitempty" yaml:"values,omitempty" validate:"required_if=Kind enum"`
	Pattern string   `json:"pattern,omitempty" yaml:"pattern,omitempty" validate:"required_if=Kind pattern"`
	Fields  []string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// CombinerPolicy configures verdict resolution
type CombinerPolicy struct {
	Precedence             []ValidatorKind `json:"precedence" yaml:"precedence" validate:"dive,oneof=semantic entailment rule"`
	ContradictionThreshold float64         `json:"contradiction_threshold" yaml:"contradiction_threshold" validate:"gt=0,max=1"`
}

// QualityPolicy configures the quality analyzer
type QualityPolicy struct {
	Checks    map[IssueType]CheckPolicy `json:"checks" yaml:"checks" validate:"dive"`
	Penalties PenaltyPolicy             `json:"penalties" yaml:"penalties"`
	MaxWords  int                       `json:"max_words" yaml:"max_words" validate:"min=1"`
}

// CheckPolicy toggles a quality check and overrides its severity.
// Checks absent from the policy run with their built-in severity.
type CheckPolicy struct {
	Disabled bool     `json:"disabled,omitempty" yaml:"disabled,omitempty"`
	Severity Severity `json:"severity,omitempty" yaml:"severity,omitempty" validate:"omitempty,oneof=info warning error"`
}

// PenaltyPolicy maps severities to quality score deductions
type PenaltyPolicy struct {
	Info    float64 `json:"info" yaml:"info" validate:"min=0,max=1"`
	Warning float64 `json:"warning" yaml:"warning" validate:"min=0,max=1"`
	Error   float64 `json:"error" yaml:"error" validate:"min=0,max=1"`
}

// BackendPolicy sets resilience limits for verification backend calls
type BackendPolicy struct {
	Required          bool          `json:"required" yaml:"required"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout" validate:"min=0"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries" validate:"min=0,max=10"`
	BaseBackoff       time.Duration `json:"base_backoff" yaml:"base_backoff" validate:"min=0"`
	MaxBackoff        time.Duration `json:"max_backoff" yaml:"max_backoff" validate:"min=0"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second" validate:"min=0"`
	Burst             int           `json:"burst" yaml:"burst" validate:"min=0"`
	MaxConcurrency    int           `json:"max_concurrency" yaml:"max_concurrency" validate:"min=1"`
	CacheTTL          time.Duration `json:"cache_ttl" yaml:"cache_ttl" validate:"min=0"`
}

// RunPolicy configures the per-claim worker pool and the overall deadline
type RunPolicy struct {
	Workers   int             `json:"workers" yaml:"workers" validate:"min=0"`
	Timeout   time.Duration   `json:"timeout" yaml:"timeout" validate:"min=0"`
	OnTimeout TimeoutBehavior `json:"on_timeout" yaml:"on_timeout" validate:"oneof=partial fail"`
}

// TimeoutBehavior decides what a run returns when its deadline expires
type TimeoutBehavior string

const (
	OnTimeoutPartial TimeoutBehavior = "partial"
	OnTimeoutFail    TimeoutBehavior = "fail"
)

// DefaultPolicy returns the policy every loaded policy is merged onto
func DefaultPolicy() Policy {
	return Policy{
		Version: "1",
		Retrieval: RetrievalPolicy{
			TopK:               3,
			MinRelevance:       0.3,
			ChunkSize:          1000,
			ChunkOverlap:       200,
			DedupThreshold:     0.85,
			LexicalWeight:      0.5,
			SemanticWeight:     0.5,
			SemanticCandidates: 24,
		},
		Validators: ValidatorPolicy{
			Semantic: SemanticPolicy{
				Enabled:          true,
				SupportThreshold: 0.6,
			},
			Entailment: EntailmentPolicy{
				Enabled:                true,
				SupportThreshold:       0.6,
				ContradictionThreshold: 0.7,
			},
			Rule: RulePolicy{
				Enabled:          true,
				SupportThreshold: 0.5,
				Builtin:          []RuleKind{RuleNumber, RuleDate},
			},
		},
		DefaultValidators: []ValidatorKind{ValidatorSemantic, ValidatorEntailment, ValidatorRule},
		Combiner: CombinerPolicy{
			Precedence:             []ValidatorKind{ValidatorRule, ValidatorEntailment, ValidatorSemantic},
			ContradictionThreshold: 0.7,
		},
		Quality: QualityPolicy{
			Checks:    map[IssueType]CheckPolicy{},
			Penalties: PenaltyPolicy{Info: 0.05, Warning: 0.15, Error: 0.3},
			MaxWords:  60,
		},
		Backend: BackendPolicy{
			Timeout:           20 * time.Second,
			MaxRetries:        3,
			BaseBackoff:       200 * time.Millisecond,
			MaxBackoff:        5 * time.Second,
			RequestsPerSecond: 10,
			Burst:             5,
			MaxConcurrency:    4,
			CacheTTL:          time.Hour,
		},
		Run: RunPolicy{
			Timeout:   2 * time.Minute,
			OnTimeout: OnTimeoutPartial,
		},
	}
}

// ValidatorsFor returns the validators assigned to a field, falling back to
// the policy's default set
func (p *Policy) ValidatorsFor(field FieldSpec) []ValidatorKind {
	if len(field.Validators) > 0 {
		return field.Validators
	}
	return p.DefaultValidators
}

// Enabled reports whether a validator kind may run under this policy
func (p *Policy) Enabled(kind ValidatorKind) bool {
	switch kind {
	case ValidatorSemantic:
		return p.Validators.Semantic.Enabled
	case ValidatorEntailment:
		return p.Validators.Entailment.Enabled
	case ValidatorRule:
		return p.Validators.Rule.Enabled
	}
	return false
}

// Required reports whether a failure of the given validator aborts the run
func (p *Policy) Required(kind ValidatorKind) bool {
	switch kind {
	case ValidatorSemantic:
		return p.Validators.Semantic.Required
	case ValidatorEntailment:
		return p.Validators.Entailment.Required
	case ValidatorRule:
		return p.Validators.Rule.Required
	}
	return false
}

// SupportThreshold returns the minimum confidence for a supported vote of
// the given kind to decide the verdict
func (p *Policy) SupportThreshold(kind ValidatorKind) float64 {
	switch kind {
	case ValidatorSemantic:
		return p.Validators.Semantic.SupportThreshold
	case ValidatorEntailment:
		return p.Validators.Entailment.SupportThreshold
	case ValidatorRule:
		return p.Validators.Rule.SupportThreshold
	}
	return 1
}
