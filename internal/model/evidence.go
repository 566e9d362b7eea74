package model

// EvidenceSpan is a snippet of the source text with a relevance score in [0,1]
type EvidenceSpan struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`

	// Offset is the byte offset of the span in the normalized source.
	// Used only to break score ties deterministically.
	Offset int `json:"-"`
}

// ValidatorKind names one of the closed set of validation strategies
type ValidatorKind string

const (
	ValidatorSemantic   ValidatorKind = "semantic"
	ValidatorEntailment ValidatorKind = "entailment"
	ValidatorRule       ValidatorKind = "rule"
)

// ValidatorKinds lists every kind in default precedence order
var ValidatorKinds = []ValidatorKind{ValidatorRule, ValidatorEntailment, ValidatorSemantic}

// Valid reports whether k is a known validator kind
func (k ValidatorKind) Valid() bool {
	switch k {
	case ValidatorSemantic, ValidatorEntailment, ValidatorRule:
		return true
	}
	return false
}

// Vote is one validator's opinion about a claim
type Vote struct {
	Validator   string        `json:"validator"`
	Kind        ValidatorKind `json:"kind"`
	Verdict     Verdict       `json:"verdict"`
	Confidence  float64       `json:"confidence"`
	Explanation string        `json:"explanation,omitempty"`
}
