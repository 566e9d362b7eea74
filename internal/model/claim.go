package model

import "strings"

// Claim is a named assertion extracted from a claims payload
type Claim struct {
	Field string `json:"field"` // Schema field name, with an [i] suffix for split fields
	Text  string `json:"text"`  // The asserted text, possibly empty under missing_fields=empty
}

// Verdict is the outcome of verifying one claim
type Verdict string

const (
	VerdictSupported    Verdict = "supported"
	VerdictRefuted      Verdict = "refuted"
	VerdictInsufficient Verdict = "insufficient_evidence"
)

// Valid reports whether v is one of the three known verdicts
func (v Verdict) Valid() bool {
	switch v {
	case VerdictSupported, VerdictRefuted, VerdictInsufficient:
		return true
	}
	return false
}

// BaseField returns the schema field name without the [i] suffix that
// split fields carry
func (c Claim) BaseField() string {
	if !strings.HasSuffix(c.Field, "]") {
		return c.Field
	}
	open := strings.LastIndexByte(c.Field, '[')
	if open <= 0 || open+2 == len(c.Field) {
		return c.Field
	}
	for _, r := range c.Field[open+1 : len(c.Field)-1] {
		if r < '0' || r > '9' {
			return c.Field
		}
	}
	return c.Field[:open]
}
