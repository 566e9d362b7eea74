package model

// Report is the aggregated result of one verification run
type Report struct {
	OverallScore      float64            `json:"overall_score"`
	TotalClaims       int                `json:"total_claims"`
	SupportedCount    int                `json:"supported_count"`
	RefutedCount      int                `json:"refuted_count"`
	InsufficientCount int                `json:"insufficient_count"`
	SupportRate       float64            `json:"support_rate"`
	Dispositions      []ClaimDisposition `json:"dispositions"`

	// Partial is set when the run hit its deadline and unfinished claims were
	// reported as insufficient_evidence
	Partial bool `json:"partial,omitempty"`
}

// ClaimDisposition is the full verification outcome for one claim
type ClaimDisposition struct {
	Field         string         `json:"field"`
	ClaimText     string         `json:"claim_text"`
	Verdict       Verdict        `json:"verdict"`
	EvidenceCount int            `json:"evidence_count"`
	Validator     string         `json:"validator"`
	Explanation   string         `json:"explanation,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	QualityScore  *float64       `json:"quality_score,omitempty"`
	QualityIssues []QualityIssue `json:"quality_issues"`
	Evidence      []EvidenceSpan `json:"evidence"`
}

// QualityIssue is a single finding from the quality analyzer
type QualityIssue struct {
	Type       IssueType `json:"type"`
	Severity   Severity  `json:"severity"`
	Detail     string    `json:"detail"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// IssueType classifies a quality issue
type IssueType string

const (
	IssueOverSpecific          IssueType = "over_specific"
	IssueVagueLanguage         IssueType = "vague_language"
	IssueInternalInconsistency IssueType = "internal_inconsistency"
	IssueTemporalDrift         IssueType = "temporal_drift"
	IssueEmptyClaim            IssueType = "empty_claim"
	IssueExcessiveLength       IssueType = "excessive_length"
)

// IssueTypes lists all quality checks in the order they run
var IssueTypes = []IssueType{
	IssueEmptyClaim,
	IssueOverSpecific,
	IssueVagueLanguage,
	IssueInternalInconsistency,
	IssueTemporalDrift,
	IssueExcessiveLength,
}

// Severity indicates how much a quality issue costs
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Float returns a pointer to f, for optional score fields
func Float(f float64) *float64 {
	return &f
}

// DefaultSeverity is the built-in severity of each issue type
func (t IssueType) DefaultSeverity() Severity {
	switch t {
	case IssueEmptyClaim, IssueInternalInconsistency:
		return SeverityError
	case IssueOverSpecific, IssueTemporalDrift:
		return SeverityWarning
	}
	return SeverityInfo
}
