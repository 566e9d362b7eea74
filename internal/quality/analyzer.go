// Package quality diagnoses problems in how a claim is written. Its score
// accompanies the verdict but never changes it.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/nlp"
)

var hedges = map[string]bool{
	"may": true, "might": true, "could": true, "possibly": true, "probably": true,
	"perhaps": true, "likely": true, "unlikely": true, "unclear": true, "somewhat": true,
	"several": true, "various": true, "many": true, "some": true, "often": true,
	"sometimes": true, "approximately": true, "roughly": true, "generally": true,
	"usually": true, "apparently": true, "seems": true, "seemingly": true, "suggests": true,
	"arguably": true, "reportedly": true,
}

// Source holds the facts about a source text the checks compare against.
// Build it once per run and share it across claims.
type Source struct {
	numbers map[string]bool
	dates   map[nlp.DateKind]map[string]bool
}

// NewSource indexes the numbers and dates stated in text
func NewSource(text string) *Source {
	s := &Source{numbers: map[string]bool{}, dates: map[nlp.DateKind]map[string]bool{}}
	for _, tok := range nlp.Tokens(text) {
		if isNumber(tok) {
			s.numbers[tok] = true
		}
	}
	for _, d := range nlp.Dates(text) {
		if s.dates[d.Kind] == nil {
			s.dates[d.Kind] = map[string]bool{}
		}
		s.dates[d.Kind][d.Value] = true
	}
	return s
}

// Analyzer runs the quality checks a policy enables
type Analyzer struct {
	policy model.QualityPolicy
}

// NewAnalyzer creates an analyzer
func NewAnalyzer(policy model.QualityPolicy) *Analyzer {
	return &Analyzer{policy: policy}
}

// Analyze returns the claim's quality score in [0,1] and the issues found
func (a *Analyzer) Analyze(claim model.Claim, source *Source) (float64, []model.QualityIssue) {
	if source == nil {
		source = NewSource("")
	}
	issues := []model.QualityIssue{}
	text := strings.TrimSpace(claim.Text)

	// 1. Empty claim
	if text == "" {
		issues = a.add(issues, model.IssueEmptyClaim, "claim text is empty", "remove the field or provide a value")
		return a.score(issues), issues
	}

	// 2. Over-specific numbers
	if precise := a.unstatedNumbers(text, source); len(precise) > 0 {
		issues = a.add(issues, model.IssueOverSpecific,
			fmt.Sprintf("precise values not found in source: %s", strings.Join(precise, ", ")),
			"round or remove values the source does not state")
	}

	// 3. Vague language
	if found := vagueTerms(text); len(found) > 0 {
		issues = a.add(issues, model.IssueVagueLanguage,
			fmt.Sprintf("hedging terms: %s", strings.Join(found, ", ")),
			"state the finding directly or drop the hedge")
	}

	// 4. Internal inconsistency
	if conflicts := inconsistencies(text); len(conflicts) > 0 {
		issues = a.add(issues, model.IssueInternalInconsistency,
			fmt.Sprintf("claim contradicts itself: %s", strings.Join(conflicts, "; ")),
			"split the claim or resolve the contradiction")
	}

	// 5. Temporal drift
	if drift := temporalDrift(text, source); len(drift) > 0 {
		issues = a.add(issues, model.IssueTemporalDrift,
			fmt.Sprintf("time references differ from source: %s", strings.Join(drift, "; ")),
			"use the time references the source states")
	}

	// 6. Excessive length
	if words := len(strings.Fields(text)); a.policy.MaxWords > 0 && words > a.policy.MaxWords {
		issues = a.add(issues, model.IssueExcessiveLength,
			fmt.Sprintf("claim has %d words (max %d)", words, a.policy.MaxWords),
			"split the claim into shorter statements")
	}

	return a.score(issues), issues
}

// add appends an issue unless its check is disabled, applying any severity override
func (a *Analyzer) add(issues []model.QualityIssue, typ model.IssueType, detail, suggestion string) []model.QualityIssue {
	severity := typ.DefaultSeverity()
	if check, ok := a.policy.Checks[typ]; ok {
		if check.Disabled {
			return issues
		}
		if check.Severity != "" {
			severity = check.Severity
		}
	}
	return append(issues, model.QualityIssue{Type: typ, Severity: severity, Detail: detail, Suggestion: suggestion})
}

// score subtracts the penalty of each issue from 1, floored at 0
func (a *Analyzer) score(issues []model.QualityIssue) float64 {
	total := 0.0
	for _, issue := range issues {
		switch issue.Severity {
		case model.SeverityError:
			total += a.policy.Penalties.Error
		case model.SeverityWarning:
			total += a.policy.Penalties.Warning
		default:
			total += a.policy.Penalties.Info
		}
	}
	// Round away float noise from summing penalties
	return math.Max(0, math.Round((1-total)*1e9)/1e9)
}

// unstatedNumbers returns decimals and multi-digit numbers of the claim
// that the source never states. Years are left to the temporal check.
func (a *Analyzer) unstatedNumbers(text string, source *Source) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range nlp.Tokens(text) {
		if !isNumber(tok) || seen[tok] || source.numbers[tok] {
			continue
		}
		seen[tok] = true
		if isYear(tok) {
			continue
		}
		if strings.Contains(tok, ".") || len(tok) >= 3 {
			out = append(out, tok)
		}
	}
	return out
}

func vagueTerms(text string) []string {
	var out []string
	seen := map[string]bool{}
	for _, tok := range nlp.Tokens(text) {
		if hedges[tok] && !seen[tok] {
			seen[tok] = true
			out = append(out, tok)
		}
	}
	return out
}

// inconsistencies finds terms both affirmed and negated, antonyms asserted
// together, and one unit given two different values
func inconsistencies(text string) []string {
	var out []string

	pol := nlp.AnalyzePolarity(text)
	for _, term := range pol.SelfContradictions() {
		out = append(out, fmt.Sprintf("%q both affirmed and negated", term))
	}

	for _, term := range pol.Terms() {
		if !pol.Affirmed[term] {
			continue
		}
		for _, opposite := range nlp.Antonyms(term) {
			if term < opposite && pol.Affirmed[opposite] {
				out = append(out, fmt.Sprintf("%q and %q", term, opposite))
			}
		}
	}

	byUnit := map[string]nlp.Quantity{}
	var units []string
	for _, q := range nlp.Quantities(text) {
		prev, ok := byUnit[q.Unit]
		if !ok {
			byUnit[q.Unit] = q
			continue
		}
		if prev.Value != q.Value {
			units = append(units, fmt.Sprintf("%s vs %s", prev.Raw, q.Raw))
		}
	}
	sort.Strings(units)
	return append(out, units...)
}

// temporalDrift reports time references of the claim that the source never
// states while stating a different value of the same kind
func temporalDrift(text string, source *Source) []string {
	var out []string
	for _, d := range nlp.Dates(text) {
		stated := source.dates[d.Kind]
		if len(stated) == 0 || stated[d.Value] {
			continue
		}
		values := make([]string, 0, len(stated))
		for v := range stated {
			values = append(values, v)
		}
		sort.Strings(values)
		out = append(out, fmt.Sprintf("%s %q, source states %s", d.Kind, d.Value, strings.Join(values, ", ")))
	}
	return out
}

func isNumber(tok string) bool {
	if tok == "" || tok[0] < '0' || tok[0] > '9' {
		return false
	}
	for _, r := range tok {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

func isYear(tok string) bool {
	if len(tok) != 4 || strings.Contains(tok, ".") {
		return false
	}
	return tok[:2] == "18" || tok[:2] == "19" || tok[:2] == "20"
}
