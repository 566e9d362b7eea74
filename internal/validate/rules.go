package validate

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/nlp"
)

// RuleValidator compares structured content (numbers, dates, enumerated
// values, custom patterns) between a claim and its evidence
type RuleValidator struct {
	builtin  []model.RuleKind
	enums    []*enumRule
	patterns []*compiledPattern
}

type enumRule struct {
	name   string
	values []string
	fields map[string]bool
}

type compiledPattern struct {
	name    string
	pattern *regexp.Regexp
	fields  map[string]bool
}

// ruleOutcome is what one rule concluded about a claim
type ruleOutcome struct {
	fired   bool
	refuted bool
	detail  string
}

// NewRuleValidator compiles the rules declared in the policy
func NewRuleValidator(policy model.RulePolicy) (*RuleValidator, error) {
	v := &RuleValidator{builtin: policy.Builtin}

	for _, spec := range policy.Rules {
		switch spec.Kind {
		case model.RuleEnum:
			rule := &enumRule{name: spec.Name, fields: fieldSet(spec.Fields)}
			for _, value := range spec.Values {
				rule.values = append(rule.values, strings.ToLower(strings.TrimSpace(value)))
			}
			v.enums = append(v.enums, rule)
		case model.RulePattern:
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return nil, model.Wrap(model.KindPolicy, "validators.rule.rules", fmt.Sprintf("invalid pattern in rule %q", spec.Name), err)
			}
			v.patterns = append(v.patterns, &compiledPattern{name: spec.Name, pattern: re, fields: fieldSet(spec.Fields)})
		default:
			return nil, model.PolicyError("validators.rule.rules", "unknown rule kind %q", spec.Kind)
		}
	}
	return v, nil
}

// Kind returns the validator kind
func (v *RuleValidator) Kind() model.ValidatorKind {
	return model.ValidatorRule
}

// Validate runs every applicable rule. Any refuting rule refutes the claim;
// otherwise any matching rule supports it. When no rule fires the
// validator abstains.
func (v *RuleValidator) Validate(ctx context.Context, claim model.Claim, evidence []model.EvidenceSpan) (model.Vote, error) {
	vote := model.Vote{Validator: string(model.ValidatorRule), Kind: model.ValidatorRule, Verdict: model.VerdictInsufficient}
	if len(evidence) == 0 {
		vote.Explanation = "no evidence"
		return vote, nil
	}

	texts := make([]string, len(evidence))
	for i, span := range evidence {
		texts[i] = span.Text
	}
	source := strings.Join(texts, "\n")
	field := claim.BaseField()

	var outcomes []ruleOutcome
	for _, kind := range v.builtin {
		switch kind {
		case model.RuleNumber:
			outcomes = append(outcomes, compareNumbers(claim.Text, source))
		case model.RuleDate:
			outcomes = append(outcomes, compareDates(claim.Text, source))
		}
	}
	for _, rule := range v.enums {
		if applies(rule.fields, field) {
			outcomes = append(outcomes, rule.compare(claim.Text, texts))
		}
	}
	for _, rule := range v.patterns {
		if applies(rule.fields, field) {
			outcomes = append(outcomes, rule.compare(claim.Text, source))
		}
	}

	var supported []string
	for _, o := range outcomes {
		if !o.fired {
			continue
		}
		if o.refuted {
			vote.Verdict = model.VerdictRefuted
			vote.Confidence = 1
			vote.Explanation = o.detail
			return vote, nil
		}
		supported = append(supported, o.detail)
	}

	if len(supported) > 0 {
		vote.Verdict = model.VerdictSupported
		vote.Confidence = 1
		vote.Explanation = strings.Join(supported, "; ")
		return vote, nil
	}

	vote.Explanation = "no rule applied"
	return vote, nil
}

// compareNumbers matches quantities with the same unit. A unit the source
// states only with other values refutes the claim.
func compareNumbers(claim, source string) ruleOutcome {
	claimed := nlp.Quantities(claim)
	if len(claimed) == 0 {
		return ruleOutcome{}
	}

	stated := make(map[string][]nlp.Quantity)
	for _, q := range nlp.Quantities(source) {
		stated[q.Unit] = append(stated[q.Unit], q)
	}

	var matched []string
	for _, q := range claimed {
		values, ok := stated[q.Unit]
		if !ok {
			continue
		}
		found := false
		for _, s := range values {
			if s.Value == q.Value {
				found = true
				break
			}
		}
		if !found {
			return ruleOutcome{fired: true, refuted: true,
				detail: fmt.Sprintf("claim states %s, source states %s", q.Raw, values[0].Raw)}
		}
		matched = append(matched, q.Raw)
	}

	if len(matched) == 0 {
		return ruleOutcome{}
	}
	return ruleOutcome{fired: true, detail: "source states " + strings.Join(matched, ", ")}
}

// compareDates matches months, weekdays, years and ISO dates by kind
func compareDates(claim, source string) ruleOutcome {
	var claimed []nlp.DateMention
	for _, d := range nlp.Dates(claim) {
		if d.Kind != nlp.DateRelative {
			claimed = append(claimed, d)
		}
	}
	if len(claimed) == 0 {
		return ruleOutcome{}
	}

	stated := make(map[nlp.DateKind]map[string]bool)
	for _, d := range nlp.Dates(source) {
		if stated[d.Kind] == nil {
			stated[d.Kind] = make(map[string]bool)
		}
		stated[d.Kind][d.Value] = true
	}

	var matched []string
	for _, d := range claimed {
		values, ok := stated[d.Kind]
		if !ok {
			continue
		}
		if !values[d.Value] {
			return ruleOutcome{fired: true, refuted: true,
				detail: fmt.Sprintf("claim states %s %s, source states %s", d.Kind, d.Value, anyKey(values))}
		}
		matched = append(matched, d.Value)
	}

	if len(matched) == 0 {
		return ruleOutcome{}
	}
	return ruleOutcome{fired: true, detail: "source states " + strings.Join(matched, ", ")}
}

// compare finds the enumerated value the claim asserts and checks which
// values the evidence asserts
func (r *enumRule) compare(claim string, evidence []string) ruleOutcome {
	var asserted []string
	for _, value := range r.values {
		if nlp.ContainsPhrase(claim, value) {
			asserted = append(asserted, value)
		}
	}
	// A claim naming several alternatives asserts none of them
	if len(asserted) != 1 {
		return ruleOutcome{}
	}
	want := asserted[0]

	var other string
	for _, text := range evidence {
		for _, value := range r.values {
			if !nlp.ContainsPhrase(text, value) {
				continue
			}
			if value == want {
				return ruleOutcome{fired: true, detail: fmt.Sprintf("%s: source states %s", r.name, want)}
			}
			if other == "" {
				other = value
			}
		}
	}

	if other == "" {
		return ruleOutcome{}
	}
	return ruleOutcome{fired: true, refuted: true,
		detail: fmt.Sprintf("%s: claim states %s, source states %s", r.name, want, other)}
}

// compare extracts the first capture group from claim and evidence
func (p *compiledPattern) compare(claim, source string) ruleOutcome {
	m := p.pattern.FindStringSubmatch(claim)
	if len(m) < 2 {
		return ruleOutcome{}
	}
	want := normalizeCapture(m[1])

	var other string
	for _, sm := range p.pattern.FindAllStringSubmatch(source, -1) {
		got := normalizeCapture(sm[1])
		if got == want {
			return ruleOutcome{fired: true, detail: fmt.Sprintf("%s: source states %s", p.name, m[1])}
		}
		if other == "" {
			other = sm[1]
		}
	}

	if other == "" {
		return ruleOutcome{}
	}
	return ruleOutcome{fired: true, refuted: true,
		detail: fmt.Sprintf("%s: claim states %s, source states %s", p.name, m[1], other)}
}

func normalizeCapture(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func fieldSet(fields []string) map[string]bool {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// applies reports whether a rule restricted to fields covers field
func applies(fields map[string]bool, field string) bool {
	return fields == nil || fields[field]
}

// anyKey returns the smallest key so explanations are deterministic
func anyKey(m map[string]bool) string {
	first := ""
	for k := range m {
		if first == "" || k < first {
			first = k
		}
	}
	return first
}
