package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"slices"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// LoadPolicyFile reads a policy from disk, picking the encoding by extension
func LoadPolicyFile(path string) (*model.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.Wrap(model.KindPolicy, "", "read policy file", err)
	}
	return ParsePolicy(data, FormatFromPath(path))
}

// ParsePolicy decodes an encoded policy onto the defaults and validates it
func ParsePolicy(data []byte, format Format) (*model.Policy, error) {
	doc, err := decodeDocument(data, format)
	if err != nil {
		return nil, model.Wrap(model.KindPolicy, "", "malformed policy document", err)
	}
	return policyFromValues(doc.values)
}

// PolicyFromValue accepts a policy as an already-decoded mapping, encoded
// bytes, or a model.Policy
func PolicyFromValue(v any) (*model.Policy, error) {
	switch p := v.(type) {
	case nil:
		return nil, model.PolicyError("", "policies are required")
	case *model.Policy:
		if p == nil {
			return nil, model.PolicyError("", "policies are required")
		}
		cp := *p
		return &cp, checkPolicy(&cp)
	case model.Policy:
		return &p, checkPolicy(&p)
	case []byte:
		return ParsePolicy(p, FormatAuto)
	case json.RawMessage:
		if isNullJSON(p) {
			return nil, model.PolicyError("", "policies are required")
		}
		return ParsePolicy(p, FormatAuto)
	case string:
		return ParsePolicy([]byte(p), FormatAuto)
	}

	values, err := toMap(v)
	if err != nil {
		return nil, model.Wrap(model.KindPolicy, "", "malformed policy document", err)
	}
	return policyFromValues(values)
}

func policyFromValues(values map[string]any) (*model.Policy, error) {
	policy := model.DefaultPolicy()
	if err := decodeInto(values, &policy); err != nil {
		return nil, model.Wrap(model.KindPolicy, "", "invalid policy", err)
	}
	if err := checkPolicy(&policy); err != nil {
		return nil, err
	}
	return &policy, nil
}

// checkPolicy runs struct validation and the checks tags cannot express
func checkPolicy(policy *model.Policy) error {
	if err := validate.Struct(policy); err != nil {
		field, msg := describeValidation(err)
		return model.PolicyError(field, "%s", msg)
	}

	if policy.Retrieval.LexicalWeight+policy.Retrieval.SemanticWeight == 0 {
		return model.PolicyError("retrieval", "lexical_weight and semantic_weight cannot both be 0")
	}

	seen := make(map[model.ValidatorKind]bool)
	for _, kind := range policy.Combiner.Precedence {
		if seen[kind] {
			return model.PolicyError("combiner.precedence", "validator %q listed twice", kind)
		}
		seen[kind] = true
	}
	// Kinds left out of the precedence list rank after the listed ones.
	// The list may share its backing array with a caller's policy.
	precedence := slices.Clone(policy.Combiner.Precedence)
	for _, kind := range model.ValidatorKinds {
		if !seen[kind] {
			precedence = append(precedence, kind)
		}
	}
	policy.Combiner.Precedence = precedence

	names := make(map[string]bool)
	for i, rule := range policy.Validators.Rule.Rules {
		field := fmt.Sprintf("validators.rule.rules[%d]", i)
		if names[rule.Name] {
			return model.PolicyError(field, "duplicate rule %q", rule.Name)
		}
		names[rule.Name] = true

		switch rule.Kind {
		case model.RuleEnum:
			if len(rule.Values) < 2 {
				return model.PolicyError(field, "enum rule needs at least 2 values")
			}
		case model.RulePattern:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return model.Wrap(model.KindPolicy, field, "invalid pattern", err)
			}
			if re.NumSubexp() < 1 {
				return model.PolicyError(field, "pattern needs a capture group")
			}
		}
	}
	return nil
}

// CheckAssignments verifies that every validator the schema assigns is
// enabled by the policy
func CheckAssignments(schema *model.Schema, policy *model.Policy) error {
	for _, f := range schema.Fields {
		kinds := policy.ValidatorsFor(f)
		if len(kinds) == 0 {
			return model.PolicyError("default_validators", "no validators assigned to field %q", f.Name)
		}
		for _, kind := range kinds {
			if !policy.Enabled(kind) {
				return model.PolicyError("validators."+string(kind), "validator %q assigned to field %q is disabled", kind, f.Name)
			}
		}
	}
	return nil
}
