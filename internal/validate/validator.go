// Package validate turns retrieved evidence into verdict votes and combines
// the votes into one verdict per claim.
package validate

import (
	"context"
	"fmt"
	"sync"

	"github.com/ppiankov/sourcecheck/internal/backend"
	"github.com/ppiankov/sourcecheck/internal/model"
)

// Validator produces one vote about a claim from its evidence
type Validator interface {
	Kind() model.ValidatorKind
	Validate(ctx context.Context, claim model.Claim, evidence []model.EvidenceSpan) (model.Vote, error)
}

// Set holds one validator per enabled kind
type Set struct {
	policy     *model.Policy
	validators map[model.ValidatorKind]Validator
}

// NewSet builds the validators the policy enables
func NewSet(b backend.Backend, policy *model.Policy) (*Set, error) {
	s := &Set{policy: policy, validators: make(map[model.ValidatorKind]Validator)}

	if policy.Validators.Semantic.Enabled {
		s.validators[model.ValidatorSemantic] = NewSemanticValidator(policy.Validators.Semantic)
	}
	if policy.Validators.Entailment.Enabled {
		if b == nil {
			return nil, fmt.Errorf("entailment validator needs a backend")
		}
		s.validators[model.ValidatorEntailment] = NewEntailmentValidator(b, policy.Validators.Entailment, policy.Backend.MaxConcurrency)
	}
	if policy.Validators.Rule.Enabled {
		rv, err := NewRuleValidator(policy.Validators.Rule)
		if err != nil {
			return nil, err
		}
		s.validators[model.ValidatorRule] = rv
	}
	return s, nil
}

// Run asks each of the given validators for a vote. A failing validator is
// reported in failures and left out of the votes. The returned error is
// non-nil only when a required validator failed or ctx was cancelled.
func (s *Set) Run(ctx context.Context, claim model.Claim, kinds []model.ValidatorKind, evidence []model.EvidenceSpan) ([]model.Vote, []error, error) {
	var votes []model.Vote
	var failures []error

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		v, ok := s.validators[kind]
		if !ok {
			continue
		}

		vote, err := v.Validate(ctx, claim, evidence)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, nil, ctxErr
			}
			verr := model.Wrap(model.KindValidator, claim.Field, fmt.Sprintf("%s validator failed", kind), err)
			if s.policy.Required(kind) {
				return nil, nil, verr
			}
			failures = append(failures, verr)
			continue
		}
		votes = append(votes, vote)
	}
	return votes, failures, nil
}

// SemanticValidator supports a claim when its best evidence span is relevant enough
type SemanticValidator struct {
	threshold float64
}

// NewSemanticValidator creates a semantic validator
func NewSemanticValidator(policy model.SemanticPolicy) *SemanticValidator {
	return &SemanticValidator{threshold: policy.SupportThreshold}
}

// Kind returns the validator kind
func (v *SemanticValidator) Kind() model.ValidatorKind {
	return model.ValidatorSemantic
}

// Validate never refutes; similarity alone cannot tell agreement from negation
func (v *SemanticValidator) Validate(ctx context.Context, claim model.Claim, evidence []model.EvidenceSpan) (model.Vote, error) {
	vote := model.Vote{Validator: string(model.ValidatorSemantic), Kind: model.ValidatorSemantic, Verdict: model.VerdictInsufficient}
	if len(evidence) == 0 {
		vote.Explanation = "no evidence"
		return vote, nil
	}

	top := evidence[0].Score
	vote.Confidence = top
	if top >= v.threshold {
		vote.Verdict = model.VerdictSupported
		vote.Explanation = fmt.Sprintf("best evidence relevance %.2f", top)
	} else {
		vote.Explanation = fmt.Sprintf("best evidence relevance %.2f below %.2f", top, v.threshold)
	}
	return vote, nil
}

// EntailmentValidator classifies each evidence span against the claim
type EntailmentValidator struct {
	backend    backend.Backend
	policy     model.EntailmentPolicy
	maxWorkers int
}

// NewEntailmentValidator creates an entailment validator
func NewEntailmentValidator(b backend.Backend, policy model.EntailmentPolicy, maxWorkers int) *EntailmentValidator {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &EntailmentValidator{backend: b, policy: policy, maxWorkers: maxWorkers}
}

// Kind returns the validator kind
func (v *EntailmentValidator) Kind() model.ValidatorKind {
	return model.ValidatorEntailment
}

type entailmentResult struct {
	span model.EvidenceSpan
	ent  backend.Entailment
	err  error
}

// Validate classifies all spans concurrently. The strongest contradiction
// and the strongest entailment decide the vote.
func (v *EntailmentValidator) Validate(ctx context.Context, claim model.Claim, evidence []model.EvidenceSpan) (model.Vote, error) {
	vote := model.Vote{Validator: string(model.ValidatorEntailment), Kind: model.ValidatorEntailment, Verdict: model.VerdictInsufficient}
	if err := ctx.Err(); err != nil {
		return vote, err
	}
	if len(evidence) == 0 {
		vote.Explanation = "no evidence"
		return vote, nil
	}

	results := make([]entailmentResult, len(evidence))
	var wg sync.WaitGroup

	// Create semaphore to limit concurrent classifications
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, span := range evidence {
		wg.Add(1)
		go func(idx int, s model.EvidenceSpan) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = entailmentResult{span: s, err: ctx.Err()}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			// select picks at random when ctx is done and a slot is free
			if err := ctx.Err(); err != nil {
				results[idx] = entailmentResult{span: s, err: err}
				return
			}
			ent, err := v.backend.ClassifyEntailment(ctx, s.Text, claim.Text)
			results[idx] = entailmentResult{span: s, ent: ent, err: err}
		}(i, span)
	}
	wg.Wait()

	var contra, entail, neutral *entailmentResult
	for i := range results {
		r := &results[i]
		if r.err != nil {
			return vote, r.err
		}
		switch r.ent.Label {
		case backend.LabelContradiction:
			if contra == nil || r.ent.Confidence > contra.ent.Confidence {
				contra = r
			}
		case backend.LabelEntailment:
			if entail == nil || r.ent.Confidence > entail.ent.Confidence {
				entail = r
			}
		default:
			if neutral == nil || r.ent.Confidence > neutral.ent.Confidence {
				neutral = r
			}
		}
	}

	switch {
	case contra != nil && contra.ent.Confidence >= v.policy.ContradictionThreshold &&
		(entail == nil || contra.ent.Confidence >= entail.ent.Confidence):
		vote.Verdict = model.VerdictRefuted
		vote.Confidence = contra.ent.Confidence
		vote.Explanation = fmt.Sprintf("contradicted by %q", contra.span.Text)
	case entail != nil:
		vote.Verdict = model.VerdictSupported
		vote.Confidence = entail.ent.Confidence
		vote.Explanation = fmt.Sprintf("entailed by %q", entail.span.Text)
	case contra != nil:
		vote.Verdict = model.VerdictRefuted
		vote.Confidence = contra.ent.Confidence
		vote.Explanation = fmt.Sprintf("weakly contradicted by %q", contra.span.Text)
	default:
		vote.Confidence = neutral.ent.Confidence
		vote.Explanation = "evidence neither entails nor contradicts the claim"
	}
	return vote, nil
}
