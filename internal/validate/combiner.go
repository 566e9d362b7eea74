package validate

import (
	"fmt"
	"strings"

	"github.com/ppiankov/sourcecheck/internal/model"
)

// Validator names used when no single validator decided the verdict
const (
	RetrieverName = "retriever"
	NoneName      = "none"
)

// Decision is the combined verdict for one claim
type Decision struct {
	Verdict     model.Verdict
	Validator   string
	Confidence  *float64
	Explanation string
}

// Combine resolves votes into one verdict. In order:
//  1. a refuted vote at or above the contradiction threshold refutes
//  2. no evidence is insufficient, attributed to the retriever
//  3. the strongest supported vote at or above its own support threshold supports
//  4. otherwise insufficient
//
// Equal confidences are broken by the policy's validator precedence.
func Combine(votes []model.Vote, evidenceCount int, failures []error, policy *model.Policy) Decision {
	rank := precedence(policy)

	if v := strongest(votes, rank, func(v model.Vote) bool {
		return v.Verdict == model.VerdictRefuted && v.Confidence >= policy.Combiner.ContradictionThreshold
	}); v != nil {
		return decided(v)
	}

	if evidenceCount == 0 {
		return Decision{
			Verdict:     model.VerdictInsufficient,
			Validator:   RetrieverName,
			Explanation: withFailures("no evidence found in source", failures),
		}
	}

	if v := strongest(votes, rank, func(v model.Vote) bool {
		return v.Verdict == model.VerdictSupported && v.Confidence >= policy.SupportThreshold(v.Kind)
	}); v != nil {
		return decided(v)
	}

	if len(votes) == 0 {
		return Decision{
			Verdict:     model.VerdictInsufficient,
			Validator:   NoneName,
			Explanation: withFailures("no validator produced a vote", failures),
		}
	}

	// Report the highest-precedence vote as the reason nothing was decided
	v := strongest(votes, rank, func(model.Vote) bool { return true })
	return Decision{
		Verdict:     model.VerdictInsufficient,
		Validator:   v.Validator,
		Confidence:  model.Float(v.Confidence),
		Explanation: withFailures("no validator reached its threshold: "+v.Explanation, failures),
	}
}

func decided(v *model.Vote) Decision {
	return Decision{
		Verdict:     v.Verdict,
		Validator:   v.Validator,
		Confidence:  model.Float(v.Confidence),
		Explanation: v.Explanation,
	}
}

// strongest picks the highest-confidence vote accepted by keep, breaking
// ties by precedence rank
func strongest(votes []model.Vote, rank map[model.ValidatorKind]int, keep func(model.Vote) bool) *model.Vote {
	var best *model.Vote
	for i := range votes {
		v := &votes[i]
		if !keep(*v) {
			continue
		}
		if best == nil || v.Confidence > best.Confidence ||
			(v.Confidence == best.Confidence && rank[v.Kind] < rank[best.Kind]) {
			best = v
		}
	}
	return best
}

// precedence maps each kind to its position in combiner.precedence;
// unlisted kinds rank after all listed ones in default order
func precedence(policy *model.Policy) map[model.ValidatorKind]int {
	rank := make(map[model.ValidatorKind]int, len(model.ValidatorKinds))
	for i, kind := range policy.Combiner.Precedence {
		if _, ok := rank[kind]; !ok {
			rank[kind] = i
		}
	}
	next := len(policy.Combiner.Precedence)
	for _, kind := range model.ValidatorKinds {
		if _, ok := rank[kind]; !ok {
			rank[kind] = next
			next++
		}
	}
	return rank
}

func withFailures(msg string, failures []error) string {
	if len(failures) == 0 {
		return msg
	}
	parts := make([]string, len(failures))
	for i, err := range failures {
		parts[i] = model.AsError(err).Message
	}
	return fmt.Sprintf("%s (failures: %s)", msg, strings.Join(parts, "; "))
}
