package backend

import (
	"context"
	"fmt"

	"github.com/ppiankov/sourcecheck/internal/nlp"
)

// LexicalName is the name of the built-in backend
const LexicalName = "lexical"

// Lexical is a deterministic backend built on token overlap and negation
// scope. It needs no network and is the default.
type Lexical struct{}

// NewLexical creates the built-in lexical backend
func NewLexical() *Lexical {
	return &Lexical{}
}

// Name returns the backend name
func (l *Lexical) Name() string {
	return LexicalName
}

// IsAvailable always reports true
func (l *Lexical) IsAvailable(ctx context.Context) bool {
	return true
}

// Similarity is the cosine of the stemmed content-token vectors
func (l *Lexical) Similarity(ctx context.Context, a, b string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return nlp.Cosine(nlp.ContentTokens(a), nlp.ContentTokens(b)), nil
}

// ClassifyEntailment measures how much of the hypothesis the premise
// covers. When covered terms are asserted with opposite polarity, or met
// by an antonym, the conflicting share of the covered terms decides
// contradiction.
func (l *Lexical) ClassifyEntailment(ctx context.Context, premise, hypothesis string) (Entailment, error) {
	if err := ctx.Err(); err != nil {
		return Entailment{}, err
	}

	hyp := nlp.AnalyzePolarity(hypothesis)
	prem := nlp.AnalyzePolarity(premise)
	terms := hyp.Terms()
	if len(terms) == 0 {
		return FromScores(nil), nil
	}

	premTerms := prem.Terms()
	covered := 0
	var conflicts []string
	for _, term := range terms {
		match, ok := matchTerm(term, prem, premTerms)
		if ok {
			covered++
			if (hyp.OnlyAffirmed(term) && prem.OnlyNegated(match)) ||
				(hyp.OnlyNegated(term) && prem.OnlyAffirmed(match)) {
				conflicts = append(conflicts, term)
			}
			continue
		}
		for _, opposite := range nlp.Antonyms(term) {
			if prem.Has(opposite) && !hyp.Has(opposite) {
				covered++
				conflicts = append(conflicts, fmt.Sprintf("%s/%s", term, opposite))
				break
			}
		}
	}

	coverage := float64(covered) / float64(len(terms))
	if len(conflicts) > 0 {
		// weighed against the covered terms only, so a short negating
		// premise still outvotes the claim terms it never mentions
		share := float64(len(conflicts)) / float64(covered)
		return FromScores(map[Label]float64{
			LabelContradiction: share,
			LabelNeutral:       (1 - share) * (1 - coverage),
		}), nil
	}
	return FromScores(map[Label]float64{
		LabelEntailment: coverage,
		LabelNeutral:    1 - coverage,
	}), nil
}

// matchTerm finds term in the premise exactly, then by fuzzy prefix
func matchTerm(term string, prem nlp.Polarity, premTerms []string) (string, bool) {
	if prem.Has(term) {
		return term, true
	}
	for _, candidate := range premTerms {
		if nlp.FuzzyEqual(term, candidate) {
			return candidate, true
		}
	}
	return "", false
}
