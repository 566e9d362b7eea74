package retrieve

import (
	"context"
	"sort"

	"github.com/ppiankov/sourcecheck/internal/backend"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/nlp"
)

// Retriever scores source sentences against a claim and returns the top spans
type Retriever struct {
	backend backend.Backend
	policy  model.RetrievalPolicy
}

// New creates a retriever. A nil backend disables semantic scoring and the
// lexical score carries the full weight.
func New(b backend.Backend, policy model.RetrievalPolicy) *Retriever {
	return &Retriever{backend: b, policy: policy}
}

type candidate struct {
	index   int
	lexical float64
	score   float64
}

// Retrieve returns at most top_k spans scoring at least min_relevance,
// sorted by score descending and then by position in the source. A backend
// failure is a RetrievalError.
func (r *Retriever) Retrieve(ctx context.Context, claim model.Claim, src *Source) ([]model.EvidenceSpan, error) {
	claimTokens := nlp.ContentTokens(claim.Text)
	if len(claimTokens) == 0 || src == nil || src.Empty() {
		return []model.EvidenceSpan{}, nil
	}

	cands := make([]candidate, len(src.Sentences))
	for i, s := range src.Sentences {
		lex := nlp.Recall(claimTokens, src.tokens[i])
		if nlp.ContainsPhrase(s.Text, claim.Text) {
			lex = 1
		}
		cands[i] = candidate{index: i, lexical: lex}
	}

	lw, sw := r.policy.LexicalWeight, r.policy.SemanticWeight
	semantic := r.backend != nil && sw > 0 && r.policy.SemanticCandidates > 0
	if !semantic || lw+sw == 0 {
		lw, sw = 1, 0
	}

	var semScores map[int]float64
	if semantic && sw > 0 {
		var err error
		semScores, err = r.semanticScores(ctx, claim, src, cands)
		if err != nil {
			return nil, model.Wrap(model.KindRetrieval, claim.Field, "semantic scoring failed", err)
		}
	}

	for i := range cands {
		cands[i].score = clamp((lw*cands[i].lexical + sw*semScores[i]) / (lw + sw))
	}

	return r.rank(cands, src), nil
}

// semanticScores asks the backend about the best lexical candidates of each
// chunk. Sentences shared by overlapping chunks are scored once.
func (r *Retriever) semanticScores(ctx context.Context, claim model.Claim, src *Source, cands []candidate) (map[int]float64, error) {
	scores := make(map[int]float64)
	for _, chunk := range src.Chunks {
		idx := append([]int(nil), chunk.Sentences...)
		sort.SliceStable(idx, func(a, b int) bool {
			return cands[idx[a]].lexical > cands[idx[b]].lexical
		})
		if len(idx) > r.policy.SemanticCandidates {
			idx = idx[:r.policy.SemanticCandidates]
		}

		for _, i := range idx {
			if _, done := scores[i]; done {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sim, err := r.backend.Similarity(ctx, claim.Text, src.Sentences[i].Text)
			if err != nil {
				return nil, err
			}
			scores[i] = clamp(sim)
		}
	}
	return scores, nil
}

// rank deduplicates near-identical spans, applies the relevance floor and
// keeps the top K
func (r *Retriever) rank(cands []candidate, src *Source) []model.EvidenceSpan {
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].score != cands[b].score {
			return cands[a].score > cands[b].score
		}
		return src.Sentences[cands[a].index].Start < src.Sentences[cands[b].index].Start
	})

	var kept []candidate
	for _, c := range cands {
		if c.score <= 0 {
			break
		}
		duplicate := false
		for _, k := range kept {
			if nlp.Jaccard(src.tokens[c.index], src.tokens[k.index]) >= r.policy.DedupThreshold {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, c)
		}
	}

	spans := make([]model.EvidenceSpan, 0, r.policy.TopK)
	for _, c := range kept {
		if c.score < r.policy.MinRelevance {
			break
		}
		if len(spans) == r.policy.TopK {
			break
		}
		s := src.Sentences[c.index]
		spans = append(spans, model.EvidenceSpan{Text: s.Text, Score: c.score, Offset: s.Start})
	}
	return spans
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
