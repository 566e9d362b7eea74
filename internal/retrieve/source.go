// Package retrieve finds and ranks the spans of a source text that bear on
// a claim.
package retrieve

import (
	"github.com/ppiankov/sourcecheck/internal/extract"
	"github.com/ppiankov/sourcecheck/internal/model"
	"github.com/ppiankov/sourcecheck/internal/nlp"
)

// Chunk is a window of consecutive sentences
type Chunk struct {
	Start     int   // byte offset of the first sentence
	End       int   // byte offset after the last sentence
	Sentences []int // indices into Source.Sentences
}

// Source is a source text prepared once per run and shared read-only by
// every claim
type Source struct {
	Text      string
	Sentences []nlp.Sentence
	Chunks    []Chunk

	tokens [][]string // content tokens per sentence
}

// Prepare normalizes the source text and splits it into sentences and
// overlapping sentence-aligned chunks
func Prepare(text string, policy model.RetrievalPolicy) (*Source, error) {
	if policy.StripHTML || extract.LooksLikeHTML(text) {
		visible, err := extract.VisibleText(text)
		if err != nil {
			return nil, model.Wrap(model.KindInput, "source_text", "malformed HTML source", err)
		}
		text = visible
	}

	src := &Source{Text: text, Sentences: nlp.SplitSentences(text)}
	src.tokens = make([][]string, len(src.Sentences))
	for i, s := range src.Sentences {
		src.tokens[i] = nlp.ContentTokens(s.Text)
	}
	src.Chunks = chunkSentences(src.Sentences, policy.ChunkSize, policy.ChunkOverlap)

	return src, nil
}

// Empty reports whether the source has no text to search
func (s *Source) Empty() bool {
	return len(s.Sentences) == 0
}

// chunkSentences groups sentences into chunks of at most size bytes. Each
// new chunk repeats trailing sentences of the previous one that fit within
// overlap bytes. A sentence longer than size forms its own chunk.
func chunkSentences(sentences []nlp.Sentence, size, overlap int) []Chunk {
	if len(sentences) == 0 {
		return nil
	}
	if size <= 0 {
		size = 1000
	}
	if overlap < 0 || overlap >= size {
		overlap = 0
	}

	end := func(i int) int { return sentences[i].Start + len(sentences[i].Text) }

	var chunks []Chunk
	first := 0
	for first < len(sentences) {
		last := first
		for last+1 < len(sentences) && end(last+1)-sentences[first].Start <= size {
			last++
		}

		chunk := Chunk{Start: sentences[first].Start, End: end(last)}
		for i := first; i <= last; i++ {
			chunk.Sentences = append(chunk.Sentences, i)
		}
		chunks = append(chunks, chunk)

		if last == len(sentences)-1 {
			break
		}

		// Step back over trailing sentences that fit in the overlap
		next := last + 1
		for next-1 > first && end(last)-sentences[next-1].Start <= overlap {
			next--
		}
		first = next
	}
	return chunks
}
