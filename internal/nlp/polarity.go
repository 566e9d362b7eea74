package nlp

import (
	"regexp"
	"sort"
)

// negation scope in tokens after a leading cue
const negationScope = 6

var (
	negationCues = toSet(
		"no", "not", "never", "without", "denies", "denied", "deny", "none",
		"neither", "nor", "cannot", "isn", "wasn", "aren", "weren", "doesn",
		"didn", "don", "hasn", "haven", "hadn",
	)
	// cues that negate the term in front of them ("fever absent")
	trailingCues = toSet("absent", "negative", "denied", "ruled", "excluded")

	affirmationCues = toSet(
		"present", "positive", "report", "reports", "reported", "endorses",
		"endorsed", "noted", "confirmed", "confirms", "shows", "showed",
		"complains", "complained", "admits", "presents", "presented",
	)

	clauseBreak = regexp.MustCompile(`[.;:!?]+|\b(?i:but|however|although|though|except|yet|whereas)\b`)

	antonyms = buildAntonyms(
		"increased", "decreased",
		"high", "low",
		"elevated", "low",
		"rising", "falling",
		"improved", "worsened",
		"gain", "loss",
		"left", "right",
		"acute", "chronic",
		"benign", "malignant",
		"male", "female",
		"stable", "unstable",
		"normal", "abnormal",
	)
)

// Polarity records which content terms of a text are asserted and which are negated
type Polarity struct {
	Affirmed map[string]bool
	Negated  map[string]bool
}

// AnalyzePolarity assigns each stemmed content term of text to the affirmed
// or negated set. A term can land in both when the text contradicts itself.
func AnalyzePolarity(text string) Polarity {
	p := Polarity{Affirmed: map[string]bool{}, Negated: map[string]bool{}}

	for _, clause := range clauseBreak.Split(text, -1) {
		tokens := Tokens(clause)
		negUntil := -1
		for i, tok := range tokens {
			if negationCues[tok] {
				negUntil = i + negationScope
				continue
			}
			if tok == "negative" && i+1 < len(tokens) && tokens[i+1] == "for" {
				negUntil = i + 1 + negationScope
				continue
			}
			if affirmationCues[tok] || trailingCues[tok] {
				negUntil = -1
				continue
			}
			if stopwords[tok] {
				continue
			}

			negated := i <= negUntil
			if !negated {
				for j := i + 1; j < len(tokens) && j <= i+3; j++ {
					if trailingCues[tokens[j]] {
						negated = true
						break
					}
					if negationCues[tokens[j]] || affirmationCues[tokens[j]] {
						break
					}
				}
			}

			stem := Stem(tok)
			if negated {
				p.Negated[stem] = true
			} else {
				p.Affirmed[stem] = true
			}
		}
	}
	return p
}

// Terms returns every term of the polarity in sorted order
func (p Polarity) Terms() []string {
	set := make(map[string]bool, len(p.Affirmed)+len(p.Negated))
	for t := range p.Affirmed {
		set[t] = true
	}
	for t := range p.Negated {
		set[t] = true
	}
	terms := make([]string, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Strings(terms)
	return terms
}

// Has reports whether the term occurs at all
func (p Polarity) Has(term string) bool {
	return p.Affirmed[term] || p.Negated[term]
}

// OnlyNegated reports whether every occurrence of term is negated
func (p Polarity) OnlyNegated(term string) bool {
	return p.Negated[term] && !p.Affirmed[term]
}

// OnlyAffirmed reports whether every occurrence of term is affirmed
func (p Polarity) OnlyAffirmed(term string) bool {
	return p.Affirmed[term] && !p.Negated[term]
}

// SelfContradictions returns the terms that are both affirmed and negated
func (p Polarity) SelfContradictions() []string {
	var out []string
	for _, t := range p.Terms() {
		if p.Affirmed[t] && p.Negated[t] {
			out = append(out, t)
		}
	}
	return out
}

// Antonyms returns the known opposites of a stemmed term
func Antonyms(term string) []string {
	return antonyms[term]
}

// IsCue reports whether tok is a negation or affirmation cue rather than content
func IsCue(tok string) bool {
	return negationCues[tok] || trailingCues[tok] || affirmationCues[tok] || tok == "negative"
}

func buildAntonyms(pairs ...string) map[string][]string {
	m := make(map[string][]string)
	for i := 0; i+1 < len(pairs); i += 2 {
		a, b := Stem(pairs[i]), Stem(pairs[i+1])
		m[a] = append(m[a], b)
		m[b] = append(m[b], a)
	}
	return m
}
