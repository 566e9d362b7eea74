package nlp

import (
	"math"
	"strings"
	"unicode"
)

var stopwords = toSet(
	"a", "an", "the", "and", "or", "of", "to", "in", "on", "at", "by", "for", "from",
	"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "its",
	"this", "that", "these", "those", "he", "she", "they", "his", "her", "their",
	"has", "have", "had", "do", "does", "did", "which", "who", "whom", "whose",
	"into", "over", "than", "then", "so", "such", "also", "there", "here",
	"no", "not", "nor", "without", "any", "s", "t",
)

// Tokens splits text into lowercase word and number tokens. Decimal points
// and thousands separators between digits stay inside the number token.
func Tokens(text string) []string {
	var tokens []string
	var cur strings.Builder
	runes := []rune(text)

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			cur.WriteRune(unicode.ToLower(r))
		case r == '%':
			flush()
			tokens = append(tokens, "%")
		case (r == '.' || r == ',') && i > 0 && i+1 < len(runes) &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]):
			if r == '.' {
				cur.WriteRune(r)
			}
		default:
			flush()
		}
	}
	flush()

	return tokens
}

// Stem strips common English inflections so "reports", "reported" and
// "reporting" compare equal
func Stem(tok string) string {
	if len(tok) <= 3 || isNumeric(tok) {
		return tok
	}
	switch {
	case strings.HasSuffix(tok, "ies") && len(tok) > 4:
		return tok[:len(tok)-3] + "y"
	case strings.HasSuffix(tok, "ing") && len(tok) > 5:
		return tok[:len(tok)-3]
	case strings.HasSuffix(tok, "ed") && len(tok) > 4:
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "es") && len(tok) > 4 && strings.ContainsRune("sxz", rune(tok[len(tok)-3])):
		return tok[:len(tok)-2]
	case strings.HasSuffix(tok, "s") && !strings.HasSuffix(tok, "ss") && !strings.HasSuffix(tok, "us") && !strings.HasSuffix(tok, "is"):
		return tok[:len(tok)-1]
	}
	return tok
}

// IsStopword reports whether tok carries no content for matching
func IsStopword(tok string) bool {
	return stopwords[tok]
}

// ContentTokens returns the stemmed non-stopword tokens of text
func ContentTokens(text string) []string {
	var out []string
	for _, tok := range Tokens(text) {
		if stopwords[tok] {
			continue
		}
		out = append(out, Stem(tok))
	}
	return out
}

// Normalize lowercases text and reduces it to single-spaced tokens, for
// exact-substring comparison that ignores punctuation and case
func Normalize(text string) string {
	return strings.Join(Tokens(text), " ")
}

// Jaccard is the set overlap of two token lists
func Jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	sa, sb := toSet(a...), toSet(b...)
	inter := 0
	for tok := range sa {
		if sb[tok] {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// Cosine is the cosine similarity of the term-frequency vectors of two token lists
func Cosine(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	fa, fb := counts(a), counts(b)
	var dot, na, nb float64
	for tok, ca := range fa {
		na += float64(ca * ca)
		dot += float64(ca * fb[tok])
	}
	for _, cb := range fb {
		nb += float64(cb * cb)
	}
	if dot == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Recall is the fraction of needle tokens found in haystack, with fuzzy
// matching of long tokens that share most of a prefix
func Recall(needle, haystack []string) float64 {
	if len(needle) == 0 {
		return 0
	}
	hay := toSet(haystack...)
	found := 0
	for _, tok := range needle {
		if hay[tok] {
			found++
			continue
		}
		for h := range hay {
			if FuzzyEqual(tok, h) {
				found++
				break
			}
		}
	}
	return float64(found) / float64(len(needle))
}

// FuzzyEqual matches tokens of five or more letters whose common prefix
// covers at least three quarters of the shorter one
func FuzzyEqual(a, b string) bool {
	if a == b {
		return true
	}
	short := len(a)
	if len(b) < short {
		short = len(b)
	}
	if short < 5 || isNumeric(a) || isNumeric(b) {
		return false
	}
	prefix := 0
	for prefix < short && a[prefix] == b[prefix] {
		prefix++
	}
	return prefix >= 5 && float64(prefix) >= 0.75*float64(short)
}

func isNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsDigit(r) && r != '.' {
			return false
		}
	}
	return true
}

func counts(tokens []string) map[string]int {
	m := make(map[string]int, len(tokens))
	for _, t := range tokens {
		m[t]++
	}
	return m
}

func toSet(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// ContainsPhrase reports whether needle occurs in hay on token boundaries,
// ignoring case and punctuation
func ContainsPhrase(hay, needle string) bool {
	n := Normalize(needle)
	if n == "" {
		return false
	}
	return strings.Contains(" "+Normalize(hay)+" ", " "+n+" ")
}
