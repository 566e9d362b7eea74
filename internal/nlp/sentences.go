// Package nlp holds the small, deterministic text routines shared by the
// extractor, retriever, validators and quality checks.
package nlp

import (
	"strings"
	"unicode"
)

// Sentence is a sentence of a text together with its byte offset
type Sentence struct {
	Text  string
	Start int
}

var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "st": true, "vs": true,
	"e.g": true, "i.e": true, "etc": true, "approx": true, "fig": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true, "jul": true,
	"aug": true, "sep": true, "sept": true, "oct": true, "nov": true, "dec": true,
}

// SplitSentences splits text at sentence terminators and line breaks.
// Terminators inside numbers ("2.5") and after common abbreviations do not split.
func SplitSentences(text string) []Sentence {
	var sentences []Sentence
	start := 0

	emit := func(end int) {
		raw := text[start:end]
		trimmed := strings.TrimSpace(raw)
		if trimmed != "" {
			lead := strings.Index(raw, trimmed)
			sentences = append(sentences, Sentence{Text: trimmed, Start: start + lead})
		}
		start = end
	}

	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\n':
			emit(i)
			start = i + 1
		case c == '.' || c == '!' || c == '?':
			next := i + 1
			// Swallow closing quotes and brackets
			for next < len(text) && strings.IndexByte(`"')]`, text[next]) >= 0 {
				next++
			}
			if next < len(text) && !isSpace(text[next]) {
				continue
			}
			if c == '.' && isAbbreviation(text[start:i]) {
				continue
			}
			emit(next)
			i = next - 1
		}
	}
	emit(len(text))

	return sentences
}

// SplitLines returns the non-empty trimmed lines of text
func SplitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// isAbbreviation reports whether the text before a period ends with a known abbreviation
func isAbbreviation(before string) bool {
	idx := strings.LastIndexFunc(before, func(r rune) bool {
		return unicode.IsSpace(r) || r == '('
	})
	word := strings.ToLower(before[idx+1:])
	if word == "" {
		return false
	}
	// Single letters are initials ("J. Smith")
	if len(word) == 1 && unicode.IsLetter(rune(word[0])) {
		return true
	}
	return abbreviations[word]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// CollapseSpace trims text and collapses runs of whitespace to one space
func CollapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
