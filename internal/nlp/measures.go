package nlp

import (
	"regexp"
	"strconv"
	"strings"
)

// Quantity is a number with the unit that follows it ("2 days", "$48 million", "15%")
type Quantity struct {
	Value float64
	Unit  string
	Raw   string
}

var quantityRe = regexp.MustCompile(`(?i)([$€£])?\s?(\d+(?:,\d{3})*(?:\.\d+)?)(?:\s*(%|percent\b))?(?:[\s-]*(thousand|million|billion|trillion)\b)?(?:[\s-]*([a-zµ]+(?:/[a-z]+)?))?`)

// Quantities extracts every number that carries a unit. Bare numbers are
// skipped because they cannot be compared without knowing what they count.
func Quantities(text string) []Quantity {
	var out []Quantity
	for _, m := range quantityRe.FindAllStringSubmatchIndex(text, -1) {
		group := func(i int) string {
			if m[2*i] < 0 {
				return ""
			}
			return text[m[2*i]:m[2*i+1]]
		}

		// Skip digits glued to a preceding letter or digit run ("B12", "2024-03-01")
		if m[2] < 0 && m[4] > 0 {
			prev := text[m[4]-1]
			if isAlnum(prev) || prev == '-' || prev == '/' || prev == '.' {
				continue
			}
		}

		value, err := strconv.ParseFloat(strings.ReplaceAll(group(2), ",", ""), 64)
		if err != nil {
			continue
		}

		var unit []string
		if c := group(1); c != "" {
			unit = append(unit, c)
		}
		if group(3) != "" {
			unit = append(unit, "%")
		}
		if s := group(4); s != "" {
			unit = append(unit, strings.ToLower(s))
		}
		if w := strings.ToLower(group(5)); w != "" && !stopwords[w] && !IsCue(w) && !isMonth(w) {
			unit = append(unit, Stem(w))
		}
		if len(unit) == 0 {
			continue
		}

		out = append(out, Quantity{
			Value: value,
			Unit:  strings.Join(unit, " "),
			Raw:   strings.TrimSpace(text[m[0]:m[1]]),
		})
	}
	return out
}

// DateKind classifies a temporal reference
type DateKind string

const (
	DateMonth    DateKind = "month"
	DateWeekday  DateKind = "weekday"
	DateYear     DateKind = "year"
	DateISO      DateKind = "iso_date"
	DateRelative DateKind = "relative"
)

// DateMention is a temporal reference found in text
type DateMention struct {
	Kind  DateKind
	Value string
}

var (
	months = []string{"january", "february", "march", "april", "may", "june", "july",
		"august", "september", "october", "november", "december"}
	monthAbbrev = map[string]string{
		"Jan": "january", "Feb": "february", "Mar": "march", "Apr": "april",
		"Jun": "june", "Jul": "july", "Aug": "august", "Sep": "september",
		"Sept": "september", "Oct": "october", "Nov": "november", "Dec": "december",
	}
	weekdays = toSet("monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday")

	wordRe     = regexp.MustCompile(`[A-Za-z]+`)
	yearRe     = regexp.MustCompile(`\b(1[89]\d{2}|20\d{2})\b`)
	isoRe      = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	relativeRe = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow|tonight|last (?:night|week|month|year)|next (?:week|month|year)|this (?:morning|week|month|year))\b`)
)

// Dates extracts month, weekday, year, ISO date and relative-day references
func Dates(text string) []DateMention {
	var out []DateMention
	seen := map[DateMention]bool{}
	add := func(kind DateKind, value string) {
		d := DateMention{Kind: kind, Value: value}
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}

	for _, m := range isoRe.FindAllString(text, -1) {
		add(DateISO, m)
	}
	withoutISO := isoRe.ReplaceAllString(text, " ")

	for _, w := range wordRe.FindAllString(withoutISO, -1) {
		lower := strings.ToLower(w)
		switch {
		case weekdays[lower]:
			add(DateWeekday, lower)
		case isMonth(lower) && (lower != "may" || w == "May"):
			// lowercase "may" is the verb
			add(DateMonth, lower)
		case monthAbbrev[w] != "":
			add(DateMonth, monthAbbrev[w])
		}
	}

	for _, y := range yearRe.FindAllString(withoutISO, -1) {
		add(DateYear, y)
	}
	for _, r := range relativeRe.FindAllString(text, -1) {
		add(DateRelative, strings.ToLower(r))
	}
	return out
}

func isMonth(w string) bool {
	for _, m := range months {
		if w == m {
			return true
		}
	}
	return false
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
