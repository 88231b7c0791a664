// Package relevance holds the lexical helpers shared by the source scorers.
package relevance

import (
	"math"
	"strings"
	"time"
	"unicode"
)

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "are": {}, "was": {}, "were": {},
	"been": {}, "being": {}, "have": {}, "has": {}, "had": {}, "does": {}, "did": {}, "will": {},
	"would": {}, "could": {}, "should": {}, "may": {}, "might": {}, "must": {}, "can": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "from": {}, "into": {}, "after": {},
	"der": {}, "die": {}, "das": {}, "und": {}, "mit": {}, "bei": {}, "von": {}, "ist": {},
	"nicht": {}, "eine": {}, "ein": {}, "auf": {}, "für": {},
}

const (
	minTermLength = 3
	maxTerms      = 10
)

// Tokenize lowercases the text and splits it on anything that is not a letter or digit.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}

	tokens := make([]string, 0, 16)
	var b strings.Builder
	for _, r := range s {
		r = unicode.ToLower(r)
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			tokens = append(tokens, b.String())
			b.Reset()
		}
	}
	if b.Len() > 0 {
		tokens = append(tokens, b.String())
	}
	return tokens
}

func TokenSet(s string) map[string]struct{} {
	tokens := Tokenize(s)
	out := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		out[token] = struct{}{}
	}
	return out
}

// ExtractTerms returns up to ten distinct alphabetic terms of at least three letters,
// without stop words, in first-seen order.
func ExtractTerms(text string) []string {
	seen := make(map[string]struct{}, 16)
	out := make([]string, 0, maxTerms)
	for _, token := range Tokenize(text) {
		if len([]rune(token)) < minTermLength || !isAlpha(token) {
			continue
		}
		if _, stop := stopWords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		out = append(out, token)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

// TermMatchRatio is the share of terms that occur as substrings of the lowercased text.
func TermMatchRatio(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	matches := 0
	for _, term := range terms {
		if term != "" && strings.Contains(lower, term) {
			matches++
		}
	}
	return float64(matches) / float64(len(terms))
}

// TokenOverlap is the share of query tokens present in the document tokens.
func TokenOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	matches := 0
	for token := range query {
		if _, ok := doc[token]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(query))
}

// PhraseRatio is the share of adjacent term pairs of the query found verbatim in the text.
func PhraseRatio(terms []string, text string) float64 {
	if len(terms) < 2 {
		return 0
	}
	lower := strings.ToLower(text)
	pairs := len(terms) - 1
	hits := 0
	for i := 0; i < pairs; i++ {
		if strings.Contains(lower, terms[i]+" "+terms[i+1]) {
			hits++
		}
	}
	return float64(hits) / float64(pairs)
}

// YearDecay is 1 for a record created now and falls linearly to 0 after a year.
func YearDecay(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	days := now.Sub(createdAt).Hours() / 24
	return math.Max(0, 1-days/365)
}

// AgeDays returns the whole number of days between createdAt and now.
func AgeDays(createdAt, now time.Time) int {
	if createdAt.IsZero() || now.Before(createdAt) {
		return 0
	}
	return int(now.Sub(createdAt).Hours() / 24)
}

// LengthBoost grows linearly with the text length up to max.
func LengthBoost(text string, per float64, max float64) float64 {
	if per <= 0 {
		return 0
	}
	return math.Min(float64(len([]rune(text)))/per, max)
}

func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

var departmentKeywords = []struct {
	department string
	keywords   []string
}{
	{"engineering", []string{"engineering", "entwicklung", "technik"}},
	{"quality", []string{"quality", "qualität", "qm"}},
	{"production", []string{"production", "produktion", "fertigung"}},
	{"supply chain", []string{"supply", "einkauf", "procurement", "lieferant"}},
	{"it", []string{"it", "software", "system"}},
}

// InferDepartment guesses the owning department from keyword tables, or returns "".
// Tables are checked in order and whole tokens are matched.
func InferDepartment(text string) string {
	tokens := TokenSet(text)
	if len(tokens) == 0 {
		return ""
	}
	for _, table := range departmentKeywords {
		for _, kw := range table.keywords {
			if _, ok := tokens[kw]; ok {
				return table.department
			}
		}
	}
	return ""
}
