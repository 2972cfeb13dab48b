// Package lexical scores textual similarity between a query and an asset's
// search text: trigram similarity compatible with Postgres pg_trgm, the
// substring fallback used when trigram matching finds nothing, and a bleve
// index that narrows trigram candidates for the embedded store.
package lexical

import (
	"sort"
	"strings"
	"unicode"
)

// DefaultThreshold is pg_trgm's default similarity threshold for the % operator.
const DefaultThreshold = 0.3

// Trigrams returns the sorted, de-duplicated trigram set of s. Words are
// maximal runs of letters and digits, lowercased, padded with two leading
// spaces and one trailing space, as pg_trgm does.
func Trigrams(s string) []string {
	set := trigramSet(s)
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func trigramSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, word := range words(s) {
		padded := []rune("  " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Similarity returns |A∩B| / |A∪B| over the trigram sets of a and b, in [0,1].
// Either side having no trigrams yields 0.
func Similarity(a, b string) float64 {
	return similarity(trigramSet(a), trigramSet(b))
}

func similarity(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(a) > len(b) {
		a, b = b, a
	}
	common := 0
	for t := range a {
		if _, ok := b[t]; ok {
			common++
		}
	}
	return float64(common) / float64(len(a)+len(b)-common)
}

// Matcher scores many records against one query without recomputing the
// query's trigram set.
type Matcher struct {
	query     map[string]struct{}
	threshold float64
}

// NewMatcher prepares query for scoring. A threshold <= 0 uses DefaultThreshold.
func NewMatcher(query string, threshold float64) *Matcher {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Matcher{query: trigramSet(query), threshold: threshold}
}

// Score returns the trigram similarity of text to the query.
func (m *Matcher) Score(text string) float64 {
	return similarity(m.query, trigramSet(text))
}

// Matches reports whether score reaches the threshold (the % operator).
func (m *Matcher) Matches(score float64) bool {
	return score >= m.threshold
}

// Empty reports whether the query has no trigrams and so can match nothing.
func (m *Matcher) Empty() bool {
	return len(m.query) == 0
}
