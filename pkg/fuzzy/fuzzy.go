package fuzzy

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// LevenshteinDistance calculates the edit distance between two strings
// This measures how many single-character edits (insertions, deletions, or substitutions)
// are required to change one string into another
func LevenshteinDistance(s1, s2 string) int {
	s1 = Normalize(s1)
	s2 = Normalize(s2)

	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)
	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
	}
	for i := 0; i <= m; i++ {
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			d[i][j] = min3(
				d[i-1][j]+1,      // deletion
				d[i][j-1]+1,      // insertion
				d[i-1][j-1]+cost, // substitution
			)
		}
	}

	return d[m][n]
}

// Threshold is the typo tolerance for a query of the given length
func Threshold(query string) int {
	n := len([]rune(query))
	switch {
	case n <= 3:
		return 1
	case n >= 8:
		return 3
	default:
		return 2
	}
}

// FuzzyMatch checks if query fuzzy-matches text within a given threshold
// threshold is the maximum allowed edit distance
func FuzzyMatch(query, text string, threshold int) bool {
	query = Normalize(query)
	text = Normalize(text)
	if query == "" || text == "" {
		return false
	}

	if strings.Contains(text, query) {
		return true
	}

	for _, word := range strings.Fields(text) {
		if LevenshteinDistance(query, word) <= threshold {
			return true
		}
		if strings.HasPrefix(word, query) {
			return true
		}
	}

	// Check overall distance for short texts
	if len(text) < 50 {
		maxDistance := threshold + len(query)/5
		if LevenshteinDistance(query, text) <= maxDistance {
			return true
		}
	}

	return false
}

// Field is a searchable text with its relevance weight
type Field struct {
	Text   string
	Weight float64
}

// Score rates how well query matches the fields. Zero means no match.
// Exact substrings score the full weight (plus half again for a whole word),
// near words and prefixes score less.
func Score(query string, fields ...Field) float64 {
	query = Normalize(query)
	if query == "" {
		return 0
	}
	score := 0.0
	for _, f := range fields {
		text := Normalize(f.Text)
		if text == "" {
			continue
		}
		if strings.Contains(text, query) {
			score += f.Weight
			if containsWord(text, query) {
				score += f.Weight / 2
			}
			continue
		}
		for _, word := range strings.Fields(text) {
			if dist := LevenshteinDistance(query, word); dist <= Threshold(query) {
				score += f.Weight/2 - float64(dist)*f.Weight/8
			}
			if strings.HasPrefix(word, query) {
				score += f.Weight * 0.4
			}
		}
	}
	return score
}

// Ranked is an item with its score
type Ranked[T any] struct {
	Item  T
	Score float64
}

// Rank scores every item and returns the matching ones best first.
// limit <= 0 returns all matches.
func Rank[T any](query string, items []T, fields func(T) []Field, limit int) []Ranked[T] {
	var out []Ranked[T]
	for _, item := range items {
		if s := Score(query, fields(item)...); s > 0 {
			out = append(out, Ranked[T]{Item: item, Score: s})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func min3(a, b, c int) int {
	if a < b {
		if a < c {
			return a
		}
		return c
	}
	if b < c {
		return b
	}
	return c
}

var accentFolder = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases s, strips diacritics and collapses whitespace
func Normalize(s string) string {
	s = strings.ToLower(s)
	if folded, _, err := transform.String(accentFolder, s); err == nil {
		s = folded
	}
	// đ has no decomposition
	s = strings.ReplaceAll(s, "đ", "d")
	return strings.Join(strings.Fields(s), " ")
}

// containsWord checks if text contains query as a whole word
func containsWord(text, query string) bool {
	for _, word := range strings.Fields(text) {
		if word == query {
			return true
		}
	}
	return false
}
