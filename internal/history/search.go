package history

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// minTokenLen is the shortest query token that takes part in scoring.
const minTokenLen = 3

// Recent returns the tail of records holding clamp(n, 1, len) entries.
func Recent(records []Record, n int) []Record {
	if len(records) == 0 {
		return []Record{}
	}
	n = clamp(n, 1, len(records))
	out := make([]Record, n)
	copy(out, records[len(records)-n:])
	return out
}

// Relevant scores each record by the share of query tokens found as
// substrings of its normalized text. Repeated tokens count at every position and returns the best matches. Records
// scoring zero are never returned; equal scores keep log order.
func Relevant(records []Record, query string, maxResults int) []Record {
	tokens := queryTokens(query)
	if len(tokens) == 0 {
		return []Record{}
	}

	type scored struct {
		rec   Record
		score float64
	}
	var matches []scored
	for _, r := range records {
		text := normalize(r.User + " " + r.Assistant)
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		matches = append(matches, scored{rec: r, score: float64(matched) / float64(len(tokens))})
	}
	if len(matches) == 0 {
		return []Record{}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].score > matches[j].score
	})

	n := clamp(maxResults, 1, len(matches))
	out := make([]Record, n)
	for i := range out {
		out[i] = matches[i].rec
	}
	return out
}

// queryTokens normalizes q and returns its tokens of at least minTokenLen
// runes, in query order.
func queryTokens(q string) []string {
	var tokens []string
	for _, f := range strings.Fields(normalize(q)) {
		if utf8.RuneCountInString(f) < minTokenLen {
			continue
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// normalize lower-cases s and drops every rune that is neither a word
// character (letter, digit, underscore) nor whitespace.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
