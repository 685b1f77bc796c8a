package analytics

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/kalambet/pal/internal/history"
)

const (
	topWordsLimit    = 15
	topStartersLimit = 5
	evolutionWindow  = 5
	evolutionMinimum = 10
	minWordLen       = 4
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "but": true, "in": true,
	"on": true, "at": true, "to": true, "for": true, "of": true, "with": true, "by": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true, "have": true,
	"has": true, "had": true, "do": true, "does": true, "did": true, "will": true, "would": true,
	"could": true, "should": true, "may": true, "might": true, "can": true, "i": true, "you": true,
	"he": true, "she": true, "it": true, "we": true, "they": true, "me": true, "him": true,
	"her": true, "us": true, "them": true, "my": true, "your": true, "his": true, "hers": true,
	"its": true, "our": true, "their": true, "this": true, "that": true, "these": true, "those": true,
}

var questionStarters = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true, "who": true, "can": true,
	"could": true, "should": true, "would": true, "is": true, "are": true, "do": true, "does": true,
}

// WordCount is a word with its frequency.
type WordCount struct {
	Word  string `json:"word"`
	Count int    `json:"count"`
}

// Evolution compares the average user message length of the first and last
// five conversations.
type Evolution struct {
	FirstAvgWords float64 `json:"first_avg_words"`
	LastAvgWords  float64 `json:"last_avg_words"`
	Change        float64 `json:"change"`
}

// Insights describes how the user talks.
type Insights struct {
	TopWords           []WordCount `json:"top_words"`
	Questions          int         `json:"questions"`
	QuestionPercentage float64     `json:"question_percentage"`
	QuestionStarters   []WordCount `json:"question_starters"`
	Evolution          *Evolution  `json:"evolution,omitempty"`
	TopDomain          string      `json:"top_domain,omitempty"`
}

// Analyze computes insights over the user side of the log. Evolution is
// only set with at least ten records.
func Analyze(records []history.Record) Insights {
	in := Insights{
		TopWords:         topWords(records),
		QuestionStarters: []WordCount{},
	}

	starters := newCounter()
	for _, r := range records {
		if !strings.Contains(r.User, "?") {
			continue
		}
		in.Questions++
		fields := strings.Fields(r.User)
		if len(fields) == 0 {
			continue
		}
		first := strings.TrimRight(strings.ToLower(fields[0]), "?,!.")
		if questionStarters[first] {
			starters.add(first)
		}
	}
	if len(records) > 0 {
		in.QuestionPercentage = float64(in.Questions) / float64(len(records)) * 100
	}
	in.QuestionStarters = starters.top(topStartersLimit)

	if len(records) >= evolutionMinimum {
		firstAvg := avgUserWords(records[:evolutionWindow])
		lastAvg := avgUserWords(records[len(records)-evolutionWindow:])
		in.Evolution = &Evolution{FirstAvgWords: firstAvg, LastAvgWords: lastAvg, Change: lastAvg - firstAvg}
	}

	if b := Summarize(records).Breakdown(); len(b) > 0 {
		in.TopDomain = b[0].Domain
	}
	return in
}

func topWords(records []history.Record) []WordCount {
	c := newCounter()
	for _, r := range records {
		for _, w := range strings.Fields(strings.ToLower(r.User)) {
			clean := strings.Map(func(r rune) rune {
				if unicode.IsLetter(r) {
					return r
				}
				return -1
			}, w)
			if utf8.RuneCountInString(clean) < minWordLen || stopWords[clean] {
				continue
			}
			c.add(clean)
		}
	}
	return c.top(topWordsLimit)
}

func avgUserWords(records []history.Record) float64 {
	total := 0
	for _, r := range records {
		total += history.WordCount(r.User)
	}
	return float64(total) / float64(len(records))
}

// counter counts occurrences and remembers first-seen order for tie-breaks.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(k string) {
	if _, ok := c.counts[k]; !ok {
		c.order = append(c.order, k)
	}
	c.counts[k]++
}

func (c *counter) top(n int) []WordCount {
	out := make([]WordCount, len(c.order))
	for i, k := range c.order {
		out[i] = WordCount{Word: k, Count: c.counts[k]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
