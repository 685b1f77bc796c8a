// Package domain assigns a topical category to a user message by weighted
// keyword matching. It performs no I/O.
package domain

import "strings"

// Domain is a topical category.
type Domain string

const (
	Work          Domain = "work"
	Family        Domain = "family"
	Entertainment Domain = "entertainment"
	Health        Domain = "health"
	Learning      Domain = "learning"
	Finance       Domain = "finance"
	General       Domain = "general"
)

const (
	keywordWeight  = 1.0
	wholeWordScore = 1.0 * keywordWeight
	substringScore = 0.7 * keywordWeight
)

type category struct {
	domain   Domain
	keywords []string
}

// categories is evaluated in order; on equal scores the earlier entry wins.
var categories = []category{
	{Work, []string{
		"work", "job", "meeting", "deadline", "project", "career", "office", "task",
		"productivity", "business", "colleague", "boss", "employee", "salary", "promotion",
	}},
	{Family, []string{
		"family", "kids", "children", "spouse", "parent", "home", "dinner", "birthday",
		"vacation", "husband", "wife", "mother", "father", "son", "daughter",
	}},
	{Entertainment, []string{
		"movie", "music", "game", "book", "netflix", "fun", "hobby", "watch", "read",
		"play", "entertainment", "show", "series", "film",
	}},
	{Health, []string{
		"health", "exercise", "fitness", "doctor", "medical", "diet", "workout",
		"medicine", "hospital", "symptoms", "sick", "wellness",
	}},
	{Learning, []string{
		"learn", "study", "education", "course", "skill", "tutorial", "how to", "teach",
		"school", "university", "training", "knowledge",
	}},
	{Finance, []string{
		"money", "budget", "finance", "investment", "savings", "bank", "loan", "credit",
		"debt", "financial", "income", "expense",
	}},
}

// Score is the keyword score of one domain.
type Score struct {
	Domain Domain  `json:"domain"`
	Score  float64 `json:"score"`
}

// Domains returns the classifiable domains in tie-break order, followed by General.
func Domains() []Domain {
	out := make([]Domain, 0, len(categories)+1)
	for _, c := range categories {
		out = append(out, c.domain)
	}
	return append(out, General)
}

// Scores returns the score of every domain in tie-break order. A keyword
// found as a whole word adds 1.0; one found only inside another word adds 0.7.
func Scores(message string) []Score {
	msg := strings.ToLower(message)
	padded := " " + msg + " "

	out := make([]Score, len(categories))
	for i, c := range categories {
		var total float64
		if msg != "" {
			for _, kw := range c.keywords {
				switch {
				case strings.Contains(padded, " "+kw+" "):
					total += wholeWordScore
				case strings.Contains(msg, kw):
					total += substringScore
				}
			}
		}
		out[i] = Score{Domain: c.domain, Score: total}
	}
	return out
}

// Classify returns the domain with the strictly highest positive score, or
// General when nothing matches.
func Classify(message string) Domain {
	best := General
	var bestScore float64
	for _, s := range Scores(message) {
		if s.Score > bestScore {
			best, bestScore = s.Domain, s.Score
		}
	}
	return best
}
