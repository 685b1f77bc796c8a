// Package history keeps the capped log of past exchanges and answers
// recency and keyword-relevance queries over it.
package history

import (
	"errors"
	"strings"
	"time"

	"github.com/kalambet/pal/internal/storage"
)

// DefaultMaxSize is the number of records kept when no cap is configured.
const DefaultMaxSize = 100

// DefaultDomain is stored for records without a domain.
const DefaultDomain = "general"

// DateLayout is the layout of Record.Date.
const DateLayout = "2006-01-02"

// ErrEmptyText is returned by Append when either side of the exchange is blank.
var ErrEmptyText = errors.New("user and assistant text must be non-empty")

// Record is one user/assistant exchange.
type Record struct {
	User               string            `json:"user"`
	Assistant          string            `json:"assistant"`
	Domain             string            `json:"domain"`
	Timestamp          storage.Timestamp `json:"timestamp"`
	Date               string            `json:"date"`
	UserWordCount      int               `json:"user_word_count"`
	AssistantWordCount int               `json:"assistant_word_count"`
}

// NewRecord builds a record stamped at now. Word counts are the number of
// whitespace-separated fields.
func NewRecord(user, assistant, domain string, now time.Time) Record {
	if domain == "" {
		domain = DefaultDomain
	}
	return Record{
		User:               user,
		Assistant:          assistant,
		Domain:             domain,
		Timestamp:          storage.NewTimestamp(now),
		Date:               now.Format(DateLayout),
		UserWordCount:      WordCount(user),
		AssistantWordCount: WordCount(assistant),
	}
}

// WordCount returns the number of whitespace-separated fields in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}

// wireRecord is the decoding shape: optional fields are pointers so that a
// missing or null value can be told apart from a zero one. The timestamp is
// kept raw so an unreadable one is replaced instead of failing the entry.
type wireRecord struct {
	User               string  `json:"user"`
	Assistant          string  `json:"assistant"`
	Domain             *string `json:"domain"`
	Timestamp          *string `json:"timestamp"`
	Date               *string `json:"date"`
	UserWordCount      *int    `json:"user_word_count"`
	AssistantWordCount *int    `json:"assistant_word_count"`
}

// backfill turns a decoded entry into a Record, filling missing fields with
// defaults relative to now.
func (w wireRecord) backfill(now time.Time) Record {
	r := Record{
		User:      w.User,
		Assistant: w.Assistant,
		Domain:    DefaultDomain,
		Timestamp: storage.NewTimestamp(now),
	}
	if w.Domain != nil && *w.Domain != "" {
		r.Domain = *w.Domain
	}
	if w.Timestamp != nil && *w.Timestamp != "" {
		if ts, err := storage.ParseTimestamp(*w.Timestamp); err == nil {
			r.Timestamp = storage.NewTimestamp(ts)
		}
	}
	if w.Date != nil {
		r.Date = *w.Date
	}
	if r.Date == "" {
		r.Date = now.Format(DateLayout)
	}
	if w.UserWordCount != nil {
		r.UserWordCount = *w.UserWordCount
	} else {
		r.UserWordCount = WordCount(r.User)
	}
	if w.AssistantWordCount != nil {
		r.AssistantWordCount = *w.AssistantWordCount
	} else {
		r.AssistantWordCount = WordCount(r.Assistant)
	}
	return r
}
