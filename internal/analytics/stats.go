// Package analytics derives usage statistics, insights and exports from the
// conversation log. Every function is a single pass over the records.
package analytics

import (
	"sort"
	"time"

	"github.com/kalambet/pal/internal/history"
)

// Stats summarizes the log.
type Stats struct {
	TotalConversations int            `json:"total_conversations"`
	TotalWords         int            `json:"total_words"`
	Domains            map[string]int `json:"domains"`
	Dates              map[string]int `json:"dates"`
	LastChat           string         `json:"last_chat,omitempty"`
	AvgPerDay          float64        `json:"avg_per_day"`
}

// Summarize counts conversations, words, domains and active dates.
func Summarize(records []history.Record) Stats {
	s := Stats{
		TotalConversations: len(records),
		Domains:            make(map[string]int),
		Dates:              make(map[string]int),
	}
	for _, r := range records {
		s.TotalWords += r.UserWordCount + r.AssistantWordCount
		s.Domains[domainOf(r)]++
		s.Dates[r.Date]++
	}
	if n := len(records); n > 0 {
		s.LastChat = records[n-1].Date
		s.AvgPerDay = float64(n) / float64(len(s.Dates))
	}
	return s
}

// DomainCount is one row of a domain breakdown.
type DomainCount struct {
	Domain  string  `json:"domain"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Breakdown returns the domains ordered by count, most frequent first, with
// their share of all conversations. Equal counts are ordered by name.
func (s Stats) Breakdown() []DomainCount {
	out := make([]DomainCount, 0, len(s.Domains))
	for d, c := range s.Domains {
		var pct float64
		if s.TotalConversations > 0 {
			pct = float64(c) / float64(s.TotalConversations) * 100
		}
		out = append(out, DomainCount{Domain: d, Count: c, Percent: pct})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Domain < out[j].Domain
	})
	return out
}

// DailyActivity returns the last n active dates in ascending order.
func (s Stats) DailyActivity(n int) []DateCount {
	dates := make([]string, 0, len(s.Dates))
	for d := range s.Dates {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	if n > 0 && len(dates) > n {
		dates = dates[len(dates)-n:]
	}
	out := make([]DateCount, len(dates))
	for i, d := range dates {
		out[i] = DateCount{Date: d, Count: s.Dates[d]}
	}
	return out
}

// DateCount is the number of conversations on one date.
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// DateRange spans the first and last conversation timestamps.
type DateRange struct {
	FirstConversation string `json:"first_conversation"`
	LastConversation  string `json:"last_conversation"`
}

// Report is the downloadable usage statistics document.
type Report struct {
	ExportDate         string         `json:"export_date"`
	TotalConversations int            `json:"total_conversations"`
	DateRange          DateRange      `json:"date_range"`
	Domains            map[string]int `json:"domains"`
	DailyUsage         map[string]int `json:"daily_usage"`
}

// Export builds the usage report as of now.
func Export(records []history.Record, now time.Time) Report {
	r := Report{
		ExportDate:         now.Format(time.RFC3339),
		TotalConversations: len(records),
		Domains:            make(map[string]int),
		DailyUsage:         make(map[string]int),
	}

	var first, last time.Time
	for _, rec := range records {
		r.Domains[domainOf(rec)]++
		r.DailyUsage[rec.Date]++

		ts := rec.Timestamp.Time
		if ts.IsZero() {
			continue
		}
		if first.IsZero() || ts.Before(first) {
			first = ts
		}
		if last.IsZero() || ts.After(last) {
			last = ts
		}
	}
	if !first.IsZero() {
		r.DateRange.FirstConversation = first.Format(time.RFC3339)
		r.DateRange.LastConversation = last.Format(time.RFC3339)
	}
	return r
}

func domainOf(r history.Record) string {
	if r.Domain == "" {
		return history.DefaultDomain
	}
	return r.Domain
}
