package analytics

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/kalambet/pal/internal/history"
)

var csvHeader = []string{
	"Conversation_ID", "Date", "Time", "Your_Message", "Assistant_Response",
	"Domain", "Your_Word_Count", "Response_Word_Count", "Timestamp_Full",
}

// WriteCSV writes one row per record, numbered from 1.
func WriteCSV(w io.Writer, records []history.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for i, r := range records {
		date, clock, full := r.Date, "", ""
		if ts := r.Timestamp.Time; !ts.IsZero() {
			date = ts.Format(history.DateLayout)
			clock = ts.Format(time.TimeOnly)
			full = ts.Format(time.RFC3339Nano)
		}
		row := []string{
			strconv.Itoa(i + 1),
			date,
			clock,
			r.User,
			r.Assistant,
			domainOf(r),
			strconv.Itoa(r.UserWordCount),
			strconv.Itoa(r.AssistantWordCount),
			full,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing CSV row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
