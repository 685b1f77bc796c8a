package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/pal/internal/schema"
	"github.com/kalambet/pal/internal/storage"
)

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Log is the persisted conversation log. Every call reads the document
// fresh; nothing is cached between calls.
type Log struct {
	store   storage.DocumentStore
	maxSize int
	clock   Clock

	mu sync.Mutex
}

// NewLog creates a Log over store keeping at most maxSize records.
// A non-positive maxSize means DefaultMaxSize.
func NewLog(store storage.DocumentStore, maxSize int) *Log {
	return NewLogWithClock(store, maxSize, realClock{})
}

// NewLogWithClock creates a Log with a custom clock (for testing).
func NewLogWithClock(store storage.DocumentStore, maxSize int, clock Clock) *Log {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Log{store: store, maxSize: maxSize, clock: clock}
}

// MaxSize returns the retention cap.
func (l *Log) MaxSize() int { return l.maxSize }

// Append records an exchange and drops the oldest records beyond the cap.
// The whole log is rewritten in one document write.
func (l *Log) Append(user, assistant, domain string) (Record, error) {
	user = strings.TrimSpace(user)
	assistant = strings.TrimSpace(assistant)
	if user == "" || assistant == "" {
		return Record{}, ErrEmptyText
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	records, err := l.loadAll()
	if err != nil {
		return Record{}, fmt.Errorf("reading conversation log: %w", err)
	}

	rec := NewRecord(user, assistant, domain, l.clock.Now())
	records = append(records, rec)
	if len(records) > l.maxSize {
		records = records[len(records)-l.maxSize:]
	}

	body, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return Record{}, fmt.Errorf("encoding conversation log: %w", err)
	}
	if err := l.store.PutDocument(storage.ConversationsDocument, body); err != nil {
		return Record{}, fmt.Errorf("writing conversation log: %w", err)
	}
	return rec, nil
}

// LoadAll returns every valid record in chronological order. A missing or
// malformed document yields an empty log; invalid entries are skipped.
func (l *Log) LoadAll() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loadAll()
}

func (l *Log) loadAll() ([]Record, error) {
	body, err := l.store.GetDocument(storage.ConversationsDocument)
	if errors.Is(err, storage.ErrNotFound) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeRecords(body, l.clock.Now()), nil
}

func decodeRecords(body []byte, now time.Time) []Record {
	var raw []json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		slog.Warn("conversation log is not a list, starting empty", "error", err)
		return []Record{}
	}

	records := make([]Record, 0, len(raw))
	dropped := 0
	for _, entry := range raw {
		var v any
		if err := json.Unmarshal(entry, &v); err != nil {
			dropped++
			continue
		}
		if err := schema.ValidateRecord(v); err != nil {
			dropped++
			continue
		}
		var w wireRecord
		if err := json.Unmarshal(entry, &w); err != nil {
			dropped++
			continue
		}
		records = append(records, w.backfill(now))
	}
	if dropped > 0 {
		slog.Warn("dropped invalid conversation records", "dropped", dropped, "kept", len(records))
	}
	return records
}

// Recent returns the last n records, oldest first. n is clamped to [1, len].
func (l *Log) Recent(n int) ([]Record, error) {
	records, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	return Recent(records, n), nil
}

// Relevant returns up to maxResults records ranked by keyword overlap with query.
func (l *Log) Relevant(query string, maxResults int) ([]Record, error) {
	records, err := l.LoadAll()
	if err != nil {
		return nil, err
	}
	return Relevant(records, query, maxResults), nil
}

// Clear removes the whole log.
func (l *Log) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.DeleteDocument(storage.ConversationsDocument); err != nil {
		return fmt.Errorf("clearing conversation log: %w", err)
	}
	return nil
}
