package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrNotFound is returned when a requested document does not exist.
var ErrNotFound = errors.New("not found")

// Well-known document names.
const (
	ProfileDocument       = "profile"
	ConversationsDocument = "conversations"
)

// DocumentStore persists whole JSON documents by name. Every write replaces
// the previous document in a single step; readers never observe a partial one.
type DocumentStore interface {
	// GetDocument returns the stored body, or ErrNotFound.
	GetDocument(name string) ([]byte, error)
	// PutDocument replaces the document with body.
	PutDocument(name string, body []byte) error
	// DeleteDocument removes the document. Deleting a missing document is not an error.
	DeleteDocument(name string) error
}

// Backend is a DocumentStore that owns resources.
type Backend interface {
	DocumentStore
	io.Closer
}

// Backend kinds accepted by OpenBackend.
const (
	KindSQLite = "sqlite"
	KindJSON   = "json"
)

// OpenBackend opens the document backend of the given kind rooted at dataDir.
func OpenBackend(kind, dataDir string) (Backend, error) {
	switch kind {
	case "", KindSQLite:
		return Open(dataDir)
	case KindJSON:
		return OpenFileStore(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want %q or %q)", kind, KindSQLite, KindJSON)
	}
}

// naive layouts are what older data files contain: ISO-8601 without a zone.
var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp parses RFC 3339 timestamps and zone-less ISO-8601
// timestamps, the latter interpreted in local time.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// Timestamp is a time.Time that marshals as RFC 3339 and accepts the
// zone-less layout on input.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

// MarshalYAML writes the timestamp as an RFC 3339 string.
func (t Timestamp) MarshalYAML() (any, error) {
	if t.IsZero() {
		return "", nil
	}
	return t.Format(time.RFC3339Nano), nil
}

// UnmarshalYAML accepts the same layouts as UnmarshalJSON.
func (t *Timestamp) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}
