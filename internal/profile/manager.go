package profile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
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

// Manager reads and writes the profile document. All operations are
// serialized; every read goes to the store.
type Manager struct {
	store storage.DocumentStore
	clock Clock

	mu sync.Mutex
}

// NewManager creates a Manager over store.
func NewManager(store storage.DocumentStore) *Manager {
	return &Manager{store: store, clock: realClock{}}
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store storage.DocumentStore, clock Clock) *Manager {
	return &Manager{store: store, clock: clock}
}

// Load returns the stored profile, or nil when none exists. A document that
// is not a valid profile yields nil and a *CorruptDataError.
func (m *Manager) Load() (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load()
}

func (m *Manager) load() (*Profile, error) {
	body, err := m.store.GetDocument(storage.ProfileDocument)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	if err := schema.ValidateProfile(body); err != nil {
		slog.Warn("stored profile is corrupt, treating as absent", "error", err)
		return nil, &CorruptDataError{Err: err}
	}
	var p Profile
	if err := json.Unmarshal(body, &p); err != nil {
		slog.Warn("stored profile is corrupt, treating as absent", "error", err)
		return nil, &CorruptDataError{Err: err}
	}
	if err := p.Validate(); err != nil {
		slog.Warn("stored profile is corrupt, treating as absent", "error", err)
		return nil, &CorruptDataError{Err: err}
	}
	return &p, nil
}

// Save validates p and replaces the stored profile with it. CreatedDate is
// kept from p, else from the stored profile, else set to now. UpdatedDate is
// always now.
func (m *Manager) Save(p Profile) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.save(p)
}

func (m *Manager) save(p Profile) (Profile, error) {
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}

	now := m.clock.Now()
	if p.CreatedDate.IsZero() {
		// A corrupt or unreadable previous document just loses its creation date.
		if prev, _ := m.load(); prev != nil && !prev.CreatedDate.IsZero() {
			p.CreatedDate = prev.CreatedDate
		} else {
			p.CreatedDate = storage.NewTimestamp(now)
		}
	}
	p.UpdatedDate = storage.NewTimestamp(now)
	if p.HelpAreas == nil {
		p.HelpAreas = []string{}
	}

	body, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return Profile{}, fmt.Errorf("encoding profile: %w", err)
	}
	if err := m.store.PutDocument(storage.ProfileDocument, body); err != nil {
		return Profile{}, fmt.Errorf("saving profile: %w", err)
	}
	return p, nil
}

// Delete removes the stored profile. Deleting an absent profile succeeds.
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.DeleteDocument(storage.ProfileDocument); err != nil {
		return fmt.Errorf("deleting profile: %w", err)
	}
	return nil
}

// Update merges fields into the stored profile (or an empty one) and saves
// the result. Keys are the JSON field names; help_areas takes a list or a
// comma-separated string.
func (m *Manager) Update(fields map[string]any) (Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var p Profile
	if cur, _ := m.load(); cur != nil {
		p = *cur
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var invalid []string
	for _, k := range keys {
		if err := setField(&p, k, fields[k]); err != nil {
			invalid = append(invalid, k)
		}
	}
	if len(invalid) > 0 {
		return Profile{}, &ValidationError{Invalid: invalid}
	}
	return m.save(p)
}

// FieldNames lists the keys Update accepts.
func FieldNames() []string {
	return []string{
		"name", "role", "work_area", "family_info", "interests",
		"communication_style", "help_areas", "work_hours",
	}
}

func setField(p *Profile, key string, value any) error {
	if key == "help_areas" {
		areas, err := toStringList(value)
		if err != nil {
			return err
		}
		p.HelpAreas = areas
		return nil
	}

	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("field %q wants a string, got %T", key, value)
	}
	switch key {
	case "name":
		p.Name = s
	case "role":
		p.Role = s
	case "work_area":
		p.WorkArea = s
	case "family_info":
		p.FamilyInfo = s
	case "interests":
		p.Interests = s
	case "communication_style":
		p.CommunicationStyle = s
	case "work_hours":
		p.WorkHours = s
	default:
		return fmt.Errorf("unknown field %q", key)
	}
	return nil
}

func toStringList(value any) ([]string, error) {
	switch v := value.(type) {
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if out == nil {
			out = []string{}
		}
		return out, nil
	case []string:
		return append([]string{}, v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("help_areas item has type %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("help_areas wants a list, got %T", value)
	}
}
