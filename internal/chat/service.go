// Package chat answers a user message with the profile and conversation
// memory folded into the system prompt, then records the exchange.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/pal/internal/composer"
	"github.com/kalambet/pal/internal/domain"
	"github.com/kalambet/pal/internal/history"
	"github.com/kalambet/pal/internal/llm"
	"github.com/kalambet/pal/internal/profile"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultRelevantResults = 2
	DefaultRecentResults   = 3
)

// ErrEmptyMessage is returned when the message is blank.
var ErrEmptyMessage = errors.New("message must not be empty")

// ProfileLoader is satisfied by *profile.Manager.
type ProfileLoader interface {
	Load() (*profile.Profile, error)
}

// Memory is satisfied by *history.Log.
type Memory interface {
	LoadAll() ([]history.Record, error)
	Append(user, assistant, domain string) (history.Record, error)
}

// Completer is satisfied by *llm.Client.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
}

// Options tune a Service. Zero values mean the defaults.
type Options struct {
	Timeout         time.Duration
	RelevantResults int
	RecentResults   int
}

// Reply is the outcome of a successful exchange. Saved is false when the
// exchange could not be written to the log.
type Reply struct {
	Response  string        `json:"response"`
	Domain    domain.Domain `json:"domain"`
	Timestamp time.Time     `json:"timestamp"`
	Saved     bool          `json:"saved"`
}

// Service runs one exchange at a time per call; it holds no state between calls.
type Service struct {
	profiles  ProfileLoader
	memory    Memory
	completer Completer
	composer  *composer.Composer
	opts      Options
	now       func() time.Time
}

// NewService wires a Service.
func NewService(profiles ProfileLoader, memory Memory, completer Completer, comp *composer.Composer, opts Options) *Service {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.RelevantResults <= 0 {
		opts.RelevantResults = DefaultRelevantResults
	}
	if opts.RecentResults <= 0 {
		opts.RecentResults = DefaultRecentResults
	}
	return &Service{
		profiles:  profiles,
		memory:    memory,
		completer: completer,
		composer:  comp,
		opts:      opts,
		now:       time.Now,
	}
}

// Respond answers message. A non-nil override replaces the stored profile for
// this call. A completion failure is returned as an *llm.ExternalServiceError
// and nothing is recorded.
func (s *Service) Respond(ctx context.Context, message string, override *profile.Profile) (Reply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return Reply{}, ErrEmptyMessage
	}

	p := override
	if p == nil {
		loaded, err := s.profiles.Load()
		if err != nil {
			slog.Warn("chat: profile unavailable, answering without it", "error", err)
		}
		p = loaded
	}

	records, err := s.memory.LoadAll()
	if err != nil {
		slog.Warn("chat: conversation log unavailable, answering without memory", "error", err)
		records = nil
	}
	relevant := history.Relevant(records, message, s.opts.RelevantResults)
	recent := history.Recent(records, s.opts.RecentResults)

	req := s.composer.Compose(message, p, relevant, recent)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	start := time.Now()
	text, err := s.completer.Complete(callCtx, req)
	if err != nil {
		slog.Warn("chat: completion failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		var ese *llm.ExternalServiceError
		if !errors.As(err, &ese) {
			err = &llm.ExternalServiceError{Op: "chat", Err: err}
		}
		return Reply{}, err
	}

	reply := Reply{
		Response:  text,
		Domain:    domain.Classify(message),
		Timestamp: s.now(),
		Saved:     true,
	}
	if _, err := s.memory.Append(message, text, string(reply.Domain)); err != nil {
		slog.Warn("chat: failed to record exchange", "error", err)
		reply.Saved = false
	}

	slog.Debug("chat: exchange complete",
		"domain", reply.Domain,
		"relevant", len(relevant),
		"recent", len(recent),
		"has_profile", p != nil,
	)
	return reply, nil
}
