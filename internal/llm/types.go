package llm

import (
	"context"
	"errors"
	"fmt"
)

// Request is a single-turn completion: a system prompt and one user message.
type Request struct {
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// ExternalServiceError wraps any failure of the completion service. Status
// is the HTTP status when one was received, otherwise 0.
type ExternalServiceError struct {
	Op     string
	Status int
	Err    error
}

func (e *ExternalServiceError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("completion service %s failed (HTTP %d): %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("completion service %s failed: %v", e.Op, e.Err)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *ExternalServiceError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Auth reports whether the service rejected the credentials.
func (e *ExternalServiceError) Auth() bool {
	return e.Status == 401 || e.Status == 403 || errors.Is(e.Err, ErrNoAPIKey)
}

// ErrNoAPIKey is wrapped in an ExternalServiceError when no key is configured.
var ErrNoAPIKey = errors.New("no API key configured")
