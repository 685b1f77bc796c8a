package api

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRecovery_ReturnsInternalError(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
}

func TestRequestID_InContext(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFrom(r.Context())
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(seen) != 8 {
		t.Fatalf("request id = %q, want 8 chars", seen)
	}
	if rr.Header().Get("X-Request-ID") != seen {
		t.Errorf("header = %q, context = %q", rr.Header().Get("X-Request-ID"), seen)
	}
	if RequestIDFrom(context.Background()) != "" {
		t.Error("expected empty id outside a request")
	}
}

func TestRateLimit_Disabled(t *testing.T) {
	h := RateLimit(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 50; i++ {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, rr.Code)
		}
	}
}

func TestRateLimit_Burst(t *testing.T) {
	h := RateLimit(3)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	codes := make([]int, 4)
	for i := range codes {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = rr.Code
	}
	want := []int{200, 200, 200, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestBearerAuth_LogsRejections(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	h := RequestID(BearerAuth("secret", logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})))

	tests := []struct {
		auth   string
		want   int
		reason string
	}{
		{"", http.StatusUnauthorized, "missing token"},
		{"Basic secret", http.StatusUnauthorized, "not a bearer token"},
		{"Bearer nope", http.StatusUnauthorized, "token mismatch"},
		{"Bearer secret", http.StatusNoContent, ""},
	}
	for _, tt := range tests {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
		if tt.auth != "" {
			req.Header.Set("Authorization", tt.auth)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		if rr.Code != tt.want {
			t.Errorf("auth %q: status = %d, want %d", tt.auth, rr.Code, tt.want)
		}
		if tt.reason == "" {
			if buf.Len() != 0 {
				t.Errorf("auth %q: unexpected log %q", tt.auth, buf.String())
			}
			continue
		}
		logged := buf.String()
		if !strings.Contains(logged, tt.reason) {
			t.Errorf("auth %q: log %q lacks reason %q", tt.auth, logged, tt.reason)
		}
		if id := rr.Header().Get("X-Request-ID"); !strings.Contains(logged, "request_id="+id) {
			t.Errorf("auth %q: log %q lacks request id %q", tt.auth, logged, id)
		}
		if rr.Header().Get("WWW-Authenticate") == "" {
			t.Errorf("auth %q: missing WWW-Authenticate", tt.auth)
		}
	}
}

func TestBearerAuth_EmptyTokenRejectsAll(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := BearerAuth("", logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer ")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}
