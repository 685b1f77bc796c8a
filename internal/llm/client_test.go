package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

const completionJSON = `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-3.5-turbo",
"choices":[{"index":0,"message":{"role":"assistant","content":"  Hello there!  "},"finish_reason":"stop"}],
"usage":{"prompt_tokens":10,"completion_tokens":3,"total_tokens":13}}`

func TestComplete_SendsPromptAndParams(t *testing.T) {
	var got struct {
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float64 `json:"temperature"`
		Messages    []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q, want /v1/chat/completions", r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, completionJSON)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"})
	text, err := c.Complete(context.Background(), Request{
		System:      "You are a helpful personal assistant.\n",
		User:        "hi",
		MaxTokens:   250,
		Temperature: 0.7,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if text != "Hello there!" {
		t.Errorf("text = %q, want %q", text, "Hello there!")
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want %q", auth, "Bearer sk-test")
	}
	if got.Model != DefaultModel {
		t.Errorf("model = %q, want %q", got.Model, DefaultModel)
	}
	if got.MaxTokens != 250 {
		t.Errorf("max_tokens = %d, want 250", got.MaxTokens)
	}
	if got.Temperature < 0.69 || got.Temperature > 0.71 {
		t.Errorf("temperature = %v, want 0.7", got.Temperature)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "hi" {
		t.Errorf("messages = %+v", got.Messages)
	}
}

func TestComplete_NoAPIKey(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{User: "hi"})

	var ese *ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("err = %v, want *ExternalServiceError", err)
	}
	if !ese.Auth() {
		t.Error("missing key should count as an auth failure")
	}
	if calls.Load() != 0 {
		t.Errorf("server called %d times, want 0", calls.Load())
	}
}

func TestComplete_Unauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "bad", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{User: "hi"})

	var ese *ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("err = %v, want *ExternalServiceError", err)
	}
	if ese.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", ese.Status)
	}
	if !ese.Auth() {
		t.Error("Auth() = false, want true")
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1 (no retries)", calls.Load())
	}
}

func TestComplete_ServerErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{User: "hi"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("server called %d times, want 1", calls.Load())
	}
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"x","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(context.Background(), Request{User: "hi"})

	var ese *ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("err = %v, want *ExternalServiceError", err)
	}
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Complete(ctx, Request{User: "hi"})

	var ese *ExternalServiceError
	if !errors.As(err, &ese) {
		t.Fatalf("err = %v, want *ExternalServiceError", err)
	}
	if !ese.Timeout() {
		t.Errorf("Timeout() = false for %v", err)
	}
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			t.Errorf("path = %q, want /models", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-3.5-turbo","object":"model"},{"id":"gpt-4","object":"model"}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4"})
	n, err := c.Ping(context.Background())
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if n != 2 {
		t.Errorf("models = %d, want 2", n)
	}
	if c.Model() != "gpt-4" {
		t.Errorf("Model() = %q, want gpt-4", c.Model())
	}
}
