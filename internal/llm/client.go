// Package llm talks to an OpenAI-compatible chat completion service.
package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	DefaultModel       = openai.GPT3Dot5Turbo
	DefaultMaxTokens   = 250
	DefaultTemperature = 0.7
)

// Config describes how to reach the completion service. An empty BaseURL
// means the OpenAI API.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Client sends completion requests. It never retries.
type Client struct {
	client *openai.Client
	model  string
	hasKey bool
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	conf := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		conf.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{
		client: openai.NewClientWithConfig(conf),
		model:  model,
		hasKey: cfg.APIKey != "",
	}
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// Complete returns the assistant text for req. Every failure is an
// *ExternalServiceError.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.hasKey {
		return "", &ExternalServiceError{Op: "chat", Err: ErrNoAPIKey}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.User})

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: float32(req.Temperature),
	})
	if err != nil {
		return "", wrapError("chat", err)
	}
	if len(resp.Choices) == 0 {
		return "", &ExternalServiceError{Op: "chat", Err: errors.New("no choices returned")}
	}

	slog.Debug("completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// Ping lists the available models to check reachability and credentials.
func (c *Client) Ping(ctx context.Context) (int, error) {
	if !c.hasKey {
		return 0, &ExternalServiceError{Op: "list models", Err: ErrNoAPIKey}
	}
	list, err := c.client.ListModels(ctx)
	if err != nil {
		return 0, wrapError("list models", err)
	}
	return len(list.Models), nil
}

func wrapError(op string, err error) *ExternalServiceError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ExternalServiceError{Op: op, Status: apiErr.HTTPStatusCode, Err: errors.New(apiErr.Message)}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		inner := reqErr.Err
		if inner == nil {
			inner = err
		}
		return &ExternalServiceError{Op: op, Status: reqErr.HTTPStatusCode, Err: inner}
	}
	return &ExternalServiceError{Op: op, Err: err}
}
