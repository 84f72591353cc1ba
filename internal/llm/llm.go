// Package llm talks to the hosted language models that write contracts and
// routine bodies.
package llm

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"eiffel-lsp/internal/errors"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks for JSON matching Schema. A nil format means free text.
type ResponseFormat struct {
	Name   string          `json:"name"`
	Schema json.RawMessage `json:"schema"`
}

// Request is one completion call. Zero Temperature and MaxTokens fall back
// to the client's configured values.
type Request struct {
	Messages    []Message
	Format      *ResponseFormat
	Temperature float64
	MaxTokens   int
}

// Response carries the candidate texts, best first.
type Response struct {
	Candidates []string
}

// Text returns the first candidate, or "" when there is none.
func (r *Response) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0]
}

// Client is one provider connection.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// Generator is what callers depend on: anything that completes requests.
type Generator interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Options configures a provider client and its retry wrapper.
type Options struct {
	Provider          string
	Model             string
	Mode              string
	Temperature       float64
	MaxTokens         int
	APIKey            string
	BaseURL           string
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerMinute int
}

// New builds the provider client named by opts.Provider, wrapped with
// retries, a per-call timeout and rate limiting.
func New(opts Options, logger *slog.Logger) (*Retrying, error) {
	var (
		client Client
		err    error
	)
	switch opts.Provider {
	case "", ProviderGemini:
		client, err = NewGemini(GeminiOptions{
			BaseURL:     opts.BaseURL,
			Model:       opts.Model,
			Mode:        opts.Mode,
			APIKey:      opts.APIKey,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
	case ProviderOpenAI:
		client, err = NewOpenAI(OpenAIOptions{
			BaseURL:     opts.BaseURL,
			Model:       opts.Model,
			APIKey:      opts.APIKey,
			Temperature: opts.Temperature,
			MaxTokens:   opts.MaxTokens,
		})
	default:
		return nil, errors.Newf(errors.ConfigError, "unknown llm provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}
	return NewRetrying(client, RetryOptions{
		MaxRetries:        opts.MaxRetries,
		Timeout:           opts.Timeout,
		RequestsPerMinute: opts.RequestsPerMinute,
		Logger:            logger,
	}), nil
}
