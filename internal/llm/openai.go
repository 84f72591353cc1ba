package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	eerrors "eiffel-lsp/internal/errors"
)

// OpenAIOptions configures an OpenAIClient. BaseURL points it at any
// OpenAI-compatible endpoint.
type OpenAIOptions struct {
	BaseURL     string
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
}

// OpenAIClient calls the chat completions API.
type OpenAIClient struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAI builds a client. The API key is required.
func NewOpenAI(opts OpenAIOptions) (*OpenAIClient, error) {
	if opts.APIKey == "" {
		return nil, eerrors.New(eerrors.LLMError, "openai: missing api key", nil)
	}
	if opts.Model == "" {
		opts.Model = openai.GPT4oMini
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAIClient{
		client:      openai.NewClientWithConfig(cfg),
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Model implements Client.
func (c *OpenAIClient) Model() string { return c.model }

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	creq := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(req.Messages)),
		Temperature: float32(c.temperature),
	}
	for _, m := range req.Messages {
		creq.Messages = append(creq.Messages, openai.ChatCompletionMessage{Role: openAIRole(m.Role), Content: m.Content})
	}
	if req.Temperature != 0 {
		creq.Temperature = float32(req.Temperature)
	}
	creq.MaxCompletionTokens = c.maxTokens
	if req.MaxTokens > 0 {
		creq.MaxCompletionTokens = req.MaxTokens
	}
	if req.Format != nil {
		creq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.Format.Name,
				Schema: req.Format.Schema,
				Strict: true,
			},
		}
	}

	resp, err := c.client.CreateChatCompletion(ctx, creq)
	if err != nil {
		return nil, classifyOpenAI(err)
	}
	out := &Response{}
	for _, choice := range resp.Choices {
		if choice.Message.Content != "" {
			out.Candidates = append(out.Candidates, choice.Message.Content)
		}
	}
	if len(out.Candidates) == 0 {
		return nil, eerrors.New(eerrors.LLMError, "openai: response has no choices", nil)
	}
	return out, nil
}

func openAIRole(r Role) string {
	switch r {
	case RoleSystem:
		return openai.ChatMessageRoleSystem
	case RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// classifyOpenAI surfaces HTTP statuses as StatusError so the retry policy
// treats both providers alike.
func classifyOpenAI(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return &StatusError{Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &StatusError{Status: reqErr.HTTPStatusCode, Body: reqErr.Error()}
	}
	return err
}
