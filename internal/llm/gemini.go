package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/version"
)

// Gemini models and call modes.
const (
	GeminiFlash = "gemini-1.5-flash"
	GeminiPro   = "gemini-1.5-pro"

	ModeGenerate = "generateContent"
	ModeStream   = "streamGenerateContent"

	defaultGeminiURL = "https://generativelanguage.googleapis.com"
)

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	BaseURL     string
	Model       string
	Mode        string
	APIKey      string
	Temperature float64
	MaxTokens   int
	HTTPClient  *http.Client
}

// GeminiClient calls the Generative Language REST API.
type GeminiClient struct {
	hc          *http.Client
	baseURL     string
	model       string
	mode        string
	apiKey      string
	temperature float64
	maxTokens   int
}

// NewGemini validates opts and builds a client. The API key is required.
func NewGemini(opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, errors.New(errors.LLMError, "gemini: missing api key", nil)
	}
	if opts.BaseURL == "" {
		opts.BaseURL = defaultGeminiURL
	}
	if opts.Model == "" {
		opts.Model = GeminiFlash
	}
	switch opts.Mode {
	case "":
		opts.Mode = ModeGenerate
	case ModeGenerate, ModeStream:
	default:
		return nil, errors.Newf(errors.ConfigError, "gemini: unknown mode %q", opts.Mode)
	}
	hc := opts.HTTPClient
	if hc == nil {
		// Per-call deadlines come from the context.
		hc = &http.Client{}
	}
	return &GeminiClient{
		hc:          hc,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		model:       opts.Model,
		mode:        opts.Mode,
		apiKey:      opts.APIKey,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// Model implements Client.
func (c *GeminiClient) Model() string { return c.model }

type gmPart struct {
	Text string `json:"text"`
}

type gmContent struct {
	Role  string   `json:"role,omitempty"`
	Parts []gmPart `json:"parts"`
}

type gmGenerationConfig struct {
	ResponseMIMEType string          `json:"response_mime_type,omitempty"`
	ResponseSchema   json.RawMessage `json:"response_schema,omitempty"`
	Temperature      *float64        `json:"temperature,omitempty"`
	MaxOutputTokens  int             `json:"maxOutputTokens,omitempty"`
}

type gmRequest struct {
	Contents         []gmContent         `json:"contents"`
	GenerationConfig *gmGenerationConfig `json:"generationConfig,omitempty"`
}

type gmResponse struct {
	Candidates []struct {
		Index   int `json:"index"`
		Content struct {
			Parts []gmPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// StatusError is a non-2xx answer from a provider.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.Status, e.Body)
}

// Retryable reports whether the status is worth another try: rate limits,
// request timeouts and server errors.
func (e *StatusError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status == http.StatusRequestTimeout || e.Status/100 == 5
}

// geminiRole maps chat roles onto Gemini's user/model pair.
func geminiRole(r Role) string {
	if r == RoleAssistant {
		return "model"
	}
	return "user"
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Response, error) {
	body, err := c.encode(req)
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(fmt.Sprintf("%s/v1beta/models/%s:%s", c.baseURL, url.PathEscape(c.model), c.mode))
	if err != nil {
		return nil, errors.New(errors.ConfigError, "gemini: invalid url", err)
	}
	q := u.Query()
	q.Set("key", c.apiKey)
	if c.mode == ModeStream {
		q.Set("alt", "sse")
	}
	u.RawQuery = q.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		slurp, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(slurp))}
	}
	if c.mode == ModeStream {
		return decodeStream(resp.Body)
	}

	var gr gmResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("gemini: decode response: %w", err)
	}
	return collect([]gmResponse{gr})
}

func (c *GeminiClient) encode(req Request) ([]byte, error) {
	gr := gmRequest{Contents: make([]gmContent, 0, len(req.Messages))}
	for _, m := range req.Messages {
		gr.Contents = append(gr.Contents, gmContent{Role: geminiRole(m.Role), Parts: []gmPart{{Text: m.Content}}})
	}

	cfg := &gmGenerationConfig{MaxOutputTokens: c.maxTokens}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	temp := c.temperature
	if req.Temperature != 0 {
		temp = req.Temperature
	}
	if temp != 0 {
		cfg.Temperature = &temp
	}
	if req.Format != nil {
		schema, err := geminiSchema(req.Format.Schema)
		if err != nil {
			return nil, errors.New(errors.InternalError, "gemini: invalid response schema", err)
		}
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = schema
	}
	if cfg.MaxOutputTokens != 0 || cfg.Temperature != nil || cfg.ResponseSchema != nil {
		gr.GenerationConfig = cfg
	}
	return json.Marshal(&gr)
}

// geminiSchema drops the keywords the Gemini schema dialect rejects.
func geminiSchema(raw json.RawMessage) (json.RawMessage, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return json.Marshal(stripUnsupported(v))
}

func stripUnsupported(v any) any {
	switch t := v.(type) {
	case map[string]any:
		delete(t, "additionalProperties")
		delete(t, "$schema")
		for k, sub := range t {
			t[k] = stripUnsupported(sub)
		}
		return t
	case []any:
		for i := range t {
			t[i] = stripUnsupported(t[i])
		}
		return t
	default:
		return v
	}
}

// decodeStream reads `data: {...}` server-sent events and concatenates the
// text of each candidate.
func decodeStream(r io.Reader) (*Response, error) {
	var chunks []gmResponse
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		var chunk gmResponse
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &chunk); err != nil {
			return nil, fmt.Errorf("gemini: decode stream chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return collect(chunks)
}

func collect(chunks []gmResponse) (*Response, error) {
	var texts []string
	for _, chunk := range chunks {
		for _, cand := range chunk.Candidates {
			for len(texts) <= cand.Index {
				texts = append(texts, "")
			}
			for _, p := range cand.Content.Parts {
				texts[cand.Index] += p.Text
			}
		}
	}
	resp := &Response{}
	for _, s := range texts {
		if s != "" {
			resp.Candidates = append(resp.Candidates, s)
		}
	}
	if len(resp.Candidates) == 0 {
		return nil, errors.New(errors.LLMError, "gemini: response has no candidates", nil)
	}
	return resp, nil
}
