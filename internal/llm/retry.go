package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/metrics"
)

// RetryOptions tunes Retrying.
type RetryOptions struct {
	// MaxRetries is the total number of attempts; 0 means 3.
	MaxRetries int
	// Timeout bounds each attempt; 0 means 60s.
	Timeout time.Duration
	// RequestsPerMinute limits call rate; 0 means unlimited.
	RequestsPerMinute int
	// InitialInterval is the first backoff delay; 0 uses the backoff default.
	InitialInterval time.Duration
	Logger          *slog.Logger
}

// Retrying wraps a Client with exponential backoff, a per-attempt timeout
// and a token-bucket rate limit.
type Retrying struct {
	client  Client
	opts    RetryOptions
	limiter *rate.Limiter
	logger  *slog.Logger
}

// errSchemaViolation marks a reply that should have been JSON and was not.
var errSchemaViolation = stderrors.New("reply does not match the requested JSON format")

// errAttemptTimeout marks an attempt that ran out its own deadline while
// the caller's context was still live.
var errAttemptTimeout = stderrors.New("llm call timed out")

// NewRetrying wraps client.
func NewRetrying(client Client, opts RetryOptions) *Retrying {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	limit := rate.Inf
	if opts.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RequestsPerMinute))
	}
	return &Retrying{
		client:  client,
		opts:    opts,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With("component", "llm", "model", client.Model()),
	}
}

// Model implements Client.
func (r *Retrying) Model() string { return r.client.Model() }

// Complete implements Client. The final error is CANCELLED when ctx ended,
// TIMEOUT when the last attempt timed out and LLM_ERROR otherwise.
func (r *Retrying) Complete(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	model := r.client.Model()

	op := func() (*Response, error) {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, backoff.Permanent(err)
		}
		callCtx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()

		resp, err := r.client.Complete(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			if callCtx.Err() != nil {
				return nil, errAttemptTimeout
			}
			if !Retryable(err) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if req.Format != nil && !json.Valid([]byte(resp.Text())) {
			return nil, errSchemaViolation
		}
		return resp, nil
	}

	b := backoff.NewExponentialBackOff()
	if r.opts.InitialInterval > 0 {
		b.InitialInterval = r.opts.InitialInterval
	}
	resp, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.MaxRetries)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.logger.Warn("Retrying LLM call", "error", err, "wait", wait)
		}),
	)
	metrics.LLMDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())

	if err == nil {
		metrics.LLMRequests.WithLabelValues(model, "ok").Inc()
		return resp, nil
	}
	switch {
	case ctx.Err() != nil:
		metrics.LLMRequests.WithLabelValues(model, "cancelled").Inc()
		return nil, errors.New(errors.Cancelled, "llm call cancelled", ctx.Err())
	case stderrors.Is(err, errAttemptTimeout):
		metrics.LLMRequests.WithLabelValues(model, "timeout").Inc()
		return nil, errors.New(errors.Timeout, "llm call timed out", err)
	default:
		metrics.LLMRequests.WithLabelValues(model, "error").Inc()
		return nil, errors.New(errors.LLMError, "llm call failed", err)
	}
}

// Retryable reports whether err is transient: network failures, timeouts,
// retryable HTTP statuses and malformed structured replies.
func Retryable(err error) bool {
	var status *StatusError
	if stderrors.As(err, &status) {
		return status.Retryable()
	}
	if stderrors.Is(err, errSchemaViolation) || stderrors.Is(err, errAttemptTimeout) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	if errors.KindOf(err) == errors.LLMError {
		// Empty candidate lists are transient.
		return true
	}
	return false
}
