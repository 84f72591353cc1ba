package llm

import (
	"context"
	"log/slog"
	"sync"

	"eiffel-lsp/internal/errors"
)

// Generators is the server's set of configured clients. Requests go to the
// first one; clients are added when configuration arrives.
type Generators struct {
	mu      sync.RWMutex
	clients []Client
}

// Add registers a ready client.
func (g *Generators) Add(c Client) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clients = append(g.clients, c)
}

// AddNew builds a client from opts and registers it.
func (g *Generators) AddNew(opts Options, logger *slog.Logger) error {
	c, err := New(opts, logger)
	if err != nil {
		return err
	}
	g.Add(c)
	return nil
}

// Len returns the number of registered clients.
func (g *Generators) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// Complete sends req to the first registered client.
func (g *Generators) Complete(ctx context.Context, req Request) (*Response, error) {
	g.mu.RLock()
	var c Client
	if len(g.clients) > 0 {
		c = g.clients[0]
	}
	g.mu.RUnlock()

	if c == nil {
		return nil, errors.New(errors.LLMError, "no language model configured", nil)
	}
	return c.Complete(ctx, req)
}
