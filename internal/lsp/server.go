// Package lsp serves the Language Server Protocol on top of glsp. Symbols
// come from the workspace index; contract generation and repair run
// through internal/command and the job runner.
package lsp

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"
	glspserver "github.com/tliron/glsp/server"

	"eiffel-lsp/internal/command"
	"eiffel-lsp/internal/jobs"
	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/prompt"
	"eiffel-lsp/internal/repair"
)

// Workspace is the part of the class index the server reads.
type Workspace interface {
	command.Workspace
	prompt.Models
	SystemClasses() []*model.Class
	Reload(ctx context.Context, path string) (*model.Class, error)
}

// Deps are the components the server dispatches to. Runner may be nil, in
// which case the repair commands are rejected.
type Deps struct {
	Workspace Workspace
	Generator llm.Generator
	Prompts   *prompt.Builder
	Loop      *repair.Loop
	Runner    *jobs.Runner
}

// Info names the server in the initialize result.
type Info struct {
	Name    string
	Version string
}

// Server answers LSP requests on one connection.
type Server struct {
	handler protocol.Handler
	deps    Deps
	logger  *slog.Logger
	info    Info

	// ctx lives until RunStdio returns; background work runs under it.
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	reporters map[string]repair.ProgressFunc
	// tokens maps a progress token to the job it reports on.
	tokens map[string]string

	workDoneProgress atomic.Bool
	shutdown         atomic.Bool
	wg               sync.WaitGroup
}

// NewServer creates a server. Repair job handlers are registered on
// deps.Runner, which the caller starts and stops.
func NewServer(deps Deps, info Info, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:      deps,
		logger:    logger.With("component", "lsp"),
		info:      info,
		ctx:       ctx,
		cancel:    cancel,
		reporters: make(map[string]repair.ProgressFunc),
		tokens:    make(map[string]string),
	}
	s.handler = protocol.Handler{
		Initialize:                      s.initialize,
		Initialized:                     s.initialized,
		Shutdown:                        s.shutdownRequest,
		SetTrace:                        s.setTrace,
		CancelRequest:                   s.cancelRequest,
		WindowWorkDoneProgressCancel:    s.workDoneProgressCancel,
		TextDocumentDidOpen:             s.textDocumentDidOpen,
		TextDocumentDidChange:           s.textDocumentDidChange,
		TextDocumentDidClose:            s.textDocumentDidClose,
		TextDocumentDidSave:             s.textDocumentDidSave,
		TextDocumentHover:               s.textDocumentHover,
		TextDocumentDefinition:          s.textDocumentDefinition,
		TextDocumentDocumentSymbol:      s.textDocumentDocumentSymbol,
		TextDocumentCodeAction:          s.textDocumentCodeAction,
		WorkspaceSymbol:                 s.workspaceSymbol,
		WorkspaceExecuteCommand:         s.workspaceExecuteCommand,
		WorkspaceDidChangeConfiguration: s.workspaceDidChangeConfiguration,
	}
	if deps.Runner != nil {
		deps.Runner.Handle(jobs.FixRoutine, s.runRepair)
		deps.Runner.Handle(jobs.ClassWideFixes, s.runRepair)
	}
	return s
}

// Handler is the glsp dispatcher for this server.
func (s *Server) Handler() glsp.Handler {
	return &s.handler
}

// RunStdio serves the client on stdin and stdout until it exits or closes
// the stream.
func (s *Server) RunStdio() error {
	defer s.stop()
	s.logger.Info("LSP server started")
	err := glspserver.NewServer(&s.handler, s.info.Name, false).RunStdio()
	s.logger.Info("Client disconnected")
	return err
}

// stop cancels background work and waits for it. Running repair jobs are
// cancelled and revert their files.
func (s *Server) stop() {
	s.cancel()
	s.wg.Wait()
}

// goBackground runs fn on its own goroutine; stop waits for it.
func (s *Server) goBackground(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}
