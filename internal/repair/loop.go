// Package repair drives the verify, prompt, rewrite cycle that fixes a
// routine (or every failing routine of a class) until the verifier accepts
// it or the attempt budget runs out.
package repair

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"strconv"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/fsutil"
	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/metrics"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/prompt"
	"eiffel-lsp/internal/verifier"
	"eiffel-lsp/internal/workspace"
)

// DefaultMaxAttempts is the number of LLM rewrites a session may try.
const DefaultMaxAttempts = 10

// Workspace is the part of the class index the loop uses.
type Workspace interface {
	prompt.Models
	Class(path string) (*model.Class, bool)
	Path(name model.ClassName) (string, bool)
	Reload(ctx context.Context, path string) (*model.Class, error)
	LockFile(path string) (unlock func())
}

// Status is how a session ended.
type Status string

const (
	StatusOK        Status = "ok"
	StatusGaveUp    Status = "gave_up"
	StatusCancelled Status = "cancelled"
)

// Request names the class to repair and, optionally, one of its routines.
// An empty Feature asks for a class-wide repair.
type Request struct {
	Class   model.ClassName
	Feature model.FeatureName
}

// Target is the verifier target of the request.
func (r Request) Target() verifier.Target {
	return verifier.Target{Class: r.Class, Feature: r.Feature}
}

// Outcome summarises a session. Iterations counts verifier calls, Attempts
// counts LLM rewrites and Reloads counts workspace reloads after a rewrite.
type Outcome struct {
	Status     Status `json:"status"`
	Iterations int    `json:"iterations"`
	Attempts   int    `json:"attempts"`
	Reloads    int    `json:"reloads"`

	// Counterexample is the last verifier failure message, if any.
	Counterexample string `json:"counterexample,omitempty"`
}

// Stage is the step a session is in when it reports progress.
type Stage string

const (
	StageVerifying Stage = "verifying"
	StagePrompting Stage = "prompting"
	StageRewriting Stage = "rewriting"
	StageRestoring Stage = "restoring"
	StageFinished  Stage = "finished"
)

// Progress is reported at each stage change.
type Progress struct {
	Stage       Stage
	Attempt     int
	MaxAttempts int
	Message     string
}

// ProgressFunc receives progress reports. It is called on the session's
// goroutine and must not block.
type ProgressFunc func(Progress)

// Options tunes a Loop.
type Options struct {
	MaxAttempts int
	Templates   prompt.Templates
	Progress    ProgressFunc
}

// Loop runs repair sessions. It is safe for concurrent use; sessions on the
// same file are serialised by the workspace file lock.
type Loop struct {
	ws          Workspace
	gen         llm.Generator
	verifier    verifier.Verifier
	parser      workspace.SourceParser
	prompts     *prompt.Builder
	logger      *slog.Logger
	maxAttempts int
	progress    ProgressFunc
}

// New creates a loop. A zero Options uses the default attempt budget and
// the built-in prompt templates.
func New(ws Workspace, gen llm.Generator, v verifier.Verifier, parser workspace.SourceParser, logger *slog.Logger, opts Options) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Templates == (prompt.Templates{}) {
		opts.Templates = prompt.DefaultTemplates()
	}
	return &Loop{
		ws:          ws,
		gen:         gen,
		verifier:    v,
		parser:      parser,
		prompts:     prompt.NewBuilder(ws, opts.Templates),
		logger:      logger.With("component", "repair"),
		maxAttempts: opts.MaxAttempts,
		progress:    opts.Progress,
	}
}

// WithProgress returns a copy of the loop reporting to fn.
func (l *Loop) WithProgress(fn ProgressFunc) *Loop {
	clone := *l
	clone.progress = fn
	return &clone
}

// Run repairs req until the verifier succeeds or MaxAttempts rewrites have
// failed. On GaveUp and Cancelled the file holds its last verified content
// (the initial content when nothing verified). A VerifierError restores the
// file and is returned as is.
func (l *Loop) Run(ctx context.Context, req Request) (Outcome, error) {
	path, ok := l.ws.Path(req.Class)
	if !ok {
		return Outcome{}, errors.Newf(errors.InvalidRequest, "class %s is not in the workspace", req.Class)
	}
	unlock := l.ws.LockFile(path)
	defer unlock()

	cls, ok := l.ws.Class(path)
	if !ok {
		return Outcome{}, errors.Newf(errors.InvalidRequest, "class %s has not been parsed", req.Class)
	}
	if req.Feature != "" {
		f, ok := cls.Feature(req.Feature)
		if !ok || !f.IsRoutine() {
			return Outcome{}, errors.Newf(errors.InvalidRequest, "%s is not a routine of %s", req.Feature, req.Class)
		}
		req.Feature = f.Name
	}

	initial, err := os.ReadFile(path)
	if err != nil {
		return Outcome{}, errors.New(errors.InternalError, "cannot read "+path, err)
	}

	s := &session{Loop: l, req: req, path: path, lastValid: initial}
	s.logger = l.logger.With("target", req.Target().String())
	s.logger.Info("Starting repair session", "path", path, "maxAttempts", l.maxAttempts)

	out, err := s.run(ctx)

	metrics.RepairSessions.WithLabelValues(string(out.Status)).Inc()
	metrics.RepairAttempts.Observe(float64(out.Attempts))
	s.report(StageFinished, string(out.Status))
	s.logger.Info("Repair session finished",
		"status", out.Status,
		"iterations", out.Iterations,
		"attempts", out.Attempts,
		"reloads", out.Reloads,
	)
	return out, err
}

type session struct {
	*Loop
	req       Request
	path      string
	lastValid []byte
	logger    *slog.Logger
	out       Outcome
}

func (s *session) run(ctx context.Context) (Outcome, error) {
	for {
		if err := ctx.Err(); err != nil {
			return s.cancel(err)
		}
		s.report(StageVerifying, "")
		res, err := s.verifier.Verify(ctx, s.req.Target())
		s.out.Iterations++
		if err != nil {
			if errors.Is(err, errors.Cancelled) {
				return s.cancel(err)
			}
			s.restore()
			s.out.Status = StatusGaveUp
			return s.out, err
		}

		if res.Success {
			if cur, err := os.ReadFile(s.path); err == nil {
				s.lastValid = cur
			}
			s.out.Status = StatusOK
			s.out.Counterexample = ""
			return s.out, nil
		}
		s.out.Counterexample = res.Message

		if s.out.Attempts >= s.maxAttempts {
			s.restore()
			s.out.Status = StatusGaveUp
			return s.out, nil
		}
		s.out.Attempts++

		if err := s.attempt(ctx, res.Message); err != nil {
			if errors.Is(err, errors.Cancelled) || ctx.Err() != nil {
				return s.cancel(err)
			}
			s.logger.Warn("Repair attempt failed", "attempt", s.out.Attempts, "error", err)
		}
	}
}

// attempt asks for new code, rewrites every candidate and reloads the file.
func (s *session) attempt(ctx context.Context, counterexample string) error {
	src, err := os.ReadFile(s.path)
	if err != nil {
		return errors.New(errors.RewriteError, "cannot read "+s.path, err)
	}
	cls, ok := s.ws.Class(s.path)
	if !ok {
		if cls, err = s.parser.ParseClass(ctx, s.path, src); err != nil {
			return err
		}
	}
	var feature *model.Feature
	if s.req.Feature != "" {
		if feature, ok = cls.Feature(s.req.Feature); !ok {
			return errors.Newf(errors.RewriteError, "%s disappeared from %s", s.req.Feature, cls.Name)
		}
	}

	s.report(StagePrompting, counterexample)
	p := s.prompts.Fix(cls, feature, string(src), counterexample)
	if err := ctx.Err(); err != nil {
		return errors.New(errors.Cancelled, "repair cancelled", err)
	}
	resp, err := s.gen.Complete(ctx, p.Request())
	if err != nil {
		return err
	}

	cands := candidates(cls, s.req.Feature, resp.Text())
	if len(cands) == 0 {
		return errors.New(errors.LLMError, "reply contains no usable code block", nil)
	}

	s.report(StageRewriting, "")
	done := map[string]bool{}
	var lastErr error
	for _, c := range cands {
		if done[c.feature.Key()] {
			continue
		}
		err := s.RewriteFeature(ctx, s.path, c.feature, c.code, s.lastValid)
		if cerr := ctx.Err(); cerr != nil {
			return errors.New(errors.Cancelled, "repair cancelled", cerr)
		}
		if err != nil {
			s.logger.Debug("Rejected candidate", "feature", c.feature, "error", err)
			lastErr = err
			continue
		}
		done[c.feature.Key()] = true
	}

	if _, err := s.ws.Reload(ctx, s.path); err != nil {
		s.logger.Warn("Reload after rewrite failed", "path", s.path, "error", err)
	}
	s.out.Reloads++

	if len(done) == 0 {
		return lastErr
	}
	return nil
}

// cancel restores the last verified content and reports cancellation.
func (s *session) cancel(cause error) (Outcome, error) {
	s.restore()
	s.out.Status = StatusCancelled
	if errors.Is(cause, errors.Cancelled) {
		return s.out, cause
	}
	return s.out, errors.New(errors.Cancelled, "repair cancelled", cause)
}

// restore writes lastValid back when the file differs and refreshes the
// index. It ignores the session context so that it also runs on cancel.
func (s *session) restore() {
	cur, err := os.ReadFile(s.path)
	if err == nil && bytes.Equal(cur, s.lastValid) {
		return
	}
	s.report(StageRestoring, "")
	if err := fsutil.WriteFileAtomic(s.path, s.lastValid); err != nil {
		s.logger.Error("Failed to restore file", "path", s.path, "error", err)
		return
	}
	if _, err := s.ws.Reload(context.Background(), s.path); err != nil {
		s.logger.Warn("Reload after restore failed", "path", s.path, "error", err)
	}
}

func (s *session) report(stage Stage, msg string) {
	if s.progress == nil {
		return
	}
	s.progress(Progress{Stage: stage, Attempt: s.out.Attempts, MaxAttempts: s.maxAttempts, Message: msg})
}

// Title is a short human label for progress UIs.
func (p Progress) Title() string {
	switch p.Stage {
	case StageVerifying:
		if p.Attempt == 0 {
			return "Verifying"
		}
		return "Verifying attempt " + strconv.Itoa(p.Attempt)
	case StagePrompting:
		return "Asking for a fix (" + strconv.Itoa(p.Attempt) + "/" + strconv.Itoa(p.MaxAttempts) + ")"
	case StageRewriting:
		return "Rewriting"
	case StageRestoring:
		return "Restoring last verified code"
	default:
		return "Finished"
	}
}
