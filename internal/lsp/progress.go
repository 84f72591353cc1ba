package lsp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/glsp"
	protocol "github.com/tliron/glsp/protocol_3_16"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/jobs"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/repair"
)

// progress streams one work done progress to the client. A nil token
// means the client cannot show progress and nothing is sent.
type progress struct {
	ctx    *glsp.Context
	token  *protocol.ProgressToken
	create bool

	mu    sync.Mutex
	begun bool
	ended bool
}

// newProgress uses the token the client sent with the request or, when the
// client supports it, a new one announced with workDoneProgress/create.
func (s *Server) newProgress(ctx *glsp.Context, clientToken *protocol.ProgressToken) *progress {
	if clientToken != nil {
		return &progress{ctx: ctx, token: clientToken}
	}
	if !s.workDoneProgress.Load() {
		return &progress{ctx: ctx}
	}
	return &progress{ctx: ctx, token: &protocol.ProgressToken{Value: uuid.NewString()}, create: true}
}

func tokenKey(t protocol.ProgressToken) string {
	return fmt.Sprint(t.Value)
}

func (p *progress) key() string {
	if p.token == nil {
		return ""
	}
	return tokenKey(*p.token)
}

// begin announces the progress. Reports sent before begin are dropped.
func (p *progress) begin(title string) {
	if p.token == nil {
		return
	}
	if p.create {
		var ignored any
		p.ctx.Call(protocol.ServerWindowWorkDoneProgressCreate, protocol.WorkDoneProgressCreateParams{Token: *p.token}, &ignored)
	}
	cancellable := true
	p.mu.Lock()
	defer p.mu.Unlock()
	p.send(protocol.WorkDoneProgressBegin{Kind: "begin", Title: title, Cancellable: &cancellable})
	p.begun = true
}

func (p *progress) report(rp repair.Progress) {
	msg := rp.Title()
	if rp.Message != "" && rp.Stage == repair.StagePrompting {
		msg += ": " + firstLine(rp.Message)
	}
	r := protocol.WorkDoneProgressReport{Kind: "report", Message: &msg}
	if rp.MaxAttempts > 0 {
		pct := protocol.UInteger(rp.Attempt * 100 / rp.MaxAttempts)
		r.Percentage = &pct
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.begun || p.ended {
		return
	}
	p.send(r)
}

func (p *progress) end(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.begun || p.ended {
		return
	}
	p.ended = true
	p.send(protocol.WorkDoneProgressEnd{Kind: "end", Message: &message})
}

func (p *progress) send(value any) {
	if p.token == nil {
		return
	}
	p.ctx.Notify(protocol.ServerProgress, protocol.ProgressParams{Token: *p.token, Value: value})
}

func firstLine(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return s[:i]
		}
	}
	return s
}

// startRepair submits req as a background job and returns once it is
// queued. Cancelling the job's progress cancels the job; the file is then
// back at its last verified content. A session that fails or gives up is
// reported with one window/showMessage.
func (s *Server) startRepair(ctx *glsp.Context, clientToken *protocol.ProgressToken, path string, req repair.Request) error {
	if s.deps.Runner == nil || s.deps.Loop == nil {
		return errors.New(errors.InvalidRequest, "repair commands are not available", nil)
	}

	job := jobs.NewJob(string(req.Class), string(req.Feature))
	if src, err := os.ReadFile(path); err == nil {
		if err := job.SetSnapshot(src); err != nil {
			s.logger.Warn("Failed to snapshot source", "path", path, "error", err)
		}
	}

	p := s.newProgress(ctx, clientToken)
	s.mu.Lock()
	s.reporters[job.ID] = p.report
	if k := p.key(); k != "" {
		s.tokens[k] = job.ID
	}
	s.mu.Unlock()

	if err := s.deps.Runner.Submit(job); err != nil {
		s.forget(job.ID, p)
		return errors.New(errors.InternalError, "cannot start repair", err)
	}
	s.logger.Info("Repair job queued", "jobId", job.ID, "target", job.Target())
	s.goBackground(func() { s.track(job, p) })
	return nil
}

func (s *Server) forget(jobID string, p *progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reporters, jobID)
	if k := p.key(); k != "" {
		delete(s.tokens, k)
	}
}

// track follows a submitted job to its end. Stopping the server cancels
// the job and waits for it to revert.
func (s *Server) track(job *jobs.Job, p *progress) {
	defer s.forget(job.ID, p)
	target := job.Target()
	p.begin("Repairing " + target)

	done, err := s.deps.Runner.Wait(s.ctx, job.ID)
	if err != nil {
		s.logger.Info("Cancelling repair job", "jobId", job.ID, "target", target)
		if cerr := s.deps.Runner.Cancel(job.ID); cerr != nil {
			s.logger.Debug("Cancel on shutdown", "jobId", job.ID, "error", cerr)
		}
		done, err = s.deps.Runner.Wait(context.Background(), job.ID)
		if err != nil {
			s.logger.Warn("Waiting for cancelled job failed", "jobId", job.ID, "error", err)
		}
	}
	if done == nil {
		p.end("failed")
		s.logger.Error("Repair job disappeared", "jobId", job.ID)
		return
	}

	outcome := decodeOutcome(done)
	switch done.Status {
	case jobs.Failed:
		p.end("failed")
		p.ctx.Notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
			Type:    protocol.MessageTypeError,
			Message: "Repair of " + target + " failed: " + done.Error,
		})
	case jobs.Cancelled:
		p.end(string(repair.StatusCancelled))
	default:
		p.end(string(outcome.Status))
		if outcome.Status == repair.StatusGaveUp {
			p.ctx.Notify(protocol.ServerWindowShowMessage, protocol.ShowMessageParams{
				Type:    protocol.MessageTypeWarning,
				Message: "Could not repair " + target + " after " + strconv.Itoa(outcome.Attempts) + " attempts",
			})
		}
	}
	s.logger.Info("Repair job finished", "jobId", job.ID, "target", target, "status", done.Status, "outcome", outcome.Status)
}

// workDoneProgressCancel cancels the repair job reporting on the token.
func (s *Server) workDoneProgressCancel(ctx *glsp.Context, params *protocol.WorkDoneProgressCancelParams) error {
	key := tokenKey(params.Token)
	s.mu.Lock()
	id, ok := s.tokens[key]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("Cancel for unknown progress", "token", key)
		return nil
	}
	s.logger.Info("Cancelling repair job", "jobId", id, "token", key)
	if err := s.deps.Runner.Cancel(id); err != nil {
		s.logger.Debug("Cancel refused", "jobId", id, "error", err)
	}
	return nil
}

func decodeOutcome(job *jobs.Job) repair.Outcome {
	var out repair.Outcome
	if job.Result != "" {
		_ = json.Unmarshal([]byte(job.Result), &out)
	}
	return out
}

// runRepair is the job handler for both repair job types.
func (s *Server) runRepair(ctx context.Context, job *jobs.Job, attempt func(int)) (any, error) {
	s.mu.Lock()
	report := s.reporters[job.ID]
	s.mu.Unlock()

	loop := s.deps.Loop.WithProgress(func(p repair.Progress) {
		attempt(p.Attempt)
		if report != nil {
			report(p)
		}
	})
	return loop.Run(ctx, repair.Request{
		Class:   model.ClassName(job.Class),
		Feature: model.FeatureName(job.Feature),
	})
}
