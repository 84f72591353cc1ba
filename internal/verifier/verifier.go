// Package verifier runs the external static verifier on a class or routine
// and classifies its outcome.
package verifier

import (
	"bytes"
	"context"
	stderrors "errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/metrics"
	"eiffel-lsp/internal/model"
)

const (
	// DefaultTimeout bounds a single verifier run.
	DefaultTimeout = 120 * time.Second

	// DefaultBanner prefixes every failure message. Fix prompts quote it verbatim.
	DefaultBanner = "AutoProof reported the following verification failures:\n"
)

// Target names what to verify: a routine when Feature is set, otherwise
// the whole class.
type Target struct {
	Class   model.ClassName
	Feature model.FeatureName
}

// String is the verifier argument, CLASS.feature or CLASS.
func (t Target) String() string {
	if t.Feature == "" {
		return string(t.Class)
	}
	return string(t.Class) + "." + string(t.Feature)
}

// Result is the classified outcome of a run that completed. Message is
// empty on success.
type Result struct {
	Success bool
	Message string
}

// Verifier is what the repair loop needs from a gateway.
type Verifier interface {
	Verify(ctx context.Context, target Target) (Result, error)
}

// Gateway invokes Command with the target as its only argument.
type Gateway struct {
	Command string
	Timeout time.Duration

	// SuccessMarker is a regular expression stdout must match on exit 0.
	// When empty, a successful run prints nothing at all.
	SuccessMarker string

	Banner string
	Logger *slog.Logger
}

// Verify runs the verifier. Exit status 1 and timeouts are failures; a
// missing binary, a signal or any other status is a VerifierError.
func (g *Gateway) Verify(ctx context.Context, target Target) (Result, error) {
	logger := g.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if g.Command == "" {
		return Result{}, errors.New(errors.VerifierError, "no verifier command configured", nil)
	}
	var marker *regexp.Regexp
	if g.SuccessMarker != "" {
		var err error
		if marker, err = regexp.Compile(g.SuccessMarker); err != nil {
			return Result{}, errors.New(errors.ConfigError, "invalid verifier success marker", err)
		}
	}
	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	banner := g.Banner
	if banner == "" {
		banner = DefaultBanner
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, g.Command, target.String())
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.Debug("Running verifier", "command", g.Command, "target", target.String(), "timeout", timeout.String())
	start := time.Now()
	err := cmd.Run()
	metrics.VerifierDuration.Observe(time.Since(start).Seconds())

	failure := func(reason string) Result {
		return Result{Message: banner + reason + stderr.String() + stdout.String()}
	}

	switch {
	case ctx.Err() != nil:
		metrics.VerifierRuns.WithLabelValues("cancelled").Inc()
		return Result{}, errors.New(errors.Cancelled, "verification of "+target.String()+" cancelled", ctx.Err())

	case runCtx.Err() == context.DeadlineExceeded:
		metrics.VerifierRuns.WithLabelValues("timeout").Inc()
		logger.Warn("Verifier timed out", "target", target.String(), "timeout", timeout.String())
		return failure("verification of " + target.String() + " timed out after " + timeout.String() + "\n"), nil

	case err == nil:
		if succeeded(marker, stdout.String(), stderr.String()) {
			metrics.VerifierRuns.WithLabelValues("success").Inc()
			return Result{Success: true}, nil
		}
		metrics.VerifierRuns.WithLabelValues("failure").Inc()
		return failure(""), nil
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		if exitErr.ExitCode() == 1 {
			metrics.VerifierRuns.WithLabelValues("failure").Inc()
			return failure(""), nil
		}
		metrics.VerifierRuns.WithLabelValues("error").Inc()
		return Result{}, errors.New(errors.VerifierError, "verifier exited abnormally: "+exitErr.String(), err).
			WithDetails(map[string]interface{}{
				"target": target.String(),
				"stderr": strings.TrimSpace(stderr.String()),
			})
	}

	metrics.VerifierRuns.WithLabelValues("error").Inc()
	if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) || stderrors.Is(err, fs.ErrPermission) {
		return Result{}, errors.New(errors.VerifierError, "verifier not runnable: "+g.Command, err)
	}
	return Result{}, errors.New(errors.VerifierError, "verifier failed to run", err)
}

func succeeded(marker *regexp.Regexp, stdout, stderr string) bool {
	if marker == nil {
		return strings.TrimSpace(stdout) == "" && strings.TrimSpace(stderr) == ""
	}
	return marker.MatchString(stdout)
}
