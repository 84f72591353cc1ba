package slogutil

import (
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// Options describes where a process logs. Stdout is never a target: the
// language server speaks JSON-RPC on it.
type Options struct {
	Level slog.Level

	// Format is "text", "json" or "auto". Auto picks text on a terminal
	// and JSON otherwise.
	Format string

	// File, when set, receives a copy of every record.
	File       string
	MaxSize    string
	MaxBackups int

	// Stderr overrides os.Stderr, mainly for tests.
	Stderr io.Writer
}

// Setup builds the process logger described by opts. The returned closer
// releases the log file, if any, and is never nil.
func Setup(opts Options) (*slog.Logger, io.Closer, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var console slog.Handler
	if useJSON(opts.Format, stderr) {
		console = slog.NewJSONHandler(stderr, handlerOpts)
	} else {
		console = NewTextHandler(stderr, handlerOpts)
	}

	if opts.File == "" {
		return slog.New(console), nopCloser{}, nil
	}

	rf, err := OpenRotatingFile(opts.File, ParseSize(opts.MaxSize), opts.MaxBackups)
	if err != nil {
		return slog.New(console), nopCloser{}, err
	}
	file := NewTextHandler(rf, handlerOpts)
	return slog.New(fanout{console, file}), rf, nil
}

func useJSON(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return !isatty.IsTerminal(f.Fd()) && !isatty.IsCygwinTerminal(f.Fd())
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
