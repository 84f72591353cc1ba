package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"eiffel-lsp/internal/ecf"
	"eiffel-lsp/internal/errors"
)

// FileReport is the parse result of one source file.
type FileReport struct {
	Path       string `json:"path" yaml:"path"`
	Class      string `json:"class,omitempty" yaml:"class,omitempty"`
	Features   int    `json:"features" yaml:"features"`
	Routines   int    `json:"routines" yaml:"routines"`
	Error      string `json:"error,omitempty" yaml:"error,omitempty"`
	DurationMs int64  `json:"durationMs" yaml:"durationMs"`
}

// ParseReport summarises parsing every file of a system.
type ParseReport struct {
	System string       `json:"system" yaml:"system"`
	Files  []FileReport `json:"files" yaml:"files"`
	Parsed int          `json:"parsed" yaml:"parsed"`
	Failed int          `json:"failed" yaml:"failed"`
}

// Report formats accepted by ParseReport.Write.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// TestParsing parses every class file of sys without indexing it. Parse
// failures are recorded in the report; only cancellation is an error.
func (a *App) TestParsing(ctx context.Context, sys *ecf.System) (*ParseReport, error) {
	files, err := a.Workspace.Files(sys)
	if err != nil {
		return nil, err
	}
	report := &ParseReport{System: sys.Name, Files: make([]FileReport, len(files))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.Config.Workspace.Parallelism)
	for i, path := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			report.Files[i] = a.parseOne(gctx, path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.New(errors.Cancelled, "parsing cancelled", err)
	}

	for _, f := range report.Files {
		if f.Error != "" {
			report.Failed++
		} else {
			report.Parsed++
		}
	}
	return report, nil
}

func (a *App) parseOne(ctx context.Context, path string) FileReport {
	fr := FileReport{Path: path}
	start := time.Now()

	src, err := os.ReadFile(path)
	if err != nil {
		fr.Error = err.Error()
		return fr
	}
	cls, err := a.Parser.ParseClass(ctx, path, src)
	fr.DurationMs = time.Since(start).Milliseconds()
	if err != nil {
		fr.Error = err.Error()
		a.Logger.Debug("Parse failed", "path", path, "error", err)
		return fr
	}
	fr.Class = string(cls.Name)
	fr.Features = len(cls.Features)
	fr.Routines = len(cls.Routines())
	return fr
}

// Write renders the report as text, json or yaml.
func (r *ParseReport) Write(w io.Writer, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, f := range r.Files {
			if f.Error != "" {
				fmt.Fprintf(tw, "FAIL\t%s\t%s\n", f.Path, f.Error)
				continue
			}
			fmt.Fprintf(tw, "ok\t%s\t%s\t%d features, %d routines\n", f.Path, f.Class, f.Features, f.Routines)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%s: %d parsed, %d failed\n", r.System, r.Parsed, r.Failed)
		return err
	default:
		return errors.Newf(errors.InvalidRequest, "unknown format %q (text, json, yaml)", format)
	}
}
