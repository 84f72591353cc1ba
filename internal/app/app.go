// Package app wires configuration, logging, the parser, the workspace and
// the repair stack for the binaries under cmd/.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"eiffel-lsp/internal/config"
	"eiffel-lsp/internal/ecf"
	"eiffel-lsp/internal/errors"
	"eiffel-lsp/internal/grammar"
	"eiffel-lsp/internal/jobs"
	"eiffel-lsp/internal/llm"
	"eiffel-lsp/internal/parse"
	"eiffel-lsp/internal/paths"
	"eiffel-lsp/internal/prompt"
	"eiffel-lsp/internal/repair"
	"eiffel-lsp/internal/slogutil"
	"eiffel-lsp/internal/verifier"
	"eiffel-lsp/internal/workspace"
)

// Options select the system and settings a binary runs with.
type Options struct {
	// ConfigFile is the system ECF. Empty means the first *.ecf in Root.
	ConfigFile string
	// Root is the workspace root; empty means the ECF's directory.
	Root string
	// SettingsPath overrides <root>/.eiffel-lsp/settings.toml.
	SettingsPath string
	// Verbosity raises the configured log level (-v, -vv).
	Verbosity int
	// LogFile tees logs to <root>/.eiffel-lsp/logs/server.log when the
	// configuration allows it.
	LogFile bool
	Stderr  io.Writer

	// Parser replaces the tree-sitter parser, mainly for tests.
	Parser workspace.SourceParser
}

// App holds the components shared by the binaries.
type App struct {
	Root       string
	ECF        string
	Config     *config.Config
	Env        config.Environment
	Logger     *slog.Logger
	Parser     workspace.SourceParser
	Workspace  *workspace.Workspace
	Generators *llm.Generators
	Templates  prompt.Templates
	Prompts    *prompt.Builder
	Verifier   *verifier.Gateway

	closers []func() error
}

// New loads settings, sets up logging and the parser and creates an empty
// workspace. Call LoadSystem to index the classes.
func New(opts Options) (*App, error) {
	ecfPath, root, err := locate(opts.ConfigFile, opts.Root)
	if err != nil {
		return nil, err
	}

	cfg, settings, err := config.LoadConfigWithDetails(root, opts.SettingsPath)
	if err != nil {
		return nil, err
	}
	env := config.ReadEnvironment(cfg)

	a := &App{Root: root, ECF: ecfPath, Config: cfg, Env: env}
	if err := a.setupLogging(opts); err != nil {
		return nil, err
	}
	if settings != "" {
		a.Logger.Debug("Loaded settings", "path", settings)
	}

	a.Parser = opts.Parser
	if a.Parser == nil {
		lang, err := grammar.Load(grammar.Resolve(env.GrammarPath(cfg)))
		if err != nil {
			a.Close()
			return nil, err
		}
		p, err := parse.New(lang, a.Logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Parser = p
		a.closers = append(a.closers, func() error { p.Close(); return nil })
	}

	a.Workspace = workspace.New(a.Parser, a.Logger, workspace.Options{
		Parallelism: cfg.Workspace.Parallelism,
		IgnoreFiles: cfg.Workspace.IgnoreFiles,
	})

	templateFile := cfg.Prompts.TemplateFile
	if templateFile == "" {
		if _, err := os.Stat(paths.PromptsPath(root)); err == nil {
			templateFile = paths.PromptsPath(root)
		}
	}
	a.Templates, err = prompt.LoadTemplates(templateFile)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Prompts = prompt.NewBuilder(a.Workspace, a.Templates)
	return a, nil
}

// locate resolves the ECF and the workspace root.
func locate(ecfPath, root string) (string, string, error) {
	if ecfPath == "" {
		dir := root
		if dir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return "", "", errors.New(errors.ConfigError, "cannot determine working directory", err)
			}
			dir = wd
		}
		matches, _ := filepath.Glob(filepath.Join(dir, "*.ecf"))
		if len(matches) == 0 {
			return "", "", errors.Newf(errors.ConfigError, "no .ecf file in %s; pass --config-file", dir)
		}
		sort.Strings(matches)
		ecfPath = matches[0]
	}
	abs, err := filepath.Abs(ecfPath)
	if err != nil {
		return "", "", errors.New(errors.ConfigError, "invalid ECF path", err)
	}
	if root == "" {
		root = filepath.Dir(abs)
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", "", errors.New(errors.ConfigError, "invalid workspace root", err)
	}
	return abs, root, nil
}

func (a *App) setupLogging(opts Options) error {
	level := slogutil.LevelFromString(a.Config.Logging.Level)
	if opts.Verbosity > 0 {
		level = min(level, slogutil.LevelFromVerbosity(opts.Verbosity, false))
	}

	logOpts := slogutil.Options{
		Level:  level,
		Format: a.Config.Logging.Format,
		Stderr: opts.Stderr,
	}
	if opts.LogFile && a.Config.Logging.File {
		if _, err := paths.EnsureLogsDir(a.Root); err == nil {
			logOpts.File = paths.ServerLogPath(a.Root)
			logOpts.MaxSize = "10MB"
			logOpts.MaxBackups = 3
		}
	}

	logger, closer, err := slogutil.Setup(logOpts)
	a.Logger = logger
	a.closers = append(a.closers, closer.Close)
	if err != nil {
		logger.Warn("Cannot open log file, logging to stderr only", "error", err)
	}
	return nil
}

// LoadSystem reads the ECF and parses every class of the system.
func (a *App) LoadSystem(ctx context.Context) (*ecf.System, error) {
	sys, err := ecf.Load(a.ECF)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("Loading system", "system", sys.Name, "target", sys.Target, "clusters", len(sys.Clusters))
	if err := a.Workspace.LoadSystem(ctx, sys); err != nil {
		return nil, err
	}
	a.Logger.Info("System loaded", "classes", len(a.Workspace.SystemClasses()))
	return sys, nil
}

// Watch reloads classes edited outside the server until ctx is done. It
// is a no-op when workspace.watch is off.
func (a *App) Watch(ctx context.Context) error {
	if !a.Config.Workspace.Watch {
		return nil
	}
	w, err := workspace.NewWatcher(a.Workspace, a.Config.Workspace.Debounce())
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		w.Stop()
		return err
	}
	a.closers = append(a.closers, func() error { w.Stop(); return nil })
	return nil
}

// LLMOptions maps the llm settings and the API key to client options.
func (a *App) LLMOptions() llm.Options {
	c := a.Config.LLM
	return llm.Options{
		Provider:          c.Provider,
		Model:             c.Model,
		Mode:              c.Mode,
		Temperature:       c.Temperature,
		MaxTokens:         c.MaxTokens,
		APIKey:            a.Env.APIKey,
		BaseURL:           c.BaseURL,
		Timeout:           c.Timeout(),
		MaxRetries:        c.MaxRetries,
		RequestsPerMinute: c.RequestsPerMinute,
	}
}

// Repair creates the LLM pool, the verifier gateway and the repair loop.
// With strict set, a missing API key or verifier command is an error;
// otherwise it is logged and the affected commands fail when used.
func (a *App) Repair(strict bool) (*repair.Loop, error) {
	a.Generators = &llm.Generators{}
	if err := a.Generators.AddNew(a.LLMOptions(), a.Logger); err != nil {
		if strict {
			return nil, err
		}
		a.Logger.Warn("LLM client unavailable", "provider", a.Config.LLM.Provider, "error", err)
	}

	if a.Env.VerifierCommand == "" {
		msg := "verifier command not set; export " + a.Config.Verifier.CommandEnv
		if strict {
			return nil, errors.New(errors.ConfigError, msg, nil).WithDetails(map[string]string{"variable": a.Config.Verifier.CommandEnv})
		}
		a.Logger.Warn(msg)
	}
	a.Verifier = &verifier.Gateway{
		Command:       a.Env.VerifierCommand,
		Timeout:       a.Config.Verifier.Timeout(),
		SuccessMarker: a.Config.Verifier.SuccessMarker,
		Logger:        a.Logger,
	}

	return repair.New(a.Workspace, a.Generators, a.Verifier, a.Parser, a.Logger, repair.Options{
		MaxAttempts: a.Config.Repair.MaxAttempts,
		Templates:   a.Templates,
	}), nil
}

// Jobs opens the job store (in memory unless jobs.dbPath is set) and
// creates a runner that is not yet started.
func (a *App) Jobs() (*jobs.Store, *jobs.Runner, error) {
	dbPath := a.Config.Jobs.DBPath
	if dbPath != "" && !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(a.Root, dbPath)
	}
	store, err := jobs.OpenStore(dbPath, a.Logger)
	if err != nil {
		return nil, nil, errors.New(errors.InternalError, "cannot open job store", err)
	}
	a.closers = append(a.closers, store.Close)

	opts := jobs.DefaultRunnerOptions()
	opts.Workers = a.Config.Jobs.Workers
	return store, jobs.NewRunner(store, a.Logger, opts), nil
}

// Close releases everything New and the other setup methods opened, in
// reverse order.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
