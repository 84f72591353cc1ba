package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eiffel-lsp/internal/app"
	"eiffel-lsp/internal/lsp"
	"eiffel-lsp/internal/metrics"
	"eiffel-lsp/internal/version"
)

var (
	configFile   string
	rootDir      string
	settingsPath string
	verbosity    int
)

var rootCmd = &cobra.Command{
	Use:   "eiffel-lsp",
	Short: "Eiffel language server with contract generation and repair",
	Long: `eiffel-lsp serves the Language Server Protocol over stdio for an Eiffel
system described by an ECF file.

Besides symbols it offers two LLM-backed features: generating contracts for
a routine, and repairing routines until the verifier (AP_COMMAND) accepts
them.

Without --config-file the first *.ecf in the working directory is used.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

func init() {
	rootCmd.SetVersionTemplate("eiffel-lsp version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configFile, "config-file", "", "Path to the system ECF")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Workspace root (default: the ECF directory)")
	rootCmd.PersistentFlags().StringVar(&settingsPath, "settings", "", "Settings file (default: <root>/.eiffel-lsp/settings.toml)")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-v, -vv)")
}

func appOptions(logFile bool) app.Options {
	return app.Options{
		ConfigFile:   configFile,
		Root:         rootDir,
		SettingsPath: settingsPath,
		Verbosity:    verbosity,
		LogFile:      logFile,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(appOptions(true))
	if err != nil {
		return err
	}
	defer a.Close()
	a.Logger.Info("Starting eiffel-lsp", "version", version.Version, "root", a.Root, "ecf", a.ECF)

	if _, err := a.LoadSystem(ctx); err != nil {
		return err
	}
	if err := a.Watch(ctx); err != nil {
		a.Logger.Warn("File watching disabled", "error", err)
	}

	loop, err := a.Repair(false)
	if err != nil {
		return err
	}
	_, runner, err := a.Jobs()
	if err != nil {
		return err
	}

	server := lsp.NewServer(lsp.Deps{
		Workspace: a.Workspace,
		Generator: a.Generators,
		Prompts:   a.Prompts,
		Loop:      loop,
		Runner:    runner,
	}, lsp.Info{Name: "eiffel-lsp", Version: version.Version}, a.Logger)

	if err := runner.Start(); err != nil {
		return err
	}
	defer func() {
		if err := runner.Stop(5 * time.Second); err != nil {
			a.Logger.Warn("Job runner did not stop cleanly", "error", err)
		}
	}()

	go func() {
		if err := metrics.Serve(ctx, a.Config.Metrics.Addr, a.Logger); err != nil {
			a.Logger.Error("Metrics endpoint failed", "addr", a.Config.Metrics.Addr, "error", err)
		}
	}()

	// A signal unblocks the pending stdin read.
	go func() {
		<-ctx.Done()
		_ = os.Stdin.Close()
	}()

	if err := server.RunStdio(); err != nil && !errors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	a.Logger.Info("eiffel-lsp stopped")
	return nil
}
