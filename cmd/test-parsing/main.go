// Command test-parsing parses every class of an Eiffel system and prints
// which files the grammar accepts.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"eiffel-lsp/internal/app"
	"eiffel-lsp/internal/version"
)

var (
	configFile   string
	settingsPath string
	format       string
	verbosity    int
)

var rootCmd = &cobra.Command{
	Use:   "test-parsing",
	Short: "Parse every class of a system and report failures",
	Long: `Parse each class file of the system described by --config-file and
print one line per file. Exits non-zero when any file fails to parse.

Examples:
  test-parsing --config-file bank.ecf
  test-parsing --config-file bank.ecf --format yaml`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config-file", "", "System ECF file")
	rootCmd.Flags().StringVar(&settingsPath, "settings", "", "Settings TOML (default <root>/.eiffel-lsp/settings.toml)")
	rootCmd.Flags().StringVar(&format, "format", app.FormatText, "Output format (text, json, yaml)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity")
	_ = rootCmd.MarkFlagRequired("config-file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	a, err := app.New(app.Options{ConfigFile: configFile, SettingsPath: settingsPath, Verbosity: verbosity})
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	sys, err := a.LoadSystem(ctx)
	if err != nil {
		return err
	}
	report, err := a.TestParsing(ctx, sys)
	if err != nil {
		return err
	}
	if err := report.Write(cmd.OutOrStdout(), format); err != nil {
		return err
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d files failed to parse", report.Failed, len(report.Files))
	}
	return nil
}
