// Command correct-classes runs class-wide contract repair for every class
// listed in a file, one class at a time.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"eiffel-lsp/internal/app"
	"eiffel-lsp/internal/fsutil"
	"eiffel-lsp/internal/model"
	"eiffel-lsp/internal/repair"
	"eiffel-lsp/internal/version"
)

var (
	configFile   string
	classesFile  string
	settingsPath string
	verbosity    int
)

var rootCmd = &cobra.Command{
	Use:   "correct-classes",
	Short: "Repair the contracts of a list of classes",
	Long: `Load an Eiffel system and run class-wide contract repair for each
class in --classes-file. Entries are class names or paths to .e files,
one per line.

Examples:
  correct-classes --config-file bank.ecf --classes-file classes.txt
  correct-classes --config-file bank.ecf --classes-file classes.txt -vv`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config-file", "", "System ECF file")
	rootCmd.Flags().StringVar(&classesFile, "classes-file", "", "File listing the classes to repair")
	rootCmd.Flags().StringVar(&settingsPath, "settings", "", "Settings TOML (default <root>/.eiffel-lsp/settings.toml)")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity")
	_ = rootCmd.MarkFlagRequired("config-file")
	_ = rootCmd.MarkFlagRequired("classes-file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	entries, err := fsutil.ReadLines(classesFile)
	if err != nil {
		return fmt.Errorf("failed to read classes file: %w", err)
	}

	a, err := app.New(app.Options{ConfigFile: configFile, SettingsPath: settingsPath, Verbosity: verbosity})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.LoadSystem(ctx); err != nil {
		return err
	}
	loop, err := a.Repair(true)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var missing []string
	for _, entry := range entries {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name, ok := className(a, entry)
		if !ok {
			a.Logger.Error("Class not found or failed to parse", "entry", entry)
			missing = append(missing, entry)
			continue
		}
		outcome, err := loop.Run(ctx, repair.Request{Class: name})
		if err != nil {
			a.Logger.Error("Repair failed", "class", name, "error", err)
			fmt.Fprintf(out, "%s: error\n", name)
			continue
		}
		fmt.Fprintf(out, "%s: %s (attempts %d)\n", name, outcome.Status, outcome.Attempts)
	}
	if len(missing) > 0 {
		return fmt.Errorf("not loaded: %s", strings.Join(missing, ", "))
	}
	return nil
}

// className resolves a list entry, either a .e path or a class name.
func className(a *app.App, entry string) (model.ClassName, bool) {
	if strings.EqualFold(filepath.Ext(entry), ".e") {
		abs, err := filepath.Abs(entry)
		if err != nil {
			return "", false
		}
		cls, ok := a.Workspace.Class(abs)
		if !ok {
			return "", false
		}
		return cls.Name, true
	}
	name := model.ClassName(strings.ToUpper(entry))
	_, ok := a.Workspace.ClassByName(name)
	return name, ok
}
