// Command remove-comments strips comments from the Eiffel files listed in
// a file, rewriting each file in place.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"eiffel-lsp/internal/comments"
	"eiffel-lsp/internal/fsutil"
	"eiffel-lsp/internal/slogutil"
	"eiffel-lsp/internal/version"
)

var (
	classPathsFile string
	verbosity      int
)

var rootCmd = &cobra.Command{
	Use:   "remove-comments",
	Short: "Strip comments from Eiffel source files",
	Long: `Remove every -- comment from the .e files listed in --class-paths-file,
one path per line. Comment markers inside strings are kept. Entries with
other extensions are skipped.

Example:
  remove-comments --class-paths-file classes.txt`,
	Version:       version.Info(),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	rootCmd.Flags().StringVar(&classPathsFile, "class-paths-file", "", "File listing the .e files to clean")
	rootCmd.Flags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity")
	_ = rootCmd.MarkFlagRequired("class-paths-file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := slogutil.NewLogger(cmd.ErrOrStderr(), slogutil.LevelFromVerbosity(verbosity+1, false))

	entries, err := fsutil.ReadLines(classPathsFile)
	if err != nil {
		return fmt.Errorf("failed to read class paths file: %w", err)
	}

	var failed int
	for _, path := range entries {
		if !strings.EqualFold(filepath.Ext(path), ".e") {
			logger.Warn("Skipping non-Eiffel file", "path", path)
			continue
		}
		changed, err := comments.StripFile(path)
		if err != nil {
			logger.Error("Failed to strip comments", "path", path, "error", err)
			failed++
			continue
		}
		if changed {
			logger.Info("Removed comments", "path", path)
		} else {
			logger.Debug("No comments", "path", path)
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(entries))
	}
	return nil
}
