package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"eiffel-lsp/internal/config"
	"eiffel-lsp/internal/paths"
)

var configForce bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage eiffel-lsp settings",
	Long:  "View and create the settings stored in .eiffel-lsp/settings.toml",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	Long: `Write the default settings to <root>/.eiffel-lsp/settings.toml.

Examples:
  eiffel-lsp config init
  eiffel-lsp config init --root ./bank --force`,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective settings",
	Long:  "Print the settings after merging defaults, the settings file and EIFFEL_LSP_* environment overrides.",
	RunE:  runConfigShow,
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing settings file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

func workspaceRoot() (string, error) {
	if rootDir != "" {
		return filepath.Abs(rootDir)
	}
	if configFile != "" {
		abs, err := filepath.Abs(configFile)
		if err != nil {
			return "", err
		}
		return filepath.Dir(abs), nil
	}
	return os.Getwd()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	path := paths.SettingsPath(root)
	if settingsPath != "" {
		path = settingsPath
	}
	if _, err := os.Stat(path); err == nil && !configForce {
		return fmt.Errorf("%s already exists; use --force to overwrite", path)
	}
	if err := config.DefaultConfig().SaveTo(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	root, err := workspaceRoot()
	if err != nil {
		return err
	}
	cfg, used, err := config.LoadConfigWithDetails(root, settingsPath)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if used != "" {
		fmt.Fprintf(out, "# from %s\n", used)
	} else {
		fmt.Fprintln(out, "# defaults")
	}
	return toml.NewEncoder(out).Encode(cfg)
}
