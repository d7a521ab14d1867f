package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/planify/internal/config"
)

var configInitForce bool

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing planify.yaml")
}

// configCmd is the parent command for configuration operations
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create planify configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration planify would run with, after merging the config
file, PLANIFY_* environment overrides and defaults. API keys are redacted.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter planify.yaml into the repository",
	Long: `Write a starter planify.yaml into the repository given by --repo.

API keys are not written; set OPENAI_API_KEY, ANTHROPIC_API_KEY,
GEMINI_API_KEY or PLANIFY_COMPAT_API_KEY in the environment instead.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return usageError(err)
	}
	return writeConfigYAML(cmd.OutOrStdout(), cfg)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	repo, err := resolveRepo(repoPath)
	if err != nil {
		return usageError(err)
	}
	path := filepath.Join(repo, "planify.yaml")
	if err := writeStarterConfig(path, configInitForce); err != nil {
		return usageError(err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), healthyStyle.Render("✓"), "wrote", path)
	return nil
}

// writeConfigYAML encodes cfg. config.Secret values marshal redacted.
func writeConfigYAML(w io.Writer, cfg *config.Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return enc.Close()
}

func writeStarterConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		} else if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("checking %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := writeConfigYAML(f, config.Starter()); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
