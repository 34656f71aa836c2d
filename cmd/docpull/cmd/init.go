package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/configs"
	"github.com/docpull/docpull/internal/config"
	"github.com/docpull/docpull/internal/output"
)

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize docpull in the current directory",
		Long: `Create the .docpull data directory and write a commented
configuration file with every default value spelled out.`,
		Example: `  # Initialize in the current project
  docpull init

  # Overwrite an existing configuration
  docpull init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing configuration")
	return cmd
}

func runInit(force bool) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	out := output.New(os.Stdout, flagJSON)

	configPath := config.ProjectConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists, use --force to overwrite", configPath)
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(configPath, []byte(configs.DefaultConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	out.Successf("wrote %s", configPath)
	out.Print("Edit the config, then run 'docpull ingest <path>' to build the index.")
	if err := out.JSON(map[string]string{"config": configPath}); err != nil {
		return err
	}
	return nil
}
