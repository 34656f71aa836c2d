// Package cmd provides the CLI commands for docpull.
package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/internal/config"
	"github.com/docpull/docpull/internal/engine"
	"github.com/docpull/docpull/internal/logging"
	"github.com/docpull/docpull/internal/output"
	"github.com/docpull/docpull/pkg/version"
)

// Persistent flags shared by every subcommand.
var (
	flagDataDir string
	flagJSON    bool
	flagVerbose bool
)

// NewRootCmd creates the root command for the docpull CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docpull",
		Short: "Differential document indexing and hybrid retrieval",
		Long: `docpull ingests documents into a local vector index with a metadata
catalog, re-embedding only the chunks whose content actually changed,
and answers similarity queries with optional lexical re-ranking.

Run 'docpull init' in a project directory to get started.`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("docpull version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Output as JSON")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIngestCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSimilarCmd())
	cmd.AddCommand(newDocumentsCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newCompactCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().ExecuteContext(context.Background())
}

// loadConfig builds the effective config for the current directory,
// applying the --data-dir override.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.Project.DataDir = flagDataDir
	}
	return cfg, nil
}

// newLogger builds the CLI logger honoring --verbose.
func newLogger(cfg *config.Config) (*slog.Logger, func(), error) {
	logCfg := logging.Config{
		Level:    cfg.Logging.Level,
		FilePath: cfg.Logging.File,
	}
	if flagVerbose {
		logCfg.Level = "debug"
	}
	return logging.Setup(logCfg)
}

// openEngine builds the full stack for a command. The returned cleanup
// closes the engine and flushes logs.
func openEngine(ctx context.Context) (*engine.Engine, *output.Writer, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, err
	}

	logger, logCleanup, err := newLogger(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	eng, err := engine.Open(ctx, cfg, engine.WithLogger(logger))
	if err != nil {
		logCleanup()
		return nil, nil, nil, err
	}

	out := output.New(os.Stdout, flagJSON)
	cleanup := func() {
		_ = eng.Close()
		logCleanup()
	}
	return eng, out, cleanup, nil
}
