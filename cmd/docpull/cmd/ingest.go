package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	var meta []string

	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files, directories or glob patterns",
		Long: `Parse, chunk and embed documents into the index. Re-ingesting an
unchanged file is free; a modified file re-embeds only the chunks whose
content hash changed.`,
		Example: `  # Ingest a single file
  docpull ingest notes.txt

  # Ingest a directory recursively
  docpull ingest ./docs

  # Ingest a glob with extra metadata on every document
  docpull ingest './reports/*.md' --meta team=infra --meta year=2026`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			extraMeta, err := parseMetaFlags(meta)
			if err != nil {
				return err
			}
			return runIngest(ctx, args, extraMeta)
		},
	}

	cmd.Flags().StringArrayVar(&meta, "meta", nil, "Document metadata as key=value (repeatable)")
	return cmd
}

func runIngest(ctx context.Context, paths []string, extraMeta map[string]string) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := eng.Ingest(ctx, paths, extraMeta)
	if err != nil {
		return err
	}

	out.Successf("ingested %d/%d files: %d chunks total, %d embedded, %d unchanged",
		stats.ProcessedFiles, stats.TotalFiles,
		stats.TotalChunks, stats.NewChunks, stats.SkippedChunks)
	if stats.FailedFiles > 0 {
		out.Warningf("%d files failed, see the log for details", stats.FailedFiles)
	}
	if err := out.JSON(stats); err != nil {
		return err
	}
	if stats.FailedFiles > 0 && stats.ProcessedFiles == 0 {
		return fmt.Errorf("all %d files failed to ingest", stats.FailedFiles)
	}
	return nil
}

func parseMetaFlags(meta []string) (map[string]string, error) {
	if len(meta) == 0 {
		return nil, nil
	}
	parsed := make(map[string]string, len(meta))
	for _, pair := range meta {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q, expected key=value", pair)
		}
		parsed[key] = value
	}
	return parsed, nil
}
