package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd.Context())
		},
	}
}

func runStats(ctx context.Context) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	stats, err := eng.Stats(ctx)
	if err != nil {
		return err
	}

	out.Printf("documents: %d", stats.DocumentCount)
	out.Printf("chunks:    %d", stats.ChunkCount)
	out.Printf("vectors:   %d", stats.VectorCount)
	out.Printf("index:     %s", stats.IndexKind)
	return out.JSON(stats)
}
