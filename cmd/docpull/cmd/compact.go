package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

func newCompactCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Reclaim space left by removed vectors",
		Long: `Rebuild the vector index without tombstoned entries and persist the
compacted snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd.Context())
		},
	}
}

func runCompact(ctx context.Context) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := eng.Compact(ctx); err != nil {
		return err
	}

	stats, err := eng.Stats(ctx)
	if err != nil {
		return err
	}
	out.Successf("index compacted, %d vectors retained", stats.VectorCount)
	return out.JSON(stats)
}
