package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/internal/search"
)

func newSimilarCmd() *cobra.Command {
	var topK int

	cmd := &cobra.Command{
		Use:   "similar <chunk-id>",
		Short: "Find chunks similar to an existing chunk",
		Long: `Reconstruct the stored vector for a chunk and return its nearest
neighbors, excluding the probe chunk itself.`,
		Example: `  docpull similar chunk-4f2a1c-3
  docpull similar chunk-4f2a1c-3 --top-k 5 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimilar(cmd.Context(), args[0], topK)
		},
	}

	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results (default from config)")
	return cmd
}

func runSimilar(ctx context.Context, chunkID string, topK int) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	results, err := eng.Similar(ctx, chunkID, &search.Options{TopK: topK})
	if err != nil {
		return err
	}
	printResults(out, results)
	return out.JSON(resultsPayload(results))
}
