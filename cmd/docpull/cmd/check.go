package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify catalog and vector index consistency",
		Long: `Compare the chunk IDs recorded in the metadata catalog against the
IDs held by the vector index and report anything present on only one
side. Exits with an error when the two stores disagree.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context())
		},
	}
}

func runCheck(ctx context.Context) error {
	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := eng.Check(ctx)
	if err != nil {
		return err
	}

	if report.Consistent() {
		out.Success("catalog and index are consistent")
		return out.JSON(report)
	}

	for _, id := range report.MissingFromIndex {
		out.Warningf("in catalog but not in index: %s", id)
	}
	for _, id := range report.MissingFromCatalog {
		out.Warningf("in index but not in catalog: %s", id)
	}
	if err := out.JSON(report); err != nil {
		return err
	}
	return fmt.Errorf("catalog and index disagree on %d chunk(s)",
		len(report.MissingFromIndex)+len(report.MissingFromCatalog))
}
