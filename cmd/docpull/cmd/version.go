package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/docpull/docpull/internal/output"
	"github.com/docpull/docpull/pkg/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.New(os.Stdout, flagJSON)
			out.Print(version.String())
			return out.JSON(version.GetInfo())
		},
	}
}
