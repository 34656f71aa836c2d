package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Watch a directory and keep the index in sync",
		Long: `Watch a directory tree for file changes and apply them to the index
as they happen. Creates and modifications are re-ingested, deletions
remove the document. Runs until interrupted.`,
		Example: `  docpull watch ./docs
  docpull watch ./docs --verbose`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), args[0])
		},
	}
}

func runWatch(ctx context.Context, dir string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, out, cleanup, err := openEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	out.Printf("watching %s (ctrl-c to stop)", dir)
	if err := eng.Watch(ctx, dir); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	out.Print("watch stopped")
	return nil
}
