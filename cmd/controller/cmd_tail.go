package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
)

// newTailCmd creates the "controller tail" subcommand.
func newTailCmd() *cobra.Command {
	var fromStart bool
	cmd := &cobra.Command{
		Use:   "tail <frames.jsonl>",
		Short: "Follow a JSONL telemetry file",
		Long:  "Prints each frame appended to the file as a compact line until interrupted.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			out := telemetry.NewStdoutSink(cmd.OutOrStdout())
			if err := telemetry.Follow(ctx, args[0], fromStart, out.Emit); err != nil {
				return fmt.Errorf("tail: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStart, "from-start", false, "print frames already in the file first")
	return cmd
}
