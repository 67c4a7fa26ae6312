package main

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/track1-autonomy/internal/dashboard"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
)

// newDashCmd creates the "controller dash" subcommand.
func newDashCmd(g *globalFlags) *cobra.Command {
	var (
		lf     loopFlags
		file   string
		buffer int
	)
	cmd := &cobra.Command{
		Use:   "dash",
		Short: "Watch episodes in a terminal dashboard",
		Long: `Runs episodes in the background and renders their frames live. With --file,
follows an existing JSONL telemetry file instead of running episodes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ch := dashboard.NewChannelSink(buffer)
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if file != "" {
				go func() {
					defer ch.Close()
					if err := telemetry.Follow(ctx, file, true, ch.Emit); err != nil {
						log.Printf("[SINK] %v", err)
					}
				}()
				return dashboard.Run(ch.Frames(), "track1 · "+file)
			}

			cfg, err := g.load()
			if err != nil {
				return err
			}
			cfg.Telemetry.Stdout = false
			if err := lf.apply(cmd, &cfg); err != nil {
				return err
			}
			rt, err := newRuntime(cfg, nil, log.New(io.Discard, "", 0), ch)
			if err != nil {
				return fmt.Errorf("dash: %w", err)
			}

			// rt.Close also closes ch, which ends the dashboard stream.
			done := make(chan struct{})
			go func() {
				defer close(done)
				defer rt.Close()
				if _, err := runEpisodes(ctx, rt, baseSeed(cfg), cfg.Sim.Episodes, io.Discard); err != nil {
					log.Printf("[LOOP] %v", err)
				}
			}()

			runErr := dashboard.Run(ch.Frames(), "track1 · sim")
			// Quitting early stops the runner after its current episode.
			cancel()
			<-done
			if ch.Dropped() > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "dashboard dropped %d frames\n", ch.Dropped())
			}
			return runErr
		},
	}
	lf.register(cmd)
	cmd.Flags().StringVar(&file, "file", "", "follow this JSONL telemetry file")
	cmd.Flags().IntVar(&buffer, "buffer", 1024, "frames buffered between the loop and the UI")
	return cmd
}
