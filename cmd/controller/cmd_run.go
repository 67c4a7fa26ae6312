package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/track1-autonomy/internal/sim"
)

// newRunCmd creates the "controller run" subcommand.
func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		lf     loopFlags
		quiet  bool
		linger time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run demo episodes against the simulated robot",
		Long: `Runs --episodes episodes sequentially on one orchestrator. Episode i is
seeded with seed+i. Frames go to stdout and to every configured sink.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			if quiet {
				cfg.Telemetry.Stdout = false
			}
			if err := lf.apply(cmd, &cfg); err != nil {
				return err
			}

			rt, err := newRuntime(cfg, cmd.OutOrStdout(), log.New(cmd.ErrOrStderr(), "", log.LstdFlags))
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			defer rt.Close()

			out := cmd.OutOrStdout()
			summary, err := runEpisodes(cmd.Context(), rt, baseSeed(cfg), cfg.Sim.Episodes, out)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			fmt.Fprintf(out, "summary episodes=%d success_rate=%.3f", summary.episodes, summary.successRate())
			if cfg.Telemetry.JSONLPath != "" {
				fmt.Fprintf(out, " telemetry=%s", cfg.Telemetry.JSONLPath)
			}
			fmt.Fprintln(out)

			if rt.feed != nil && linger > 0 {
				fmt.Fprintf(out, "telemetry feed active at http://%s/latest for %s\n", rt.feed.Addr(), linger)
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				waitFor(ctx, linger)
			}
			return nil
		},
	}
	lf.register(cmd)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print frames to stdout")
	cmd.Flags().DurationVar(&linger, "linger", 0, "keep the telemetry feed up this long after the last episode")
	return cmd
}

// episodeSummary aggregates a batch of episodes.
type episodeSummary struct {
	episodes     int
	successes    int
	totalRetries int
	totalReplans int
}

func (s episodeSummary) successRate() float64 {
	return float64(s.successes) / float64(max(s.episodes, 1))
}

// runEpisodes runs n episodes seeded base, base+1, ... and prints one line each.
// It stops between episodes once ctx is done and returns what ran so far.
func runEpisodes(ctx context.Context, rt *runtime, base int64, n int, out io.Writer) (episodeSummary, error) {
	robot := sim.New(base, sim.DefaultConfig())
	o, err := rt.orchestrator(robot)
	if err != nil {
		return episodeSummary{}, err
	}
	goal := rt.goal()

	var s episodeSummary
	for i := range n {
		if ctx.Err() != nil {
			break
		}
		seed := base + int64(i)
		res := o.RunEpisode(goal, episodeOptions(seed))
		if err := rt.record(res); err != nil {
			return s, err
		}
		m := res.Metrics
		s.episodes++
		s.totalRetries += m.Retries
		s.totalReplans += m.Replans
		if m.Success {
			s.successes++
		}
		fmt.Fprintf(out, "episode=%d seed=%d success=%v steps=%d retries=%d replans=%d duration_s=%.2f fail_reason=%s\n",
			i+1, seed, m.Success, m.StepsExecuted, m.Retries, m.Replans, m.Duration.Seconds(), m.FailReason)
	}
	return s, nil
}

func waitFor(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
