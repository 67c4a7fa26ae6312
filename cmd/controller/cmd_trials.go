package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/track1-autonomy/internal/sim"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// trialHeader is the CSV column order.
var trialHeader = []string{"trial", "seed", "success", "steps_executed", "retries", "replans", "duration_s", "fail_reason"}

// newTrialsCmd creates the "controller trials" subcommand.
func newTrialsCmd(g *globalFlags) *cobra.Command {
	var (
		lf      loopFlags
		trials  int
		csvPath string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "trials",
		Short: "Run randomized trials and write a CSV summary",
		Long: `Runs --trials episodes seeded seed, seed+1, ... and writes one CSV row per
trial, then prints the success rate and average retries and replans.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.load()
			if err != nil {
				return err
			}
			cfg.Telemetry.Stdout = verbose
			if err := lf.apply(cmd, &cfg); err != nil {
				return err
			}
			if trials < 1 {
				return fmt.Errorf("trials: --trials must be >= 1, got %d", trials)
			}

			rt, err := newRuntime(cfg, cmd.OutOrStdout(), log.New(io.Discard, "", 0))
			if err != nil {
				return fmt.Errorf("trials: %w", err)
			}
			defer rt.Close()

			base := baseSeed(cfg)
			robot := sim.New(base, sim.DefaultConfig())
			o, err := rt.orchestrator(robot)
			if err != nil {
				return fmt.Errorf("trials: %w", err)
			}
			goal := rt.goal()

			rows := make([][]string, 0, trials)
			var s episodeSummary
			for i := range trials {
				seed := base + int64(i)
				res := o.RunEpisode(goal, episodeOptions(seed))
				if err := rt.record(res); err != nil {
					return fmt.Errorf("trials: %w", err)
				}
				m := res.Metrics
				s.episodes++
				s.totalRetries += m.Retries
				s.totalReplans += m.Replans
				if m.Success {
					s.successes++
				}
				rows = append(rows, trialRow(i+1, seed, m))
			}

			if err := writeTrialsCSV(csvPath, rows); err != nil {
				return fmt.Errorf("trials: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trials=%d\n", s.episodes)
			fmt.Fprintf(out, "success_rate=%.3f\n", s.successRate())
			fmt.Fprintf(out, "avg_retries=%.2f\n", float64(s.totalRetries)/float64(s.episodes))
			fmt.Fprintf(out, "avg_replans=%.2f\n", float64(s.totalReplans)/float64(s.episodes))
			fmt.Fprintf(out, "csv=%s\n", csvPath)
			return nil
		},
	}
	lf.register(cmd)
	cmd.Flags().IntVar(&trials, "trials", 10, "number of trials")
	cmd.Flags().StringVar(&csvPath, "csv", filepath.Join("runs", "trials.csv"), "CSV output path")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print frames to stdout")
	return cmd
}

// trialRow renders one CSV row. success is 1 or 0 and duration has 3 decimals.
func trialRow(trial int, seed int64, m world.EpisodeMetrics) []string {
	success := "0"
	if m.Success {
		success = "1"
	}
	return []string{
		strconv.Itoa(trial),
		strconv.FormatInt(seed, 10),
		success,
		strconv.Itoa(m.StepsExecuted),
		strconv.Itoa(m.Retries),
		strconv.Itoa(m.Replans),
		strconv.FormatFloat(m.Duration.Seconds(), 'f', 3, 64),
		m.FailReason,
	}
}

func writeTrialsCSV(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(trialHeader); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return f.Close()
}
