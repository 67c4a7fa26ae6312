package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/track1-autonomy/internal/logging"
	"github.com/danielpatrickdp/track1-autonomy/internal/store"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to an episode database")
	last := flag.Int("last", 20, "show N most recent episodes")
	episode := flag.String("episode", "", "show one episode's timeline and transitions")
	target := flag.String("target", "", "restrict the success rate to one target class")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/episodes.db [--last N] [--episode id] [--target class] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if *episode != "" {
		err = runDetailMode(st, *episode, *jsonOut)
	} else {
		err = runListMode(st, *last, world.ObjectClass(*target), *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region list-mode

type listRow struct {
	EpisodeID  string  `json:"episode_id"`
	Target     string  `json:"target"`
	Seed       *int64  `json:"seed"`
	Success    bool    `json:"success"`
	Steps      int     `json:"steps_executed"`
	Retries    int     `json:"retries"`
	Replans    int     `json:"replans"`
	DurationS  float64 `json:"duration_s"`
	FailReason string  `json:"fail_reason,omitempty"`
	CreatedAt  string  `json:"created_at"`
}

type listOutput struct {
	Episodes    []listRow            `json:"episodes"`
	SuccessRate float64              `json:"success_rate"`
	RateOver    int                  `json:"rate_over"`
	Failures    []store.FailureCount `json:"failures"`
}

func runListMode(st *store.Store, last int, target world.ObjectClass, jsonOut bool) error {
	records, err := st.ListEpisodes(last)
	if err != nil {
		return err
	}
	rate, n, err := st.SuccessRate(target, last)
	if err != nil {
		return err
	}
	failures, err := st.FailureBreakdown()
	if err != nil {
		return err
	}

	// Store returns newest first; print chronologically.
	out := listOutput{SuccessRate: rate, RateOver: n, Failures: failures}
	out.Episodes = make([]listRow, len(records))
	for i, rec := range records {
		out.Episodes[len(records)-1-i] = listRow{
			EpisodeID:  rec.ID,
			Target:     string(rec.Target),
			Seed:       rec.Seed,
			Success:    rec.Metrics.Success,
			Steps:      rec.Metrics.StepsExecuted,
			Retries:    rec.Metrics.Retries,
			Replans:    rec.Metrics.Replans,
			DurationS:  rec.Metrics.Duration.Seconds(),
			FailReason: rec.Metrics.FailReason,
			CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}

	if jsonOut {
		return printJSON(out)
	}
	if len(out.Episodes) == 0 {
		fmt.Fprintln(os.Stderr, "no episodes found")
		return nil
	}

	fmt.Printf("%-10s  %-7s  %6s  %-7s  %5s  %7s  %7s  %8s  %-24s  %s\n",
		"Episode", "Target", "Seed", "Success", "Steps", "Retries", "Replans", "Duration", "Fail Reason", "Time")
	fmt.Printf("%-10s+-%-7s+-%6s+-%-7s+-%5s+-%7s+-%7s+-%8s+-%-24s+-%s\n",
		"----------", "-------", "------", "-------", "-----", "-------", "-------", "--------", "------------------------", "--------------------")
	for _, r := range out.Episodes {
		seed := "—"
		if r.Seed != nil {
			seed = fmt.Sprintf("%d", *r.Seed)
		}
		reason := r.FailReason
		if reason == "" {
			reason = "—"
		}
		fmt.Printf("%-10s  %-7s  %6s  %-7v  %5d  %7d  %7d  %7.2fs  %-24s  %s\n",
			shortID(r.EpisodeID), r.Target, seed, r.Success, r.Steps, r.Retries, r.Replans, r.DurationS, reason, r.CreatedAt)
	}

	label := "all targets"
	if target != "" {
		label = string(target)
	}
	fmt.Printf("\nSuccess rate (%s, last %d): %.3f\n", label, n, rate)
	if len(failures) > 0 {
		fmt.Printf("\nFailure reasons:\n")
		for _, f := range failures {
			fmt.Printf("  %-28s %d\n", f.Reason, f.Count)
		}
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	Episode     listRow              `json:"episode"`
	Frames      []telemetry.Frame    `json:"frames"`
	Transitions []logging.Transition `json:"transitions"`
}

func runDetailMode(st *store.Store, id string, jsonOut bool) error {
	rec, err := st.GetEpisode(id)
	if err != nil {
		return err
	}
	frames, err := st.Frames(id)
	if err != nil {
		return err
	}
	transitions, err := logging.ListTransitions(st.DB(), id)
	if err != nil {
		return err
	}

	if jsonOut {
		return printJSON(detailOutput{
			Episode: listRow{
				EpisodeID:  rec.ID,
				Target:     string(rec.Target),
				Seed:       rec.Seed,
				Success:    rec.Metrics.Success,
				Steps:      rec.Metrics.StepsExecuted,
				Retries:    rec.Metrics.Retries,
				Replans:    rec.Metrics.Replans,
				DurationS:  rec.Metrics.Duration.Seconds(),
				FailReason: rec.Metrics.FailReason,
				CreatedAt:  rec.CreatedAt.Format("2006-01-02T15:04:05Z"),
			},
			Frames:      frames,
			Transitions: transitions,
		})
	}

	fmt.Printf("Episode:  %s\n", rec.ID)
	fmt.Printf("Goal:     %s -> %s\n", rec.Target, rec.Container)
	if rec.Seed != nil {
		fmt.Printf("Seed:     %d\n", *rec.Seed)
	}
	fmt.Printf("Success:  %v\n", rec.Metrics.Success)
	if rec.Metrics.FailReason != "" {
		fmt.Printf("Reason:   %s\n", rec.Metrics.FailReason)
	}
	fmt.Printf("Counters: steps=%d retries=%d replans=%d duration=%.2fs\n",
		rec.Metrics.StepsExecuted, rec.Metrics.Retries, rec.Metrics.Replans, rec.Metrics.Duration.Seconds())

	fmt.Printf("\n%-5s  %-22s  %-30s  %7s  %7s  %s\n", "Tick", "Phase", "Action", "Retries", "Replans", "Last Error")
	for _, f := range frames {
		lastErr := telemetry.Deref(f.LastError)
		if lastErr == "" {
			lastErr = "—"
		}
		fmt.Printf("%-5d  %-22s  %-30s  %7d  %7d  %s\n",
			f.World.Tick, f.Phase, f.CurrentAction, f.Retries, f.Replans, lastErr)
	}

	if len(transitions) > 0 {
		fmt.Printf("\nTransitions:\n")
		for _, t := range transitions {
			fmt.Printf("  tick %-3d %-9s %s -> %s  %s\n", t.Tick, t.Kind, t.FromPhase, t.ToPhase, t.Reason)
		}
	}
	return nil
}

// #endregion detail-mode

// #region output

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
