package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/danielpatrickdp/track1-autonomy/internal/eval"
	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/replay"
	"github.com/danielpatrickdp/track1-autonomy/internal/sim"
	"github.com/danielpatrickdp/track1-autonomy/internal/store"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to an episode database (DB mode)")
	fixturePath := flag.String("fixture", "", "path to one fixture JSON (fixture mode)")
	fixtureDir := flag.String("fixtures", "", "directory of fixture JSON files (fixture mode)")
	last := flag.Int("last", 50, "DB mode: replay the N most recent seeded episodes")
	verbose := flag.Bool("v", false, "print every frame")
	flag.Parse()

	modes := 0
	for _, s := range []string{*dbPath, *fixturePath, *fixtureDir} {
		if s != "" {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "usage: replay --fixture path/to/fixture.json")
		fmt.Fprintln(os.Stderr, "       replay --fixtures path/to/dir")
		fmt.Fprintln(os.Stderr, "       replay --db path/to/episodes.db [--last N]")
		os.Exit(2)
	}

	var sink telemetry.Sink
	if *verbose {
		sink = telemetry.NewStdoutSink(os.Stdout)
	}
	quiet := log.New(io.Discard, "", 0)

	var exitCode int
	switch {
	case *dbPath != "":
		exitCode = runDBMode(*dbPath, *last, sink, quiet)
	case *fixturePath != "":
		f, err := replay.LoadFixture(*fixturePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
			os.Exit(2)
		}
		exitCode = runFixtureMode([]*replay.Fixture{f}, sink, quiet)
	default:
		fixtures, err := replay.LoadDir(*fixtureDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "load fixtures: %v\n", err)
			os.Exit(2)
		}
		exitCode = runFixtureMode(fixtures, sink, quiet)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region fixture-mode

func runFixtureMode(fixtures []*replay.Fixture, sink telemetry.Sink, logger *log.Logger) int {
	if len(fixtures) == 0 {
		fmt.Fprintln(os.Stderr, "no fixtures found")
		return 2
	}
	outcomes := replay.RunAll(fixtures, replay.Options{Sink: sink, Logger: logger})

	fmt.Printf("%-28s| %-8s| %-28s| %s\n", "Fixture", "Success", "Fail Reason", "Match")
	fmt.Printf("%-28s+%-9s+%-29s+%s\n",
		"----------------------------", "---------", "-----------------------------", "------")
	for _, o := range outcomes {
		match := "OK"
		if !o.Passed() {
			match = "DIFF"
		}
		m := o.Result.Metrics
		fmt.Printf("%-28s| %-8v| %-28s| %s\n", o.Fixture, m.Success, dash(m.FailReason), match)
		for _, mm := range o.Mismatches {
			fmt.Printf("    %s\n", mm)
		}
	}

	s := replay.Summarize(outcomes)
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", s.Total, s.Passed, s.Failed)
	if s.Failed > 0 {
		return 1
	}
	return 0
}

// #endregion fixture-mode

// #region db-mode

// runDBMode reruns recorded simulator episodes by seed with default budgets and
// checks that each reproduces the stored outcome and passes the timeline checks.
func runDBMode(dbPath string, last int, sink telemetry.Sink, logger *log.Logger) int {
	st, err := store.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer st.Close()

	records, err := st.ListEpisodes(last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list episodes: %v\n", err)
		return 2
	}

	o := orchestrator.New(sim.New(0, sim.DefaultConfig()), sink, orchestrator.WithLogger(logger))
	harness := eval.NewEvalHarness(eval.FromOrchestrator(o.Config()))

	fmt.Printf("%-10s| %-8s| %-24s| %-24s| %s\n", "Episode", "Seed", "Recorded", "Replayed", "Match")
	fmt.Printf("%-10s+%-9s+%-25s+%-25s+%s\n",
		"----------", "---------", "-------------------------", "-------------------------", "------")

	total, matches := 0, 0
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Seed == nil {
			continue
		}
		total++
		res := o.RunEpisode(goalOf(rec), orchestrator.EpisodeOptions{Seed: rec.Seed})
		check := harness.Run(res)

		want, got := outcome(rec.Metrics.Success, rec.Metrics.FailReason), outcome(res.Metrics.Success, res.Metrics.FailReason)
		match := "DIFF"
		if want == got && rec.Metrics.StepsExecuted == res.Metrics.StepsExecuted && check.Passed {
			match = "OK"
			matches++
		}
		fmt.Printf("%-10s| %-8d| %-24s| %-24s| %s\n", shortID(rec.ID), *rec.Seed, want, got, match)
		if !check.Passed {
			fmt.Printf("    %s\n", check.Reason)
		}
	}

	if total == 0 {
		fmt.Fprintln(os.Stderr, "no seeded episodes found")
		return 2
	}
	diverge := total - matches
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)
	if diverge > 0 {
		return 1
	}
	return 0
}

func goalOf(rec store.EpisodeRecord) world.Goal {
	g := world.NewGoal(rec.Target)
	if rec.Container != "" {
		g.ContainerClass = rec.Container
	}
	return g
}

// #endregion db-mode

// #region output

func outcome(success bool, reason string) string {
	if success {
		return "success"
	}
	return reason
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
