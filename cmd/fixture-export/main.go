package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/replay"
	"github.com/danielpatrickdp/track1-autonomy/internal/store"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to an episode database")
	episode := flag.String("episode", "", "episode id to export (default: most recent)")
	outPath := flag.String("out", "", "output fixture JSON path")
	maxTicks := flag.Int("max-ticks", orchestrator.DefaultConfig().MaxTicks, "tick budget the episode ran with")
	maxRetries := flag.Int("max-retries-step", orchestrator.DefaultConfig().MaxRetriesPerStep, "per-step retry budget the episode ran with")
	maxReplans := flag.Int("max-replans", orchestrator.DefaultConfig().MaxReplans, "replan budget the episode ran with")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/episodes.db --out path/to/fixture.json [--episode id]")
		os.Exit(2)
	}

	cfg := orchestrator.DefaultConfig()
	cfg.MaxTicks = *maxTicks
	cfg.MaxRetriesPerStep = *maxRetries
	cfg.MaxReplans = *maxReplans

	if err := run(*dbPath, *episode, *outPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

func run(dbPath, episodeID, outPath string, cfg orchestrator.Config) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	var rec store.EpisodeRecord
	if episodeID == "" {
		list, err := st.ListEpisodes(1)
		if err != nil {
			return fmt.Errorf("list episodes: %w", err)
		}
		if len(list) == 0 {
			return fmt.Errorf("no episodes in %s", dbPath)
		}
		rec = list[0]
	} else if rec, err = st.GetEpisode(episodeID); err != nil {
		return err
	}

	frames, err := st.Frames(rec.ID)
	if err != nil {
		return fmt.Errorf("load frames: %w", err)
	}
	if len(frames) == 0 {
		return fmt.Errorf("episode %s has no recorded frames", rec.ID)
	}

	goal := world.NewGoal(rec.Target)
	if rec.Container != "" {
		goal.ContainerClass = rec.Container
	}
	desc := fmt.Sprintf("exported from episode %s", rec.ID)
	if rec.Seed != nil {
		desc += fmt.Sprintf(" (seed %d)", *rec.Seed)
	}
	fixture := replay.FromTimeline(desc, goal, rec.Metrics, cfg, frames)

	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write fixture: %w", err)
	}

	fmt.Printf("Exported episode %s (%d frames, %d objects) to %s\n", rec.ID, len(frames), len(fixture.Objects), outPath)
	return nil
}

// #endregion export
