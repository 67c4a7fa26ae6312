package eval

import (
	"io"
	"log"
	"strings"
	"testing"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/sim"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

func quiet() orchestrator.Option {
	return orchestrator.WithLogger(log.New(io.Discard, "", 0))
}

func runSim(t *testing.T, seed int64) orchestrator.EpisodeResult {
	t.Helper()
	o := orchestrator.New(sim.New(seed, sim.DefaultConfig()), nil, quiet())
	return o.RunEpisode(world.NewGoal(world.ClassCup), orchestrator.EpisodeOptions{Seed: &seed})
}

func metric(r EvalResult, name string) EvalMetric {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	return EvalMetric{Name: name}
}

func ptr(s string) *string { return &s }

func TestEvalPassesOnSimEpisode(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 7)

	result := h.Run(res)

	if !result.Passed {
		t.Fatalf("expected pass, got %s", result.Reason)
	}
	if result.EpisodeID != res.ID {
		t.Errorf("episode id = %q, want %q", result.EpisodeID, res.ID)
	}
	if len(result.Metrics) != len(checks) {
		t.Errorf("expected %d metrics, got %d", len(checks), len(result.Metrics))
	}
	if result.Reason != "all checks passed" {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestEvalFailsOnNonExclusiveOutcome(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 3)
	res.Metrics.Success = true
	res.Metrics.FailReason = "grasp_failed:cup_1"

	result := h.Run(res)

	if result.Passed {
		t.Fatal("expected fail")
	}
	if metric(result, "terminal_exclusive").Pass {
		t.Error("terminal_exclusive should fail")
	}
	if !strings.HasPrefix(result.Reason, "eval failed:") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestEvalFailsOnMissingDoneFrame(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 4)
	res.Timeline = res.Timeline[:len(res.Timeline)-1]

	result := h.Run(res)

	if metric(result, "final_frame").Pass {
		t.Error("final_frame should fail without the DONE frame")
	}
}

func TestEvalFailsOnEmptyTimeline(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	result := h.Run(orchestrator.EpisodeResult{Metrics: world.EpisodeMetrics{FailReason: world.FailGoalNotReached}})

	if result.Passed {
		t.Fatal("expected fail on empty timeline")
	}
	if m := metric(result, "final_frame"); m.Pass || m.Detail != "empty timeline" {
		t.Errorf("final_frame = %+v", m)
	}
}

func TestEvalFailsOnTickGap(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 9)
	if len(res.Timeline) < 3 {
		t.Skip("episode too short")
	}
	res.Timeline[1].World.Tick = 5

	if metric(h.Run(res), "one_frame_per_tick").Pass {
		t.Error("one_frame_per_tick should fail")
	}
}

func TestEvalFailsOnTickBudget(t *testing.T) {
	cfg := DefaultEvalConfig()
	res := runSim(t, 9)
	cfg.MaxTicks = len(res.Timeline) - 2

	if metric(NewEvalHarness(cfg).Run(res), "one_frame_per_tick").Pass {
		t.Error("one_frame_per_tick should fail when frames exceed max_ticks")
	}
}

func TestEvalFailsOnDecreasingCounters(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 12)
	res.Timeline[0].Retries = 50

	if metric(h.Run(res), "counters_monotonic").Pass {
		t.Error("counters_monotonic should fail")
	}
}

func TestEvalFailsOnRetryStreak(t *testing.T) {
	cfg := EvalConfig{MaxRetriesPerStep: 1, MaxReplans: 3, MaxTicks: 80}
	var timeline []telemetry.Frame
	for i := range 4 {
		f := telemetry.Frame{Phase: "EXECUTE_GRASP", Retries: i + 1, LastError: ptr("grasp_failed:cup_1")}
		f.World.Tick = i
		timeline = append(timeline, f)
	}
	res := orchestrator.EpisodeResult{Timeline: timeline}

	m := metric(NewEvalHarness(cfg).Run(res), "retries_bounded")
	if m.Pass {
		t.Fatal("retries_bounded should fail after 3 consecutive failures with budget 1")
	}
	if !strings.Contains(m.Detail, "frame 2") {
		t.Errorf("detail = %q", m.Detail)
	}
}

func TestEvalRetryStreakResetsOnReplan(t *testing.T) {
	cfg := EvalConfig{MaxRetriesPerStep: 1, MaxReplans: 3, MaxTicks: 80}
	phases := []string{"EXECUTE_GRASP", world.PhaseReplanAfterFailure, "EXECUTE_GRASP", world.PhaseReplanAfterFailure}
	var timeline []telemetry.Frame
	for i, p := range phases {
		f := telemetry.Frame{Phase: p, Retries: i + 1, LastError: ptr("grasp_failed:cup_1")}
		f.World.Tick = i
		timeline = append(timeline, f)
	}
	res := orchestrator.EpisodeResult{Timeline: timeline}

	if m := metric(NewEvalHarness(cfg).Run(res), "retries_bounded"); !m.Pass {
		t.Errorf("retries_bounded failed: %s", m.Detail)
	}
}

func TestEvalFailsOnReplanOverrun(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 1)
	res.Metrics.Replans = 10

	if metric(h.Run(res), "replans_bounded").Pass {
		t.Error("replans_bounded should fail")
	}
}

func TestEvalFailsOnConfidenceOutOfRange(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 2)
	res.Timeline[0].World.Objects = append(res.Timeline[0].World.Objects,
		telemetry.ObjectSnapshot{ID: "ghost", Class: "cup", Confidence: 1.4})

	if metric(h.Run(res), "confidence_bounds").Pass {
		t.Error("confidence_bounds should fail")
	}
}

func TestEvalFailsOnDanglingHeldObject(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 2)
	res.Timeline[0].World.HeldObjectID = ptr("nothing_1")

	if metric(h.Run(res), "held_object_valid").Pass {
		t.Error("held_object_valid should fail")
	}
}

func TestEvalFailsOnMetricsDrift(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 6)
	res.Metrics.StepsExecuted += 3

	result := h.Run(res)
	if metric(result, "metrics_consistent").Pass {
		t.Error("metrics_consistent should fail")
	}
}

func TestEvalReasonCountsFailures(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	res := runSim(t, 6)
	res.Metrics.StepsExecuted += 3
	res.Metrics.Replans = 10

	result := h.Run(res)
	if !strings.Contains(result.Reason, "checks") {
		t.Errorf("reason = %q", result.Reason)
	}
}

func TestSweepFindsNoViolations(t *testing.T) {
	o := orchestrator.New(sim.New(0, sim.DefaultConfig()), nil, quiet())
	h := NewEvalHarness(FromOrchestrator(o.Config()))

	seeds := make([]int64, 40)
	for i := range seeds {
		seeds[i] = int64(i)
	}
	report := h.Sweep(o, world.NewGoal(world.ClassCup), seeds)

	if report.Episodes != len(seeds) {
		t.Fatalf("episodes = %d", report.Episodes)
	}
	for _, v := range report.Violations {
		t.Errorf("episode %s: %s", v.EpisodeID, v.Reason)
	}
	if rate := report.SuccessRate(); rate <= 0 || rate > 1 {
		t.Errorf("success rate = %v", rate)
	}
}

func TestSweepReportEmpty(t *testing.T) {
	if (SweepReport{}).SuccessRate() != 0 {
		t.Error("empty report should have zero success rate")
	}
}
