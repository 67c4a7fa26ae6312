// Package eval checks finished episodes against the control loop's invariants.
package eval

import (
	"fmt"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region eval-harness
// EvalHarness validates episode timelines.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

type check struct {
	name string
	fn   func(EvalConfig, orchestrator.EpisodeResult) (bool, string)
}

var checks = []check{
	{"terminal_exclusive", checkTerminalExclusive},
	{"final_frame", checkFinalFrame},
	{"one_frame_per_tick", checkFramePerTick},
	{"counters_monotonic", checkMonotonic},
	{"retries_bounded", checkRetriesBounded},
	{"replans_bounded", checkReplansBounded},
	{"confidence_bounds", checkConfidence},
	{"held_object_valid", checkHeldObject},
	{"metrics_consistent", checkMetrics},
}

// Run checks every invariant and reports the first failure as the reason.
func (h *EvalHarness) Run(res orchestrator.EpisodeResult) EvalResult {
	var metrics []EvalMetric
	var failReasons []string

	for _, c := range checks {
		pass, detail := c.fn(h.config, res)
		metrics = append(metrics, EvalMetric{Name: c.name, Pass: pass, Detail: detail})
		if !pass {
			failReasons = append(failReasons, fmt.Sprintf("%s: %s", c.name, detail))
		}
	}

	reason := "all checks passed"
	if len(failReasons) == 1 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
	} else if len(failReasons) > 1 {
		reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
	}

	return EvalResult{
		EpisodeID: res.ID,
		Passed:    len(failReasons) == 0,
		Metrics:   metrics,
		Reason:    reason,
	}
}

// Sweep runs one episode per seed on o and checks each.
func (h *EvalHarness) Sweep(o *orchestrator.Orchestrator, goal world.Goal, seeds []int64) SweepReport {
	var report SweepReport
	for _, seed := range seeds {
		s := seed
		res := o.RunEpisode(goal, orchestrator.EpisodeOptions{Seed: &s})
		report.Episodes++
		if res.Metrics.Success {
			report.Successes++
		}
		if r := h.Run(res); !r.Passed {
			report.Violations = append(report.Violations, r)
		}
	}
	return report
}

// #endregion eval-harness

// #region checks

func checkTerminalExclusive(_ EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	m := res.Metrics
	if m.Success == (m.FailReason != "") {
		return false, fmt.Sprintf("success=%v fail_reason=%q", m.Success, m.FailReason)
	}
	return true, ""
}

func checkFinalFrame(_ EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	final, ok := res.Final()
	if !ok {
		return false, "empty timeline"
	}
	want := world.PhaseDoneFailure
	if res.Metrics.Success {
		want = world.PhaseDoneSuccess
	}
	if final.Phase != want || final.CurrentAction != orchestrator.ActionLabelDone {
		return false, fmt.Sprintf("final frame %s/%s", final.Phase, final.CurrentAction)
	}
	return true, ""
}

func checkFramePerTick(cfg EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	body := res.Timeline[:max(len(res.Timeline)-1, 0)]
	for i, f := range body {
		if f.World.Tick != i {
			return false, fmt.Sprintf("frame %d has tick %d", i, f.World.Tick)
		}
	}
	if len(body) > cfg.MaxTicks {
		return false, fmt.Sprintf("%d tick frames exceed max_ticks %d", len(body), cfg.MaxTicks)
	}
	return true, ""
}

func checkMonotonic(_ EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	for i := 1; i < len(res.Timeline); i++ {
		prev, cur := res.Timeline[i-1], res.Timeline[i]
		if cur.Retries < prev.Retries || cur.Replans < prev.Replans {
			return false, fmt.Sprintf("frame %d: retries %d->%d replans %d->%d", i, prev.Retries, cur.Retries, prev.Replans, cur.Replans)
		}
	}
	return true, ""
}

// checkRetriesBounded reconstructs the per-step failure streak from frames.
func checkRetriesBounded(cfg EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	streak, prevRetries := 0, 0
	for i, f := range res.Timeline {
		if f.Retries > prevRetries {
			streak += f.Retries - prevRetries
		} else if f.LastError == nil && !world.IsReplanPhase(f.Phase) {
			streak = 0
		}
		prevRetries = f.Retries
		if streak > cfg.MaxRetriesPerStep+1 {
			return false, fmt.Sprintf("frame %d: %d consecutive failures", i, streak)
		}
		if world.IsReplanPhase(f.Phase) {
			streak = 0
		}
	}
	return true, ""
}

func checkReplansBounded(cfg EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	if res.Metrics.Replans > cfg.MaxReplans+1 {
		return false, fmt.Sprintf("%d replans exceed %d", res.Metrics.Replans, cfg.MaxReplans+1)
	}
	if res.Metrics.Replans == cfg.MaxReplans+1 && res.Metrics.Success {
		return false, "succeeded after the replan budget was exceeded"
	}
	return true, ""
}

func checkConfidence(_ EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	for _, f := range res.Timeline {
		for _, o := range f.World.Objects {
			if o.Confidence < 0 || o.Confidence > 1 {
				return false, fmt.Sprintf("tick %d: %s confidence %v", f.World.Tick, o.ID, o.Confidence)
			}
		}
	}
	return true, ""
}

func checkHeldObject(_ EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	for _, f := range res.Timeline {
		held := telemetry.Deref(f.World.HeldObjectID)
		if held == "" {
			continue
		}
		found := false
		for _, o := range f.World.Objects {
			if o.ID == held {
				found = true
				if o.InContainer {
					return false, fmt.Sprintf("tick %d: held %s is in a container", f.World.Tick, held)
				}
			}
		}
		if !found {
			return false, fmt.Sprintf("tick %d: held %s is not tracked", f.World.Tick, held)
		}
	}
	return true, ""
}

func checkMetrics(_ EvalConfig, res orchestrator.EpisodeResult) (bool, string) {
	final, ok := res.Final()
	if !ok {
		return false, "empty timeline"
	}
	m := res.Metrics
	if final.Retries != m.Retries || final.Replans != m.Replans || final.Metrics.StepsExecuted != m.StepsExecuted {
		return false, fmt.Sprintf("final frame %d/%d/%d vs metrics %d/%d/%d",
			final.Retries, final.Replans, final.Metrics.StepsExecuted, m.Retries, m.Replans, m.StepsExecuted)
	}
	if telemetry.Deref(final.Metrics.FailReason) != m.FailReason {
		return false, fmt.Sprintf("final fail_reason %q vs %q", telemetry.Deref(final.Metrics.FailReason), m.FailReason)
	}
	return true, ""
}

// #endregion checks
