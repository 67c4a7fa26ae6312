package orchestrator

import (
	"context"
	"io"
	"iter"
	"log"
	"math"
	"testing"
	"time"

	"github.com/danielpatrickdp/track1-autonomy/internal/executor"
	"github.com/danielpatrickdp/track1-autonomy/internal/policy"
	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/sim"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region stub-robot

// stubRobot is a fully observable scene whose actions succeed unless listed in fail.
type stubRobot struct {
	objects []world.DetectedObject
	fail    map[world.ActionKind]bool
	held    string
	placed  bool
	resets  int

	applyOK bool
	applied int
}

func newStubRobot(withTarget bool) *stubRobot {
	r := &stubRobot{fail: map[world.ActionKind]bool{}}
	if withTarget {
		r.objects = append(r.objects, world.DetectedObject{ID: "cup_1", Class: world.ClassCup, Confidence: 0.9, Visible: true})
	}
	r.objects = append(r.objects, world.DetectedObject{ID: "bin_1", Class: world.ClassBin, Confidence: 0.97, Visible: true})
	return r
}

func (r *stubRobot) Reset(*int64) { r.resets++; r.held = ""; r.placed = false }
func (r *stubRobot) Observe() iter.Seq[world.DetectedObject] {
	return func(yield func(world.DetectedObject) bool) {
		for _, o := range r.objects {
			if !yield(o.Clone()) {
				return
			}
		}
	}
}
func (r *stubRobot) Search(world.ObjectClass) bool { return !r.fail[world.ActionSearch] }
func (r *stubRobot) Navigate(string) bool          { return !r.fail[world.ActionNavigate] }
func (r *stubRobot) Grasp(id string) bool {
	if r.fail[world.ActionGrasp] {
		return false
	}
	r.held = id
	return true
}
func (r *stubRobot) PlaceInContainer(string, string) bool {
	if r.fail[world.ActionPlaceInContainer] {
		return false
	}
	r.held = ""
	r.placed = true
	return true
}
func (r *stubRobot) VerifyGoal(world.Goal) bool { return r.placed }
func (r *stubRobot) HeldObjectID() string       { return r.held }

type applierRobot struct{ *stubRobot }

func (a applierRobot) ApplyAction(map[string]any) bool {
	a.applied++
	return a.applyOK
}

// #endregion stub-robot

// #region helpers

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

func fakeClock() func() time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(10 * time.Millisecond)
		return t
	}
}

func newTestOrchestrator(r robot.Robot, cfg Config, sink telemetry.Sink, extra ...Option) *Orchestrator {
	opts := append([]Option{WithConfig(cfg), WithLogger(quietLogger()), WithClock(fakeClock())}, extra...)
	return New(r, sink, opts...)
}

func cupGoal() world.Goal { return world.NewGoal(world.ClassCup) }

// checkTimeline asserts the per-episode frame invariants.
func checkTimeline(t *testing.T, res EpisodeResult, cfg Config) {
	t.Helper()
	m := res.Metrics
	if m.Success == (m.FailReason != "") {
		t.Fatalf("terminal outcome not exclusive: success=%v reason=%q", m.Success, m.FailReason)
	}
	tl := res.Timeline
	if len(tl) < 1 {
		t.Fatal("empty timeline")
	}
	final := tl[len(tl)-1]
	if !world.IsTerminalPhase(final.Phase) || final.CurrentAction != ActionLabelDone {
		t.Fatalf("final frame phase=%s action=%s", final.Phase, final.CurrentAction)
	}
	for i := 0; i < len(tl)-1; i++ {
		if tl[i].World.Tick != i {
			t.Fatalf("frame %d has tick %d: expected one frame per tick", i, tl[i].World.Tick)
		}
		if i > 0 && (tl[i].Retries < tl[i-1].Retries || tl[i].Replans < tl[i-1].Replans) {
			t.Fatalf("counters decreased at frame %d", i)
		}
		if tl[i].Replans > cfg.MaxReplans+1 {
			t.Fatalf("replans %d exceed bound", tl[i].Replans)
		}
		if tl[i].EpisodeID != res.ID {
			t.Fatalf("frame %d episode id %q", i, tl[i].EpisodeID)
		}
	}
	if final.Retries != m.Retries || final.Replans != m.Replans {
		t.Fatalf("final frame counters %d/%d vs metrics %d/%d", final.Retries, final.Replans, m.Retries, m.Replans)
	}
}

// #endregion helpers

func TestRunEpisode_HappyPath(t *testing.T) {
	r := newStubRobot(true)
	sink := telemetry.NewMemorySink()
	cfg := DefaultConfig()
	o := newTestOrchestrator(r, cfg, sink)

	res := o.RunEpisode(cupGoal(), EpisodeOptions{})
	checkTimeline(t, res, cfg)
	// The goal check at the top of the tick after PLACE ends the episode before VERIFY runs.
	if !res.Metrics.Success || res.Metrics.StepsExecuted != 4 {
		t.Fatalf("metrics = %+v", res.Metrics)
	}
	if r.resets != 1 {
		t.Fatalf("robot reset %d times", r.resets)
	}
	want := []string{"NAVIGATE(cup_1)", "GRASP(cup_1)", "NAVIGATE(bin_1)", "PLACE_IN_CONTAINER(cup_1)", ActionLabelVerifyGoal, ActionLabelDone}
	if len(res.Timeline) != len(want) {
		t.Fatalf("timeline has %d frames", len(res.Timeline))
	}
	for i, f := range res.Timeline {
		if f.CurrentAction != want[i] {
			t.Errorf("frame %d action = %q, want %q", i, f.CurrentAction, want[i])
		}
	}
	if res.Timeline[4].Phase != world.PhaseGoalReached || res.Timeline[5].Phase != world.PhaseDoneSuccess {
		t.Fatalf("terminal phases %s %s", res.Timeline[4].Phase, res.Timeline[5].Phase)
	}
	if got := len(sink.Frames()); got != len(res.Timeline) {
		t.Fatalf("sink saw %d frames, timeline %d", got, len(res.Timeline))
	}
	if res.Metrics.Duration <= 0 {
		t.Fatal("duration not recorded")
	}
	if rate, ok := o.Recent(); !ok || rate != 1 {
		t.Fatalf("recent = %v %v", rate, ok)
	}
}

func TestRunEpisode_FramesReportElapsedDuration(t *testing.T) {
	r := newStubRobot(true)
	r.fail[world.ActionGrasp] = true
	res := newTestOrchestrator(r, DefaultConfig(), nil).RunEpisode(cupGoal(), EpisodeOptions{})

	tl := res.Timeline
	if len(tl) < 3 {
		t.Fatalf("timeline has %d frames", len(tl))
	}
	prev := 0.0
	for i, f := range tl {
		d := f.Metrics.DurationS
		if d <= 0 {
			t.Fatalf("frame %d (tick %d) reports duration_s=%v", i, f.World.Tick, d)
		}
		if d < prev {
			t.Fatalf("frame %d duration %v decreased from %v", i, d, prev)
		}
		prev = d
	}
	final := tl[len(tl)-1].Metrics.DurationS
	if want := res.Metrics.Duration.Seconds(); math.Abs(final-want) > 1e-9 {
		t.Fatalf("final frame duration %v, metrics %v", final, want)
	}
}

func TestRunEpisode_ForcedReplanResetsCursor(t *testing.T) {
	r := newStubRobot(true)
	r.fail[world.ActionGrasp] = true
	cfg := DefaultConfig()
	o := newTestOrchestrator(r, cfg, nil)

	res := o.RunEpisode(cupGoal(), EpisodeOptions{})
	tl := res.Timeline
	idx := -1
	for i, f := range tl {
		if f.Phase == world.PhaseReplanAfterFailure {
			idx = i
			break
		}
	}
	if idx < 1 {
		t.Fatal("no forced replan frame")
	}
	if tl[idx-1].Replans != 0 || tl[idx].Replans != 1 {
		t.Fatalf("replans %d -> %d, want 0 -> 1", tl[idx-1].Replans, tl[idx].Replans)
	}
	if tl[idx].Retries != cfg.MaxRetriesPerStep+1 {
		t.Fatalf("retries at replan = %d", tl[idx].Retries)
	}
	if tl[idx+1].CurrentAction != "NAVIGATE(cup_1)" {
		t.Fatalf("cursor not reset: next action %q", tl[idx+1].CurrentAction)
	}
	if tl[idx].LastError == nil || *tl[idx].LastError != "grasp_failed:cup_1" {
		t.Fatalf("last error = %v", tl[idx].LastError)
	}
}

func TestRunEpisode_ReplanBudgetUsesLastErrorCode(t *testing.T) {
	r := newStubRobot(true)
	r.fail[world.ActionGrasp] = true
	cfg := DefaultConfig()
	o := newTestOrchestrator(r, cfg, nil)

	res := o.RunEpisode(cupGoal(), EpisodeOptions{})
	checkTimeline(t, res, cfg)
	if res.Metrics.FailReason != "grasp_failed:cup_1" {
		t.Fatalf("fail reason = %q", res.Metrics.FailReason)
	}
	if res.Metrics.Replans != cfg.MaxReplans+1 {
		t.Fatalf("replans = %d", res.Metrics.Replans)
	}
	tl := res.Timeline
	if tl[len(tl)-2].CurrentAction != ActionLabelReplanFail || tl[len(tl)-1].Phase != world.PhaseDoneFailure {
		t.Fatalf("tail = %s, %s", tl[len(tl)-2].CurrentAction, tl[len(tl)-1].Phase)
	}
}

func TestRunEpisode_EmptyPlanReplanBudget(t *testing.T) {
	r := newStubRobot(false)
	cfg := DefaultConfig()
	o := newTestOrchestrator(r, cfg, nil)

	res := o.RunEpisode(cupGoal(), EpisodeOptions{})
	checkTimeline(t, res, cfg)
	if res.Metrics.FailReason != world.FailReplanBudgetExceeded {
		t.Fatalf("fail reason = %q", res.Metrics.FailReason)
	}
	for _, f := range res.Timeline {
		if f.Phase == world.PhaseReplanEmptyPlan && f.CurrentAction != ActionLabelReplan {
			t.Fatalf("replan frame labeled %q", f.CurrentAction)
		}
	}
}

func TestRunEpisode_MaxTicks(t *testing.T) {
	for _, ticks := range []int{0, 3} {
		r := newStubRobot(true)
		cfg := DefaultConfig()
		cfg.MaxTicks = ticks
		res := newTestOrchestrator(r, cfg, nil).RunEpisode(cupGoal(), EpisodeOptions{})
		checkTimeline(t, res, cfg)
		if res.Metrics.FailReason != world.FailMaxTicksExceeded {
			t.Fatalf("ticks=%d: fail reason = %q", ticks, res.Metrics.FailReason)
		}
		if len(res.Timeline) != ticks+1 {
			t.Fatalf("ticks=%d: %d frames", ticks, len(res.Timeline))
		}
	}
}

func TestRunEpisode_PolicyActionRejected(t *testing.T) {
	base := newStubRobot(true)
	r := applierRobot{base}
	src := sourceFunc(func(context.Context, policy.Observation) (map[string]any, error) {
		return map[string]any{"joint_positions": []any{0.0}}, nil
	})
	router, err := policy.NewRouter(policy.ModeGRPC, src, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultConfig()
	res := newTestOrchestrator(r, cfg, nil, WithPolicy(router)).RunEpisode(cupGoal(), EpisodeOptions{})
	if base.applied == 0 {
		t.Fatal("policy actions never applied")
	}
	if res.Metrics.FailReason != string(executor.CodePolicyActionFailed) {
		t.Fatalf("fail reason = %q", res.Metrics.FailReason)
	}
}

func TestRunEpisode_SymbolicPolicyUsesExecutor(t *testing.T) {
	base := newStubRobot(true)
	res := newTestOrchestrator(applierRobot{base}, DefaultConfig(), nil, WithPolicy(policy.Symbolic())).
		RunEpisode(cupGoal(), EpisodeOptions{})
	if !res.Metrics.Success || base.applied != 0 {
		t.Fatalf("success=%v applied=%d", res.Metrics.Success, base.applied)
	}
}

type sourceFunc func(context.Context, policy.Observation) (map[string]any, error)

func (f sourceFunc) GetAction(ctx context.Context, obs policy.Observation) (map[string]any, error) {
	return f(ctx, obs)
}

func TestRunEpisode_SimSeedSweep(t *testing.T) {
	cfg := DefaultConfig()
	r := sim.New(0, sim.DefaultConfig())
	o := newTestOrchestrator(r, cfg, nil)
	successes := 0
	for seed := int64(0); seed < 60; seed++ {
		s := seed
		res := o.RunEpisode(cupGoal(), EpisodeOptions{Seed: &s})
		checkTimeline(t, res, cfg)
		if res.Seed == nil || *res.Seed != seed {
			t.Fatalf("seed not echoed: %v", res.Seed)
		}
		if res.Metrics.Success {
			successes++
		}
		for _, f := range res.Timeline {
			for _, obj := range f.World.Objects {
				if obj.Confidence < 0 || obj.Confidence > 1 {
					t.Fatalf("seed %d: confidence %v out of range", seed, obj.Confidence)
				}
			}
		}
	}
	if successes == 0 {
		t.Fatal("no episode succeeded across the sweep")
	}
}

func TestRunEpisode_SimDeterministicPerSeed(t *testing.T) {
	run := func() EpisodeResult {
		seed := int64(42)
		r := sim.New(7, sim.DefaultConfig())
		return newTestOrchestrator(r, DefaultConfig(), nil).RunEpisode(cupGoal(), EpisodeOptions{Seed: &seed})
	}
	a, b := run(), run()
	if a.Metrics.Success != b.Metrics.Success || a.Metrics.StepsExecuted != b.Metrics.StepsExecuted ||
		a.Metrics.FailReason != b.Metrics.FailReason || len(a.Timeline) != len(b.Timeline) {
		t.Fatalf("runs diverged: %+v vs %+v", a.Metrics, b.Metrics)
	}
	for i := range a.Timeline {
		if a.Timeline[i].CurrentAction != b.Timeline[i].CurrentAction {
			t.Fatalf("frame %d: %s vs %s", i, a.Timeline[i].CurrentAction, b.Timeline[i].CurrentAction)
		}
	}
	if a.ID == b.ID {
		t.Fatal("episode ids should be unique")
	}
}

// #region components

func TestRetryBudget(t *testing.T) {
	b := NewRetryBudget(2, 1)
	if b.Fail() || b.Fail() {
		t.Fatal("replan forced too early")
	}
	if !b.Fail() {
		t.Fatal("third failure should force a replan")
	}
	if b.Replan() {
		t.Fatal("first replan within budget")
	}
	if b.OnStep() != 0 || b.Retries() != 3 {
		t.Fatalf("onStep=%d retries=%d", b.OnStep(), b.Retries())
	}
	b.Fail()
	b.Succeed()
	if b.OnStep() != 0 {
		t.Fatal("success should clear per-step counter")
	}
	if !b.Replan() {
		t.Fatal("second replan exceeds budget of 1")
	}
}

func TestSuccessWindow(t *testing.T) {
	w := NewSuccessWindow(3)
	if _, ok := w.Rate(); ok {
		t.Fatal("empty window has no rate")
	}
	w.Record(true)
	w.Record(false)
	if r, _ := w.Rate(); r != 0.5 {
		t.Fatalf("rate = %v", r)
	}
	w.Record(false)
	w.Record(false) // evicts the first success
	if r, _ := w.Rate(); r != 0 || w.Len() != 3 {
		t.Fatalf("rate = %v len = %d", r, w.Len())
	}
}

func TestProprioceptionIsPure(t *testing.T) {
	prev := world.DefaultRobotState()
	a := Proprioception(prev, world.ActionNavigate, 4)
	b := Proprioception(prev, world.ActionNavigate, 4)
	if a != b {
		t.Fatal("same inputs gave different readouts")
	}
	if a.BatteryLevel >= prev.BatteryLevel {
		t.Fatal("battery should drain")
	}
	g := Proprioception(a, world.ActionGrasp, 5)
	if g.GripperState != "closed" || g.JointPositions[world.JointCount-1] != 0 {
		t.Fatalf("grasp readout %+v", g)
	}
	hot := world.RobotState{Temperature: 49.9, BatteryLevel: 0.05}
	for tick := range 50 {
		hot = Proprioception(hot, world.ActionSearch, tick)
		if hot.Temperature < 20 || hot.Temperature > 50 || hot.BatteryLevel < 0 {
			t.Fatalf("tick %d out of range: %+v", tick, hot)
		}
	}
}

// #endregion components
