// Package orchestrator drives the closed perceive-plan-act loop for one episode
// at a time, enforcing retry, replan, and tick budgets.
package orchestrator

// #region imports
import (
	"log"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/track1-autonomy/internal/executor"
	"github.com/danielpatrickdp/track1-autonomy/internal/perception"
	"github.com/danielpatrickdp/track1-autonomy/internal/planner"
	"github.com/danielpatrickdp/track1-autonomy/internal/policy"
	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #endregion

// #region orchestrator-struct

// Orchestrator owns the per-episode loop. It is not safe for concurrent
// RunEpisode calls; run trials sequentially on one instance.
type Orchestrator struct {
	config   Config
	robot    robot.Robot
	applier  robot.ActionApplier
	sink     telemetry.Sink
	planner  *planner.Planner
	fusion   *perception.Fusion
	provider perception.CaptureProvider
	executor *executor.Executor
	policy   *policy.Router
	clock    func() time.Time
	logger   *log.Logger
	window   *SuccessWindow
}

// #endregion

// #region options

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithConfig(c Config) Option { return func(o *Orchestrator) { o.config = c } }

func WithPlanner(p *planner.Planner) Option { return func(o *Orchestrator) { o.planner = p } }

func WithFusion(f *perception.Fusion) Option { return func(o *Orchestrator) { o.fusion = f } }

func WithExecutor(e *executor.Executor) Option { return func(o *Orchestrator) { o.executor = e } }

// WithProvider replaces the default robot-backed capture provider.
func WithProvider(p perception.CaptureProvider) Option { return func(o *Orchestrator) { o.provider = p } }

// WithPolicy routes steps through r when the robot implements robot.ActionApplier.
func WithPolicy(r *policy.Router) Option { return func(o *Orchestrator) { o.policy = r } }

func WithClock(now func() time.Time) Option { return func(o *Orchestrator) { o.clock = now } }

func WithLogger(l *log.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// #endregion

// #region constructor

// New wires an orchestrator around r, emitting frames to sink.
func New(r robot.Robot, sink telemetry.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		config:   DefaultConfig(),
		robot:    r,
		sink:     sink,
		planner:  planner.New(planner.DefaultConfig()),
		fusion:   perception.NewFusion(perception.DefaultConfig()),
		provider: perception.NewRobotProvider(r),
		executor: executor.New(),
		clock:    time.Now,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sink == nil {
		o.sink = telemetry.Discard
	}
	o.window = NewSuccessWindow(o.config.SuccessWindow)
	if a, ok := r.(robot.ActionApplier); ok {
		o.applier = a
	}
	if o.policy != nil && o.policy.Mode() != policy.ModeSymbolic && o.applier == nil {
		o.logger.Printf("[LOOP] policy %s configured but robot cannot apply raw actions; using executor", o.policy.Mode())
	}
	return o
}

// Config returns the active budgets.
func (o *Orchestrator) Config() Config { return o.config }

// Recent returns the success rate over the trailing window, or false before any episode.
func (o *Orchestrator) Recent() (float64, bool) {
	return o.window.Rate()
}

// #endregion

// #region episode-state

type episode struct {
	id       string
	goal     world.Goal
	state    *world.WorldState
	metrics  world.EpisodeMetrics
	plan     []world.PlanStep
	timeline []telemetry.Frame
	start    time.Time
}

// #endregion

// #region run-episode

// RunEpisode resets the environment and runs one episode to a terminal outcome.
// It never returns an error: budget exhaustion is reported in the metrics.
func (o *Orchestrator) RunEpisode(goal world.Goal, opts EpisodeOptions) EpisodeResult {
	o.robot.Reset(opts.Seed)
	o.fusion.Reset()
	o.provider.Reset()

	seed := opts.Seed
	if seed == nil {
		if s, ok := o.robot.(interface{ Seed() int64 }); ok {
			v := s.Seed()
			seed = &v
		}
	}

	ep := &episode{
		id:    uuid.NewString(),
		goal:  goal,
		state: world.NewWorldState(),
		start: o.clock(),
	}
	o.logger.Printf("[LOOP] episode %s start target=%s seed=%s", ep.id, goal.TargetClass, seedString(seed))

	o.observe(ep.state)
	ep.plan = o.planner.Build(goal, ep.state.Objects)
	cursor := 0
	budget := NewRetryBudget(o.config.MaxRetriesPerStep, o.config.MaxReplans)
	ended := false

	for tick := 0; tick < o.config.MaxTicks; tick++ {
		ep.state.Tick = tick

		if o.robot.VerifyGoal(goal) {
			ep.metrics.Success = true
			ep.state.Phase = world.PhaseGoalReached
			o.emit(ep, ActionLabelVerifyGoal)
			ended = true
			break
		}

		if cursor >= len(ep.plan) {
			ep.plan = o.planner.Build(goal, ep.state.Objects)
			cursor = 0
			exhausted := budget.Replan()
			ep.metrics.Replans = budget.Replans()
			ep.state.Phase = world.PhaseReplanEmptyPlan
			o.emit(ep, ActionLabelReplan)
			if exhausted {
				ep.metrics.FailReason = world.FailReplanBudgetExceeded
				o.logger.Printf("[LOOP] episode %s replan budget exceeded at tick %d", ep.id, tick)
				ended = true
				break
			}
			continue
		}

		step := ep.plan[cursor]
		ep.state.Phase = world.ExecutePhase(step.Action)
		out := o.dispatch(step, ep)
		ep.metrics.StepsExecuted++

		o.observe(ep.state)
		ep.state.HeldObjectID = o.robot.HeldObjectID()
		ep.state.Robot = Proprioception(ep.state.Robot, step.Action, tick)

		if out.OK {
			ep.state.LastError = ""
			budget.Succeed()
			cursor++
		} else {
			ep.state.LastError = string(out.Code)
			forced := budget.Fail()
			ep.metrics.Retries = budget.Retries()
			if forced {
				exhausted := budget.Replan()
				ep.metrics.Replans = budget.Replans()
				cursor = 0
				ep.plan = o.planner.Build(goal, ep.state.Objects)
				ep.state.Phase = world.PhaseReplanAfterFailure
				o.logger.Printf("[LOOP] episode %s replan %d after %s", ep.id, budget.Replans(), out.Code)
				if exhausted {
					ep.metrics.FailReason = ep.state.LastError
					if ep.metrics.FailReason == "" {
						ep.metrics.FailReason = world.FailReplanBudgetExceeded
					}
					o.emit(ep, ActionLabelReplanFail)
					ended = true
					break
				}
			}
		}

		o.emit(ep, step.Label())
	}

	if !ended {
		ep.metrics.FailReason = world.FailMaxTicksExceeded
	}
	return o.finish(ep, seed)
}

func (o *Orchestrator) finish(ep *episode, seed *int64) EpisodeResult {
	ep.metrics.Duration = o.clock().Sub(ep.start)
	if !ep.metrics.Success && ep.metrics.FailReason == "" {
		ep.metrics.FailReason = world.FailGoalNotReached
	}
	o.window.Record(ep.metrics.Success)

	if ep.metrics.Success {
		ep.state.Phase = world.PhaseDoneSuccess
	} else {
		ep.state.Phase = world.PhaseDoneFailure
	}
	o.emit(ep, ActionLabelDone)

	o.logger.Printf("[LOOP] episode %s done success=%v steps=%d retries=%d replans=%d reason=%q",
		ep.id, ep.metrics.Success, ep.metrics.StepsExecuted, ep.metrics.Retries, ep.metrics.Replans, ep.metrics.FailReason)

	return EpisodeResult{
		ID:       ep.id,
		Goal:     ep.goal,
		Seed:     seed,
		Metrics:  ep.metrics,
		Timeline: ep.timeline,
	}
}

// #endregion

// #region dispatch

// dispatch runs step through the policy when one can act, else through the executor.
func (o *Orchestrator) dispatch(step world.PlanStep, ep *episode) executor.Outcome {
	if o.policy != nil && o.applier != nil {
		action, err := o.policy.Action(policy.Observation{
			Tick:         ep.state.Tick,
			Instruction:  o.config.Instruction,
			Step:         step,
			HeldObjectID: ep.state.HeldObjectID,
			Objects:      ep.state.Objects,
			Robot:        ep.state.Robot,
		})
		switch {
		case err != nil:
			o.logger.Printf("[POLICY] %v; running step through executor", err)
		case action != nil:
			if o.applier.ApplyAction(action) {
				return executor.Outcome{OK: true}
			}
			return executor.Outcome{Code: executor.CodePolicyActionFailed}
		}
	}
	return o.executor.Run(step, o.robot, ep.goal)
}

func (o *Orchestrator) observe(state *world.WorldState) {
	detections, _ := o.provider.Capture()
	o.fusion.Apply(state, slices.Values(detections))
}

// #endregion

// #region emit

func (o *Orchestrator) emit(ep *episode, currentAction string) {
	var rate *float64
	if r, ok := o.window.Rate(); ok {
		rate = &r
	}
	now := o.clock()
	elapsed := now.Sub(ep.start)
	if world.IsTerminalPhase(ep.state.Phase) {
		elapsed = ep.metrics.Duration
	}
	snap := telemetry.NewWorldSnapshot(ep.state)
	frame := telemetry.Frame{
		EpisodeID:     ep.id,
		TsMs:          now.UnixMilli(),
		Phase:         ep.state.Phase,
		Plan:          world.Labels(ep.plan),
		CurrentAction: currentAction,
		Retries:       ep.metrics.Retries,
		Replans:       ep.metrics.Replans,
		LastError:     snap.LastError,
		World:         snap,
		Metrics:       telemetry.NewMetricsSnapshot(ep.metrics, elapsed, rate),
	}
	ep.timeline = append(ep.timeline, frame)
	o.sink.Emit(frame)
}

func seedString(seed *int64) string {
	if seed == nil {
		return "auto"
	}
	return strconv.FormatInt(*seed, 10)
}

// #endregion
