package replay

import (
	"slices"
	"strings"

	"github.com/danielpatrickdp/track1-autonomy/internal/executor"
	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region export

// FromTimeline builds a fixture that re-creates a recorded episode on the
// scripted robot. Objects of the searched class that first show up on a
// successful SEARCH start hidden; every other object is in the scene from the
// start. Action results are taken from each step frame's error.
func FromTimeline(description string, goal world.Goal, m world.EpisodeMetrics, cfg orchestrator.Config, timeline []telemetry.Frame) *Fixture {
	f := &Fixture{
		Description: description,
		Goal:        FixtureGoal{Target: string(goal.TargetClass)},
		Config: FixtureConfig{
			MaxRetriesPerStep: ptr(cfg.MaxRetriesPerStep),
			MaxReplans:        ptr(cfg.MaxReplans),
			MaxTicks:          ptr(cfg.MaxTicks),
		},
		Expected: FixtureExpected{
			Success:       m.Success,
			FailReason:    m.FailReason,
			StepsExecuted: ptr(m.StepsExecuted),
			Retries:       ptr(m.Retries),
			Replans:       ptr(m.Replans),
			Actions:       StepActions(timeline),
		},
	}
	if goal.ContainerClass != world.ClassBin {
		f.Goal.Container = string(goal.ContainerClass)
	}

	seen := make(map[string]bool)
	results := make(map[string][]bool)
	found := 0 // successful SEARCH steps since the plan was last rebuilt
	for i, fr := range timeline {
		var revealed world.ObjectClass
		if label, ok := executedLabel(timeline, i); ok {
			kind := stepKind(label)
			passed := fr.Phase == world.ExecutePhase(world.ActionKind(kind)) && fr.LastError == nil
			results[kind] = append(results[kind], passed)
			if passed && kind == string(world.ActionSearch) {
				revealed = searchedClass(label, fr.Plan, goal, found)
				found++
			}
		}
		if world.IsReplanPhase(fr.Phase) {
			found = 0
		}
		for _, o := range fr.World.Objects {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			f.Objects = append(f.Objects, FixtureObject{
				ID:          o.ID,
				Class:       o.Class,
				Confidence:  o.Confidence,
				Visible:     o.Visible,
				InContainer: o.InContainer,
				Position:    o.Position,
				Hidden:      revealed != "" && o.Class == string(revealed),
			})
		}
	}

	for kind, rs := range results {
		// Unscripted calls succeed, so trailing successes carry no information.
		end := len(rs)
		for end > 0 && rs[end-1] {
			end--
		}
		if end == 0 {
			continue
		}
		if f.Script.Results == nil {
			f.Script.Results = make(map[string][]bool)
		}
		f.Script.Results[kind] = slices.Clone(rs[:end])
	}
	return f
}

// executedLabel returns the plan step that ran on frame i, if one did.
// The frame that exhausts the replan budget does not carry the failed
// step's label, so it is recovered from the frame before it.
func executedLabel(timeline []telemetry.Frame, i int) (string, bool) {
	fr := timeline[i]
	switch fr.CurrentAction {
	case orchestrator.ActionLabelVerifyGoal, orchestrator.ActionLabelReplan, orchestrator.ActionLabelDone:
		return "", false
	case orchestrator.ActionLabelReplanFail:
		if i == 0 {
			return "", false
		}
		return nextLabel(timeline[i-1])
	}
	return fr.CurrentAction, true
}

// nextLabel predicts the step the loop runs on the tick after prev.
func nextLabel(prev telemetry.Frame) (string, bool) {
	if world.IsReplanPhase(prev.Phase) {
		if len(prev.Plan) == 0 {
			return "", false
		}
		return prev.Plan[0], true
	}
	if prev.LastError != nil {
		return prev.CurrentAction, true
	}
	idx := slices.Index(prev.Plan, prev.CurrentAction)
	if idx < 0 || idx+1 >= len(prev.Plan) {
		return "", false
	}
	return prev.Plan[idx+1], true
}

// searchedClass resolves the class a successful SEARCH step looked for. Find
// plans are [find_target] or [find_container, find_target].
func searchedClass(label string, plan []string, goal world.Goal, found int) world.ObjectClass {
	if _, rest, ok := strings.Cut(label, "("); ok {
		id := strings.TrimSuffix(rest, ")")
		return executor.ResolveSearchClass(world.PlanStep{Action: world.ActionSearch, TargetID: id}, goal)
	}
	if len(plan) == 2 && found == 0 {
		return goal.ContainerClass
	}
	return goal.TargetClass
}

func stepKind(label string) string {
	kind, _, _ := strings.Cut(label, "(")
	return kind
}

func ptr(v int) *int { return &v }

// #endregion export
