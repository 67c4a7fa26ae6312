// Package executor dispatches plan steps to robot capabilities and normalizes
// the outcome into a success flag plus a structured error code.
package executor

import (
	"strings"

	"github.com/danielpatrickdp/track1-autonomy/internal/planner"
	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region outcome

// Outcome is the normalized result of one step. Code is empty on success.
type Outcome struct {
	OK   bool
	Code ErrorCode
}

func success() Outcome { return Outcome{OK: true} }

func failure(code ErrorCode) Outcome { return Outcome{Code: code} }

// #endregion outcome

// #region executor

// Executor maps action kinds onto robot capability calls.
type Executor struct{}

// New creates an executor.
func New() *Executor {
	return &Executor{}
}

// Run executes step against r.
func (e *Executor) Run(step world.PlanStep, r robot.Robot, goal world.Goal) Outcome {
	switch step.Action {
	case world.ActionSearch:
		class := ResolveSearchClass(step, goal)
		if r.Search(class) {
			return success()
		}
		return failure(SearchFailed(class))

	case world.ActionNavigate:
		if step.TargetID == "" {
			return failure(CodeNavigateMissingTarget)
		}
		if r.Navigate(step.TargetID) {
			return success()
		}
		return failure(NavigateFailed(step.TargetID))

	case world.ActionGrasp:
		if step.TargetID == "" {
			return failure(CodeGraspMissingTarget)
		}
		if r.Grasp(step.TargetID) {
			return success()
		}
		return failure(GraspFailed(step.TargetID))

	case world.ActionPlaceInContainer:
		if step.TargetID == "" {
			return failure(CodePlaceMissingTarget)
		}
		if r.PlaceInContainer(step.TargetID, step.Note) {
			return success()
		}
		return failure(PlaceFailed(step.TargetID))

	case world.ActionVerify:
		if r.VerifyGoal(goal) {
			return success()
		}
		return failure(CodeVerifyFailed)
	}

	// Only reachable for values constructed outside ParseActionKind.
	return failure(UnknownAction(string(step.Action)))
}

// #endregion executor

// #region search-resolution

// ResolveSearchClass picks the class a SEARCH step looks for: the class prefix of
// the target id, then a class keyword in the note, then the goal's target class.
func ResolveSearchClass(step world.PlanStep, goal world.Goal) world.ObjectClass {
	if prefix, _, ok := strings.Cut(step.TargetID, "_"); ok {
		if c, ok := world.ParseObjectClass(prefix); ok {
			return c
		}
	}
	if c, ok := planner.ParseTargetClass(step.Note); ok {
		return c
	}
	return goal.TargetClass
}

// #endregion search-resolution
