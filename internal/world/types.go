package world

import (
	"errors"
	"fmt"
	"strings"
)

// #region object-class

// ObjectClass is the closed set of object categories the scene can contain.
type ObjectClass string

const (
	ClassCup     ObjectClass = "cup"
	ClassBottle  ObjectClass = "bottle"
	ClassTool    ObjectClass = "tool"
	ClassBin     ObjectClass = "bin"
	ClassDrawer  ObjectClass = "drawer"
	ClassUnknown ObjectClass = "unknown"
)

// AllClasses lists every ObjectClass in declaration order.
var AllClasses = []ObjectClass{ClassCup, ClassBottle, ClassTool, ClassBin, ClassDrawer, ClassUnknown}

// ParseObjectClass maps a lowercase class name to its ObjectClass.
func ParseObjectClass(s string) (ObjectClass, bool) {
	for _, c := range AllClasses {
		if string(c) == s {
			return c, true
		}
	}
	return "", false
}

// #endregion object-class

// #region detected-object

// Vec3 is a position in metres, robot base frame.
type Vec3 [3]float64

// DetectedObject is one belief about an object in the scene.
// Properties is an open extension point; nothing in the control loop reads it.
type DetectedObject struct {
	ID          string
	Class       ObjectClass
	Position    Vec3
	Confidence  float64
	Visible     bool
	InContainer bool
	Properties  map[string]string
}

// Clone returns a copy that shares no memory with o.
func (o DetectedObject) Clone() DetectedObject {
	c := o
	if o.Properties != nil {
		c.Properties = make(map[string]string, len(o.Properties))
		for k, v := range o.Properties {
			c.Properties[k] = v
		}
	}
	return c
}

// #endregion detected-object

// #region goal

// GoalPutInContainer is the only goal kind the planner understands.
const GoalPutInContainer = "put_in_bin"

// Goal is fixed for the lifetime of an episode.
type Goal struct {
	Kind           string
	TargetClass    ObjectClass
	ContainerClass ObjectClass
}

// NewGoal builds a put-in-container goal with the default bin container.
func NewGoal(target ObjectClass) Goal {
	return Goal{Kind: GoalPutInContainer, TargetClass: target, ContainerClass: ClassBin}
}

// #endregion goal

// #region action-kind

// ActionKind enumerates the symbolic actions a plan can contain.
type ActionKind string

const (
	ActionSearch           ActionKind = "SEARCH"
	ActionNavigate         ActionKind = "NAVIGATE"
	ActionGrasp            ActionKind = "GRASP"
	ActionPlaceInContainer ActionKind = "PLACE_IN_CONTAINER"
	ActionVerify           ActionKind = "VERIFY"
)

// ErrUnknownAction is returned when a serialized action name is not part of the enum.
var ErrUnknownAction = errors.New("unknown action")

var actionKinds = []ActionKind{ActionSearch, ActionNavigate, ActionGrasp, ActionPlaceInContainer, ActionVerify}

// ParseActionKind converts a serialized name into an ActionKind.
func ParseActionKind(name string) (ActionKind, error) {
	for _, a := range actionKinds {
		if string(a) == name {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// #endregion action-kind

// #region plan-step

// PlanStep is a single immutable entry of a plan.
type PlanStep struct {
	Action   ActionKind
	TargetID string
	Note     string
}

// Label renders the step as ACTION(target) or ACTION.
func (s PlanStep) Label() string {
	if s.TargetID != "" {
		return fmt.Sprintf("%s(%s)", s.Action, s.TargetID)
	}
	return string(s.Action)
}

// Labels renders every step of a plan in order.
func Labels(plan []PlanStep) []string {
	out := make([]string, len(plan))
	for i, s := range plan {
		out[i] = s.Label()
	}
	return out
}

// #endregion plan-step

// #region phase

// Phase labels published in world state and telemetry.
const (
	PhaseIdle               = "IDLE"
	PhaseReplanEmptyPlan    = "REPLAN_EMPTY_PLAN"
	PhaseReplanAfterFailure = "REPLAN_AFTER_FAILURE"
	PhaseGoalReached        = "GOAL_REACHED"
	PhaseDoneSuccess        = "DONE_SUCCESS"
	PhaseDoneFailure        = "DONE_FAILURE"
)

// ExecutePhase is the phase label while a step of the given kind runs.
func ExecutePhase(a ActionKind) string {
	return "EXECUTE_" + string(a)
}

// IsTerminalPhase reports whether phase ends an episode timeline.
func IsTerminalPhase(phase string) bool {
	return phase == PhaseDoneSuccess || phase == PhaseDoneFailure
}

// IsReplanPhase reports whether phase marks a replan tick.
func IsReplanPhase(phase string) bool {
	return strings.HasPrefix(phase, "REPLAN_")
}

// #endregion phase
