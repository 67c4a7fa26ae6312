package world

import "time"

// #region robot-state

// JointCount is the number of arm joints reported in proprioception.
const JointCount = 6

// RobotState is a coarse proprioceptive readout. Observability only.
type RobotState struct {
	JointPositions  [JointCount]float64
	JointVelocities [JointCount]float64
	GripperState    string // "open" | "closed"
	BatteryLevel    float64
	Temperature     float64
}

// DefaultRobotState returns the readout at episode start.
func DefaultRobotState() RobotState {
	return RobotState{
		GripperState: "open",
		BatteryLevel: 100.0,
		Temperature:  25.0,
	}
}

// #endregion robot-state

// #region world-state

// WorldState is the per-episode belief owned by the orchestrator and perception.
// Empty HeldObjectID and LastError mean "none".
type WorldState struct {
	Tick         int
	Objects      map[string]DetectedObject
	HeldObjectID string
	LastError    string
	Phase        string
	Robot        RobotState
}

// NewWorldState returns an empty IDLE world.
func NewWorldState() *WorldState {
	return &WorldState{
		Objects: make(map[string]DetectedObject),
		Phase:   PhaseIdle,
		Robot:   DefaultRobotState(),
	}
}

// HeldObjectValid reports whether the held id, if any, references an
// existing object that is not inside a container.
func (w *WorldState) HeldObjectValid() bool {
	if w.HeldObjectID == "" {
		return true
	}
	obj, ok := w.Objects[w.HeldObjectID]
	return ok && !obj.InContainer
}

// #endregion world-state

// #region episode-metrics

// Terminal fail reasons that are not step error codes.
const (
	FailReplanBudgetExceeded = "replan_budget_exceeded"
	FailMaxTicksExceeded     = "max_ticks_exceeded"
	FailGoalNotReached       = "goal_not_reached"
)

// EpisodeMetrics accumulates counters during an episode and is frozen at its end.
type EpisodeMetrics struct {
	Success       bool
	Retries       int
	Replans       int
	StepsExecuted int
	FailReason    string
	Duration      time.Duration
}

// #endregion episode-metrics
