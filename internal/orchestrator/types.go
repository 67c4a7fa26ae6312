package orchestrator

// #region imports
import (
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #endregion

// #region config

// Config bounds one episode.
type Config struct {
	MaxRetriesPerStep int    // failures of one step tolerated before a forced replan
	MaxReplans        int    // replans tolerated before the episode fails
	MaxTicks          int    // hard tick budget
	SuccessWindow     int    // trailing episodes in the reported success rate
	Instruction       string // language instruction passed to the policy
}

// DefaultConfig returns the standard budgets.
func DefaultConfig() Config {
	return Config{
		MaxRetriesPerStep: 2,
		MaxReplans:        3,
		MaxTicks:          80,
		SuccessWindow:     10,
		Instruction:       "put the cup in the bin",
	}
}

// #endregion

// #region episode

// EpisodeOptions customizes a single RunEpisode call.
type EpisodeOptions struct {
	// Seed resets the environment deterministically. Nil lets the robot pick.
	Seed *int64
}

// EpisodeResult is the outcome of one episode.
type EpisodeResult struct {
	ID       string
	Goal     world.Goal
	Seed     *int64
	Metrics  world.EpisodeMetrics
	Timeline []telemetry.Frame
}

// Final returns the terminal frame of the timeline.
func (r EpisodeResult) Final() (telemetry.Frame, bool) {
	if len(r.Timeline) == 0 {
		return telemetry.Frame{}, false
	}
	return r.Timeline[len(r.Timeline)-1], true
}

// #endregion

// #region frame-labels

// Current-action labels used on frames that do not execute a step.
const (
	ActionLabelVerifyGoal = "VERIFY_GOAL"
	ActionLabelReplan     = "REPLAN"
	ActionLabelReplanFail = "REPLAN_FAIL"
	ActionLabelDone       = "DONE"
)

// #endregion
