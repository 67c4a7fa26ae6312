// Package robot defines the capability set every robot backend exposes to the
// control loop, whether simulated or physical.
package robot

import (
	"iter"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region robot-interface

// Robot is the fixed capability interface the orchestrator drives.
// Hardware adapters translate their own faults into these boolean results.
type Robot interface {
	// Reset reinitializes the scene. A nil seed lets the backend pick the next one.
	Reset(seed *int64)
	// Observe returns a finite, single-use stream of detections.
	Observe() iter.Seq[world.DetectedObject]
	Search(class world.ObjectClass) bool
	Navigate(id string) bool
	Grasp(id string) bool
	PlaceInContainer(id, containerID string) bool
	VerifyGoal(goal world.Goal) bool
	HeldObjectID() string
}

// ActionApplier is implemented by backends that can execute raw policy actions.
type ActionApplier interface {
	ApplyAction(action map[string]any) bool
}

// #endregion robot-interface
