package perception

import (
	"slices"

	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region provider-interface

// Metadata carries provider-specific capture details (camera frames, timings).
type Metadata map[string]any

// CaptureProvider is a pluggable detection source. Fusion treats synthetic and
// sensor-derived detections identically.
type CaptureProvider interface {
	Capture() ([]world.DetectedObject, Metadata)
	Reset()
}

// #endregion provider-interface

// #region robot-provider

// RobotProvider adapts robot.Robot.Observe into a CaptureProvider.
type RobotProvider struct {
	robot robot.Robot
}

// NewRobotProvider wraps r.
func NewRobotProvider(r robot.Robot) *RobotProvider {
	return &RobotProvider{robot: r}
}

// Capture drains one observation from the robot.
func (p *RobotProvider) Capture() ([]world.DetectedObject, Metadata) {
	return slices.Collect(p.robot.Observe()), Metadata{"source": "robot"}
}

// Reset is a no-op; the robot owns its own reset.
func (p *RobotProvider) Reset() {}

// #endregion robot-provider
