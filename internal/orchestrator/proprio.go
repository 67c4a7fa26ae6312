package orchestrator

import (
	"math"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// batteryDrain is the percent drained per executed action.
var batteryDrain = map[world.ActionKind]float64{
	world.ActionSearch:           0.3,
	world.ActionNavigate:         0.8,
	world.ActionGrasp:            0.5,
	world.ActionPlaceInContainer: 0.5,
	world.ActionVerify:           0.1,
}

const (
	minTemperature = 20.0
	maxTemperature = 50.0
	gripperJoint   = world.JointCount - 1
)

// Proprioception derives the next cosmetic robot readout from the action just
// taken. It is a pure function of its inputs and never feeds decisions.
func Proprioception(prev world.RobotState, action world.ActionKind, tick int) world.RobotState {
	next := prev
	t := float64(tick)
	switch action {
	case world.ActionSearch:
		for i := range world.JointCount {
			phase := t*0.7 + float64(i)
			next.JointPositions[i] = 1.57 * math.Sin(phase)
			next.JointVelocities[i] = 0.5 * math.Cos(phase)
		}
	case world.ActionNavigate:
		for i := range world.JointCount {
			phase := t*0.3 + float64(i)*0.9
			next.JointPositions[i] = 3.14 * math.Sin(phase)
			next.JointVelocities[i] = 0.1 + 0.9*math.Abs(math.Sin(phase))
		}
	case world.ActionGrasp:
		next.GripperState = "closed"
		next.JointPositions[gripperJoint] = 0
		next.JointVelocities[gripperJoint] = 0
	case world.ActionPlaceInContainer:
		next.GripperState = "open"
		next.JointPositions[gripperJoint] = 1.57
		next.JointVelocities[gripperJoint] = 0
	}
	drain, ok := batteryDrain[action]
	if !ok {
		drain = 0.1
	}
	next.BatteryLevel = max(0, prev.BatteryLevel-drain)
	next.Temperature = min(max(prev.Temperature+0.5*math.Sin(t), minTemperature), maxTemperature)
	return next
}
