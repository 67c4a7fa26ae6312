// Package telemetry defines the per-tick frame contract and the sinks that consume it.
package telemetry

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region frame

// Frame is one immutable snapshot emitted per tick. Pointer fields are JSON null when unset.
type Frame struct {
	EpisodeID     string          `json:"episode_id,omitempty"`
	TsMs          int64           `json:"ts_ms"`
	Phase         string          `json:"phase"`
	Plan          []string        `json:"plan"`
	CurrentAction string          `json:"current_action"`
	Retries       int             `json:"retries"`
	Replans       int             `json:"replans"`
	LastError     *string         `json:"last_error"`
	World         WorldSnapshot   `json:"world"`
	Metrics       MetricsSnapshot `json:"metrics"`
}

// WorldSnapshot is the world portion of a frame.
type WorldSnapshot struct {
	Tick         int              `json:"tick"`
	HeldObjectID *string          `json:"held_object_id"`
	LastError    *string          `json:"last_error"`
	Objects      []ObjectSnapshot `json:"objects"`
	RobotState   RobotSnapshot    `json:"robot_state"`
}

// ObjectSnapshot is one tracked object, rounded for display.
type ObjectSnapshot struct {
	ID          string     `json:"id"`
	Class       string     `json:"cls"`
	Confidence  float64    `json:"confidence"`
	Visible     bool       `json:"visible"`
	InContainer bool       `json:"in_container"`
	Position    [3]float64 `json:"position"`
}

// RobotSnapshot is the proprioceptive readout.
type RobotSnapshot struct {
	JointPositions  []float64 `json:"joint_positions"`
	JointVelocities []float64 `json:"joint_velocities"`
	GripperState    string    `json:"gripper_state"`
	BatteryLevel    float64   `json:"battery_level"`
	Temperature     float64   `json:"temperature"`
}

// MetricsSnapshot is the episode counters at the time of the frame.
type MetricsSnapshot struct {
	Success           bool     `json:"success"`
	Retries           int      `json:"retries"`
	Replans           int      `json:"replans"`
	StepsExecuted     int      `json:"steps_executed"`
	DurationS         float64  `json:"duration_s"`
	FailReason        *string  `json:"fail_reason"`
	SuccessRateLast10 *float64 `json:"success_rate_last10"`
}

// #endregion frame

// #region builders

// NewWorldSnapshot renders state with objects sorted by id.
func NewWorldSnapshot(state *world.WorldState) WorldSnapshot {
	ids := make([]string, 0, len(state.Objects))
	for id := range state.Objects {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	objects := make([]ObjectSnapshot, 0, len(ids))
	for _, id := range ids {
		obj := state.Objects[id]
		objects = append(objects, ObjectSnapshot{
			ID:          obj.ID,
			Class:       string(obj.Class),
			Confidence:  round(obj.Confidence, 3),
			Visible:     obj.Visible,
			InContainer: obj.InContainer,
			Position:    [3]float64{round(obj.Position[0], 3), round(obj.Position[1], 3), round(obj.Position[2], 3)},
		})
	}

	rs := state.Robot
	return WorldSnapshot{
		Tick:         state.Tick,
		HeldObjectID: optional(state.HeldObjectID),
		LastError:    optional(state.LastError),
		Objects:      objects,
		RobotState: RobotSnapshot{
			JointPositions:  roundAll(rs.JointPositions[:], 3),
			JointVelocities: roundAll(rs.JointVelocities[:], 3),
			GripperState:    rs.GripperState,
			BatteryLevel:    round(rs.BatteryLevel, 1),
			Temperature:     round(rs.Temperature, 1),
		},
	}
}

// NewMetricsSnapshot renders m. elapsed is the duration so far; rate may be nil.
func NewMetricsSnapshot(m world.EpisodeMetrics, elapsed time.Duration, rate *float64) MetricsSnapshot {
	var r *float64
	if rate != nil {
		v := round(*rate, 3)
		r = &v
	}
	return MetricsSnapshot{
		Success:           m.Success,
		Retries:           m.Retries,
		Replans:           m.Replans,
		StepsExecuted:     m.StepsExecuted,
		DurationS:         round(elapsed.Seconds(), 3),
		FailReason:        optional(m.FailReason),
		SuccessRateLast10: r,
	}
}

// #endregion builders

// #region codec

// Encode serializes f as a single compact JSON object.
func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Decode parses a frame produced by Encode.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

// #endregion codec

// #region helpers

// Deref returns *s or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func roundAll(vs []float64, places int) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = round(v, places)
	}
	return out
}

// #endregion helpers
