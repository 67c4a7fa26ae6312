// Package policy routes action generation between the symbolic planner and
// an external policy server.
package policy

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region mode

// Mode selects where actions come from.
type Mode string

const (
	// ModeSymbolic defers every step to the planner and executor.
	ModeSymbolic Mode = "symbolic"
	// ModeGRPC asks a remote policy server for raw actions.
	ModeGRPC Mode = "grpc"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSymbolic, "":
		return ModeSymbolic, nil
	case ModeGRPC:
		return ModeGRPC, nil
	}
	return "", fmt.Errorf("unknown policy mode %q", s)
}

// #endregion mode

// #region observation

// Observation is what a policy sees for one tick.
type Observation struct {
	Tick         int
	Instruction  string
	Step         world.PlanStep
	HeldObjectID string
	Objects      map[string]world.DetectedObject
	Robot        world.RobotState
}

// Source produces raw actions. A nil action with a nil error means "no opinion".
type Source interface {
	GetAction(ctx context.Context, obs Observation) (map[string]any, error)
}

// #endregion observation

// #region router

// DefaultTimeout bounds one remote policy call.
const DefaultTimeout = 500 * time.Millisecond

// Router picks the action source for each tick.
type Router struct {
	mode    Mode
	source  Source
	timeout time.Duration
}

// NewRouter creates a router. source is ignored in symbolic mode.
func NewRouter(mode Mode, source Source, timeout time.Duration) (*Router, error) {
	if mode == ModeGRPC && source == nil {
		return nil, fmt.Errorf("policy mode %s requires a source", mode)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Router{mode: mode, source: source, timeout: timeout}, nil
}

// Symbolic returns a router that never produces actions.
func Symbolic() *Router {
	return &Router{mode: ModeSymbolic, timeout: DefaultTimeout}
}

// Mode returns the routing mode.
func (r *Router) Mode() Mode { return r.mode }

// Action returns a raw action for obs, or nil to let the executor run the step.
func (r *Router) Action(obs Observation) (map[string]any, error) {
	if r.mode == ModeSymbolic {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	action, err := r.source.GetAction(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("policy %s: %w", r.mode, err)
	}
	if len(action) == 0 {
		return nil, nil
	}
	log.Printf("[POLICY] tick=%d step=%s action keys=%d", obs.Tick, obs.Step.Label(), len(action))
	return action, nil
}

// #endregion router
