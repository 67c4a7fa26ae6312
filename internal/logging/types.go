package logging

import "time"

// #region transition

// Transition kinds.
const (
	KindReplan   = "replan"
	KindTerminal = "terminal"
)

// Transition is a single row in the transitions table: a visible phase change
// (replan or episode end) and the reason that triggered it.
type Transition struct {
	EpisodeID string    `json:"episode_id"`
	Tick      int       `json:"tick"`
	FromPhase string    `json:"from_phase"`
	ToPhase   string    `json:"to_phase"`
	Kind      string    `json:"kind"` // "replan" | "terminal"
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// #endregion transition
