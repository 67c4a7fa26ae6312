// Package logging records the control loop's visible decisions (replans and
// episode outcomes) to the transitions table.
package logging

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region log-transition

// LogTransition writes a row to the transitions table.
func LogTransition(db *sql.DB, entry Transition) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO transitions (episode_id, tick, from_phase, to_phase, kind, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.EpisodeID,
		entry.Tick,
		entry.FromPhase,
		entry.ToPhase,
		entry.Kind,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log transition: %w", err)
	}
	return nil
}

// ListTransitions returns an episode's transitions in order.
func ListTransitions(db *sql.DB, episodeID string) ([]Transition, error) {
	rows, err := db.Query(
		`SELECT episode_id, tick, from_phase, to_phase, kind, reason, created_at
		 FROM transitions WHERE episode_id = ? ORDER BY id`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var out []Transition
	for rows.Next() {
		var t Transition
		var reason sql.NullString
		var created string
		if err := rows.Scan(&t.EpisodeID, &t.Tick, &t.FromPhase, &t.ToPhase, &t.Kind, &reason, &created); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		t.Reason = reason.String
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// #endregion log-transition

// #region transition-sink

// TransitionLog is a telemetry sink that records replan and terminal frames.
type TransitionLog struct {
	db *sql.DB

	mu   sync.Mutex
	last map[string]string // episode id -> previous phase
}

// NewTransitionLog creates a sink writing to db.
func NewTransitionLog(db *sql.DB) *TransitionLog {
	return &TransitionLog{db: db, last: make(map[string]string)}
}

// Emit logs frame when it marks a replan or the end of an episode.
func (l *TransitionLog) Emit(frame telemetry.Frame) {
	l.mu.Lock()
	prev, ok := l.last[frame.EpisodeID]
	if !ok {
		prev = world.PhaseIdle
	}
	l.last[frame.EpisodeID] = frame.Phase
	if world.IsTerminalPhase(frame.Phase) {
		delete(l.last, frame.EpisodeID)
	}
	l.mu.Unlock()

	entry, ok := classify(prev, frame)
	if !ok {
		return
	}
	if err := LogTransition(l.db, entry); err != nil {
		log.Printf("[STORE] %v", err)
	}
}

func classify(prev string, frame telemetry.Frame) (Transition, bool) {
	entry := Transition{
		EpisodeID: frame.EpisodeID,
		Tick:      frame.World.Tick,
		FromPhase: prev,
		ToPhase:   frame.Phase,
	}
	switch {
	case world.IsReplanPhase(frame.Phase):
		entry.Kind = KindReplan
		entry.Reason = telemetry.Deref(frame.LastError)
		if frame.Phase == world.PhaseReplanEmptyPlan {
			entry.Reason = "plan_exhausted"
		}
	case world.IsTerminalPhase(frame.Phase):
		entry.Kind = KindTerminal
		entry.Reason = telemetry.Deref(frame.Metrics.FailReason)
	default:
		return Transition{}, false
	}
	return entry, true
}

// #endregion transition-sink

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
