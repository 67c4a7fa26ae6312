// Package store persists episodes, their telemetry frames, and phase
// transitions in SQLite.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// ErrNotFound is returned when an episode id has no row.
var ErrNotFound = errors.New("episode not found")

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id     TEXT PRIMARY KEY,
	target         TEXT NOT NULL,
	container      TEXT NOT NULL,
	seed           INTEGER,
	success        INTEGER NOT NULL,
	retries        INTEGER NOT NULL,
	replans        INTEGER NOT NULL,
	steps_executed INTEGER NOT NULL,
	fail_reason    TEXT,
	duration_ms    INTEGER NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS frames (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	episode_id     TEXT NOT NULL,
	tick           INTEGER NOT NULL,
	phase          TEXT NOT NULL,
	current_action TEXT NOT NULL,
	frame_json     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_frames_episode ON frames(episode_id, id);

CREATE TABLE IF NOT EXISTS transitions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	episode_id  TEXT NOT NULL,
	tick        INTEGER NOT NULL,
	from_phase  TEXT NOT NULL,
	to_phase    TEXT NOT NULL,
	kind        TEXT NOT NULL,
	reason      TEXT,
	created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transitions_episode ON transitions(episode_id, id);
`

// #endregion schema

// #region store-struct

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if dbPath == ":memory:" {
		// each pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for use by other packages (e.g. logging).
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion store-struct

// #region record

// RecordEpisode inserts the episode row and its frames in one transaction.
// An empty rec.ID is assigned a fresh uuid.
func (s *Store) RecordEpisode(rec EpisodeRecord, frames []telemetry.Frame) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	m := rec.Metrics
	_, err = tx.Exec(
		`INSERT INTO episodes (episode_id, target, container, seed, success, retries, replans,
		 steps_executed, fail_reason, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, string(rec.Target), string(rec.Container), nullableSeed(rec.Seed), boolInt(m.Success),
		m.Retries, m.Replans, m.StepsExecuted, nullIfEmpty(m.FailReason), m.Duration.Milliseconds(),
		rec.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert episode: %w", err)
	}

	for _, f := range frames {
		if err := insertFrame(tx, rec.ID, f); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return rec.ID, nil
}

// RecordResult stores an orchestrator result together with its timeline.
func (s *Store) RecordResult(res orchestrator.EpisodeResult) error {
	_, err := s.RecordEpisode(EpisodeRecord{
		ID:        res.ID,
		Target:    res.Goal.TargetClass,
		Container: res.Goal.ContainerClass,
		Seed:      res.Seed,
		Metrics:   res.Metrics,
	}, res.Timeline)
	return err
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func insertFrame(db execer, episodeID string, f telemetry.Frame) error {
	data, err := telemetry.Encode(f)
	if err != nil {
		return err
	}
	_, err = db.Exec(
		`INSERT INTO frames (episode_id, tick, phase, current_action, frame_json) VALUES (?, ?, ?, ?, ?)`,
		episodeID, f.World.Tick, f.Phase, f.CurrentAction, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

// #endregion record

// #region query

const episodeColumns = `episode_id, target, container, seed, success, retries, replans,
	steps_executed, fail_reason, duration_ms, created_at`

// GetEpisode reads one episode by id.
func (s *Store) GetEpisode(id string) (EpisodeRecord, error) {
	row := s.db.QueryRow(`SELECT `+episodeColumns+` FROM episodes WHERE episode_id = ?`, id)
	rec, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return EpisodeRecord{}, fmt.Errorf("get episode %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return EpisodeRecord{}, fmt.Errorf("get episode %s: %w", id, err)
	}
	return rec, nil
}

// ListEpisodes returns up to limit episodes, newest first.
func (s *Store) ListEpisodes(limit int) ([]EpisodeRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+episodeColumns+` FROM episodes ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRecord
	for rows.Next() {
		rec, err := scanEpisode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Frames returns the stored frames of an episode in emission order.
func (s *Store) Frames(episodeID string) ([]telemetry.Frame, error) {
	rows, err := s.db.Query(`SELECT frame_json FROM frames WHERE episode_id = ? ORDER BY id`, episodeID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var out []telemetry.Frame
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		f, err := telemetry.Decode([]byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// SuccessRate returns the success fraction over the last n episodes for a
// target class and how many episodes it covers. An empty target matches all.
func (s *Store) SuccessRate(target world.ObjectClass, lastN int) (float64, int, error) {
	rows, err := s.db.Query(
		`SELECT success FROM episodes WHERE (? = '' OR target = ?)
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		string(target), string(target), lastN)
	if err != nil {
		return 0, 0, fmt.Errorf("success rate: %w", err)
	}
	defer rows.Close()

	wins, n := 0, 0
	for rows.Next() {
		var ok int
		if err := rows.Scan(&ok); err != nil {
			return 0, 0, fmt.Errorf("scan success: %w", err)
		}
		wins += ok
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, nil
	}
	return float64(wins) / float64(n), n, nil
}

// FailureBreakdown counts failed episodes per fail reason, most frequent first.
func (s *Store) FailureBreakdown() ([]FailureCount, error) {
	rows, err := s.db.Query(
		`SELECT fail_reason, COUNT(*) AS n FROM episodes WHERE success = 0
		 GROUP BY fail_reason ORDER BY n DESC, fail_reason`)
	if err != nil {
		return nil, fmt.Errorf("failure breakdown: %w", err)
	}
	defer rows.Close()

	var out []FailureCount
	for rows.Next() {
		var reason sql.NullString
		var fc FailureCount
		if err := rows.Scan(&reason, &fc.Count); err != nil {
			return nil, fmt.Errorf("scan failure: %w", err)
		}
		fc.Reason = reason.String
		out = append(out, fc)
	}
	return out, rows.Err()
}

// #endregion query

// #region helpers

type scanner interface {
	Scan(dest ...any) error
}

func scanEpisode(sc scanner) (EpisodeRecord, error) {
	var rec EpisodeRecord
	var target, container, createdStr string
	var seed sql.NullInt64
	var success int
	var failReason sql.NullString
	var durationMs int64

	err := sc.Scan(&rec.ID, &target, &container, &seed, &success, &rec.Metrics.Retries, &rec.Metrics.Replans,
		&rec.Metrics.StepsExecuted, &failReason, &durationMs, &createdStr)
	if err != nil {
		return EpisodeRecord{}, err
	}
	rec.Target = world.ObjectClass(target)
	rec.Container = world.ObjectClass(container)
	if seed.Valid {
		v := seed.Int64
		rec.Seed = &v
	}
	rec.Metrics.Success = success == 1
	rec.Metrics.FailReason = failReason.String
	rec.Metrics.Duration = time.Duration(durationMs) * time.Millisecond
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

func nullableSeed(seed *int64) any {
	if seed == nil {
		return nil
	}
	return *seed
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
