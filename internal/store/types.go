package store

import (
	"time"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region episode-record

// EpisodeRecord is one row of the episodes table.
type EpisodeRecord struct {
	ID        string
	Target    world.ObjectClass
	Container world.ObjectClass
	Seed      *int64
	Metrics   world.EpisodeMetrics
	CreatedAt time.Time
}

// #endregion episode-record

// #region failure-count

// FailureCount aggregates episodes by fail reason.
type FailureCount struct {
	Reason string `json:"reason"`
	Count  int    `json:"count"`
}

// #endregion failure-count
