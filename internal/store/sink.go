package store

import (
	"log"

	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
)

// FrameSink streams frames into the frames table as they are emitted.
// Pair it with RecordEpisode(rec, nil) once the episode ends.
type FrameSink struct {
	store *Store
}

// NewFrameSink creates a sink writing through s.
func NewFrameSink(s *Store) *FrameSink {
	return &FrameSink{store: s}
}

// Emit inserts frame. Errors are logged so the control loop keeps running.
func (fs *FrameSink) Emit(frame telemetry.Frame) {
	if err := insertFrame(fs.store.db, frame.EpisodeID, frame); err != nil {
		log.Printf("[STORE] %v", err)
	}
}
