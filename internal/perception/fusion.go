// Package perception fuses per-tick detections into persistent object tracks.
package perception

import (
	"iter"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region config

// Config holds the blending and decay constants for track fusion.
type Config struct {
	ConfidenceDecay float64 // multiplicative decay for tracks missing from a tick
	BlendPrevious   float64
	BlendNew        float64
	MinConfidence   float64 // clamp floor for blended confidence
	MaxConfidence   float64
	PruneBelow      float64 // contained tracks below this are dropped
}

// DefaultConfig returns the standard fusion constants.
func DefaultConfig() Config {
	return Config{
		ConfidenceDecay: 0.94,
		BlendPrevious:   0.6,
		BlendNew:        0.4,
		MinConfidence:   0.05,
		MaxConfidence:   1.0,
		PruneBelow:      0.12,
	}
}

// #endregion config

// #region fusion

// Fusion owns the track table for one episode. Tracks are private copies;
// nothing outside Fusion holds a reference to them.
type Fusion struct {
	config Config
	tracks map[string]world.DetectedObject
}

// NewFusion creates an empty track table.
func NewFusion(config Config) *Fusion {
	return &Fusion{config: config, tracks: make(map[string]world.DetectedObject)}
}

// Reset drops every track.
func (f *Fusion) Reset() {
	clear(f.tracks)
}

// Len returns the number of live tracks.
func (f *Fusion) Len() int { return len(f.tracks) }

// Track returns a copy of the track for id.
func (f *Fusion) Track(id string) (world.DetectedObject, bool) {
	t, ok := f.tracks[id]
	if !ok {
		return world.DetectedObject{}, false
	}
	return t.Clone(), true
}

// #endregion fusion

// #region update

// Update folds one tick of detections into the track table and returns a fresh snapshot.
//
// Matched tracks blend confidence and take every other field from the detection.
// Unmatched tracks decay and become invisible; they are pruned only once contained
// and below PruneBelow. A track that was never contained is kept at any confidence.
func (f *Fusion) Update(detections iter.Seq[world.DetectedObject]) map[string]world.DetectedObject {
	seen := make(map[string]struct{})
	for det := range detections {
		seen[det.ID] = struct{}{}
		merged := det.Clone()
		if prev, ok := f.tracks[det.ID]; ok {
			blended := f.config.BlendPrevious*prev.Confidence + f.config.BlendNew*det.Confidence
			merged.Confidence = clamp(blended, f.config.MinConfidence, f.config.MaxConfidence)
		} else {
			merged.Confidence = clamp(det.Confidence, 0, 1)
		}
		f.tracks[det.ID] = merged
	}

	for id, track := range f.tracks {
		if _, ok := seen[id]; ok {
			continue
		}
		track.Confidence = max(0, track.Confidence*f.config.ConfidenceDecay)
		track.Visible = false
		if track.InContainer && track.Confidence < f.config.PruneBelow {
			delete(f.tracks, id)
			continue
		}
		f.tracks[id] = track
	}

	return f.Snapshot()
}

// Apply runs Update and merges the snapshot into state.
func (f *Fusion) Apply(state *world.WorldState, detections iter.Seq[world.DetectedObject]) {
	state.Objects = f.Update(detections)
}

// Snapshot returns a deep copy of the track table.
func (f *Fusion) Snapshot() map[string]world.DetectedObject {
	out := make(map[string]world.DetectedObject, len(f.tracks))
	for id, t := range f.tracks {
		out[id] = t.Clone()
	}
	return out
}

// #endregion update

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}
