// Package planner turns a goal and a world snapshot into an ordered step sequence.
package planner

import (
	"sort"
	"strings"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// #region config

// Config holds planner thresholds.
type Config struct {
	LowConfidenceThreshold float64 // below this (or occluded) the target is searched first
}

// DefaultConfig returns the standard planner thresholds.
func DefaultConfig() Config {
	return Config{LowConfidenceThreshold: 0.6}
}

// Notes attached to generated SEARCH steps.
const (
	NoteLowConfidenceTarget = "low_confidence_target"
	notePrefixFind          = "find_"
)

// #endregion config

// #region planner

// Planner is stateless; Build is safe to call any number of times.
type Planner struct {
	config Config
}

// New creates a planner.
func New(config Config) *Planner {
	return &Planner{config: config}
}

// Build regenerates the full plan for goal from objects. It never mutates objects.
func (p *Planner) Build(goal world.Goal, objects map[string]world.DetectedObject) []world.PlanStep {
	target, ok := BestTarget(goal.TargetClass, objects, false)
	if !ok {
		return []world.PlanStep{findStep(goal.TargetClass)}
	}

	container, ok := BestTarget(goal.ContainerClass, objects, true)
	if !ok {
		return []world.PlanStep{
			findStep(goal.ContainerClass),
			findStep(goal.TargetClass),
		}
	}

	steps := make([]world.PlanStep, 0, 6)
	if target.Confidence < p.config.LowConfidenceThreshold || !target.Visible {
		steps = append(steps, world.PlanStep{
			Action:   world.ActionSearch,
			TargetID: target.ID,
			Note:     NoteLowConfidenceTarget,
		})
	}
	steps = append(steps,
		world.PlanStep{Action: world.ActionNavigate, TargetID: target.ID},
		world.PlanStep{Action: world.ActionGrasp, TargetID: target.ID},
		world.PlanStep{Action: world.ActionNavigate, TargetID: container.ID},
		world.PlanStep{Action: world.ActionPlaceInContainer, TargetID: target.ID, Note: container.ID},
		world.PlanStep{Action: world.ActionVerify, Note: string(goal.TargetClass)},
	)
	return steps
}

func findStep(class world.ObjectClass) world.PlanStep {
	return world.PlanStep{Action: world.ActionSearch, Note: notePrefixFind + string(class)}
}

// #endregion planner

// #region target-selection

// BestTarget picks the highest-ranked object of class. Contained objects are
// skipped unless includeContained is set (used when selecting a container).
// Ranking is visible first, then confidence, then id for a stable tie-break.
func BestTarget(class world.ObjectClass, objects map[string]world.DetectedObject, includeContained bool) (world.DetectedObject, bool) {
	candidates := make([]world.DetectedObject, 0, len(objects))
	for _, obj := range objects {
		if obj.Class != class {
			continue
		}
		if obj.InContainer && !includeContained {
			continue
		}
		candidates = append(candidates, obj)
	}
	if len(candidates) == 0 {
		return world.DetectedObject{}, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Visible != b.Visible {
			return a.Visible
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.ID < b.ID
	})
	return candidates[0], true
}

// #endregion target-selection

// #region parse

// ParseTargetClass returns the first object class whose name appears in note.
func ParseTargetClass(note string) (world.ObjectClass, bool) {
	for _, c := range world.AllClasses {
		if strings.Contains(note, string(c)) {
			return c, true
		}
	}
	return "", false
}

// #endregion parse
