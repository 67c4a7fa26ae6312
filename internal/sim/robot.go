// Package sim is a stochastic ground-truth scene used to drive and test the control loop.
package sim

import (
	"iter"
	"math/rand/v2"

	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

var _ robot.Robot = (*Robot)(nil)

// #region config

// Config holds the probabilities that make the scene stochastic.
// Success draws use r.Float64() < p, so p = 1 forces success and p = 0 forces failure.
type Config struct {
	TargetVisibleProb     float64 // cup starts visible with this probability
	ObserveOccludedDrop   float64 // occluded objects are missed with this probability
	ObserveContainedDrop  float64 // contained objects are missed with this probability
	JitterLow             float64
	JitterHigh            float64
	ContainerConfidence   float64 // container is always reported at this confidence
	SearchRevealProb      float64
	RevealConfidenceFloor float64
	DriftProb             float64
	DriftMax              float64
	NavigateSuccess       float64
	GraspConfidenceTier   float64
	GraspSuccessHigh      float64 // confidence >= tier
	GraspSuccessLow       float64
	PlaceSuccess          float64
}

// DefaultConfig returns the tuned Track-1 scene parameters.
func DefaultConfig() Config {
	return Config{
		TargetVisibleProb:     0.75,
		ObserveOccludedDrop:   0.75,
		ObserveContainedDrop:  0.85,
		JitterLow:             -0.12,
		JitterHigh:            0.10,
		ContainerConfidence:   0.97,
		SearchRevealProb:      0.8,
		RevealConfidenceFloor: 0.65,
		DriftProb:             0.15,
		DriftMax:              0.03,
		NavigateSuccess:       0.94,
		GraspConfidenceTier:   0.55,
		GraspSuccessHigh:      0.88,
		GraspSuccessLow:       0.7,
		PlaceSuccess:          0.96,
	}
}

// #endregion config

// #region robot-struct

// Robot is a seeded, deterministic ground-truth scene implementing robot.Robot.
type Robot struct {
	config   Config
	baseSeed int64
	seed     int64
	episode  int
	rng      *rand.Rand
	held     string
	objects  map[string]*world.DetectedObject
	order    []string // insertion order keeps the RNG stream reproducible
}

// New creates a simulated robot and resets it with seed.
func New(seed int64, config Config) *Robot {
	r := &Robot{config: config, baseSeed: seed}
	r.Reset(&seed)
	return r
}

// #endregion robot-struct

// #region reset

// Reset rebuilds the scene. A nil seed uses base seed + episode counter.
func (r *Robot) Reset(seed *int64) {
	s := r.baseSeed + int64(r.episode)
	if seed != nil {
		s = *seed
	}
	r.episode++
	r.seed = s
	r.rng = rand.New(rand.NewPCG(uint64(s), uint64(s)^0x9e3779b97f4a7c15))
	r.held = ""
	r.objects = make(map[string]*world.DetectedObject)
	r.order = r.order[:0]

	cupVisible := r.rng.Float64() < r.config.TargetVisibleProb
	cupConf := 0.2
	if cupVisible {
		cupConf = 0.75
	}
	r.add(world.DetectedObject{
		ID:         "cup_1",
		Class:      world.ClassCup,
		Position:   world.Vec3{r.uniform(0.2, 0.9), r.uniform(-0.4, 0.4), 0.75},
		Confidence: cupConf,
		Visible:    cupVisible,
		Properties: map[string]string{"graspable": "true"},
	})
	r.add(world.DetectedObject{
		ID:         "bottle_1",
		Class:      world.ClassBottle,
		Position:   world.Vec3{r.uniform(0.2, 0.9), r.uniform(-0.4, 0.4), 0.75},
		Confidence: 0.7,
		Visible:    true,
		Properties: map[string]string{"graspable": "true"},
	})
	r.add(world.DetectedObject{
		ID:         "bin_1",
		Class:      world.ClassBin,
		Position:   world.Vec3{1.4, 0.0, 0.0},
		Confidence: 0.98,
		Visible:    true,
		Properties: map[string]string{"container": "true"},
	})
}

func (r *Robot) add(obj world.DetectedObject) {
	o := obj
	r.objects[o.ID] = &o
	r.order = append(r.order, o.ID)
}

// #endregion reset

// #region observe

// Observe returns a lazy, single-use detection stream. Detections are copies;
// RNG draws happen as the stream is consumed. Ranging over it a second time yields nothing.
func (r *Robot) Observe() iter.Seq[world.DetectedObject] {
	snapshot := r.Objects()
	used := false
	return func(yield func(world.DetectedObject) bool) {
		if used {
			return
		}
		used = true
		for _, obj := range snapshot {
			det, ok := r.detect(obj)
			if !ok {
				continue
			}
			if !yield(det) {
				return
			}
		}
	}
}

func (r *Robot) detect(obj world.DetectedObject) (world.DetectedObject, bool) {
	if obj.Class == world.ClassBin {
		obj.Confidence = r.config.ContainerConfidence
		return obj, true
	}
	if !obj.Visible && r.rng.Float64() < r.config.ObserveOccludedDrop {
		return obj, false
	}
	if obj.InContainer && r.rng.Float64() < r.config.ObserveContainedDrop {
		return obj, false
	}
	noise := r.uniform(r.config.JitterLow, r.config.JitterHigh)
	obj.Confidence = clamp(obj.Confidence+noise, 0.05, 1.0)
	return obj, true
}

// #endregion observe

// #region capabilities

// Search looks for the best uncontained candidate of class.
func (r *Robot) Search(class world.ObjectClass) bool {
	target := r.findAny(class)
	if target == nil {
		return false
	}
	if target.Visible {
		return true
	}
	if r.rng.Float64() < r.config.SearchRevealProb {
		target.Visible = true
		target.Confidence = max(target.Confidence, r.config.RevealConfidenceFloor)
		return true
	}
	return false
}

// Navigate moves toward id. The target may drift regardless of the outcome.
func (r *Robot) Navigate(id string) bool {
	obj, ok := r.objects[id]
	if !ok {
		return false
	}
	if r.rng.Float64() < r.config.DriftProb {
		obj.Position[0] += r.uniform(-r.config.DriftMax, r.config.DriftMax)
		obj.Position[1] += r.uniform(-r.config.DriftMax, r.config.DriftMax)
	}
	return r.rng.Float64() < r.config.NavigateSuccess
}

// Grasp picks up id if the gripper is free and the object is reachable.
func (r *Robot) Grasp(id string) bool {
	if r.held != "" {
		return false
	}
	obj, ok := r.objects[id]
	if !ok || obj.InContainer || !obj.Visible {
		return false
	}
	p := r.config.GraspSuccessLow
	if obj.Confidence >= r.config.GraspConfidenceTier {
		p = r.config.GraspSuccessHigh
	}
	if r.rng.Float64() < p {
		r.held = id
		return true
	}
	return false
}

// PlaceInContainer drops the held object id into containerID.
func (r *Robot) PlaceInContainer(id, containerID string) bool {
	if _, ok := r.objects[containerID]; !ok {
		return false
	}
	obj, ok := r.objects[id]
	if !ok || r.held != id {
		return false
	}
	if r.rng.Float64() < r.config.PlaceSuccess {
		obj.InContainer = true
		obj.Visible = false
		r.held = ""
		return true
	}
	return false
}

// VerifyGoal reports whether any object of the goal's target class is contained.
func (r *Robot) VerifyGoal(goal world.Goal) bool {
	for _, id := range r.order {
		obj := r.objects[id]
		if obj.Class == goal.TargetClass && obj.InContainer {
			return true
		}
	}
	return false
}

// HeldObjectID returns the id of the held object, or "".
func (r *Robot) HeldObjectID() string {
	return r.held
}

// #endregion capabilities

// #region accessors

// Objects returns copies of the ground-truth objects in insertion order.
func (r *Robot) Objects() []world.DetectedObject {
	out := make([]world.DetectedObject, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.objects[id].Clone())
	}
	return out
}

// Seed returns the seed of the current scene.
func (r *Robot) Seed() int64 { return r.seed }

// Episode returns how many times the scene has been reset.
func (r *Robot) Episode() int { return r.episode }

// #endregion accessors

// #region helpers

func (r *Robot) findAny(class world.ObjectClass) *world.DetectedObject {
	var best *world.DetectedObject
	for _, id := range r.order {
		obj := r.objects[id]
		if obj.Class != class || obj.InContainer {
			continue
		}
		if best == nil || obj.Confidence > best.Confidence {
			best = obj
		}
	}
	return best
}

func (r *Robot) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*r.rng.Float64()
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// #endregion helpers
