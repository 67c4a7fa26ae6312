package replay

import (
	"iter"

	"github.com/danielpatrickdp/track1-autonomy/internal/robot"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

// ActionApply is the script key for raw policy actions.
const ActionApply = "APPLY"

var (
	_ robot.Robot         = (*ScriptedRobot)(nil)
	_ robot.ActionApplier = (*ScriptedRobot)(nil)
)

// ScriptedRobot replays a fixture's scene and per-action results exactly.
type ScriptedRobot struct {
	fixture *Fixture

	objects map[string]*world.DetectedObject
	hidden  map[string]bool
	queues  map[string][]bool
	always  map[string]bool
	held    string
	calls   []string
}

// NewScriptedRobot creates a robot for f. Reset must run before use.
func NewScriptedRobot(f *Fixture) *ScriptedRobot {
	r := &ScriptedRobot{fixture: f}
	r.Reset(nil)
	return r
}

// Reset restores the fixture's initial scene and script. The seed is ignored.
func (r *ScriptedRobot) Reset(*int64) {
	r.objects = make(map[string]*world.DetectedObject, len(r.fixture.Objects))
	r.hidden = make(map[string]bool)
	for _, fo := range r.fixture.Objects {
		o := fo.ToObject()
		r.objects[o.ID] = &o
		if fo.Hidden {
			r.hidden[o.ID] = true
		}
	}
	r.queues = make(map[string][]bool, len(r.fixture.Script.Results))
	for k, v := range r.fixture.Script.Results {
		r.queues[k] = append([]bool(nil), v...)
	}
	r.always = make(map[string]bool, len(r.fixture.Script.AlwaysFail))
	for _, k := range r.fixture.Script.AlwaysFail {
		r.always[k] = true
	}
	r.held = ""
	r.calls = nil
}

// Observe yields the non-hidden objects in fixture order.
func (r *ScriptedRobot) Observe() iter.Seq[world.DetectedObject] {
	return func(yield func(world.DetectedObject) bool) {
		for _, fo := range r.fixture.Objects {
			if r.hidden[fo.ID] {
				continue
			}
			if !yield(r.objects[fo.ID].Clone()) {
				return
			}
		}
	}
}

func (r *ScriptedRobot) next(action string) bool {
	r.calls = append(r.calls, action)
	if r.always[action] {
		return false
	}
	q := r.queues[action]
	if len(q) == 0 {
		return true
	}
	r.queues[action] = q[1:]
	return q[0]
}

// Search reveals hidden objects of class on success.
func (r *ScriptedRobot) Search(class world.ObjectClass) bool {
	if !r.next(string(world.ActionSearch)) {
		return false
	}
	for id := range r.hidden {
		if r.objects[id].Class == class {
			delete(r.hidden, id)
			r.objects[id].Visible = true
		}
	}
	return true
}

func (r *ScriptedRobot) Navigate(id string) bool {
	return r.next(string(world.ActionNavigate)) && r.objects[id] != nil
}

// Grasp applies the simulator's preconditions before taking the object.
func (r *ScriptedRobot) Grasp(id string) bool {
	if !r.next(string(world.ActionGrasp)) {
		return false
	}
	if r.held != "" {
		return false
	}
	obj, ok := r.objects[id]
	if !ok || r.hidden[id] || !obj.Visible || obj.InContainer {
		return false
	}
	r.held = id
	return true
}

func (r *ScriptedRobot) PlaceInContainer(id, containerID string) bool {
	if !r.next(string(world.ActionPlaceInContainer)) {
		return false
	}
	if r.held != id || r.objects[containerID] == nil {
		return false
	}
	r.objects[id].InContainer = true
	r.held = ""
	return true
}

// VerifyGoal reports whether any target-class object is contained.
func (r *ScriptedRobot) VerifyGoal(goal world.Goal) bool {
	for _, o := range r.objects {
		if o.Class == goal.TargetClass && o.InContainer {
			return true
		}
	}
	return false
}

func (r *ScriptedRobot) HeldObjectID() string { return r.held }

// ApplyAction consumes the APPLY script entry.
func (r *ScriptedRobot) ApplyAction(map[string]any) bool {
	return r.next(ActionApply)
}

// Calls returns the scripted actions invoked since the last reset.
func (r *ScriptedRobot) Calls() []string {
	return append([]string(nil), r.calls...)
}
