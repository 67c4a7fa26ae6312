package planner

import (
	"reflect"
	"testing"

	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

func objects(objs ...world.DetectedObject) map[string]world.DetectedObject {
	m := make(map[string]world.DetectedObject, len(objs))
	for _, o := range objs {
		m[o.ID] = o
	}
	return m
}

func cup(id string, conf float64, visible bool) world.DetectedObject {
	return world.DetectedObject{ID: id, Class: world.ClassCup, Confidence: conf, Visible: visible}
}

func bin() world.DetectedObject {
	return world.DetectedObject{ID: "bin_1", Class: world.ClassBin, Confidence: 0.97, Visible: true}
}

func TestBuild_TargetAbsent(t *testing.T) {
	p := New(DefaultConfig())
	plan := p.Build(world.NewGoal(world.ClassCup), objects(bin()))

	if len(plan) != 1 {
		t.Fatalf("expected single step, got %v", world.Labels(plan))
	}
	if plan[0].Action != world.ActionSearch || plan[0].Note != "find_cup" {
		t.Fatalf("unexpected step %+v", plan[0])
	}
}

func TestBuild_ContainerAbsent(t *testing.T) {
	p := New(DefaultConfig())
	plan := p.Build(world.NewGoal(world.ClassCup), objects(cup("cup_1", 0.9, true)))

	want := []world.PlanStep{
		{Action: world.ActionSearch, Note: "find_bin"},
		{Action: world.ActionSearch, Note: "find_cup"},
	}
	if !reflect.DeepEqual(plan, want) {
		t.Fatalf("plan = %+v", plan)
	}
}

func TestBuild_ConfidentVisibleTarget(t *testing.T) {
	p := New(DefaultConfig())
	plan := p.Build(world.NewGoal(world.ClassCup), objects(cup("cup_1", 0.6, true), bin()))

	want := []string{"NAVIGATE(cup_1)", "GRASP(cup_1)", "NAVIGATE(bin_1)", "PLACE_IN_CONTAINER(cup_1)", "VERIFY"}
	if got := world.Labels(plan); !reflect.DeepEqual(got, want) {
		t.Fatalf("plan = %v, want %v", got, want)
	}
	if plan[3].Note != "bin_1" {
		t.Errorf("place note = %q", plan[3].Note)
	}
	if plan[4].Note != "cup" {
		t.Errorf("verify note = %q", plan[4].Note)
	}
}

func TestBuild_LowConfidencePrependsSearch(t *testing.T) {
	p := New(DefaultConfig())
	for _, c := range []world.DetectedObject{cup("cup_1", 0.59, true), cup("cup_1", 0.9, false)} {
		plan := p.Build(world.NewGoal(world.ClassCup), objects(c, bin()))
		if len(plan) != 6 {
			t.Fatalf("expected 6 steps, got %v", world.Labels(plan))
		}
		first := plan[0]
		if first.Action != world.ActionSearch || first.TargetID != "cup_1" || first.Note != NoteLowConfidenceTarget {
			t.Fatalf("unexpected first step %+v", first)
		}
	}
}

func TestBuild_SkipsContainedTargets(t *testing.T) {
	p := New(DefaultConfig())
	placed := cup("cup_1", 0.9, false)
	placed.InContainer = true
	plan := p.Build(world.NewGoal(world.ClassCup), objects(placed, bin()))
	if len(plan) != 1 || plan[0].Action != world.ActionSearch {
		t.Fatalf("contained cup should not be targeted: %v", world.Labels(plan))
	}
}

func TestBuild_Deterministic(t *testing.T) {
	p := New(DefaultConfig())
	objs := objects(cup("cup_1", 0.7, true), cup("cup_2", 0.7, true), cup("cup_3", 0.7, false), bin())
	goal := world.NewGoal(world.ClassCup)
	first := p.Build(goal, objs)
	for i := 0; i < 50; i++ {
		if got := p.Build(goal, objs); !reflect.DeepEqual(got, first) {
			t.Fatalf("plan changed on call %d: %v vs %v", i, world.Labels(got), world.Labels(first))
		}
	}
	if first[0].TargetID != "cup_1" {
		t.Errorf("tie should break on id, got %s", first[0].TargetID)
	}
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	p := New(DefaultConfig())
	objs := objects(cup("cup_1", 0.3, false), bin())
	before := objects(cup("cup_1", 0.3, false), bin())
	p.Build(world.NewGoal(world.ClassCup), objs)
	if !reflect.DeepEqual(objs, before) {
		t.Fatal("Build mutated its input")
	}
}

func TestBestTarget_Ranking(t *testing.T) {
	objs := objects(cup("cup_1", 0.95, false), cup("cup_2", 0.4, true))
	best, ok := BestTarget(world.ClassCup, objs, false)
	if !ok || best.ID != "cup_2" {
		t.Fatalf("visible candidate should win, got %+v", best)
	}
	if _, ok := BestTarget(world.ClassTool, objs, false); ok {
		t.Fatal("expected no tool target")
	}
}

func TestParseTargetClass(t *testing.T) {
	c, ok := ParseTargetClass("find_bottle")
	if !ok || c != world.ClassBottle {
		t.Fatalf("got %q %v", c, ok)
	}
	if _, ok := ParseTargetClass("low_confidence_target"); ok {
		t.Fatal("unexpected match")
	}
}
