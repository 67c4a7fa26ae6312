package world

import (
	"errors"
	"testing"
)

func TestParseObjectClass(t *testing.T) {
	for _, c := range AllClasses {
		got, ok := ParseObjectClass(string(c))
		if !ok || got != c {
			t.Errorf("ParseObjectClass(%q) = %q, %v", c, got, ok)
		}
	}
	if _, ok := ParseObjectClass("spoon"); ok {
		t.Error("expected spoon to be rejected")
	}
}

func TestParseActionKind(t *testing.T) {
	a, err := ParseActionKind("GRASP")
	if err != nil || a != ActionGrasp {
		t.Fatalf("ParseActionKind(GRASP) = %q, %v", a, err)
	}
	_, err = ParseActionKind("DANCE")
	if !errors.Is(err, ErrUnknownAction) {
		t.Fatalf("expected ErrUnknownAction, got %v", err)
	}
}

func TestPlanStepLabel(t *testing.T) {
	cases := []struct {
		step PlanStep
		want string
	}{
		{PlanStep{Action: ActionSearch, Note: "find_cup"}, "SEARCH"},
		{PlanStep{Action: ActionGrasp, TargetID: "cup_1"}, "GRASP(cup_1)"},
		{PlanStep{Action: ActionPlaceInContainer, TargetID: "cup_1", Note: "bin_1"}, "PLACE_IN_CONTAINER(cup_1)"},
	}
	for _, c := range cases {
		if got := c.step.Label(); got != c.want {
			t.Errorf("Label() = %q, want %q", got, c.want)
		}
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	o := DetectedObject{ID: "cup_1", Properties: map[string]string{"graspable": "true"}}
	c := o.Clone()
	c.Properties["graspable"] = "false"
	if o.Properties["graspable"] != "true" {
		t.Error("clone aliased the property bag")
	}
}

func TestHeldObjectValid(t *testing.T) {
	w := NewWorldState()
	if !w.HeldObjectValid() {
		t.Fatal("empty held id should be valid")
	}
	w.HeldObjectID = "cup_1"
	if w.HeldObjectValid() {
		t.Fatal("held id for missing object should be invalid")
	}
	w.Objects["cup_1"] = DetectedObject{ID: "cup_1", InContainer: true}
	if w.HeldObjectValid() {
		t.Fatal("held id for contained object should be invalid")
	}
}
