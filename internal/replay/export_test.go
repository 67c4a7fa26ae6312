package replay

import (
	"testing"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
	"github.com/danielpatrickdp/track1-autonomy/internal/world"
)

func TestFromTimeline_RoundTrip(t *testing.T) {
	for _, name := range []string{
		"happy_path.json",
		"grasp_retry.json",
		"max_ticks.json",
		"replan_exhausted.json",
		"search_reveal.json",
		"target_absent.json",
	} {
		t.Run(name, func(t *testing.T) {
			src := mustLoad(t, name)
			first := Run(src, quiet())

			exported := FromTimeline("exported "+name, src.ToGoal(), first.Result.Metrics, src.ToConfig(), first.Result.Timeline)
			if err := exported.validate(); err != nil {
				t.Fatalf("exported fixture invalid: %v", err)
			}
			second := Run(exported, quiet())
			if !second.Passed() {
				for _, m := range second.Mismatches {
					t.Errorf("%s", m)
				}
			}
		})
	}
}

func TestFromTimeline_HiddenAfterSearch(t *testing.T) {
	src := mustLoad(t, "search_reveal.json")
	res := Run(src, quiet()).Result
	f := FromTimeline("reveal", src.ToGoal(), res.Metrics, src.ToConfig(), res.Timeline)

	hidden := map[string]bool{}
	for _, o := range f.Objects {
		hidden[o.ID] = o.Hidden
	}
	if !hidden["cup_1"] || hidden["bin_1"] {
		t.Fatalf("hidden = %v", hidden)
	}
	if f.Script.Results != nil {
		t.Fatalf("all actions succeeded; script = %v", f.Script.Results)
	}
}

func TestFromTimeline_ScriptsFailures(t *testing.T) {
	src := mustLoad(t, "grasp_retry.json")
	res := Run(src, quiet()).Result
	f := FromTimeline("retry", src.ToGoal(), res.Metrics, src.ToConfig(), res.Timeline)

	got := f.Script.Results[string(world.ActionGrasp)]
	if len(got) != 2 || got[0] || got[1] {
		t.Fatalf("GRASP script = %v", got)
	}
	if _, ok := f.Script.Results[string(world.ActionNavigate)]; ok {
		t.Fatal("navigate never failed and should not be scripted")
	}
	if f.Goal.Container != "" {
		t.Fatalf("default container should be omitted, got %q", f.Goal.Container)
	}
}

func TestNextLabel(t *testing.T) {
	plan := []string{"NAVIGATE(cup_1)", "GRASP(cup_1)", "VERIFY"}
	errText := "grasp_failed:cup_1"
	cases := []struct {
		name string
		prev telemetry.Frame
		want string
		ok   bool
	}{
		{"after success", telemetry.Frame{Phase: "EXECUTE_NAVIGATE", Plan: plan, CurrentAction: plan[0]}, plan[1], true},
		{"after failure", telemetry.Frame{Phase: "EXECUTE_GRASP", Plan: plan, CurrentAction: plan[1], LastError: &errText}, plan[1], true},
		{"after replan", telemetry.Frame{Phase: world.PhaseReplanAfterFailure, Plan: plan, CurrentAction: plan[1], LastError: &errText}, plan[0], true},
		{"plan finished", telemetry.Frame{Phase: "EXECUTE_VERIFY", Plan: plan, CurrentAction: plan[2]}, "", false},
		{"empty replan", telemetry.Frame{Phase: world.PhaseReplanEmptyPlan, CurrentAction: orchestrator.ActionLabelReplan}, "", false},
	}
	for _, tc := range cases {
		got, ok := nextLabel(tc.prev)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
