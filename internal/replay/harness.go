package replay

import (
	"fmt"
	"log"
	"slices"

	"github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"
	"github.com/danielpatrickdp/track1-autonomy/internal/policy"
	"github.com/danielpatrickdp/track1-autonomy/internal/telemetry"
)

// #region types

// Mismatch is one expected/actual difference.
type Mismatch struct {
	Field string
	Want  string
	Got   string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: want %s, got %s", m.Field, m.Want, m.Got)
}

// Outcome is the result of replaying one fixture.
type Outcome struct {
	Fixture    string
	Result     orchestrator.EpisodeResult
	Calls      []string
	Mismatches []Mismatch
}

// Passed reports whether the episode matched its expectations.
func (o Outcome) Passed() bool { return len(o.Mismatches) == 0 }

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total  int
	Passed int
	Failed int
}

// Options customizes a replay run.
type Options struct {
	Sink   telemetry.Sink
	Logger *log.Logger
	Policy *policy.Router
}

// #endregion types

// #region replay

// Run replays f through a fresh orchestrator and compares the outcome.
func Run(f *Fixture, opts Options) Outcome {
	r := NewScriptedRobot(f)
	orchOpts := []orchestrator.Option{orchestrator.WithConfig(f.ToConfig())}
	if opts.Logger != nil {
		orchOpts = append(orchOpts, orchestrator.WithLogger(opts.Logger))
	}
	if opts.Policy != nil {
		orchOpts = append(orchOpts, orchestrator.WithPolicy(opts.Policy))
	}
	o := orchestrator.New(r, opts.Sink, orchOpts...)
	res := o.RunEpisode(f.ToGoal(), orchestrator.EpisodeOptions{})
	return Outcome{
		Fixture:    f.Name(),
		Result:     res,
		Calls:      r.Calls(),
		Mismatches: Compare(f.Expected, res),
	}
}

// RunAll replays every fixture in order.
func RunAll(fixtures []*Fixture, opts Options) []Outcome {
	out := make([]Outcome, 0, len(fixtures))
	for _, f := range fixtures {
		out = append(out, Run(f, opts))
	}
	return out
}

// Compare lists every difference between exp and res.
func Compare(exp FixtureExpected, res orchestrator.EpisodeResult) []Mismatch {
	var out []Mismatch
	m := res.Metrics
	if exp.Success != m.Success {
		out = append(out, Mismatch{"success", fmt.Sprint(exp.Success), fmt.Sprint(m.Success)})
	}
	if exp.FailReason != m.FailReason {
		out = append(out, Mismatch{"fail_reason", quote(exp.FailReason), quote(m.FailReason)})
	}
	checkInt := func(field string, want *int, got int) {
		if want != nil && *want != got {
			out = append(out, Mismatch{field, fmt.Sprint(*want), fmt.Sprint(got)})
		}
	}
	checkInt("steps_executed", exp.StepsExecuted, m.StepsExecuted)
	checkInt("retries", exp.Retries, m.Retries)
	checkInt("replans", exp.Replans, m.Replans)
	if exp.Actions != nil {
		got := StepActions(res.Timeline)
		if !slices.Equal(exp.Actions, got) {
			out = append(out, Mismatch{"actions", fmt.Sprint(exp.Actions), fmt.Sprint(got)})
		}
	}
	return out
}

// StepActions returns the current-action labels of frames that ran a plan step.
func StepActions(timeline []telemetry.Frame) []string {
	out := []string{}
	for _, f := range timeline {
		switch f.CurrentAction {
		case orchestrator.ActionLabelVerifyGoal, orchestrator.ActionLabelReplan,
			orchestrator.ActionLabelReplanFail, orchestrator.ActionLabelDone:
			continue
		}
		out = append(out, f.CurrentAction)
	}
	return out
}

// Summarize computes aggregate stats from replay outcomes.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Passed() {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

func quote(s string) string { return fmt.Sprintf("%q", s) }

// #endregion replay
