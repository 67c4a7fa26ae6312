package eval

import "github.com/danielpatrickdp/track1-autonomy/internal/orchestrator"

// #region eval-config
// EvalConfig holds the budgets an episode timeline is checked against.
type EvalConfig struct {
	MaxRetriesPerStep int
	MaxReplans        int
	MaxTicks          int
}

// DefaultEvalConfig mirrors orchestrator.DefaultConfig.
func DefaultEvalConfig() EvalConfig {
	return FromOrchestrator(orchestrator.DefaultConfig())
}

// FromOrchestrator checks against the budgets of c.
func FromOrchestrator(c orchestrator.Config) EvalConfig {
	return EvalConfig{
		MaxRetriesPerStep: c.MaxRetriesPerStep,
		MaxReplans:        c.MaxReplans,
		MaxTicks:          c.MaxTicks,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name   string
	Pass   bool
	Detail string
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of checking one episode.
type EvalResult struct {
	EpisodeID string
	Passed    bool
	Metrics   []EvalMetric
	Reason    string
}

// SweepReport aggregates a multi-seed run.
type SweepReport struct {
	Episodes   int
	Successes  int
	Violations []EvalResult // failed checks only
}

// SuccessRate returns Successes / Episodes, or 0 when empty.
func (r SweepReport) SuccessRate() float64 {
	if r.Episodes == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Episodes)
}

// #endregion eval-result
