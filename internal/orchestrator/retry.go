package orchestrator

// #region budget

// RetryBudget tracks per-step retries and episode replans against their limits.
type RetryBudget struct {
	maxRetries int
	maxReplans int

	onStep  int
	retries int
	replans int
}

// NewRetryBudget creates a budget for one episode.
func NewRetryBudget(maxRetriesPerStep, maxReplans int) *RetryBudget {
	return &RetryBudget{maxRetries: maxRetriesPerStep, maxReplans: maxReplans}
}

// #endregion

// #region transitions

// Succeed clears the per-step counter after a step succeeds.
func (b *RetryBudget) Succeed() {
	b.onStep = 0
}

// Fail records a step failure and reports whether the step's retries are used up.
func (b *RetryBudget) Fail() (forceReplan bool) {
	b.onStep++
	b.retries++
	return b.onStep > b.maxRetries
}

// Replan records a replan and reports whether the replan budget is now exceeded.
func (b *RetryBudget) Replan() (exhausted bool) {
	b.replans++
	b.onStep = 0
	return b.replans > b.maxReplans
}

// #endregion

// #region accessors

// OnStep returns failures of the current step.
func (b *RetryBudget) OnStep() int { return b.onStep }

// Retries returns cumulative failures in the episode.
func (b *RetryBudget) Retries() int { return b.retries }

// Replans returns replans in the episode.
func (b *RetryBudget) Replans() int { return b.replans }

// #endregion
