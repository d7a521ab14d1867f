package orchestrator

import "errors"

var (
	// ErrCostLimitExceeded indicates the session spent limits.max_total_cost.
	ErrCostLimitExceeded = errors.New("cost limit exceeded")

	// ErrSessionTerminal indicates a resume of a session that already ended.
	ErrSessionTerminal = errors.New("session already ended")

	// ErrGateViolation indicates a blocking gate violation.
	ErrGateViolation = errors.New("gate violation")

	// ErrSaveFailed indicates the session store rejected a write.
	ErrSaveFailed = errors.New("session save failed")

	// ErrNoFeedbackSource indicates an interactive run without a FeedbackSource.
	ErrNoFeedbackSource = errors.New("interactive session requires a feedback source")
)
