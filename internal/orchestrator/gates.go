package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/session"
)

// Gate inspects the session before a state runs.
type Gate interface {
	// Name returns the gate identifier
	Name() string

	// Check validates gate conditions, returning violations if any
	Check(ctx context.Context, sess *session.Session) ([]Violation, error)
}

// ViolationType categorizes gate findings.
type ViolationType string

const (
	ViolationCostLimit      ViolationType = "cost_limit"
	ViolationRepeatedIssue  ViolationType = "repeated_issue"
	ViolationRoundsExceeded ViolationType = "rounds_exceeded"
)

// Severity indicates whether a violation stops the run.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Violation is one gate finding.
type Violation struct {
	Gate        string        `json:"gate"`
	Type        ViolationType `json:"type"`
	State       State         `json:"state"`
	Description string        `json:"description"`
	Severity    Severity      `json:"severity"`
	DetectedAt  time.Time     `json:"detected_at"`
}

// CostGate blocks agent calls once the session spent its budget.
type CostGate struct {
	state State
}

// NewCostGate creates a cost gate reporting against state.
func NewCostGate(state State) *CostGate {
	return &CostGate{state: state}
}

// Name returns the gate identifier
func (g *CostGate) Name() string {
	return "cost-limit"
}

// Check compares spent cost with the session's limit. A zero limit disables it.
func (g *CostGate) Check(ctx context.Context, sess *session.Session) ([]Violation, error) {
	limit := sess.Request.Settings.MaxTotalCost
	if limit <= 0 || sess.Usage.CostUSD < limit {
		return nil, nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Type:        ViolationCostLimit,
		State:       g.state,
		Description: fmt.Sprintf("spent $%.4f of $%.2f limit", sess.Usage.CostUSD, limit),
		Severity:    SeverityError,
		DetectedAt:  time.Now(),
	}}, nil
}

// RoundCapGate refuses to start a round past max_rounds.
type RoundCapGate struct{}

// NewRoundCapGate creates a round cap gate.
func NewRoundCapGate() *RoundCapGate {
	return &RoundCapGate{}
}

// Name returns the gate identifier
func (g *RoundCapGate) Name() string {
	return "round-cap"
}

// Check reports a violation when the next round would exceed the cap.
func (g *RoundCapGate) Check(ctx context.Context, sess *session.Session) ([]Violation, error) {
	if sess.Pending != nil || sess.NextIndex() <= sess.Request.MaxRounds {
		return nil, nil
	}
	return []Violation{{
		Gate:        g.Name(),
		Type:        ViolationRoundsExceeded,
		State:       StateDrafting,
		Description: fmt.Sprintf("round %d exceeds max rounds %d", sess.NextIndex(), sess.Request.MaxRounds),
		Severity:    SeverityError,
		DetectedAt:  time.Now(),
	}}, nil
}

// RepeatedIssueGate warns when the Critic raises an issue it already raised
// in the previous round. The round cap still guarantees termination.
type RepeatedIssueGate struct{}

// NewRepeatedIssueGate creates a repeated issue gate.
func NewRepeatedIssueGate() *RepeatedIssueGate {
	return &RepeatedIssueGate{}
}

// Name returns the gate identifier
func (g *RepeatedIssueGate) Name() string {
	return "repeated-issues"
}

// Check compares the pending critique with the last completed round.
func (g *RepeatedIssueGate) Check(ctx context.Context, sess *session.Session) ([]Violation, error) {
	if sess.Pending == nil || sess.Pending.Critique == nil || len(sess.Rounds) == 0 {
		return nil, nil
	}
	prev := sess.Rounds[len(sess.Rounds)-1].Critique
	repeated := plan.RepeatedIssues(&prev, sess.Pending.Critique)

	violations := make([]Violation, 0, len(repeated))
	for _, issue := range repeated {
		desc := issue.Description
		if issue.TargetStepRef != "" {
			desc = fmt.Sprintf("step %s: %s", issue.TargetStepRef, desc)
		}
		violations = append(violations, Violation{
			Gate:        g.Name(),
			Type:        ViolationRepeatedIssue,
			State:       StateIntegrating,
			Description: desc,
			Severity:    SeverityWarning,
			DetectedAt:  time.Now(),
		})
	}
	return violations, nil
}

// hasBlockingViolation checks if any violation should stop the run
func hasBlockingViolation(violations []Violation) bool {
	for _, v := range violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// violationError turns blocking violations into an error. Cost violations
// match ErrCostLimitExceeded.
func violationError(violations []Violation) error {
	var parts []string
	sentinel := ErrGateViolation
	for _, v := range violations {
		if v.Severity != SeverityError {
			continue
		}
		if v.Type == ViolationCostLimit {
			sentinel = ErrCostLimitExceeded
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", v.Type, v.Description))
	}
	return fmt.Errorf("%w: %s", sentinel, strings.Join(parts, "; "))
}
