package orchestrator

import (
	"context"
	"time"

	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/repocontext"
	"github.com/fyrsmithlabs/planify/internal/session"
)

// State is a node of the planning state machine.
type State string

const (
	// StateStart creates or loads the session and fetches repository context
	StateStart State = "START"

	// StateDrafting asks the Architect for a plan
	StateDrafting State = "DRAFTING"

	// StateCritiquing asks the Critic to review the draft
	StateCritiquing State = "CRITIQUING"

	// StateIntegrating merges the critique into the draft
	StateIntegrating State = "INTEGRATING"

	// StateAwaitingFeedback blocks on the human reviewer
	StateAwaitingFeedback State = "AWAITING_FEEDBACK"

	StateDone    State = "DONE"
	StateAborted State = "ABORTED"
	StateFailed  State = "FAILED"
)

// AllStates returns every state, non-terminal ones in cycle order.
func AllStates() []State {
	return []State{
		StateStart, StateDrafting, StateCritiquing, StateIntegrating,
		StateAwaitingFeedback, StateDone, StateAborted, StateFailed,
	}
}

// transitions lists the legal edges. ABORTED and FAILED are reachable from
// every non-terminal state and are added by CanTransition.
var transitions = map[State][]State{
	StateStart:            {StateDrafting, StateCritiquing, StateIntegrating, StateAwaitingFeedback, StateDone},
	StateDrafting:         {StateCritiquing},
	StateCritiquing:       {StateIntegrating},
	StateIntegrating:      {StateAwaitingFeedback, StateDone, StateDrafting},
	StateAwaitingFeedback: {StateDrafting, StateDone},
}

// IsTerminal reports whether the machine stops in s.
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateAborted || s == StateFailed
}

// CanTransition reports whether the machine may move from s to next.
func (s State) CanTransition(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateAborted || next == StateFailed {
		return true
	}
	for _, to := range transitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// SessionStatus maps a terminal state to the persisted session status.
func (s State) SessionStatus() session.Status {
	switch s {
	case StateDone:
		return session.StatusCompleted
	case StateAborted:
		return session.StatusAborted
	case StateFailed:
		return session.StatusFailed
	default:
		return session.StatusInProgress
	}
}

// EventKind tells a progress listener what happened.
type EventKind string

const (
	EventEntered   EventKind = "entered"
	EventCompleted EventKind = "completed"
	EventWarning   EventKind = "warning"
)

// Event reports progress during a run.
type Event struct {
	Kind      EventKind `json:"kind"`
	State     State     `json:"state"`
	SessionID string    `json:"session_id"`
	Round     int       `json:"round"`
	MaxRounds int       `json:"max_rounds"`
	Message   string    `json:"message,omitempty"`

	// Set on EventCompleted for the state that produced them.
	Plan     *plan.Plan     `json:"plan,omitempty"`
	Critique *plan.Critique `json:"critique,omitempty"`
	Usage    plan.Usage     `json:"usage"`
	Duration time.Duration  `json:"duration,omitempty"`
}

// ProgressCallback receives progress updates during a run. It is called
// from the run goroutine and must not block.
type ProgressCallback func(Event)

// ContextLoader produces repository snapshots.
type ContextLoader interface {
	Load(ctx context.Context, repoPath string) (*repocontext.Snapshot, error)
}

var _ ContextLoader = (*repocontext.Loader)(nil)

// ChangeWatcher reports repository changes since the last snapshot.
type ChangeWatcher interface {
	Stale() bool
	Reset()
	Close() error
}

var _ ChangeWatcher = (*repocontext.Watcher)(nil)

// WatchFunc starts a ChangeWatcher for a repository root.
type WatchFunc func(ctx context.Context, root string) (ChangeWatcher, error)

// FeedbackSource supplies human review between rounds. Empty text or
// "accept" ends the session; anything else starts another round.
type FeedbackSource interface {
	Feedback(ctx context.Context, round session.Round) (string, error)
}

// Outcome is the result of Run.
type Outcome struct {
	State   State
	Session *session.Session
	Err     error

	// LastRound is the index of the last persisted completed round.
	LastRound int
}
