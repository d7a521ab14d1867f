package session

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/planify/internal/config"
	"github.com/fyrsmithlabs/planify/internal/plan"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusAborted    Status = "ABORTED"
	StatusFailed     Status = "FAILED"
)

// IsTerminal reports whether no further changes are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusAborted || s == StatusFailed
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	return s == StatusInProgress || s.IsTerminal()
}

// CanTransition reports whether a session may move from s to target.
func (s Status) CanTransition(target Status) bool {
	return s == StatusInProgress && target.IsTerminal()
}

// ModelNames is the persisted model selection per role.
type ModelNames struct {
	Architect  string `json:"architect"`
	Critic     string `json:"critic"`
	Integrator string `json:"integrator"`
}

// Settings is the credential-free part of the configuration a session ran with.
type Settings struct {
	ArchitectBackend  string     `json:"architect_backend"`
	CriticBackend     string     `json:"critic_backend"`
	IntegratorBackend string     `json:"integrator_backend"`
	ModelNames        ModelNames `json:"model_names"`
	HistoryRounds     int        `json:"history_rounds"`
	MaxTotalCost      float64    `json:"max_total_cost,omitempty"`
}

// SettingsFrom projects cfg onto Settings.
func SettingsFrom(cfg *config.Config) Settings {
	return Settings{
		ArchitectBackend:  cfg.ArchitectBackend,
		CriticBackend:     cfg.CriticBackend,
		IntegratorBackend: cfg.IntegratorBackend,
		ModelNames: ModelNames{
			Architect:  cfg.ModelNames.Architect,
			Critic:     cfg.ModelNames.Critic,
			Integrator: cfg.ModelNames.Integrator,
		},
		HistoryRounds: cfg.HistoryRounds,
		MaxTotalCost:  cfg.Limits.MaxTotalCost,
	}
}

// Changes lists the agent selections where current differs from s, as
// "architect_backend: anthropic (now openai)".
func (s Settings) Changes(current Settings) []string {
	pairs := []struct{ name, was, now string }{
		{"architect_backend", s.ArchitectBackend, current.ArchitectBackend},
		{"critic_backend", s.CriticBackend, current.CriticBackend},
		{"integrator_backend", s.IntegratorBackend, current.IntegratorBackend},
		{"model_names.architect", s.ModelNames.Architect, current.ModelNames.Architect},
		{"model_names.critic", s.ModelNames.Critic, current.ModelNames.Critic},
		{"model_names.integrator", s.ModelNames.Integrator, current.ModelNames.Integrator},
	}
	var out []string
	for _, p := range pairs {
		if p.was != p.now {
			out = append(out, fmt.Sprintf("%s: %s (now %s)", p.name, orDefault(p.was), orDefault(p.now)))
		}
	}
	return out
}

func orDefault(v string) string {
	if v == "" {
		return "default"
	}
	return v
}

// Apply returns a copy of cfg that selects the backends and models recorded
// in s. Sessions saved without a backend keep cfg's choice for that role.
func (s Settings) Apply(cfg *config.Config) *config.Config {
	out := *cfg
	if s.ArchitectBackend != "" {
		out.ArchitectBackend = s.ArchitectBackend
	}
	if s.CriticBackend != "" {
		out.CriticBackend = s.CriticBackend
	}
	if s.IntegratorBackend != "" {
		out.IntegratorBackend = s.IntegratorBackend
	}
	out.ModelNames = config.RoleModels{
		Architect:  modelOr(s.ModelNames.Architect, out.ArchitectBackend),
		Critic:     modelOr(s.ModelNames.Critic, out.CriticBackend),
		Integrator: modelOr(s.ModelNames.Integrator, out.IntegratorBackend),
	}
	return &out
}

func modelOr(model, backend string) string {
	if model == "" {
		return config.DefaultModel(backend)
	}
	return model
}

// Request is the immutable input of a planning session.
type Request struct {
	Task        string   `json:"task"`
	RepoPath    string   `json:"repo_path"`
	MaxRounds   int      `json:"max_rounds"`
	Interactive bool     `json:"interactive"`
	Settings    Settings `json:"settings"`

	// ResumeID continues an existing session instead of creating one.
	ResumeID string `json:"-"`
}

// Validate checks the request before a session starts.
func (r Request) Validate() error {
	var errs []error
	if r.ResumeID == "" && strings.TrimSpace(r.Task) == "" {
		errs = append(errs, errors.New("task is required"))
	}
	if r.ResumeID != "" {
		if err := ValidateID(r.ResumeID); err != nil {
			errs = append(errs, err)
		}
	}
	if r.RepoPath == "" {
		errs = append(errs, errors.New("repo path is required"))
	}
	if r.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("max rounds must be >= 1, got %d", r.MaxRounds))
	}
	if r.Settings.HistoryRounds < 1 {
		errs = append(errs, fmt.Errorf("history rounds must be >= 1, got %d", r.Settings.HistoryRounds))
	}
	return errors.Join(errs...)
}

// Round is one completed Draft, Critique, Integrate cycle.
type Round struct {
	Index         int           `json:"index"`
	Draft         plan.Plan     `json:"draft"`
	Critique      plan.Critique `json:"critique"`
	Integrated    plan.Plan     `json:"integrated"`
	HumanFeedback string        `json:"human_feedback,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	Usage         plan.Usage    `json:"usage"`
}

// PendingRound is the round in flight. Fields fill in as agents finish.
type PendingRound struct {
	Index      int            `json:"index"`
	Draft      *plan.Plan     `json:"draft,omitempty"`
	Critique   *plan.Critique `json:"critique,omitempty"`
	Integrated *plan.Plan     `json:"integrated,omitempty"`
	Usage      plan.Usage     `json:"usage"`
	StartedAt  time.Time      `json:"started_at"`
}

// Failure describes why a session ended FAILED or ABORTED.
type Failure struct {
	Kind      string `json:"kind"`
	Agent     string `json:"agent,omitempty"`
	Attempts  int    `json:"attempts,omitempty"`
	Message   string `json:"message"`
	LastRound int    `json:"last_round"`
}

// Session is the durable record of a planning run.
type Session struct {
	ID          string        `json:"id"`
	Request     Request       `json:"request"`
	Rounds      []Round       `json:"rounds"`
	Pending     *PendingRound `json:"pending,omitempty"`
	Status      Status        `json:"status"`
	FinalPlan   *plan.Plan    `json:"final_plan,omitempty"`
	Failure     *Failure      `json:"failure,omitempty"`
	Usage       plan.Usage    `json:"usage"`
	FilesLoaded []string      `json:"files_loaded,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`

	// DocImpact is set on completion when the repository has a routing table.
	DocImpact *plan.DocImpactAnalysis `json:"doc_impact,omitempty"`
}

// Transition moves the session to a terminal status.
func (s *Session) Transition(to Status) error {
	if !s.Status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	return nil
}

// Complete records the final plan and marks the session COMPLETED.
func (s *Session) Complete(final plan.Plan) error {
	if err := s.Transition(StatusCompleted); err != nil {
		return err
	}
	s.FinalPlan = &final
	return nil
}

// Fail marks the session FAILED or ABORTED with a failure record.
func (s *Session) Fail(status Status, f Failure) error {
	if status != StatusFailed && status != StatusAborted {
		return fmt.Errorf("%w: cannot fail with %s", ErrInvalidTransition, status)
	}
	if err := s.Transition(status); err != nil {
		return err
	}
	f.LastRound = s.LastRound()
	s.Failure = &f
	return nil
}

// LastRound returns the index of the last completed round, or 0.
func (s *Session) LastRound() int {
	return len(s.Rounds)
}

// NextIndex returns the index of the round after the last completed one.
func (s *Session) NextIndex() int {
	return len(s.Rounds) + 1
}

// Begin opens a pending round for NextIndex if none is open.
func (s *Session) Begin(now time.Time) (*PendingRound, error) {
	if s.Status != StatusInProgress {
		return nil, fmt.Errorf("session %s is %s", s.ID, s.Status)
	}
	if s.Pending != nil {
		return s.Pending, nil
	}
	if s.NextIndex() > s.Request.MaxRounds {
		return nil, fmt.Errorf("round %d exceeds max rounds %d", s.NextIndex(), s.Request.MaxRounds)
	}
	s.Pending = &PendingRound{Index: s.NextIndex(), StartedAt: now}
	return s.Pending, nil
}

// Commit moves the pending round into Rounds.
func (s *Session) Commit(feedback string, now time.Time) (Round, error) {
	p := s.Pending
	if p == nil || p.Draft == nil || p.Critique == nil || p.Integrated == nil {
		return Round{}, errors.New("no complete pending round to commit")
	}
	if p.Index != s.NextIndex() {
		return Round{}, fmt.Errorf("pending round %d does not follow round %d", p.Index, s.LastRound())
	}
	r := Round{
		Index:         p.Index,
		Draft:         *p.Draft,
		Critique:      *p.Critique,
		Integrated:    *p.Integrated,
		HumanFeedback: feedback,
		Timestamp:     now,
		Usage:         p.Usage,
	}
	s.Rounds = append(s.Rounds, r)
	s.Pending = nil
	return r, nil
}

// History returns the last n completed rounds, oldest first.
func (s *Session) History(n int) []Round {
	if n <= 0 || len(s.Rounds) == 0 {
		return nil
	}
	if n > len(s.Rounds) {
		n = len(s.Rounds)
	}
	return s.Rounds[len(s.Rounds)-n:]
}

// Validate checks the invariants every persisted session must hold.
func (s *Session) Validate() error {
	var errs []error
	if err := ValidateID(s.ID); err != nil {
		errs = append(errs, err)
	}
	if !s.Status.IsValid() {
		errs = append(errs, fmt.Errorf("unknown status %q", s.Status))
	}
	if len(s.Rounds) > s.Request.MaxRounds {
		errs = append(errs, fmt.Errorf("%d rounds exceed max rounds %d", len(s.Rounds), s.Request.MaxRounds))
	}
	for i, r := range s.Rounds {
		if r.Index != i+1 {
			errs = append(errs, fmt.Errorf("round at position %d has index %d", i+1, r.Index))
		}
	}
	if s.Pending != nil && s.Pending.Index != len(s.Rounds)+1 {
		errs = append(errs, fmt.Errorf("pending round %d does not follow round %d", s.Pending.Index, len(s.Rounds)))
	}
	if (s.FinalPlan != nil) != (s.Status == StatusCompleted) {
		errs = append(errs, errors.New("final plan must be set exactly when status is COMPLETED"))
	}
	return errors.Join(errs...)
}

// Document returns the input for rendering the session as markdown.
func (s *Session) Document() plan.Document {
	doc := plan.Document{
		Task:      s.Request.Task,
		SessionID: s.ID,
		Status:    string(s.Status),
		CreatedAt: s.CreatedAt,
		DocImpact: s.DocImpact,
	}
	if s.FinalPlan != nil {
		doc.Plan = *s.FinalPlan
	} else if n := len(s.Rounds); n > 0 {
		doc.Plan = s.Rounds[n-1].Integrated
	}
	for _, r := range s.Rounds {
		doc.Rounds = append(doc.Rounds, plan.RoundNote{
			Index:         r.Index,
			Critique:      r.Critique,
			HumanFeedback: r.HumanFeedback,
		})
	}
	return doc
}

// Summary is a short listing entry.
type Summary struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Rounds    int       `json:"rounds"`
	Task      string    `json:"task"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summarize returns the listing entry for s.
func (s *Session) Summarize() Summary {
	return Summary{
		ID:        s.ID,
		Status:    s.Status,
		Rounds:    len(s.Rounds),
		Task:      s.Request.Task,
		UpdatedAt: s.UpdatedAt,
	}
}
