package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/agent"
	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/metrics"
	"github.com/fyrsmithlabs/planify/internal/plan"
	"github.com/fyrsmithlabs/planify/internal/repocontext"
	"github.com/fyrsmithlabs/planify/internal/secrets"
	"github.com/fyrsmithlabs/planify/internal/session"
)

const (
	instrumentationName = "github.com/fyrsmithlabs/planify/internal/orchestrator"

	// finalSaveTimeout bounds the status save after cancellation.
	finalSaveTimeout = 10 * time.Second
)

// Orchestrator drives sessions through the Draft, Critique, Integrate cycle.
type Orchestrator struct {
	team     *agent.Team
	store    session.Store
	loader   ContextLoader
	scrubber secrets.Scrubber
	feedback FeedbackSource
	watch    WatchFunc
	logger   *logging.Logger
	metrics  *metrics.Metrics
	progress ProgressCallback
	gates    map[State][]Gate
	tracer   trace.Tracer
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScrubber sets the scrubber applied to every produced string.
func WithScrubber(s secrets.Scrubber) Option {
	return func(o *Orchestrator) { o.scrubber = s }
}

// WithFeedback sets the human feedback source for interactive sessions.
func WithFeedback(f FeedbackSource) Option {
	return func(o *Orchestrator) { o.feedback = f }
}

// WithWatcher enables context refresh: the snapshot is reloaded before a
// draft when the watcher saw changes.
func WithWatcher(fn WatchFunc) Option {
	return func(o *Orchestrator) { o.watch = fn }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithMetrics records sessions, rounds and agent calls in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithProgress sets the progress callback.
func WithProgress(fn ProgressCallback) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithGate registers an additional gate checked before state runs.
func WithGate(state State, g Gate) Option {
	return func(o *Orchestrator) { o.gates[state] = append(o.gates[state], g) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// New creates an orchestrator. The round cap, cost and repeated issue gates
// are always registered.
func New(team *agent.Team, store session.Store, loader ContextLoader, opts ...Option) (*Orchestrator, error) {
	if team == nil || team.Architect == nil || team.Critic == nil || team.Integrator == nil {
		return nil, errors.New("orchestrator: architect, critic and integrator are required")
	}
	if store == nil {
		return nil, errors.New("orchestrator: session store is required")
	}
	if loader == nil {
		return nil, errors.New("orchestrator: context loader is required")
	}

	o := &Orchestrator{
		team:     team,
		store:    store,
		loader:   loader,
		scrubber: &secrets.NoopScrubber{},
		logger:   logging.NewNop(),
		tracer:   otel.Tracer(instrumentationName),
		now:      time.Now,
		gates: map[State][]Gate{
			StateDrafting:    {NewRoundCapGate(), NewCostGate(StateDrafting)},
			StateCritiquing:  {NewCostGate(StateCritiquing)},
			StateIntegrating: {NewRepeatedIssueGate(), NewCostGate(StateIntegrating)},
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// run is the mutable state of one Run call.
type run struct {
	sess    *session.Session
	snap    *repocontext.Snapshot
	watcher ChangeWatcher
	state   State

	roundCtx  context.Context
	roundSpan trace.Span
}

// Run executes a session to a terminal state. It never panics on agent or
// storage failures; they are reported in the Outcome.
func (o *Orchestrator) Run(ctx context.Context, req session.Request) (out Outcome) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.Int("request.max_rounds", req.MaxRounds),
		attribute.Bool("request.interactive", req.Interactive),
		attribute.Bool("request.resume", req.ResumeID != ""),
	))
	defer func() {
		span.SetAttributes(
			attribute.String("outcome.state", string(out.State)),
			attribute.Int("outcome.last_round", out.LastRound),
		)
		if out.Err != nil {
			span.RecordError(out.Err)
			span.SetStatus(codes.Error, out.Err.Error())
		}
		span.End()
	}()

	if err := req.Validate(); err != nil {
		return Outcome{State: StateFailed, Err: fmt.Errorf("invalid request: %w", err)}
	}
	// The task is persisted and also names the session file.
	req.Task = o.scrub(req.Task)

	r := &run{state: StateStart}
	sess, err := o.open(ctx, req)
	if err != nil {
		return Outcome{State: StateFailed, Session: sess, Err: err, LastRound: lastRound(sess)}
	}
	r.sess = sess
	span.SetAttributes(attribute.String("session.id", sess.ID))
	ctx = logging.WithSessionID(ctx, sess.ID)

	if sess.Request.Interactive && o.feedback == nil {
		return Outcome{State: StateFailed, Session: sess, Err: ErrNoFeedbackSource, LastRound: lastRound(sess)}
	}

	o.metrics.SessionStarted()
	defer func() { o.metrics.SessionFinished(string(out.State.SessionStatus())) }()

	o.logger.Info(ctx, "session started",
		zap.String("task", sess.Request.Task),
		zap.Int("max_rounds", sess.Request.MaxRounds),
		zap.Int("completed_rounds", len(sess.Rounds)),
		zap.Bool("resumed", req.ResumeID != ""))

	if err := o.loadContext(ctx, r); err != nil {
		return o.finish(ctx, r, StateFailed, err)
	}
	if o.watch != nil {
		w, err := o.watch(ctx, r.snap.Root)
		if err != nil {
			o.logger.Warn(ctx, "context watch disabled", zap.Error(err))
		} else {
			r.watcher = w
			defer w.Close()
		}
	}

	next := o.resumeState(sess)
	for {
		if err := ctx.Err(); err != nil {
			return o.finish(ctx, r, StateAborted, err)
		}
		if !r.state.CanTransition(next) {
			return o.finish(ctx, r, StateFailed, fmt.Errorf("illegal transition %s -> %s", r.state, next))
		}
		r.state = next
		if next == StateDone {
			return o.finish(ctx, r, StateDone, nil)
		}

		if err := o.checkGates(ctx, r); err != nil {
			return o.finish(ctx, r, StateFailed, err)
		}

		var err error
		switch r.state {
		case StateDrafting:
			next, err = o.draft(ctx, r)
		case StateCritiquing:
			next, err = o.critique(ctx, r)
		case StateIntegrating:
			next, err = o.integrate(ctx, r)
		case StateAwaitingFeedback:
			next, err = o.awaitFeedback(ctx, r)
		default:
			err = fmt.Errorf("no handler for state %s", r.state)
		}
		if err != nil {
			if ctx.Err() != nil {
				return o.finish(ctx, r, StateAborted, ctx.Err())
			}
			return o.finish(ctx, r, StateFailed, err)
		}
	}
}

// open creates the session or loads the one being resumed.
func (o *Orchestrator) open(ctx context.Context, req session.Request) (*session.Session, error) {
	if req.ResumeID == "" {
		sess, err := o.store.Create(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("creating session: %w", err)
		}
		return sess, nil
	}

	sess, err := o.store.Load(ctx, req.ResumeID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	if sess.Status.IsTerminal() {
		return sess, fmt.Errorf("%w: %s is %s", ErrSessionTerminal, sess.ID, sess.Status)
	}
	return sess, nil
}

// resumeState picks the state implied by the pending round.
func (o *Orchestrator) resumeState(sess *session.Session) State {
	p := sess.Pending
	switch {
	case p == nil || p.Draft == nil:
		return StateDrafting
	case p.Critique == nil:
		return StateCritiquing
	case p.Integrated == nil:
		return StateIntegrating
	default:
		return o.afterIntegration(sess)
	}
}

// afterIntegration decides where a fully integrated pending round goes.
func (o *Orchestrator) afterIntegration(sess *session.Session) State {
	p := sess.Pending
	last := p.Index >= sess.Request.MaxRounds
	if sess.Request.Interactive && !last {
		return StateAwaitingFeedback
	}
	if p.Critique.Approved || last {
		return StateDone
	}
	return StateDrafting
}

func (o *Orchestrator) loadContext(ctx context.Context, r *run) error {
	snap, err := o.loader.Load(ctx, r.sess.Request.RepoPath)
	if err != nil {
		return fmt.Errorf("loading repository context: %w", err)
	}
	r.snap = snap
	paths := snap.Paths()
	for i, p := range paths {
		paths[i] = o.scrub(p)
	}
	r.sess.FilesLoaded = paths
	return nil
}

// refreshContext reloads the snapshot when the watcher saw changes.
func (o *Orchestrator) refreshContext(ctx context.Context, r *run) error {
	if r.watcher == nil || !r.watcher.Stale() {
		return nil
	}
	r.watcher.Reset()
	o.logger.Info(ctx, "repository changed, reloading context")
	return o.loadContext(ctx, r)
}

func (o *Orchestrator) draft(ctx context.Context, r *run) (State, error) {
	sess := r.sess
	if err := o.refreshContext(ctx, r); err != nil {
		return "", err
	}
	pending, err := sess.Begin(o.now().UTC())
	if err != nil {
		return "", err
	}
	ctx = o.startRound(ctx, r)
	o.emit(r, Event{Kind: EventEntered})

	in := agent.PromptContext{
		Task:        sess.Request.Task,
		RepoContext: r.snap.Prompt(),
		History:     o.history(sess),
	}
	if n := len(sess.Rounds); n > 0 {
		last := sess.Rounds[n-1]
		prev := last.Integrated
		in.PreviousPlan = &prev
		in.HumanFeedback = last.HumanFeedback
	}

	resp, err := o.invoke(ctx, r, o.team.Architect, in)
	if err != nil {
		return "", err
	}
	draft := resp.Plan.Scrub(o.scrub)
	pending.Draft = &draft
	o.addUsage(sess, resp.Usage)
	if err := o.save(ctx, sess); err != nil {
		return "", err
	}

	o.emit(r, Event{Kind: EventCompleted, Plan: &draft, Usage: resp.Usage})
	return StateCritiquing, nil
}

func (o *Orchestrator) critique(ctx context.Context, r *run) (State, error) {
	sess := r.sess
	ctx = o.startRound(ctx, r)
	o.emit(r, Event{Kind: EventEntered})

	pending := sess.Pending
	resp, err := o.invoke(ctx, r, o.team.Critic, agent.PromptContext{
		Task:        sess.Request.Task,
		RepoContext: r.snap.Prompt(),
		Draft:       pending.Draft,
	})
	if err != nil {
		return "", err
	}
	critique := resp.Critique.Scrub(o.scrub)
	pending.Critique = &critique
	o.addUsage(sess, resp.Usage)
	if err := o.save(ctx, sess); err != nil {
		return "", err
	}

	o.emit(r, Event{Kind: EventCompleted, Critique: &critique, Usage: resp.Usage})
	return StateIntegrating, nil
}

func (o *Orchestrator) integrate(ctx context.Context, r *run) (State, error) {
	sess := r.sess
	ctx = o.startRound(ctx, r)
	o.emit(r, Event{Kind: EventEntered})

	pending := sess.Pending
	resp, err := o.invoke(ctx, r, o.team.Integrator, agent.PromptContext{
		Task:        sess.Request.Task,
		RepoContext: r.snap.Prompt(),
		History:     o.history(sess),
		Draft:       pending.Draft,
		Critique:    pending.Critique,
	})
	if err != nil {
		return "", err
	}
	integrated := resp.Plan.Scrub(o.scrub)
	pending.Integrated = &integrated
	o.addUsage(sess, resp.Usage)
	if err := o.save(ctx, sess); err != nil {
		return "", err
	}
	o.emit(r, Event{Kind: EventCompleted, Plan: &integrated, Critique: pending.Critique, Usage: resp.Usage})

	next := o.afterIntegration(sess)
	if next == StateDrafting {
		if err := o.commit(ctx, r, ""); err != nil {
			return "", err
		}
	}
	return next, nil
}

func (o *Orchestrator) awaitFeedback(ctx context.Context, r *run) (State, error) {
	sess := r.sess
	o.emit(r, Event{Kind: EventEntered})

	p := sess.Pending
	view := session.Round{
		Index:      p.Index,
		Draft:      *p.Draft,
		Critique:   *p.Critique,
		Integrated: *p.Integrated,
		Timestamp:  o.now().UTC(),
		Usage:      p.Usage,
	}
	feedback, err := o.feedback.Feedback(ctx, view)
	if err != nil {
		return "", fmt.Errorf("reading feedback: %w", err)
	}
	if IsAccept(feedback) {
		o.logger.Info(ctx, "plan accepted", zap.Int("round", p.Index))
		return StateDone, nil
	}

	if err := o.commit(ctx, r, o.scrub(feedback)); err != nil {
		return "", err
	}
	return StateDrafting, nil
}

// commit closes the pending round and saves.
func (o *Orchestrator) commit(ctx context.Context, r *run, feedback string) error {
	round, err := r.sess.Commit(feedback, o.now().UTC())
	if err != nil {
		return err
	}
	if err := o.save(ctx, r.sess); err != nil {
		return err
	}
	o.metrics.RoundCompleted()
	o.logger.Info(ctx, "round completed",
		zap.Int("round", round.Index),
		zap.Int("issues", len(round.Critique.Issues)),
		zap.Bool("approved", round.Critique.Approved),
		zap.Bool("feedback", feedback != ""),
		zap.Float64("cost_usd", round.Usage.CostUSD))
	o.endRound(r, nil)
	return nil
}

// finish moves the session to its terminal status and persists it. The
// status save uses a context that survives cancellation.
func (o *Orchestrator) finish(ctx context.Context, r *run, state State, cause error) Outcome {
	sess := r.sess
	out := Outcome{State: state, Session: sess, Err: cause, LastRound: lastRound(sess)}
	o.endRound(r, cause)

	if sess == nil || sess.Status.IsTerminal() {
		return out
	}

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalSaveTimeout)
	defer cancel()

	if state == StateDone {
		err := o.complete(saveCtx, r)
		if err == nil {
			out.LastRound = lastRound(r.sess)
			o.emit(r, Event{Kind: EventCompleted, Plan: r.sess.FinalPlan, Usage: r.sess.Usage})
			o.logger.Info(ctx, "session completed",
				zap.Int("rounds", len(r.sess.Rounds)),
				zap.Float64("cost_usd", r.sess.Usage.CostUSD))
			out.Session = r.sess
			return out
		}
		o.logger.Error(ctx, "failed to complete session", zap.Error(err))
		state, cause = StateFailed, err
		out.State, out.Err = state, err
	}

	f := failureFor(cause)
	f.Message = o.scrub(f.Message)
	if err := sess.Fail(state.SessionStatus(), f); err != nil {
		o.logger.Error(ctx, "cannot mark session", zap.String("state", string(state)), zap.Error(err))
		return out
	}
	if err := o.save(saveCtx, sess); err != nil {
		o.logger.Error(ctx, "failed to save final session status", zap.Error(err))
	}
	r.state = state
	o.emit(r, Event{Kind: EventCompleted, Message: f.Message})

	fields := []zap.Field{
		zap.String("state", string(state)),
		zap.String("kind", f.Kind),
		zap.Int("last_round", f.LastRound),
		zap.Error(cause),
	}
	if state == StateAborted {
		o.logger.Warn(ctx, "session aborted", fields...)
	} else {
		o.logger.Error(ctx, "session failed", fields...)
	}
	return out
}

// complete commits the pending round, if any, and records the final plan.
// It works on a copy so r.sess stays IN_PROGRESS when the save fails.
func (o *Orchestrator) complete(ctx context.Context, r *run) error {
	done := *r.sess
	committed := false
	if done.Pending != nil {
		if _, err := done.Commit("", o.now().UTC()); err != nil {
			return err
		}
		committed = true
	}
	n := len(done.Rounds)
	if n == 0 {
		return errors.New("no completed round to finalize")
	}
	if err := done.Complete(done.Rounds[n-1].Integrated.Clone()); err != nil {
		return err
	}
	if routes := r.snap.DocRoutes(); len(routes) > 0 {
		impact := plan.AnalyzeDocImpact(*done.FinalPlan, done.Request.Task, routes)
		done.DocImpact = &impact
		o.logger.Debug(ctx, "documentation impact analyzed",
			zap.Int("routes", len(routes)),
			zap.Int("impacts", len(impact.Impacts)))
	}
	if err := o.save(ctx, &done); err != nil {
		return err
	}
	if committed {
		o.metrics.RoundCompleted()
	}
	*r.sess = done
	return nil
}

// checkGates runs the gates registered for the current state.
func (o *Orchestrator) checkGates(ctx context.Context, r *run) error {
	var all []Violation
	for _, g := range o.gates[r.state] {
		violations, err := g.Check(ctx, r.sess)
		if err != nil {
			return fmt.Errorf("gate %s check failed: %w", g.Name(), err)
		}
		all = append(all, violations...)
	}

	repeated := 0
	for _, v := range all {
		if v.Type == ViolationRepeatedIssue {
			repeated++
		}
		if v.Severity == SeverityWarning {
			o.logger.Warn(ctx, "gate warning",
				zap.String("gate", v.Gate),
				zap.String("type", string(v.Type)),
				zap.String("description", v.Description))
			o.emit(r, Event{Kind: EventWarning, Message: v.Description})
		}
	}
	o.metrics.IssuesRepeated(repeated)

	if hasBlockingViolation(all) {
		return violationError(all)
	}
	return nil
}

// invoke calls an agent and records metrics.
func (o *Orchestrator) invoke(ctx context.Context, r *run, c agent.Client, in agent.PromptContext) (*agent.Response, error) {
	role := string(c.Role())
	ctx = logging.WithAgent(ctx, role)

	start := o.now()
	resp, err := c.Invoke(ctx, in)
	elapsed := o.now().Sub(start)
	if err != nil {
		attempts := 1
		var unavailable *agent.UnavailableError
		var malformed *agent.MalformedError
		switch {
		case errors.As(err, &unavailable):
			attempts = unavailable.Attempts
		case errors.As(err, &malformed):
			attempts = malformed.Attempts
		}
		o.metrics.ObserveAgent(role, agentOutcome(err), attempts, elapsed, plan.Usage{})
		return nil, err
	}

	if (c.Role() == agent.RoleCritic && resp.Critique == nil) || (c.Role() != agent.RoleCritic && resp.Plan == nil) {
		err := &agent.MalformedError{Agent: c.Role(), Attempts: resp.Attempts, Raw: resp.Raw, Err: errors.New("empty response")}
		o.metrics.ObserveAgent(role, agentOutcome(err), resp.Attempts, elapsed, resp.Usage)
		return nil, err
	}

	o.metrics.ObserveAgent(role, "ok", resp.Attempts, elapsed, resp.Usage)
	o.logger.Debug(ctx, "agent responded",
		zap.String("model", resp.Model),
		zap.Int("attempts", resp.Attempts),
		zap.Duration("elapsed", elapsed),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	return resp, nil
}

func (o *Orchestrator) save(ctx context.Context, sess *session.Session) error {
	if err := o.store.Save(ctx, sess); err != nil {
		return fmt.Errorf("%w: %w", ErrSaveFailed, err)
	}
	return nil
}

func (o *Orchestrator) addUsage(sess *session.Session, u plan.Usage) {
	sess.Pending.Usage.Add(u)
	sess.Usage.Add(u)
}

func (o *Orchestrator) history(sess *session.Session) []agent.HistoryRound {
	rounds := sess.History(sess.Request.Settings.HistoryRounds)
	out := make([]agent.HistoryRound, 0, len(rounds))
	for _, rd := range rounds {
		out = append(out, agent.HistoryRound{
			Index:         rd.Index,
			Integrated:    rd.Integrated,
			Critique:      rd.Critique,
			HumanFeedback: rd.HumanFeedback,
		})
	}
	return out
}

func (o *Orchestrator) scrub(s string) string {
	return secrets.ScrubString(o.scrubber, s)
}

// startRound opens the round span on first use and returns its context.
func (o *Orchestrator) startRound(ctx context.Context, r *run) context.Context {
	if r.roundSpan == nil {
		index := r.sess.NextIndex()
		if r.sess.Pending != nil {
			index = r.sess.Pending.Index
		}
		r.roundCtx, r.roundSpan = o.tracer.Start(ctx, "orchestrator.round", trace.WithAttributes(
			attribute.String("session.id", r.sess.ID),
			attribute.Int("round.index", index),
		))
		r.roundCtx = logging.WithRound(r.roundCtx, index)
	}
	return r.roundCtx
}

func (o *Orchestrator) endRound(r *run, err error) {
	if r.roundSpan == nil {
		return
	}
	if err != nil {
		r.roundSpan.RecordError(err)
		r.roundSpan.SetStatus(codes.Error, err.Error())
	}
	r.roundSpan.End()
	r.roundSpan, r.roundCtx = nil, nil
}

func (o *Orchestrator) emit(r *run, e Event) {
	if o.progress == nil {
		return
	}
	e.State = r.state
	e.SessionID = r.sess.ID
	e.MaxRounds = r.sess.Request.MaxRounds
	e.Round = r.sess.LastRound()
	if r.sess.Pending != nil {
		e.Round = r.sess.Pending.Index
	}
	o.progress(e)
}

func lastRound(sess *session.Session) int {
	if sess == nil {
		return 0
	}
	return sess.LastRound()
}

// agentOutcome labels an agent error for metrics.
func agentOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, agent.ErrAgentUnavailable):
		return "unavailable"
	case errors.Is(err, agent.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// failureFor classifies the error that ended a session.
func failureFor(err error) session.Failure {
	f := session.Failure{Kind: "internal"}
	if err != nil {
		f.Message = err.Error()
	}

	var unavailable *agent.UnavailableError
	var malformed *agent.MalformedError
	switch {
	case errors.As(err, &unavailable):
		f.Kind, f.Agent, f.Attempts = "agent_unavailable", string(unavailable.Agent), unavailable.Attempts
	case errors.As(err, &malformed):
		f.Kind, f.Agent, f.Attempts = "malformed_response", string(malformed.Agent), malformed.Attempts
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		f.Kind = "canceled"
	case errors.Is(err, ErrCostLimitExceeded):
		f.Kind = "cost_limit"
	case errors.Is(err, repocontext.ErrRepoUnreadable):
		f.Kind = "repo_unreadable"
	case errors.Is(err, ErrSaveFailed):
		f.Kind = "save_failed"
	case errors.Is(err, ErrGateViolation):
		f.Kind = "gate_violation"
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrSessionCorrupt):
		f.Kind = "session_load"
	}
	return f
}
