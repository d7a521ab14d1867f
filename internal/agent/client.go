package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/logging"
	"github.com/fyrsmithlabs/planify/internal/plan"
)

const instrumentationName = "github.com/fyrsmithlabs/planify/internal/agent"

// Client is one agent role in the planning cycle.
type Client interface {
	Role() Role
	Invoke(ctx context.Context, in PromptContext) (*Response, error)
}

// Response is a parsed agent result. Exactly one of Plan or Critique is set.
type Response struct {
	Plan     *plan.Plan
	Critique *plan.Critique
	Raw      string
	Model    string
	Usage    plan.Usage
	Attempts int
}

// Options configures an LLM-backed agent.
type Options struct {
	Model       string
	Timeout     time.Duration
	Retry       RetryPolicy
	Temperature float64
	MaxTokens   int
	Logger      *logging.Logger
}

// LLMAgent is a Client that prompts a Backend and parses its JSON output.
type LLMAgent struct {
	role    Role
	backend Backend
	opts    Options
	logger  *logging.Logger
	tracer  trace.Tracer

	calls   metric.Int64Counter
	retries metric.Int64Counter
}

var _ Client = (*LLMAgent)(nil)

// NewArchitect creates the agent that drafts plans.
func NewArchitect(backend Backend, opts Options) *LLMAgent {
	return newLLMAgent(RoleArchitect, backend, opts)
}

// NewCritic creates the agent that critiques drafts.
func NewCritic(backend Backend, opts Options) *LLMAgent {
	return newLLMAgent(RoleCritic, backend, opts)
}

// NewIntegrator creates the agent that merges a critique into a draft.
func NewIntegrator(backend Backend, opts Options) *LLMAgent {
	return newLLMAgent(RoleIntegrator, backend, opts)
}

func newLLMAgent(role Role, backend Backend, opts Options) *LLMAgent {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	meter := otel.Meter(instrumentationName)
	calls, err := meter.Int64Counter("planify.agent.calls",
		metric.WithDescription("Agent invocations by role and outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		otel.Handle(err)
	}
	retries, err := meter.Int64Counter("planify.agent.retries",
		metric.WithDescription("Backend call retries by role"),
		metric.WithUnit("{retry}"))
	if err != nil {
		otel.Handle(err)
	}

	return &LLMAgent{
		role:    role,
		backend: backend,
		opts:    opts,
		logger:  logger.Named(string(role)),
		tracer:  otel.Tracer(instrumentationName),
		calls:   calls,
		retries: retries,
	}
}

// Role returns the agent's role.
func (a *LLMAgent) Role() Role { return a.role }

// Invoke prompts the backend and parses its answer. Output that fails to
// parse gets one reformat attempt before a MalformedError is returned.
func (a *LLMAgent) Invoke(ctx context.Context, in PromptContext) (*Response, error) {
	ctx, span := a.tracer.Start(ctx, "agent.invoke", trace.WithAttributes(
		attribute.String("agent.role", string(a.role)),
		attribute.String("agent.backend", a.backend.Name()),
		attribute.String("agent.model", a.opts.Model),
	))
	defer span.End()

	resp, err := a.invoke(ctx, in)

	outcome := "ok"
	if err != nil {
		outcome = outcomeOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(
			attribute.Int("agent.attempts", resp.Attempts),
			attribute.Int("agent.input_tokens", resp.Usage.InputTokens),
			attribute.Int("agent.output_tokens", resp.Usage.OutputTokens),
		)
	}
	if a.calls != nil {
		a.calls.Add(ctx, 1, metric.WithAttributes(
			attribute.String("role", string(a.role)),
			attribute.String("outcome", outcome),
		))
	}
	return resp, err
}

func (a *LLMAgent) invoke(ctx context.Context, in PromptContext) (*Response, error) {
	if err := a.checkInput(in); err != nil {
		return nil, err
	}

	req := Request{
		System:      systemPrompt(a.role),
		Prompt:      buildPrompt(a.role, in),
		Model:       a.opts.Model,
		Temperature: a.opts.Temperature,
		MaxTokens:   a.opts.MaxTokens,
	}

	comp, attempts, err := a.complete(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Raw:      comp.Text,
		Model:    comp.Model,
		Usage:    UsageFor(comp),
		Attempts: attempts,
	}

	parseErr := a.parse(comp.Text, resp)
	if parseErr == nil {
		return resp, nil
	}

	a.logger.Warn(ctx, "agent output failed to parse, requesting reformat",
		zap.Error(parseErr),
		zap.Int("raw_len", len(comp.Text)))

	retryReq := req
	retryReq.Prompt = reformatPrompt(req.Prompt, comp.Text, parseErr, a.role)
	comp, n, err := a.complete(ctx, retryReq)
	resp.Attempts += n
	if err != nil {
		return nil, err
	}
	resp.Raw = comp.Text
	resp.Usage.Add(UsageFor(comp))

	if err := a.parse(comp.Text, resp); err != nil {
		return nil, &MalformedError{Agent: a.role, Attempts: resp.Attempts, Raw: comp.Text, Err: err}
	}
	return resp, nil
}

func (a *LLMAgent) checkInput(in PromptContext) error {
	switch a.role {
	case RoleCritic:
		if in.Draft == nil {
			return errors.New("critic requires a draft")
		}
	case RoleIntegrator:
		if in.Draft == nil || in.Critique == nil {
			return errors.New("integrator requires a draft and a critique")
		}
	}
	return nil
}

func (a *LLMAgent) parse(raw string, resp *Response) error {
	if a.role == RoleCritic {
		c, err := ParseCritique(raw)
		if err != nil {
			return err
		}
		resp.Critique = c
		return nil
	}
	p, err := ParsePlan(raw)
	if err != nil {
		return err
	}
	resp.Plan = p
	return nil
}

// complete calls the backend with a per-attempt timeout and retries
// timeouts and retryable errors. It returns the number of attempts made.
func (a *LLMAgent) complete(ctx context.Context, req Request) (*Completion, int, error) {
	maxAttempts := a.opts.Retry.attempts()
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if a.retries != nil {
				a.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("role", string(a.role))))
			}
			if err := sleep(ctx, a.opts.Retry.Backoff(attempt-1)); err != nil {
				return nil, attempt - 1, err
			}
		}

		comp, err := a.completeOnce(ctx, req)
		if err == nil {
			return comp, attempt, nil
		}
		if ctx.Err() != nil {
			return nil, attempt, ctx.Err()
		}

		lastErr = err
		if !errors.Is(err, context.DeadlineExceeded) && !isRetryableError(err) {
			return nil, attempt, &UnavailableError{Agent: a.role, Attempts: attempt, Err: err}
		}
		a.logger.Warn(ctx, "agent call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.Error(err))
	}

	return nil, maxAttempts, &UnavailableError{Agent: a.role, Attempts: maxAttempts, Err: lastErr}
}

func (a *LLMAgent) completeOnce(ctx context.Context, req Request) (*Completion, error) {
	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}
	comp, err := a.backend.Complete(ctx, req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}
	return comp, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, ErrAgentUnavailable):
		return "unavailable"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}
