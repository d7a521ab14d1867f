package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// scope is the planning position attached to a context. Values are copied
// on every With* call so parent contexts never observe child changes.
type scope struct {
	sessionID string
	round     int
	agent     string
}

type scopeKey struct{}
type loggerKey struct{}

const maxIDLen = 128

// sessionIDPattern accepts the characters session IDs are built from.
var sessionIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(scopeKey{}).(scope)
	return s
}

// WithSessionID tags ctx with a session ID. IDs that could not have been
// produced by the session store are ignored and ctx is returned unchanged,
// so a corrupt ID never reaches log output.
func WithSessionID(ctx context.Context, id string) context.Context {
	if len(id) > maxIDLen || !sessionIDPattern.MatchString(id) {
		return ctx
	}
	s := scopeOf(ctx)
	s.sessionID = id
	return context.WithValue(ctx, scopeKey{}, s)
}

// SessionIDFromContext returns the session ID attached to ctx, or "".
func SessionIDFromContext(ctx context.Context) string {
	return scopeOf(ctx).sessionID
}

// WithRound tags ctx with a 1-based round index. Values below 1 are ignored.
func WithRound(ctx context.Context, round int) context.Context {
	if round < 1 {
		return ctx
	}
	s := scopeOf(ctx)
	s.round = round
	return context.WithValue(ctx, scopeKey{}, s)
}

func RoundFromContext(ctx context.Context) (int, bool) {
	r := scopeOf(ctx).round
	return r, r > 0
}

// WithAgent tags ctx with the role of the agent being called.
func WithAgent(ctx context.Context, role string) context.Context {
	s := scopeOf(ctx)
	s.agent = role
	return context.WithValue(ctx, scopeKey{}, s)
}

func AgentFromContext(ctx context.Context) string {
	return scopeOf(ctx).agent
}

// ContextFields returns the trace and planning fields carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()))
	}

	s := scopeOf(ctx)
	if s.sessionID != "" {
		fields = append(fields, zap.String("session.id", s.sessionID))
	}
	if s.round > 0 {
		fields = append(fields, zap.Int("round", s.round))
	}
	if s.agent != "" {
		fields = append(fields, zap.String("agent", s.agent))
	}
	return fields
}

// WithLogger stores logger in ctx for code that has no logger of its own.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey{}).(*Logger); ok && l != nil {
		return l
	}
	return NewNop()
}
