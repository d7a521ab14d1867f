package logging

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestWithSessionID(t *testing.T) {
	ctx := WithSessionID(context.Background(), "2025-03-14-150926-add-retries-1a2b3c4d")
	assert.Equal(t, "2025-03-14-150926-add-retries-1a2b3c4d", SessionIDFromContext(ctx))
	assert.Equal(t, "", SessionIDFromContext(context.Background()))

	for _, bad := range []string{"", "../etc", "Upper", strings.Repeat("a", maxIDLen+1)} {
		assert.Equal(t, "", SessionIDFromContext(WithSessionID(context.Background(), bad)), bad)
	}
}

func TestWithRound(t *testing.T) {
	_, ok := RoundFromContext(context.Background())
	assert.False(t, ok)

	r, ok := RoundFromContext(WithRound(context.Background(), 3))
	assert.True(t, ok)
	assert.Equal(t, 3, r)

	_, ok = RoundFromContext(WithRound(context.Background(), 0))
	assert.False(t, ok)
}

func TestScope_ChildDoesNotLeak(t *testing.T) {
	parent := WithRound(WithSessionID(context.Background(), "sess-1"), 1)
	child := WithAgent(WithRound(parent, 2), "critic")

	r, _ := RoundFromContext(parent)
	assert.Equal(t, 1, r)
	assert.Equal(t, "", AgentFromContext(parent))

	r, _ = RoundFromContext(child)
	assert.Equal(t, 2, r)
	assert.Equal(t, "sess-1", SessionIDFromContext(child))
	assert.Equal(t, "critic", AgentFromContext(child))
}

func TestContextFields(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))

	ctx := WithAgent(WithRound(WithSessionID(context.Background(), "sess-1"), 2), "architect")
	keys := make([]string, 0, 3)
	for _, f := range ContextFields(ctx) {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"session.id", "round", "agent"}, keys)
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(WithSessionID(context.Background(), "sess-1"), tl.Logger)
	FromContext(ctx).Info(ctx, "hello")
	tl.AssertLogged(t, zapcore.InfoLevel, "hello")
	tl.AssertField(t, "hello", "session.id", "sess-1")
}
