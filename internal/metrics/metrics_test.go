package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

func TestObserveAgent(t *testing.T) {
	m := New()

	m.ObserveAgent("architect", "ok", 3, 2*time.Second, plan.Usage{InputTokens: 100, OutputTokens: 40, CostUSD: 0.5})
	m.ObserveAgent("architect", "unavailable", 1, time.Second, plan.Usage{})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("architect", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AgentCalls.WithLabelValues("architect", "unavailable")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.AgentRetries.WithLabelValues("architect")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.AgentTokens.WithLabelValues("architect", "input")))
	assert.InDelta(t, 0.5, testutil.ToFloat64(m.AgentCostUSD.WithLabelValues("architect")), 1e-9)
}

func TestSessionLifecycle(t *testing.T) {
	m := New()

	m.SessionStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsActive))

	m.RoundCompleted()
	m.IssuesRepeated(2)
	m.IssuesRepeated(0)
	m.SessionSaved(nil)
	m.SessionSaved(errors.New("disk full"))
	m.SessionLoaded(nil)
	m.SessionFinished("COMPLETED")

	assert.Equal(t, 0.0, testutil.ToFloat64(m.SessionsActive))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsTotal.WithLabelValues("COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RoundsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RepeatedIssues))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionSaves.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionSaves.WithLabelValues("error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.ObserveAgent("critic", "ok", 1, time.Second, plan.Usage{})
		m.SessionFinished("FAILED")
		m.RoundCompleted()
		m.SessionSaved(nil)
	})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, m.Registry())
}

func TestHandler(t *testing.T) {
	m := New()
	m.RoundCompleted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "planify_rounds_total 1")
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.SessionStarted()
	m.SessionFinished("ABORTED")

	path := filepath.Join(t.TempDir(), "planify.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `planify_sessions_total{status="ABORTED"} 1`)
}
