// Package metrics provides Prometheus collectors for planify.
//
// All methods are safe to call on a nil *Metrics, so components take an
// optional collector set without guarding every call.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/planify/internal/plan"
)

// Metrics holds the planify collectors and the registry they live in.
//
// Metrics:
//   - planify_sessions_total{status} - sessions reaching a terminal status
//   - planify_sessions_active - sessions currently running
//   - planify_rounds_total - completed rounds
//   - planify_agent_calls_total{role,outcome} - agent invocations
//   - planify_agent_retries_total{role} - retried backend calls
//   - planify_agent_duration_seconds{role} - agent invocation latency
//   - planify_agent_tokens_total{role,direction} - tokens sent and received
//   - planify_agent_cost_usd_total{role} - estimated spend
//   - planify_critic_repeated_issues_total - issues the critic raised again
//   - planify_session_saves_total{result} - session writes
//   - planify_session_loads_total{result} - session reads
type Metrics struct {
	registry *prometheus.Registry

	SessionsTotal  *prometheus.CounterVec
	SessionsActive prometheus.Gauge
	RoundsTotal    prometheus.Counter
	AgentCalls     *prometheus.CounterVec
	AgentRetries   *prometheus.CounterVec
	AgentDuration  *prometheus.HistogramVec
	AgentTokens    *prometheus.CounterVec
	AgentCostUSD   *prometheus.CounterVec
	RepeatedIssues prometheus.Counter
	SessionSaves   *prometheus.CounterVec
	SessionLoads   *prometheus.CounterVec
}

// New creates a collector set registered in a fresh registry, together with
// the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		SessionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_sessions_total",
			Help: "Planning sessions by terminal status",
		}, []string{"status"}),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "planify_sessions_active",
			Help: "Planning sessions currently running",
		}),

		RoundsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "planify_rounds_total",
			Help: "Completed draft-critique-integrate rounds",
		}),

		AgentCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_agent_calls_total",
			Help: "Agent invocations by role and outcome",
		}, []string{"role", "outcome"}),

		AgentRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_agent_retries_total",
			Help: "Backend calls retried after a timeout or transient error",
		}, []string{"role"}),

		AgentDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "planify_agent_duration_seconds",
			Help:    "Agent invocation latency in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		}, []string{"role"}),

		AgentTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_agent_tokens_total",
			Help: "Tokens exchanged with language models",
		}, []string{"role", "direction"}),

		AgentCostUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_agent_cost_usd_total",
			Help: "Estimated model spend in USD",
		}, []string{"role"}),

		RepeatedIssues: factory.NewCounter(prometheus.CounterOpts{
			Name: "planify_critic_repeated_issues_total",
			Help: "Critic issues repeated from the previous round",
		}),

		SessionSaves: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_session_saves_total",
			Help: "Session writes by result",
		}, []string{"result"}),

		SessionLoads: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "planify_session_loads_total",
			Help: "Session reads by result",
		}, []string{"result"}),
	}
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// WriteTextfile writes the current values for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// ObserveAgent records one agent invocation. Attempts beyond the first count
// as retries.
func (m *Metrics) ObserveAgent(role, outcome string, attempts int, d time.Duration, usage plan.Usage) {
	if m == nil {
		return
	}
	m.AgentCalls.WithLabelValues(role, outcome).Inc()
	if attempts > 1 {
		m.AgentRetries.WithLabelValues(role).Add(float64(attempts - 1))
	}
	m.AgentDuration.WithLabelValues(role).Observe(d.Seconds())
	m.AgentTokens.WithLabelValues(role, "input").Add(float64(usage.InputTokens))
	m.AgentTokens.WithLabelValues(role, "output").Add(float64(usage.OutputTokens))
	if usage.CostUSD > 0 {
		m.AgentCostUSD.WithLabelValues(role).Add(usage.CostUSD)
	}
}

// SessionStarted marks a session as running.
func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsActive.Inc()
}

// SessionFinished records a terminal status and clears the running mark.
func (m *Metrics) SessionFinished(status string) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionsTotal.WithLabelValues(status).Inc()
}

// RoundCompleted counts a committed round.
func (m *Metrics) RoundCompleted() {
	if m == nil {
		return
	}
	m.RoundsTotal.Inc()
}

// IssuesRepeated counts critic issues carried over from the previous round.
func (m *Metrics) IssuesRepeated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.RepeatedIssues.Add(float64(n))
}

// SessionSaved records a session write.
func (m *Metrics) SessionSaved(err error) {
	if m == nil {
		return
	}
	m.SessionSaves.WithLabelValues(result(err)).Inc()
}

// SessionLoaded records a session read.
func (m *Metrics) SessionLoaded(err error) {
	if m == nil {
		return
	}
	m.SessionLoads.WithLabelValues(result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
