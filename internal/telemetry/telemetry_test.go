package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	assert.False(t, tel.Enabled())
	assert.Nil(t, tel.LoggerProvider())
	assert.Empty(t, tel.Degraded())
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))

	require.NoError(t, tel.Shutdown(context.Background()))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Endpoint = ""

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "invalid telemetry config")
}

func TestNew_EnabledWithExporters(t *testing.T) {
	spans := tracetest.NewInMemoryExporter()
	metrics := &captureExporter{}

	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.MetricsInterval = time.Hour

	tel, err := New(context.Background(), cfg, WithTraceExporter(spans), WithMetricExporter(metrics))
	require.NoError(t, err)

	assert.True(t, tel.Enabled())
	assert.Empty(t, tel.Degraded())
	assert.NotNil(t, tel.LoggerProvider())

	_, span := tel.Tracer("test").Start(context.Background(), "planning")
	span.End()
	counter, err := tel.Meter("test").Int64Counter("planify.test")
	require.NoError(t, err)
	counter.Add(context.Background(), 2)

	require.NoError(t, tel.ForceFlush(context.Background()))
	require.Len(t, spans.GetSpans(), 1)
	assert.Equal(t, "planning", spans.GetSpans()[0].Name)
	assert.Positive(t, metrics.count())

	require.NoError(t, tel.Shutdown(context.Background()))
	assert.False(t, tel.Enabled())
}

func TestTelemetry_NilSafe(t *testing.T) {
	var tel *Telemetry

	assert.NotPanics(t, func() {
		_ = tel.Tracer("test")
		_ = tel.Meter("test")
		_ = tel.LoggerProvider()
		_ = tel.Shutdown(context.Background())
		_ = tel.ForceFlush(context.Background())
	})
	assert.False(t, tel.Enabled())
	assert.Nil(t, tel.Degraded())
}

func TestTestTelemetry(t *testing.T) {
	tt := NewTestTelemetry()
	tt.Install(t)

	_, span := tt.Tracer("test").Start(context.Background(), "test-span")
	span.SetAttributes(attribute.String("key", "value"))
	span.End()

	tt.AssertSpanAttribute(t, "test-span", "key", "value")
	assert.Len(t, tt.SpansNamed("test-span"), 1)

	counter, err := tt.Meter("test").Int64Counter("calls")
	require.NoError(t, err)
	counter.Add(context.Background(), 1, metric.WithAttributes(attribute.String("role", "critic")))
	counter.Add(context.Background(), 2, metric.WithAttributes(attribute.String("role", "architect")))

	assert.Equal(t, int64(3), tt.CounterValue(t, "calls"))
	assert.Equal(t, int64(2), tt.CounterValue(t, "calls", attribute.String("role", "architect")))
}

// captureExporter counts metric exports.
type captureExporter struct {
	mu      sync.Mutex
	exports int
}

func (e *captureExporter) Temporality(k sdkmetric.InstrumentKind) metricdata.Temporality {
	return sdkmetric.DefaultTemporalitySelector(k)
}

func (e *captureExporter) Aggregation(k sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return sdkmetric.DefaultAggregationSelector(k)
}

func (e *captureExporter) Export(context.Context, *metricdata.ResourceMetrics) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.exports++
	return nil
}

func (e *captureExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exports
}

func (e *captureExporter) ForceFlush(context.Context) error { return nil }
func (e *captureExporter) Shutdown(context.Context) error   { return nil }
