package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry keeps spans and metrics in memory so tests can inspect
// what the orchestrator and HTTP server recorded.
type TestTelemetry struct {
	*Telemetry
	spans  *tracetest.SpanRecorder
	reader *sdkmetric.ManualReader
}

func NewTestTelemetry() *TestTelemetry {
	cfg := NewDefaultConfig()
	cfg.Enabled = true

	spans := tracetest.NewSpanRecorder()
	reader := sdkmetric.NewManualReader()
	return &TestTelemetry{
		Telemetry: &Telemetry{
			cfg: cfg,
			tp:  trace.NewTracerProvider(trace.WithSpanProcessor(spans)),
			mp:  sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)),
		},
		spans:  spans,
		reader: reader,
	}
}

// Install swaps the test providers in as the globals for the rest of tb.
// Tracers obtained from otel before the swap follow it through the global
// delegate.
func (t *TestTelemetry) Install(tb testing.TB) {
	tb.Helper()
	tp, mp := otel.GetTracerProvider(), otel.GetMeterProvider()
	otel.SetTracerProvider(t.tp)
	otel.SetMeterProvider(t.mp)
	tb.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		_ = t.Shutdown(context.Background())
	})
}

// SpansNamed returns the ended spans called name in end order.
func (t *TestTelemetry) SpansNamed(name string) []trace.ReadOnlySpan {
	var out []trace.ReadOnlySpan
	for _, s := range t.spans.Ended() {
		if s.Name() == name {
			out = append(out, s)
		}
	}
	return out
}

// AssertSpanAttribute checks key on the first ended span called name.
func (t *TestTelemetry) AssertSpanAttribute(tb testing.TB, name, key string, want any) {
	tb.Helper()
	spans := t.SpansNamed(name)
	if len(spans) == 0 {
		var seen []string
		for _, s := range t.spans.Ended() {
			seen = append(seen, s.Name())
		}
		tb.Fatalf("no span %q; ended spans: %v", name, seen)
	}
	for _, kv := range spans[0].Attributes() {
		if string(kv.Key) != key {
			continue
		}
		if got := kv.Value.AsInterface(); got != want {
			tb.Errorf("span %q %s = %v, want %v", name, key, got, want)
		}
		return
	}
	tb.Errorf("span %q has no attribute %s", name, key)
}

// CounterValue collects once and sums the int64 counter called name over
// data points whose attribute set equals attrs. With no attrs every point
// counts.
func (t *TestTelemetry) CounterValue(tb testing.TB, name string, attrs ...attribute.KeyValue) int64 {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.reader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collecting metrics: %v", err)
	}
	filter := attribute.NewSet(attrs...)

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if m.Name != name || !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if len(attrs) == 0 || dp.Attributes.Equals(&filter) {
					total += dp.Value
				}
			}
		}
	}
	return total
}
