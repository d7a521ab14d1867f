package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestNewResource(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	attrs := map[string]string{}
	for _, attr := range newResource(cfg).Attributes() {
		attrs[string(attr.Key)] = attr.Value.AsString()
	}
	assert.Equal(t, "planify", attrs["service.name"])
	assert.Equal(t, "1.0.0", attrs["service.version"])
}

func TestSampler(t *testing.T) {
	assert.Contains(t, sampler(1).Description(), "AlwaysOnSampler")
	assert.Contains(t, sampler(0).Description(), "AlwaysOffSampler")
	assert.Contains(t, sampler(0.5).Description(), "TraceIDRatioBased")
}

func TestStripScheme(t *testing.T) {
	assert.Equal(t, "otel:4318", stripScheme("https://otel:4318"))
	assert.Equal(t, "otel:4318", stripScheme("http://otel:4318"))
	assert.Equal(t, "otel:4317", stripScheme("otel:4317"))
}

func TestNewTracerProvider_WithExporter(t *testing.T) {
	exp := tracetest.NewInMemoryExporter()
	cfg := NewDefaultConfig()

	tp, err := newTracerProvider(context.Background(), cfg, newResource(cfg), exp)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "exported")
	span.End()
	require.NoError(t, tp.ForceFlush(context.Background()))

	// The in-memory exporter drops its spans on shutdown.
	spans := exp.GetSpans()
	require.NoError(t, tp.Shutdown(context.Background()))
	require.Len(t, spans, 1)
	assert.Equal(t, "exported", spans[0].Name)
}

func TestNewExporters_DoNotDial(t *testing.T) {
	ctx := context.Background()
	for _, protocol := range []string{ProtocolGRPC, ProtocolHTTP} {
		cfg := NewDefaultConfig()
		cfg.Protocol = protocol

		texp, err := newTraceExporter(ctx, cfg)
		require.NoError(t, err, protocol)
		require.NoError(t, texp.Shutdown(ctx))

		mexp, err := newMetricExporter(ctx, cfg)
		require.NoError(t, err, protocol)
		require.NoError(t, mexp.Shutdown(ctx))
	}
}
