package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/planify/internal/logging"
)

// Telemetry holds the OpenTelemetry providers for one planify process.
// A provider that cannot be built is recorded as degraded and left as the
// global no-op; planning continues either way.
type Telemetry struct {
	cfg    *Config
	logger *logging.Logger

	tp *trace.TracerProvider
	mp *sdkmetric.MeterProvider
	lp log.LoggerProvider

	spanExp   trace.SpanExporter
	metricExp sdkmetric.Exporter

	mu       sync.Mutex
	degraded []string
	stopped  bool
}

type Option func(*Telemetry)

func WithLogger(l *logging.Logger) Option {
	return func(t *Telemetry) { t.logger = l }
}

// WithTraceExporter replaces the OTLP span exporter; tests use it to
// capture spans in memory.
func WithTraceExporter(exp trace.SpanExporter) Option {
	return func(t *Telemetry) { t.spanExp = exp }
}

func WithMetricExporter(exp sdkmetric.Exporter) Option {
	return func(t *Telemetry) { t.metricExp = exp }
}

// New builds providers from cfg and installs them globally. When cfg is
// disabled nothing is installed and every accessor falls back to the
// global providers.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry config: %w", err)
	}
	t := &Telemetry{cfg: cfg, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)
	if tp, err := newTracerProvider(ctx, cfg, res, t.spanExp); err != nil {
		t.degrade(ctx, "traces", err)
	} else {
		t.tp = tp
		otel.SetTracerProvider(tp)
	}
	if mp, err := newMeterProvider(ctx, cfg, res, t.metricExp); err != nil {
		t.degrade(ctx, "metrics", err)
	} else {
		t.mp = mp
		otel.SetMeterProvider(mp)
	}
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	// No OTLP log exporter is configured here; the zap bridge writes to
	// whatever provider the host process installed globally.
	t.lp = global.GetLoggerProvider()
	return t, nil
}

func (t *Telemetry) degrade(ctx context.Context, component string, err error) {
	t.mu.Lock()
	t.degraded = append(t.degraded, component)
	t.mu.Unlock()
	t.logger.Warn(ctx, "telemetry degraded", zap.String("component", component), zap.Error(err))
}

// Enabled reports whether telemetry was requested and has not been shut down.
func (t *Telemetry) Enabled() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg.Enabled && !t.stopped
}

// Degraded lists the components ("traces", "metrics") that failed to start.
func (t *Telemetry) Degraded() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.degraded...)
}

func (t *Telemetry) Tracer(name string, opts ...oteltrace.TracerOption) oteltrace.Tracer {
	if t == nil || t.tp == nil {
		return otel.Tracer(name, opts...)
	}
	return t.tp.Tracer(name, opts...)
}

func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.mp == nil {
		return otel.Meter(name, opts...)
	}
	return t.mp.Meter(name, opts...)
}

// LoggerProvider is the target for logging.Logger.WithOTEL. It is nil when
// telemetry is off, which leaves the logger unchanged.
func (t *Telemetry) LoggerProvider() log.LoggerProvider {
	if t == nil {
		return nil
	}
	return t.lp
}

type provider interface {
	ForceFlush(context.Context) error
	Shutdown(context.Context) error
}

// providers returns the running providers by component name.
func (t *Telemetry) providers() map[string]provider {
	out := make(map[string]provider, 2)
	if t.tp != nil {
		out["traces"] = t.tp
	}
	if t.mp != nil {
		out["metrics"] = t.mp
	}
	return out
}

// ForceFlush exports buffered spans and metrics.
func (t *Telemetry) ForceFlush(ctx context.Context) error {
	if t == nil {
		return nil
	}
	var errs []error
	for name, p := range t.providers() {
		if err := p.ForceFlush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flushing %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Shutdown flushes and stops every provider. If ctx has no deadline the
// configured shutdown timeout bounds the call.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.ShutdownTimeout)
		defer cancel()
	}

	var errs []error
	for name, p := range t.providers() {
		if err := p.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping %s: %w", name, err))
		}
	}
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	return errors.Join(errs...)
}
