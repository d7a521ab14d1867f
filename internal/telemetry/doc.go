// Package telemetry wires OpenTelemetry tracing and metrics for planify.
//
// Agents, the session store and the orchestrator create spans and
// instruments through the otel globals. This package installs real
// providers behind those globals when the telemetry section of the config
// is enabled, exporting over OTLP gRPC (default) or HTTP/protobuf.
//
//	tel, err := telemetry.New(ctx, telemetry.FromConfig(cfg.Telemetry, version),
//	    telemetry.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//	logger = logger.WithOTEL(tel.LoggerProvider())
//
// A provider whose exporter cannot be built is listed by Degraded and the
// run continues without it.
//
// Tests use TestTelemetry, which records spans and metrics in memory:
//
//	tt := telemetry.NewTestTelemetry()
//	tt.Install(t)
//	// ... run code that starts spans ...
//	tt.AssertSpanAttribute(t, "orchestrator.run", "outcome.state", "DONE")
package telemetry
