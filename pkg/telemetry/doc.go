// Package telemetry provides logging, tracing and metrics for fwgen.
//
// Structured logging uses zerolog, tracing uses OpenTelemetry and metrics
// use Prometheus. The engine itself only depends on zerolog.Logger, the
// global OpenTelemetry tracer provider and the engine.BuildObserver
// interface; this package supplies concrete implementations of all three.
//
// # Usage
//
// Initialize telemetry at startup and shut it down on exit:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.TextfilePath = "/var/lib/node_exporter/fwgen.prom"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	builder := tel.Instrument(engine.NewBuilder(registry, tel.Logger.Zerolog()))
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("loader")
//	logger.WithBuildID(id).WithSource("node.yaml").Info("Build finished")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// NewTracer installs its provider globally when tracing is enabled, so the
// engine's "build", "build.validate", "build.resolve" and
// "component.register" spans are exported through it. Supported exporters
// are otlp (gRPC) and stdout.
//
//	ctx, span := tel.Tracer.StartCommandSpan(ctx, "compile", "node.yaml")
//	defer span.End()
//
// # Metrics
//
// Metrics implements engine.BuildObserver:
//
//	fwgen_builds_started_total
//	fwgen_builds_finished_total{status}
//	fwgen_build_duration_seconds{status}
//	fwgen_active_builds
//	fwgen_component_registrations_total{component}
//	fwgen_component_registration_duration_seconds{component}
//	fwgen_config_errors_total{kind}
//
// Long-running commands serve them over HTTP with StartMetricsServer.
// One-shot commands set MetricsConfig.TextfilePath and the metrics are
// written on Shutdown.
//
// # Context Helpers
//
//	ic := telemetry.StartOperation(ctx, "validate", telemetry.AttrBuildSource.String(path))
//	defer func() { ic.End(err) }()
package telemetry
