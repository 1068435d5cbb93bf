// Package telemetry wires OpenTelemetry tracing and metrics export into
// ragbench.
//
// # Overview
//
// This package implements distributed tracing and metrics collection using
// the OpenTelemetry Go SDK. It exports telemetry data to an OTEL Collector,
// or any other OTLP-compatible backend.
//
// # Usage
//
// Create telemetry instance:
//
//	cfg := telemetry.NewDefaultConfig()
//	tel, err := telemetry.New(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(ctx)
//
// Use tracer and meter:
//
//	tracer := tel.Tracer("ragbench.dispatch")
//	ctx, span := tracer.Start(ctx, "Dispatcher.Run")
//	defer span.End()
//
//	meter := tel.Meter("ragbench.dispatch")
//	counter, _ := meter.Int64Counter("techniques.run")
//	counter.Add(ctx, 1)
//
// # Configuration
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  service_name: "ragbench"
//	  sampling:
//	    rate: 1.0  # 100% in dev, lower in prod
//	    always_on_errors: true
//	  metrics:
//	    enabled: true
//	    export_interval: "15s"
//
// # Error handling
//
// Telemetry failures do not crash the application. If a provider cannot be
// initialized, the instance degrades: it logs the cause through the logger
// passed to New and falls back to no-op tracers and meters.
//
// # Testing
//
// Use TestTelemetry for in-memory assertions on emitted spans and metrics:
//
//	tt := telemetry.NewTestTelemetry()
//	tracer := tt.Tracer("test")
//	_, span := tracer.Start(ctx, "test-span")
//	span.End()
//	tt.AssertSpanExists(t, "test-span")
package telemetry
