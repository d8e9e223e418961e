// Package telemetry provides observability instrumentation for the brain
// control plane.
//
// The telemetry package integrates structured logging (zerolog), distributed
// tracing (OpenTelemetry), metrics (Prometheus), and an in-process execution
// event stream into a unified system for monitoring plan generation and
// execution.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Stream - Execution lifecycle events for streaming consumers
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context
// propagation:
//
//	logger := tel.Logger.NewComponentLogger("generator")
//	logger = logger.WithRequestID("req-123").WithPlanID("plan-456")
//	logger.Info("Starting plan generation")
//	logger.WithError(err).Error("Generation failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into request flow and performance:
//
//	ctx, span := tel.Tracer.Start(ctx, "operation.name")
//	defer span.End()
//
// Domain helpers exist for the common spans: StartGenerationSpan,
// StartExecutionSpan, StartStepSpan and StartLLMSpan.
//
// # Metrics
//
// Metrics are recorded through typed helpers on the Metrics struct, for
// example RecordGeneration, RecordLLMCall, RecordCacheHit and
// RecordExecutionCompleted. The collector uses its own registry so tests can
// create isolated instances.
//
// # Event Stream
//
// The EventPublisher delivers execution lifecycle events to subscribers.
// Delivery is synchronous by default so subscribers observe events in the
// order they were published; the streaming API relies on this ordering.
//
//	tel.Events.Subscribe(func(ev telemetry.Event) {
//	    // relay to a websocket client
//	}, telemetry.FilterByExecutionID(id))
package telemetry
