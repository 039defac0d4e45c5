// Package observability provides logging, metrics, and tracing
// functionality for avaforum.
//
// # Logging
//
// The Logger interface wraps zap. Components receive a Logger and never
// construct zap loggers themselves:
//
//	logger, err := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// # Metrics
//
// Metrics owns the Prometheus registry. Pipeline, store, rate limiter, and
// response cache collectors are registered on it so a single /metrics
// endpoint exposes everything:
//
//	metrics := observability.NewMetrics("avaforum")
//	mux.Handle("/metrics", metrics.Handler())
//
// # Tracing
//
// NewTracer installs an OpenTelemetry provider with an optional OTLP gRPC
// exporter. Pipeline stages open child spans through otel.Tracer.
package observability
