// Package observability provides structured logging, Prometheus metrics, OpenTelemetry
// tracing, health probes and graceful shutdown for the grant services.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("principal_id", id).Info("overrides updated")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx, fallback).Warn("audit write failed")
//
// # Prometheus Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// Every Record method accepts a nil *Metrics, so components can be built without metrics.
//
// # OpenTelemetry
//
// InitOTel installs OTLP/gRPC trace and metric exporters as the global providers.
// Tracer returns the tracer used for service spans; when OTel is disabled it is a no-op.
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(router, checker)
//
// The database is required; Redis only degrades the status when it is down.
package observability
