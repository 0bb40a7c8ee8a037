// Package observability provides structured logging, Prometheus metrics,
// health checks, panic recovery, graceful shutdown, and OpenTelemetry
// tracing for the eventdesk service.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("event_id", id).Info("event confirmed")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AccessDecisionsTotal.WithLabelValues("edit", "event", "deny").Inc()
//
// # Health
//
//	checker := observability.NewHealthChecker(db, redisClient, version)
//	observability.RegisterHealthRoutes(mux, checker)
//
// # Shutdown
//
//	manager := observability.NewShutdownManager(logger, server, 30*time.Second)
//	manager.RegisterShutdownFunc(func(ctx context.Context) error { return db.Close() })
//	manager.WaitForShutdown()
package observability
