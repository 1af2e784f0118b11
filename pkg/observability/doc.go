// Package observability provides structured logging, Prometheus metrics,
// health checks, and graceful shutdown for the subscription engine.
//
// # Structured Logging
//
// Create a logger:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("subscription_id", id).Info("window generated")
//
// # Prometheus Metrics
//
//	metrics := observability.NewMetrics(prometheus.NewRegistry())
//	metrics.SweepMaterializedJobs.Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	mux.HandleFunc("/healthz", checker.Liveness)
//	mux.HandleFunc("/readyz", checker.Readiness)
package observability
