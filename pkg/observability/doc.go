// Package observability provides structured logging, Prometheus metrics, and health checks
// for the authorization library.
//
// # Structured Logging
//
// Loggers are logrus loggers with a JSON formatter:
//
//	logger := observability.NewLogger(observability.ParseLogLevel("info"), os.Stderr)
//	logger.WithField("user_id", userID).Info("attributes loaded")
//
// Request-scoped entries pick up the request and user IDs stored in the context:
//
//	observability.FromContext(ctx, logger).Warn("access denied")
//
// # Prometheus Metrics
//
// Metrics are registered on a caller-supplied registerer. A nil *Metrics records nothing:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordDecision("ownership_check", allowed)
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(redisClient, idpDB)
//	status := checker.Check(ctx)
//
// A cache outage is unhealthy because every decision would deny. A role source outage is
// degraded: cached bundles keep serving until their TTL runs out.
package observability
