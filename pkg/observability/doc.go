// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health checks, and graceful shutdown for the
// Canopy service.
//
// # Logging
//
// Logger wraps log/slog with a JSON handler and context helpers so request
// ID and user ID propagate through handler call chains:
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("project_id", id).Info("project created")
//
// # Metrics
//
// NewMetrics registers all collectors on a Prometheus registry. Permission
// decisions, membership ledger mutations, and HTTP traffic are counted;
// business gauges (projects, trees, active members) are refreshed by a
// periodic job wired in cmd/canopy.
//
// # Health
//
// HealthChecker exposes Liveness and Readiness handlers over the database
// and Redis, served on a dedicated health port for Kubernetes probes.
package observability
