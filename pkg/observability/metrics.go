package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission engine metrics. Decisions are counted, never cached:
	// a stale grant is a security defect, a stale counter is not.
	AccessChecksTotal    *prometheus.CounterVec
	AccessCheckDuration  *prometheus.HistogramVec
	AccessDeniedTotal    *prometheus.CounterVec
	ResolveNotFoundTotal *prometheus.CounterVec

	// Membership ledger metrics
	MemberJoinsTotal  *prometheus.CounterVec
	MemberLeavesTotal *prometheus.CounterVec

	// Storage metrics
	StorageOperationsTotal   *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
	StorageErrorsTotal       *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	// Business metrics
	ProjectsTotal      prometheus.Gauge
	TreesTotal         prometheus.Gauge
	ActiveMembersTotal prometheus.Gauge
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canopy_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		AccessChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_access_checks_total",
				Help: "Total number of access decisions computed",
			},
			[]string{"resource", "outcome"},
		),
		AccessCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canopy_access_check_duration_seconds",
				Help:    "Access decision computation duration in seconds",
				Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"resource"},
		),
		AccessDeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_access_denied_total",
				Help: "Total number of denied capability requests",
			},
			[]string{"resource", "capability"},
		),
		ResolveNotFoundTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_resolve_not_found_total",
				Help: "Total number of identifier resolution failures",
			},
			[]string{"resource"},
		),

		MemberJoinsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_member_joins_total",
				Help: "Total number of membership rows appended",
			},
			[]string{"role"},
		),
		MemberLeavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_member_leaves_total",
				Help: "Total number of membership rows stamped departed",
			},
			[]string{"role"},
		),

		StorageOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_storage_operations_total",
				Help: "Total number of storage operations",
			},
			[]string{"operation", "status"},
		),
		StorageOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "canopy_storage_operation_duration_seconds",
				Help:    "Storage operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		StorageErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "canopy_storage_errors_total",
				Help: "Total number of storage errors",
			},
			[]string{"operation"},
		),

		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_db_connections_active",
			Help: "Number of active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_db_connections_idle",
			Help: "Number of idle database connections",
		}),

		ProjectsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_projects_total",
			Help: "Total number of projects",
		}),
		TreesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_trees_total",
			Help: "Total number of experiment trees",
		}),
		ActiveMembersTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "canopy_active_members_total",
			Help: "Total number of active project memberships",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AccessChecksTotal,
		m.AccessCheckDuration,
		m.AccessDeniedTotal,
		m.ResolveNotFoundTotal,
		m.MemberJoinsTotal,
		m.MemberLeavesTotal,
		m.StorageOperationsTotal,
		m.StorageOperationDuration,
		m.StorageErrorsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.ProjectsTotal,
		m.TreesTotal,
		m.ActiveMembersTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the registry
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveAccessCheck records a completed access decision
func (m *Metrics) ObserveAccessCheck(resource, outcome string, duration time.Duration) {
	m.AccessChecksTotal.WithLabelValues(resource, outcome).Inc()
	m.AccessCheckDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// statusRecorder captures the response status code for metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware instruments an HTTP handler with request metrics
func (m *Metrics) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(rec.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(duration.Seconds())
	})
}
