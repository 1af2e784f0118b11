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

	// Sweep metrics
	SweepRunsTotal          prometheus.Counter
	SweepDuration           prometheus.Histogram
	SweepSubscriptionsSwept prometheus.Counter
	SweepEntriesGenerated   prometheus.Counter
	SweepMaterializedJobs   prometheus.Counter
	SweepClaimConflicts     prometheus.Counter
	SweepInvoicesIssued     prometheus.Counter
	SweepCompletions        prometheus.Counter
	SweepErrors             *prometheus.CounterVec

	// Cache metrics
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter

	// Database metrics
	DBConnectionsActive prometheus.Gauge
	DBConnectionsIdle   prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldvine_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fieldvine_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		SweepRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_runs_total",
			Help: "Total number of sweep runs",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fieldvine_sweep_duration_seconds",
			Help:    "Duration of a full sweep run in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
		}),
		SweepSubscriptionsSwept: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_subscriptions_total",
			Help: "Subscriptions visited by the sweep",
		}),
		SweepEntriesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_entries_generated_total",
			Help: "Schedule entries inserted by window top-up",
		}),
		SweepMaterializedJobs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_materialized_jobs_total",
			Help: "Jobs created from due schedule entries",
		}),
		SweepClaimConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_claim_conflicts_total",
			Help: "Materialization attempts that found the entry already claimed",
		}),
		SweepInvoicesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_invoices_issued_total",
			Help: "Invoices issued by the sweep",
		}),
		SweepCompletions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_sweep_completions_total",
			Help: "Fixed-term subscriptions auto-completed by the sweep",
		}),
		SweepErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fieldvine_sweep_errors_total",
				Help: "Errors encountered by the sweep",
			},
			[]string{"stage"},
		),
		CacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_portal_cache_hits_total",
			Help: "Portal cache hits",
		}),
		CacheMissesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fieldvine_portal_cache_misses_total",
			Help: "Portal cache misses",
		}),
		DBConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldvine_db_connections_active",
			Help: "Active database connections",
		}),
		DBConnectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fieldvine_db_connections_idle",
			Help: "Idle database connections",
		}),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SweepRunsTotal,
		m.SweepDuration,
		m.SweepSubscriptionsSwept,
		m.SweepEntriesGenerated,
		m.SweepMaterializedJobs,
		m.SweepClaimConflicts,
		m.SweepInvoicesIssued,
		m.SweepCompletions,
		m.SweepErrors,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps an HTTP handler with request count and duration
// metrics. The path label uses the route template, not the raw URL, to keep
// cardinality bounded.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(recorder.status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
