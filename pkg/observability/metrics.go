package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Permission metrics
	PermissionChecksTotal *prometheus.CounterVec
	MutationsTotal        *prometheus.CounterVec
	AuditGapsTotal        *prometheus.CounterVec

	// Cache metrics
	CacheLookupsTotal *prometheus.CounterVec

	// Backfill metrics
	BackfillPrincipalsTotal *prometheus.CounterVec
	BackfillDuration        prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "grant_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		PermissionChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_permission_checks_total",
				Help: "Permission decisions by outcome",
			},
			[]string{"kind", "result"},
		),
		MutationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_permission_mutations_total",
				Help: "Override updates and resets by outcome",
			},
			[]string{"operation", "outcome"},
		),
		AuditGapsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_audit_write_failures_total",
				Help: "Mutations whose audit entry could not be written",
			},
			[]string{"operation"},
		),
		CacheLookupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_permission_cache_lookups_total",
				Help: "Resolved-permission cache lookups by result",
			},
			[]string{"result"},
		),
		BackfillPrincipalsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "grant_backfill_principals_total",
				Help: "Principals processed by the backfill by outcome",
			},
			[]string{"outcome"},
		),
		BackfillDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "grant_backfill_duration_seconds",
				Help:    "Wall time of backfill runs",
				Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.PermissionChecksTotal,
		m.MutationsTotal,
		m.AuditGapsTotal,
		m.CacheLookupsTotal,
		m.BackfillPrincipalsTotal,
		m.BackfillDuration,
	)

	return m
}

// RecordCheck counts a permission decision
func (m *Metrics) RecordCheck(kind string, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.PermissionChecksTotal.WithLabelValues(kind, result).Inc()
}

// RecordMutation counts an update or reset outcome
func (m *Metrics) RecordMutation(operation, outcome string) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordAuditGap counts a mutation that has no audit entry
func (m *Metrics) RecordAuditGap(operation string) {
	if m == nil {
		return
	}
	m.AuditGapsTotal.WithLabelValues(operation).Inc()
}

// RecordCacheLookup counts a cache hit or miss
func (m *Metrics) RecordCacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// RecordBackfillItem counts a processed principal
func (m *Metrics) RecordBackfillItem(outcome string) {
	if m == nil {
		return
	}
	m.BackfillPrincipalsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBackfill records the duration of a backfill run
func (m *Metrics) ObserveBackfill(d time.Duration) {
	if m == nil {
		return
	}
	m.BackfillDuration.Observe(d.Seconds())
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments requests, labelling by route template to bound cardinality
func HTTPMetricsMiddleware(metrics *Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if metrics == nil {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := "unmatched"
			if cur := mux.CurrentRoute(r); cur != nil {
				if tmpl, err := cur.GetPathTemplate(); err == nil {
					route = tmpl
				}
			}

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
