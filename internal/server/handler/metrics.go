package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scaffoldRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaffold_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	scaffoldRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scaffold_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	scaffoldLoginsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaffold_logins_total",
		Help: "Total successful logins by provider.",
	}, []string{"provider"})

	scaffoldSessionsIssuedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scaffold_sessions_issued_total",
		Help: "Total session cookies issued.",
	})

	scaffoldReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaffold_profile_reconciliations_total",
		Help: "Total profile reconciliations by outcome.",
	}, []string{"outcome"})

	scaffoldActivityEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scaffold_activity_events_total",
		Help: "Total activity events recorded by type.",
	}, []string{"type"})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		scaffoldRequestsTotal.WithLabelValues(method, path, status).Inc()
		scaffoldRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordLogin records a successful login for the given provider.
func RecordLogin(provider string) {
	scaffoldLoginsTotal.WithLabelValues(provider).Inc()
}

// RecordSessionIssued records a session cookie issuance.
func RecordSessionIssued() {
	scaffoldSessionsIssuedTotal.Inc()
}

// RecordReconciliation records a profile reconciliation outcome
// ("created", "merged", or "failed").
func RecordReconciliation(outcome string) {
	scaffoldReconciliationsTotal.WithLabelValues(outcome).Inc()
}

// RecordActivityEvent records an activity event append by type.
func RecordActivityEvent(eventType string) {
	scaffoldActivityEventsTotal.WithLabelValues(eventType).Inc()
}
