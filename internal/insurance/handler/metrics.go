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
	secpremDevicesTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "secprem_devices_total",
		Help: "Total number of registered devices by risk level.",
	}, []string{"risk_level"})

	secpremRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secprem_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	secpremRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "secprem_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	secpremAssessmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secprem_assessments_total",
		Help: "Total risk assessments by resulting risk level.",
	}, []string{"risk_level"})

	secpremQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secprem_quotes_total",
		Help: "Total quotes generated by coverage tier and cache result.",
	}, []string{"tier", "source"})

	secpremThreatReportsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "secprem_threat_reports_total",
		Help: "Total threat reports submitted by severity.",
	}, []string{"severity"})
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

		secpremRequestsTotal.WithLabelValues(method, path, status).Inc()
		secpremRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordAssessment records a completed risk assessment.
func RecordAssessment(riskLevel string) {
	secpremAssessmentsTotal.WithLabelValues(riskLevel).Inc()
}

// RecordQuote records a generated quote. source is "fresh" or "cache".
func RecordQuote(tier, source string) {
	secpremQuotesTotal.WithLabelValues(tier, source).Inc()
}

// RecordThreatReport records a submitted threat report.
func RecordThreatReport(severity string) {
	secpremThreatReportsTotal.WithLabelValues(severity).Inc()
}

// SetDevicesGauge sets the device count gauge for a given risk level.
func SetDevicesGauge(riskLevel string, count float64) {
	secpremDevicesTotal.WithLabelValues(riskLevel).Set(count)
}
