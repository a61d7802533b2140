// Package metrics exposes Prometheus metrics for HTTP traffic and kit imports.
package metrics

import (
	"context"
	"strconv"
	"time"

	"lambari-service/internal/importer"
	"lambari-service/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the service registers.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	rowsValidated    *prometheus.CounterVec
	rowsCommitted    *prometheus.CounterVec
	entitiesCreated  *prometheus.CounterVec
	importsCompleted *prometheus.CounterVec
	importDuration   prometheus.Histogram
}

var _ importer.Observer = (*Collector)(nil)

// New creates the collectors under namespace_subsystem and registers them on
// a private registry together with the Go and process collectors.
func New(namespace, subsystem string) *Collector {
	m := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rowsValidated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "import_rows_validated_total",
			Help:      "Validated import rows by status.",
		}, []string{"status"}),
		rowsCommitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "import_rows_committed_total",
			Help:      "Committed import rows by outcome status and code.",
		}, []string{"status", "code"}),
		entitiesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "import_entities_created_total",
			Help:      "Brands and categories created by imports.",
		}, []string{"kind"}),
		importsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "imports_completed_total",
			Help:      "Finished commits by result.",
		}, []string{"result"}),
		importDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "import_duration_seconds",
			Help:      "Wall time of a commit.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.rowsValidated,
		m.rowsCommitted,
		m.entitiesCreated,
		m.importsCompleted,
		m.importDuration,
	)
	return m
}

// Registry returns the registry backing /metrics.
func (m *Collector) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Collector) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// Middleware records request counts and latency per route template.
func (m *Collector) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Collector) RowValidated(_ context.Context, result models.ValidationResult) {
	m.rowsValidated.WithLabelValues(string(result.Status)).Inc()
}

func (m *Collector) RowCommitted(_ context.Context, outcome models.RowOutcome) {
	m.rowsCommitted.WithLabelValues(string(outcome.Status), outcome.Code).Inc()
}

func (m *Collector) EntityCreated(_ context.Context, kind, _, _ string) {
	m.entitiesCreated.WithLabelValues(kind).Inc()
}

func (m *Collector) ImportCompleted(_ context.Context, report *models.BulkImportReport, err error) {
	result := "completed"
	if err != nil {
		result = "failed"
	}
	m.importsCompleted.WithLabelValues(result).Inc()
	if report != nil {
		m.importDuration.Observe(float64(report.DurationMs) / float64(time.Second/time.Millisecond))
	}
}
