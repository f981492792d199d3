// File: internal/metrics/prometheus.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the alert
// summarizer
type PrometheusMetrics struct {
	// Run metrics
	RunsTotal       *prometheus.CounterVec
	RunsRejected    prometheus.Counter
	RunDuration     prometheus.Histogram
	LastRunTime     prometheus.Gauge
	AlertsProcessed prometheus.Gauge

	// Pipeline metrics
	MessagesFetchedTotal  prometheus.Counter
	MessagesSkippedTotal  prometheus.Counter
	AlertsClassifiedTotal *prometheus.CounterVec
	SummariesTotal        *prometheus.CounterVec
	SummaryDuration       prometheus.Histogram

	// Delivery metrics
	ReportsSentTotal   prometheus.Counter
	ReportsFailedTotal prometheus.Counter
	ErrorNoticesTotal  prometheus.Counter
	DeliveryDuration   prometheus.Histogram

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	MemoryUsage       prometheus.Gauge
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		RunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summarizer_runs_total",
				Help: "Total number of daily summary runs",
			},
			[]string{"trigger", "status"},
		),

		RunsRejected: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "summarizer_runs_rejected_total",
				Help: "Total number of triggers rejected because a run was in progress",
			},
		),

		RunDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "summarizer_run_duration_seconds",
				Help:    "Time spent on one daily summary run",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
			},
		),

		LastRunTime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "summarizer_last_run_timestamp_seconds",
				Help: "Unix timestamp of the last completed run",
			},
		),

		AlertsProcessed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "summarizer_last_run_alerts",
				Help: "Number of alerts processed by the last run",
			},
		),

		MessagesFetchedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "summarizer_messages_fetched_total",
				Help: "Total number of messages fetched from the mailbox store",
			},
		),

		MessagesSkippedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "summarizer_messages_skipped_total",
				Help: "Total number of messages skipped because the body could not be resolved",
			},
		),

		AlertsClassifiedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summarizer_alerts_classified_total",
				Help: "Total number of alerts classified",
			},
			[]string{"source", "severity"},
		),

		SummariesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summarizer_summaries_total",
				Help: "Total number of reports generated by tier",
			},
			[]string{"tier"},
		),

		SummaryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "summarizer_summary_duration_seconds",
				Help:    "Time spent generating the report narrative",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
		),

		ReportsSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "summarizer_reports_sent_total",
				Help: "Total number of daily reports delivered",
			},
		),

		ReportsFailedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "summarizer_reports_failed_total",
				Help: "Total number of daily report deliveries that failed",
			},
		),

		ErrorNoticesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "summarizer_error_notices_total",
				Help: "Total number of best-effort error notifications attempted",
			},
		),

		DeliveryDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "summarizer_delivery_duration_seconds",
				Help:    "Time spent delivering one report email",
				Buckets: prometheus.DefBuckets,
			},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "summarizer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "summarizer_http_request_duration_seconds",
				Help:    "HTTP request latencies",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "summarizer_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "summarizer_component_health",
				Help: "Component health status (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		MemoryUsage: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "summarizer_memory_usage_bytes",
				Help: "Current memory usage in bytes",
			},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "summarizer_goroutines",
				Help: "Current number of goroutines",
			},
		),
	}
}

// RecordRun records the outcome of one daily run
func (pm *PrometheusMetrics) RecordRun(trigger, status string, duration time.Duration, alerts int) {
	pm.RunsTotal.WithLabelValues(trigger, status).Inc()
	pm.RunDuration.Observe(duration.Seconds())
	pm.LastRunTime.SetToCurrentTime()
	pm.AlertsProcessed.Set(float64(alerts))
}

// RecordFetch records the outcome of one window fetch from the mailbox
// store
func (pm *PrometheusMetrics) RecordFetch(resolved, skipped int) {
	pm.MessagesFetchedTotal.Add(float64(resolved))
	pm.MessagesSkippedTotal.Add(float64(skipped))
}

// RecordRejectedRun records a trigger rejected by the single-flight guard
func (pm *PrometheusMetrics) RecordRejectedRun() {
	pm.RunsRejected.Inc()
}

// RecordClassification records one classified alert
func (pm *PrometheusMetrics) RecordClassification(source, severity string) {
	pm.AlertsClassifiedTotal.WithLabelValues(source, severity).Inc()
}

// RecordSummary records one generated report by tier
func (pm *PrometheusMetrics) RecordSummary(tier string, duration time.Duration) {
	pm.SummariesTotal.WithLabelValues(tier).Inc()
	pm.SummaryDuration.Observe(duration.Seconds())
}

// RecordDelivery records one report delivery attempt
func (pm *PrometheusMetrics) RecordDelivery(success bool, duration time.Duration) {
	if success {
		pm.ReportsSentTotal.Inc()
	} else {
		pm.ReportsFailedTotal.Inc()
	}
	pm.DeliveryDuration.Observe(duration.Seconds())
}

// RecordHTTPRequest records one HTTP request
func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateComponentHealth updates a component health gauge
func (pm *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	value := 0.0
	if healthy {
		value = 1.0
	}
	pm.ComponentHealth.WithLabelValues(component).Set(value)
}

// UpdateMemoryUsage updates the memory usage gauge
func (pm *PrometheusMetrics) UpdateMemoryUsage(bytes uint64) {
	pm.MemoryUsage.Set(float64(bytes))
}

// UpdateGoroutineCount updates the goroutine count gauge
func (pm *PrometheusMetrics) UpdateGoroutineCount(count int) {
	pm.GoroutineCount.Set(float64(count))
}

// UpdateApplicationUptime updates the uptime gauge
func (pm *PrometheusMetrics) UpdateApplicationUptime(startTime time.Time) {
	pm.ApplicationUptime.Set(time.Since(startTime).Seconds())
}
