// Package metrics exposes Prometheus instruments for the renewal pipeline.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds the pipeline instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	ExtractionsTotal     *prometheus.CounterVec
	AnalysesTotal        *prometheus.CounterVec
	CreditsTotal         *prometheus.CounterVec
	AlertRegenerations   prometheus.Counter
	AlertsDispatched     *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec
	InboxFilesIngested   *prometheus.CounterVec
	SweepRunsTotal       *prometheus.CounterVec
	LedgerResetsTotal    prometheus.Counter
	AnalysisCacheHits    prometheus.Counter
	ExtractionConfidence prometheus.Histogram
	HTTPRequestDuration  *prometheus.HistogramVec
}

// New registers the instruments with the default registry. Registration
// happens once per process.
//
// Metrics:
//   - renewals_extractions_total{method,outcome}
//   - renewals_ai_analyses_total{outcome}
//   - renewals_credits_total{operation}
//   - renewals_alert_regenerations_total
//   - renewals_alerts_dispatched_total{outcome}
//   - renewals_task_duration_seconds{task,status}
//   - renewals_inbox_files_total{outcome}
//   - renewals_sweep_runs_total{job,outcome}
//   - renewals_ledger_resets_total
//   - renewals_ai_cache_hits_total
//   - renewals_extraction_confidence
//   - renewals_http_request_duration_seconds{method,route,status}
func New() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			ExtractionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renewals_extractions_total",
					Help: "Document text extractions by method and outcome",
				},
				[]string{"method", "outcome"},
			),
			AnalysesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renewals_ai_analyses_total",
					Help: "Semantic analysis requests by outcome",
				},
				[]string{"outcome"},
			),
			CreditsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renewals_credits_total",
					Help: "Credit ledger operations",
				},
				[]string{"operation"},
			),
			AlertRegenerations: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "renewals_alert_regenerations_total",
					Help: "Alert schedule regenerations",
				},
			),
			AlertsDispatched: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renewals_alerts_dispatched_total",
					Help: "Alert deliveries by outcome",
				},
				[]string{"outcome"},
			),
			TaskDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "renewals_task_duration_seconds",
					Help:    "Work queue task durations",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
				},
				[]string{"task", "status"},
			),
			InboxFilesIngested: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renewals_inbox_files_total",
					Help: "Files picked up from the inbox directory",
				},
				[]string{"outcome"},
			),
			SweepRunsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "renewals_sweep_runs_total",
					Help: "Scheduled sweep runs by job and outcome",
				},
				[]string{"job", "outcome"},
			),
			LedgerResetsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "renewals_ledger_resets_total",
					Help: "Monthly credit ledger resets",
				},
			),
			AnalysisCacheHits: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "renewals_ai_cache_hits_total",
					Help: "Semantic analyses served from the contract cache",
				},
			),
			ExtractionConfidence: promauto.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "renewals_extraction_confidence",
					Help:    "Extraction confidence (0-100) of successful extractions",
					Buckets: prometheus.LinearBuckets(10, 10, 9),
				},
			),
			HTTPRequestDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "renewals_http_request_duration_seconds",
					Help:    "API request durations by route pattern",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"method", "route", "status"},
			),
		}
	})

	return globalMetrics
}

func outcome(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordExtraction records an extraction attempt.
func (m *Metrics) RecordExtraction(method string, confidence float64, err error) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.ExtractionsTotal.WithLabelValues(method, outcome(err)).Inc()
	if err == nil {
		m.ExtractionConfidence.Observe(confidence)
	}
}

// RecordAnalysis records a semantic analysis outcome such as "completed",
// "failed", "cached" or "rejected".
func (m *Metrics) RecordAnalysis(result string) {
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(result).Inc()
	if result == "cached" {
		m.AnalysisCacheHits.Inc()
	}
}

// RecordCredit records a ledger operation.
func (m *Metrics) RecordCredit(operation string) {
	if m == nil {
		return
	}
	m.CreditsTotal.WithLabelValues(operation).Inc()
	if operation == "reset" {
		m.LedgerResetsTotal.Inc()
	}
}

// RecordAlertRegeneration records one schedule regeneration.
func (m *Metrics) RecordAlertRegeneration() {
	if m == nil {
		return
	}
	m.AlertRegenerations.Inc()
}

// RecordAlertDispatch records one alert delivery attempt.
func (m *Metrics) RecordAlertDispatch(err error) {
	if m == nil {
		return
	}
	m.AlertsDispatched.WithLabelValues(outcome(err)).Inc()
}

// RecordTask records a finished work queue task.
func (m *Metrics) RecordTask(name, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.TaskDuration.WithLabelValues(name, status).Observe(d.Seconds())
}

// RecordInboxFile records an inbox pickup.
func (m *Metrics) RecordInboxFile(err error) {
	if m == nil {
		return
	}
	m.InboxFilesIngested.WithLabelValues(outcome(err)).Inc()
}

// RecordSweep records a scheduled sweep run.
func (m *Metrics) RecordSweep(job string, err error) {
	if m == nil {
		return
	}
	m.SweepRunsTotal.WithLabelValues(job, outcome(err)).Inc()
}

// RecordHTTPRequest records a served API request. route is the matched
// ServeMux pattern, never the raw path.
func (m *Metrics) RecordHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
