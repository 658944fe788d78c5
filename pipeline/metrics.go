package pipeline

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for a pipeline run.
type Metrics struct {
	Registry         *prometheus.Registry
	StageRuns        *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
	StageRetries     *prometheus.CounterVec
	ErrorsTotal      *prometheus.CounterVec
	FetchRequests    *prometheus.CounterVec
	FetchDuration    prometheus.Histogram
	RecordsExtracted prometheus.Counter
	RowsInserted     prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	stageRuns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpipe_stage_runs_total",
			Help: "Stage executions by final outcome.",
		},
		[]string{"stage", "outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookpipe_stage_duration_seconds",
			Help:    "Wall time of a single stage attempt.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	stageRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpipe_stage_retries_total",
			Help: "Retry attempts scheduled per stage.",
		},
		[]string{"stage"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpipe_errors_total",
			Help: "Stage attempt failures by error type.",
		},
		[]string{"stage", "error_type"},
	)
	fetchRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookpipe_fetch_requests_total",
			Help: "Catalog requests by response status.",
		},
		[]string{"status"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "bookpipe_fetch_duration_seconds",
			Help:    "Catalog request latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	recordsExtracted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpipe_records_extracted_total",
			Help: "Listing fragments extracted from catalog pages.",
		},
	)
	rowsInserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bookpipe_rows_inserted_total",
			Help: "Rows committed to the book table.",
		},
	)

	registry.MustRegister(stageRuns, stageDuration, stageRetries, errorsTotal,
		fetchRequests, fetchDuration, recordsExtracted, rowsInserted)

	return &Metrics{
		Registry:         registry,
		StageRuns:        stageRuns,
		StageDuration:    stageDuration,
		StageRetries:     stageRetries,
		ErrorsTotal:      errorsTotal,
		FetchRequests:    fetchRequests,
		FetchDuration:    fetchDuration,
		RecordsExtracted: recordsExtracted,
		RowsInserted:     rowsInserted,
	}
}

// ObserveStage records one stage attempt duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncStageRun counts a finished stage by outcome.
func (m *Metrics) IncStageRun(stage, outcome string) {
	if m == nil {
		return
	}
	m.StageRuns.WithLabelValues(stage, outcome).Inc()
}

// IncRetry increments the retries counter for a stage.
func (m *Metrics) IncRetry(stage string) {
	if m == nil {
		return
	}
	m.StageRetries.WithLabelValues(stage).Inc()
}

// IncError increments the errors counter for a stage and type label.
func (m *Metrics) IncError(stage, errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage, errorType).Inc()
}

// ObserveFetch records a catalog request.
func (m *Metrics) ObserveFetch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchRequests.WithLabelValues(status).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// AddExtracted increments the extracted records counter.
func (m *Metrics) AddExtracted(n int) {
	if m == nil {
		return
	}
	m.RecordsExtracted.Add(float64(n))
}

// AddInserted increments the inserted rows counter.
func (m *Metrics) AddInserted(n int) {
	if m == nil {
		return
	}
	m.RowsInserted.Add(float64(n))
}
