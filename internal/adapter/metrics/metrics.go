package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics holds all Prometheus metrics for the import pipeline.
type PipelineMetrics struct {
	MessagesFetched   prometheus.Counter
	EventsParsed      prometheus.Counter
	EventsInserted    prometheus.Counter
	ItemFailures      prometheus.Counter
	ExtractionRetries prometheus.Counter
	RunsTotal         *prometheus.CounterVec
	RunDuration       prometheus.Histogram
}

// NewPipelineMetrics initializes and registers the Prometheus metrics.
func NewPipelineMetrics() *PipelineMetrics {
	return &PipelineMetrics{
		MessagesFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "messages_fetched_total",
			Help:      "Total number of candidate messages returned by the mail source.",
		}),
		EventsParsed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "events_parsed_total",
			Help:      "Total number of messages that survived normalization into a batch.",
		}),
		EventsInserted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "events_inserted_total",
			Help:      "Total number of rows genuinely created by the idempotent writer.",
		}),
		ItemFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "item_failures_total",
			Help:      "Total number of messages dropped by per-item normalization failures.",
		}),
		ExtractionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "extraction_retries_total",
			Help:      "Total number of extractor retries after retryable failures.",
		}),
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of import runs by status.",
		}, []string{"status"}), // status: ok, store_error
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "events_agent",
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Duration of import runs in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
