package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Result pipeline metrics
	ResultsSubmitted   *prometheus.CounterVec
	ResultsCorrected   prometheus.Counter
	ResultsVerified    prometheus.Counter
	DeltaCheckFailures prometheus.Counter
	AlertsCreated      prometheus.Counter
	CascadeCompletions *prometheus.CounterVec
	SubmissionLatency  prometheus.Histogram

	// Outbox related metrics
	OutboxEventsProcessed   prometheus.Counter
	OutboxEventsFailed      prometheus.Counter
	OutboxProcessingLatency prometheus.Histogram

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates and registers all application metrics
func New(namespace string) *Metrics {
	return &Metrics{
		ResultsSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_submitted_total",
			Help:      "Total number of lab result submissions by outcome status",
		}, []string{"status"}),
		ResultsCorrected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_corrected_total",
			Help:      "Total number of corrections applied to finalized results",
		}),
		ResultsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_verified_total",
			Help:      "Total number of results verified to final status",
		}),
		DeltaCheckFailures: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delta_check_failures_total",
			Help:      "Total number of delta checks exceeding their threshold",
		}),
		AlertsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "critical_alerts_created_total",
			Help:      "Total number of critical alerts created",
		}),
		CascadeCompletions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_completions_total",
			Help:      "Total number of completion transitions by entity level",
		}, []string{"level"}),
		SubmissionLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "submission_duration_seconds",
			Help:      "Time spent processing a result submission transaction",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		OutboxEventsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_processed_total",
			Help:      "Total number of successfully processed outbox events",
		}),
		OutboxEventsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_events_failed_total",
			Help:      "Total number of failed outbox events",
		}),
		OutboxProcessingLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outbox_processing_duration_seconds",
			Help:      "Time spent processing outbox events",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		DatabaseOperations: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "database_operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}
