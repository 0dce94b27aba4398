package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// IngestedTotal counts ingested submissions by outcome.
	IngestedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "pipeline",
		Name:      "ingested_total",
		Help:      "Total number of submissions handled by the ingestion pipeline, labeled by result.",
	}, []string{"result"})

	// IngestDurationSeconds is end-to-end ingestion time per submission.
	IngestDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "civicreport",
		Subsystem: "pipeline",
		Name:      "ingest_duration_seconds",
		Help:      "End-to-end time to ingest a submission (validation through persist).",
		// Keep buckets fairly coarse to avoid high-cardinality time series.
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
	}, []string{"result"})

	// ClassifierFailuresTotal counts absorbed classifier failures by operation.
	ClassifierFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "pipeline",
		Name:      "classifier_failures_total",
		Help:      "Total number of classifier calls that failed or timed out and degraded to safe defaults.",
	}, []string{"op"})

	// DuplicateFlaggedTotal counts reports stored with a duplicate back-reference.
	DuplicateFlaggedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "pipeline",
		Name:      "duplicate_flagged_total",
		Help:      "Total number of ingested reports flagged as potential duplicates.",
	})

	// EventsEmittedTotal counts change events produced by diff cycles.
	EventsEmittedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "differ",
		Name:      "events_emitted_total",
		Help:      "Total number of change events produced by snapshot diff cycles, labeled by kind.",
	}, []string{"kind"})

	// NotificationsTotal counts notification deliveries by outcome.
	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "civicreport",
		Subsystem: "dispatch",
		Name:      "notifications_total",
		Help:      "Total number of notification deliveries attempted by the dispatcher, labeled by result.",
	}, []string{"result"})
)

// Register registers pipeline metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			IngestedTotal,
			IngestDurationSeconds,
			ClassifierFailuresTotal,
			DuplicateFlaggedTotal,
			EventsEmittedTotal,
			NotificationsTotal,
		)
	})
}
