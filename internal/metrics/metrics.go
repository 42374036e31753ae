package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/SAP-F-2025/property-import-service/internal/models"
)

const namespace = "property_import"

type metrics struct {
	jobsFinished     *prometheus.CounterVec
	rowsValidated    *prometheus.CounterVec
	validationIssues *prometheus.CounterVec
	rowsCommitted    *prometheus.CounterVec

	validationDuration *prometheus.HistogramVec
	commitDuration     *prometheus.HistogramVec

	jobsInFlight *prometheus.GaugeVec
}

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		jobsFinished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_finished_total",
			Help:      "Import jobs that reached a terminal or validated status.",
		}, []string{"import_type", "status"}),
		rowsValidated: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_validated_total",
			Help:      "Spreadsheet rows staged by the validation pipeline.",
		}, []string{"entity"}),
		validationIssues: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_issues_total",
			Help:      "Validation issues raised, by entity and severity.",
		}, []string{"entity", "severity"}),
		rowsCommitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_committed_total",
			Help:      "Rows handled by the commit engine, by entity and result.",
		}, []string{"entity", "result"}),
		validationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent parsing and validating one upload.",
			Buckets:   durationBuckets,
		}, []string{"import_type", "result"}),
		commitDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_duration_seconds",
			Help:      "Time spent committing one confirmed import.",
			Buckets:   durationBuckets,
		}, []string{"import_type", "result"}),
		jobsInFlight: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_in_flight",
			Help:      "Jobs currently being validated or committed.",
		}, []string{"phase"}),
	}
})

func getMetrics() *metrics {
	return metricsSingleton()
}

func JobFinished(importType models.ImportType, status models.ImportJobStatus) {
	getMetrics().jobsFinished.WithLabelValues(string(importType), string(status)).Inc()
}

// ValidationObserved records one finished validation run.
func ValidationObserved(importType models.ImportType, result *models.ValidationResult, elapsed time.Duration, failed bool) {
	m := getMetrics()
	outcome := "ok"
	if failed {
		outcome = "failed"
	}
	m.validationDuration.WithLabelValues(string(importType), outcome).Observe(elapsed.Seconds())
	if result == nil {
		return
	}
	for entity, ev := range result.Entities {
		m.rowsValidated.WithLabelValues(entity).Add(float64(ev.RowCount))
		m.validationIssues.WithLabelValues(entity, "error").Add(float64(ev.ErrorCount))
		m.validationIssues.WithLabelValues(entity, "warning").Add(float64(ev.WarningCount))
	}
}

// CommitObserved records one finished commit run.
func CommitObserved(importType models.ImportType, summary *models.ImportSummary, elapsed time.Duration) {
	m := getMetrics()
	outcome := "ok"
	if summary.FailedEntity != "" {
		outcome = "failed"
	}
	m.commitDuration.WithLabelValues(string(importType), outcome).Observe(elapsed.Seconds())
	for _, e := range summary.Entities {
		m.rowsCommitted.WithLabelValues(string(e.Entity), "created").Add(float64(e.Created))
		m.rowsCommitted.WithLabelValues(string(e.Entity), "skipped").Add(float64(e.Skipped))
		m.rowsCommitted.WithLabelValues(string(e.Entity), "failed").Add(float64(e.Failed))
	}
}

// TrackPhase increments the in-flight gauge and returns the matching decrement.
func TrackPhase(phase string) func() {
	g := getMetrics().jobsInFlight.WithLabelValues(phase)
	g.Inc()
	return g.Dec
}
