package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// CasesProcessedTotal counts analyze submissions by outcome.
	CasesProcessedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaproof",
		Subsystem: "pipeline",
		Name:      "cases_processed_total",
		Help:      "Total number of analyze submissions processed, labeled by outcome.",
	}, []string{"outcome"})

	// DetectionDurationSeconds is time spent in the detection adapter.
	DetectionDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "mediaproof",
		Subsystem: "pipeline",
		Name:      "detection_duration_seconds",
		Help:      "Time spent classifying media, labeled by media type.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 60, 120},
	}, []string{"media_type"})

	// AnchorAttemptsTotal counts ledger anchoring attempts by result.
	AnchorAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaproof",
		Subsystem: "ledger",
		Name:      "anchor_attempts_total",
		Help:      "Total number of evidence anchoring attempts, labeled by result.",
	}, []string{"result"})

	// AnchorDurationSeconds is end-to-end anchoring time including the
	// wait for the transaction to mine.
	AnchorDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "mediaproof",
		Subsystem: "ledger",
		Name:      "anchor_duration_seconds",
		Help:      "End-to-end time of one anchoring attempt.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 90, 120},
	})

	// ReportsCompiledTotal counts report compilations by result.
	ReportsCompiledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "mediaproof",
		Subsystem: "report",
		Name:      "compiled_total",
		Help:      "Total number of report compilations, labeled by result.",
	}, []string{"result"})
)

// Outcome label values for CasesProcessedTotal.
const (
	OutcomeNew        = "new"
	OutcomeDuplicate  = "duplicate"
	OutcomeValidation = "validation_error"
	OutcomeDetection  = "detection_error"
	OutcomeStorage    = "storage_error"
)

// Register registers pipeline metrics with the default Prometheus
// registry. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			CasesProcessedTotal,
			DetectionDurationSeconds,
			AnchorAttemptsTotal,
			AnchorDurationSeconds,
			ReportsCompiledTotal,
		)
	})
}
