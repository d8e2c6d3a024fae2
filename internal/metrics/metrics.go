// Package metrics provides Prometheus instrumentation for datacore.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the Prometheus collectors for service operations.
type Recorder struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	IndexSyncFailures  prometheus.Counter
	ReviewTokensIssued prometheus.Counter
}

// NewRecorder creates the collectors and registers them with reg. Pass
// a fresh registry in tests to avoid duplicate registration.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		OperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "datacore_operations_total",
				Help: "Total number of service operations by outcome",
			},
			[]string{"operation", "status"},
		),
		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "datacore_operation_duration_seconds",
				Help:    "Duration of service operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		IndexSyncFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "datacore_index_sync_failures_total",
				Help: "Committed transactions whose index write failed",
			},
		),
		ReviewTokensIssued: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "datacore_review_tokens_issued_total",
				Help: "Review tokens issued for private datasets",
			},
		),
	}
}

// Observe records one finished operation.
func (r *Recorder) Observe(operation, status string, started time.Time) {
	if r == nil {
		return
	}
	r.OperationsTotal.WithLabelValues(operation, status).Inc()
	r.OperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// IndexSyncFailed records one failed index propagation.
func (r *Recorder) IndexSyncFailed() {
	if r == nil {
		return
	}
	r.IndexSyncFailures.Inc()
}

// TokenIssued records one issued review token.
func (r *Recorder) TokenIssued() {
	if r == nil {
		return
	}
	r.ReviewTokensIssued.Inc()
}
