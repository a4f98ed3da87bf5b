// Package observability exposes prometheus metrics for the migration
// pipeline. Metrics are optional; structured logs remain the primary
// operator surface.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the pipeline's prometheus collectors. A nil *Metrics is
// valid and turns every recording call into a no-op.
type Metrics struct {
	registry *prometheus.Registry

	recordsMigrated *prometheus.CounterVec
	batchesWritten  *prometheus.CounterVec
	batchFailures   *prometheus.CounterVec
	divergences     *prometheus.CounterVec
	repairs         *prometheus.CounterVec
}

// NewMetrics creates the collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recordsMigrated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migration_records_migrated_total",
			Help: "Records migrated to the target store per table",
		}, []string{"table"}),
		batchesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migration_batches_written_total",
			Help: "Batches successfully written per table",
		}, []string{"table"}),
		batchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "migration_batch_failures_total",
			Help: "Batches that failed after exhausting retries per table",
		}, []string{"table"}),
		divergences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "verification_divergences_total",
			Help: "Divergent records found by verification per table and kind",
		}, []string{"table", "kind"}),
		repairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "repair_records_total",
			Help: "Repair attempts per table, kind and result",
		}, []string{"table", "kind", "result"}),
	}
	m.registry.MustRegister(
		m.recordsMigrated,
		m.batchesWritten,
		m.batchFailures,
		m.divergences,
		m.repairs,
	)
	return m
}

// Registry returns the underlying registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordBatch records a successfully written batch.
func (m *Metrics) RecordBatch(table string, records int) {
	if m == nil {
		return
	}
	m.batchesWritten.WithLabelValues(table).Inc()
	m.recordsMigrated.WithLabelValues(table).Add(float64(records))
}

// RecordBatchFailure records a batch that failed after retries.
func (m *Metrics) RecordBatchFailure(table string) {
	if m == nil {
		return
	}
	m.batchFailures.WithLabelValues(table).Inc()
}

// RecordDivergence records divergent records found by verification.
func (m *Metrics) RecordDivergence(table, kind string, count int) {
	if m == nil || count == 0 {
		return
	}
	m.divergences.WithLabelValues(table, kind).Add(float64(count))
}

// RecordRepairs records repair attempts.
func (m *Metrics) RecordRepairs(table, kind string, repaired, failed int64) {
	if m == nil {
		return
	}
	if repaired > 0 {
		m.repairs.WithLabelValues(table, kind, "repaired").Add(float64(repaired))
	}
	if failed > 0 {
		m.repairs.WithLabelValues(table, kind, "failed").Add(float64(failed))
	}
}
