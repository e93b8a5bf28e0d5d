// Package metrics provides Prometheus metrics for the credential lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all credential lifecycle metrics.
type Metrics struct {
	IssuedTotal          *prometheus.CounterVec // Issuances by outcome (issued, duplicate, failed, timeout)
	RevokedTotal         *prometheus.CounterVec // Revocations by outcome (revoked, already_revoked, forbidden, failed)
	VerificationsTotal   *prometheus.CounterVec // Verification verdicts by status
	ReconciliationsTotal *prometheus.CounterVec // Lazy reconciliations by kind (recovered, off_platform)

	IssueDurationSeconds  prometheus.Histogram // End-to-end issuance latency including anchoring
	VerifyDurationSeconds prometheus.Histogram // End-to-end verification latency including ledger read
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		IssuedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_credentials_issued_total",
			Help: "Total issuance attempts by outcome",
		}, []string{"outcome"}),

		RevokedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_credentials_revoked_total",
			Help: "Total revocation attempts by outcome",
		}, []string{"outcome"}),

		VerificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_verifications_total",
			Help: "Total verification requests by verdict",
		}, []string{"status"}),

		ReconciliationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "attestor_reconciliations_total",
			Help: "Anchored-but-orphaned records reconciled, by kind",
		}, []string{"kind"}),

		IssueDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_issue_duration_seconds",
			Help:    "Issuance latency including ledger anchoring",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),

		VerifyDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "attestor_verify_duration_seconds",
			Help:    "Verification latency including ledger reads",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}

// RecordIssue records an issuance attempt outcome.
func (m *Metrics) RecordIssue(outcome string) {
	m.IssuedTotal.WithLabelValues(outcome).Inc()
}

// RecordRevoke records a revocation attempt outcome.
func (m *Metrics) RecordRevoke(outcome string) {
	m.RevokedTotal.WithLabelValues(outcome).Inc()
}

// RecordVerification records a verification verdict.
func (m *Metrics) RecordVerification(status string) {
	m.VerificationsTotal.WithLabelValues(status).Inc()
}

// RecordReconciliation records a lazy reconciliation.
func (m *Metrics) RecordReconciliation(kind string) {
	m.ReconciliationsTotal.WithLabelValues(kind).Inc()
}
