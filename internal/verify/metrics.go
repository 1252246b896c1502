package verify

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// verificationsTotal counts completed runs by outcome status.
	verificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grant_verifier",
		Name:      "verifications_total",
		Help:      "Completed verification runs by status",
	}, []string{"status"})

	verificationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "grant_verifier",
		Name:      "verification_duration_seconds",
		Help:      "Wall time of one verification run",
		Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 90, 120},
	})

	// phaseDuration labels: phase (probing, scoring, cross_referencing, aggregating, persisting)
	phaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grant_verifier",
		Name:      "phase_duration_seconds",
		Help:      "Duration of each verification phase",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 90},
	}, []string{"phase"})

	// phaseFailures labels: phase, class (unreachable, missing_url, transport, timeout, ...)
	phaseFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grant_verifier",
		Name:      "phase_failures_total",
		Help:      "Degraded verification phases by failure class",
	}, []string{"phase", "class"})

	// persistFailures labels: operation (insert_log, update_grant)
	persistFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grant_verifier",
		Name:      "persist_failures_total",
		Help:      "Failed writes of verification results",
	}, []string{"operation"})
)

// RecordCrossrefFailure counts a degraded cross-reference call. It matches
// the crossref failure hook signature.
func RecordCrossrefFailure(class string) {
	phaseFailures.WithLabelValues(string(PhaseCrossReferencing), class).Inc()
}
