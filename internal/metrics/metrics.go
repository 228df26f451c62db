// Package metrics exposes Prometheus instruments for the scoring pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks scored results, failures, norms fallbacks, and pipeline latency.
type Metrics struct {
	ResultsScored   *prometheus.CounterVec
	ScoringFailures *prometheus.CounterVec
	NormsTier       *prometheus.CounterVec
	NormsDefects    *prometheus.CounterVec
	ScoreDuration   prometheus.Histogram
}

// New registers all instruments with reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ResultsScored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehabscore_results_scored_total",
			Help: "Total number of score results persisted",
		}, []string{"scale", "verdict"}),
		ScoringFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehabscore_scoring_failures_total",
			Help: "Total number of scoring attempts that failed",
		}, []string{"reason"}),
		NormsTier: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehabscore_norms_lookups_total",
			Help: "Norms lookups by the fallback tier that satisfied them",
		}, []string{"scale", "tier"}),
		NormsDefects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rehabscore_norms_defects_total",
			Help: "Norms strata replaced with defaults because they were malformed",
		}, []string{"scale"}),
		ScoreDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "rehabscore_score_duration_seconds",
			Help:    "Duration of a full score operation including persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementScored records a persisted result.
func (m *Metrics) IncrementScored(scale, verdict string) {
	m.ResultsScored.WithLabelValues(scale, verdict).Inc()
}

// IncrementFailure records a failed score attempt.
func (m *Metrics) IncrementFailure(reason string) {
	m.ScoringFailures.WithLabelValues(reason).Inc()
}

// ObserveNorms records the tier of every domain lookup and the defects of one result.
func (m *Metrics) ObserveNorms(scale string, tiers map[string]string, defects int) {
	for _, tier := range tiers {
		m.NormsTier.WithLabelValues(scale, tier).Inc()
	}
	if defects > 0 {
		m.NormsDefects.WithLabelValues(scale).Add(float64(defects))
	}
}

// ObserveScore records the duration of a score operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveScore(start time.Time) {
	m.ScoreDuration.Observe(time.Since(start).Seconds())
}
