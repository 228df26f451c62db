package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncrementScored("behavior", "acceptable")
	m.IncrementScored("behavior", "acceptable")
	m.IncrementFailure("insufficient_data")
	m.ObserveNorms("behavior", map[string]string{"a": "exact", "b": "exact", "c": "domain_default"}, 1)
	m.ObserveScore(time.Now())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ResultsScored.WithLabelValues("behavior", "acceptable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScoringFailures.WithLabelValues("insufficient_data")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.NormsTier.WithLabelValues("behavior", "exact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NormsTier.WithLabelValues("behavior", "domain_default")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NormsDefects.WithLabelValues("behavior")))

	n, err := testutil.GatherAndCount(reg, "rehabscore_score_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewRegistersIndependently(t *testing.T) {
	assert.NotPanics(t, func() {
		New(prometheus.NewRegistry())
		New(prometheus.NewRegistry())
	})
}
