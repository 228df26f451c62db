package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/norms"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// Three domains of four items each on a 0-3 response range, T-score metric.
const miniScaleYAML = `
id: mini
name: Mini Scale
version: "1"
metric: {kind: t_score, center: 50, scale_factor: 10, min: 20, max: 80}
response: {min: 0, max: 3}
age_bands:
  - {label: child, min_months: 72, max_months: 143}
domains:
  - {code: a, items: [1, 2, 3, 4], default_mean: 6, default_sd: 2}
  - {code: b, items: [5, 6, 7, 8], reverse: [8], default_mean: 4, default_sd: 2}
  - {code: c, items: [9, 10, 11, 12], default_mean: 5, default_sd: 2.5}
composites:
  - code: total
    primary: true
    members: [{domain: a}, {domain: b}, {domain: c}]
domain_bands:
  - {min: 20, max: 59, label: average, severity: 0}
  - {min: 60, max: 69, label: at_risk, severity: 1}
  - {min: 70, max: 80, label: clinically_significant, severity: 2}
classification:
  - {min: 20, max: 59, label: average, severity: 0}
  - {min: 60, max: 69, label: at_risk, severity: 1}
  - {min: 70, max: 80, label: clinically_significant, severity: 2}
validity:
  inconsistency_threshold: 1
  repeat_threshold: 0.5
  pairs:
    - {a: 1, b: 2, tolerance: 1}
`

// Two clinical domains plus a validity-only lie scale. Every pair must match
// exactly, so any disagreement raises the inconsistency indicator.
const validityScaleYAML = `
id: vscale
name: Validity Scale
metric: {kind: t_score, center: 50, scale_factor: 10, min: 20, max: 80}
response: {min: 0, max: 3}
age_bands:
  - {label: child, min_months: 72, max_months: 143}
domains:
  - {code: a, items: [1, 2, 3, 4], default_mean: 6, default_sd: 2}
  - {code: b, items: [5, 6, 7, 8], default_mean: 6, default_sd: 2}
  - {code: lie, items: [9, 10, 11, 12], default_mean: 6, default_sd: 2, validity_only: true}
composites:
  - code: total
    primary: true
    members: [{domain: a}, {domain: b}]
domain_bands:
  - {min: 20, max: 80, label: any, severity: 0}
classification:
  - {min: 20, max: 80, label: any, severity: 0}
validity:
  defensiveness_domain: lie
  defensiveness_threshold: 65
  inconsistency_threshold: 0
  repeat_threshold: 0.5
  pairs:
    - {a: 1, b: 2, tolerance: 0}
    - {a: 3, b: 4, tolerance: 0}
`

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func parseScale(t *testing.T, doc string) *scale.Scale {
	t.Helper()
	s, err := scale.Parse("test.yaml", []byte(doc))
	require.NoError(t, err)
	return s
}

func newEngine(t *testing.T, s *scale.Scale, entries ...norms.Entry) *Engine {
	t.Helper()
	reg, err := scale.NewRegistry(s)
	require.NoError(t, err)
	return New(reg, norms.NewTable(entries), WithClock(func() time.Time { return fixedNow }))
}

func instance(scaleID string) models.AssessmentInstance {
	return models.AssessmentInstance{
		ID:        "inst-1",
		ScaleID:   scaleID,
		AgeMonths: 100,
		Gender:    models.GenderFemale,
		Status:    models.StatusReady,
	}
}

// answers builds responses for items 1..n in order, one value per item.
func answers(values ...int) []models.ItemResponse {
	out := make([]models.ItemResponse, len(values))
	for i, v := range values {
		out[i] = models.ItemResponse{ItemID: i + 1, Value: v, Sequence: i + 1}
	}
	return out
}

func omit(rs []models.ItemResponse, items ...int) []models.ItemResponse {
	drop := make(map[int]bool, len(items))
	for _, id := range items {
		drop[id] = true
	}
	for i := range rs {
		if drop[rs[i].ItemID] {
			rs[i].Omitted = true
		}
	}
	return rs
}
