package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

func TestValidity_VerdictTransitions(t *testing.T) {
	s := parseScale(t, validityScaleYAML)
	e := newEngine(t, s)

	tests := []struct {
		name      string
		values    []int
		defensive bool
		inconsist bool
		random    bool
		verdict   models.ValidityVerdict
	}{
		{
			name:    "no concerns",
			values:  []int{1, 1, 2, 2, 0, 3, 0, 3, 1, 2, 1, 2},
			verdict: models.VerdictAcceptable,
		},
		{
			name:      "defensiveness only",
			values:    []int{1, 1, 2, 2, 0, 3, 0, 2, 3, 3, 3, 3},
			defensive: true,
			verdict:   models.VerdictCaution,
		},
		{
			name:    "random responding only",
			values:  []int{1, 1, 2, 2, 2, 2, 2, 2, 2, 1, 1, 1},
			random:  true,
			verdict: models.VerdictCaution,
		},
		{
			name:      "defensiveness and inconsistency",
			values:    []int{1, 2, 2, 2, 0, 3, 0, 2, 3, 3, 3, 3},
			defensive: true,
			inconsist: true,
			verdict:   models.VerdictQuestionable,
		},
		{
			name:      "all three",
			values:    []int{0, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3, 3},
			defensive: true,
			inconsist: true,
			random:    true,
			verdict:   models.VerdictQuestionable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Compute(instance("vscale"), answers(tt.values...))
			require.NoError(t, err)

			v := res.Validity
			assert.Equal(t, tt.defensive, v.Defensiveness, "defensiveness")
			assert.Equal(t, tt.inconsist, v.Inconsistency, "inconsistency")
			assert.Equal(t, tt.random, v.RandomResponding, "random responding (ratio %.3f)", v.RepeatRatio)
			assert.Equal(t, tt.verdict, v.Verdict)

			if tt.verdict == models.VerdictAcceptable {
				assert.Empty(t, res.Interpretation.ValidityCaveat)
			} else {
				assert.NotEmpty(t, res.Interpretation.ValidityCaveat)
			}
			// validity never suppresses the numbers
			assert.Contains(t, res.StandardScores, "a")
			assert.Contains(t, res.Composites, "total")
		})
	}
}

func TestValidity_LieScaleNotClassified(t *testing.T) {
	s := parseScale(t, validityScaleYAML)
	e := newEngine(t, s)

	res, err := e.Compute(instance("vscale"), answers(1, 1, 2, 2, 0, 3, 0, 2, 3, 3, 3, 3))
	require.NoError(t, err)

	assert.Equal(t, 80.0, res.StandardScores["lie"])
	assert.Equal(t, 80.0, res.Validity.DefensivenessScore)
	assert.NotContains(t, res.DomainRisk, "lie")
}

func TestInconsistentPairs_UsesEffectiveValues(t *testing.T) {
	s := parseScale(t, miniScaleYAML)
	// item 8 is reversed, so a raw 0 on item 8 agrees with a 3 on item 5
	agg := Aggregate(s, []models.ItemResponse{
		{ItemID: 5, Value: 3, Sequence: 1},
		{ItemID: 8, Value: 0, Sequence: 2},
	})
	pairs := []scale.ItemPair{{A: 5, B: 8, Tolerance: 0}}
	assert.Equal(t, 0, InconsistentPairs(pairs, agg))

	agg = Aggregate(s, []models.ItemResponse{
		{ItemID: 5, Value: 3, Sequence: 1},
		{ItemID: 8, Value: 3, Sequence: 2},
	})
	assert.Equal(t, 1, InconsistentPairs(pairs, agg))
}

func TestInconsistentPairs_SkipsUnanswered(t *testing.T) {
	s := parseScale(t, miniScaleYAML)
	agg := Aggregate(s, []models.ItemResponse{{ItemID: 1, Value: 3, Sequence: 1}})
	assert.Equal(t, 0, InconsistentPairs([]scale.ItemPair{{A: 1, B: 2}}, agg))
}

func TestRepeatRatio(t *testing.T) {
	seq := func(values ...int) []Answer {
		out := make([]Answer, len(values))
		for i, v := range values {
			out[i] = Answer{ItemID: i + 1, Value: v}
		}
		return out
	}
	assert.Equal(t, 0.0, RepeatRatio(nil))
	assert.Equal(t, 0.0, RepeatRatio(seq(2)))
	assert.Equal(t, 1.0, RepeatRatio(seq(2, 2, 2)))
	assert.Equal(t, 0.0, RepeatRatio(seq(0, 1, 0, 1)))
	assert.Equal(t, 0.5, RepeatRatio(seq(1, 1, 2)))
}
