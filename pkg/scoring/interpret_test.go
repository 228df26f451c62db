package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

func interpScale(higherIsBetter bool) *scale.Scale {
	s := &scale.Scale{
		ID:             "interp",
		Metric:         scale.Metric{Center: 100, ScaleFactor: 15, Min: 40, Max: 160},
		HigherIsBetter: higherIsBetter,
		Domains: []scale.Domain{
			{Code: "reading", Name: "Reading", Recommendation: "Daily guided reading."},
			{Code: "math", Name: "Math", Recommendation: "Concrete math manipulatives."},
			{Code: "memory", Name: "Memory", Recommendation: "Daily guided reading."},
			{Code: "lie", Name: "Lie", ValidityOnly: true},
		},
		Interpretation: scale.InterpretationConfig{
			StrengthCutoff: 110,
			ConcernCutoff:  85,
			Narratives:     map[string]string{"low": "Low overall."},
			ValidityCaveats: map[string]string{
				"caution": "Use caution.",
			},
			Baseline: []string{"Share results.", "Monitor progress."},
			Tiers: []scale.RecommendationTier{
				{Severity: 0, Priority: "routine", Items: []string{"Monitor progress."}},
				{Severity: 1, Priority: "elevated", Items: []string{"Small-group support."}},
				{Severity: 2, Priority: "high", Items: []string{"Individual plan.", "Small-group support."}},
				{Severity: 3, Priority: "urgent", Items: []string{"Full evaluation."}},
			},
		},
	}
	s.Normalize()
	return s
}

func TestInterpret_StrengthsAndConcerns(t *testing.T) {
	s := interpScale(true)
	res := &models.ScoreResult{
		StandardScores: map[string]float64{"reading": 72, "math": 118, "memory": 95, "lie": 40},
		DomainRisk: map[string]models.Classification{
			"reading": {Label: "low", Severity: 2},
			"math":    {Label: "high_average"},
			"memory":  {Label: "average"},
		},
		Overall:  models.Classification{Label: "low", Severity: 2},
		Validity: models.Validity{Verdict: models.VerdictAcceptable},
	}

	interp, _ := Interpret(s, res)
	assert.Equal(t, "Low overall.", interp.Overall)
	assert.Equal(t, []string{"Math: 118 (high_average)"}, interp.Strengths)
	assert.Equal(t, []string{"Reading: 72 (low)"}, interp.Concerns)
	assert.Empty(t, interp.ValidityCaveat)
}

func TestInterpret_DirectionFollowsScale(t *testing.T) {
	s := interpScale(false)
	s.Interpretation.StrengthCutoff = 85
	s.Interpretation.ConcernCutoff = 110
	res := &models.ScoreResult{
		StandardScores: map[string]float64{"reading": 72, "math": 118},
		Overall:        models.Classification{Label: "average"},
		Validity:       models.Validity{Verdict: models.VerdictAcceptable},
	}

	interp, _ := Interpret(s, res)
	assert.Len(t, interp.Strengths, 1)
	assert.Contains(t, interp.Strengths[0], "Reading")
	assert.Len(t, interp.Concerns, 1)
	assert.Contains(t, interp.Concerns[0], "Math")
	assert.Equal(t, "Overall classification: average.", interp.Overall)
}

func TestInterpret_RecommendationOrder(t *testing.T) {
	s := interpScale(true)
	res := &models.ScoreResult{
		StandardScores: map[string]float64{"reading": 70, "memory": 80},
		Overall:        models.Classification{Label: "low", Severity: 2},
		Validity:       models.Validity{Verdict: models.VerdictAcceptable},
	}

	_, recs := Interpret(s, res)
	assert.Equal(t, []models.Recommendation{
		{Priority: "high", Text: "Individual plan."},
		{Priority: "high", Text: "Small-group support."},
		{Priority: "routine", Text: "Monitor progress."},
		{Priority: PriorityTargeted, Text: "Daily guided reading."},
		{Priority: PriorityBaseline, Text: "Share results."},
	}, recs)
}

func TestInterpret_MoreSevereMeansMore(t *testing.T) {
	s := interpScale(true)
	count := func(severity int) int {
		res := &models.ScoreResult{
			Overall:  models.Classification{Severity: severity},
			Validity: models.Validity{Verdict: models.VerdictAcceptable},
		}
		_, recs := Interpret(s, res)
		return len(recs)
	}
	assert.Less(t, count(0), count(1))
	assert.Less(t, count(1), count(3))
	assert.GreaterOrEqual(t, count(0), 2)
}

func TestInterpret_BaselineAlwaysPresent(t *testing.T) {
	s := interpScale(true)
	s.Interpretation.Baseline = nil
	s.Interpretation.Tiers = nil

	_, recs := Interpret(s, &models.ScoreResult{Validity: models.Validity{Verdict: models.VerdictAcceptable}})
	assert.Equal(t, []models.Recommendation{{Priority: PriorityBaseline, Text: defaultBaseline[0]}}, recs)
}

func TestInterpret_ValidityCaveat(t *testing.T) {
	s := interpScale(true)

	interp, _ := Interpret(s, &models.ScoreResult{Validity: models.Validity{
		Verdict:       models.VerdictCaution,
		Defensiveness: true,
	}})
	assert.Equal(t, "Use caution. Indicators raised: defensiveness.", interp.ValidityCaveat)

	interp, _ = Interpret(s, &models.ScoreResult{Validity: models.Validity{
		Verdict:          models.VerdictQuestionable,
		Inconsistency:    true,
		RandomResponding: true,
	}})
	assert.Equal(t, "Validity is questionable; interpret with care. Indicators raised: inconsistent responding, repetitive or random responding.", interp.ValidityCaveat)
}

func TestComposites_WeightsAndInversion(t *testing.T) {
	s := &scale.Scale{
		Metric: scale.Metric{Center: 50, ScaleFactor: 10, Min: 20, Max: 80},
		Composites: []scale.Composite{
			{Code: "weighted", MinMembers: 2, Members: []scale.Member{
				{Domain: "a", Weight: 3},
				{Domain: "b", Weight: 1},
			}},
			{Code: "inverted", MinMembers: 2, Members: []scale.Member{
				{Domain: "a", Weight: 1},
				{Domain: "c", Weight: 1, Invert: true},
			}},
		},
	}
	out := Composites(s, map[scale.DomainCode]float64{"a": 60, "b": 40, "c": 30})

	// (3*60 + 40) / 4
	assert.Equal(t, 55.0, out["weighted"].Value)
	// c reflects to 70; (60 + 70) / 2
	assert.Equal(t, 65.0, out["inverted"].Value)
}

func TestClassify(t *testing.T) {
	bands := []scale.Band{
		{Min: 20, Max: 59, Label: "average", Severity: 0},
		{Min: 60, Max: 69, Label: "at_risk", Severity: 1},
		{Min: 70, Max: 80, Label: "clinically_significant", Severity: 2},
	}
	assert.Equal(t, "average", Classify(bands, 20).Label)
	assert.Equal(t, "average", Classify(bands, 59).Label)
	assert.Equal(t, "at_risk", Classify(bands, 60).Label)
	assert.Equal(t, "clinically_significant", Classify(bands, 80).Label)

	// no band matches: lowest severity wins
	reordered := []scale.Band{bands[2], bands[1], bands[0]}
	assert.Equal(t, models.Classification{Label: "average"}, Classify(reordered, 95))
	assert.Equal(t, "unclassified", Classify(nil, 50).Label)
}
