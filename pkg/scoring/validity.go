package scoring

import (
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/stats"
)

// AssessValidity evaluates the three response-pattern indicators. It never
// fails and never changes the numeric results it reads.
func AssessValidity(s *scale.Scale, agg *Aggregation, standard map[scale.DomainCode]float64) models.Validity {
	cfg := s.Validity
	var v models.Validity

	if cfg.DefensivenessDomain != "" {
		if score, ok := standard[cfg.DefensivenessDomain]; ok {
			v.DefensivenessScore = score
			v.Defensiveness = score > cfg.DefensivenessThreshold
		}
	}

	v.InconsistentPairs = InconsistentPairs(cfg.Pairs, agg)
	v.Inconsistency = v.InconsistentPairs > cfg.InconsistencyThreshold

	ratio := RepeatRatio(agg.Sequence)
	v.RepeatRatio = stats.RoundTo(ratio, 4)
	v.RandomResponding = ratio > cfg.RepeatThreshold

	v.Verdict = models.VerdictFor(v.Concerns())
	return v
}

// InconsistentPairs counts pairs, both answered, whose effective values differ
// by more than the pair tolerance.
func InconsistentPairs(pairs []scale.ItemPair, agg *Aggregation) int {
	n := 0
	for _, p := range pairs {
		a, okA := agg.Effective(p.A)
		b, okB := agg.Effective(p.B)
		if !okA || !okB {
			continue
		}
		diff := a - b
		if diff < 0 {
			diff = -diff
		}
		if diff > p.Tolerance {
			n++
		}
	}
	return n
}

// RepeatRatio is the share of consecutive answers that repeat the previous
// value, over the whole administration order.
func RepeatRatio(seq []Answer) float64 {
	if len(seq) < 2 {
		return 0
	}
	same := 0
	for i := 1; i < len(seq); i++ {
		if seq[i].Value == seq[i-1].Value {
			same++
		}
	}
	return float64(same) / float64(len(seq)-1)
}
