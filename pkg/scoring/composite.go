package scoring

import (
	"gonum.org/v1/gonum/stat"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/stats"
)

// Composites computes every composite of the scale from the standard scores of
// sufficient domains. Domains absent from standard are treated as missing and
// excluded from the mean. A composite with fewer valid members than its
// minimum takes the metric center and is flagged low confidence.
func Composites(s *scale.Scale, standard map[scale.DomainCode]float64) map[string]models.CompositeScore {
	out := make(map[string]models.CompositeScore, len(s.Composites))
	for _, c := range s.Composites {
		out[c.Code] = composite(s.Metric, c, standard)
	}
	return out
}

func composite(m scale.Metric, c scale.Composite, standard map[scale.DomainCode]float64) models.CompositeScore {
	values := make([]float64, 0, len(c.Members))
	weights := make([]float64, 0, len(c.Members))
	for _, mem := range c.Members {
		v, ok := standard[mem.Domain]
		if !ok {
			continue
		}
		if mem.Invert {
			v = 2*m.Center - v
		}
		values = append(values, v)
		weights = append(weights, mem.Weight)
	}

	res := models.CompositeScore{
		ValidMembers: len(values),
		Members:      len(c.Members),
	}
	if len(values) == 0 || len(values) < c.MinMembers {
		res.Value = m.Center
		res.LowConfidence = true
		return res
	}
	mean := stat.Mean(values, weights)
	res.Value = stats.Round(stats.Clamp(mean, m.Min, m.Max))
	return res
}
