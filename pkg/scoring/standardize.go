package scoring

import (
	"math"

	"github.com/panbanda/rehabscore/pkg/norms"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/stats"
)

// Standardize converts a raw score to the scale's metric:
// center + ((raw - mean) / sd) * scaleFactor, clamped to [Min, Max] and
// rounded half away from zero. Infinite results land on the nearest bound.
func Standardize(m scale.Metric, raw float64, n norms.Norm) float64 {
	sd := n.SD
	if sd <= 0 || math.IsNaN(sd) || math.IsInf(sd, 0) {
		sd = norms.GlobalDefault(m).SD
	}
	v := m.Center + ((raw-n.Mean)/sd)*m.ScaleFactor
	if math.IsNaN(v) {
		v = m.Center
	}
	return stats.Round(stats.Clamp(v, m.Min, m.Max))
}
