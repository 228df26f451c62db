package scoring

import (
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// Classify returns the first band containing score. When no band matches,
// the lowest-severity band is used so a malformed table never fails scoring.
func Classify(bands []scale.Band, score float64) models.Classification {
	for _, b := range bands {
		if score >= b.Min && score <= b.Max {
			return models.Classification{Label: b.Label, Severity: b.Severity}
		}
	}
	if len(bands) == 0 {
		return models.Classification{Label: "unclassified"}
	}
	lowest := bands[0]
	for _, b := range bands[1:] {
		if b.Severity < lowest.Severity {
			lowest = b
		}
	}
	return models.Classification{Label: lowest.Label, Severity: lowest.Severity}
}
