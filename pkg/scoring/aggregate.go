package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// completionEpsilon absorbs float error when comparing ratios like 4/5 to 0.8.
const completionEpsilon = 1e-9

// Answer is one valid response after de-duplication.
type Answer struct {
	ItemID    int
	Value     int
	Effective int
}

// Aggregation is the output of the response aggregator.
type Aggregation struct {
	Raw      map[scale.DomainCode]models.RawScore
	Warnings []string

	// Sequence holds the valid answers in administration order.
	Sequence []Answer

	answered  *roaring.Bitmap
	effective map[int]int
}

// Answered reports whether an item has a valid answer.
func (a *Aggregation) Answered(item int) bool {
	return item > 0 && a.answered.Contains(uint32(item))
}

// Effective returns the reverse-adjusted value of an answered item.
func (a *Aggregation) Effective(item int) (int, bool) {
	v, ok := a.effective[item]
	return v, ok
}

// Aggregate groups responses by domain and computes raw scores. For each item
// only the latest response by sequence counts. Omitted and out-of-range
// responses do not count as answered. Responses to items the scale does not
// define are reported as warnings.
func Aggregate(s *scale.Scale, responses []models.ItemResponse) *Aggregation {
	ordered := make([]models.ItemResponse, len(responses))
	copy(ordered, responses)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Sequence != ordered[j].Sequence {
			return ordered[i].Sequence < ordered[j].Sequence
		}
		return ordered[i].ItemID < ordered[j].ItemID
	})

	agg := &Aggregation{
		Raw:       make(map[scale.DomainCode]models.RawScore, len(s.Domains)),
		answered:  roaring.New(),
		effective: make(map[int]int),
	}

	latest := make(map[int]int, len(ordered))
	unknown := make(map[int]bool)
	for i, r := range ordered {
		if _, ok := s.Item(r.ItemID); !ok {
			if !unknown[r.ItemID] {
				unknown[r.ItemID] = true
				agg.Warnings = append(agg.Warnings, fmt.Sprintf("response to unknown item %d ignored", r.ItemID))
			}
			continue
		}
		latest[r.ItemID] = i
	}

	for i, r := range ordered {
		if idx, ok := latest[r.ItemID]; !ok || idx != i {
			continue
		}
		it, _ := s.Item(r.ItemID)
		if r.Omitted {
			continue
		}
		if !it.InRange(r.Value) {
			agg.Warnings = append(agg.Warnings,
				fmt.Sprintf("item %d value %d outside [%d, %d] treated as omitted", r.ItemID, r.Value, it.Min, it.Max))
			continue
		}
		eff := it.Effective(r.Value)
		agg.answered.Add(uint32(r.ItemID))
		agg.effective[r.ItemID] = eff
		agg.Sequence = append(agg.Sequence, Answer{ItemID: r.ItemID, Value: r.Value, Effective: eff})
	}

	for _, d := range s.Domains {
		agg.Raw[d.Code] = domainRaw(s, d, agg)
	}
	return agg
}

func domainRaw(s *scale.Scale, d scale.Domain, agg *Aggregation) models.RawScore {
	expected := len(d.Items)
	answered, sum := 0, 0
	for _, id := range d.Items {
		if v, ok := agg.effective[id]; ok {
			answered++
			sum += v
		}
	}
	completion := float64(answered) / float64(expected)
	raw := models.RawScore{
		Answered:   answered,
		Expected:   expected,
		Completion: completion,
	}

	switch {
	case completion+completionEpsilon < s.CompletionThreshold:
		raw.Insufficient = true
	case answered < expected:
		raw.Value = math.Min(float64(sum)/completion, s.MaxRaw(d))
		raw.Extrapolated = true
	default:
		raw.Value = float64(sum)
	}
	return raw
}
