package scoring

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/panbanda/rehabscore/internal/batch"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/stats"
)

// BatchReport is the outcome of scoring many instances.
type BatchReport struct {
	Results []*models.ScoreResult `json:"results"`
	Failed  []batch.ItemError     `json:"-"`
	Summary Summary               `json:"summary"`
}

// Summary aggregates the primary composites and verdicts of a batch.
type Summary struct {
	Scored        int                            `json:"scored"`
	Failed        int                            `json:"failed"`
	PrimaryMean   float64                        `json:"primary_mean"`
	PrimaryMedian float64                        `json:"primary_median"`
	Verdicts      map[models.ValidityVerdict]int `json:"verdicts"`
	Overall       map[string]int                 `json:"overall"`
}

// ScoreBatch scores ids concurrently. Every id is attempted; failures are
// returned as *batch.Errors alongside the report of the successes.
func (s *Service) ScoreBatch(ctx context.Context, ids []string, onProgress batch.ProgressFunc) (*BatchReport, error) {
	results, errs := batch.Map(ctx, ids, s.workers, s.Score, onProgress)

	report := &BatchReport{Results: make([]*models.ScoreResult, 0, len(results))}
	for _, r := range results {
		report.Results = append(report.Results, r.Value)
	}
	report.Summary = Summarize(report.Results)
	if errs == nil {
		return report, nil
	}
	report.Failed = errs.Errors
	report.Summary.Failed = len(errs.Errors)
	s.logger.Warn("batch finished with failures", "scored", len(results), "failed", len(errs.Errors))
	return report, errs
}

// ReadyIDs lists the instances waiting to be scored.
func (s *Service) ReadyIDs(ctx context.Context) ([]string, error) {
	insts, err := s.store.ListInstances(ctx, models.StatusReady)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(insts))
	for i, inst := range insts {
		ids[i] = inst.ID
	}
	return ids, nil
}

// Summarize computes batch statistics over results. Results without a
// primary index are counted but excluded from the composite statistics.
func Summarize(results []*models.ScoreResult) Summary {
	sum := Summary{
		Scored:   len(results),
		Verdicts: make(map[models.ValidityVerdict]int),
		Overall:  make(map[string]int),
	}
	var primary []float64
	for _, r := range results {
		sum.Verdicts[r.Validity.Verdict]++
		if r.Overall.Label != "" {
			sum.Overall[r.Overall.Label]++
		}
		if c, ok := r.Composites[r.PrimaryIndex]; ok {
			primary = append(primary, c.Value)
		}
	}
	if len(primary) == 0 {
		return sum
	}
	sort.Float64s(primary)
	sum.PrimaryMean = stats.RoundTo(stat.Mean(primary, nil), 1)
	sum.PrimaryMedian = stats.Percentile(primary, 50)
	return sum
}
