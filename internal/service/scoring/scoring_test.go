package scoring

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/rehabscore/internal/metrics"
	"github.com/panbanda/rehabscore/internal/store"
	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/norms"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/scoring"
)

const miniScaleYAML = `
id: mini
name: Mini Scale
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

// Scores to a total of 64 (at_risk) with an acceptable verdict.
var typicalValues = []int{2, 2, 3, 1, 1, 2, 1, 2, 3, 3, 3, 3}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	store   *store.Memory
	svc     *Service
	metrics *metrics.Metrics
	ctx     context.Context
}

func newFixture(t *testing.T, wrap func(*store.Memory) Store) *fixture {
	t.Helper()
	s, err := scale.Parse("mini.yaml", []byte(miniScaleYAML))
	require.NoError(t, err)
	reg, err := scale.NewRegistry(s)
	require.NoError(t, err)
	engine := scoring.New(reg, norms.NewTable(), scoring.WithClock(func() time.Time { return fixedNow }))

	mem := store.NewMemory()
	var st Store = mem
	if wrap != nil {
		st = wrap(mem)
	}
	m := metrics.New(prometheus.NewRegistry())
	return &fixture{
		store:   mem,
		svc:     New(st, engine, WithMetrics(m), WithWorkers(2)),
		metrics: m,
		ctx:     context.Background(),
	}
}

// seed creates an instance, records responses, and leaves it in status.
func (f *fixture) seed(t *testing.T, id string, status models.Status, values ...int) {
	t.Helper()
	require.NoError(t, f.store.CreateInstance(f.ctx, models.AssessmentInstance{
		ID:        id,
		ScaleID:   "mini",
		AgeMonths: 100,
		Gender:    models.GenderFemale,
	}))
	responses := make([]models.ItemResponse, len(values))
	for i, v := range values {
		responses[i] = models.ItemResponse{ItemID: i + 1, Value: v, Sequence: i + 1}
	}
	require.NoError(t, f.store.RecordResponses(f.ctx, id, responses))
	if status != models.StatusDraft {
		require.NoError(t, f.store.UpdateInstanceStatus(f.ctx, id, status))
	}
}

func (f *fixture) status(t *testing.T, id string) models.Status {
	t.Helper()
	inst, err := f.store.LoadInstance(f.ctx, id)
	require.NoError(t, err)
	return inst.Status
}

type failingSave struct {
	*store.Memory
	err error
}

func (f failingSave) SaveScoreResult(context.Context, string, *models.ScoreResult) error {
	return f.err
}

func TestMarkReady(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", models.StatusDraft, typicalValues...)
	f.seed(t, "c1", models.StatusCompleted, typicalValues...)

	require.NoError(t, f.svc.MarkReady(f.ctx, "d1"))
	assert.Equal(t, models.StatusReady, f.status(t, "d1"))

	require.NoError(t, f.svc.MarkReady(f.ctx, "d1"))
	assert.Equal(t, models.StatusReady, f.status(t, "d1"))

	assert.ErrorIs(t, f.svc.MarkReady(f.ctx, "c1"), ErrInvalidTransition)
	assert.ErrorIs(t, f.svc.MarkReady(f.ctx, "missing"), store.ErrNotFound)
}

func TestScore(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r1", models.StatusReady, typicalValues...)

	res, err := f.svc.Score(f.ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, 64.0, res.Composites["total"].Value)
	assert.Equal(t, "at_risk", res.Overall.Label)
	assert.Equal(t, models.StatusCompleted, f.status(t, "r1"))

	stored, err := f.store.LoadScoreResult(f.ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, res.InputDigest, stored.InputDigest)
	assert.Equal(t, res.StandardScores, stored.StandardScores)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ResultsScored.WithLabelValues("mini", "acceptable")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.NormsTier.WithLabelValues("mini", "domain_default")))
}

func TestScore_Draft(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "d1", models.StatusDraft, typicalValues...)

	_, err := f.svc.Score(f.ctx, "d1")
	require.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, models.StatusDraft, f.status(t, "d1"))

	_, err = f.store.LoadScoreResult(f.ctx, "d1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScoringFailures.WithLabelValues("not_ready")))
}

func TestScore_PipelineFailureReturnsToDraft(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r1", models.StatusReady, 1, 1)

	_, err := f.svc.Score(f.ctx, "r1")
	require.ErrorIs(t, err, scoring.ErrInsufficientData)

	var ide *scoring.InsufficientDataError
	require.ErrorAs(t, err, &ide)
	assert.Equal(t, []string{"a", "b", "c"}, ide.Domains)

	assert.Equal(t, models.StatusDraft, f.status(t, "r1"))
	_, err = f.store.LoadScoreResult(f.ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ScoringFailures.WithLabelValues("insufficient_data")))
}

func TestScore_PersistenceFailureKeepsStatus(t *testing.T) {
	boom := errors.New("disk full")
	f := newFixture(t, func(m *store.Memory) Store { return failingSave{Memory: m, err: boom} })
	f.seed(t, "r1", models.StatusReady, typicalValues...)

	_, err := f.svc.Score(f.ctx, "r1")
	require.Error(t, err)

	var perr *store.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, models.StatusReady, f.status(t, "r1"))

	_, err = f.store.LoadScoreResult(f.ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScore_CancelledBeforeWrite(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r1", models.StatusReady, typicalValues...)

	ctx, cancel := context.WithCancel(f.ctx)
	cancel()
	_, err := f.svc.Score(ctx, "r1")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusReady, f.status(t, "r1"))

	_, err = f.store.LoadScoreResult(f.ctx, "r1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScore_RescoreCompleted(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r1", models.StatusReady, typicalValues...)

	first, err := f.svc.Score(f.ctx, "r1")
	require.NoError(t, err)
	second, err := f.svc.Score(f.ctx, "r1")
	require.NoError(t, err)

	assert.Equal(t, first.InputDigest, second.InputDigest)
	assert.Equal(t, first.Composites, second.Composites)
	assert.Equal(t, models.StatusCompleted, f.status(t, "r1"))
}

func TestScoreBatch(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r1", models.StatusReady, typicalValues...)
	f.seed(t, "r2", models.StatusReady, typicalValues...)
	f.seed(t, "r3", models.StatusReady, typicalValues...)
	f.seed(t, "d1", models.StatusDraft, typicalValues...)

	ids, err := f.svc.ReadyIDs(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, ids)

	var progressed atomic.Int32
	report, err := f.svc.ScoreBatch(f.ctx, append(ids, "d1"), func() { progressed.Add(1) })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, int32(4), progressed.Load())

	require.Len(t, report.Failed, 1)
	assert.Equal(t, "d1", report.Failed[0].ID)
	require.Len(t, report.Results, 3)
	assert.Equal(t, "r1", report.Results[0].InstanceID)

	assert.Equal(t, 3, report.Summary.Scored)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 64.0, report.Summary.PrimaryMean)
	assert.Equal(t, 64.0, report.Summary.PrimaryMedian)
	assert.Equal(t, 3, report.Summary.Verdicts[models.VerdictAcceptable])
	assert.Equal(t, 3, report.Summary.Overall["at_risk"])

	for _, id := range []string{"r1", "r2", "r3"} {
		assert.Equal(t, models.StatusCompleted, f.status(t, id))
	}
}

func TestScoreBatch_AllSucceed(t *testing.T) {
	f := newFixture(t, nil)
	f.seed(t, "r1", models.StatusReady, typicalValues...)

	report, err := f.svc.ScoreBatch(f.ctx, []string{"r1"}, nil)
	require.NoError(t, err)
	assert.Empty(t, report.Failed)
	assert.Equal(t, 1, report.Summary.Scored)
}

func TestSummarize(t *testing.T) {
	result := func(v float64, verdict models.ValidityVerdict, label string) *models.ScoreResult {
		return &models.ScoreResult{
			PrimaryIndex: "total",
			Composites:   map[string]models.CompositeScore{"total": {Value: v}},
			Overall:      models.Classification{Label: label},
			Validity:     models.Validity{Verdict: verdict},
		}
	}
	sum := Summarize([]*models.ScoreResult{
		result(70, models.VerdictCaution, "clinically_significant"),
		result(50, models.VerdictAcceptable, "average"),
		result(61, models.VerdictAcceptable, "at_risk"),
		{Validity: models.Validity{Verdict: models.VerdictQuestionable}},
	})

	assert.Equal(t, 4, sum.Scored)
	assert.Equal(t, 60.3, sum.PrimaryMean)
	assert.Equal(t, 61.0, sum.PrimaryMedian)
	assert.Equal(t, map[models.ValidityVerdict]int{
		models.VerdictAcceptable:   2,
		models.VerdictCaution:      1,
		models.VerdictQuestionable: 1,
	}, sum.Verdicts)
	assert.Equal(t, 1, sum.Overall["average"])

	empty := Summarize(nil)
	assert.Zero(t, empty.PrimaryMean)
	assert.Zero(t, empty.Scored)
}
