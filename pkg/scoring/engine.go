// Package scoring implements the table-driven psychometric scoring pipeline:
// aggregation, standardization, composites, percentiles, classification,
// validity, and interpretation. Every stage is a pure function of the scale
// definition, the norms, and one instance's responses.
package scoring

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/zeebo/blake3"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/norms"
	"github.com/panbanda/rehabscore/pkg/scale"
	"github.com/panbanda/rehabscore/pkg/stats"
)

// Engine scores assessment instances. It holds only read-only reference data
// and is safe for concurrent use.
type Engine struct {
	scales *scale.Registry
	norms  norms.Repository
	now    func() time.Time
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the time source used for ScoredAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLogger sets the logger that receives norms defects.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an engine over a scale registry and a norms repository.
func New(scales *scale.Registry, repo norms.Repository, opts ...Option) *Engine {
	e := &Engine{
		scales: scales,
		norms:  repo,
		now:    time.Now,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Scales returns the registry the engine scores against.
func (e *Engine) Scales() *scale.Registry {
	return e.scales
}

// Compute runs the full pipeline for one instance. Per-domain problems are
// recorded on the result; an error is returned only for an unknown scale or
// when every clinical domain has insufficient data.
func (e *Engine) Compute(inst models.AssessmentInstance, responses []models.ItemResponse) (*models.ScoreResult, error) {
	s, err := e.scales.Get(inst.ScaleID)
	if err != nil {
		return nil, err
	}
	gender := inst.Gender
	if gender == "" {
		gender = models.GenderCombined
	}
	ageGroup := s.AgeGroup(inst.AgeMonths)

	res := &models.ScoreResult{
		InstanceID:     inst.ID,
		ScaleID:        s.ID,
		ScaleVersion:   s.Version,
		ScaleDigest:    e.scales.DigestOf(s.ID),
		InputDigest:    InputDigest(inst, responses),
		AgeGroup:       ageGroup,
		Gender:         gender,
		RawScores:      make(map[string]models.RawScore, len(s.Domains)),
		StandardScores: make(map[string]float64, len(s.Domains)),
		Composites:     make(map[string]models.CompositeScore, len(s.Composites)),
		Percentiles:    make(map[string]float64, len(s.Domains)+len(s.Composites)),
		DomainRisk:     make(map[string]models.Classification, len(s.Domains)),
		CompositeRisk:  make(map[string]models.Classification, len(s.Composites)),
		NormTiers:      make(map[string]string, len(s.Domains)),
	}

	agg := Aggregate(s, responses)
	res.Warnings = append(res.Warnings, agg.Warnings...)

	standard := make(map[scale.DomainCode]float64, len(s.Domains))
	var insufficient []string
	clinical := 0
	for _, d := range s.Domains {
		raw := agg.Raw[d.Code]
		res.RawScores[string(d.Code)] = raw
		if !d.ValidityOnly {
			clinical++
		}
		if raw.Insufficient {
			if !d.ValidityOnly {
				insufficient = append(insufficient, string(d.Code))
			}
			res.Warnings = append(res.Warnings, fmt.Sprintf("domain %s: insufficient data (%d of %d items answered)", d.Code, raw.Answered, raw.Expected))
			continue
		}

		n := e.norms.Lookup(s, d.Code, ageGroup, gender)
		res.NormTiers[string(d.Code)] = string(n.Tier)
		if n.Defect {
			e.logger.Warn("norms lookup defect",
				"scale", s.ID, "domain", d.Code, "age_group", ageGroup, "gender", gender, "tier", n.Tier)
			res.NormDefects = append(res.NormDefects, string(d.Code))
			res.Warnings = append(res.Warnings, fmt.Sprintf("domain %s: malformed norms replaced with defaults", d.Code))
		}

		score := Standardize(s.Metric, raw.Value, n)
		standard[d.Code] = score
		res.StandardScores[string(d.Code)] = score
		res.Percentiles[string(d.Code)] = stats.PercentileRank(score, s.Metric.Center, s.Metric.ScaleFactor)
		if !d.ValidityOnly {
			res.DomainRisk[string(d.Code)] = Classify(s.DomainBands, score)
		}
	}

	if clinical > 0 && len(insufficient) == clinical {
		return nil, &InsufficientDataError{Scale: s.ID, Domains: insufficient}
	}

	res.Composites = Composites(s, standard)
	for _, c := range s.Composites {
		cs := res.Composites[c.Code]
		res.Percentiles[c.Code] = stats.PercentileRank(cs.Value, s.Metric.Center, s.Metric.ScaleFactor)
		res.CompositeRisk[c.Code] = Classify(s.Classification, cs.Value)
		if cs.LowConfidence {
			res.Warnings = append(res.Warnings, fmt.Sprintf("composite %s: low confidence (%d of %d members valid)", c.Code, cs.ValidMembers, cs.Members))
		}
		if c.Primary {
			res.PrimaryIndex = c.Code
			res.Overall = res.CompositeRisk[c.Code]
		}
	}

	res.Validity = AssessValidity(s, agg, standard)
	res.Interpretation, res.Recommendations = Interpret(s, res)
	res.ScoredAt = e.now().UTC()
	return res, nil
}

type digestInput struct {
	Scale     string                `json:"scale"`
	AgeMonths int                   `json:"age_months"`
	Gender    models.Gender         `json:"gender"`
	Responses []models.ItemResponse `json:"responses"`
}

// InputDigest fingerprints everything the pipeline reads from an instance, so
// two identical administrations share a digest regardless of response order.
func InputDigest(inst models.AssessmentInstance, responses []models.ItemResponse) string {
	sorted := make([]models.ItemResponse, len(responses))
	copy(sorted, responses)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Sequence != sorted[j].Sequence {
			return sorted[i].Sequence < sorted[j].Sequence
		}
		return sorted[i].ItemID < sorted[j].ItemID
	})
	gender := inst.Gender
	if gender == "" {
		gender = models.GenderCombined
	}
	data, _ := json.Marshal(digestInput{
		Scale:     inst.ScaleID,
		AgeMonths: inst.AgeMonths,
		Gender:    gender,
		Responses: sorted,
	})
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
