package models

import (
	"sort"
	"time"
)

// ValidityVerdict summarizes how many response-pattern concerns were raised.
type ValidityVerdict string

const (
	VerdictAcceptable   ValidityVerdict = "acceptable"
	VerdictCaution      ValidityVerdict = "caution"
	VerdictQuestionable ValidityVerdict = "questionable"
)

// VerdictFor maps a concern count to a verdict.
func VerdictFor(concerns int) ValidityVerdict {
	switch {
	case concerns <= 0:
		return VerdictAcceptable
	case concerns == 1:
		return VerdictCaution
	default:
		return VerdictQuestionable
	}
}

// RawScore is the aggregated raw score for one domain.
type RawScore struct {
	Value        float64 `json:"value"`
	Answered     int     `json:"answered"`
	Expected     int     `json:"expected"`
	Completion   float64 `json:"completion"`
	Extrapolated bool    `json:"extrapolated,omitempty"`
	Insufficient bool    `json:"insufficient_data,omitempty"`
}

// CompositeScore is an aggregate of domain standard scores.
type CompositeScore struct {
	Value         float64 `json:"value"`
	ValidMembers  int     `json:"valid_members"`
	Members       int     `json:"members"`
	LowConfidence bool    `json:"low_confidence,omitempty"`
}

// Classification is a labelled risk or severity tier.
type Classification struct {
	Label    string `json:"label"`
	Severity int    `json:"severity"`
}

// Validity holds the three response-pattern indicators and the verdict derived from them.
type Validity struct {
	Verdict            ValidityVerdict `json:"verdict"`
	Defensiveness      bool            `json:"defensiveness"`
	Inconsistency      bool            `json:"inconsistency"`
	RandomResponding   bool            `json:"random_responding"`
	DefensivenessScore float64         `json:"defensiveness_score,omitempty"`
	InconsistentPairs  int             `json:"inconsistent_pairs"`
	RepeatRatio        float64         `json:"repeat_ratio"`
}

// Concerns returns the number of indicators raised.
func (v Validity) Concerns() int {
	n := 0
	for _, c := range []bool{v.Defensiveness, v.Inconsistency, v.RandomResponding} {
		if c {
			n++
		}
	}
	return n
}

// Interpretation is the generated narrative for a result.
type Interpretation struct {
	Overall        string   `json:"overall"`
	Strengths      []string `json:"strengths"`
	Concerns       []string `json:"concerns"`
	ValidityCaveat string   `json:"validity_caveat,omitempty"`
}

// Recommendation is one prioritized follow-up action.
type Recommendation struct {
	Priority string `json:"priority"`
	Text     string `json:"text"`
}

// ScoreResult is the single output record of the scoring pipeline. There is at
// most one per assessment instance; re-scoring replaces it.
type ScoreResult struct {
	InstanceID      string                    `json:"instance_id"`
	ScaleID         string                    `json:"scale_id"`
	ScaleVersion    string                    `json:"scale_version,omitempty"`
	ScaleDigest     string                    `json:"scale_digest"`
	InputDigest     string                    `json:"input_digest"`
	AgeGroup        string                    `json:"age_group"`
	Gender          Gender                    `json:"gender"`
	RawScores       map[string]RawScore       `json:"raw_scores"`
	StandardScores  map[string]float64        `json:"standard_scores"`
	Composites      map[string]CompositeScore `json:"composites"`
	Percentiles     map[string]float64        `json:"percentiles"`
	DomainRisk      map[string]Classification `json:"domain_risk"`
	CompositeRisk   map[string]Classification `json:"composite_risk"`
	PrimaryIndex    string                    `json:"primary_index"`
	Overall         Classification            `json:"overall"`
	Validity        Validity                  `json:"validity"`
	Interpretation  Interpretation            `json:"interpretation"`
	Recommendations []Recommendation          `json:"recommendations"`
	NormTiers       map[string]string         `json:"norm_tiers"`
	NormDefects     []string                  `json:"norm_defects,omitempty"`
	Warnings        []string                  `json:"warnings,omitempty"`
	ScoredAt        time.Time                 `json:"scored_at"`
}

// InsufficientDomains lists domains flagged insufficient_data, in key order.
func (r *ScoreResult) InsufficientDomains() []string {
	var out []string
	for code, raw := range r.RawScores {
		if raw.Insufficient {
			out = append(out, code)
		}
	}
	sort.Strings(out)
	return out
}
