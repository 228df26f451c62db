package scoring

import (
	"fmt"
	"sort"
	"strings"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// Recommendation priorities not taken from the tier table.
const (
	PriorityTargeted = "targeted"
	PriorityBaseline = "baseline"
)

var defaultBaseline = []string{"Review these results with the care team and the family."}

// Interpret builds the narrative and recommendation list for a result whose
// numeric fields, classifications, and validity are already populated. The
// output depends only on the scale tables and those fields.
func Interpret(s *scale.Scale, res *models.ScoreResult) (models.Interpretation, []models.Recommendation) {
	cfg := s.Interpretation
	interp := models.Interpretation{
		Overall:   narrative(cfg, res.Overall),
		Strengths: []string{},
		Concerns:  []string{},
	}

	var concernDomains []scale.Domain
	for _, d := range s.Domains {
		if d.ValidityOnly {
			continue
		}
		score, ok := res.StandardScores[string(d.Code)]
		if !ok {
			continue
		}
		label := res.DomainRisk[string(d.Code)].Label
		entry := fmt.Sprintf("%s: %.0f (%s)", displayName(d), score, label)
		switch {
		case isStrength(s, score):
			interp.Strengths = append(interp.Strengths, entry)
		case isConcern(s, score):
			interp.Concerns = append(interp.Concerns, entry)
			concernDomains = append(concernDomains, d)
		}
	}

	if res.Validity.Verdict != models.VerdictAcceptable {
		interp.ValidityCaveat = caveat(cfg, res.Validity)
	}

	return interp, recommendations(cfg, res.Overall, concernDomains)
}

func isStrength(s *scale.Scale, score float64) bool {
	if s.HigherIsBetter {
		return score >= s.Interpretation.StrengthCutoff
	}
	return score <= s.Interpretation.StrengthCutoff
}

func isConcern(s *scale.Scale, score float64) bool {
	if s.HigherIsBetter {
		return score <= s.Interpretation.ConcernCutoff
	}
	return score >= s.Interpretation.ConcernCutoff
}

func displayName(d scale.Domain) string {
	if d.Name != "" {
		return d.Name
	}
	return string(d.Code)
}

func narrative(cfg scale.InterpretationConfig, overall models.Classification) string {
	if text, ok := cfg.Narratives[overall.Label]; ok {
		return text
	}
	return fmt.Sprintf("Overall classification: %s.", strings.ReplaceAll(overall.Label, "_", " "))
}

func caveat(cfg scale.InterpretationConfig, v models.Validity) string {
	var raised []string
	if v.Defensiveness {
		raised = append(raised, "defensiveness")
	}
	if v.Inconsistency {
		raised = append(raised, "inconsistent responding")
	}
	if v.RandomResponding {
		raised = append(raised, "repetitive or random responding")
	}
	text, ok := cfg.ValidityCaveats[string(v.Verdict)]
	if !ok {
		text = fmt.Sprintf("Validity is %s; interpret with care.", v.Verdict)
	}
	return fmt.Sprintf("%s Indicators raised: %s.", text, strings.Join(raised, ", "))
}

// recommendations orders tiers at or below the overall severity from most to
// least severe, then domain-specific actions, then the baseline set.
func recommendations(cfg scale.InterpretationConfig, overall models.Classification, concerns []scale.Domain) []models.Recommendation {
	tiers := make([]scale.RecommendationTier, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		if t.Severity <= overall.Severity {
			tiers = append(tiers, t)
		}
	}
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Severity > tiers[j].Severity })

	seen := make(map[string]bool)
	out := []models.Recommendation{}
	add := func(priority, text string) {
		if text == "" || seen[text] {
			return
		}
		seen[text] = true
		out = append(out, models.Recommendation{Priority: priority, Text: text})
	}

	for _, t := range tiers {
		for _, text := range t.Items {
			add(t.Priority, text)
		}
	}
	for _, d := range concerns {
		add(PriorityTargeted, d.Recommendation)
	}
	baseline := cfg.Baseline
	if len(baseline) == 0 {
		baseline = defaultBaseline
	}
	for _, text := range baseline {
		add(PriorityBaseline, text)
	}
	return out
}
