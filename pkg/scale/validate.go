package scale

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// ValidationError lists every problem found in a scale definition.
type ValidationError struct {
	Scale    string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scale %q is invalid: %s", e.Scale, strings.Join(e.Problems, "; "))
}

// ErrInvalidScale is matched by every ValidationError.
var ErrInvalidScale = errors.New("invalid scale definition")

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidScale
}

// Validate checks the structural rules of a scale. Normalize must have run.
func (s *Scale) Validate() error {
	v := &validator{}

	if s.ID == "" {
		v.addf("id is required")
	}
	s.validateMetric(v)
	s.validateResponse(v)
	s.validateAgeBands(v)
	s.validateDomains(v)
	s.validateComposites(v)
	v.bands("domain_bands", s.DomainBands, s.Metric)
	v.bands("classification", s.Classification, s.Metric)
	s.validateValidity(v)
	s.validateNorms(v)

	if len(v.problems) > 0 {
		return &ValidationError{Scale: s.ID, Problems: v.problems}
	}
	return nil
}

type validator struct {
	problems []string
}

func (v *validator) addf(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (s *Scale) validateMetric(v *validator) {
	m := s.Metric
	switch m.Kind {
	case MetricTScore, MetricStandardScore:
	default:
		v.addf("metric.kind %q must be %s or %s", m.Kind, MetricTScore, MetricStandardScore)
	}
	if m.ScaleFactor <= 0 {
		v.addf("metric.scale_factor must be positive")
	}
	if m.Min >= m.Max {
		v.addf("metric.min %.0f must be below metric.max %.0f", m.Min, m.Max)
	}
	if m.Center < m.Min || m.Center > m.Max {
		v.addf("metric.center %.0f lies outside [%.0f, %.0f]", m.Center, m.Min, m.Max)
	}
}

func (s *Scale) validateResponse(v *validator) {
	if s.Response.Min >= s.Response.Max {
		v.addf("response range [%d, %d] is empty", s.Response.Min, s.Response.Max)
	}
	if s.CompletionThreshold <= 0 || s.CompletionThreshold > 1 {
		v.addf("completion_threshold %.2f must be in (0, 1]", s.CompletionThreshold)
	}
}

func (s *Scale) validateAgeBands(v *validator) {
	if len(s.AgeBands) == 0 {
		v.addf("at least one age band is required")
		return
	}
	seen := make(map[string]bool)
	for i, b := range s.AgeBands {
		if b.Label == "" {
			v.addf("age band %d has no label", i)
		}
		if seen[b.Label] {
			v.addf("age band %q is declared twice", b.Label)
		}
		seen[b.Label] = true
		if b.MinMonths > b.MaxMonths {
			v.addf("age band %q is empty (%d > %d)", b.Label, b.MinMonths, b.MaxMonths)
		}
		if i > 0 && b.MinMonths <= s.AgeBands[i-1].MaxMonths {
			v.addf("age band %q overlaps %q", b.Label, s.AgeBands[i-1].Label)
		}
	}
}

func (s *Scale) validateDomains(v *validator) {
	if len(s.Domains) == 0 {
		v.addf("at least one domain is required")
	}
	codes := make(map[DomainCode]bool)
	owner := make(map[int]DomainCode)
	for _, d := range s.Domains {
		if d.Code == "" {
			v.addf("domain with empty code")
			continue
		}
		if codes[d.Code] {
			v.addf("domain %q is declared twice", d.Code)
		}
		codes[d.Code] = true
		if len(d.Items) == 0 {
			v.addf("domain %q has no items", d.Code)
		}
		if d.Response != nil && d.Response.Min >= d.Response.Max {
			v.addf("domain %q response range [%d, %d] is empty", d.Code, d.Response.Min, d.Response.Max)
		}
		members := make(map[int]bool, len(d.Items))
		for _, id := range d.Items {
			if id <= 0 {
				v.addf("domain %q: item id %d must be positive", d.Code, id)
			}
			if prev, ok := owner[id]; ok {
				v.addf("item %d belongs to both %q and %q", id, prev, d.Code)
			}
			owner[id] = d.Code
			members[id] = true
		}
		for _, id := range d.Reverse {
			if !members[id] {
				v.addf("domain %q: reverse item %d is not one of its items", d.Code, id)
			}
		}
		if d.DefaultSD <= 0 || math.IsNaN(d.DefaultSD) {
			v.addf("domain %q: default_sd must be positive", d.Code)
		}
	}
}

func (s *Scale) validateComposites(v *validator) {
	primaries := 0
	seen := make(map[string]bool)
	for _, c := range s.Composites {
		if c.Code == "" {
			v.addf("composite with empty code")
			continue
		}
		if seen[c.Code] {
			v.addf("composite %q is declared twice", c.Code)
		}
		seen[c.Code] = true
		if c.Primary {
			primaries++
		}
		if len(c.Members) == 0 {
			v.addf("composite %q has no members", c.Code)
		}
		if c.MinMembers > len(c.Members) {
			v.addf("composite %q: min_members %d exceeds member count %d", c.Code, c.MinMembers, len(c.Members))
		}
		for _, m := range c.Members {
			d, ok := s.Domain(m.Domain)
			if !ok {
				v.addf("composite %q names unknown domain %q", c.Code, m.Domain)
				continue
			}
			if d.ValidityOnly {
				v.addf("composite %q includes validity-only domain %q", c.Code, m.Domain)
			}
			if m.Weight <= 0 {
				v.addf("composite %q: weight of %q must be positive", c.Code, m.Domain)
			}
		}
	}
	if primaries != 1 {
		v.addf("exactly one primary composite is required, found %d", primaries)
	}
}

// bands checks that a cutoff table tiles [Metric.Min, Metric.Max] in whole
// units with no gaps or overlaps.
func (v *validator) bands(name string, bands []Band, m Metric) {
	if len(bands) == 0 {
		v.addf("%s: table is empty", name)
		return
	}
	sorted := make([]Band, len(bands))
	copy(sorted, bands)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Min < sorted[j].Min })

	if sorted[0].Min != m.Min {
		v.addf("%s: first band starts at %.0f, want %.0f", name, sorted[0].Min, m.Min)
	}
	if last := sorted[len(sorted)-1]; last.Max != m.Max {
		v.addf("%s: last band ends at %.0f, want %.0f", name, last.Max, m.Max)
	}
	for i, b := range sorted {
		if b.Label == "" {
			v.addf("%s: band [%.0f, %.0f] has no label", name, b.Min, b.Max)
		}
		if b.Min > b.Max {
			v.addf("%s: band %q is empty", name, b.Label)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		switch {
		case b.Min <= prev.Max:
			v.addf("%s: band %q overlaps %q", name, b.Label, prev.Label)
		case b.Min > prev.Max+1:
			v.addf("%s: gap between %q and %q", name, prev.Label, b.Label)
		}
	}
}

func (s *Scale) validateValidity(v *validator) {
	vc := s.Validity
	if vc.DefensivenessDomain != "" {
		if _, ok := s.Domain(vc.DefensivenessDomain); !ok {
			v.addf("validity.defensiveness_domain %q is not declared", vc.DefensivenessDomain)
		}
	}
	for _, p := range vc.Pairs {
		if _, ok := s.Item(p.A); !ok {
			v.addf("validity pair (%d, %d): item %d is unknown", p.A, p.B, p.A)
		}
		if _, ok := s.Item(p.B); !ok {
			v.addf("validity pair (%d, %d): item %d is unknown", p.A, p.B, p.B)
		}
		if p.Tolerance < 0 {
			v.addf("validity pair (%d, %d): tolerance must not be negative", p.A, p.B)
		}
	}
	if vc.RepeatThreshold <= 0 || vc.RepeatThreshold > 1 {
		v.addf("validity.repeat_threshold %.2f must be in (0, 1]", vc.RepeatThreshold)
	}
}

func (s *Scale) validateNorms(v *validator) {
	groups := make(map[string]bool, len(s.AgeBands))
	for _, b := range s.AgeBands {
		groups[b.Label] = true
	}
	for _, n := range s.Norms {
		if _, ok := s.Domain(n.Domain); !ok {
			v.addf("norms entry names unknown domain %q", n.Domain)
		}
		if !groups[n.AgeGroup] {
			v.addf("norms entry for %q names unknown age group %q", n.Domain, n.AgeGroup)
		}
	}
}
