// Package scale defines the per-scale configuration that drives the scoring
// engine: domains and their items, normalized metric, composites, cutoff tables,
// validity thresholds, interpretation tables, and built-in norms.
//
// A scale is data. Adding a new instrument means writing a definition file,
// not adding code.
package scale

import (
	"fmt"
	"sort"
)

// MetricKind names the normalized score family of a scale.
type MetricKind string

const (
	MetricTScore        MetricKind = "t_score"
	MetricStandardScore MetricKind = "standard_score"
)

// DomainCode identifies a sub-scale within one scale.
type DomainCode string

// Defaults applied by Normalize when a definition leaves them unset.
const (
	DefaultCompletionThreshold = 0.80
	DefaultRepeatThreshold     = 0.20
	DefaultMinMembers          = 2
)

// Metric is the normalized score space of a scale.
type Metric struct {
	Kind        MetricKind `koanf:"kind" json:"kind" yaml:"kind"`
	Center      float64    `koanf:"center" json:"center" yaml:"center"`
	ScaleFactor float64    `koanf:"scale_factor" json:"scale_factor" yaml:"scale_factor"`
	Min         float64    `koanf:"min" json:"min" yaml:"min"`
	Max         float64    `koanf:"max" json:"max" yaml:"max"`
}

// ResponseRange is the inclusive range of a valid item response.
type ResponseRange struct {
	Min int `koanf:"min" json:"min" yaml:"min"`
	Max int `koanf:"max" json:"max" yaml:"max"`
}

// AgeBand is a closed interval of ages in months sharing one norms group.
type AgeBand struct {
	Label     string `koanf:"label" json:"label" yaml:"label"`
	MinMonths int    `koanf:"min_months" json:"min_months" yaml:"min_months"`
	MaxMonths int    `koanf:"max_months" json:"max_months" yaml:"max_months"`
}

// Domain is a named sub-scale.
type Domain struct {
	Code        DomainCode     `koanf:"code" json:"code" yaml:"code"`
	Name        string         `koanf:"name" json:"name" yaml:"name"`
	Items       []int          `koanf:"items" json:"items" yaml:"items"`
	Reverse     []int          `koanf:"reverse" json:"reverse,omitempty" yaml:"reverse,omitempty"`
	Response    *ResponseRange `koanf:"response" json:"response,omitempty" yaml:"response,omitempty"`
	DefaultMean float64        `koanf:"default_mean" json:"default_mean" yaml:"default_mean"`
	DefaultSD   float64        `koanf:"default_sd" json:"default_sd" yaml:"default_sd"`
	// ValidityOnly domains are standardized for the validity assessor but never
	// classified, interpreted, or aggregated.
	ValidityOnly   bool   `koanf:"validity_only" json:"validity_only,omitempty" yaml:"validity_only,omitempty"`
	Recommendation string `koanf:"recommendation" json:"recommendation,omitempty" yaml:"recommendation,omitempty"`
}

// Member is one domain's participation in a composite.
type Member struct {
	Domain DomainCode `koanf:"domain" json:"domain" yaml:"domain"`
	Weight float64    `koanf:"weight" json:"weight" yaml:"weight"`
	// Invert reflects the member around the metric center before averaging,
	// for domains whose direction is opposite to the composite's.
	Invert bool `koanf:"invert" json:"invert,omitempty" yaml:"invert,omitempty"`
}

// Composite is a higher-order index over several domains.
type Composite struct {
	Code       string   `koanf:"code" json:"code" yaml:"code"`
	Name       string   `koanf:"name" json:"name" yaml:"name"`
	Members    []Member `koanf:"members" json:"members" yaml:"members"`
	MinMembers int      `koanf:"min_members" json:"min_members" yaml:"min_members"`
	Primary    bool     `koanf:"primary" json:"primary,omitempty" yaml:"primary,omitempty"`
}

// Band is one row of a cutoff table. Min and Max are inclusive.
type Band struct {
	Min      float64 `koanf:"min" json:"min" yaml:"min"`
	Max      float64 `koanf:"max" json:"max" yaml:"max"`
	Label    string  `koanf:"label" json:"label" yaml:"label"`
	Severity int     `koanf:"severity" json:"severity" yaml:"severity"`
}

// ItemPair names two semantically similar items for the inconsistency check.
type ItemPair struct {
	A         int `koanf:"a" json:"a" yaml:"a"`
	B         int `koanf:"b" json:"b" yaml:"b"`
	Tolerance int `koanf:"tolerance" json:"tolerance" yaml:"tolerance"`
}

// ValidityConfig holds the thresholds of the three response-pattern indicators.
type ValidityConfig struct {
	DefensivenessDomain    DomainCode `koanf:"defensiveness_domain" json:"defensiveness_domain,omitempty" yaml:"defensiveness_domain,omitempty"`
	DefensivenessThreshold float64    `koanf:"defensiveness_threshold" json:"defensiveness_threshold,omitempty" yaml:"defensiveness_threshold,omitempty"`
	Pairs                  []ItemPair `koanf:"pairs" json:"pairs,omitempty" yaml:"pairs,omitempty"`
	InconsistencyThreshold int        `koanf:"inconsistency_threshold" json:"inconsistency_threshold" yaml:"inconsistency_threshold"`
	RepeatThreshold        float64    `koanf:"repeat_threshold" json:"repeat_threshold" yaml:"repeat_threshold"`
}

// RecommendationTier is the set of recommendations unlocked at a severity.
type RecommendationTier struct {
	Severity int      `koanf:"severity" json:"severity" yaml:"severity"`
	Priority string   `koanf:"priority" json:"priority" yaml:"priority"`
	Items    []string `koanf:"items" json:"items" yaml:"items"`
}

// InterpretationConfig holds the lookup tables of the narrative generator.
type InterpretationConfig struct {
	StrengthCutoff  float64              `koanf:"strength_cutoff" json:"strength_cutoff" yaml:"strength_cutoff"`
	ConcernCutoff   float64              `koanf:"concern_cutoff" json:"concern_cutoff" yaml:"concern_cutoff"`
	Narratives      map[string]string    `koanf:"narratives" json:"narratives" yaml:"narratives"`
	ValidityCaveats map[string]string    `koanf:"validity_caveats" json:"validity_caveats" yaml:"validity_caveats"`
	Baseline        []string             `koanf:"baseline" json:"baseline" yaml:"baseline"`
	Tiers           []RecommendationTier `koanf:"tiers" json:"tiers" yaml:"tiers"`
}

// NormEntry is one stratum of the normative sample shipped with a scale.
type NormEntry struct {
	Domain   DomainCode `koanf:"domain" json:"domain" yaml:"domain"`
	AgeGroup string     `koanf:"age_group" json:"age_group" yaml:"age_group"`
	Gender   string     `koanf:"gender" json:"gender" yaml:"gender"`
	Mean     float64    `koanf:"mean" json:"mean" yaml:"mean"`
	SD       float64    `koanf:"sd" json:"sd" yaml:"sd"`
}

// Scale is a complete instrument definition.
type Scale struct {
	ID                  string               `koanf:"id" json:"id" yaml:"id"`
	Name                string               `koanf:"name" json:"name" yaml:"name"`
	Version             string               `koanf:"version" json:"version" yaml:"version"`
	Metric              Metric               `koanf:"metric" json:"metric" yaml:"metric"`
	HigherIsBetter      bool                 `koanf:"higher_is_better" json:"higher_is_better" yaml:"higher_is_better"`
	Response            ResponseRange        `koanf:"response" json:"response" yaml:"response"`
	CompletionThreshold float64              `koanf:"completion_threshold" json:"completion_threshold" yaml:"completion_threshold"`
	AgeBands            []AgeBand            `koanf:"age_bands" json:"age_bands" yaml:"age_bands"`
	Domains             []Domain             `koanf:"domains" json:"domains" yaml:"domains"`
	Composites          []Composite          `koanf:"composites" json:"composites" yaml:"composites"`
	DomainBands         []Band               `koanf:"domain_bands" json:"domain_bands" yaml:"domain_bands"`
	Classification      []Band               `koanf:"classification" json:"classification" yaml:"classification"`
	Validity            ValidityConfig       `koanf:"validity" json:"validity" yaml:"validity"`
	Interpretation      InterpretationConfig `koanf:"interpretation" json:"interpretation" yaml:"interpretation"`
	Norms               []NormEntry          `koanf:"norms" json:"norms,omitempty" yaml:"norms,omitempty"`

	items     map[int]Item
	domainIdx map[DomainCode]int
}

// Item is a single scored question, resolved from the domain definitions.
type Item struct {
	ID      int
	Domain  DomainCode
	Reverse bool
	Min     int
	Max     int
}

// ReverseValue inverts a response within the item's range. Applying it twice
// returns the original value.
func (it Item) ReverseValue(v int) int {
	return it.Min + it.Max - v
}

// Effective returns the value that contributes to the raw score.
func (it Item) Effective(v int) int {
	if it.Reverse {
		return it.ReverseValue(v)
	}
	return v
}

// InRange reports whether v is a legal response for the item.
func (it Item) InRange(v int) bool {
	return v >= it.Min && v <= it.Max
}

// Normalize fills defaults and builds the item and domain indexes. It is
// idempotent and must run before Validate or any lookup method.
func (s *Scale) Normalize() {
	if s.CompletionThreshold <= 0 {
		s.CompletionThreshold = DefaultCompletionThreshold
	}
	if s.Validity.RepeatThreshold <= 0 {
		s.Validity.RepeatThreshold = DefaultRepeatThreshold
	}
	for i := range s.Composites {
		c := &s.Composites[i]
		// Only the default is capped; an explicit value above the member
		// count is rejected by Validate.
		if c.MinMembers <= 0 {
			c.MinMembers = min(DefaultMinMembers, len(c.Members))
		}
		for j := range c.Members {
			if c.Members[j].Weight == 0 {
				c.Members[j].Weight = 1
			}
		}
	}
	for i := range s.Domains {
		d := &s.Domains[i]
		if d.DefaultSD <= 0 {
			d.DefaultSD = s.defaultRawSD(*d)
		}
		if d.DefaultMean == 0 {
			d.DefaultMean = s.midpoint(*d)
		}
	}
	if s.Interpretation.StrengthCutoff == 0 && s.Interpretation.ConcernCutoff == 0 {
		hi, lo := s.Metric.Center+s.Metric.ScaleFactor, s.Metric.Center-s.Metric.ScaleFactor
		if s.HigherIsBetter {
			s.Interpretation.StrengthCutoff, s.Interpretation.ConcernCutoff = hi, lo
		} else {
			s.Interpretation.StrengthCutoff, s.Interpretation.ConcernCutoff = lo, hi
		}
	}
	sort.SliceStable(s.AgeBands, func(i, j int) bool {
		return s.AgeBands[i].MinMonths < s.AgeBands[j].MinMonths
	})
	s.index()
}

func (s *Scale) index() {
	s.items = make(map[int]Item)
	s.domainIdx = make(map[DomainCode]int, len(s.Domains))
	for i, d := range s.Domains {
		s.domainIdx[d.Code] = i
		rng := s.Response
		if d.Response != nil {
			rng = *d.Response
		}
		rev := make(map[int]bool, len(d.Reverse))
		for _, id := range d.Reverse {
			rev[id] = true
		}
		for _, id := range d.Items {
			s.items[id] = Item{ID: id, Domain: d.Code, Reverse: rev[id], Min: rng.Min, Max: rng.Max}
		}
	}
}

// Item returns the item with the given id.
func (s *Scale) Item(id int) (Item, bool) {
	it, ok := s.items[id]
	return it, ok
}

// Domain returns the domain with the given code.
func (s *Scale) Domain(code DomainCode) (Domain, bool) {
	i, ok := s.domainIdx[code]
	if !ok {
		return Domain{}, false
	}
	return s.Domains[i], true
}

// DomainRange returns the response range that applies to a domain.
func (s *Scale) DomainRange(d Domain) ResponseRange {
	if d.Response != nil {
		return *d.Response
	}
	return s.Response
}

// MaxRaw is the theoretical maximum raw score of a domain.
func (s *Scale) MaxRaw(d Domain) float64 {
	return float64(len(d.Items) * s.DomainRange(d).Max)
}

// MinRaw is the theoretical minimum raw score of a domain.
func (s *Scale) MinRaw(d Domain) float64 {
	return float64(len(d.Items) * s.DomainRange(d).Min)
}

func (s *Scale) midpoint(d Domain) float64 {
	return (s.MinRaw(d) + s.MaxRaw(d)) / 2
}

// defaultRawSD approximates the spread of a domain total when no norms exist:
// one sixth of the theoretical raw range, never below 1.
func (s *Scale) defaultRawSD(d Domain) float64 {
	sd := (s.MaxRaw(d) - s.MinRaw(d)) / 6
	if sd < 1 {
		return 1
	}
	return sd
}

// PrimaryComposite returns the composite that drives the overall classification.
func (s *Scale) PrimaryComposite() (Composite, bool) {
	for _, c := range s.Composites {
		if c.Primary {
			return c, true
		}
	}
	return Composite{}, false
}

// AgeGroup maps an age in months to its band label. Ages outside the covered
// range clamp to the nearest band.
func (s *Scale) AgeGroup(months int) string {
	if len(s.AgeBands) == 0 {
		return ""
	}
	first, last := s.AgeBands[0], s.AgeBands[len(s.AgeBands)-1]
	if months < first.MinMonths {
		return first.Label
	}
	if months > last.MaxMonths {
		return last.Label
	}
	best, bestDist := first.Label, -1
	for _, b := range s.AgeBands {
		if months >= b.MinMonths && months <= b.MaxMonths {
			return b.Label
		}
		// Between two bands: snap to whichever edge is closer.
		dist := b.MinMonths - months
		if dist < 0 {
			dist = months - b.MaxMonths
		}
		if bestDist < 0 || dist < bestDist {
			best, bestDist = b.Label, dist
		}
	}
	return best
}

// ItemCount returns the number of scored items across all domains.
func (s *Scale) ItemCount() int {
	return len(s.items)
}

func (s *Scale) String() string {
	return fmt.Sprintf("%s (%s v%s)", s.Name, s.ID, s.Version)
}
