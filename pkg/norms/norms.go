// Package norms provides demographic-stratified normative statistics used to
// standardize raw domain scores.
package norms

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

// Tier records which fallback level satisfied a lookup.
type Tier string

const (
	TierExact         Tier = "exact"          // scale, domain, age group and gender
	TierCombined      Tier = "combined"       // same age group, combined gender
	TierDomainDefault Tier = "domain_default" // constants declared on the domain
	TierGlobalDefault Tier = "global_default" // domain unknown to the scale
)

// GlobalDefault is the last-resort norm, used only when a domain carries no
// usable constants. It is centered on the metric, so a raw total maps onto
// the metric unchanged before clamping.
func GlobalDefault(m scale.Metric) Norm {
	n := Norm{Mean: m.Center, SD: m.ScaleFactor, Tier: TierGlobalDefault}
	if !finite(n.Mean) {
		n.Mean = 0
	}
	if !usable(n.SD) {
		n.SD = 1
	}
	return n
}

// Entry is one normative stratum.
type Entry struct {
	Scale    string  `koanf:"scale" json:"scale"`
	Domain   string  `koanf:"domain" json:"domain"`
	AgeGroup string  `koanf:"age_group" json:"age_group"`
	Gender   string  `koanf:"gender" json:"gender"`
	Mean     float64 `koanf:"mean" json:"mean"`
	SD       float64 `koanf:"sd" json:"sd"`
}

// Norm is the result of a lookup. It is always usable: SD is positive and
// both fields are finite.
type Norm struct {
	Mean float64
	SD   float64
	Tier Tier
	// Defect is set when the matched stratum had a non-positive or non-finite
	// SD (or mean) and a default was substituted.
	Defect bool
}

// Repository looks up normative statistics. Implementations never fail.
type Repository interface {
	Lookup(s *scale.Scale, domain scale.DomainCode, ageGroup string, gender models.Gender) Norm
}

type key struct {
	scale, domain, ageGroup string
	gender                  models.Gender
}

func keyOf(e Entry) key {
	return key{
		scale:    e.Scale,
		domain:   e.Domain,
		ageGroup: e.AgeGroup,
		gender:   genderOf(e.Gender),
	}
}

func genderOf(s string) models.Gender {
	if s == "" {
		return models.GenderCombined
	}
	return models.ParseGender(s)
}

// Table is an in-memory Repository. It is read-only after construction and
// safe for concurrent lookups.
type Table struct {
	entries map[key]Entry
}

// NewTable indexes entries. When two entries share a key the later one wins,
// so file or database norms passed after built-in norms override them.
func NewTable(entries ...[]Entry) *Table {
	t := &Table{entries: make(map[key]Entry)}
	for _, batch := range entries {
		for _, e := range batch {
			t.entries[keyOf(e)] = e
		}
	}
	return t
}

// Len returns the number of distinct strata.
func (t *Table) Len() int {
	return len(t.entries)
}

// Entries returns all strata in a stable order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Scale != b.Scale {
			return a.Scale < b.Scale
		}
		if a.Domain != b.Domain {
			return a.Domain < b.Domain
		}
		if a.AgeGroup != b.AgeGroup {
			return a.AgeGroup < b.AgeGroup
		}
		return genderOf(a.Gender) < genderOf(b.Gender)
	})
	return out
}

// Digest fingerprints the strata of one scale. It changes whenever an entry
// that could affect that scale's scores is added, removed, or edited.
func (t *Table) Digest(scaleID string) string {
	h := xxhash.New()
	for _, e := range t.Entries() {
		if e.Scale != scaleID {
			continue
		}
		fmt.Fprintf(h, "%s|%s|%s|%g|%g\n", e.Domain, e.AgeGroup, genderOf(e.Gender), e.Mean, e.SD)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// Lookup resolves (mean, sd) for a domain: exact stratum, then the combined
// gender stratum of the same age group, then the domain's own defaults, then
// the global defaults.
func (t *Table) Lookup(s *scale.Scale, domain scale.DomainCode, ageGroup string, gender models.Gender) Norm {
	d, known := s.Domain(domain)
	global := GlobalDefault(s.Metric)
	fallbackSD := global.SD
	if known && usable(d.DefaultSD) {
		fallbackSD = d.DefaultSD
	}

	k := key{scale: s.ID, domain: string(domain), ageGroup: ageGroup, gender: gender}
	if e, ok := t.entries[k]; ok && gender != models.GenderCombined {
		return repair(e, TierExact, d, known, global.Mean, fallbackSD)
	}
	k.gender = models.GenderCombined
	if e, ok := t.entries[k]; ok {
		tier := TierCombined
		if gender == models.GenderCombined {
			tier = TierExact
		}
		return repair(e, tier, d, known, global.Mean, fallbackSD)
	}

	if known && usable(d.DefaultSD) && finite(d.DefaultMean) {
		return Norm{Mean: d.DefaultMean, SD: d.DefaultSD, Tier: TierDomainDefault}
	}
	global.Defect = known
	return global
}

func repair(e Entry, tier Tier, d scale.Domain, known bool, fallbackMean, fallbackSD float64) Norm {
	n := Norm{Mean: e.Mean, SD: e.SD, Tier: tier}
	if !usable(n.SD) {
		n.SD = fallbackSD
		n.Defect = true
	}
	if !finite(n.Mean) {
		n.Mean = fallbackMean
		if known && finite(d.DefaultMean) {
			n.Mean = d.DefaultMean
		}
		n.Defect = true
	}
	return n
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func usable(sd float64) bool {
	return finite(sd) && sd > 0
}

// FromScales collects the norms shipped inside scale definitions.
func FromScales(scales ...*scale.Scale) []Entry {
	var out []Entry
	for _, s := range scales {
		for _, n := range s.Norms {
			out = append(out, Entry{
				Scale:    s.ID,
				Domain:   string(n.Domain),
				AgeGroup: n.AgeGroup,
				Gender:   string(genderOf(n.Gender)),
				Mean:     n.Mean,
				SD:       n.SD,
			})
		}
	}
	return out
}

type fileDoc struct {
	Scale string  `koanf:"scale"`
	Norms []Entry `koanf:"norms"`
}

// LoadFile reads a norms file: a top-level "norms" list, with an optional
// top-level "scale" applied to entries that leave it empty.
func LoadFile(path string) ([]Entry, error) {
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		parser = toml.Parser()
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, fmt.Errorf("reading norms %s: %w", path, err)
	}
	var doc fileDoc
	if err := k.Unmarshal("", &doc); err != nil {
		return nil, fmt.Errorf("decoding norms %s: %w", path, err)
	}
	for i := range doc.Norms {
		e := &doc.Norms[i]
		if e.Scale == "" {
			e.Scale = doc.Scale
		}
		if e.Scale == "" || e.Domain == "" || e.AgeGroup == "" {
			return nil, fmt.Errorf("norms %s: entry %d needs scale, domain and age_group", path, i)
		}
		e.Gender = string(genderOf(e.Gender))
	}
	return doc.Norms, nil
}
