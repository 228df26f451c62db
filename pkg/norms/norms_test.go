package norms

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panbanda/rehabscore/pkg/models"
	"github.com/panbanda/rehabscore/pkg/scale"
)

func testScale(t *testing.T) *scale.Scale {
	t.Helper()
	s := &scale.Scale{
		ID:       "mini",
		Metric:   scale.Metric{Kind: scale.MetricTScore, Center: 50, ScaleFactor: 10, Min: 20, Max: 80},
		Response: scale.ResponseRange{Min: 0, Max: 3},
		AgeBands: []scale.AgeBand{{Label: "child", MinMonths: 72, MaxMonths: 143}},
		Domains: []scale.Domain{
			{Code: "a", Items: []int{1, 2, 3, 4}, DefaultMean: 6, DefaultSD: 2},
			{Code: "b", Items: []int{5, 6, 7, 8}, DefaultMean: 4, DefaultSD: 2},
		},
	}
	s.Normalize()
	return s
}

func TestLookup_Tiers(t *testing.T) {
	s := testScale(t)
	table := NewTable([]Entry{
		{Scale: "mini", Domain: "a", AgeGroup: "child", Gender: "male", Mean: 7, SD: 2.5},
		{Scale: "mini", Domain: "a", AgeGroup: "child", Gender: "combined", Mean: 6.5, SD: 2.2},
	})

	tests := []struct {
		name   string
		domain scale.DomainCode
		age    string
		gender models.Gender
		want   Norm
	}{
		{"exact gender", "a", "child", models.GenderMale, Norm{Mean: 7, SD: 2.5, Tier: TierExact}},
		{"combined fallback", "a", "child", models.GenderFemale, Norm{Mean: 6.5, SD: 2.2, Tier: TierCombined}},
		{"combined requested", "a", "child", models.GenderCombined, Norm{Mean: 6.5, SD: 2.2, Tier: TierExact}},
		{"domain default", "b", "child", models.GenderMale, Norm{Mean: 4, SD: 2, Tier: TierDomainDefault}},
		{"other age group", "a", "teen", models.GenderMale, Norm{Mean: 6, SD: 2, Tier: TierDomainDefault}},
		{"unknown domain", "zzz", "child", models.GenderMale, Norm{Mean: 50, SD: 10, Tier: TierGlobalDefault}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Lookup(s, tt.domain, tt.age, tt.gender))
		})
	}
}

func TestGlobalDefault_CenterBased(t *testing.T) {
	s := testScale(t)
	n := GlobalDefault(s.Metric)
	assert.Equal(t, Norm{Mean: 50, SD: 10, Tier: TierGlobalDefault}, n)

	// A raw total of 57 on an unknown domain stays 57 on a T metric.
	z := (57 - n.Mean) / n.SD
	assert.InDelta(t, 57.0, s.Metric.Center+z*s.Metric.ScaleFactor, 1e-9)

	broken := GlobalDefault(scale.Metric{Center: math.NaN(), ScaleFactor: 0})
	assert.Equal(t, 0.0, broken.Mean)
	assert.Equal(t, 1.0, broken.SD)
}

func TestLookup_DefectiveSD(t *testing.T) {
	s := testScale(t)
	for _, sd := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		table := NewTable([]Entry{{Scale: "mini", Domain: "a", AgeGroup: "child", Gender: "combined", Mean: 5, SD: sd}})
		n := table.Lookup(s, "a", "child", models.GenderFemale)

		assert.True(t, n.Defect, "sd=%v", sd)
		assert.Equal(t, 2.0, n.SD, "sd=%v", sd)
		assert.Equal(t, 5.0, n.Mean)
		assert.Equal(t, TierCombined, n.Tier)
	}
}

func TestLookup_NeverUnusable(t *testing.T) {
	s := testScale(t)
	table := NewTable([]Entry{{Scale: "mini", Domain: "b", AgeGroup: "child", Mean: math.NaN(), SD: 0}})

	n := table.Lookup(s, "b", "child", models.GenderMale)
	assert.True(t, n.Defect)
	assert.Equal(t, 4.0, n.Mean)
	assert.Greater(t, n.SD, 0.0)
}

func TestNewTable_LaterOverrides(t *testing.T) {
	s := testScale(t)
	builtin := []Entry{{Scale: "mini", Domain: "a", AgeGroup: "child", Mean: 6, SD: 2}}
	local := []Entry{{Scale: "mini", Domain: "a", AgeGroup: "child", Gender: "combined", Mean: 9, SD: 3}}

	table := NewTable(builtin, local)
	assert.Equal(t, 1, table.Len())
	n := table.Lookup(s, "a", "child", models.GenderCombined)
	assert.Equal(t, 9.0, n.Mean)
}

func TestDigest_PerScale(t *testing.T) {
	base := []Entry{
		{Scale: "mini", Domain: "a", AgeGroup: "child", Mean: 6, SD: 2},
		{Scale: "other", Domain: "x", AgeGroup: "teen", Mean: 1, SD: 1},
	}
	table := NewTable(base)
	same := NewTable([]Entry{base[1], base[0]})
	assert.Equal(t, table.Digest("mini"), same.Digest("mini"))

	otherChanged := NewTable(base, []Entry{{Scale: "other", Domain: "x", AgeGroup: "teen", Mean: 2, SD: 1}})
	assert.Equal(t, table.Digest("mini"), otherChanged.Digest("mini"))
	assert.NotEqual(t, table.Digest("other"), otherChanged.Digest("other"))

	miniChanged := NewTable(base, []Entry{{Scale: "mini", Domain: "a", AgeGroup: "child", Mean: 6, SD: 2.5}})
	assert.NotEqual(t, table.Digest("mini"), miniChanged.Digest("mini"))
	assert.Len(t, table.Digest("mini"), 16)
}

func TestFromScales(t *testing.T) {
	s := testScale(t)
	s.Norms = []scale.NormEntry{
		{Domain: "a", AgeGroup: "child", Mean: 6.1, SD: 2.1},
		{Domain: "b", AgeGroup: "child", Gender: "female", Mean: 3.9, SD: 1.9},
	}
	entries := FromScales(s)
	require.Len(t, entries, 2)
	assert.Equal(t, "combined", entries[0].Gender)
	assert.Equal(t, "mini", entries[1].Scale)

	table := NewTable(entries)
	assert.Equal(t, TierExact, table.Lookup(s, "b", "child", models.GenderFemale).Tier)
}

func TestFromScales_Builtin(t *testing.T) {
	scales, err := scale.Builtin()
	require.NoError(t, err)
	table := NewTable(FromScales(scales...))
	assert.Greater(t, table.Len(), 0)

	entries := table.Entries()
	for i := 1; i < len(entries); i++ {
		assert.LessOrEqual(t, entries[i-1].Scale, entries[i].Scale)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "norms.yaml")
	doc := `scale: mini
norms:
  - {domain: a, age_group: child, gender: F, mean: 5.5, sd: 2}
  - {scale: other, domain: x, age_group: adult, mean: 10, sd: 3}
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	entries, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, Entry{Scale: "mini", Domain: "a", AgeGroup: "child", Gender: "female", Mean: 5.5, SD: 2}, entries[0])
	assert.Equal(t, "other", entries[1].Scale)
	assert.Equal(t, "combined", entries[1].Gender)
}

func TestLoadFile_MissingScale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "norms.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"norms":[{"domain":"a","age_group":"child","mean":1,"sd":1}]}`), 0o644))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
