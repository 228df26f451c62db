package stats

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{40, 45, 50, 55, 60, 65, 70, 75, 80, 85}
	assert.Equal(t, 0.0, Percentile(nil, 50))
	assert.Equal(t, 65.0, Percentile(sorted, 50))
	assert.Equal(t, 40.0, Percentile(sorted, 0))
	assert.Equal(t, 85.0, Percentile(sorted, 100))
}

func TestNormalCDF_MatchesErf(t *testing.T) {
	for z := -4.0; z <= 4.0; z += 0.25 {
		want := 0.5 * (1 + math.Erf(z/math.Sqrt2))
		assert.InDelta(t, want, NormalCDF(z), 1e-12, "z=%v", z)
	}
}

func TestPercentileRank(t *testing.T) {
	tests := []struct {
		name   string
		score  float64
		center float64
		factor float64
		want   float64
	}{
		{"t-score mean", 50, 50, 10, 50.0},
		{"t-score +1sd", 60, 50, 10, 84.1},
		{"t-score +1.4sd", 64, 50, 10, 91.9},
		{"t-score -2sd", 30, 50, 10, 2.3},
		{"standard score mean", 100, 100, 15, 50.0},
		{"standard score -1sd", 85, 100, 15, 15.9},
		{"standard score +2sd", 130, 100, 15, 97.7},
		{"zero factor", 70, 50, 0, 50},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PercentileRank(tt.score, tt.center, tt.factor))
		})
	}
}

func TestPercentileRank_Monotonic(t *testing.T) {
	prev := -1.0
	for score := 20.0; score <= 80; score++ {
		p := PercentileRank(score, 50, 10)
		if p < prev {
			t.Fatalf("percentile decreased at score %v: %v < %v", score, p, prev)
		}
		prev = p
	}
	prev = -1.0
	for score := 40.0; score <= 160; score++ {
		p := PercentileRank(score, 100, 15)
		if p < prev {
			t.Fatalf("percentile decreased at score %v: %v < %v", score, p, prev)
		}
		prev = p
	}
}

func TestRound_HalfAwayFromZero(t *testing.T) {
	assert.Equal(t, 3.0, Round(2.5))
	assert.Equal(t, -3.0, Round(-2.5))
	assert.Equal(t, 2.0, Round(2.49))
	assert.Equal(t, 84.1, RoundTo(84.13447, 1))
	assert.Equal(t, 0.3, RoundTo(0.25, 1))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 20.0, Clamp(-1e9, 20, 80))
	assert.Equal(t, 80.0, Clamp(1e9, 20, 80))
	assert.Equal(t, 80.0, Clamp(math.Inf(1), 20, 80))
	assert.Equal(t, 20.0, Clamp(math.Inf(-1), 20, 80))
	assert.Equal(t, 20.0, Clamp(math.NaN(), 20, 80))
	assert.Equal(t, 55.0, Clamp(55, 20, 80))
}
