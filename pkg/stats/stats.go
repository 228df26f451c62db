// Package stats provides the statistical helpers shared by every scale:
// rounding, clamping, the normal-curve percentile rank, and sample percentiles.
package stats

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Percentile calculates the p-th percentile of a sorted slice.
// The slice must already be sorted in ascending order.
// Returns 0 if the slice is empty.
func Percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// NormalCDF returns Φ(z) for the standard normal distribution.
// distuv evaluates 0.5*erfc(-z/√2), which equals 0.5*(1+erf(z/√2)).
func NormalCDF(z float64) float64 {
	return distuv.UnitNormal.CDF(z)
}

// PercentileRank converts a normalized score to the percentage of the
// reference population scoring at or below it, rounded to one decimal.
// A non-positive scale factor yields the median.
func PercentileRank(score, center, scaleFactor float64) float64 {
	if scaleFactor <= 0 || math.IsNaN(score) {
		return 50
	}
	z := (score - center) / scaleFactor
	return RoundTo(100*NormalCDF(z), 1)
}

// Round rounds half away from zero to a whole unit.
func Round(x float64) float64 {
	return math.Round(x)
}

// RoundTo rounds half away from zero to the given number of decimal places.
func RoundTo(x float64, places int) float64 {
	if places <= 0 {
		return math.Round(x)
	}
	p := math.Pow(10, float64(places))
	return math.Round(x*p) / p
}

// Clamp bounds x to [lo, hi]. NaN clamps to lo and infinities to the nearest bound.
func Clamp(x, lo, hi float64) float64 {
	switch {
	case math.IsNaN(x):
		return lo
	case x < lo:
		return lo
	case x > hi:
		return hi
	default:
		return x
	}
}
