package mosaic

import (
	"math"
	"sort"
)

// HistogramMatch maps source values onto the value distribution of the
// reference sample, so two acquisitions of the same area end up with
// matching radiometry. Each unique source value is assigned the reference
// value at the same empirical-CDF quantile, with linear interpolation along
// the reference's value-vs-quantile curve. Positions where sourceValid is
// false pass through unmodified and are excluded from distribution
// estimation; referenceValid restricts the reference sample the same way.
// Deterministic and referentially transparent.
func HistogramMatch(source []float64, sourceValid []bool, reference []float64, referenceValid []bool) []float64 {
	out := make([]float64, len(source))
	copy(out, source)

	srcValues, srcQuantiles := empiricalCDF(source, sourceValid)
	refValues, refQuantiles := empiricalCDF(reference, referenceValid)
	if len(srcValues) == 0 || len(refValues) == 0 {
		return out
	}

	// Map each unique source value to a reference value at its quantile.
	mapped := make([]float64, len(srcValues))
	for i, q := range srcQuantiles {
		mapped[i] = interpolate(q, refQuantiles, refValues)
	}

	for i := range source {
		if sourceValid != nil && !sourceValid[i] {
			continue
		}
		j := sort.SearchFloat64s(srcValues, source[i])
		out[i] = mapped[j]
	}

	return out
}

// empiricalCDF returns the sorted unique sample values and, per value, the
// cumulative count divided by the sample size.
func empiricalCDF(sample []float64, valid []bool) ([]float64, []float64) {
	counts := map[float64]int{}
	total := 0
	for i, v := range sample {
		if valid != nil && !valid[i] {
			continue
		}
		counts[v]++
		total++
	}
	if total == 0 {
		return nil, nil
	}

	values := make([]float64, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Float64s(values)

	quantiles := make([]float64, len(values))
	cum := 0
	for i, v := range values {
		cum += counts[v]
		quantiles[i] = float64(cum) / float64(total)
	}

	return values, quantiles
}

// interpolate evaluates the piecewise-linear curve (xs, ys) at x, clamping
// outside the domain. xs must be ascending.
func interpolate(x float64, xs, ys []float64) float64 {
	i := sort.SearchFloat64s(xs, x)
	switch {
	case i == 0:
		return ys[0]
	case i == len(xs):
		return ys[len(ys)-1]
	case xs[i] == x:
		return ys[i]
	}

	t := (x - xs[i-1]) / (xs[i] - xs[i-1])
	return ys[i-1] + t*(ys[i]-ys[i-1])
}

// GainFactor is the multiplicative correction that brings the source
// sample's mean intensity to the reference's over their overlap. Returns 1
// when either mean is unusable.
func GainFactor(source, reference []float64, overlap []bool) float64 {
	var srcSum, refSum float64
	n := 0
	for i, o := range overlap {
		if !o {
			continue
		}
		srcSum += source[i]
		refSum += reference[i]
		n++
	}
	if n == 0 || srcSum == 0 {
		return 1
	}

	gain := refSum / srcSum
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return 1
	}
	return gain
}
