package audit

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"finset/pkg/contracts/domain"
)

// numericValues returns the non-null values of col. ok is false when any
// non-null value is not a number or the column is empty.
func numericValues(col []string) ([]float64, bool) {
	values := make([]float64, 0, len(col))
	for _, v := range col {
		if domain.IsNull(v) {
			continue
		}
		f, ok := domain.ParseFloat(v)
		if !ok {
			return nil, false
		}
		values = append(values, f)
	}
	return values, len(values) > 0
}

// Describe computes count, mean, sample standard deviation, extrema and
// quartiles of values.
func Describe(values []float64) domain.DescribeStats {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	// a single observation has no sample deviation; 0 keeps reports JSON-safe
	if len(sorted) < 2 {
		std = 0
	}
	return domain.DescribeStats{
		Count: len(sorted),
		Mean:  mean,
		Std:   std,
		Min:   floats.Min(sorted),
		P25:   quantile(sorted, 0.25),
		P50:   quantile(sorted, 0.50),
		P75:   quantile(sorted, 0.75),
		Max:   floats.Max(sorted),
	}
}

// quantile interpolates linearly between the two nearest ranks of sorted.
// gonum's LinearInterp uses a different plotting position, so the common
// (n-1)p definition is computed here.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}
