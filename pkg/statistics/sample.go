// Package statistics provides the small set of sample statistics used when
// aggregating repeated profiling measurements.
package statistics

import "math"

// Mean returns the arithmetic mean of values, or NaN for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// PopulationVariance computes the population variance of values, or NaN for
// an empty slice.
func PopulationVariance(values []float64) float64 {
	avg := Mean(values)
	if math.IsNaN(avg) {
		return math.NaN()
	}

	variance := 0.0
	for _, v := range values {
		diff := v - avg
		variance += diff * diff
	}
	return variance / float64(len(values))
}

// PopulationStdDev computes the population standard deviation of values, or
// NaN for an empty slice.
func PopulationStdDev(values []float64) float64 {
	return math.Sqrt(PopulationVariance(values))
}

// RejectOutliers returns the values lying strictly within m standard
// deviations of the sample mean. GPU timing samples occasionally include a
// measurement inflated by an unrelated stall; dropping them before averaging
// keeps one bad sample from skewing a 50-run mean. m <= 0 returns the input
// unchanged.
func RejectOutliers(values []float64, m float64) []float64 {
	if m <= 0 || len(values) == 0 {
		return values
	}

	avg := Mean(values)
	std := PopulationStdDev(values)

	kept := make([]float64, 0, len(values))
	for _, v := range values {
		if math.Abs(v-avg) < m*std {
			kept = append(kept, v)
		}
	}
	return kept
}
