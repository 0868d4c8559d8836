package engine

import (
	"math"
	"sort"
)

// Distribution summarizes one metric's Monte Carlo sample. Median and
// percentiles use nearest-rank indexing: element ⌊n·XX/100⌋ of the sorted
// sample, no interpolation (even-n medians are not averaged). Variance is the
// population variance. The full sorted sample is retained for downstream
// histogramming.
type Distribution struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Median   float64 `json:"median"`
	P10      float64 `json:"p10"`
	P25      float64 `json:"p25"`
	P75      float64 `json:"p75"`
	P90      float64 `json:"p90"`

	Samples []float64 `json:"samples"`
}

// NewDistribution consumes samples: the slice is sorted in place and retained.
func NewDistribution(samples []float64) *Distribution {
	if len(samples) == 0 {
		return &Distribution{}
	}
	sort.Float64s(samples)
	n := len(samples)

	sum := 0.0
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(n)

	variance := 0.0
	for _, s := range samples {
		d := s - mean
		variance += d * d
	}
	variance /= float64(n)

	return &Distribution{
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      samples[0],
		Max:      samples[n-1],
		Median:   samples[n/2],
		P10:      nearestRank(samples, 10),
		P25:      nearestRank(samples, 25),
		P75:      nearestRank(samples, 75),
		P90:      nearestRank(samples, 90),
		Samples:  samples,
	}
}

func nearestRank(sorted []float64, pct int) float64 {
	idx := len(sorted) * pct / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
