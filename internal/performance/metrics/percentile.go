package metrics

import (
	"math"
	"time"
)

// Percentile returns the p-th percentile of an ascending sample using the
// nearest-rank method: the value at rank ceil(p/100 * n).
//
// It returns 0 for an empty sample and the only element for a sample of one.
// p is clamped to [0, 100].
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}

	// p*n before dividing keeps integer percentiles exact.
	rank := int(math.Ceil(p * float64(n) / 100))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// latencyPercentiles fills the percentile fields of stats from an ascending sample.
func latencyPercentiles(stats *LatencyStats, sorted []time.Duration) {
	stats.Samples = len(sorted)
	stats.P50 = Percentile(sorted, 50)
	stats.P90 = Percentile(sorted, 90)
	stats.P95 = Percentile(sorted, 95)
	stats.P99 = Percentile(sorted, 99)
}
