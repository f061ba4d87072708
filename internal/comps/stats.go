package comps

import (
	"math"
	"sort"
	"time"

	"github.com/keyflip/keyflip/internal/models"
)

// ComputeStats summarizes a pool of currency-normalized prices. Percentiles
// use linear rank interpolation over the sorted pool. Zero samples yield an
// invalid (count=0) stats record; a single sample makes all three statistics
// equal that price.
func ComputeStats(fingerprint string, prices []float64, currency string, computedAt time.Time) models.CompStats {
	pool := make([]float64, 0, len(prices))
	for _, p := range prices {
		if p > 0 {
			pool = append(pool, p)
		}
	}
	sort.Float64s(pool)

	stats := models.CompStats{
		Fingerprint: fingerprint,
		Count:       len(pool),
		Currency:    currency,
		ComputedAt:  computedAt,
	}
	if len(pool) == 0 {
		return stats
	}

	stats.P25 = percentile(pool, 0.25)
	stats.Median = percentile(pool, 0.50)
	stats.P75 = percentile(pool, 0.75)
	return stats
}

// percentile interpolates linearly between the closest ranks of a sorted,
// non-empty slice.
func percentile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := q * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
