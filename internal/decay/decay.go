// Package decay implements the exponential half-life weighting shared by the
// profile builder, the ranking freshness signal, and the topic decay sweep.
package decay

import (
	"math"
	"time"
)

const Day = 24 * time.Hour

// Weight returns exp(-ln2 * delta / halfLife). A non-positive half-life
// disables decay and yields 1.0. A negative delta counts as zero, so the
// result never exceeds 1.0.
func Weight(delta, halfLife float64) float64 {
	if halfLife <= 0 || delta <= 0 {
		return 1.0
	}
	return math.Exp(-math.Ln2 * delta / halfLife)
}

// Since is Weight over wall-clock durations.
func Since(delta, halfLife time.Duration) float64 {
	return Weight(delta.Seconds(), halfLife.Seconds())
}

// Days converts a fractional day count into a duration.
func Days(d float64) time.Duration {
	return time.Duration(d * float64(Day))
}
