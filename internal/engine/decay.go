package engine

// Recency decay.
//
//   - Exponential with a configurable half-life (default 30 days)
//   - A pack updated "now" scores 1.0, one half-life ago 0.5
//   - Future timestamps (clock skew) clamp to 1.0
//   - Computed in Go at scoring time; nothing is persisted

import (
	"math"
	"time"
)

// DefaultHalfLife is the recency half-life used when none is configured.
const DefaultHalfLife = 30 * 24 * time.Hour

// Recency returns 0.5^(elapsed/halfLife) in (0,1].
func Recency(elapsed, halfLife time.Duration) float64 {
	if elapsed <= 0 {
		return 1
	}
	if halfLife <= 0 {
		halfLife = DefaultHalfLife
	}
	return math.Pow(0.5, float64(elapsed)/float64(halfLife))
}
