package pead

import (
	"math"

	"github.com/shopspring/decimal"
)

// roundTo rounds v to the given number of decimal places using the shortest
// decimal representation of v, so 0.6500000000000001 becomes 0.65.
func roundTo(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func ptr[T any](v T) *T {
	return &v
}
