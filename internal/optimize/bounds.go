package optimize

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Bounds is an axis-aligned box.
type Bounds struct {
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
}

// UnitBounds returns the [0, 1]^dim box.
func UnitBounds(dim int) Bounds {
	b := Bounds{Lower: make([]float64, dim), Upper: make([]float64, dim)}
	for i := range b.Upper {
		b.Upper[i] = 1
	}
	return b
}

// Dim returns the dimensionality of the box.
func (b Bounds) Dim() int {
	return len(b.Lower)
}

// Validate checks that both corners have the same length and lower <= upper.
func (b Bounds) Validate() error {
	if len(b.Lower) != len(b.Upper) {
		return fmt.Errorf("bounds mismatch: %d lower, %d upper", len(b.Lower), len(b.Upper))
	}
	if len(b.Lower) == 0 {
		return fmt.Errorf("bounds must have at least one dimension")
	}
	for i := range b.Lower {
		if math.IsNaN(b.Lower[i]) || math.IsNaN(b.Upper[i]) || b.Lower[i] > b.Upper[i] {
			return fmt.Errorf("invalid bounds in dimension %d: [%v, %v]", i, b.Lower[i], b.Upper[i])
		}
	}
	return nil
}

// Clip returns a copy of x projected onto the box.
func (b Bounds) Clip(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[i] = math.Min(math.Max(v, b.Lower[i]), b.Upper[i])
	}
	return out
}

// Sample draws a point uniformly from the box.
func (b Bounds) Sample(rng *rand.Rand) []float64 {
	x := make([]float64, len(b.Lower))
	for i := range x {
		x[i] = b.Lower[i] + rng.Float64()*(b.Upper[i]-b.Lower[i])
	}
	return x
}
