package record

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
)

// ValidateGamma checks that gamma lies in the open interval (0, 1).
func ValidateGamma(gamma float64) error {
	if !(gamma > 0 && gamma < 1) {
		return fmt.Errorf("%w: gamma must be in (0, 1), got %v", ErrInvalidParameter, gamma)
	}
	return nil
}

// GoodCount returns how many of n losses are labelled positive for the given
// gamma: ceil(gamma*n), clamped to [1, n]. The small tolerance keeps products
// such as 0.2*100 from rounding up to 21.
func GoodCount(n int, gamma float64) int {
	if n <= 0 {
		return 0
	}
	k := int(math.Ceil(gamma*float64(n) - 1e-9))
	if k < 1 {
		k = 1
	}
	if k > n {
		k = n
	}
	return k
}

// lessLoss orders losses ascending with NaN placed after every number.
func lessLoss(a, b float64) bool {
	if math.IsNaN(a) {
		return false
	}
	if math.IsNaN(b) {
		return true
	}
	return a < b
}

// rankOrder returns the indices of ys sorted by ascending loss. Ties keep
// insertion order, so the boundary at the quantile is stable for a given
// arrival sequence.
func rankOrder(ys []float64) []int {
	idx := make([]int, len(ys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		return lessLoss(ys[idx[i]], ys[idx[j]])
	})
	return idx
}

// quantileLabels labels the GoodCount(len(ys), gamma) lowest losses with 1 and
// the rest with 0. It also returns the loss of the last positive, which is the
// gamma-quantile threshold.
func quantileLabels(ys []float64, gamma float64) ([]float64, float64) {
	labels := make([]float64, len(ys))
	if len(ys) == 0 {
		return labels, math.NaN()
	}

	order := rankOrder(ys)
	k := GoodCount(len(ys), gamma)
	for _, i := range order[:k] {
		labels[i] = 1
	}

	return labels, ys[order[k-1]]
}

// vectorKey builds an exact-match key from the bit patterns of x.
func vectorKey(x []float64) string {
	buf := make([]byte, 8*len(x))
	for i, v := range x {
		binary.LittleEndian.PutUint64(buf[8*i:], math.Float64bits(v))
	}
	return string(buf)
}

func cloneVector(x []float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	return out
}
