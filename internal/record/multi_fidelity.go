package record

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MultiFidelityRecord partitions observations into rungs keyed by budget.
// Rung t is the t-th smallest distinct budget seen so far. Every distinct
// vector is a feature; features are numbered in order of first appearance.
type MultiFidelityRecord struct {
	gamma float64

	rungs   map[float64]*rung
	budgets []float64 // ascending

	features     [][]float64
	featureIndex map[string]int

	observations []Observation
}

type rung struct {
	budget  float64
	entries []rungEntry
}

type rungEntry struct {
	feature int
	y       float64
}

// RungSummary describes one rung for reporting.
type RungSummary struct {
	Rung      int     `json:"rung"`
	Budget    float64 `json:"budget"`
	Size      int     `json:"size"`
	Threshold float64 `json:"threshold"`
	MeanLoss  float64 `json:"mean_loss"`
	BestLoss  float64 `json:"best_loss"`
}

// NewMultiFidelity creates an empty multi-fidelity record whose thresholds
// and labels use the given gamma.
func NewMultiFidelity(gamma float64) (*MultiFidelityRecord, error) {
	if err := ValidateGamma(gamma); err != nil {
		return nil, err
	}
	return &MultiFidelityRecord{
		gamma:        gamma,
		rungs:        make(map[float64]*rung),
		featureIndex: make(map[string]int),
	}, nil
}

// Gamma returns the quantile used for thresholds and labels.
func (r *MultiFidelityRecord) Gamma() float64 {
	return r.gamma
}

// Append stores an observation in the rung for budget b, creating the rung on
// first use. Budgets must be positive.
func (r *MultiFidelityRecord) Append(x []float64, y, b float64) error {
	if !(b > 0) || math.IsInf(b, 1) {
		return fmt.Errorf("%w: budget must be positive and finite, got %v", ErrInvalidBudget, b)
	}

	key := vectorKey(x)
	feature, ok := r.featureIndex[key]
	if !ok {
		feature = len(r.features)
		r.features = append(r.features, cloneVector(x))
		r.featureIndex[key] = feature
	}

	rg, ok := r.rungs[b]
	if !ok {
		rg = &rung{budget: b}
		r.rungs[b] = rg
		i := sort.SearchFloat64s(r.budgets, b)
		r.budgets = append(r.budgets, 0)
		copy(r.budgets[i+1:], r.budgets[i:])
		r.budgets[i] = b
	}
	rg.entries = append(rg.entries, rungEntry{feature: feature, y: y})

	r.observations = append(r.observations, Observation{X: r.features[feature], Y: y, B: b})
	return nil
}

// Size returns the total number of observations across all rungs.
func (r *MultiFidelityRecord) Size() int {
	return len(r.observations)
}

// NumRungs returns the number of distinct budgets seen.
func (r *MultiFidelityRecord) NumRungs() int {
	return len(r.budgets)
}

// NumFeatures returns the number of distinct vectors seen at any rung.
func (r *MultiFidelityRecord) NumFeatures() int {
	return len(r.features)
}

// Budgets returns the rung budgets in ascending order.
func (r *MultiFidelityRecord) Budgets() []float64 {
	out := make([]float64, len(r.budgets))
	copy(out, r.budgets)
	return out
}

// RungSizes returns the number of observations per rung, by ascending budget.
func (r *MultiFidelityRecord) RungSizes() []int {
	sizes := make([]int, len(r.budgets))
	for t, b := range r.budgets {
		sizes[t] = len(r.rungs[b].entries)
	}
	return sizes
}

// HighestRung returns the highest-budget rung holding at least minSize
// observations. The boolean is false when no rung qualifies.
func (r *MultiFidelityRecord) HighestRung(minSize int) (int, bool) {
	for t := len(r.budgets) - 1; t >= 0; t-- {
		if len(r.rungs[r.budgets[t]].entries) >= minSize {
			return t, true
		}
	}
	return 0, false
}

// Thresholds returns the gamma-quantile loss of each rung.
func (r *MultiFidelityRecord) Thresholds() []float64 {
	taus := make([]float64, len(r.budgets))
	for t, b := range r.budgets {
		_, taus[t] = quantileLabels(r.rungs[b].losses(), r.gamma)
	}
	return taus
}

// IsDuplicate reports whether x exactly matches a vector stored at any rung.
func (r *MultiFidelityRecord) IsDuplicate(x []float64) bool {
	_, ok := r.featureIndex[vectorKey(x)]
	return ok
}

// SequencesPadded returns one row per distinct vector: the vector itself and
// a target sequence with one entry per rung, ordered by ascending budget.
// With binary set, entry t is 1 when the vector is among the good quantile of
// rung t and 0 otherwise; without it, entry t is the raw loss. Rungs at which
// the vector was never evaluated hold padValue. When a vector was evaluated
// more than once at a rung, the latest evaluation wins.
func (r *MultiFidelityRecord) SequencesPadded(binary bool, padValue float64) ([][]float64, [][]float64) {
	inputs := make([][]float64, len(r.features))
	targets := make([][]float64, len(r.features))
	for i, x := range r.features {
		inputs[i] = cloneVector(x)
		targets[i] = make([]float64, len(r.budgets))
		for t := range targets[i] {
			targets[i][t] = padValue
		}
	}

	for t, b := range r.budgets {
		rg := r.rungs[b]
		var labels []float64
		if binary {
			labels, _ = quantileLabels(rg.losses(), r.gamma)
		}
		for j, e := range rg.entries {
			if binary {
				targets[e.feature][t] = labels[j]
			} else {
				targets[e.feature][t] = e.y
			}
		}
	}

	return inputs, targets
}

// Rung returns the observations of rung t in arrival order.
func (r *MultiFidelityRecord) Rung(t int) []Observation {
	if t < 0 || t >= len(r.budgets) {
		return nil
	}
	rg := r.rungs[r.budgets[t]]
	out := make([]Observation, len(rg.entries))
	for i, e := range rg.entries {
		out[i] = Observation{X: cloneVector(r.features[e.feature]), Y: e.y, B: rg.budget}
	}
	return out
}

// Observations returns every observation in arrival order.
func (r *MultiFidelityRecord) Observations() []Observation {
	out := make([]Observation, len(r.observations))
	for i, obs := range r.observations {
		out[i] = Observation{X: cloneVector(obs.X), Y: obs.Y, B: obs.B}
	}
	return out
}

// Best returns the lowest-loss observation of the highest rung.
func (r *MultiFidelityRecord) Best() (Observation, bool) {
	if len(r.budgets) == 0 {
		return Observation{}, false
	}
	return best(r.Rung(len(r.budgets) - 1))
}

// Summary reports size, threshold and loss statistics for every rung.
func (r *MultiFidelityRecord) Summary() []RungSummary {
	out := make([]RungSummary, 0, len(r.budgets))
	taus := r.Thresholds()
	for t, b := range r.budgets {
		ys := finite(r.rungs[b].losses())
		s := RungSummary{
			Rung:      t,
			Budget:    b,
			Size:      len(r.rungs[b].entries),
			Threshold: taus[t],
			MeanLoss:  math.NaN(),
			BestLoss:  math.NaN(),
		}
		if len(ys) > 0 {
			s.MeanLoss = stat.Mean(ys, nil)
			s.BestLoss = floats.Min(ys)
		}
		out = append(out, s)
	}
	return out
}

func (rg *rung) losses() []float64 {
	ys := make([]float64, len(rg.entries))
	for i, e := range rg.entries {
		ys[i] = e.y
	}
	return ys
}

func finite(ys []float64) []float64 {
	out := make([]float64, 0, len(ys))
	for _, y := range ys {
		if !math.IsNaN(y) && !math.IsInf(y, 0) {
			out = append(out, y)
		}
	}
	return out
}
