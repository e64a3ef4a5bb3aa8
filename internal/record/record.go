// Package record stores evaluated configurations and turns them into the
// binary classification datasets used to fit the density-ratio classifier.
package record

import (
	"fmt"
)

// Observation is one completed evaluation: the encoded configuration X, the
// loss Y and the budget B it ran at.
type Observation struct {
	X []float64 `json:"x"`
	Y float64   `json:"y"`
	B float64   `json:"b"`
}

// Record is an append-only, single-fidelity store of observations kept in
// arrival order. It is not safe for concurrent use.
type Record struct {
	observations []Observation
	seen         map[string]struct{}
}

// New creates an empty record.
func New() *Record {
	return &Record{
		seen: make(map[string]struct{}),
	}
}

// Append stores an observation. The vector is copied.
func (r *Record) Append(x []float64, y, b float64) {
	obs := Observation{X: cloneVector(x), Y: y, B: b}
	r.observations = append(r.observations, obs)
	r.seen[vectorKey(obs.X)] = struct{}{}
}

// Size returns the number of appended observations.
func (r *Record) Size() int {
	return len(r.observations)
}

// IsDuplicate reports whether x exactly matches a stored vector.
func (r *Record) IsDuplicate(x []float64) bool {
	_, ok := r.seen[vectorKey(x)]
	return ok
}

// LoadClassificationData returns every stored vector together with a label
// that is 1 when its loss is among the lowest gamma fraction of all losses.
func (r *Record) LoadClassificationData(gamma float64) ([][]float64, []float64, error) {
	if err := ValidateGamma(gamma); err != nil {
		return nil, nil, err
	}
	if len(r.observations) == 0 {
		return nil, nil, errEmpty()
	}

	X := make([][]float64, len(r.observations))
	ys := make([]float64, len(r.observations))
	for i, obs := range r.observations {
		X[i] = cloneVector(obs.X)
		ys[i] = obs.Y
	}

	z, _ := quantileLabels(ys, gamma)
	return X, z, nil
}

// Threshold returns the gamma-quantile loss used as the positive cutoff.
func (r *Record) Threshold(gamma float64) (float64, error) {
	if err := ValidateGamma(gamma); err != nil {
		return 0, err
	}
	if len(r.observations) == 0 {
		return 0, errEmpty()
	}
	_, tau := quantileLabels(r.losses(), gamma)
	return tau, nil
}

// errEmpty reports a quantile request on an empty record. It matches both
// ErrInvalidParameter and ErrEmptyRecord.
func errEmpty() error {
	return fmt.Errorf("%w: %w: cannot compute a quantile without observations", ErrInvalidParameter, ErrEmptyRecord)
}

// Observations returns a copy of the stored observations in arrival order.
func (r *Record) Observations() []Observation {
	out := make([]Observation, len(r.observations))
	for i, obs := range r.observations {
		out[i] = Observation{X: cloneVector(obs.X), Y: obs.Y, B: obs.B}
	}
	return out
}

// Best returns the observation with the lowest loss.
func (r *Record) Best() (Observation, bool) {
	return best(r.observations)
}

func (r *Record) losses() []float64 {
	ys := make([]float64, len(r.observations))
	for i, obs := range r.observations {
		ys[i] = obs.Y
	}
	return ys
}

func best(observations []Observation) (Observation, bool) {
	if len(observations) == 0 {
		return Observation{}, false
	}
	b := 0
	for i := 1; i < len(observations); i++ {
		if lessLoss(observations[i].Y, observations[b].Y) {
			b = i
		}
	}
	obs := observations[b]
	return Observation{X: cloneVector(obs.X), Y: obs.Y, B: obs.B}, true
}
