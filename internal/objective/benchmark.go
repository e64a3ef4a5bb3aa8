// Package objective provides the functions an optimization run minimizes:
// an external command whose JSON output carries the loss, and synthetic
// multi-fidelity benchmarks.
package objective

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/space"
)

// Benchmark is a synthetic objective over a fixed space. The budget sets the
// fidelity s = budget/MaxBudget clamped to [0, 1]; s = 1 is the exact
// function and lower fidelities are biased approximations of it.
type Benchmark struct {
	Name      string
	MaxBudget float64
	// Minimum is the global minimum at full fidelity.
	Minimum float64

	params []space.Parameter
	fn     func(x []float64, s float64) float64
}

// Parameters returns the space the benchmark is defined on.
func (b *Benchmark) Parameters() []space.Parameter {
	out := make([]space.Parameter, len(b.params))
	copy(out, b.params)
	return out
}

// Space builds the benchmark's space.
func (b *Benchmark) Space() (*space.Space, error) {
	return space.New(b.params)
}

// Fidelity maps a budget to [0, 1].
func (b *Benchmark) Fidelity(budget float64) float64 {
	if !(b.MaxBudget > 0) {
		return 1
	}
	return math.Min(math.Max(budget/b.MaxBudget, 0), 1)
}

// Evaluate computes the benchmark at the fidelity of budget.
func (b *Benchmark) Evaluate(ctx context.Context, cfg space.Config, budget float64) (*generator.JobResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x := make([]float64, len(b.params))
	for i, p := range b.params {
		v, ok := cfg[p.Name]
		if !ok {
			return nil, fmt.Errorf("missing parameter %q", p.Name)
		}
		f, err := number(v)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		x[i] = f
	}

	s := b.Fidelity(budget)
	return &generator.JobResult{
		Loss: b.fn(x, s),
		Info: map[string]any{"fidelity": s},
	}, nil
}

func number(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// Branin returns the multi-fidelity Branin function on [-5, 10] x [0, 15].
// Lower fidelities shift the b, c and t coefficients.
func Branin(maxBudget float64) *Benchmark {
	return &Benchmark{
		Name:      "branin",
		MaxBudget: maxBudget,
		Minimum:   0.397887,
		params: []space.Parameter{
			{Name: "x1", Type: space.TypeFloat, Lower: -5, Upper: 10},
			{Name: "x2", Type: space.TypeFloat, Lower: 0, Upper: 15},
		},
		fn: branin,
	}
}

func branin(x []float64, s float64) float64 {
	const (
		a = 1.0
		r = 6.0
		w = 10.0
	)
	b := 5.1/(4*math.Pi*math.Pi) - 0.01*(1-s)
	c := 5/math.Pi - 0.1*(1-s)
	t := 1/(8*math.Pi) + 0.05*(1-s)

	u := x[1] - b*x[0]*x[0] + c*x[0] - r
	return a*u*u + w*(1-t)*math.Cos(x[0]) + w
}

// Forrester returns the one-dimensional Forrester function on [0, 1],
// blended with its classic low-fidelity approximation.
func Forrester(maxBudget float64) *Benchmark {
	return &Benchmark{
		Name:      "forrester",
		MaxBudget: maxBudget,
		Minimum:   -6.020740,
		params: []space.Parameter{
			{Name: "x", Type: space.TypeFloat, Lower: 0, Upper: 1},
		},
		fn: forrester,
	}
}

func forrester(x []float64, s float64) float64 {
	hi := (6*x[0] - 2) * (6*x[0] - 2) * math.Sin(12*x[0]-4)
	lo := 0.5*hi + 10*(x[0]-0.5) + 5
	return s*hi + (1-s)*lo
}

var benchmarks = map[string]func(float64) *Benchmark{
	"branin":    Branin,
	"forrester": Forrester,
}

// Lookup returns the named benchmark.
func Lookup(name string, maxBudget float64) (*Benchmark, error) {
	mk, ok := benchmarks[name]
	if !ok {
		return nil, fmt.Errorf("unknown benchmark: %s (valid: %v)", name, Names())
	}
	return mk(maxBudget), nil
}

// Names lists the benchmarks in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(benchmarks))
	for name := range benchmarks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
