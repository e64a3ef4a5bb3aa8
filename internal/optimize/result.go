// Package optimize finds maxima of the acquisition function: a bounded local
// minimizer backed by gonum/optimize and multi-start drivers that discard
// failed or duplicate optima.
package optimize

import "fmt"

// Objective returns f(x). When grad is non-nil it must also write the
// gradient of f at x into grad.
type Objective func(x, grad []float64) float64

// Status classifies how a local search terminated.
type Status int

const (
	// StatusSuccess means the search converged.
	StatusSuccess Status = 0
	// StatusIterationLimit means the iteration budget ran out. The point found
	// is still usable.
	StatusIterationLimit Status = 1
	// StatusFailure means the search broke down (line search failure,
	// non-finite values, evaluation limits).
	StatusFailure Status = 2
)

// String returns string representation.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusIterationLimit:
		return "iteration_limit"
	case StatusFailure:
		return "failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of one local search.
type Result struct {
	X          []float64 `json:"x"`
	Fun        float64   `json:"fun"`
	Success    bool      `json:"success"`
	Status     Status    `json:"status"`
	Iterations int       `json:"iterations"`
	Message    string    `json:"message"`
}

// Acceptable reports whether the optimum can be used: the search either
// succeeded or only hit its iteration limit.
func (r *Result) Acceptable() bool {
	return r != nil && (r.Success || r.Status == StatusIterationLimit)
}

// Minimizer runs a single local search from x0 and keeps the argmin inside
// the bounds.
type Minimizer interface {
	Minimize(f Objective, bounds Bounds, x0 []float64) *Result
}

// Options configures a local search.
type Options struct {
	MaxIter int
	FTol    float64
}
