package optimize

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Exhaustion reasons reported by Summary.Reason.
const (
	ReasonFound         = "found"
	ReasonAllFailed     = "all_failed"
	ReasonAllDuplicates = "all_duplicates"
	ReasonMixed         = "mixed"
	ReasonCanceled      = "canceled"
)

// Filter reports whether an acceptable optimum may be used. It returns false
// for points that must be skipped, such as configurations already evaluated.
type Filter func(x []float64) bool

// Summary counts what happened to the local searches of one maximization.
type Summary struct {
	Batches    int  `json:"batches"`
	Starts     int  `json:"starts"`
	Failed     int  `json:"failed"`
	Duplicates int  `json:"duplicates"`
	Accepted   int  `json:"accepted"`
	Canceled   bool `json:"canceled,omitempty"`
}

// Reason explains the outcome. When nothing was accepted it tells apart
// searches that all failed from optima that were all duplicates.
func (s Summary) Reason() string {
	switch {
	case s.Accepted > 0:
		return ReasonFound
	case s.Canceled:
		return ReasonCanceled
	case s.Duplicates == 0:
		return ReasonAllFailed
	case s.Failed == 0:
		return ReasonAllDuplicates
	default:
		return ReasonMixed
	}
}

// MultiStart runs batches of local searches from different starting points.
type MultiStart struct {
	minimizer Minimizer

	// NumStarts is the number of local searches per batch.
	NumStarts int
	// NumSamples is the number of uniform candidates scored to pick the
	// starting points. Values not above NumStarts mean purely random starts.
	NumSamples int
	// MaxBatches caps UntilFound. Zero means no cap.
	MaxBatches int

	logger *slog.Logger
}

// NewMultiStart creates a multi-start driver around a local minimizer.
func NewMultiStart(m Minimizer, numStarts, numSamples int, logger *slog.Logger) (*MultiStart, error) {
	if m == nil {
		return nil, fmt.Errorf("minimizer is required")
	}
	if numStarts <= 0 {
		return nil, fmt.Errorf("num_starts must be positive, got %d", numStarts)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MultiStart{
		minimizer:  m,
		NumStarts:  numStarts,
		NumSamples: numSamples,
		logger:     logger,
	}, nil
}

// Best runs exactly one batch and returns the lowest-f acceptable optimum
// that passes the filter, or nil when every search was discarded.
func (ms *MultiStart) Best(ctx context.Context, f Objective, bounds Bounds, rng *rand.Rand, keep Filter) (*Result, Summary) {
	var summary Summary
	if ctx.Err() != nil {
		summary.Canceled = true
		return nil, summary
	}
	res := ms.batch(f, bounds, rng, keep, &summary)
	return res, summary
}

// UntilFound runs batches until one produces an acceptable optimum that
// passes the filter. Without MaxBatches it only stops early when ctx is done.
func (ms *MultiStart) UntilFound(ctx context.Context, f Objective, bounds Bounds, rng *rand.Rand, keep Filter) (*Result, Summary) {
	var summary Summary
	for {
		if ctx.Err() != nil {
			summary.Canceled = true
			return nil, summary
		}
		if ms.MaxBatches > 0 && summary.Batches >= ms.MaxBatches {
			return nil, summary
		}
		if res := ms.batch(f, bounds, rng, keep, &summary); res != nil {
			return res, summary
		}
	}
}

func (ms *MultiStart) batch(f Objective, bounds Bounds, rng *rand.Rand, keep Filter, summary *Summary) *Result {
	summary.Batches++
	starts := ms.startingPoints(f, bounds, rng)

	var best *Result
	for i, x0 := range starts {
		res := ms.minimizer.Minimize(f, bounds, x0)
		summary.Starts++

		ms.logger.Debug("local search finished",
			"batch", summary.Batches,
			"start", i+1,
			"of", len(starts),
			"value", -res.Fun,
			"success", res.Success,
			"iterations", res.Iterations,
			"status", res.Status.String(),
			"message", res.Message,
		)

		if !res.Acceptable() {
			summary.Failed++
			continue
		}
		if keep != nil && !keep(res.X) {
			summary.Duplicates++
			continue
		}

		summary.Accepted++
		if best == nil || res.Fun < best.Fun {
			best = res
		}
	}
	return best
}

// startingPoints draws NumSamples uniform candidates and keeps the NumStarts
// with the lowest objective value.
func (ms *MultiStart) startingPoints(f Objective, bounds Bounds, rng *rand.Rand) [][]float64 {
	if ms.NumSamples <= ms.NumStarts {
		starts := make([][]float64, ms.NumStarts)
		for i := range starts {
			starts[i] = bounds.Sample(rng)
		}
		return starts
	}

	candidates := make([][]float64, ms.NumSamples)
	values := make([]float64, ms.NumSamples)
	for i := range candidates {
		candidates[i] = bounds.Sample(rng)
		values[i] = f(candidates[i], nil)
	}

	inds := make([]int, len(values))
	floats.Argsort(values, inds)

	starts := make([][]float64, ms.NumStarts)
	for i := range starts {
		starts[i] = candidates[inds[i]]
	}
	return starts
}
