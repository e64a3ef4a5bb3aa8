package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/haskel/bore/internal/classifier"
	"github.com/haskel/bore/internal/optimize"
	"github.com/haskel/bore/internal/space"
)

// base holds what both generators share: the space, the single random
// source, the acquisition optimizer and the fallback policy.
type base struct {
	opts      Options
	space     *space.Space
	bounds    optimize.Bounds
	transform classifier.Transform
	ms        *optimize.MultiStart
	rng       *rand.Rand
	logger    *slog.Logger
	observer  Observer
}

func newBase(sp *space.Space, opts Options, logger *slog.Logger) (*base, error) {
	if sp == nil {
		return nil, fmt.Errorf("space is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	local, err := optimize.NewLocal(opts.Method, optimize.Options{MaxIter: opts.MaxIter, FTol: opts.FTol})
	if err != nil {
		return nil, err
	}
	ms, err := optimize.NewMultiStart(local, opts.NumStarts, opts.NumSamples, logger)
	if err != nil {
		return nil, err
	}
	ms.MaxBatches = opts.MaxBatches

	transform, _ := classifier.LookupTransform(opts.Transform)

	return &base{
		opts:      opts,
		space:     sp,
		bounds:    sp.Bounds(),
		transform: transform,
		ms:        ms,
		rng:       rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x626f7265)),
		logger:    logger,
		observer:  noopObserver{},
	}, nil
}

// SetObserver installs an observer of the suggestion cycle.
func (g *base) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	g.observer = o
}

// Space returns the configuration space.
func (g *base) Space() *space.Space {
	return g.space
}

// Options returns the generator options.
func (g *base) Options() Options {
	return g.opts
}

// random proposes a uniformly sampled configuration.
func (g *base) random(source, reason string) Suggestion {
	cfg, _ := g.space.Sample(g.rng)
	g.observer.Suggested(source, reason)
	return Suggestion{Config: cfg, Info: Info{Source: source, Reason: reason}}
}

// explore draws the epsilon-greedy trial.
func (g *base) explore() bool {
	if g.opts.RandomRate <= 0 {
		return false
	}
	if g.rng.Float64() >= g.opts.RandomRate {
		return false
	}
	g.logger.Info("global maximum skipped, suggesting random candidate",
		"prob", g.opts.RandomRate,
	)
	return true
}

// maximize finds the optimum of the transformed logit, skipping optima that
// are duplicates of recorded vectors.
func (g *base) maximize(ctx context.Context, logit classifier.LogitFunc, isDuplicate func([]float64) bool) (*optimize.Result, optimize.Summary) {
	f := g.transform.Negated(logit)
	keep := func(x []float64) bool {
		if isDuplicate(x) {
			g.logger.Warn("duplicate detected, skipping")
			return false
		}
		return true
	}

	g.logger.Debug("beginning multi-start maximization",
		"starts", g.opts.NumStarts,
		"samples", g.opts.NumSamples,
		"single_batch", g.opts.Restart,
	)

	start := time.Now()
	var (
		res     *optimize.Result
		summary optimize.Summary
	)
	if g.opts.Restart {
		res, summary = g.ms.Best(ctx, f, g.bounds, g.rng, keep)
	} else {
		res, summary = g.ms.UntilFound(ctx, f, g.bounds, g.rng, keep)
	}
	g.observer.Maximized(time.Since(start), summary)

	return res, summary
}

// fallback proposes a random configuration after maximization came up
// empty.
func (g *base) fallback(summary optimize.Summary) Suggestion {
	reason := summary.Reason()
	g.logger.Warn("global maximum not found, suggesting random candidate",
		"reason", reason,
		"batches", summary.Batches,
		"starts", summary.Starts,
		"failed", summary.Failed,
		"duplicates", summary.Duplicates,
	)
	return g.random(SourceFallback, reason)
}

// propose turns an optimum into the final suggestion, distorting it when
// configured.
func (g *base) propose(res *optimize.Result, rung *int) (Suggestion, error) {
	x := res.X
	distorted := false
	if g.opts.Distortion > 0 {
		x = truncatedNormal(g.rng, res.X, g.opts.Distortion, g.bounds)
		distorted = true
	}

	value := -res.Fun
	g.logger.Info("global maximum found",
		"value", value,
		"x", res.X,
		"suggest", x,
	)

	cfg, err := g.space.Decode(x)
	if err != nil {
		return Suggestion{}, fmt.Errorf("failed to decode optimum: %w", err)
	}

	g.observer.Suggested(SourceModel, "")
	return Suggestion{
		Config: cfg,
		Info: Info{
			Source:    SourceModel,
			Value:     &value,
			Rung:      rung,
			Distorted: distorted,
		},
	}, nil
}

// truncatedNormal draws each coordinate from a normal centred at loc with the
// given scale, truncated to the box, by inverting the normal CDF.
func truncatedNormal(rng *rand.Rand, loc []float64, scale float64, bounds optimize.Bounds) []float64 {
	n := distuv.UnitNormal
	x := make([]float64, len(loc))
	for i, mu := range loc {
		lo := n.CDF((bounds.Lower[i] - mu) / scale)
		hi := n.CDF((bounds.Upper[i] - mu) / scale)
		u := lo + rng.Float64()*(hi-lo)
		z := n.Quantile(u)
		if math.IsNaN(z) {
			z = 0
		}
		x[i] = mu + scale*z
	}
	return bounds.Clip(x)
}

// fitLog logs the outcome of a classifier fit the same way for both
// generators.
func (g *base) fitLog(m classifier.Metrics, size, epochs int, d time.Duration) {
	g.observer.Fitted(d, m, size)
	g.logger.Info("model fit",
		"loss", m.Loss,
		"accuracy", m.Accuracy,
		"dataset_size", size,
		"batch_size", g.opts.BatchSize,
		"steps_per_epoch", StepsPerEpoch(size, g.opts.BatchSize),
		"num_steps_per_iter", g.opts.NumStepsPerIter,
		"num_epochs", epochs,
		"duration", d,
	)
}
