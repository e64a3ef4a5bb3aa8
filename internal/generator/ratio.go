package generator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/haskel/bore/internal/classifier"
	"github.com/haskel/bore/internal/record"
	"github.com/haskel/bore/internal/space"
)

// RatioEstimator is the single-fidelity generator. It classifies every
// observation by the gamma-quantile of all losses.
type RatioEstimator struct {
	*base

	record *record.Record
	build  func() classifier.Classifier
	clf    classifier.Classifier
}

// New creates a single-fidelity generator. clfOpts.InputDim is taken from
// the space.
func New(sp *space.Space, opts Options, clfOpts classifier.Options, logger *slog.Logger) (*RatioEstimator, error) {
	b, err := newBase(sp, opts, logger)
	if err != nil {
		return nil, err
	}

	clfOpts.InputDim = sp.Dimensions()
	factory, err := classifier.NewFactory(clfOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", record.ErrInvalidParameter, err)
	}

	g := &RatioEstimator{
		base:   b,
		record: record.New(),
		build:  func() classifier.Classifier { return factory.Dense() },
	}
	g.Rebuild()
	return g, nil
}

// Record returns the observation record.
func (g *RatioEstimator) Record() *record.Record {
	return g.record
}

// Classifier returns the current classifier, or nil after Discard.
func (g *RatioEstimator) Classifier() classifier.Classifier {
	return g.clf
}

// Model returns the classifier for persistence, or nil after Discard.
func (g *RatioEstimator) Model() Model {
	if g.clf == nil {
		return nil
	}
	return g.clf
}

// Rebuild replaces the classifier with a freshly initialized one.
func (g *RatioEstimator) Rebuild() {
	g.clf = g.build()
}

// Discard releases the classifier. The next fit rebuilds it.
func (g *RatioEstimator) Discard() {
	g.clf = nil
}

// GetConfig proposes the next configuration.
func (g *RatioEstimator) GetConfig(ctx context.Context, budget float64) (Suggestion, error) {
	size := g.record.Size()
	if size < g.opts.NumRandomInit {
		g.logger.Debug("suggesting random candidate",
			"completed", size,
			"initial", g.opts.NumRandomInit,
		)
		return g.random(SourceInitial, ""), nil
	}

	if g.explore() {
		return g.random(SourceExplore, ""), nil
	}

	if g.opts.Retrain || g.clf == nil {
		g.Rebuild()
	}
	if g.opts.Retrain {
		defer g.Discard()
	}

	if err := g.fit(); err != nil {
		return Suggestion{}, err
	}

	res, summary := g.maximize(ctx, g.clf.Logit, g.record.IsDuplicate)
	if res == nil {
		return g.fallback(summary), nil
	}
	return g.propose(res, nil)
}

func (g *RatioEstimator) fit() error {
	X, z, err := g.record.LoadClassificationData(g.opts.Gamma)
	if err != nil {
		return fmt.Errorf("failed to load classification data: %w", err)
	}

	epochs := g.opts.epochs(len(X))
	start := time.Now()
	if err := g.clf.Fit(X, z, classifier.FitOptions{Epochs: epochs, BatchSize: g.opts.BatchSize}); err != nil {
		return fmt.Errorf("failed to fit classifier: %w", err)
	}
	m, err := g.clf.Evaluate(X, z)
	if err != nil {
		return fmt.Errorf("failed to evaluate classifier: %w", err)
	}

	g.fitLog(m, len(X), epochs, time.Since(start))
	return nil
}

// NewResult records a finished evaluation.
func (g *RatioEstimator) NewResult(job Job) error {
	x, err := g.space.Encode(job.Config)
	if err != nil {
		return fmt.Errorf("%w: %w", record.ErrInvalidParameter, err)
	}

	loss, err := job.checkedLoss()
	if err != nil {
		return err
	}
	g.record.Append(x, loss, job.Budget)
	g.observer.Observed(loss, job.Budget)
	return nil
}

var _ ConfigGenerator = (*RatioEstimator)(nil)
