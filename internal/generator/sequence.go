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

// DefaultSequenceOptions returns the defaults of the multi-fidelity
// generator.
func DefaultSequenceOptions() Options {
	opts := DefaultOptions()
	opts.RandomRate = 0.1
	opts.NumStepsPerIter = 1000
	opts.NumStarts = 5
	opts.NumSamples = 1024
	opts.MaxIter = 1000
	opts.FTol = 1e-9
	opts.Restart = true
	return opts
}

// SequenceGenerator is the multi-fidelity generator. A recurrent classifier
// reads one label per rung; the head of the highest rung with enough
// observations is maximized.
type SequenceGenerator struct {
	*base

	record    *record.MultiFidelityRecord
	maskValue float64
	build     func() classifier.SequenceClassifier
	clf       classifier.SequenceClassifier
	heads     map[int]classifier.LogitFunc
}

// NewSequence creates a multi-fidelity generator. clfOpts.InputDim is taken
// from the space; clfOpts.MaskValue pads rungs a configuration was not
// evaluated at.
func NewSequence(sp *space.Space, opts Options, clfOpts classifier.Options, logger *slog.Logger) (*SequenceGenerator, error) {
	b, err := newBase(sp, opts, logger)
	if err != nil {
		return nil, err
	}

	rec, err := record.NewMultiFidelity(opts.Gamma)
	if err != nil {
		return nil, err
	}

	clfOpts.InputDim = sp.Dimensions()
	factory, err := classifier.NewFactory(clfOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", record.ErrInvalidParameter, err)
	}

	g := &SequenceGenerator{
		base:      b,
		record:    rec,
		maskValue: clfOpts.MaskValue,
		build:     func() classifier.SequenceClassifier { return factory.Recurrent() },
	}
	g.Rebuild()
	return g, nil
}

// Record returns the multi-fidelity record.
func (g *SequenceGenerator) Record() *record.MultiFidelityRecord {
	return g.record
}

// Classifier returns the current classifier, or nil after Discard.
func (g *SequenceGenerator) Classifier() classifier.SequenceClassifier {
	return g.clf
}

// Model returns the classifier for persistence, or nil after Discard.
func (g *SequenceGenerator) Model() Model {
	if g.clf == nil {
		return nil
	}
	return g.clf
}

// Rebuild replaces the classifier with a freshly initialized one. Cached
// rung heads belong to the old network and are dropped.
func (g *SequenceGenerator) Rebuild() {
	g.clf = g.build()
	g.heads = make(map[int]classifier.LogitFunc)
}

// Discard releases the classifier and its heads. The next fit rebuilds it.
func (g *SequenceGenerator) Discard() {
	g.clf = nil
	g.heads = make(map[int]classifier.LogitFunc)
}

// Head returns the cached head of rung t, building it on first use.
func (g *SequenceGenerator) Head(t int) classifier.LogitFunc {
	head, ok := g.heads[t]
	if !ok {
		g.logger.Debug("building rung head", "rung", t, "steps", t+1)
		head = g.clf.Head(t)
		g.heads[t] = head
	}
	return head
}

// NumHeads returns the number of cached rung heads.
func (g *SequenceGenerator) NumHeads() int {
	return len(g.heads)
}

// GetConfig proposes the next configuration.
func (g *SequenceGenerator) GetConfig(ctx context.Context, budget float64) (Suggestion, error) {
	t, ok := g.record.HighestRung(g.opts.NumRandomInit)
	if !ok {
		g.logger.Debug("no rung with enough observations, suggesting random candidate",
			"min_size", g.opts.NumRandomInit,
			"rung_sizes", g.record.RungSizes(),
		)
		return g.random(SourceInitial, ""), nil
	}

	if g.explore() {
		return g.random(SourceExplore, ""), nil
	}

	g.logger.Debug("selected rung",
		"rung", t,
		"budget", g.record.Budgets()[t],
		"min_size", g.opts.NumRandomInit,
	)

	if g.opts.Retrain || g.clf == nil {
		g.Rebuild()
	}
	if g.opts.Retrain {
		defer g.Discard()
	}

	if err := g.fit(); err != nil {
		return Suggestion{}, err
	}

	res, summary := g.maximize(ctx, g.Head(t), g.record.IsDuplicate)
	if res == nil {
		return g.fallback(summary), nil
	}
	return g.propose(res, &t)
}

func (g *SequenceGenerator) fit() error {
	inputs, targets := g.record.SequencesPadded(true, g.maskValue)
	size := g.record.NumFeatures()

	epochs := g.opts.epochs(size)
	if g.opts.NumEpochs > 0 {
		g.logger.Debug("num_epochs is set, ignoring num_steps_per_iter",
			"num_epochs", epochs,
			"num_steps_per_iter", g.opts.NumStepsPerIter,
		)
	}

	start := time.Now()
	if err := g.clf.Fit(inputs, targets, classifier.FitOptions{Epochs: epochs, BatchSize: g.opts.BatchSize}); err != nil {
		return fmt.Errorf("failed to fit classifier: %w", err)
	}
	m, err := g.clf.Evaluate(inputs, targets)
	if err != nil {
		return fmt.Errorf("failed to evaluate classifier: %w", err)
	}

	g.fitLog(m, size, epochs, time.Since(start))
	return nil
}

// NewResult records a finished evaluation in the rung of its budget.
func (g *SequenceGenerator) NewResult(job Job) error {
	x, err := g.space.Encode(job.Config)
	if err != nil {
		return fmt.Errorf("%w: %w", record.ErrInvalidParameter, err)
	}

	loss, err := job.checkedLoss()
	if err != nil {
		return err
	}
	if err := g.record.Append(x, loss, job.Budget); err != nil {
		return err
	}
	g.observer.Observed(loss, job.Budget)

	g.logger.Debug("recorded observation",
		"rungs", g.record.NumRungs(),
		"budgets", g.record.Budgets(),
		"rung_sizes", g.record.RungSizes(),
		"thresholds", g.record.Thresholds(),
	)
	return nil
}

var _ ConfigGenerator = (*SequenceGenerator)(nil)
