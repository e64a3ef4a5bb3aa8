// Package hyperband schedules evaluations with successive halving across a
// geometric ladder of budgets. Configurations come from an injected
// generator, which is told about every finished evaluation.
package hyperband

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/haskel/bore/internal/generator"
	"github.com/haskel/bore/internal/space"
)

// Evaluator runs one evaluation of cfg at budget.
type Evaluator interface {
	Evaluate(ctx context.Context, cfg space.Config, budget float64) (*generator.JobResult, error)
}

// Options configures the budget ladder.
type Options struct {
	Eta       float64
	MinBudget float64
	MaxBudget float64
}

// DefaultOptions returns eta 3 over budgets [1/100, 1].
func DefaultOptions() Options {
	return Options{Eta: 3, MinBudget: 0.01, MaxBudget: 1}
}

// Validate checks the options.
func (o Options) Validate() error {
	var errs []error
	if !(o.Eta > 1) {
		errs = append(errs, fmt.Errorf("eta must be greater than 1, got %v", o.Eta))
	}
	if !(o.MinBudget > 0) {
		errs = append(errs, fmt.Errorf("min_budget must be positive, got %v", o.MinBudget))
	}
	if !(o.MaxBudget >= o.MinBudget) || math.IsInf(o.MaxBudget, 1) {
		errs = append(errs, fmt.Errorf("max_budget (%v) must be finite and at least min_budget (%v)", o.MaxBudget, o.MinBudget))
	}
	return errors.Join(errs...)
}

// DefaultGamma is the quantile matching the promotion rate: 1/eta.
func DefaultGamma(eta float64) float64 {
	return 1 / eta
}

// MaxSHIter returns the number of budget levels. The tolerance keeps exact
// powers of eta from truncating one level short.
func MaxSHIter(minBudget, maxBudget, eta float64) int {
	return -int(math.Log(minBudget/maxBudget)/math.Log(eta)-1e-9) + 1
}

// Budgets returns the ladder max / eta^k for k = MaxSHIter-1 down to 0,
// in ascending order.
func Budgets(minBudget, maxBudget, eta float64) []float64 {
	n := MaxSHIter(minBudget, maxBudget, eta)
	budgets := make([]float64, n)
	for i := range budgets {
		budgets[i] = maxBudget / math.Pow(eta, float64(n-1-i))
	}
	return budgets
}

// Result collects the jobs of one run.
type Result struct {
	RunID    string          `json:"run_id"`
	Jobs     []generator.Job `json:"jobs"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
}

// Incumbent returns the lowest-loss job at the highest budget reached.
func (r *Result) Incumbent() (generator.Job, bool) {
	var (
		best  generator.Job
		found bool
	)
	for _, j := range r.Jobs {
		if j.Result == nil || math.IsInf(j.Loss(), 1) {
			continue
		}
		switch {
		case !found,
			j.Budget > best.Budget,
			j.Budget == best.Budget && j.Loss() < best.Loss():
			best, found = j, true
		}
	}
	return best, found
}

// Hyperband runs successive-halving brackets sequentially.
type Hyperband struct {
	gen     generator.ConfigGenerator
	eval    Evaluator
	opts    Options
	budgets []float64
	logger  *slog.Logger
	onJob   func(runID string, job generator.Job)
}

// New creates a scheduler around a generator and an evaluator.
func New(gen generator.ConfigGenerator, eval Evaluator, opts Options, logger *slog.Logger) (*Hyperband, error) {
	if gen == nil || eval == nil {
		return nil, errors.New("generator and evaluator are required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Hyperband{
		gen:     gen,
		eval:    eval,
		opts:    opts,
		budgets: Budgets(opts.MinBudget, opts.MaxBudget, opts.Eta),
		logger:  logger,
	}, nil
}

// OnJob installs a callback invoked after every recorded job.
func (h *Hyperband) OnJob(fn func(runID string, job generator.Job)) {
	h.onJob = fn
}

// Budgets returns the budget ladder.
func (h *Hyperband) Budgets() []float64 {
	out := make([]float64, len(h.budgets))
	copy(out, h.budgets)
	return out
}

// Bracket returns the number of configurations per stage and the budgets of
// iteration i.
func (h *Hyperband) Bracket(i int) ([]int, []float64) {
	maxSH := len(h.budgets)
	s := maxSH - 1 - i%maxSH

	n0 := int(math.Floor(float64(maxSH)/float64(s+1)) * math.Pow(h.opts.Eta, float64(s)))
	ns := make([]int, s+1)
	for j := range ns {
		ns[j] = max(int(math.Floor(float64(n0)*math.Pow(h.opts.Eta, -float64(j)))), 1)
	}
	return ns, h.budgets[maxSH-s-1:]
}

// Run executes the given number of iterations. On cancellation it returns
// the jobs finished so far together with the context error.
func (h *Hyperband) Run(ctx context.Context, iterations int) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Started: time.Now()}
	defer func() { res.Finished = time.Now() }()

	h.logger.Info("hyperband run started",
		"run_id", res.RunID,
		"iterations", iterations,
		"eta", h.opts.Eta,
		"budgets", h.budgets,
	)

	for i := 0; i < iterations; i++ {
		if err := h.iteration(ctx, i, res); err != nil {
			return res, err
		}
	}

	if best, ok := res.Incumbent(); ok {
		h.logger.Info("hyperband run finished",
			"run_id", res.RunID,
			"jobs", len(res.Jobs),
			"best_loss", best.Loss(),
			"best_budget", best.Budget,
		)
	}
	return res, nil
}

type candidate struct {
	cfg  space.Config
	loss float64
}

func (h *Hyperband) iteration(ctx context.Context, i int, res *Result) error {
	ns, budgets := h.Bracket(i)
	h.logger.Debug("successive halving bracket",
		"iteration", i,
		"num_configs", ns,
		"budgets", budgets,
	)

	stage := make([]candidate, 0, ns[0])
	for k := 0; k < ns[0]; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := h.gen.GetConfig(ctx, budgets[0])
		if err != nil {
			return fmt.Errorf("failed to get config: %w", err)
		}
		stage = append(stage, candidate{cfg: s.Config})
	}

	for j, budget := range budgets {
		if j > 0 {
			sort.SliceStable(stage, func(a, b int) bool { return stage[a].loss < stage[b].loss })
			stage = stage[:min(ns[j], len(stage))]
		}
		for k := range stage {
			loss, err := h.run(ctx, stage[k].cfg, budget, res)
			if err != nil {
				return err
			}
			stage[k].loss = loss
		}
	}
	return nil
}

func (h *Hyperband) run(ctx context.Context, cfg space.Config, budget float64, res *Result) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	job := generator.Job{ID: uuid.NewString(), Config: cfg, Budget: budget}
	result, err := h.eval.Evaluate(ctx, cfg, budget)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		h.logger.Warn("evaluation failed",
			"job_id", job.ID,
			"budget", budget,
			"error", err,
		)
	} else {
		job.Result = result
	}

	if err := h.gen.NewResult(job); err != nil {
		return 0, fmt.Errorf("failed to record job %s: %w", job.ID, err)
	}
	res.Jobs = append(res.Jobs, job)
	if h.onJob != nil {
		h.onJob(res.RunID, job)
	}

	h.logger.Debug("job finished",
		"job_id", job.ID,
		"budget", budget,
		"loss", job.Loss(),
	)
	return job.Loss(), nil
}
