// Package generator proposes configurations to evaluate next by estimating
// the density ratio with a probabilistic classifier: configurations whose
// loss falls in the best gamma-quantile are labelled positive, the
// classifier is fit, and its output is maximized over the space.
//
// RatioEstimator handles single-fidelity search. SequenceGenerator handles
// multi-fidelity search with one classifier output per budget rung.
package generator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/haskel/bore/internal/classifier"
	"github.com/haskel/bore/internal/optimize"
	"github.com/haskel/bore/internal/record"
	"github.com/haskel/bore/internal/space"
)

// Suggestion sources.
const (
	SourceInitial  = "initial"
	SourceExplore  = "explore"
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// ConfigGenerator is what a scheduler needs from a generator.
type ConfigGenerator interface {
	// GetConfig proposes a configuration to evaluate at budget.
	GetConfig(ctx context.Context, budget float64) (Suggestion, error)

	// NewResult records a finished evaluation.
	NewResult(job Job) error
}

// Suggestion is a proposed configuration with side information.
type Suggestion struct {
	Config space.Config `json:"config"`
	Info   Info         `json:"info"`
}

// Info describes how a suggestion was produced.
type Info struct {
	Source string `json:"source"`
	// Reason is set for fallbacks: all_failed, all_duplicates, mixed or canceled.
	Reason string `json:"reason,omitempty"`
	// Value is the acquisition value of the optimum for model suggestions.
	Value *float64 `json:"value,omitempty"`
	// Rung is the rung whose head was maximized.
	Rung *int `json:"rung,omitempty"`
	// Distorted reports whether the optimum was perturbed.
	Distorted bool `json:"distorted,omitempty"`
}

// Job is a finished evaluation.
type Job struct {
	ID     string       `json:"id,omitempty"`
	Config space.Config `json:"config"`
	Budget float64      `json:"budget"`
	// Result is nil when the evaluation failed.
	Result *JobResult `json:"result,omitempty"`
}

// JobResult is the outcome of a successful evaluation.
type JobResult struct {
	Loss float64        `json:"loss"`
	Info map[string]any `json:"info,omitempty"`
}

// Loss returns the loss to record. Failed evaluations and NaN losses rank
// last with +Inf.
func (j Job) Loss() float64 {
	if j.Result == nil || math.IsNaN(j.Result.Loss) {
		return math.Inf(1)
	}
	return j.Result.Loss
}

// checkedLoss is Loss, rejecting -Inf, which would rank below every finite
// loss and cannot be persisted.
func (j Job) checkedLoss() (float64, error) {
	loss := j.Loss()
	if math.IsInf(loss, -1) {
		return 0, fmt.Errorf("%w: loss must not be -Inf", record.ErrInvalidParameter)
	}
	return loss, nil
}

// Model is the persistable classifier behind a generator.
type Model interface {
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Observer receives measurements of the suggestion cycle.
type Observer interface {
	Suggested(source, reason string)
	Fitted(d time.Duration, m classifier.Metrics, size int)
	Maximized(d time.Duration, s optimize.Summary)
	Observed(loss, budget float64)
}

type noopObserver struct{}

func (noopObserver) Suggested(string, string)                       {}
func (noopObserver) Fitted(time.Duration, classifier.Metrics, int) {}
func (noopObserver) Maximized(time.Duration, optimize.Summary)      {}
func (noopObserver) Observed(float64, float64)                      {}

// Options configures a generator.
type Options struct {
	// Gamma is the quantile of losses labelled positive.
	Gamma float64
	// NumRandomInit is the number of observations (or, for multi-fidelity
	// search, the rung size) needed before the classifier is used.
	NumRandomInit int
	// RandomRate is the probability of proposing a random configuration
	// instead of the optimum. Zero disables it.
	RandomRate float64
	// Retrain rebuilds the classifier from scratch before every fit.
	Retrain bool

	BatchSize       int
	NumStepsPerIter int
	// NumEpochs overrides the epoch count derived from NumStepsPerIter.
	NumEpochs int

	Transform  string
	Method     string
	NumStarts  int
	NumSamples int
	MaxIter    int
	FTol       float64
	// Distortion is the scale of the truncated normal applied to the
	// optimum. Zero disables it.
	Distortion float64
	// Restart selects single-batch best-of maximization. Otherwise batches
	// are restarted until an acceptable new optimum is found.
	Restart bool
	// MaxBatches caps restarts. Zero means unbounded.
	MaxBatches int

	Seed uint64
}

// DefaultOptions returns the defaults of the single-fidelity generator.
func DefaultOptions() Options {
	return Options{
		Gamma:           1.0 / 3,
		NumRandomInit:   10,
		RandomRate:      0.25,
		BatchSize:       64,
		NumStepsPerIter: 1000,
		Transform:       classifier.TransformSigmoid,
		Method:          optimize.MethodLBFGS,
		NumStarts:       10,
		NumSamples:      0,
		MaxIter:         100,
		FTol:            1e-2,
	}
}

// Validate checks the options. Every problem wraps record.ErrInvalidParameter.
func (o Options) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{record.ErrInvalidParameter}, args...)...))
	}

	if err := record.ValidateGamma(o.Gamma); err != nil {
		errs = append(errs, err)
	}
	if o.NumRandomInit <= 0 {
		invalid("num_random_init must be positive, got %d", o.NumRandomInit)
	}
	if !(o.RandomRate >= 0 && o.RandomRate < 1) {
		invalid("random_rate must be in [0, 1), got %v", o.RandomRate)
	}
	if o.BatchSize <= 0 {
		invalid("batch_size must be positive, got %d", o.BatchSize)
	}
	if o.NumStepsPerIter <= 0 && o.NumEpochs <= 0 {
		invalid("num_steps_per_iter must be positive when num_epochs is not set, got %d", o.NumStepsPerIter)
	}
	if o.NumEpochs < 0 {
		invalid("num_epochs must be non-negative, got %d", o.NumEpochs)
	}
	if _, err := classifier.LookupTransform(o.Transform); err != nil {
		invalid("%v", err)
	}
	if _, err := optimize.NewLocal(o.Method, optimize.Options{MaxIter: o.MaxIter, FTol: o.FTol}); err != nil {
		invalid("%v", err)
	}
	if o.NumStarts <= 0 {
		invalid("num_starts must be positive, got %d", o.NumStarts)
	}
	if o.NumSamples < 0 {
		invalid("num_samples must be non-negative, got %d", o.NumSamples)
	}
	if !(o.Distortion >= 0) || math.IsInf(o.Distortion, 1) {
		invalid("distortion must be non-negative, got %v", o.Distortion)
	}
	if o.MaxBatches < 0 {
		invalid("max_batches must be non-negative, got %d", o.MaxBatches)
	}

	return errors.Join(errs...)
}

// StepsPerEpoch returns the number of mini-batches in one pass over size rows.
func StepsPerEpoch(size, batchSize int) int {
	return int(math.Ceil(float64(size) / float64(batchSize)))
}

// epochs returns the explicit NumEpochs when set, otherwise
// NumStepsPerIter / StepsPerEpoch, and never less than one.
func (o Options) epochs(size int) int {
	n := o.NumEpochs
	if n <= 0 {
		n = o.NumStepsPerIter / max(StepsPerEpoch(size, o.BatchSize), 1)
	}
	return max(n, 1)
}
