// Package classifier provides the probabilistic classifiers that estimate the
// density ratio: a feed-forward network over configuration vectors and a
// stacked recurrent network that reads one output per budget rung.
//
// Both are trained with binary cross-entropy on logits and expose the logit
// as a function of the input vector together with its gradient, which is
// what the acquisition optimizer maximizes.
package classifier

import (
	"errors"
	"fmt"
	"io"
	"math"
)

// LogitFunc returns the classifier logit at x. When grad is non-nil it also
// writes the gradient of the logit with respect to x into grad.
type LogitFunc func(x, grad []float64) float64

// Metrics is the outcome of Evaluate.
type Metrics struct {
	Loss     float64 `json:"loss"`
	Accuracy float64 `json:"accuracy"`
}

// FitOptions controls one call to Fit.
type FitOptions struct {
	Epochs    int
	BatchSize int
}

func (o FitOptions) validate(n int) error {
	if o.Epochs <= 0 {
		return fmt.Errorf("epochs must be positive, got %d", o.Epochs)
	}
	if o.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", o.BatchSize)
	}
	if n == 0 {
		return errors.New("no training data")
	}
	return nil
}

// Classifier labels single configuration vectors.
type Classifier interface {
	// Fit trains on rows X with binary labels z.
	Fit(X [][]float64, z []float64, opts FitOptions) error

	// Evaluate returns mean loss and accuracy on X and z.
	Evaluate(X [][]float64, z []float64) (Metrics, error)

	// Logit is the maximizable score.
	Logit(x, grad []float64) float64

	// Persistence
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// SequenceClassifier labels a configuration at every rung. Targets equal to
// the mask value are padding and take no part in training.
type SequenceClassifier interface {
	// Fit trains on inputs with one target sequence per row.
	Fit(inputs [][]float64, targets [][]float64, opts FitOptions) error

	// Evaluate returns mean loss and accuracy over unmasked targets.
	Evaluate(inputs [][]float64, targets [][]float64) (Metrics, error)

	// Head returns the logit at rung t. Heads share the trained weights, so
	// a head built once stays valid across later fits.
	Head(t int) LogitFunc

	// Persistence
	Save(w io.Writer) error
	Load(r io.Reader) error
}

// Type is the kind of network.
type Type string

const (
	TypeDense     Type = "dense"
	TypeRecurrent Type = "recurrent"
)

// IsValid checks if the classifier type is valid.
func (t Type) IsValid() bool {
	switch t {
	case TypeDense, TypeRecurrent:
		return true
	}
	return false
}

// Options configures a network.
type Options struct {
	InputDim     int     `json:"input_dim"`
	NumLayers    int     `json:"num_layers"`
	NumUnits     int     `json:"num_units"`
	Activation   string  `json:"activation"`
	LearningRate float64 `json:"learning_rate"`
	// L2 adds L2*sum(w^2) over kernels and biases to the loss. Zero disables it.
	L2 float64 `json:"l2_factor"`
	// MaskValue marks padded targets of a SequenceClassifier.
	MaskValue float64 `json:"mask_value"`
	Seed      uint64  `json:"seed"`
}

// DefaultOptions returns the defaults for a network over inputDim features.
func DefaultOptions(inputDim int) Options {
	return Options{
		InputDim:     inputDim,
		NumLayers:    2,
		NumUnits:     32,
		Activation:   ActivationReLU,
		LearningRate: 1e-3,
		MaskValue:    1e-9,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	var errs []error
	if o.InputDim <= 0 {
		errs = append(errs, fmt.Errorf("input_dim must be positive, got %d", o.InputDim))
	}
	if o.NumLayers <= 0 {
		errs = append(errs, fmt.Errorf("num_layers must be positive, got %d", o.NumLayers))
	}
	if o.NumUnits <= 0 {
		errs = append(errs, fmt.Errorf("num_units must be positive, got %d", o.NumUnits))
	}
	if _, err := lookupActivation(o.Activation); err != nil {
		errs = append(errs, err)
	}
	if !(o.LearningRate > 0) {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %v", o.LearningRate))
	}
	if o.L2 < 0 || math.IsNaN(o.L2) {
		errs = append(errs, fmt.Errorf("l2_factor must be non-negative, got %v", o.L2))
	}
	if o.MaskValue == 0 || o.MaskValue == 1 || math.IsNaN(o.MaskValue) {
		errs = append(errs, fmt.Errorf("mask_value must differ from the labels 0 and 1, got %v", o.MaskValue))
	}
	return errors.Join(errs...)
}

// Factory builds networks from fixed options. Building again yields fresh
// weights, which is how a generator retrains from scratch.
type Factory struct {
	opts Options
}

// NewFactory creates a factory after validating opts.
func NewFactory(opts Options) (*Factory, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Factory{opts: opts}, nil
}

// Options returns the options networks are built with.
func (f *Factory) Options() Options {
	return f.opts
}

// Dense builds a fresh feed-forward classifier.
func (f *Factory) Dense() *Dense {
	d, _ := NewDense(f.opts)
	return d
}

// Recurrent builds a fresh stacked recurrent classifier.
func (f *Factory) Recurrent() *Recurrent {
	r, _ := NewRecurrent(f.opts)
	return r
}
