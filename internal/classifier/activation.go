package classifier

import (
	"fmt"
	"math"
)

// Activation names.
const (
	ActivationReLU    = "relu"
	ActivationELU     = "elu"
	ActivationTanh    = "tanh"
	ActivationSigmoid = "sigmoid"
)

// activation maps a pre-activation z to its output and derivative.
type activation struct {
	f  func(z float64) float64
	df func(z float64) float64
}

var activations = map[string]activation{
	ActivationReLU: {
		f: func(z float64) float64 { return math.Max(z, 0) },
		df: func(z float64) float64 {
			if z > 0 {
				return 1
			}
			return 0
		},
	},
	ActivationELU: {
		f: func(z float64) float64 {
			if z > 0 {
				return z
			}
			return math.Expm1(z)
		},
		df: func(z float64) float64 {
			if z > 0 {
				return 1
			}
			return math.Exp(z)
		},
	},
	ActivationTanh: {
		f: math.Tanh,
		df: func(z float64) float64 {
			t := math.Tanh(z)
			return 1 - t*t
		},
	},
	ActivationSigmoid: {
		f: Sigmoid,
		df: func(z float64) float64 {
			s := Sigmoid(z)
			return s * (1 - s)
		},
	},
}

func lookupActivation(name string) (activation, error) {
	a, ok := activations[name]
	if !ok {
		return activation{}, fmt.Errorf("unknown activation: %q", name)
	}
	return a, nil
}

// Sigmoid is the logistic function.
func Sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// Transform names.
const (
	TransformSigmoid  = "sigmoid"
	TransformIdentity = "identity"
	TransformExp      = "exp"
)

// Transform maps a logit to the acquisition value.
type Transform struct {
	Name string
	F    func(l float64) float64
	// DF is the derivative of F.
	DF func(l float64) float64
}

var transforms = map[string]Transform{
	TransformSigmoid: {
		Name: TransformSigmoid,
		F:    Sigmoid,
		DF: func(l float64) float64 {
			s := Sigmoid(l)
			return s * (1 - s)
		},
	},
	TransformIdentity: {
		Name: TransformIdentity,
		F:    func(l float64) float64 { return l },
		DF:   func(float64) float64 { return 1 },
	},
	TransformExp: {
		Name: TransformExp,
		F:    math.Exp,
		DF:   math.Exp,
	},
}

// LookupTransform returns the named transform.
func LookupTransform(name string) (Transform, error) {
	t, ok := transforms[name]
	if !ok {
		return Transform{}, fmt.Errorf("unknown transform: %q (must be sigmoid, identity or exp)", name)
	}
	return t, nil
}

// Negated returns f(x) = -T(logit(x)) with its gradient: the function the
// acquisition optimizer minimizes.
func (t Transform) Negated(logit LogitFunc) func(x, grad []float64) float64 {
	return func(x, grad []float64) float64 {
		l := logit(x, grad)
		if grad != nil {
			d := -t.DF(l)
			for i := range grad {
				grad[i] *= d
			}
		}
		return -t.F(l)
	}
}

// bceWithLogits returns the binary cross-entropy of logit l against label z
// and its derivative with respect to l.
func bceWithLogits(l, z float64) (float64, float64) {
	loss := math.Max(l, 0) - l*z + math.Log1p(math.Exp(-math.Abs(l)))
	return loss, Sigmoid(l) - z
}
