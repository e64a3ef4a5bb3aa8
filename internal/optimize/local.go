package optimize

import (
	"fmt"
	"math"
	"strings"

	gopt "gonum.org/v1/gonum/optimize"
)

// Method names accepted by NewLocal.
const (
	MethodLBFGS           = "lbfgs"
	MethodBFGS            = "bfgs"
	MethodCG              = "cg"
	MethodGradientDescent = "gradient_descent"
	MethodNelderMead      = "nelder_mead"
)

// boxEps keeps start points strictly inside the box so the logit of the
// reparametrisation stays finite.
const boxEps = 1e-9

// Local is a bounded local minimizer. The box is handled by the change of
// variables x = lower + (upper-lower)*sigmoid(v), which lets gonum's
// unconstrained methods search over v.
type Local struct {
	method string
	opts   Options
}

// NewLocal creates a local minimizer for the named method.
func NewLocal(method string, opts Options) (*Local, error) {
	m := normalizeMethod(method)
	if _, err := newMethod(m); err != nil {
		return nil, err
	}
	if opts.MaxIter <= 0 {
		return nil, fmt.Errorf("max_iter must be positive, got %d", opts.MaxIter)
	}
	if opts.FTol < 0 {
		return nil, fmt.Errorf("ftol must be non-negative, got %v", opts.FTol)
	}
	return &Local{method: m, opts: opts}, nil
}

// Method returns the normalized method name.
func (l *Local) Method() string {
	return l.method
}

func normalizeMethod(method string) string {
	m := strings.ToLower(strings.TrimSpace(method))
	m = strings.ReplaceAll(m, "-", "_")
	switch m {
	case "", "l_bfgs_b", "l_bfgs", "lbfgsb":
		return MethodLBFGS
	case "nelder_mead", "neldermead":
		return MethodNelderMead
	case "gd":
		return MethodGradientDescent
	}
	return m
}

func newMethod(name string) (gopt.Method, error) {
	switch name {
	case MethodLBFGS:
		return &gopt.LBFGS{}, nil
	case MethodBFGS:
		return &gopt.BFGS{}, nil
	case MethodCG:
		return &gopt.CG{}, nil
	case MethodGradientDescent:
		return &gopt.GradientDescent{}, nil
	case MethodNelderMead:
		return &gopt.NelderMead{}, nil
	default:
		return nil, fmt.Errorf("unknown optimization method: %s", name)
	}
}

// Minimize runs one local search from x0.
func (l *Local) Minimize(f Objective, bounds Bounds, x0 []float64) *Result {
	dim := bounds.Dim()
	width := make([]float64, dim)
	for i := range width {
		width[i] = bounds.Upper[i] - bounds.Lower[i]
	}

	toBox := func(v []float64) []float64 {
		x := make([]float64, dim)
		for i := range x {
			x[i] = bounds.Lower[i] + width[i]*sigmoid(v[i])
		}
		return x
	}

	v0 := make([]float64, dim)
	for i := range v0 {
		if width[i] == 0 {
			continue
		}
		p := (x0[i] - bounds.Lower[i]) / width[i]
		p = math.Min(math.Max(p, boxEps), 1-boxEps)
		v0[i] = math.Log(p / (1 - p))
	}

	problem := gopt.Problem{
		Func: func(v []float64) float64 {
			return f(toBox(v), nil)
		},
		Grad: func(grad, v []float64) {
			gx := make([]float64, dim)
			f(toBox(v), gx)
			for i := range grad {
				s := sigmoid(v[i])
				grad[i] = gx[i] * width[i] * s * (1 - s)
			}
		},
	}

	settings := &gopt.Settings{
		MajorIterations: l.opts.MaxIter,
		Converger: &gopt.FunctionConverge{
			Absolute:   l.opts.FTol,
			Relative:   l.opts.FTol,
			Iterations: 1,
		},
	}

	method, _ := newMethod(l.method)
	res, err := gopt.Minimize(problem, v0, settings, method)
	if res == nil {
		msg := "minimizer returned no result"
		if err != nil {
			msg = err.Error()
		}
		return &Result{
			X:       bounds.Clip(x0),
			Fun:     math.Inf(1),
			Status:  StatusFailure,
			Message: msg,
		}
	}

	out := &Result{
		X:          bounds.Clip(toBox(res.X)),
		Fun:        res.F,
		Iterations: res.Stats.MajorIterations,
		Message:    res.Status.String(),
	}

	switch res.Status {
	case gopt.Success, gopt.FunctionThreshold, gopt.FunctionConvergence,
		gopt.GradientThreshold, gopt.StepConvergence, gopt.MethodConverge:
		out.Success = true
		out.Status = StatusSuccess
	case gopt.IterationLimit:
		out.Status = StatusIterationLimit
	default:
		out.Status = StatusFailure
	}

	if err != nil && out.Status == StatusSuccess {
		out.Success = false
		out.Status = StatusFailure
	}
	if err != nil {
		out.Message = err.Error()
	}
	if math.IsNaN(out.Fun) || math.IsInf(out.Fun, 0) {
		out.Success = false
		out.Status = StatusFailure
		out.Message = "non-finite objective value"
	}

	return out
}

func sigmoid(v float64) float64 {
	if v >= 0 {
		return 1 / (1 + math.Exp(-v))
	}
	e := math.Exp(v)
	return e / (1 + e)
}
