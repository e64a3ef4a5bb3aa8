package classifier

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// adam keeps first and second moment estimates for a fixed list of
// parameter matrices.
type adam struct {
	lr   float64
	step int
	m    []*mat.Dense
	v    []*mat.Dense
}

func newAdam(lr float64, params []*mat.Dense) *adam {
	a := &adam{lr: lr}
	for _, p := range params {
		r, c := p.Dims()
		a.m = append(a.m, mat.NewDense(r, c, nil))
		a.v = append(a.v, mat.NewDense(r, c, nil))
	}
	return a
}

// update applies one step. grads[i] is the gradient of params[i].
func (a *adam) update(params, grads []*mat.Dense) {
	a.step++
	t := float64(a.step)
	lrT := a.lr * math.Sqrt(1-math.Pow(adamBeta2, t)) / (1 - math.Pow(adamBeta1, t))

	for i, p := range params {
		pd := p.RawMatrix().Data
		gd := grads[i].RawMatrix().Data
		md := a.m[i].RawMatrix().Data
		vd := a.v[i].RawMatrix().Data
		for j, g := range gd {
			md[j] = adamBeta1*md[j] + (1-adamBeta1)*g
			vd[j] = adamBeta2*vd[j] + (1-adamBeta2)*g*g
			pd[j] -= lrT * md[j] / (math.Sqrt(vd[j]) + adamEpsilon)
		}
	}
}
