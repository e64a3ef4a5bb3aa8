package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// layer is an affine map x*W + b. W is in x out, b is 1 x out.
type layer struct {
	W *mat.Dense
	b *mat.Dense
}

// Dense is a feed-forward binary classifier: NumLayers hidden layers of
// NumUnits units followed by a single linear output unit (the logit).
type Dense struct {
	opts   Options
	act    activation
	hidden []layer
	out    layer
	rng    *rand.Rand
	opt    *adam
}

type denseState struct {
	Type    Type          `json:"type"`
	Options Options       `json:"options"`
	Weights []matrixState `json:"weights"`
}

type denseCache struct {
	as     []*mat.Dense // as[0] is the input, as[l+1] the output of hidden layer l
	zs     []*mat.Dense
	logits *mat.Dense
}

// NewDense creates a feed-forward classifier with freshly initialized
// weights.
func NewDense(opts Options) (*Dense, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	act, _ := lookupActivation(opts.Activation)

	d := &Dense{
		opts: opts,
		act:  act,
		rng:  rand.New(rand.NewPCG(opts.Seed, 0x64656e7365)),
	}

	in := opts.InputDim
	for i := 0; i < opts.NumLayers; i++ {
		d.hidden = append(d.hidden, layer{
			W: glorot(d.rng, in, opts.NumUnits),
			b: mat.NewDense(1, opts.NumUnits, nil),
		})
		in = opts.NumUnits
	}
	d.out = layer{W: glorot(d.rng, in, 1), b: mat.NewDense(1, 1, nil)}
	d.opt = newAdam(opts.LearningRate, d.params())

	return d, nil
}

// Options returns the network options.
func (d *Dense) Options() Options {
	return d.opts
}

func (d *Dense) params() []*mat.Dense {
	ps := make([]*mat.Dense, 0, 2*len(d.hidden)+2)
	for _, l := range d.hidden {
		ps = append(ps, l.W, l.b)
	}
	return append(ps, d.out.W, d.out.b)
}

func (d *Dense) forward(X *mat.Dense) *denseCache {
	n, _ := X.Dims()
	c := &denseCache{as: []*mat.Dense{X}}

	a := X
	for _, l := range d.hidden {
		_, units := l.W.Dims()
		z := mat.NewDense(n, units, nil)
		z.Mul(a, l.W)
		addBias(z, l.b)

		h := mat.NewDense(n, units, nil)
		h.Apply(func(_, _ int, v float64) float64 { return d.act.f(v) }, z)

		c.zs = append(c.zs, z)
		c.as = append(c.as, h)
		a = h
	}

	c.logits = mat.NewDense(n, 1, nil)
	c.logits.Mul(a, d.out.W)
	addBias(c.logits, d.out.b)
	return c
}

// backward propagates dLogits (n x 1) through the network and returns the
// parameter gradients, ordered like params, and the gradient of the input.
func (d *Dense) backward(c *denseCache, dLogits *mat.Dense) ([]*mat.Dense, *mat.Dense) {
	L := len(d.hidden)
	grads := make([]*mat.Dense, 2*L+2)

	gW := &mat.Dense{}
	gW.Mul(c.as[L].T(), dLogits)
	grads[2*L] = gW
	grads[2*L+1] = colSums(dLogits)

	dA := &mat.Dense{}
	dA.Mul(dLogits, d.out.W.T())

	for l := L - 1; l >= 0; l-- {
		z := c.zs[l]
		dZ := &mat.Dense{}
		dZ.Apply(func(i, j int, v float64) float64 { return v * d.act.df(z.At(i, j)) }, dA)

		gW := &mat.Dense{}
		gW.Mul(c.as[l].T(), dZ)
		grads[2*l] = gW
		grads[2*l+1] = colSums(dZ)

		next := &mat.Dense{}
		next.Mul(dZ, d.hidden[l].W.T())
		dA = next
	}

	return grads, dA
}

func (d *Dense) checkData(X [][]float64, z []float64) error {
	if len(X) != len(z) {
		return fmt.Errorf("got %d rows and %d labels", len(X), len(z))
	}
	return checkRows(X, d.opts.InputDim)
}

// Fit trains with mini-batch Adam on binary cross-entropy.
func (d *Dense) Fit(X [][]float64, z []float64, opts FitOptions) error {
	if err := opts.validate(len(X)); err != nil {
		return err
	}
	if err := d.checkData(X, z); err != nil {
		return err
	}

	n := len(X)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	params := d.params()
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		d.rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		for start := 0; start < n; start += opts.BatchSize {
			batch := idx[start:min(start+opts.BatchSize, n)]
			c := d.forward(rowsOf(X, batch, d.opts.InputDim))

			m := float64(len(batch))
			dl := mat.NewDense(len(batch), 1, nil)
			for i, k := range batch {
				_, g := bceWithLogits(c.logits.At(i, 0), z[k])
				dl.Set(i, 0, g/m)
			}

			grads, _ := d.backward(c, dl)
			if d.opts.L2 > 0 {
				for i, p := range params {
					addScaled(grads[i], 2*d.opts.L2, p)
				}
			}
			d.opt.update(params, grads)
		}
	}

	for _, p := range params {
		for _, v := range p.RawMatrix().Data {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("training diverged: non-finite weights")
			}
		}
	}
	return nil
}

// Evaluate returns mean binary cross-entropy and accuracy.
func (d *Dense) Evaluate(X [][]float64, z []float64) (Metrics, error) {
	if len(X) == 0 {
		return Metrics{}, fmt.Errorf("no evaluation data")
	}
	if err := d.checkData(X, z); err != nil {
		return Metrics{}, err
	}

	idx := make([]int, len(X))
	for i := range idx {
		idx[i] = i
	}
	c := d.forward(rowsOf(X, idx, d.opts.InputDim))

	var total float64
	var correct int
	for i := range X {
		l := c.logits.At(i, 0)
		loss, _ := bceWithLogits(l, z[i])
		total += loss
		if (l > 0) == (z[i] > 0.5) {
			correct++
		}
	}

	n := float64(len(X))
	return Metrics{Loss: total / n, Accuracy: float64(correct) / n}, nil
}

// Logit returns the logit at x and, when grad is non-nil, its gradient.
func (d *Dense) Logit(x, grad []float64) float64 {
	X := mat.NewDense(1, d.opts.InputDim, nil)
	X.SetRow(0, x)
	c := d.forward(X)

	if grad != nil {
		_, dX := d.backward(c, mat.NewDense(1, 1, []float64{1}))
		copy(grad, dX.RawRowView(0))
	}
	return c.logits.At(0, 0)
}

// Save serializes options and weights as JSON.
func (d *Dense) Save(w io.Writer) error {
	state := denseState{Type: TypeDense, Options: d.opts}
	for _, p := range d.params() {
		state.Weights = append(state.Weights, toState(p))
	}
	return json.NewEncoder(w).Encode(state)
}

// Load replaces options and weights with a saved state of the same input
// dimension. Optimizer moments start over.
func (d *Dense) Load(r io.Reader) error {
	var state denseState
	if err := json.NewDecoder(r).Decode(&state); err != nil {
		return err
	}
	if state.Type != TypeDense {
		return fmt.Errorf("expected %s classifier state, got %q", TypeDense, state.Type)
	}
	if d.opts.InputDim != 0 && state.Options.InputDim != d.opts.InputDim {
		return fmt.Errorf("saved state has input dimension %d, expected %d", state.Options.InputDim, d.opts.InputDim)
	}

	fresh, err := NewDense(state.Options)
	if err != nil {
		return err
	}
	params := fresh.params()
	if len(state.Weights) != len(params) {
		return fmt.Errorf("expected %d weight matrices, got %d", len(params), len(state.Weights))
	}
	for i, p := range params {
		r, c := p.Dims()
		m, err := fromState(state.Weights[i], r, c)
		if err != nil {
			return err
		}
		p.Copy(m)
	}

	*d = *fresh
	return nil
}
