package classifier

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// cell is one Elman layer: h_t = act(in_t*Wx + h_{t-1}*Wh + b).
type cell struct {
	Wx *mat.Dense
	Wh *mat.Dense
	b  *mat.Dense
}

// Recurrent is a stacked recurrent classifier over sequences whose input at
// every step is the same configuration vector. Step t produces the logit for
// rung t. A step whose target is the mask value neither contributes to the
// loss nor updates the state, which carries over to the next step.
type Recurrent struct {
	opts  Options
	act   activation
	cells []cell
	out   layer
	rng   *rand.Rand
	opt   *adam
}

type recurrentState struct {
	Type    Type          `json:"type"`
	Options Options       `json:"options"`
	Weights []matrixState `json:"weights"`
}

type recurrentCache struct {
	steps  int
	ins    [][]*mat.Dense // ins[t][l] is the input of layer l at step t
	zs     [][]*mat.Dense
	hs     [][]*mat.Dense // hs[t][l] is the state of layer l before step t
	masks  [][]bool       // masks[t][i] is true when row i is updated at step t
	logits []*mat.Dense
}

// NewRecurrent creates a stacked recurrent classifier with freshly
// initialized weights.
func NewRecurrent(opts Options) (*Recurrent, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	act, _ := lookupActivation(opts.Activation)

	r := &Recurrent{
		opts: opts,
		act:  act,
		rng:  rand.New(rand.NewPCG(opts.Seed, 0x726e6e)),
	}

	in := opts.InputDim
	for i := 0; i < opts.NumLayers; i++ {
		r.cells = append(r.cells, cell{
			Wx: glorot(r.rng, in, opts.NumUnits),
			Wh: glorot(r.rng, opts.NumUnits, opts.NumUnits),
			b:  mat.NewDense(1, opts.NumUnits, nil),
		})
		in = opts.NumUnits
	}
	r.out = layer{W: glorot(r.rng, in, 1), b: mat.NewDense(1, 1, nil)}
	r.opt = newAdam(opts.LearningRate, r.params())

	return r, nil
}

// Options returns the network options.
func (r *Recurrent) Options() Options {
	return r.opts
}

func (r *Recurrent) params() []*mat.Dense {
	ps := make([]*mat.Dense, 0, 3*len(r.cells)+2)
	for _, c := range r.cells {
		ps = append(ps, c.Wx, c.Wh, c.b)
	}
	return append(ps, r.out.W, r.out.b)
}

// forward runs steps steps over X. A nil masks updates every row at every
// step.
func (r *Recurrent) forward(X *mat.Dense, steps int, masks [][]bool) *recurrentCache {
	n, _ := X.Dims()
	units := r.opts.NumUnits

	c := &recurrentCache{
		steps:  steps,
		ins:    make([][]*mat.Dense, steps),
		zs:     make([][]*mat.Dense, steps),
		hs:     make([][]*mat.Dense, steps+1),
		masks:  masks,
		logits: make([]*mat.Dense, steps),
	}
	c.hs[0] = make([]*mat.Dense, len(r.cells))
	for l := range r.cells {
		c.hs[0][l] = mat.NewDense(n, units, nil)
	}

	for t := 0; t < steps; t++ {
		c.ins[t] = make([]*mat.Dense, len(r.cells))
		c.zs[t] = make([]*mat.Dense, len(r.cells))
		c.hs[t+1] = make([]*mat.Dense, len(r.cells))

		in := X
		for l, cl := range r.cells {
			prev := c.hs[t][l]

			z := mat.NewDense(n, units, nil)
			z.Mul(in, cl.Wx)
			var rec mat.Dense
			rec.Mul(prev, cl.Wh)
			z.Add(z, &rec)
			addBias(z, cl.b)

			h := mat.NewDense(n, units, nil)
			h.Apply(func(_, _ int, v float64) float64 { return r.act.f(v) }, z)
			if masks != nil {
				for i, keep := range masks[t] {
					if !keep {
						h.SetRow(i, prev.RawRowView(i))
					}
				}
			}

			c.ins[t][l] = in
			c.zs[t][l] = z
			c.hs[t+1][l] = h
			in = h
		}

		logits := mat.NewDense(n, 1, nil)
		logits.Mul(in, r.out.W)
		addBias(logits, r.out.b)
		c.logits[t] = logits
	}

	return c
}

// backward propagates per-step logit gradients (nil for steps without
// output) through time. It returns parameter gradients, ordered like
// params, and the gradient of the input summed over steps.
func (r *Recurrent) backward(c *recurrentCache, dLogits []*mat.Dense) ([]*mat.Dense, *mat.Dense) {
	n, inputDim := c.ins[0][0].Dims()
	units := r.opts.NumUnits
	L := len(r.cells)

	grads := make([]*mat.Dense, 0, 3*L+2)
	for _, p := range r.params() {
		rows, cols := p.Dims()
		grads = append(grads, mat.NewDense(rows, cols, nil))
	}
	gWo, gbo := grads[3*L], grads[3*L+1]

	carry := make([]*mat.Dense, L)
	for l := range carry {
		carry[l] = mat.NewDense(n, units, nil)
	}
	dX := mat.NewDense(n, inputDim, nil)

	for t := c.steps - 1; t >= 0; t-- {
		var fromAbove *mat.Dense
		if dl := dLogits[t]; dl != nil {
			var g mat.Dense
			g.Mul(c.hs[t+1][L-1].T(), dl)
			gWo.Add(gWo, &g)
			gbo.Add(gbo, colSums(dl))

			fromAbove = &mat.Dense{}
			fromAbove.Mul(dl, r.out.W.T())
		}

		for l := L - 1; l >= 0; l-- {
			cl := r.cells[l]

			dH := mat.NewDense(n, units, nil)
			dH.Copy(carry[l])
			if fromAbove != nil {
				dH.Add(dH, fromAbove)
			}

			// Rows that were masked pass their gradient straight to the
			// previous state.
			passed := mat.NewDense(n, units, nil)
			if c.masks != nil {
				for i, keep := range c.masks[t] {
					if !keep {
						passed.SetRow(i, dH.RawRowView(i))
						for j := range dH.RawRowView(i) {
							dH.Set(i, j, 0)
						}
					}
				}
			}

			z := c.zs[t][l]
			dZ := &mat.Dense{}
			dZ.Apply(func(i, j int, v float64) float64 { return v * r.act.df(z.At(i, j)) }, dH)

			var g mat.Dense
			g.Mul(c.ins[t][l].T(), dZ)
			grads[3*l].Add(grads[3*l], &g)
			g.Reset()
			g.Mul(c.hs[t][l].T(), dZ)
			grads[3*l+1].Add(grads[3*l+1], &g)
			grads[3*l+2].Add(grads[3*l+2], colSums(dZ))

			var rec mat.Dense
			rec.Mul(dZ, cl.Wh.T())
			passed.Add(passed, &rec)
			carry[l] = passed

			fromAbove = &mat.Dense{}
			fromAbove.Mul(dZ, cl.Wx.T())
		}

		dX.Add(dX, fromAbove)
	}

	return grads, dX
}

func (r *Recurrent) checkData(inputs, targets [][]float64) (int, error) {
	if len(inputs) != len(targets) {
		return 0, fmt.Errorf("got %d inputs and %d target sequences", len(inputs), len(targets))
	}
	if err := checkRows(inputs, r.opts.InputDim); err != nil {
		return 0, err
	}
	steps := len(targets[0])
	if steps == 0 {
		return 0, fmt.Errorf("target sequences are empty")
	}
	for i, seq := range targets {
		if len(seq) != steps {
			return 0, fmt.Errorf("target sequence %d has %d steps, expected %d", i, len(seq), steps)
		}
	}
	return steps, nil
}

func (r *Recurrent) masksFor(targets [][]float64, idx []int, steps int) [][]bool {
	masks := make([][]bool, steps)
	for t := range masks {
		masks[t] = make([]bool, len(idx))
		for i, k := range idx {
			masks[t][i] = targets[k][t] != r.opts.MaskValue
		}
	}
	return masks
}

// Fit trains with mini-batch Adam on binary cross-entropy averaged over the
// unmasked targets of each batch.
func (r *Recurrent) Fit(inputs [][]float64, targets [][]float64, opts FitOptions) error {
	if err := opts.validate(len(inputs)); err != nil {
		return err
	}
	steps, err := r.checkData(inputs, targets)
	if err != nil {
		return err
	}

	n := len(inputs)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}

	params := r.params()
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		r.rng.Shuffle(n, func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })

		for start := 0; start < n; start += opts.BatchSize {
			batch := idx[start:min(start+opts.BatchSize, n)]
			masks := r.masksFor(targets, batch, steps)

			var count int
			for t := range masks {
				for _, keep := range masks[t] {
					if keep {
						count++
					}
				}
			}
			if count == 0 {
				continue
			}

			c := r.forward(rowsOf(inputs, batch, r.opts.InputDim), steps, masks)

			dLogits := make([]*mat.Dense, steps)
			for t := 0; t < steps; t++ {
				dl := mat.NewDense(len(batch), 1, nil)
				for i, k := range batch {
					if !masks[t][i] {
						continue
					}
					_, g := bceWithLogits(c.logits[t].At(i, 0), targets[k][t])
					dl.Set(i, 0, g/float64(count))
				}
				dLogits[t] = dl
			}

			grads, _ := r.backward(c, dLogits)
			if r.opts.L2 > 0 {
				for i, p := range params {
					addScaled(grads[i], 2*r.opts.L2, p)
				}
			}
			r.opt.update(params, grads)
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

// Evaluate returns mean binary cross-entropy and accuracy over the unmasked
// targets.
func (r *Recurrent) Evaluate(inputs [][]float64, targets [][]float64) (Metrics, error) {
	if len(inputs) == 0 {
		return Metrics{}, fmt.Errorf("no evaluation data")
	}
	steps, err := r.checkData(inputs, targets)
	if err != nil {
		return Metrics{}, err
	}

	idx := make([]int, len(inputs))
	for i := range idx {
		idx[i] = i
	}
	masks := r.masksFor(targets, idx, steps)
	c := r.forward(rowsOf(inputs, idx, r.opts.InputDim), steps, masks)

	var total float64
	var count, correct int
	for t := 0; t < steps; t++ {
		for i := range inputs {
			if !masks[t][i] {
				continue
			}
			l := c.logits[t].At(i, 0)
			loss, _ := bceWithLogits(l, targets[i][t])
			total += loss
			count++
			if (l > 0) == (targets[i][t] > 0.5) {
				correct++
			}
		}
	}
	if count == 0 {
		return Metrics{}, fmt.Errorf("every target is masked")
	}

	return Metrics{
		Loss:     total / float64(count),
		Accuracy: float64(correct) / float64(count),
	}, nil
}

// Head returns the logit of rung t: the output after t+1 steps over x.
func (r *Recurrent) Head(t int) LogitFunc {
	steps := t + 1
	return func(x, grad []float64) float64 {
		X := mat.NewDense(1, r.opts.InputDim, nil)
		X.SetRow(0, x)
		c := r.forward(X, steps, nil)

		if grad != nil {
			dLogits := make([]*mat.Dense, steps)
			dLogits[steps-1] = mat.NewDense(1, 1, []float64{1})
			_, dX := r.backward(c, dLogits)
			copy(grad, dX.RawRowView(0))
		}
		return c.logits[steps-1].At(0, 0)
	}
}

// Save serializes options and weights as JSON.
func (r *Recurrent) Save(w io.Writer) error {
	state := recurrentState{Type: TypeRecurrent, Options: r.opts}
	for _, p := range r.params() {
		state.Weights = append(state.Weights, toState(p))
	}
	return json.NewEncoder(w).Encode(state)
}

// Load replaces options and weights with a saved state of the same input
// dimension. Optimizer moments start over.
func (r *Recurrent) Load(rd io.Reader) error {
	var state recurrentState
	if err := json.NewDecoder(rd).Decode(&state); err != nil {
		return err
	}
	if state.Type != TypeRecurrent {
		return fmt.Errorf("expected %s classifier state, got %q", TypeRecurrent, state.Type)
	}
	if r.opts.InputDim != 0 && state.Options.InputDim != r.opts.InputDim {
		return fmt.Errorf("saved state has input dimension %d, expected %d", state.Options.InputDim, r.opts.InputDim)
	}

	fresh, err := NewRecurrent(state.Options)
	if err != nil {
		return err
	}
	params := fresh.params()
	if len(state.Weights) != len(params) {
		return fmt.Errorf("expected %d weight matrices, got %d", len(params), len(state.Weights))
	}
	for i, p := range params {
		rows, cols := p.Dims()
		m, err := fromState(state.Weights[i], rows, cols)
		if err != nil {
			return err
		}
		p.Copy(m)
	}

	*r = *fresh
	return nil
}
