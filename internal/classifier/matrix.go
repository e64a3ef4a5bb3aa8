package classifier

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// glorot returns an r x c matrix drawn from the Glorot uniform distribution.
func glorot(rng *rand.Rand, r, c int) *mat.Dense {
	limit := math.Sqrt(6 / float64(r+c))
	data := make([]float64, r*c)
	for i := range data {
		data[i] = (2*rng.Float64() - 1) * limit
	}
	return mat.NewDense(r, c, data)
}

// addBias adds the 1 x c row b to every row of m.
func addBias(m, b *mat.Dense) {
	rows, _ := m.Dims()
	bias := b.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(m.RawRowView(i), bias)
	}
}

// colSums returns the column sums of m as a 1 x c matrix.
func colSums(m *mat.Dense) *mat.Dense {
	rows, cols := m.Dims()
	out := mat.NewDense(1, cols, nil)
	sum := out.RawRowView(0)
	for i := 0; i < rows; i++ {
		floats.Add(sum, m.RawRowView(i))
	}
	return out
}

// rowsOf packs the selected rows of X into a matrix.
func rowsOf(X [][]float64, idx []int, dim int) *mat.Dense {
	out := mat.NewDense(len(idx), dim, nil)
	for i, k := range idx {
		out.SetRow(i, X[k])
	}
	return out
}

// sumSquares returns the sum of squared entries of m.
func sumSquares(m *mat.Dense) float64 {
	d := m.RawMatrix().Data
	return floats.Dot(d, d)
}

// addScaled sets grad += alpha * param elementwise.
func addScaled(grad *mat.Dense, alpha float64, param *mat.Dense) {
	floats.AddScaled(grad.RawMatrix().Data, alpha, param.RawMatrix().Data)
}

func checkRows(X [][]float64, dim int) error {
	for i, x := range X {
		if len(x) != dim {
			return fmt.Errorf("row %d has %d features, expected %d", i, len(x), dim)
		}
	}
	return nil
}

// matrixState is the JSON form of a weight matrix.
type matrixState struct {
	Rows int       `json:"rows"`
	Cols int       `json:"cols"`
	Data []float64 `json:"data"`
}

func toState(m *mat.Dense) matrixState {
	r, c := m.Dims()
	data := make([]float64, r*c)
	copy(data, m.RawMatrix().Data)
	return matrixState{Rows: r, Cols: c, Data: data}
}

func fromState(s matrixState, rows, cols int) (*mat.Dense, error) {
	if s.Rows != rows || s.Cols != cols || len(s.Data) != rows*cols {
		return nil, fmt.Errorf("weight shape mismatch: got %dx%d (%d values), expected %dx%d",
			s.Rows, s.Cols, len(s.Data), rows, cols)
	}
	data := make([]float64, len(s.Data))
	copy(data, s.Data)
	return mat.NewDense(rows, cols, data), nil
}
