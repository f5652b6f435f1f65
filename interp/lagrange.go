package interp

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BaryLagrange is the barycentric form of the Lagrange polynomial through fixed nodes.
type BaryLagrange struct {
	x       []float64
	weights []float64
}

// NewBaryLagrange returns the interpolator on the strictly increasing nodes x.
func NewBaryLagrange(x []float64) (*BaryLagrange, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrData)
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return nil, fmt.Errorf("%w: nodes must be strictly increasing at index %d", ErrData, i)
		}
	}
	b := &BaryLagrange{x: make([]float64, len(x)), weights: make([]float64, len(x))}
	copy(b.x, x)
	for j := range x {
		w := 1.0
		for k := range x {
			if k != j {
				w *= x[j] - x[k]
			}
		}
		b.weights[j] = 1 / w
	}
	return b, nil
}

// Weights returns the barycentric weights.
func (b *BaryLagrange) Weights() []float64 {
	w := make([]float64, len(b.weights))
	copy(w, b.weights)
	return w
}

// row writes the interpolation coefficients at x into dst. A node returns its own value.
func (b *BaryLagrange) row(dst []float64, x float64) {
	for j, xj := range b.x {
		if x == xj {
			for k := range dst {
				dst[k] = 0
			}
			dst[j] = 1
			return
		}
	}
	sum := 0.0
	for j, xj := range b.x {
		dst[j] = b.weights[j] / (x - xj)
		sum += dst[j]
	}
	for j := range dst {
		dst[j] /= sum
	}
}

// Interpolate returns the value at x of the polynomial through (nodes, y).
func (b *BaryLagrange) Interpolate(x float64, y []float64) (float64, error) {
	if len(y) != len(b.x) {
		return 0, fmt.Errorf("%w: %d values for %d nodes", ErrData, len(y), len(b.x))
	}
	coeffs := make([]float64, len(b.x))
	b.row(coeffs, x)
	v := 0.0
	for j, c := range coeffs {
		v += c * y[j]
	}
	return v, nil
}

// Matrix returns the len(at) by len(nodes) interpolation matrix.
func (b *BaryLagrange) Matrix(at []float64) *mat.Dense {
	m := mat.NewDense(len(at), len(b.x), nil)
	for i, x := range at {
		b.row(m.RawRowView(i), x)
	}
	return m
}

// InterpolateMatrix interpolates every column of data, whose rows match the nodes,
// at each of the at values.
func (b *BaryLagrange) InterpolateMatrix(at []float64, data mat.Matrix) (*mat.Dense, error) {
	r, c := data.Dims()
	if r != len(b.x) {
		return nil, fmt.Errorf("%w: data has %d rows for %d nodes", ErrData, r, len(b.x))
	}
	if len(at) == 0 || c == 0 {
		return nil, fmt.Errorf("%w: nothing to interpolate", ErrData)
	}
	var out mat.Dense
	out.Mul(b.Matrix(at), data)
	return &out, nil
}
