// Package interp provides the polynomial interpolators used to estimate the collocation
// error and to transfer a solution onto a new mesh.
package interp

import (
	"errors"
	"fmt"
)

// ErrData flags interpolation data which cannot define a polynomial.
var ErrData = errors.New("interp: invalid data")

// Hermite is the polynomial matching values and first derivatives at every node.
// With n nodes it has degree 2n-1.
type Hermite struct {
	origin float64
	z      []float64 // shifted nodes, each twice
	coeffs []float64 // Newton coefficients
}

// NewHermite returns the Hermite interpolant of y and dy at the strictly increasing x.
func NewHermite(x, y, dy []float64) (*Hermite, error) {
	n := len(x)
	if n == 0 || len(y) != n || len(dy) != n {
		return nil, fmt.Errorf("%w: Hermite needs as many values (%d) and derivatives (%d) as nodes (%d)", ErrData, len(y), len(dy), n)
	}
	for i := 1; i < n; i++ {
		if !(x[i] > x[i-1]) {
			return nil, fmt.Errorf("%w: nodes must be strictly increasing at index %d", ErrData, i)
		}
	}
	h := &Hermite{origin: x[0], z: make([]float64, 2*n)}
	m := 2 * n
	// q[i] holds the running column of the divided difference table.
	q := make([]float64, m)
	for i := 0; i < m; i++ {
		h.z[i] = x[i/2] - h.origin
		q[i] = y[i/2]
	}
	h.coeffs = make([]float64, m)
	h.coeffs[0] = q[0]
	for j := 1; j < m; j++ {
		for i := m - 1; i >= j; i-- {
			if j == 1 && i%2 == 1 {
				q[i] = dy[i/2]
				continue
			}
			q[i] = (q[i] - q[i-1]) / (h.z[i] - h.z[i-j])
		}
		h.coeffs[j] = q[j]
	}
	return h, nil
}

// Eval returns the value and the derivative of the interpolant at x.
func (h *Hermite) Eval(x float64) (value, derivative float64) {
	s := x - h.origin
	m := len(h.coeffs)
	value = h.coeffs[m-1]
	for j := m - 2; j >= 0; j-- {
		derivative = derivative*(s-h.z[j]) + value
		value = value*(s-h.z[j]) + h.coeffs[j]
	}
	return
}

// HermiteVec interpolates several series sharing the same nodes.
type HermiteVec []*Hermite

// NewHermiteVec returns the interpolants of the columns of ys and dys, both indexed
// as [node][series].
func NewHermiteVec(x []float64, ys, dys [][]float64) (HermiteVec, error) {
	if len(ys) != len(x) || len(dys) != len(x) {
		return nil, fmt.Errorf("%w: %d nodes but %d values and %d derivatives", ErrData, len(x), len(ys), len(dys))
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("%w: no nodes", ErrData)
	}
	ns := len(ys[0])
	hv := make(HermiteVec, ns)
	y := make([]float64, len(x))
	dy := make([]float64, len(x))
	for s := 0; s < ns; s++ {
		for i := range x {
			if len(ys[i]) != ns || len(dys[i]) != ns {
				return nil, fmt.Errorf("%w: node %d has %d values and %d derivatives, expected %d", ErrData, i, len(ys[i]), len(dys[i]), ns)
			}
			y[i], dy[i] = ys[i][s], dys[i][s]
		}
		h, err := NewHermite(x, y, dy)
		if err != nil {
			return nil, err
		}
		hv[s] = h
	}
	return hv, nil
}

// Eval returns the values and derivatives of every series at x.
func (hv HermiteVec) Eval(x float64) (values, derivatives []float64) {
	values = make([]float64, len(hv))
	derivatives = make([]float64, len(hv))
	for i, h := range hv {
		values[i], derivatives[i] = h.Eval(x)
	}
	return
}
