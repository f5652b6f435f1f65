package interp

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	ginterp "gonum.org/v1/gonum/interp"
)

// Resample returns n uniformly spaced samples, from x[0] to x[len(x)-1], of the piecewise
// cubic Hermite curve through (x, y) with slopes dy.
func Resample(x, y, dy []float64, n int) (xs, ys []float64, err error) {
	if len(x) < 2 || len(y) != len(x) || len(dy) != len(x) {
		return nil, nil, fmt.Errorf("%w: resampling needs at least two nodes with values and slopes", ErrData)
	}
	if n < 2 {
		return nil, nil, fmt.Errorf("%w: at least two samples are needed, got %d", ErrData, n)
	}
	for i := 1; i < len(x); i++ {
		if !(x[i] > x[i-1]) {
			return nil, nil, fmt.Errorf("%w: nodes must be strictly increasing at index %d", ErrData, i)
		}
	}
	var pc ginterp.PiecewiseCubic
	pc.FitWithDerivatives(x, y, dy)
	xs = floats.Span(make([]float64, n), x[0], x[len(x)-1])
	ys = make([]float64, n)
	for i, xi := range xs {
		ys[i] = pc.Predict(xi)
	}
	return xs, ys, nil
}
