package nlp

import (
	"bytes"
	"errors"
	"math"
	"testing"

	kitlog "github.com/go-kit/kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// funcProblem is a problem built from closures.
type funcProblem struct {
	n, m int
	f    func(x []float64) (float64, []float64)
	c    func(x []float64) ([]float64, []float64)
}

func (p funcProblem) Dims() (int, int) { return p.n, p.m }

func (p funcProblem) Objective(x []float64) (float64, []float64, error) {
	f, g := p.f(x)
	return f, g, nil
}

func (p funcProblem) Constraints(x []float64) ([]float64, mat.Matrix, error) {
	c, jac := p.c(x)
	return c, mat.NewDense(p.m, p.n, jac), nil
}

// closest point of the line x + y = 1 to the origin.
var lineProblem = funcProblem{
	n: 2, m: 1,
	f: func(x []float64) (float64, []float64) {
		return x[0]*x[0] + x[1]*x[1], []float64{2 * x[0], 2 * x[1]}
	},
	c: func(x []float64) ([]float64, []float64) {
		return []float64{x[0] + x[1] - 1}, []float64{1, 1}
	},
}

// minimum of x + y on the circle of radius √2.
var circleProblem = funcProblem{
	n: 2, m: 1,
	f: func(x []float64) (float64, []float64) {
		return x[0] + x[1], []float64{1, 1}
	},
	c: func(x []float64) ([]float64, []float64) {
		return []float64{x[0]*x[0] + x[1]*x[1] - 2}, []float64{2 * x[0], 2 * x[1]}
	},
}

func TestSolveLinearConstraint(t *testing.T) {
	for _, kind := range []HessianKind{FiniteDifference, BFGS} {
		s := DefaultSettings()
		s.Hessian = kind
		res, err := Solve(lineProblem, []float64{3, -1}, s)
		require.NoError(t, err, kind.String())
		assert.True(t, res.Converged)
		assert.InDeltaSlice(t, []float64{0.5, 0.5}, res.X, 1e-7, kind.String())
		assert.InDelta(t, -1, res.Lambda[0], 1e-6, kind.String())
		assert.InDelta(t, 0.5, res.Objective, 1e-8)
	}
}

func TestSolveNonlinearConstraint(t *testing.T) {
	res, err := Solve(circleProblem, []float64{-1.5, -0.5}, DefaultSettings())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{-1, -1}, res.X, 1e-7)
	assert.InDelta(t, 0.5, res.Lambda[0], 1e-6)
	assert.LessOrEqual(t, res.Iterations, 20)
}

func TestSolveRosenbrockOnCircle(t *testing.T) {
	p := funcProblem{
		n: 2, m: 1,
		f: func(x []float64) (float64, []float64) {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			return a*a + 100*b*b, []float64{-2*a - 400*x[0]*b, 200 * b}
		},
		c: func(x []float64) ([]float64, []float64) {
			return []float64{x[0]*x[0] + x[1]*x[1] - 1}, []float64{2 * x[0], 2 * x[1]}
		},
	}
	res, err := Solve(p, []float64{0.5, 0.5}, DefaultSettings())
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0.7864151541, 0.6176983125}, res.X, 1e-6)
}

func TestSolveUnconstrained(t *testing.T) {
	p := funcProblem{
		n: 2,
		f: func(x []float64) (float64, []float64) {
			return math.Pow(x[0]-2, 2) + math.Pow(x[1]+1, 4), []float64{2 * (x[0] - 2), 4 * math.Pow(x[1]+1, 3)}
		},
	}
	s := DefaultSettings()
	s.Tolerance = 1e-6
	res, err := Solve(p, []float64{0, 0}, s)
	require.NoError(t, err)
	assert.InDelta(t, 2, res.X[0], 1e-6)
	assert.InDelta(t, -1, res.X[1], 2e-2)
}

func TestSolveMaxIterations(t *testing.T) {
	var buf bytes.Buffer
	s := DefaultSettings()
	s.MaxIterations = 1
	s.Logger = kitlog.NewLogfmtLogger(&buf)
	res, err := Solve(circleProblem, []float64{-3, 2}, s)
	require.True(t, errors.Is(err, ErrMaxIterations), "got %v", err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Contains(t, buf.String(), "level=warning")
	assert.Contains(t, buf.String(), "subsys=nlp")
}

func TestSolveBadInputs(t *testing.T) {
	_, err := Solve(lineProblem, []float64{1}, DefaultSettings())
	assert.Error(t, err)
	_, err = Solve(lineProblem, []float64{1, 2}, Settings{})
	assert.Error(t, err)
}
