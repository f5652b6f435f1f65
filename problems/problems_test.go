package problems

import (
	"errors"
	"testing"

	"github.com/ChristopherRabotin/irk"
	"github.com/ChristopherRabotin/irk/phase"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{"brachistochrone", "doubleintegrator", "hull95", "orbitraising"}, Names())
	def, err := ByName("Hull95")
	require.NoError(t, err)
	assert.Equal(t, "hull95", def.Config.Name)
	_, err = ByName("zermelo")
	assert.True(t, errors.Is(err, irk.ErrConfig), "got %v", err)
}

// checkJacobian compares the analytic partials of fn with central differences over
// [t, x, u] at the provided point.
func checkJacobian(t *testing.T, name string, fn irk.PathFunction, tm float64, x, u []float64) {
	t.Helper()
	pj, ok := fn.(irk.PathJacobian)
	if !ok {
		return
	}
	out, err := fn.Evaluate(tm, x, u, nil)
	require.NoError(t, err, name)
	n, nx, nu := len(out), len(x), len(u)
	jac := &irk.Jacobian{
		State:   mat.NewDense(n, nx, nil),
		Control: mat.NewDense(n, nu, nil),
		Static:  &mat.Dense{},
		Time:    make([]float64, n),
	}
	require.NoError(t, pj.Jacobian(tm, x, u, nil, jac), name)

	vars := append(append([]float64{tm}, x...), u...)
	num := mat.NewDense(n, len(vars), nil)
	fd.Jacobian(num, func(y, v []float64) {
		res, _ := fn.Evaluate(v[0], v[1:1+nx], v[1+nx:], nil)
		copy(y, res)
	}, vars, &fd.JacobianSettings{Formula: fd.Central})

	for i := 0; i < n; i++ {
		assert.InDelta(t, num.At(i, 0), jac.Time[i], 1e-6, "%s: d%d/dt", name, i)
		for j := 0; j < nx; j++ {
			assert.InDelta(t, num.At(i, 1+j), jac.State.At(i, j), 1e-6, "%s: d%d/dx%d", name, i, j)
		}
		for j := 0; j < nu; j++ {
			assert.InDelta(t, num.At(i, 1+nx+j), jac.Control.At(i, j), 1e-6, "%s: d%d/du%d", name, i, j)
		}
	}
}

func TestAnalyticJacobians(t *testing.T) {
	for _, name := range Names() {
		def, err := ByName(name)
		require.NoError(t, err)
		nx, nu := def.Config.NumStates, def.Config.NumControls
		x, u := make([]float64, nx), make([]float64, nu)
		for i := range x {
			x[i] = 1.1 + 0.3*float64(i)
		}
		for i := range u {
			u[i] = 0.4 - 0.2*float64(i)
		}
		checkJacobian(t, name+" dynamics", def.Dynamics, 0.7, x, u)
		if def.Cost != nil {
			checkJacobian(t, name+" cost", def.Cost, 0.7, x, u)
		}
	}
}

func TestSolutions(t *testing.T) {
	const h = 1e-6
	for _, tm := range []float64{0, 0.3, 0.8} {
		x, u := Hull95Solution(tm)
		x2, _ := Hull95Solution(tm + h)
		assert.InDelta(t, u, (x2-x)/h, 1e-5)

		pos, vel, acc := DoubleIntegratorSolution(tm)
		pos2, vel2, _ := DoubleIntegratorSolution(tm + h)
		assert.InDelta(t, vel, (pos2-pos)/h, 1e-5)
		assert.InDelta(t, acc, (vel2-vel)/h, 1e-5)
	}
	x, _ := Hull95Solution(1)
	assert.Equal(t, 1.25, x)
	pos, vel, _ := DoubleIntegratorSolution(1)
	assert.Equal(t, []float64{1, 0}, []float64{pos, vel})
}

func TestOrbitRaising(t *testing.T) {
	assert.Equal(t, DefaultThruster.Thrust, DefaultThruster.Accel(0))
	assert.InDelta(t, 0.1405/(1-0.0749*2), DefaultThruster.Accel(2), 1e-15)

	// A circular orbit without thrust stays circular.
	dyn := OrbitRaising().Dynamics
	out, err := dyn.Evaluate(0, []float64{1, 0, 0, 1}, []float64{0}, nil)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{0, 1, 0, DefaultThruster.Thrust}, out, 1e-15)

	for _, name := range Names() {
		def, _ := ByName(name)
		_, err := phase.New(def, irk.RungeKutta4, []float64{0, 1}, []int{6}, nil)
		assert.NoError(t, err, name)
	}
}
