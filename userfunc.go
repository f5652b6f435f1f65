package irk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// PathFunction is a vector function of time, state, control and static parameters,
// evaluated at every discretization point: the dynamics, the cost integrand or an
// algebraic path constraint.
type PathFunction interface {
	Evaluate(t float64, state, control, static []float64) ([]float64, error)
}

// PathJacobian is implemented by path functions which provide analytic partials.
// Otherwise the partials are computed by central finite differences.
type PathJacobian interface {
	Jacobian(t float64, state, control, static []float64, jac *Jacobian) error
}

// Jacobian holds the partials of a path function with n outputs.
type Jacobian struct {
	State   *mat.Dense // n x numStates
	Control *mat.Dense // n x numControls
	Static  *mat.Dense // n x numStatic
	Time    []float64  // n
}

func newJacobian(n, numStates, numCtrls, numStatic int) *Jacobian {
	return &Jacobian{
		State:   newDenseOrEmpty(n, numStates),
		Control: newDenseOrEmpty(n, numCtrls),
		Static:  newDenseOrEmpty(n, numStatic),
		Time:    make([]float64, n),
	}
}

func newDenseOrEmpty(r, c int) *mat.Dense {
	if r == 0 || c == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(r, c, nil)
}

func denseAt(m *mat.Dense, i, j int) float64 {
	if m == nil || m.IsEmpty() {
		return 0
	}
	return m.At(i, j)
}

// Sparsity flags the structurally nonzero partials of a function: Sparsity[i][j] is
// true when output i depends on variable j. A nil Sparsity is dense.
type Sparsity [][]bool

// Has returns whether output i depends on variable j.
func (s Sparsity) Has(i, j int) bool {
	if s == nil {
		return true
	}
	return s[i][j]
}

// PhaseConfig is what the transcription needs to know about a phase.
type PhaseConfig struct {
	Name                     string
	NumStates, NumControls   int
	NumStatic                int
	IntegralCost             bool
	StateNames, ControlNames []string
	// Declared partial patterns, nil means dense.
	DynStateSparsity, DynControlSparsity, DynStaticSparsity    Sparsity
	CostStateSparsity, CostControlSparsity, CostStaticSparsity Sparsity
}

// HasDefects returns whether the phase has dynamics to collocate.
func (c PhaseConfig) HasDefects() bool {
	return c.NumStates > 0
}

// HasIntegralCost returns whether the phase has a cost integrand.
func (c PhaseConfig) HasIntegralCost() bool {
	return c.IntegralCost
}

// HasStatic returns whether the phase has static parameters.
func (c PhaseConfig) HasStatic() bool {
	return c.NumStatic > 0
}

// StateName returns the display name of a state.
func (c PhaseConfig) StateName(i int) string {
	if i < len(c.StateNames) {
		return c.StateNames[i]
	}
	return fmt.Sprintf("state[%d]", i)
}

// ControlName returns the display name of a control.
func (c PhaseConfig) ControlName(i int) string {
	if i < len(c.ControlNames) {
		return c.ControlNames[i]
	}
	return fmt.Sprintf("control[%d]", i)
}

func (c PhaseConfig) validate() error {
	if c.NumStates < 0 || c.NumControls < 0 || c.NumStatic < 0 {
		return configErrorf("negative number of variables (%d states, %d controls, %d static)", c.NumStates, c.NumControls, c.NumStatic)
	}
	checks := []struct {
		name  string
		s     Sparsity
		nOut  int
		nVars int
	}{
		{"dynamics state", c.DynStateSparsity, c.NumStates, c.NumStates},
		{"dynamics control", c.DynControlSparsity, c.NumStates, c.NumControls},
		{"dynamics static", c.DynStaticSparsity, c.NumStates, c.NumStatic},
		{"cost state", c.CostStateSparsity, 1, c.NumStates},
		{"cost control", c.CostControlSparsity, 1, c.NumControls},
		{"cost static", c.CostStaticSparsity, 1, c.NumStatic},
	}
	for _, chk := range checks {
		if chk.s == nil {
			continue
		}
		if len(chk.s) != chk.nOut {
			return configErrorf("%s sparsity has %d rows, expected %d", chk.name, len(chk.s), chk.nOut)
		}
		for i, row := range chk.s {
			if len(row) != chk.nVars {
				return configErrorf("%s sparsity row %d has %d columns, expected %d", chk.name, i, len(row), chk.nVars)
			}
		}
	}
	return nil
}

// pointEval is the evaluation of a path function at one discretization point.
type pointEval struct {
	values []float64
	jac    *Jacobian
}

// evaluatePoint evaluates fn and its partials at a point, checking every value.
func evaluatePoint(fn PathFunction, nOut int, t float64, x, u, p []float64, withJac bool) (*pointEval, error) {
	values, err := fn.Evaluate(t, x, u, p)
	if err != nil {
		return nil, err
	}
	if len(values) != nOut {
		return nil, configErrorf("function returned %d values, expected %d", len(values), nOut)
	}
	ev := &pointEval{values: values}
	if !withJac {
		return ev, nil
	}
	ev.jac = newJacobian(nOut, len(x), len(u), len(p))
	if pj, ok := fn.(PathJacobian); ok {
		err = pj.Jacobian(t, x, u, p, ev.jac)
	} else {
		err = finiteDiffJacobian(fn, nOut, t, x, u, p, values, ev.jac)
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// finiteDiffJacobian fills jac with central differences over [t, x, u, p].
func finiteDiffJacobian(fn PathFunction, nOut int, t float64, x, u, p, origin []float64, jac *Jacobian) error {
	nx, nu, np := len(x), len(u), len(p)
	vars := make([]float64, 1+nx+nu+np)
	vars[0] = t
	copy(vars[1:], x)
	copy(vars[1+nx:], u)
	copy(vars[1+nx+nu:], p)
	var evalErr error
	f := func(y, v []float64) {
		if evalErr != nil {
			return
		}
		out, err := fn.Evaluate(v[0], v[1:1+nx], v[1+nx:1+nx+nu], v[1+nx+nu:])
		if err != nil {
			evalErr = err
			return
		}
		copy(y, out)
	}
	dst := mat.NewDense(nOut, len(vars), nil)
	fd.Jacobian(dst, f, vars, &fd.JacobianSettings{Formula: fd.Central, OriginValue: origin})
	if evalErr != nil {
		return evalErr
	}
	for i := 0; i < nOut; i++ {
		jac.Time[i] = dst.At(i, 0)
		for j := 0; j < nx; j++ {
			jac.State.Set(i, j, dst.At(i, 1+j))
		}
		for j := 0; j < nu; j++ {
			jac.Control.Set(i, j, dst.At(i, 1+nx+j))
		}
		for j := 0; j < np; j++ {
			jac.Static.Set(i, j, dst.At(i, 1+nx+nu+j))
		}
	}
	return nil
}

// badValue returns the index of the first NaN or Inf, or -1.
func badValue(v []float64) int {
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return i
		}
	}
	return -1
}
