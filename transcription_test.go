package irk

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/mat"
)

// hull is dx/dt = u with the cost integrand u² - x.
type hull struct{}

func (hull) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{u[0]}, nil
}

func (hull) Jacobian(t float64, x, u, p []float64, jac *Jacobian) error {
	jac.Control.Set(0, 0, 1)
	return nil
}

type hullCost struct{}

func (hullCost) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{u[0]*u[0] - x[0]}, nil
}

// nanDynamics returns NaN after t = 0.55.
type nanDynamics struct{}

func (nanDynamics) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	if t > 0.55 {
		return []float64{math.NaN()}, nil
	}
	return []float64{u[0]}, nil
}

func hullConfig() PhaseConfig {
	return PhaseConfig{
		Name:               "hull",
		NumStates:          1,
		NumControls:        1,
		IntegralCost:       true,
		StateNames:         []string{"x"},
		ControlNames:       []string{"u"},
		DynStateSparsity:   Sparsity{{false}},
		DynControlSparsity: Sparsity{{true}},
	}
}

// hullSolution sets the closed form optimum u = (1-t)/2, x = 1 + t/2 - t²/4.
func hullSolution(tr *Transcription) *DecisionVector {
	z := tr.NewDecisionVector()
	z.SetTimes(0, 1)
	for k := 0; k < tr.Mesh.NumPoints(); k++ {
		t := z.TimeAt(k)
		m, s := tr.Mesh.MeshIndex(k), tr.Mesh.StageIndex(k)
		z.SetStateAt(m, s, []float64{1 + t/2 - t*t/4})
		z.SetControlAt(m, s, []float64{(1 - t) / 2})
	}
	return z
}

func newHull(t *testing.T, method string, fractions []float64, points []int) *Transcription {
	tr, err := NewTranscription(method, hullConfig(), fractions, points, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = tr.InitializeConstantDefectMatrices(); err != nil {
		t.Fatal(err)
	}
	if err = tr.InitializeConstantCostMatrices(); err != nil {
		t.Fatal(err)
	}
	return tr
}

func TestHullDefectPattern(t *testing.T) {
	tr := newHull(t, RungeKutta4, []float64{0, 1}, []int{5})
	if tr.Mesh.NumPoints() != 9 || tr.NumDecisionVars() != 20 {
		t.Fatalf("%d points and %d variables", tr.Mesh.NumPoints(), tr.NumDecisionVars())
	}
	z := hullSolution(tr)
	values, jac, err := tr.ComputeDefects(z, hull{})
	if err != nil {
		t.Fatal(err)
	}
	if r, c := jac.Dims(); r != 8 || c != 20 || len(values) != 8 {
		t.Fatalf("jacobian is %dx%d with %d values", r, c, len(values))
	}
	a, b, d, _ := tr.DefectMatrices()
	if r, _ := a.Dims(); r != tr.NumDefectRows() {
		t.Fatal("A must have one row per state and defect")
	}
	if r, c := b.Dims(); r != 8 || c != 9 {
		t.Fatalf("B is %dx%d", r, c)
	}
	if r, _ := d.Dims(); r != tr.NumODERHS() {
		t.Fatal("D must have one row per state and point")
	}
	h := 0.25
	coupling := tr.Table().Coupling
	for step := 0; step < 4; step++ {
		for defect := 0; defect < 2; defect++ {
			row := 2*step + defect
			// Expected pattern: both times, the step's first state, the defect's stage
			// state and the three controls of the step.
			exp := map[int]float64{
				2 + 4*step:              -1,
				2 + 2*(2*step+defect+1): 1,
				3 + 2*(2*step):          -h * coupling[defect+1][0],
				3 + 2*(2*step+1):        -h * coupling[defect+1][1],
				3 + 2*(2*step+2):        -h * coupling[defect+1][2],
			}
			cols := jac.RowNonZeros(row)
			if len(cols) != len(exp)+2 || cols[0] != 0 || cols[1] != 1 {
				t.Fatalf("row %d: nonzero columns %v", row, cols)
			}
			for col, v := range exp {
				if !jac.Has(row, col) || !scalar.EqualWithinAbs(jac.At(row, col), v, 1e-15) {
					t.Fatalf("row %d col %d: %f != %f", row, col, jac.At(row, col), v)
				}
			}
			if !scalar.EqualWithinAbs(values[row], 0, 1e-14) {
				t.Fatalf("closed form solution has defect %g at row %d", values[row], row)
			}
		}
	}
	for i := 0; i < tr.NumODERHS(); i++ {
		if !d.Has(i, 0) || !d.Has(i, 1) {
			t.Fatalf("D row %d misses a time column", i)
		}
	}
}

func TestHullCost(t *testing.T) {
	for _, method := range []string{RungeKutta4, HermiteSimpson, RungeKutta6, RungeKutta8} {
		tr := newHull(t, method, []float64{0, 0.4, 1}, []int{3, 4})
		z := hullSolution(tr)
		cost, grad, err := tr.ComputeCost(z, hullCost{})
		if err != nil {
			t.Fatal(err)
		}
		// ∫(u²-x) = 1/12 - 14/12 over [0, 1], integrated exactly by these quadratures.
		if !scalar.EqualWithinAbs(cost, -13/12., 1e-13) {
			t.Fatalf("%s: cost %f", method, cost)
		}
		b, _, _ := tr.CostMatrices()
		weights := b.MulVec(ones(tr.Mesh.NumPoints()))[0]
		if !scalar.EqualWithinAbs(weights, -1, 1e-14) {
			t.Fatalf("%s: quadrature weights sum to %f", method, -weights)
		}
		// d(cost)/d(x_k) = -w_k, summing to -1 over all points.
		sum := 0.0
		for k := 0; k < tr.Mesh.NumPoints(); k++ {
			sum += grad[tr.layout.StateIdx(k)]
		}
		if !scalar.EqualWithinAbs(sum, -1, 1e-6) {
			t.Fatalf("%s: state gradient sums to %f", method, sum)
		}
	}
}

func TestDefectsExactForAllMethods(t *testing.T) {
	for _, method := range Methods {
		tr := newHull(t, method, []float64{0, 0.3, 1}, []int{4, 3})
		z := hullSolution(tr)
		values, _, err := tr.ComputeDefects(z, hull{})
		if err != nil {
			t.Fatal(err)
		}
		if len(values) != tr.NumDefectRows() {
			t.Fatalf("%s: %d values", method, len(values))
		}
		if m := floats.Norm(values, math.Inf(1)); m > 1e-13 {
			t.Fatalf("%s: max defect %g", method, m)
		}
	}
}

func TestRepeatedEvaluationsIdentical(t *testing.T) {
	tr := newHull(t, RungeKutta8, []float64{0, 0.3, 0.7, 1}, []int{3, 4, 3})
	z := tr.NewDecisionVector()
	z.SetTimes(0.1, 1.7)
	for k := 0; k < tr.Mesh.NumPoints(); k++ {
		m, s := tr.Mesh.MeshIndex(k), tr.Mesh.StageIndex(k)
		z.SetStateAt(m, s, []float64{math.Sin(1.3*float64(k)) + 0.1*float64(k)})
		z.SetControlAt(m, s, []float64{math.Cos(0.7 * float64(k))})
	}
	cost, grad, err := tr.ComputeCost(z, hullCost{})
	if err != nil {
		t.Fatal(err)
	}
	defects, jac, err := tr.ComputeDefects(z, hull{})
	if err != nil {
		t.Fatal(err)
	}
	ref := jac.Dense()
	for n := 0; n < 200; n++ {
		c, g, err := tr.ComputeCost(z, hullCost{})
		if err != nil {
			t.Fatal(err)
		}
		if c != cost || !floats.Equal(g, grad) {
			t.Fatalf("call %d: cost %v != %v or gradient differs", n, c, cost)
		}
		d, j, err := tr.ComputeDefects(z, hull{})
		if err != nil {
			t.Fatal(err)
		}
		if !floats.Equal(d, defects) || !mat.Equal(j, ref) {
			t.Fatalf("call %d: defects or their jacobian differ", n)
		}
	}
}

func TestTimePartials(t *testing.T) {
	tr := newHull(t, RungeKutta4, []float64{0, 1}, []int{3})
	z := hullSolution(tr)
	z.SetTimes(0.5, 2.5)
	_, jac, err := tr.ComputeDefects(z, hull{})
	if err != nil {
		t.Fatal(err)
	}
	// Compare with finite differences of the defects with respect to t0 and tf.
	base := z.Clone()
	for col := 0; col < 2; col++ {
		plus, minus := base.Clone(), base.Clone()
		plus.Raw()[col] += 1e-6
		minus.Raw()[col] -= 1e-6
		vp, _, _ := tr.ComputeDefects(plus, hull{})
		vm, _, _ := tr.ComputeDefects(minus, hull{})
		for row := range vp {
			fd := (vp[row] - vm[row]) / 2e-6
			if !scalar.EqualWithinAbs(jac.At(row, col), fd, 1e-8) {
				t.Fatalf("row %d col %d: %g != %g", row, col, jac.At(row, col), fd)
			}
		}
	}
}

func TestFiniteDifferenceJacobian(t *testing.T) {
	tr := newHull(t, RungeKutta6, []float64{0, 1}, []int{3})
	z := hullSolution(tr)
	_, analytic, err := tr.ComputeDefects(z, hull{})
	if err != nil {
		t.Fatal(err)
	}
	_, numeric, err := tr.ComputeDefects(z, hullNoJacobian{})
	if err != nil {
		t.Fatal(err)
	}
	r, c := analytic.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !scalar.EqualWithinAbs(analytic.At(i, j), numeric.At(i, j), 1e-8) {
				t.Fatalf("(%d, %d): %g != %g", i, j, analytic.At(i, j), numeric.At(i, j))
			}
		}
	}
}

// hullNoJacobian is hull without analytic partials.
type hullNoJacobian struct{}

func (hullNoJacobian) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{u[0]}, nil
}

func TestFillBeforeInitialize(t *testing.T) {
	tr, err := NewTranscription(RungeKutta4, hullConfig(), []float64{0, 1}, []int{3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	z := tr.NewDecisionVector()
	if err = tr.FillDynamicDefectConMatrices(z, hull{}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected a precondition error, got %v", err)
	}
	if _, _, err = tr.ComputeCost(z, hullCost{}); !errors.Is(err, ErrPrecondition) {
		t.Fatalf("expected a precondition error, got %v", err)
	}
}

func TestNaNDynamics(t *testing.T) {
	tr := newHull(t, RungeKutta4, []float64{0, 1}, []int{5})
	z := hullSolution(tr)
	_, _, err := tr.ComputeDefects(z, nanDynamics{})
	if !errors.Is(err, ErrNumerical) {
		t.Fatalf("expected a numerical error, got %v", err)
	}
	var perr *PointError
	if !errors.As(err, &perr) {
		t.Fatal("expected a PointError")
	}
	// The first point after t = 0.55 is point 5, the first stage of step 2.
	if perr.Point != 5 || perr.Mesh != 2 || perr.Stage != 1 || perr.Phase != "hull" || perr.Function != "dynamics" {
		t.Fatalf("unexpected location: %+v", perr)
	}
}

func TestNoDefects(t *testing.T) {
	cfg := PhaseConfig{Name: "static", NumControls: 1, IntegralCost: true}
	tr, err := NewTranscription(Trapezoid, cfg, []float64{0, 1}, []int{3}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err = tr.InitializeConstantDefectMatrices(); err != nil {
		t.Fatal(err)
	}
	values, jac, err := tr.ComputeDefects(tr.NewDecisionVector(), nil)
	if err != nil || len(values) != 0 {
		t.Fatalf("no defects expected: %v %v", values, err)
	}
	if r, _ := jac.Dims(); r != 0 {
		t.Fatal("empty jacobian expected")
	}
}

func TestAlgebraicPath(t *testing.T) {
	tr := newHull(t, Trapezoid, []float64{0, 1}, []int{3})
	z := hullSolution(tr)
	values, jac, err := tr.ComputeAlgebraicPath(z, hullCost{}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 3 {
		t.Fatalf("%d values", len(values))
	}
	// d(u²-x)/du = 2u and d/dx = -1 at the middle point (t = 0.5, u = 0.25).
	if !scalar.EqualWithinAbs(jac.At(1, tr.layout.ControlIdx(1)), 0.5, 1e-8) || !scalar.EqualWithinAbs(jac.At(1, tr.layout.StateIdx(1)), -1, 1e-8) {
		t.Fatalf("path partials: %f %f", jac.At(1, tr.layout.ControlIdx(1)), jac.At(1, tr.layout.StateIdx(1)))
	}
}

func ones(n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1
	}
	return o
}
