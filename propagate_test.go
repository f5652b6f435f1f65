package irk

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/floats/scalar"
)

func TestPropagateHull(t *testing.T) {
	tr := newHull(t, RungeKutta4, []float64{0, 0.5, 1}, []int{3, 4})
	z := hullSolution(tr)
	prop, err := tr.Propagate(z, hull{}, 50)
	if err != nil {
		t.Fatal(err)
	}
	if len(prop.Times) != 51 || len(prop.States) != 51 {
		t.Fatalf("%d times and %d states", len(prop.Times), len(prop.States))
	}
	// RK4 is exact for a quadratic state.
	if !scalar.EqualWithinAbs(prop.States[50][0], 1.25, 1e-12) {
		t.Fatalf("final state %f", prop.States[50][0])
	}
	if prop.FinalError > 1e-12 {
		t.Fatalf("final error %g", prop.FinalError)
	}
	for i, tm := range prop.Times {
		if exp := 1 + tm/2 - tm*tm/4; !scalar.EqualWithinAbs(prop.States[i][0], exp, 1e-12) {
			t.Fatalf("state at %f: %f != %f", tm, prop.States[i][0], exp)
		}
	}
}

func TestPropagateWithoutControls(t *testing.T) {
	tr, z := growthPhase(t, RungeKutta6, []float64{0, 1}, []int{4}, 1)
	prop, err := tr.Propagate(z, growth{1}, 100)
	if err != nil {
		t.Fatal(err)
	}
	if !scalar.EqualWithinRel(prop.States[len(prop.States)-1][0], math.E, 1e-9) {
		t.Fatalf("final state %f", prop.States[len(prop.States)-1][0])
	}
}

func TestPropagateNaN(t *testing.T) {
	tr := newHull(t, RungeKutta4, []float64{0, 1}, []int{3})
	z := hullSolution(tr)
	if _, err := tr.Propagate(z, nanDynamics{}, 10); !errors.Is(err, ErrNumerical) {
		t.Fatalf("expected a numerical error, got %v", err)
	}
	if _, err := tr.Propagate(z, hull{}, 0); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected a configuration error, got %v", err)
	}
}

func TestControlAt(t *testing.T) {
	tr := newHull(t, HermiteSimpson, []float64{0, 0.3, 1}, []int{3, 3})
	z := hullSolution(tr)
	for _, tau := range []float64{0, 0.1, 0.3, 0.65, 0.99, 1} {
		u, err := tr.controlAt(z, tau)
		if err != nil {
			t.Fatal(err)
		}
		if !scalar.EqualWithinAbs(u[0], (1-tau)/2, 1e-14) {
			t.Fatalf("control at %f: %f", tau, u[0])
		}
	}
}
