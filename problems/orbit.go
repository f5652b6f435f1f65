package problems

import (
	"math"

	"github.com/ChristopherRabotin/irk"
	"github.com/ChristopherRabotin/irk/phase"
)

// Thruster is a constant thrust engine in canonical units (μ = 1, initial radius and
// mass of 1).
type Thruster struct {
	Thrust   float64
	MassFlow float64 // positive, mass spent per unit time
}

// Accel returns the thrust acceleration at t, the mass decreasing linearly from 1.
func (th Thruster) Accel(t float64) float64 {
	return th.Thrust / (1 - th.MassFlow*t)
}

// DefaultThruster is the engine of Bryson and Ho's orbit raising problem.
var DefaultThruster = Thruster{Thrust: 0.1405, MassFlow: 0.0749}

// OrbitRadius is the radius of the circular target orbit of OrbitRaising.
const OrbitRadius = 1.5

// planarOrbit is the polar form of the two-body problem with a steered thrust. The states
// are r, θ, vr, vθ and the control is the thrust angle from the local horizontal.
type planarOrbit struct {
	th Thruster
}

func (o planarOrbit) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	r, vr, vt := x[0], x[2], x[3]
	a := o.th.Accel(t)
	sin, cos := math.Sincos(u[0])
	return []float64{
		vr,
		vt / r,
		vt*vt/r - 1/(r*r) + a*sin,
		-vr*vt/r + a*cos,
	}, nil
}

func (o planarOrbit) Jacobian(t float64, x, u, p []float64, jac *irk.Jacobian) error {
	r, vr, vt := x[0], x[2], x[3]
	a := o.th.Accel(t)
	sin, cos := math.Sincos(u[0])
	st := jac.State
	st.Set(0, 2, 1)
	st.Set(1, 0, -vt/(r*r))
	st.Set(1, 3, 1/r)
	st.Set(2, 0, -vt*vt/(r*r)+2/(r*r*r))
	st.Set(2, 3, 2*vt/r)
	st.Set(3, 0, vr*vt/(r*r))
	st.Set(3, 2, -vt/r)
	st.Set(3, 3, -vr/r)
	jac.Control.Set(2, 0, a*cos)
	jac.Control.Set(3, 0, -a*sin)
	// The acceleration grows as the mass is spent.
	dadt := a * o.th.MassFlow / (1 - o.th.MassFlow*t)
	jac.Time[2] = dadt * sin
	jac.Time[3] = dadt * cos
	return nil
}

// OrbitRaising minimizes the time to go from the unit circular orbit to the circular orbit
// of radius OrbitRadius with the DefaultThruster. The final anomaly is free.
func OrbitRaising() phase.Definition {
	nan := math.NaN()
	vf := math.Sqrt(1 / OrbitRadius)
	return phase.Definition{
		Config: irk.PhaseConfig{
			Name:         "orbitraising",
			NumStates:    4,
			NumControls:  1,
			StateNames:   []string{"r", "theta", "vr", "vtheta"},
			ControlNames: []string{"phi"},
			DynStateSparsity: irk.Sparsity{
				{false, false, true, false},
				{true, false, false, true},
				{true, false, false, true},
				{true, false, true, true},
			},
			DynControlSparsity: irk.Sparsity{{false}, {false}, {true}, {true}},
		},
		Dynamics: planarOrbit{th: DefaultThruster},
		Mayer: phase.BoundaryFunc(func(t0, tf float64, x0, xf, static []float64) (float64, error) {
			return tf - t0, nil
		}),
		Bounds: phase.Bounds{
			T0: 0, TF: nan,
			InitialState: []float64{1, 0, 0, 1},
			FinalState:   []float64{OrbitRadius, nan, 0, vf},
		},
		Guess: phase.Guess{
			T0: 0, TF: 3,
			InitialState: []float64{1, 0, 0, 1}, FinalState: []float64{OrbitRadius, 2.5, 0, vf},
			InitialControl: []float64{0.5}, FinalControl: []float64{-0.5},
		},
	}
}
