// Package problems holds benchmark optimal control phases with known solutions.
package problems

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ChristopherRabotin/irk"
	"github.com/ChristopherRabotin/irk/phase"
)

const (
	// Gravity of the brachistochrone, in m/s².
	Gravity = 9.81
	// BrachistochroneTime is the optimal descent time to (2, 2).
	BrachistochroneTime = 0.8243386694391837
)

var registry = map[string]func() phase.Definition{
	"hull95":           Hull95,
	"doubleintegrator": DoubleIntegrator,
	"brachistochrone":  Brachistochrone,
	"orbitraising":     OrbitRaising,
}

// Names returns the names of the benchmarks.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName returns a benchmark definition. Matching is case-insensitive.
func ByName(name string) (phase.Definition, error) {
	if f, ok := registry[strings.ToLower(name)]; ok {
		return f(), nil
	}
	return phase.Definition{}, fmt.Errorf("%w: unknown problem %q, known problems are %v", irk.ErrConfig, name, Names())
}

// hullDynamics is dx/dt = u.
type hullDynamics struct{}

func (hullDynamics) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{u[0]}, nil
}

func (hullDynamics) Jacobian(t float64, x, u, p []float64, jac *irk.Jacobian) error {
	jac.Control.Set(0, 0, 1)
	return nil
}

// hullCost is u² - x.
type hullCost struct{}

func (hullCost) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{u[0]*u[0] - x[0]}, nil
}

func (hullCost) Jacobian(t float64, x, u, p []float64, jac *irk.Jacobian) error {
	jac.State.Set(0, 0, -1)
	jac.Control.Set(0, 0, 2*u[0])
	return nil
}

// Hull95 minimizes ∫(u² - x) over [0, 1] with dx/dt = u and x(0) = 1. The optimum is
// u = (1-t)/2, x = 1 + t/2 - t²/4 with a cost of -13/12.
func Hull95() phase.Definition {
	return phase.Definition{
		Config: irk.PhaseConfig{
			Name:               "hull95",
			NumStates:          1,
			NumControls:        1,
			IntegralCost:       true,
			StateNames:         []string{"x"},
			ControlNames:       []string{"u"},
			DynStateSparsity:   irk.Sparsity{{false}},
			DynControlSparsity: irk.Sparsity{{true}},
		},
		Dynamics: hullDynamics{},
		Cost:     hullCost{},
		Bounds:   phase.Bounds{T0: 0, TF: 1, InitialState: []float64{1}},
		Guess:    phase.Guess{T0: 0, TF: 1, InitialState: []float64{1}, FinalState: []float64{1}},
	}
}

// Hull95Solution returns the optimal state and control at t.
func Hull95Solution(t float64) (x, u float64) {
	return 1 + t/2 - t*t/4, (1 - t) / 2
}

// doubleIntegrator is d(pos)/dt = vel, d(vel)/dt = u.
type doubleIntegrator struct{}

func (doubleIntegrator) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{x[1], u[0]}, nil
}

func (doubleIntegrator) Jacobian(t float64, x, u, p []float64, jac *irk.Jacobian) error {
	jac.State.Set(0, 1, 1)
	jac.Control.Set(1, 0, 1)
	return nil
}

// energy is u²/2.
type energy struct{}

func (energy) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	return []float64{u[0] * u[0] / 2}, nil
}

// DoubleIntegrator moves a unit mass from rest at 0 to rest at 1 in unit time, minimizing
// ∫u²/2. The optimum is u = 6 - 12t with a cost of 6.
func DoubleIntegrator() phase.Definition {
	return phase.Definition{
		Config: irk.PhaseConfig{
			Name:               "doubleintegrator",
			NumStates:          2,
			NumControls:        1,
			IntegralCost:       true,
			StateNames:         []string{"pos", "vel"},
			ControlNames:       []string{"acc"},
			DynStateSparsity:   irk.Sparsity{{false, true}, {false, false}},
			DynControlSparsity: irk.Sparsity{{false}, {true}},
		},
		Dynamics: doubleIntegrator{},
		Cost:     energy{},
		Bounds:   phase.Bounds{T0: 0, TF: 1, InitialState: []float64{0, 0}, FinalState: []float64{1, 0}},
		Guess:    phase.Guess{T0: 0, TF: 1, InitialState: []float64{0, 0}, FinalState: []float64{1, 0}},
	}
}

// DoubleIntegratorSolution returns the optimal position, velocity and control at t.
func DoubleIntegratorSolution(t float64) (pos, vel, acc float64) {
	return 3*t*t - 2*t*t*t, 6*t - 6*t*t, 6 - 12*t
}

// brachistochrone is the frictionless slide with y pointing down and the control being
// the angle of the path from the vertical.
type brachistochrone struct{}

func (brachistochrone) Evaluate(t float64, x, u, p []float64) ([]float64, error) {
	sin, cos := math.Sincos(u[0])
	return []float64{x[2] * sin, x[2] * cos, Gravity * cos}, nil
}

// Brachistochrone minimizes the time to slide from rest at (0, 0) to (2, 2).
func Brachistochrone() phase.Definition {
	nan := math.NaN()
	return phase.Definition{
		Config: irk.PhaseConfig{
			Name:         "brachistochrone",
			NumStates:    3,
			NumControls:  1,
			StateNames:   []string{"x", "y", "v"},
			ControlNames: []string{"theta"},
		},
		Dynamics: brachistochrone{},
		Mayer: phase.BoundaryFunc(func(t0, tf float64, x0, xf, static []float64) (float64, error) {
			return tf - t0, nil
		}),
		Bounds: phase.Bounds{T0: 0, TF: nan, InitialState: []float64{0, 0, 0}, FinalState: []float64{2, 2, nan}},
		Guess: phase.Guess{
			T0: 0, TF: 1,
			InitialState: []float64{0, 0, 0}, FinalState: []float64{2, 2, math.Sqrt(4 * Gravity)},
			InitialControl: []float64{0.1}, FinalControl: []float64{2},
		},
	}
}
