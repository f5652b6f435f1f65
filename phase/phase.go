// Package phase drives the optimization of a single phase: it transcribes the phase with
// a Lobatto IIIA method, solves the resulting nonlinear program and refines the mesh until
// the collocation error is small enough.
package phase

import (
	"fmt"
	"math"

	"github.com/ChristopherRabotin/irk"
	"github.com/ChristopherRabotin/irk/nlp"
	kitlog "github.com/go-kit/kit/log"
)

// BoundaryFunction is a function of the end points of a phase, such as a Mayer cost.
type BoundaryFunction interface {
	Evaluate(t0, tf float64, x0, xf, static []float64) (float64, error)
}

// BoundaryFunc adapts a function to a BoundaryFunction.
type BoundaryFunc func(t0, tf float64, x0, xf, static []float64) (float64, error)

// Evaluate calls f.
func (f BoundaryFunc) Evaluate(t0, tf float64, x0, xf, static []float64) (float64, error) {
	return f(t0, tf, x0, xf, static)
}

// Bounds fixes parts of the phase end points. NaN entries, and nil slices, are free.
type Bounds struct {
	T0, TF       float64
	InitialState []float64
	FinalState   []float64
}

// Free returns bounds leaving everything free.
func Free() Bounds {
	return Bounds{T0: math.NaN(), TF: math.NaN()}
}

// Guess is a linear initial guess between the end points.
type Guess struct {
	T0, TF         float64
	InitialState   []float64
	FinalState     []float64
	InitialControl []float64
	FinalControl   []float64
	Static         []float64
}

// Definition is everything needed to optimize a phase.
type Definition struct {
	Config   irk.PhaseConfig
	Dynamics irk.PathFunction
	Cost     irk.PathFunction // integrand, used when Config.IntegralCost is set
	Mayer    BoundaryFunction
	// Path holds NumPath algebraic equality constraints enforced at every point.
	Path    irk.PathFunction
	NumPath int
	Bounds  Bounds
	Guess   Guess
}

func (d Definition) validate() error {
	cfg := d.Config
	if cfg.NumStates > 0 && d.Dynamics == nil {
		return fmt.Errorf("%w: phase %q has states but no dynamics", irk.ErrConfig, cfg.Name)
	}
	if cfg.IntegralCost && d.Cost == nil {
		return fmt.Errorf("%w: phase %q has an integral cost but no cost function", irk.ErrConfig, cfg.Name)
	}
	if !cfg.IntegralCost && d.Mayer == nil {
		return fmt.Errorf("%w: phase %q has no cost", irk.ErrConfig, cfg.Name)
	}
	if (d.Path == nil) != (d.NumPath == 0) {
		return fmt.Errorf("%w: phase %q path function and NumPath disagree", irk.ErrConfig, cfg.Name)
	}
	for _, s := range []struct {
		name string
		v    []float64
		n    int
	}{
		{"initial state bound", d.Bounds.InitialState, cfg.NumStates},
		{"final state bound", d.Bounds.FinalState, cfg.NumStates},
		{"initial state guess", d.Guess.InitialState, cfg.NumStates},
		{"final state guess", d.Guess.FinalState, cfg.NumStates},
		{"initial control guess", d.Guess.InitialControl, cfg.NumControls},
		{"final control guess", d.Guess.FinalControl, cfg.NumControls},
		{"static guess", d.Guess.Static, cfg.NumStatic},
	} {
		if s.v != nil && len(s.v) != s.n {
			return fmt.Errorf("%w: phase %q %s has %d values, expected %d", irk.ErrConfig, cfg.Name, s.name, len(s.v), s.n)
		}
	}
	if d.Guess.TF == d.Guess.T0 {
		return fmt.Errorf("%w: phase %q guess has a zero duration", irk.ErrConfig, cfg.Name)
	}
	return nil
}

// Phase is a transcribed phase and its current decision vector.
type Phase struct {
	def    Definition
	method string
	tr     *irk.Transcription
	z      *irk.DecisionVector
	root   kitlog.Logger // handed to the transcriptions
	logger kitlog.Logger
}

// New transcribes the phase on the mesh and sets the linear initial guess.
func New(def Definition, method string, fractions []float64, numPoints []int, logger kitlog.Logger) (*Phase, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	if err := def.validate(); err != nil {
		return nil, err
	}
	p := &Phase{def: def, method: method, root: logger, logger: kitlog.With(logger, "phase", def.Config.Name)}
	if err := p.transcribe(fractions, numPoints); err != nil {
		return nil, err
	}
	p.setLinearGuess()
	return p, nil
}

func (p *Phase) transcribe(fractions []float64, numPoints []int) error {
	tr, err := irk.NewTranscription(p.method, p.def.Config, fractions, numPoints, p.root)
	if err != nil {
		return err
	}
	if err = tr.InitializeConstantDefectMatrices(); err != nil {
		return err
	}
	if err = tr.InitializeConstantCostMatrices(); err != nil {
		return err
	}
	p.tr = tr
	p.z = tr.NewDecisionVector()
	return nil
}

func (p *Phase) setLinearGuess() {
	g := p.def.Guess
	p.z.SetTimes(g.T0, g.TF)
	lerp := func(a, b []float64, n int, tau float64) []float64 {
		v := make([]float64, n)
		for i := range v {
			var from, to float64
			if a != nil {
				from = a[i]
			}
			if b != nil {
				to = b[i]
			}
			v[i] = from + tau*(to-from)
		}
		return v
	}
	mesh := p.tr.Mesh
	for k := 0; k < mesh.NumPoints(); k++ {
		tau := mesh.DiscTimes[k]
		m, s := mesh.MeshIndex(k), mesh.StageIndex(k)
		// Sizes are validated with the definition.
		_ = p.z.SetStateAt(m, s, lerp(g.InitialState, g.FinalState, p.def.Config.NumStates, tau))
		_ = p.z.SetControlAt(m, s, lerp(g.InitialControl, g.FinalControl, p.def.Config.NumControls, tau))
	}
	if g.Static != nil {
		_ = p.z.SetStatic(g.Static)
	}
}

// Transcription returns the current transcription.
func (p *Phase) Transcription() *irk.Transcription {
	return p.tr
}

// DecisionVector returns the current decision vector.
func (p *Phase) DecisionVector() *irk.DecisionVector {
	return p.z
}

// Definition returns the definition of the phase.
func (p *Phase) Definition() Definition {
	return p.def
}

// Solution is the outcome of Solve.
type Solution struct {
	Z           *irk.DecisionVector
	Result      nlp.Result
	Refinements int
	// MeshConverged is set when the last refinement pass left the mesh unchanged.
	MeshConverged bool
	MaxRelErrors  []float64
	NumPoints     []int
	Fractions     []float64
}

func (s *Solution) String() string {
	return fmt.Sprintf("%s; %d refinements, mesh converged: %v, points %v", s.Result, s.Refinements, s.MeshConverged, s.NumPoints)
}

// Solve alternates NLP solves and mesh refinements, at most refine.MaxIterations times.
func (p *Phase) Solve(settings nlp.Settings, refine irk.RefineSettings) (*Solution, error) {
	if err := refine.Validate(); err != nil {
		return nil, err
	}
	if settings.Logger == nil {
		settings.Logger = p.logger
	}
	sol := &Solution{}
	for {
		res, err := nlp.Solve(p.problem(), p.z.Raw(), settings)
		sol.Result = res
		if err != nil {
			return sol, fmt.Errorf("phase %q: %w", p.def.Config.Name, err)
		}
		if err = p.z.SetRaw(res.X); err != nil {
			return sol, err
		}
		sol.Z = p.z
		sol.Fractions = p.tr.Mesh.IntervalFractions
		sol.NumPoints = p.tr.Mesh.IntervalNumPoints
		if sol.Refinements == refine.MaxIterations || !p.def.Config.HasDefects() {
			p.logger.Log("level", "notice", "subsys", "phase", "status", "done", "refinements", sol.Refinements, "cost", res.Objective)
			return sol, nil
		}
		rr, err := p.tr.RefineMesh(p.z, p.def.Dynamics, refine)
		if err != nil {
			return sol, err
		}
		sol.MaxRelErrors = rr.MaxRelErrors
		if rr.Unchanged {
			sol.MeshConverged = true
			p.logger.Log("level", "notice", "subsys", "phase", "status", "mesh converged", "refinements", sol.Refinements, "cost", res.Objective)
			return sol, nil
		}
		if err = p.remesh(rr); err != nil {
			return sol, err
		}
		sol.Refinements++
		p.logger.Log("level", "info", "subsys", "phase", "refinement", sol.Refinements, "points", p.tr.Mesh.NumPoints(), "maxRelErr", maxOf(rr.MaxRelErrors))
	}
}

// remesh moves the phase to the refined mesh, starting from the interpolated solution.
func (p *Phase) remesh(rr *irk.RefineResult) error {
	old := p.z
	if err := p.transcribe(rr.Fractions, rr.NumPoints); err != nil {
		return err
	}
	t0, tf := old.Times()
	p.z.SetTimes(t0, tf)
	if err := p.z.SetStatic(old.Static()); err != nil {
		return err
	}
	return p.z.SetFromArrays(rr.StateGuess, rr.ControlGuess)
}

func maxOf(v []float64) float64 {
	m := math.Inf(-1)
	for _, x := range v {
		m = math.Max(m, x)
	}
	return m
}
