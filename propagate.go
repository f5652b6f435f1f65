package irk

import (
	"math"
	"sort"

	"github.com/ChristopherRabotin/irk/interp"
	"github.com/ChristopherRabotin/ode"
	"gonum.org/v1/gonum/floats"
)

// Propagation is an explicit integration of a phase's dynamics from its first collocated
// state, driven by the collocated controls.
type Propagation struct {
	Times  []float64
	States [][]float64
	// FinalError is the largest absolute difference between the propagated and the
	// collocated final state.
	FinalError float64
}

// propagator implements the ode.Integrable interface.
type propagator struct {
	tr    *Transcription
	z     *DecisionVector
	dyn   PathFunction
	t0    float64
	dt    float64
	step  float64
	state []float64
	hist  *Propagation
	err   error
}

// Propagate integrates the dynamics over the phase with a fixed step RK4 in numSteps
// steps. The controls between points are the Lagrange interpolants of each step's stage
// controls.
func (tr *Transcription) Propagate(z *DecisionVector, dyn PathFunction, numSteps int) (*Propagation, error) {
	if err := tr.checkVector(z); err != nil {
		return nil, err
	}
	if dyn == nil || !tr.Config.HasDefects() {
		return nil, configErrorf("phase %q has nothing to propagate", tr.Config.Name)
	}
	if numSteps <= 0 {
		return nil, configErrorf("propagation needs a positive number of steps, got %d", numSteps)
	}
	t0, tf := z.Times()
	if tf == t0 {
		return nil, configErrorf("phase %q has a zero duration", tr.Config.Name)
	}
	p := &propagator{tr: tr, z: z, dyn: dyn, t0: t0, dt: tf - t0, step: (tf - t0) / float64(numSteps)}
	p.state = z.FirstState()
	p.hist = &Propagation{Times: []float64{t0}, States: [][]float64{append([]float64(nil), p.state...)}}
	ode.NewRK4(t0, p.step, p).Solve() // Blocking.
	if p.err != nil {
		return nil, p.err
	}
	final := z.LastState()
	diff := make([]float64, len(final))
	floats.SubTo(diff, p.state, final)
	p.hist.FinalError = floats.Norm(diff, math.Inf(1))
	tr.logger.Log("level", "info", "subsys", "propagate", "steps", numSteps, "finalErr", p.hist.FinalError)
	return p.hist, nil
}

// Stop implements the stop call of the integrator.
func (p *propagator) Stop(t float64) bool {
	if p.err != nil {
		return true
	}
	// Half a step of slack absorbs the accumulated rounding of t.
	return math.Abs(t-p.t0) >= math.Abs(p.dt)-math.Abs(p.step)/2
}

// GetState returns the state for the integrator.
func (p *propagator) GetState() []float64 {
	return append([]float64(nil), p.state...)
}

// SetState sets the updated state.
func (p *propagator) SetState(t float64, s []float64) {
	p.state = append(p.state[:0], s...)
	p.hist.Times = append(p.hist.Times, t)
	p.hist.States = append(p.hist.States, append([]float64(nil), s...))
}

// Func is the integration function.
func (p *propagator) Func(t float64, f []float64) []float64 {
	fDot := make([]float64, len(f))
	if p.err != nil {
		return fDot
	}
	u, err := p.tr.controlAt(p.z, (t-p.t0)/p.dt)
	if err != nil {
		p.err = err
		return fDot
	}
	out, err := p.dyn.Evaluate(t, f, u, p.z.Static())
	if err != nil {
		p.err = err
		return fDot
	}
	if len(out) != len(f) {
		p.err = configErrorf("dynamics returned %d values, expected %d", len(out), len(f))
		return fDot
	}
	if i := badValue(out); i >= 0 {
		p.err = &PointError{Kind: ErrNumerical, Phase: p.tr.Config.Name, Function: "dynamics", Point: -1, Mesh: -1, Stage: -1, Variable: "d(" + p.tr.Config.StateName(i) + ")/dt", Value: out[i]}
		return fDot
	}
	copy(fDot, out)
	return fDot
}

// controlAt interpolates the controls of z at the non-dimensional time tau.
func (tr *Transcription) controlAt(z *DecisionVector, tau float64) ([]float64, error) {
	nu := tr.Config.NumControls
	if nu == 0 {
		return nil, nil
	}
	s := tr.table.NumStages()
	nSteps := tr.Mesh.NumSteps()
	// First step whose end lies at or after tau.
	step := sort.Search(nSteps, func(i int) bool {
		return tr.Mesh.DiscTimes[tr.Mesh.PointIndex(i, s)] >= tau
	})
	if step == nSteps {
		step = nSteps - 1
	}
	nodes := make([]float64, s+1)
	ys := make([][]float64, nu)
	for c := range ys {
		ys[c] = make([]float64, s+1)
	}
	for j := 0; j <= s; j++ {
		point := tr.Mesh.PointIndex(step, j)
		nodes[j] = tr.Mesh.DiscTimes[point]
		for c, v := range z.ControlAtPoint(point) {
			ys[c][j] = v
		}
	}
	bary, err := interp.NewBaryLagrange(nodes)
	if err != nil {
		return nil, err
	}
	u := make([]float64, nu)
	for c := range u {
		if u[c], err = bary.Interpolate(tau, ys[c]); err != nil {
			return nil, err
		}
	}
	return u, nil
}
