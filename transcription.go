package irk

import (
	"fmt"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/mat"
)

// Transcription turns the dynamics and cost of one phase into NLP functions on a mesh
// using a Lobatto IIIA collocation method. It is not safe for concurrent use; use one
// Transcription per phase.
type Transcription struct {
	Config PhaseConfig
	Mesh   *Mesh
	table  *ButcherTable
	logger kitlog.Logger
	layout *DecisionVector // only used for its index arithmetic

	// Defect constraints: values = A*z + B*Q, jacobian = A + B*parQ.
	defA, defB, defD    *Sparse
	defQ                []float64
	defParQ             *Sparse
	isConMatInitialized bool

	// Integral cost: value = B*Q, gradient = B*parQ.
	costB, costD         *Sparse
	costQ                []float64
	costParQ             *Sparse
	isCostMatInitialized bool
}

// NewTranscription returns the transcription of a phase on the provided mesh.
func NewTranscription(method string, cfg PhaseConfig, fractions []float64, numPoints []int, logger kitlog.Logger) (*Transcription, error) {
	if logger == nil {
		logger = kitlog.NewNopLogger()
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	table, err := NewButcherTable(method)
	if err != nil {
		return nil, err
	}
	mesh, err := NewMesh(table, fractions, numPoints, logger)
	if err != nil {
		return nil, err
	}
	tr := &Transcription{Config: cfg, Mesh: mesh, table: table, logger: kitlog.With(logger, "phase", cfg.Name)}
	tr.layout = tr.NewDecisionVector()
	tr.logger.Log("level", "debug", "subsys", "transcription", "method", table.Method, "intervals", len(numPoints), "steps", mesh.NumSteps(), "points", mesh.NumPoints(), "variables", tr.NumDecisionVars())
	return tr, nil
}

// Table returns the Butcher table of the transcription.
func (tr *Transcription) Table() *ButcherTable {
	return tr.table
}

// NewDecisionVector returns a zeroed decision vector laid out for this transcription.
func (tr *Transcription) NewDecisionVector() *DecisionVector {
	return NewDecisionVector(tr.Mesh, tr.Config.NumStates, tr.Config.NumControls, tr.Config.NumStatic)
}

// NumDecisionVars returns the number of NLP variables.
func (tr *Transcription) NumDecisionVars() int {
	return tr.layout.NumDecisionVars()
}

// NumDefectConstraints returns the number of defect constraints, each being one row per state.
func (tr *Transcription) NumDefectConstraints() int {
	if !tr.Config.HasDefects() {
		return 0
	}
	return tr.Mesh.NumSteps() * tr.table.NumDefectsPerStep
}

// NumDefectRows returns the number of scalar defect constraints.
func (tr *Transcription) NumDefectRows() int {
	return tr.Config.NumStates * tr.NumDefectConstraints()
}

// NumODERHS returns the number of dynamics evaluations, one row per state and point.
func (tr *Transcription) NumODERHS() int {
	return tr.Config.NumStates * tr.Mesh.NumPoints()
}

func (tr *Transcription) checkVector(z *DecisionVector) error {
	if z == nil {
		return configErrorf("nil decision vector")
	}
	if z.NumDecisionVars() != tr.NumDecisionVars() || z.mesh.NumPoints() != tr.Mesh.NumPoints() {
		return configErrorf("decision vector has %d variables, transcription expects %d", z.NumDecisionVars(), tr.NumDecisionVars())
	}
	return nil
}

// pointError returns the error of a NaN or Inf output of a user function at a point.
func (tr *Transcription) pointError(function string, point int, variable string, value float64) error {
	return &PointError{
		Kind:     ErrNumerical,
		Phase:    tr.Config.Name,
		Function: function,
		Point:    point,
		Mesh:     tr.Mesh.MeshIndex(point),
		Stage:    tr.Mesh.StageIndex(point),
		Variable: variable,
		Value:    value,
	}
}

// userError wraps an error returned by a user function.
func (tr *Transcription) userError(function string, point int, err error) error {
	return fmt.Errorf("phase %q %s function at point %d (mesh %d, stage %d): %w", tr.Config.Name, function, point, tr.Mesh.MeshIndex(point), tr.Mesh.StageIndex(point), err)
}

// pointInputs returns the dimensional time, state, control and static at a point.
func (tr *Transcription) pointInputs(z *DecisionVector, point int) (t float64, x, u, p []float64) {
	return z.TimeAt(point), z.StateAtPoint(point), z.ControlAtPoint(point), z.Static()
}

// fillPathRow writes the time, state, control and static partials of output i of a
// function evaluated at a point into the row of parQ, scaled by -Δt.
func (tr *Transcription) fillPathRow(parQ *Sparse, row, point, i int, ev *pointEval, dt float64, stateSp, ctrlSp, staticSp Sparsity) {
	tau := tr.Mesh.DiscTimes[point]
	f := ev.values[i]
	dfdt := ev.jac.Time[i]
	parQ.Set(row, 0, f-dt*(1-tau)*dfdt)
	parQ.Set(row, 1, -f-dt*tau*dfdt)
	sIdx := tr.layout.StateIdx(point)
	for j := 0; j < tr.Config.NumStates; j++ {
		if stateSp.Has(i, j) {
			parQ.Set(row, sIdx+j, -dt*denseAt(ev.jac.State, i, j))
		}
	}
	cIdx := tr.layout.ControlIdx(point)
	for j := 0; j < tr.Config.NumControls; j++ {
		if ctrlSp.Has(i, j) {
			parQ.Set(row, cIdx+j, -dt*denseAt(ev.jac.Control, i, j))
		}
	}
	pIdx := tr.layout.StaticIdx()
	for j := 0; j < tr.Config.NumStatic; j++ {
		if staticSp.Has(i, j) {
			parQ.Set(row, pIdx+j, -dt*denseAt(ev.jac.Static, i, j))
		}
	}
}

// patternRow sets the D pattern of output i of a path function at a point.
func (tr *Transcription) patternRow(d *Sparse, row, point, i int, stateSp, ctrlSp, staticSp Sparsity) {
	d.Set(row, 0, 1)
	d.Set(row, 1, 1)
	sIdx := tr.layout.StateIdx(point)
	for j := 0; j < tr.Config.NumStates; j++ {
		if stateSp.Has(i, j) {
			d.Set(row, sIdx+j, 1)
		}
	}
	cIdx := tr.layout.ControlIdx(point)
	for j := 0; j < tr.Config.NumControls; j++ {
		if ctrlSp.Has(i, j) {
			d.Set(row, cIdx+j, 1)
		}
	}
	pIdx := tr.layout.StaticIdx()
	for j := 0; j < tr.Config.NumStatic; j++ {
		if staticSp.Has(i, j) {
			d.Set(row, pIdx+j, 1)
		}
	}
}

// checkJacobian reports the first NaN or Inf partial of a point evaluation.
func (tr *Transcription) checkJacobian(function string, point int, ev *pointEval) error {
	if i := badValue(ev.jac.Time); i >= 0 {
		return tr.pointError(function, point, fmt.Sprintf("d(output[%d])/dt", i), ev.jac.Time[i])
	}
	parts := []struct {
		m    *mat.Dense
		name func(int) string
	}{
		{ev.jac.State, tr.Config.StateName},
		{ev.jac.Control, tr.Config.ControlName},
		{ev.jac.Static, func(j int) string { return fmt.Sprintf("static[%d]", j) }},
	}
	for _, part := range parts {
		if part.m == nil || part.m.IsEmpty() {
			continue
		}
		r, _ := part.m.Dims()
		for i := 0; i < r; i++ {
			if j := badValue(part.m.RawRowView(i)); j >= 0 {
				return tr.pointError(function, point, fmt.Sprintf("d(output[%d])/d(%s)", i, part.name(j)), part.m.At(i, j))
			}
		}
	}
	return nil
}
