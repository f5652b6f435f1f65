package irk

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DecisionVector stores the NLP unknowns of a phase as
// [t0, tf, x0, u0, x1, u1, ..., xN, uN, static...].
type DecisionVector struct {
	mesh                 *Mesh
	numStates, numCtrls  int
	numStatic, numPoints int
	data                 []float64
}

// NewDecisionVector returns a zeroed decision vector for the mesh.
func NewDecisionVector(mesh *Mesh, numStates, numControls, numStatic int) *DecisionVector {
	d := &DecisionVector{mesh: mesh, numStates: numStates, numCtrls: numControls, numStatic: numStatic, numPoints: mesh.NumPoints()}
	d.data = make([]float64, d.NumDecisionVars())
	return d
}

// NumDecisionVars returns the length of the vector.
func (d *DecisionVector) NumDecisionVars() int {
	return 2 + d.numPoints*(d.numStates+d.numCtrls) + d.numStatic
}

// StateIdx returns the index of the first state of a point.
func (d *DecisionVector) StateIdx(point int) int {
	return 2 + point*(d.numStates+d.numCtrls)
}

// ControlIdx returns the index of the first control of a point.
func (d *DecisionVector) ControlIdx(point int) int {
	return d.StateIdx(point) + d.numStates
}

// StaticIdx returns the index of the first static parameter.
func (d *DecisionVector) StaticIdx() int {
	return 2 + d.numPoints*(d.numStates+d.numCtrls)
}

// Raw returns the underlying slice. It is shared with the decision vector.
func (d *DecisionVector) Raw() []float64 {
	return d.data
}

// SetRaw copies v into the decision vector.
func (d *DecisionVector) SetRaw(v []float64) error {
	if len(v) != len(d.data) {
		return configErrorf("decision vector has %d variables, got %d", len(d.data), len(v))
	}
	copy(d.data, v)
	return nil
}

// Clone returns a deep copy sharing the mesh.
func (d *DecisionVector) Clone() *DecisionVector {
	o := *d
	o.data = make([]float64, len(d.data))
	copy(o.data, d.data)
	return &o
}

// Times returns the initial and final times.
func (d *DecisionVector) Times() (t0, tf float64) {
	return d.data[0], d.data[1]
}

// SetTimes sets the initial and final times.
func (d *DecisionVector) SetTimes(t0, tf float64) {
	d.data[0], d.data[1] = t0, tf
}

// TimeAt returns the dimensional time of a point.
func (d *DecisionVector) TimeAt(point int) float64 {
	t0, tf := d.Times()
	return t0 + d.mesh.DiscTimes[point]*(tf-t0)
}

// StateAt returns a copy of the state at a stage of a step.
func (d *DecisionVector) StateAt(meshIdx, stageIdx int) []float64 {
	return d.StateAtPoint(d.mesh.PointIndex(meshIdx, stageIdx))
}

// ControlAt returns a copy of the control at a stage of a step.
func (d *DecisionVector) ControlAt(meshIdx, stageIdx int) []float64 {
	return d.ControlAtPoint(d.mesh.PointIndex(meshIdx, stageIdx))
}

// StateAtPoint returns a copy of the state at a global point.
func (d *DecisionVector) StateAtPoint(point int) []float64 {
	d.checkPoint(point)
	s := make([]float64, d.numStates)
	copy(s, d.data[d.StateIdx(point):])
	return s
}

// ControlAtPoint returns a copy of the control at a global point.
func (d *DecisionVector) ControlAtPoint(point int) []float64 {
	d.checkPoint(point)
	u := make([]float64, d.numCtrls)
	copy(u, d.data[d.ControlIdx(point):])
	return u
}

// SetStateAt sets the state at a stage of a step.
func (d *DecisionVector) SetStateAt(meshIdx, stageIdx int, state []float64) error {
	point := d.mesh.PointIndex(meshIdx, stageIdx)
	if len(state) != d.numStates {
		return configErrorf("state at point %d needs %d values, got %d", point, d.numStates, len(state))
	}
	d.checkPoint(point)
	copy(d.data[d.StateIdx(point):], state)
	return nil
}

// SetControlAt sets the control at a stage of a step.
func (d *DecisionVector) SetControlAt(meshIdx, stageIdx int, control []float64) error {
	point := d.mesh.PointIndex(meshIdx, stageIdx)
	if len(control) != d.numCtrls {
		return configErrorf("control at point %d needs %d values, got %d", point, d.numCtrls, len(control))
	}
	d.checkPoint(point)
	copy(d.data[d.ControlIdx(point):], control)
	return nil
}

// Static returns a copy of the static parameters.
func (d *DecisionVector) Static() []float64 {
	p := make([]float64, d.numStatic)
	copy(p, d.data[d.StaticIdx():])
	return p
}

// SetStatic sets the static parameters.
func (d *DecisionVector) SetStatic(p []float64) error {
	if len(p) != d.numStatic {
		return configErrorf("expected %d static parameters, got %d", d.numStatic, len(p))
	}
	copy(d.data[d.StaticIdx():], p)
	return nil
}

// FirstState returns the state at the first point.
func (d *DecisionVector) FirstState() []float64 {
	return d.StateAtPoint(0)
}

// LastState returns the state at the last point.
func (d *DecisionVector) LastState() []float64 {
	return d.StateAtPoint(d.numPoints - 1)
}

// StateArray returns the states as a points by states matrix.
func (d *DecisionVector) StateArray() *mat.Dense {
	if d.numStates == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(d.numPoints, d.numStates, nil)
	for k := 0; k < d.numPoints; k++ {
		m.SetRow(k, d.data[d.StateIdx(k):d.StateIdx(k)+d.numStates])
	}
	return m
}

// ControlArray returns the controls as a points by controls matrix.
func (d *DecisionVector) ControlArray() *mat.Dense {
	if d.numCtrls == 0 {
		return &mat.Dense{}
	}
	m := mat.NewDense(d.numPoints, d.numCtrls, nil)
	for k := 0; k < d.numPoints; k++ {
		m.SetRow(k, d.data[d.ControlIdx(k):d.ControlIdx(k)+d.numCtrls])
	}
	return m
}

// SetFromArrays sets every state and control from points by variables matrices.
func (d *DecisionVector) SetFromArrays(states, controls mat.Matrix) error {
	if d.numStates > 0 {
		if r, c := states.Dims(); r != d.numPoints || c != d.numStates {
			return configErrorf("state array is %dx%d, expected %dx%d", r, c, d.numPoints, d.numStates)
		}
	}
	if d.numCtrls > 0 {
		if r, c := controls.Dims(); r != d.numPoints || c != d.numCtrls {
			return configErrorf("control array is %dx%d, expected %dx%d", r, c, d.numPoints, d.numCtrls)
		}
	}
	for k := 0; k < d.numPoints; k++ {
		for i := 0; i < d.numStates; i++ {
			d.data[d.StateIdx(k)+i] = states.At(k, i)
		}
		for i := 0; i < d.numCtrls; i++ {
			d.data[d.ControlIdx(k)+i] = controls.At(k, i)
		}
	}
	return nil
}

func (d *DecisionVector) checkPoint(point int) {
	if point < 0 || point >= d.numPoints {
		panic(fmt.Errorf("point %d out of range [0, %d)", point, d.numPoints))
	}
}
