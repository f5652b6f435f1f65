package phase

import (
	"math"

	"github.com/ChristopherRabotin/irk"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// fixedVar is a decision variable held to a value by an equality constraint.
type fixedVar struct {
	idx   int
	value float64
}

// problem is the nonlinear program of a phase on its current mesh.
type problem struct {
	p     *Phase
	z     *irk.DecisionVector // scratch vector evaluated by the transcription
	fixed []fixedVar
}

func (p *Phase) problem() *problem {
	pb := &problem{p: p, z: p.z.Clone()}
	b := p.def.Bounds
	add := func(idx int, v float64) {
		if !math.IsNaN(v) {
			pb.fixed = append(pb.fixed, fixedVar{idx, v})
		}
	}
	add(0, b.T0)
	add(1, b.TF)
	last := p.tr.Mesh.NumPoints() - 1
	for i, v := range b.InitialState {
		add(p.z.StateIdx(0)+i, v)
	}
	for i, v := range b.FinalState {
		add(p.z.StateIdx(last)+i, v)
	}
	return pb
}

// Dims implements nlp.Problem.
func (pb *problem) Dims() (int, int) {
	return pb.p.tr.NumDecisionVars(), pb.p.tr.NumDefectRows() + pb.numPathRows() + len(pb.fixed)
}

func (pb *problem) numPathRows() int {
	return pb.p.def.NumPath * pb.p.tr.Mesh.NumPoints()
}

// Objective implements nlp.Problem with the integral and Mayer costs.
func (pb *problem) Objective(x []float64) (float64, []float64, error) {
	if err := pb.z.SetRaw(x); err != nil {
		return 0, nil, err
	}
	def := pb.p.def
	f, grad, err := pb.p.tr.ComputeCost(pb.z, def.Cost)
	if err != nil {
		return 0, nil, err
	}
	if def.Mayer == nil {
		return f, grad, nil
	}
	idx := pb.boundaryIndices()
	bnd := make([]float64, len(idx))
	for i, j := range idx {
		bnd[i] = x[j]
	}
	var evalErr error
	mayer := func(v []float64) float64 {
		val, err := pb.evalMayer(v)
		if err != nil && evalErr == nil {
			evalErr = err
		}
		return val
	}
	m, err := pb.evalMayer(bnd)
	if err != nil {
		return 0, nil, err
	}
	g := fd.Gradient(nil, mayer, bnd, &fd.Settings{Formula: fd.Central})
	if evalErr != nil {
		return 0, nil, evalErr
	}
	for i, j := range idx {
		grad[j] += g[i]
	}
	return f + m, grad, nil
}

// boundaryIndices returns the indices of [t0, tf, x0, xf, static] in the decision vector.
func (pb *problem) boundaryIndices() []int {
	nx := pb.p.def.Config.NumStates
	last := pb.p.tr.Mesh.NumPoints() - 1
	idx := []int{0, 1}
	for i := 0; i < nx; i++ {
		idx = append(idx, pb.z.StateIdx(0)+i)
	}
	for i := 0; i < nx; i++ {
		idx = append(idx, pb.z.StateIdx(last)+i)
	}
	for i := 0; i < pb.p.def.Config.NumStatic; i++ {
		idx = append(idx, pb.z.StaticIdx()+i)
	}
	return idx
}

func (pb *problem) evalMayer(b []float64) (float64, error) {
	nx := pb.p.def.Config.NumStates
	return pb.p.def.Mayer.Evaluate(b[0], b[1], b[2:2+nx], b[2+nx:2+2*nx], b[2+2*nx:])
}

// Constraints implements nlp.Problem: the defects, then the path constraints, then the
// fixed end point values.
func (pb *problem) Constraints(x []float64) ([]float64, mat.Matrix, error) {
	if err := pb.z.SetRaw(x); err != nil {
		return nil, nil, err
	}
	tr := pb.p.tr
	_, m := pb.Dims()
	c := make([]float64, 0, m)
	jac := irk.NewSparse(m, tr.NumDecisionVars())

	defects, defJac, err := tr.ComputeDefects(pb.z, pb.p.def.Dynamics)
	if err != nil {
		return nil, nil, err
	}
	row := copyRows(jac, 0, defJac)
	c = append(c, defects...)

	if pb.p.def.NumPath > 0 {
		path, pathJac, err := tr.ComputeAlgebraicPath(pb.z, pb.p.def.Path, pb.p.def.NumPath)
		if err != nil {
			return nil, nil, err
		}
		row = copyRows(jac, row, pathJac)
		c = append(c, path...)
	}

	for _, f := range pb.fixed {
		jac.Set(row, f.idx, 1)
		c = append(c, x[f.idx]-f.value)
		row++
	}
	return c, jac, nil
}

// copyRows copies the rows of src into dst from row and returns the next free row.
func copyRows(dst *irk.Sparse, row int, src *irk.Sparse) int {
	r, _ := src.Dims()
	for i := 0; i < r; i++ {
		for _, j := range src.RowNonZeros(i) {
			dst.Set(row+i, j, src.At(i, j))
		}
	}
	return row + r
}
