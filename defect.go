package irk

import "fmt"

// InitializeConstantDefectMatrices builds the A and B matrices of the defect constraints
// and the sparsity pattern of the dynamics partials (D). It only depends on the mesh.
func (tr *Transcription) InitializeConstantDefectMatrices() error {
	if !tr.Config.HasDefects() {
		tr.isConMatInitialized = true
		return nil
	}
	nx := tr.Config.NumStates
	mesh := tr.Mesh
	rows := tr.NumDefectRows()
	tr.defA = NewSparse(rows, tr.NumDecisionVars())
	tr.defB = NewSparse(rows, tr.NumODERHS())
	row := 0
	for step := 0; step < mesh.NumSteps(); step++ {
		h := mesh.StepSizeOf(step)
		for defectIdx := 0; defectIdx < tr.table.NumDefectsPerStep; defectIdx++ {
			for subStep := 0; subStep <= tr.table.NumStages(); subStep++ {
				point := mesh.PointIndex(step, subStep)
				aChunk, bChunk, err := tr.table.GetDependencyChunk(defectIdx, subStep, nx)
				if err != nil {
					return err
				}
				tr.defA.AddBlock(row, tr.layout.StateIdx(point), aChunk, 1)
				tr.defB.AddBlock(row, point*nx, bChunk, -h)
			}
			row += nx
		}
	}

	tr.defD = NewSparse(tr.NumODERHS(), tr.NumDecisionVars())
	for point := 0; point < mesh.NumPoints(); point++ {
		for i := 0; i < nx; i++ {
			tr.patternRow(tr.defD, point*nx+i, point, i, tr.Config.DynStateSparsity, tr.Config.DynControlSparsity, tr.Config.DynStaticSparsity)
		}
	}
	tr.isConMatInitialized = true
	tr.logger.Log("level", "debug", "subsys", "transcription", "matrix", "defect", "rows", rows, "A.nnz", tr.defA.NNZ(), "B.nnz", tr.defB.NNZ(), "D.nnz", tr.defD.NNZ())
	return nil
}

// FillDynamicDefectConMatrices evaluates the dynamics at every point and stores
// Q = -Δt*f and its partials with respect to the decision vector.
func (tr *Transcription) FillDynamicDefectConMatrices(z *DecisionVector, dyn PathFunction) error {
	if !tr.isConMatInitialized {
		return fmt.Errorf("%w: phase %q defect matrices filled before InitializeConstantDefectMatrices", ErrPrecondition, tr.Config.Name)
	}
	if err := tr.checkVector(z); err != nil {
		return err
	}
	if !tr.Config.HasDefects() {
		return nil
	}
	if dyn == nil {
		return configErrorf("phase %q has %d states but no dynamics function", tr.Config.Name, tr.Config.NumStates)
	}
	nx := tr.Config.NumStates
	t0, tf := z.Times()
	dt := tf - t0
	tr.defQ = make([]float64, tr.NumODERHS())
	tr.defParQ = tr.defD.Clone()
	tr.defParQ.ZeroValues()
	for point := 0; point < tr.Mesh.NumPoints(); point++ {
		t, x, u, p := tr.pointInputs(z, point)
		ev, err := evaluatePoint(dyn, nx, t, x, u, p, true)
		if err != nil {
			return tr.userError("dynamics", point, err)
		}
		if i := badValue(ev.values); i >= 0 {
			return tr.pointError("dynamics", point, "d("+tr.Config.StateName(i)+")/dt", ev.values[i])
		}
		if err := tr.checkJacobian("dynamics", point, ev); err != nil {
			return err
		}
		for i := 0; i < nx; i++ {
			row := point*nx + i
			tr.defQ[row] = -dt * ev.values[i]
			tr.fillPathRow(tr.defParQ, row, point, i, ev, dt, tr.Config.DynStateSparsity, tr.Config.DynControlSparsity, tr.Config.DynStaticSparsity)
		}
	}
	return nil
}

// ComputeDefects returns the defect constraint values and their jacobian with respect to
// the decision vector.
func (tr *Transcription) ComputeDefects(z *DecisionVector, dyn PathFunction) ([]float64, *Sparse, error) {
	if err := tr.FillDynamicDefectConMatrices(z, dyn); err != nil {
		return nil, nil, err
	}
	if !tr.Config.HasDefects() {
		return nil, NewSparse(0, tr.NumDecisionVars()), nil
	}
	values := tr.defA.MulVec(z.Raw())
	bq := tr.defB.MulVec(tr.defQ)
	for i := range values {
		values[i] += bq[i]
	}
	jac := tr.defA.Plus(tr.defB.Mul(tr.defParQ))
	return values, jac, nil
}

// DefectMatrices returns the constant A and B matrices and the D pattern.
func (tr *Transcription) DefectMatrices() (a, b, d *Sparse, err error) {
	if !tr.isConMatInitialized {
		return nil, nil, nil, fmt.Errorf("%w: phase %q defect matrices are not initialized", ErrPrecondition, tr.Config.Name)
	}
	return tr.defA, tr.defB, tr.defD, nil
}
