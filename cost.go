package irk

import "fmt"

// InitializeConstantCostMatrices builds the quadrature row B of the integral cost and the
// sparsity pattern of the cost integrand partials (D).
func (tr *Transcription) InitializeConstantCostMatrices() error {
	if !tr.Config.HasIntegralCost() {
		tr.isCostMatInitialized = true
		return nil
	}
	mesh := tr.Mesh
	tr.costB = NewSparse(1, mesh.NumPoints())
	w := tr.table.Weights
	for step := 0; step < mesh.NumSteps(); step++ {
		h := mesh.StepSizeOf(step)
		for subStep := 0; subStep <= tr.table.NumStages(); subStep++ {
			// The closing point of a step gets the weights of both steps.
			tr.costB.Add(0, mesh.PointIndex(step, subStep), -w[subStep]*h)
		}
	}
	tr.costD = NewSparse(mesh.NumPoints(), tr.NumDecisionVars())
	for point := 0; point < mesh.NumPoints(); point++ {
		tr.patternRow(tr.costD, point, point, 0, tr.Config.CostStateSparsity, tr.Config.CostControlSparsity, tr.Config.CostStaticSparsity)
	}
	tr.isCostMatInitialized = true
	tr.logger.Log("level", "debug", "subsys", "transcription", "matrix", "cost", "B.nnz", tr.costB.NNZ(), "D.nnz", tr.costD.NNZ())
	return nil
}

// FillDynamicCostFuncMatrices evaluates the cost integrand at every point and stores
// Q = -Δt*g and its partials with respect to the decision vector.
func (tr *Transcription) FillDynamicCostFuncMatrices(z *DecisionVector, cost PathFunction) error {
	if !tr.isCostMatInitialized {
		return fmt.Errorf("%w: phase %q cost matrices filled before InitializeConstantCostMatrices", ErrPrecondition, tr.Config.Name)
	}
	if err := tr.checkVector(z); err != nil {
		return err
	}
	if !tr.Config.HasIntegralCost() {
		return nil
	}
	if cost == nil {
		return configErrorf("phase %q has an integral cost but no cost function", tr.Config.Name)
	}
	t0, tf := z.Times()
	dt := tf - t0
	tr.costQ = make([]float64, tr.Mesh.NumPoints())
	tr.costParQ = tr.costD.Clone()
	tr.costParQ.ZeroValues()
	for point := 0; point < tr.Mesh.NumPoints(); point++ {
		t, x, u, p := tr.pointInputs(z, point)
		ev, err := evaluatePoint(cost, 1, t, x, u, p, true)
		if err != nil {
			return tr.userError("cost", point, err)
		}
		if badValue(ev.values) >= 0 {
			return tr.pointError("cost", point, "integrand", ev.values[0])
		}
		if err := tr.checkJacobian("cost", point, ev); err != nil {
			return err
		}
		tr.costQ[point] = -dt * ev.values[0]
		tr.fillPathRow(tr.costParQ, point, point, 0, ev, dt, tr.Config.CostStateSparsity, tr.Config.CostControlSparsity, tr.Config.CostStaticSparsity)
	}
	return nil
}

// ComputeCost returns the integral cost and its gradient with respect to the decision vector.
func (tr *Transcription) ComputeCost(z *DecisionVector, cost PathFunction) (float64, []float64, error) {
	if err := tr.FillDynamicCostFuncMatrices(z, cost); err != nil {
		return 0, nil, err
	}
	grad := make([]float64, tr.NumDecisionVars())
	if !tr.Config.HasIntegralCost() {
		return 0, grad, nil
	}
	value := tr.costB.MulVec(tr.costQ)[0]
	jac := tr.costB.Mul(tr.costParQ)
	for _, j := range jac.RowNonZeros(0) {
		grad[j] = jac.At(0, j)
	}
	return value, grad, nil
}

// CostMatrices returns the constant quadrature row and the D pattern of the cost.
func (tr *Transcription) CostMatrices() (b, d *Sparse, err error) {
	if !tr.isCostMatInitialized {
		return nil, nil, fmt.Errorf("%w: phase %q cost matrices are not initialized", ErrPrecondition, tr.Config.Name)
	}
	return tr.costB, tr.costD, nil
}
