package irk

// ComputeAlgebraicPath evaluates an algebraic path function with nOut outputs at every
// point. Row point*nOut+i of the jacobian holds the partials of output i at that point.
func (tr *Transcription) ComputeAlgebraicPath(z *DecisionVector, fn PathFunction, nOut int) ([]float64, *Sparse, error) {
	if err := tr.checkVector(z); err != nil {
		return nil, nil, err
	}
	if nOut <= 0 {
		return nil, nil, configErrorf("phase %q algebraic path function needs at least one output", tr.Config.Name)
	}
	if fn == nil {
		return nil, nil, configErrorf("phase %q has no algebraic path function", tr.Config.Name)
	}
	nPts := tr.Mesh.NumPoints()
	values := make([]float64, nPts*nOut)
	jac := NewSparse(nPts*nOut, tr.NumDecisionVars())
	for point := 0; point < nPts; point++ {
		tau := tr.Mesh.DiscTimes[point]
		t, x, u, p := tr.pointInputs(z, point)
		ev, err := evaluatePoint(fn, nOut, t, x, u, p, true)
		if err != nil {
			return nil, nil, tr.userError("path", point, err)
		}
		if i := badValue(ev.values); i >= 0 {
			return nil, nil, tr.pointError("path", point, "constraint", ev.values[i])
		}
		if err := tr.checkJacobian("path", point, ev); err != nil {
			return nil, nil, err
		}
		sIdx, cIdx, pIdx := tr.layout.StateIdx(point), tr.layout.ControlIdx(point), tr.layout.StaticIdx()
		for i := 0; i < nOut; i++ {
			row := point*nOut + i
			values[row] = ev.values[i]
			jac.Set(row, 0, (1-tau)*ev.jac.Time[i])
			jac.Set(row, 1, tau*ev.jac.Time[i])
			for j := 0; j < tr.Config.NumStates; j++ {
				jac.Set(row, sIdx+j, denseAt(ev.jac.State, i, j))
			}
			for j := 0; j < tr.Config.NumControls; j++ {
				jac.Set(row, cIdx+j, denseAt(ev.jac.Control, i, j))
			}
			for j := 0; j < tr.Config.NumStatic; j++ {
				jac.Set(row, pIdx+j, denseAt(ev.jac.Static, i, j))
			}
		}
	}
	return values, jac, nil
}
