package irk

import (
	"math"

	"github.com/ChristopherRabotin/irk/interp"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/mat"
)

// RefineResult is the outcome of one mesh refinement pass.
type RefineResult struct {
	Unchanged    bool
	Fractions    []float64
	NumPoints    []int
	StateGuess   *mat.Dense // new points by states
	ControlGuess *mat.Dense // new points by controls
	MaxRelErrors []float64  // per interval of the evaluated mesh
	StepErrors   []float64  // per step of the evaluated mesh
}

// Added returns the number of points the refinement added.
func (r *RefineResult) Added(previous []int) int {
	added := 0
	for _, n := range r.NumPoints {
		added += n
	}
	for _, n := range previous {
		added -= n
	}
	return added
}

// RefineMesh estimates the collocation error of z and returns either the unchanged mesh
// or a refined mesh with interpolated initial guesses.
func (tr *Transcription) RefineMesh(z *DecisionVector, dyn PathFunction, settings RefineSettings) (*RefineResult, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := tr.checkVector(z); err != nil {
		return nil, err
	}
	if !tr.Config.HasDefects() {
		return tr.unchanged(z, nil, nil), nil
	}
	scaled, err := tr.scaledDynamics(z, dyn)
	if err != nil {
		return nil, err
	}
	stepErrs, err := tr.collocErrorVec(z, dyn, scaled, settings.RombergDigits)
	if err != nil {
		return nil, err
	}
	maxErrs := tr.intervalMaxErrors(stepErrs)
	// Order reduction needs the error history of the previous mesh, which is not tracked.
	orderReduction := make([]int, len(maxErrs))

	var fractions []float64
	var numPoints []int
	totalAdded := 0
	for i, maxErr := range maxErrs {
		fr, pts, added := tr.newMeshPoints(i, maxErr, stepErrs, orderReduction[i], settings)
		fractions = append(fractions, fr...)
		numPoints = append(numPoints, pts...)
		totalAdded += added
		tr.logger.Log("level", "info", "subsys", "refine", "interval", i, "maxRelErr", maxErr, "added", added, "pieces", len(pts))
	}
	if totalAdded == 0 {
		tr.logger.Log("level", "notice", "subsys", "refine", "status", "converged", "maxRelErr", floats.Max(maxErrs))
		return tr.unchanged(z, stepErrs, maxErrs), nil
	}
	fractions = append(fractions, 1)

	newMesh, err := NewMesh(tr.table, fractions, numPoints, tr.logger)
	if err != nil {
		return nil, err
	}
	states, controls, err := tr.interpolateInMesh(z, scaled, newMesh.DiscTimes)
	if err != nil {
		return nil, err
	}
	tr.logger.Log("level", "notice", "subsys", "refine", "status", "refined", "added", totalAdded, "intervals", len(numPoints), "points", newMesh.NumPoints())
	return &RefineResult{Fractions: fractions, NumPoints: numPoints, StateGuess: states, ControlGuess: controls, MaxRelErrors: maxErrs, StepErrors: stepErrs}, nil
}

func (tr *Transcription) unchanged(z *DecisionVector, stepErrs, maxErrs []float64) *RefineResult {
	r := &RefineResult{Unchanged: true, StepErrors: stepErrs, MaxRelErrors: maxErrs}
	r.Fractions = append([]float64(nil), tr.Mesh.IntervalFractions...)
	r.NumPoints = append([]int(nil), tr.Mesh.IntervalNumPoints...)
	r.StateGuess = z.StateArray()
	r.ControlGuess = z.ControlArray()
	return r
}

// CollocationErrors returns the relative collocation error of every step.
func (tr *Transcription) CollocationErrors(z *DecisionVector, dyn PathFunction, rombergDigits int) ([]float64, error) {
	if err := tr.checkVector(z); err != nil {
		return nil, err
	}
	if rombergDigits < 2 {
		return nil, configErrorf("Romberg digits must be at least 2, got %d", rombergDigits)
	}
	scaled, err := tr.scaledDynamics(z, dyn)
	if err != nil {
		return nil, err
	}
	return tr.collocErrorVec(z, dyn, scaled, rombergDigits)
}

// scaledDynamics returns Δt*f at every point, the derivative of the state with respect
// to the non-dimensional time.
func (tr *Transcription) scaledDynamics(z *DecisionVector, dyn PathFunction) ([][]float64, error) {
	if dyn == nil {
		return nil, configErrorf("phase %q has %d states but no dynamics function", tr.Config.Name, tr.Config.NumStates)
	}
	t0, tf := z.Times()
	dt := tf - t0
	if dt == 0 {
		return nil, configErrorf("phase %q has a zero duration", tr.Config.Name)
	}
	out := make([][]float64, tr.Mesh.NumPoints())
	for point := range out {
		t, x, u, p := tr.pointInputs(z, point)
		ev, err := evaluatePoint(dyn, tr.Config.NumStates, t, x, u, p, false)
		if err != nil {
			return nil, tr.userError("dynamics", point, err)
		}
		if i := badValue(ev.values); i >= 0 {
			return nil, tr.pointError("dynamics", point, "d("+tr.Config.StateName(i)+")/dt", ev.values[i])
		}
		floats.Scale(dt, ev.values)
		out[point] = ev.values
	}
	return out, nil
}

// collocErrorVec returns the error of every step.
func (tr *Transcription) collocErrorVec(z *DecisionVector, dyn PathFunction, scaled [][]float64, digits int) ([]float64, error) {
	errs := make([]float64, tr.Mesh.NumSteps())
	for step := range errs {
		e, err := tr.stepError(step, z, dyn, scaled, digits)
		if err != nil {
			return nil, err
		}
		errs[step] = e
	}
	return errs, nil
}

// stepError integrates |dx̃/dτ - Δt*f(x̃, ũ)|/Δt over a step with Romberg's method, where
// x̃ is the Hermite interpolant of the stage states and ũ the Lagrange interpolant of the
// stage controls. Each state's integral is normalized by 1 + the largest magnitude of the
// state and of its unscaled derivative f over the stages.
func (tr *Transcription) stepError(step int, z *DecisionVector, dyn PathFunction, scaled [][]float64, digits int) (float64, error) {
	s := tr.table.NumStages()
	nx, nu := tr.Config.NumStates, tr.Config.NumControls
	t0, tf := z.Times()
	dt := tf - t0
	p := z.Static()

	nodes := make([]float64, s+1)
	states := make([][]float64, s+1)
	derivs := make([][]float64, s+1)
	weights := make([]float64, nx)
	var controls *mat.Dense
	if nu > 0 {
		controls = mat.NewDense(s+1, nu, nil)
	}
	for j := 0; j <= s; j++ {
		point := tr.Mesh.PointIndex(step, j)
		nodes[j] = tr.Mesh.DiscTimes[point]
		states[j] = z.StateAtPoint(point)
		derivs[j] = scaled[point]
		if j < s {
			for i := range weights {
				weights[i] = math.Max(weights[i], math.Max(math.Abs(states[j][i]), math.Abs(derivs[j][i]/dt)))
			}
		}
		if nu > 0 {
			controls.SetRow(j, z.ControlAtPoint(point))
		}
	}
	hv, err := interp.NewHermiteVec(nodes, states, derivs)
	if err != nil {
		return 0, err
	}
	n := 1<<uint(digits-1) + 1
	samples := floats.Span(make([]float64, n), nodes[0], nodes[s])
	var ctrlSamples *mat.Dense
	if nu > 0 {
		bary, err := interp.NewBaryLagrange(nodes)
		if err != nil {
			return 0, err
		}
		if ctrlSamples, err = bary.InterpolateMatrix(samples, controls); err != nil {
			return 0, err
		}
	}

	firstPoint := tr.Mesh.PointIndex(step, 0)
	integrand := mat.NewDense(nx, n, nil)
	u := make([]float64, nu)
	for q, tau := range samples {
		x, dx := hv.Eval(tau)
		if nu > 0 {
			mat.Row(u, q, ctrlSamples)
		}
		f, err := dyn.Evaluate(t0+tau*dt, x, u, p)
		if err != nil {
			return 0, tr.userError("dynamics", firstPoint, err)
		}
		if len(f) != nx {
			return 0, configErrorf("dynamics returned %d values, expected %d", len(f), nx)
		}
		if i := badValue(f); i >= 0 {
			return 0, tr.pointError("dynamics", firstPoint, "d("+tr.Config.StateName(i)+")/dt", f[i])
		}
		for i := 0; i < nx; i++ {
			integrand.Set(i, q, math.Abs(dx[i]-dt*f[i])/math.Abs(dt))
		}
	}
	dtau := (nodes[s] - nodes[0]) / float64(n-1)
	stepErr := 0.0
	for i := 0; i < nx; i++ {
		e := integrate.Romberg(integrand.RawRowView(i), dtau) / (1 + weights[i])
		stepErr = math.Max(stepErr, e)
	}
	return stepErr, nil
}

// intervalMaxErrors returns the worst step error of each interval.
func (tr *Transcription) intervalMaxErrors(stepErrs []float64) []float64 {
	maxErrs := make([]float64, len(tr.Mesh.IntervalNumPoints))
	for i := range maxErrs {
		first, count := tr.Mesh.IntervalSteps(i)
		maxErrs[i] = floats.Max(stepErrs[first : first+count])
	}
	return maxErrs
}

// addedPoints returns how many points bring the extrapolated error of an interval with
// n points under the tolerance.
func addedPoints(maxErr float64, n, order, orderReduction int, s RefineSettings) int {
	if maxErr < s.RelErrorTol {
		return 0
	}
	add := 0
	for add < s.MaxAddNodeNumPerIntv && maxErr*math.Pow(float64(n)/float64(n+add), float64(order-orderReduction+1)) > s.RelErrorTol {
		add++
	}
	return add
}

// newMeshPoints returns the fractions and point counts replacing an interval, and the
// number of points added. Intervals which would grow past MaxTotalNodeNumPerIntv are
// split along their steps and each piece is sized from its own error.
func (tr *Transcription) newMeshPoints(interval int, maxErr float64, stepErrs []float64, orderReduction int, s RefineSettings) ([]float64, []int, int) {
	order := tr.table.Order()
	n := tr.Mesh.IntervalNumPoints[interval]
	start := tr.Mesh.IntervalFractions[interval]
	span := tr.Mesh.IntervalFractions[interval+1] - start
	add := addedPoints(maxErr, n, order, orderReduction, s)
	if add == 0 {
		return []float64{start}, []int{n}, 0
	}
	if add+n <= s.MaxTotalNodeNumPerIntv {
		return []float64{start}, []int{n + add}, add
	}

	numSteps := n - 1
	pieces := (add+n)/s.MaxTotalNodeNumPerIntv + 1
	if pieces > numSteps {
		pieces = numSteps
	}
	firstStep, _ := tr.Mesh.IntervalSteps(interval)
	stepsPerPiece := numSteps / pieces
	fractions := make([]float64, 0, pieces)
	points := make([]int, 0, pieces)
	total := 0
	for q := 0; q < pieces; q++ {
		from := q * stepsPerPiece
		count := stepsPerPiece
		if q == pieces-1 {
			count = numSteps - from
		}
		pieceErr := floats.Max(stepErrs[firstStep+from : firstStep+from+count])
		// Every piece of a split interval gains at least one point.
		pieceAdd := max(1, addedPoints(pieceErr, count+1, order, orderReduction, s))
		if total+pieceAdd > s.MaxAddedPerInterval {
			pieceAdd = s.MaxAddedPerInterval - total
		}
		total += pieceAdd
		fractions = append(fractions, start+span*float64(from)/float64(numSteps))
		points = append(points, count+1+pieceAdd)
	}
	return fractions, points, total
}

// OrderReduction estimates how much lower than order the observed convergence of an
// interval was, from its error before (oldErr, oldPoints) and after (newErr, newPoints) a
// refinement. The result lies within [0, order].
func OrderReduction(order int, oldErr, newErr float64, oldPoints, newPoints int) int {
	if oldErr <= 0 || newErr <= 0 || oldPoints == newPoints {
		return 0
	}
	rk := float64(order) + 1 - math.Log(oldErr/newErr)/math.Log(float64(newPoints)/float64(oldPoints))
	rk = math.Max(0, math.Min(float64(order), rk))
	return int(math.Round(rk))
}

// interpolateInMesh returns the states and controls of z at the new discretization
// times, interpolating within the old step containing each time.
func (tr *Transcription) interpolateInMesh(z *DecisionVector, scaled [][]float64, newTimes []float64) (*mat.Dense, *mat.Dense, error) {
	s := tr.table.NumStages()
	nx, nu := tr.Config.NumStates, tr.Config.NumControls
	states := newDenseOrEmpty(len(newTimes), nx)
	controls := newDenseOrEmpty(len(newTimes), nu)
	next := 0
	lastStep := tr.Mesh.NumSteps() - 1
	for step := 0; step <= lastStep && next < len(newTimes); step++ {
		end := tr.Mesh.DiscTimes[tr.Mesh.PointIndex(step, s)]
		var at []float64
		for next < len(newTimes) && (newTimes[next] < end || step == lastStep) {
			at = append(at, newTimes[next])
			next++
		}
		if len(at) == 0 {
			continue
		}
		nodes := make([]float64, s+1)
		stageStates := make([][]float64, s+1)
		stageDerivs := make([][]float64, s+1)
		var stageCtrls *mat.Dense
		if nu > 0 {
			stageCtrls = mat.NewDense(s+1, nu, nil)
		}
		for j := 0; j <= s; j++ {
			point := tr.Mesh.PointIndex(step, j)
			nodes[j] = tr.Mesh.DiscTimes[point]
			stageStates[j] = z.StateAtPoint(point)
			stageDerivs[j] = scaled[point]
			if nu > 0 {
				stageCtrls.SetRow(j, z.ControlAtPoint(point))
			}
		}
		first := next - len(at)
		if nx > 0 {
			hv, err := interp.NewHermiteVec(nodes, stageStates, stageDerivs)
			if err != nil {
				return nil, nil, err
			}
			for q, tau := range at {
				x, _ := hv.Eval(tau)
				states.SetRow(first+q, x)
			}
		}
		if nu > 0 {
			bary, err := interp.NewBaryLagrange(nodes)
			if err != nil {
				return nil, nil, err
			}
			u, err := bary.InterpolateMatrix(at, stageCtrls)
			if err != nil {
				return nil, nil, err
			}
			for q := range at {
				controls.SetRow(first+q, u.RawRowView(q))
			}
		}
	}
	return states, controls, nil
}
