package irk

import (
	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

// Mesh is the mesh topology of a phase: interval fractions, points per interval and the
// discretization grid they induce for a given tableau.
type Mesh struct {
	Table             *ButcherTable
	IntervalFractions []float64 // normalized, from 0 to 1
	IntervalNumPoints []int
	DiscTimes         []float64 // non-dimensional time of each point
	StepSizes         []float64 // one per interval
	numSteps          int
	stepInterval      []int // interval of each step
}

// NewMesh normalizes the fractions and computes the discretization grid.
func NewMesh(table *ButcherTable, fractions []float64, numPoints []int, logger kitlog.Logger) (*Mesh, error) {
	if table == nil {
		return nil, configErrorf("nil Butcher table")
	}
	norm, err := NormalizeMeshFractions(fractions, logger)
	if err != nil {
		return nil, err
	}
	disc, steps, err := ComputeStepSizeVector(table, norm, numPoints)
	if err != nil {
		return nil, err
	}
	if span := intervalSpan(steps, numPoints); !scalar.EqualWithinAbs(span, 1, 1e-12) {
		return nil, configErrorf("step sizes span %g instead of 1", span)
	}
	m := &Mesh{Table: table, IntervalFractions: norm, DiscTimes: disc, StepSizes: steps}
	m.IntervalNumPoints = make([]int, len(numPoints))
	copy(m.IntervalNumPoints, numPoints)
	for i, n := range numPoints {
		for j := 0; j < n-1; j++ {
			m.stepInterval = append(m.stepInterval, i)
		}
	}
	m.numSteps = len(m.stepInterval)
	return m, nil
}

// NumSteps returns the number of integration steps across all intervals.
func (m *Mesh) NumSteps() int {
	return m.numSteps
}

// NumPoints returns the number of discretization points.
func (m *Mesh) NumPoints() int {
	return len(m.DiscTimes)
}

// IntervalOfStep returns the mesh interval a global step belongs to.
func (m *Mesh) IntervalOfStep(step int) int {
	return m.stepInterval[step]
}

// StepSizeOf returns the non-dimensional step size of a global step.
func (m *Mesh) StepSizeOf(step int) float64 {
	return m.StepSizes[m.stepInterval[step]]
}

// IntervalSteps returns the first global step of an interval and its number of steps.
func (m *Mesh) IntervalSteps(interval int) (first, count int) {
	for i := 0; i < interval; i++ {
		first += m.IntervalNumPoints[i] - 1
	}
	return first, m.IntervalNumPoints[interval] - 1
}

// PointIndex returns the global point index of a stage of a step.
func (m *Mesh) PointIndex(meshIdx, stageIdx int) int {
	return m.Table.NumStages()*meshIdx + stageIdx
}

// MeshIndex returns the step of a global point index. A point shared by two steps
// belongs to the earlier one only if it closes that step's stage run.
func (m *Mesh) MeshIndex(pointIdx int) int {
	nppm := m.Table.NumPointsPerMesh()
	if (pointIdx+1)/(nppm+1) < 1 {
		return 0
	}
	q := (pointIdx + 1) / nppm
	if (pointIdx+1)%nppm == 0 {
		return q - 1
	}
	return q
}

// StageIndex returns the stage of a global point index within its step.
func (m *Mesh) StageIndex(pointIdx int) int {
	nppm := m.Table.NumPointsPerMesh()
	if pointIdx < nppm {
		return pointIdx
	}
	if (pointIdx+1)%nppm == 0 {
		return m.Table.NumStagePoints
	}
	return pointIdx - ((pointIdx+1)/nppm)*nppm
}

// ComputeStepSizeVector returns the non-dimensional discretization times and the step
// size of each mesh interval. The final time is exactly 1.
func ComputeStepSizeVector(table *ButcherTable, fractions []float64, numPoints []int) (discTimes, stepSizes []float64, err error) {
	if err = validateMesh(fractions, numPoints); err != nil {
		return nil, nil, err
	}
	c := table.StageTimes
	stages := table.NumStages()
	numSteps := 0
	for _, n := range numPoints {
		numSteps += n - 1
	}
	discTimes = make([]float64, 0, numSteps*table.NumPointsPerMesh()+1)
	stepSizes = make([]float64, len(numPoints))
	t := fractions[0]
	for i, n := range numPoints {
		h := (fractions[i+1] - fractions[i]) / float64(n-1)
		stepSizes[i] = h
		for step := 0; step < n-1; step++ {
			for j := 0; j < stages; j++ {
				discTimes = append(discTimes, t)
				t += h * (c[j+1] - c[j])
			}
		}
	}
	discTimes = append(discTimes, 1.0)
	return discTimes, stepSizes, nil
}

// NormalizeMeshFractions rescales an increasing sequence onto [0, 1].
func NormalizeMeshFractions(fractions []float64, logger kitlog.Logger) ([]float64, error) {
	if len(fractions) < 2 {
		return nil, configErrorf("need at least two mesh fractions, got %d", len(fractions))
	}
	for i := 1; i < len(fractions); i++ {
		if !(fractions[i] > fractions[i-1]) {
			return nil, configErrorf("mesh fractions must be strictly increasing: fraction[%d]=%g <= fraction[%d]=%g", i, fractions[i], i-1, fractions[i-1])
		}
	}
	first, last := fractions[0], fractions[len(fractions)-1]
	if first < 0 || last > 1 {
		if logger == nil {
			logger = kitlog.NewNopLogger()
		}
		logger.Log("level", "warning", "subsys", "mesh", "message", "mesh fractions outside [0, 1] were rescaled", "first", first, "last", last)
	}
	norm := make([]float64, len(fractions))
	span := last - first
	for i, f := range fractions {
		norm[i] = (f - first) / span
	}
	norm[len(norm)-1] = 1
	return norm, nil
}

func validateMesh(fractions []float64, numPoints []int) error {
	if len(fractions) < 2 {
		return configErrorf("need at least two mesh fractions, got %d", len(fractions))
	}
	if len(numPoints) != len(fractions)-1 {
		return configErrorf("%d mesh fractions need %d point counts, got %d", len(fractions), len(fractions)-1, len(numPoints))
	}
	for i, n := range numPoints {
		if n < 2 {
			return configErrorf("mesh interval %d has %d points, at least 2 are needed", i, n)
		}
	}
	if fractions[0] < 0 || fractions[len(fractions)-1] > 1 {
		return configErrorf("mesh fractions must lie within [0, 1], got [%g, %g]", fractions[0], fractions[len(fractions)-1])
	}
	for i := 1; i < len(fractions); i++ {
		if !(fractions[i] > fractions[i-1]) {
			return configErrorf("mesh fractions must be strictly increasing at index %d", i)
		}
	}
	return nil
}

// intervalSpan returns the span covered by the step sizes, used as a consistency check.
func intervalSpan(stepSizes []float64, numPoints []int) float64 {
	spans := make([]float64, len(stepSizes))
	for i, h := range stepSizes {
		spans[i] = h * float64(numPoints[i]-1)
	}
	return floats.Sum(spans)
}
