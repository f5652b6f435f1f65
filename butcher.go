package irk

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Supported collocation methods.
const (
	Trapezoid      = "Trapezoid"
	HermiteSimpson = "HermiteSimpson"
	RungeKutta4    = "RungeKutta4"
	RungeKutta6    = "RungeKutta6"
	RungeKutta8    = "RungeKutta8"
)

// Methods lists the supported method names in increasing order.
var Methods = []string{Trapezoid, HermiteSimpson, RungeKutta4, RungeKutta6, RungeKutta8}

// ButcherTable is the immutable Lobatto IIIA tableau of a collocation method.
type ButcherTable struct {
	Method     string
	StageTimes []float64   // c, StageTimes[0] = 0 and the last is 1
	Weights    []float64   // b
	Coupling   [][]float64 // A, row 0 is the initial point and stays zero
	// ParamDependency[d][j] couples defect d of a step to the state at point j of that step.
	ParamDependency [][]float64
	// FuncConstant[d][j] couples defect d of a step to the dynamics at point j of that step.
	FuncConstant      [][]float64
	NumDefectsPerStep int
	NumPointsPerStep  int
	NumStagePoints    int // interior points of a step
}

// NewButcherTable returns the tableau of the provided method.
func NewButcherTable(method string) (*ButcherTable, error) {
	switch strings.ToLower(method) {
	case "trapezoid":
		return newLobattoTable(Trapezoid, []float64{0, 1}, [][]float64{
			{0, 0},
			{0.5, 0.5},
		}), nil
	case "hermitesimpson":
		return newHermiteSimpsonTable(), nil
	case "rungekutta4":
		return newLobattoTable(RungeKutta4, []float64{0, 0.5, 1}, [][]float64{
			{0, 0, 0},
			{5 / 24., 1 / 3., -1 / 24.},
			{1 / 6., 2 / 3., 1 / 6.},
		}), nil
	case "rungekutta6":
		s5 := math.Sqrt(5)
		return newLobattoTable(RungeKutta6, []float64{0, (5 - s5) / 10, (5 + s5) / 10, 1}, [][]float64{
			{0, 0, 0, 0},
			{(11 + s5) / 120, (25 - s5) / 120, (25 - 13*s5) / 120, (-1 + s5) / 120},
			{(11 - s5) / 120, (25 + 13*s5) / 120, (25 + s5) / 120, (-1 - s5) / 120},
			{1 / 12., 5 / 12., 5 / 12., 1 / 12.},
		}), nil
	case "rungekutta8":
		s21 := math.Sqrt(21)
		return newLobattoTable(RungeKutta8, []float64{0, (7 - s21) / 14, 0.5, (7 + s21) / 14, 1}, [][]float64{
			{0, 0, 0, 0, 0},
			{(119 + 3*s21) / 1960, (343 - 9*s21) / 2520, (392 - 96*s21) / 2205, (343 - 69*s21) / 2520, (-21 + 3*s21) / 1960},
			{13 / 320., (392 + 105*s21) / 2880, 8 / 45., (392 - 105*s21) / 2880, 3 / 320.},
			{(119 - 3*s21) / 1960, (343 + 69*s21) / 2520, (392 + 96*s21) / 2205, (343 + 9*s21) / 2520, (-21 - 3*s21) / 1960},
			{1 / 20., 49 / 180., 16 / 45., 49 / 180., 1 / 20.},
		}), nil
	default:
		return nil, configErrorf("unknown collocation method '%s' (supported: %s)", method, strings.Join(Methods, ", "))
	}
}

// newLobattoTable derives the defect bookkeeping of a Lobatto IIIA tableau.
func newLobattoTable(name string, c []float64, a [][]float64) *ButcherTable {
	s := len(c) - 1
	b := &ButcherTable{Method: name, StageTimes: c, Coupling: a, NumDefectsPerStep: s, NumPointsPerStep: s + 1, NumStagePoints: s - 1}
	b.Weights = make([]float64, s+1)
	copy(b.Weights, a[s])
	b.ParamDependency = make([][]float64, s)
	b.FuncConstant = make([][]float64, s)
	for i := 1; i <= s; i++ {
		dep := make([]float64, s+1)
		dep[0] = -1
		dep[i] = 1
		fc := make([]float64, s+1)
		for j, aij := range a[i] {
			fc[j] = -aij
		}
		b.ParamDependency[i-1] = dep
		b.FuncConstant[i-1] = fc
	}
	return b
}

// newHermiteSimpsonTable returns the separated Hermite-Simpson form: one midpoint
// interpolation defect and one Simpson quadrature defect per step.
func newHermiteSimpsonTable() *ButcherTable {
	return &ButcherTable{
		Method:     HermiteSimpson,
		StageTimes: []float64{0, 0.5, 1},
		Weights:    []float64{1 / 6., 2 / 3., 1 / 6.},
		Coupling: [][]float64{
			{0, 0, 0},
			{5 / 24., 1 / 3., -1 / 24.},
			{1 / 6., 2 / 3., 1 / 6.},
		},
		ParamDependency: [][]float64{
			{-0.5, 1, -0.5},
			{-1, 0, 1},
		},
		FuncConstant: [][]float64{
			{-1 / 8., 0, 1 / 8.},
			{-1 / 6., -2 / 3., -1 / 6.},
		},
		NumDefectsPerStep: 2,
		NumPointsPerStep:  3,
		NumStagePoints:    1,
	}
}

// NumStages returns the number of steps between the first and last points of a step.
func (b *ButcherTable) NumStages() int {
	return len(b.StageTimes) - 1
}

// NumPointsPerMesh is the number of new points each step adds to the grid.
func (b *ButcherTable) NumPointsPerMesh() int {
	return 1 + b.NumStagePoints
}

// Order is the order value used by the refinement error model.
func (b *ButcherTable) Order() int {
	return b.NumPointsPerStep - 1
}

// GetDependencyChunk returns the diagonal state coupling (a) and dynamics coupling (b)
// blocks of a defect for the point subStepIdx of a step.
func (b *ButcherTable) GetDependencyChunk(defectIdx, subStepIdx, numStates int) (aChunk, bChunk *mat.DiagDense, err error) {
	if defectIdx < 0 || defectIdx >= b.NumDefectsPerStep {
		return nil, nil, configErrorf("defect index %d out of range [0, %d)", defectIdx, b.NumDefectsPerStep)
	}
	if subStepIdx < 0 || subStepIdx >= b.NumPointsPerStep {
		return nil, nil, configErrorf("sub-step index %d out of range [0, %d)", subStepIdx, b.NumPointsPerStep)
	}
	if numStates <= 0 {
		return nil, nil, configErrorf("number of states must be positive, got %d", numStates)
	}
	aData := make([]float64, numStates)
	bData := make([]float64, numStates)
	for i := range aData {
		aData[i] = b.ParamDependency[defectIdx][subStepIdx]
		bData[i] = b.FuncConstant[defectIdx][subStepIdx]
	}
	return mat.NewDiagDense(numStates, aData), mat.NewDiagDense(numStates, bData), nil
}

func (b *ButcherTable) String() string {
	return fmt.Sprintf("%s (%d points/step, %d defects/step)", b.Method, b.NumPointsPerStep, b.NumDefectsPerStep)
}
