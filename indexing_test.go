package irk

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	kitlog "github.com/go-kit/kit/log"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/floats/scalar"
)

func TestIndexRoundTrip(t *testing.T) {
	for _, method := range Methods {
		table, _ := NewButcherTable(method)
		mesh, err := NewMesh(table, []float64{0, 0.3, 1}, []int{4, 7}, nil)
		if err != nil {
			t.Fatalf("%s: %s", method, err)
		}
		if mesh.NumSteps() != 9 {
			t.Fatalf("%s: %d steps", method, mesh.NumSteps())
		}
		expPts := 9*table.NumPointsPerMesh() + 1
		if mesh.NumPoints() != expPts {
			t.Fatalf("%s: %d points instead of %d", method, mesh.NumPoints(), expPts)
		}
		for k := 0; k < mesh.NumPoints(); k++ {
			m, s := mesh.MeshIndex(k), mesh.StageIndex(k)
			if got := mesh.PointIndex(m, s); got != k {
				t.Fatalf("%s: point %d -> (%d, %d) -> %d", method, k, m, s, got)
			}
		}
	}
}

func TestStageIndexTieBreak(t *testing.T) {
	table, _ := NewButcherTable(RungeKutta6)
	mesh, _ := NewMesh(table, []float64{0, 1}, []int{4}, nil)
	// Three points per mesh: point 5 closes the stage run of step 1.
	if mesh.MeshIndex(5) != 1 || mesh.StageIndex(5) != table.NumStagePoints {
		t.Fatalf("point 5 -> (%d, %d)", mesh.MeshIndex(5), mesh.StageIndex(5))
	}
	if mesh.MeshIndex(6) != 2 || mesh.StageIndex(6) != 0 {
		t.Fatalf("point 6 -> (%d, %d)", mesh.MeshIndex(6), mesh.StageIndex(6))
	}
}

func TestComputeStepSizeVector(t *testing.T) {
	table, _ := NewButcherTable(RungeKutta4)
	disc, steps, err := ComputeStepSizeVector(table, []float64{0, 0.5, 1}, []int{3, 5})
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(steps, []float64{0.25, 0.125}, 1e-15) {
		t.Fatalf("step sizes: %v", steps)
	}
	exp := []float64{0, 0.125, 0.25, 0.375, 0.5, 0.5625, 0.625, 0.6875, 0.75, 0.8125, 0.875, 0.9375, 1}
	if !floats.EqualApprox(disc, exp, 1e-15) {
		t.Fatalf("discretization times:\n%v\n%v", disc, exp)
	}
	if disc[len(disc)-1] != 1 {
		t.Fatal("last discretization time must be exactly 1")
	}
	if span := intervalSpan(steps, []int{3, 5}); !scalar.EqualWithinAbs(span, 1, 1e-15) {
		t.Fatalf("span = %f", span)
	}
	rk8, _ := NewButcherTable(RungeKutta8)
	disc, _, _ = ComputeStepSizeVector(rk8, []float64{0, 0.1, 0.35, 1}, []int{3, 2, 6})
	if disc[len(disc)-1] != 1 {
		t.Fatal("last discretization time must be exactly 1")
	}
	for i := 1; i < len(disc); i++ {
		if disc[i] <= disc[i-1] {
			t.Fatalf("discretization times must increase: %v", disc)
		}
	}
}

func TestComputeStepSizeVectorErrors(t *testing.T) {
	table, _ := NewButcherTable(Trapezoid)
	cases := []struct {
		fractions []float64
		points    []int
	}{
		{[]float64{0}, []int{}},
		{[]float64{0, 1}, []int{3, 3}},
		{[]float64{0, 1}, []int{1}},
		{[]float64{0, 0.5, 0.5, 1}, []int{2, 2, 2}},
		{[]float64{-0.5, 1}, []int{2}},
	}
	for i, c := range cases {
		if _, _, err := ComputeStepSizeVector(table, c.fractions, c.points); !errors.Is(err, ErrConfig) {
			t.Fatalf("case %d: expected a configuration error, got %v", i, err)
		}
	}
}

func TestNormalizeMeshFractions(t *testing.T) {
	var buf bytes.Buffer
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(&buf))
	norm, err := NormalizeMeshFractions([]float64{-1, 0, 3}, logger)
	if err != nil {
		t.Fatal(err)
	}
	if !floats.EqualApprox(norm, []float64{0, 0.25, 1}, 1e-15) {
		t.Fatalf("normalized: %v", norm)
	}
	if !strings.Contains(buf.String(), "level=warning") {
		t.Fatalf("expected a warning, got %q", buf.String())
	}
	buf.Reset()
	if _, err = NormalizeMeshFractions([]float64{0, 0.5, 1}, logger); err != nil || buf.Len() != 0 {
		t.Fatal("fractions within [0, 1] must not warn")
	}
	if _, err = NormalizeMeshFractions([]float64{0, 0.6, 0.5}, logger); !errors.Is(err, ErrConfig) {
		t.Fatal("decreasing fractions must fail")
	}
}
