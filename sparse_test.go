package irk

import (
	"testing"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestSparseMul(t *testing.T) {
	a := NewSparse(2, 3)
	a.Set(0, 0, 1)
	a.Set(0, 2, 2)
	a.Add(1, 1, 3)
	a.Add(1, 1, 1)
	b := NewSparse(3, 2)
	b.Set(0, 1, 5)
	b.Set(1, 0, -1)
	b.Set(2, 0, 0.5)
	var exp mat.Dense
	exp.Mul(a.Dense(), b.Dense())
	if !mat.EqualApprox(a.Mul(b), &exp, 1e-15) {
		t.Fatalf("product:\n%v\nexpected\n%v", mat.Formatted(a.Mul(b).Dense()), mat.Formatted(&exp))
	}
	if !floats.Equal(a.MulVec([]float64{1, 1, 1}), []float64{3, 4}) {
		t.Fatalf("MulVec: %v", a.MulVec([]float64{1, 1, 1}))
	}
	if a.NNZ() != 3 {
		t.Fatalf("expected 3 stored entries, got %d", a.NNZ())
	}
	if a.T().At(2, 0) != 2 {
		t.Fatal("transpose")
	}
}

func TestSparsePattern(t *testing.T) {
	s := NewSparse(2, 2)
	s.Set(1, 0, 0)
	if !s.Has(1, 0) || s.Has(0, 0) {
		t.Fatal("explicit zeros are part of the pattern")
	}
	s.Set(1, 1, 4)
	s.ZeroValues()
	if s.NNZ() != 2 || s.At(1, 1) != 0 {
		t.Fatal("ZeroValues must keep the pattern")
	}
	p := s.Plus(NewSparse(2, 2))
	if p.NNZ() != 2 {
		t.Fatal("Plus must keep the union of the patterns")
	}
	if cols := p.RowNonZeros(1); len(cols) != 2 || cols[0] != 0 || cols[1] != 1 {
		t.Fatalf("row nonzeros: %v", cols)
	}
	block := mat.NewDiagDense(2, []float64{1, 2})
	q := NewSparse(3, 3)
	q.AddBlock(1, 1, block, -2)
	if q.At(1, 1) != -2 || q.At(2, 2) != -4 || q.Has(1, 2) {
		t.Fatal("AddBlock must only store nonzeros")
	}
}

func TestSparseUpdatesAfterProducts(t *testing.T) {
	s := NewSparse(2, 3)
	s.Set(1, 2, 1)
	s.Set(1, 0, 2)
	s.Set(0, 1, 3)
	if y := s.MulVec([]float64{1, 1, 1}); !floats.Equal(y, []float64{3, 3}) {
		t.Fatalf("MulVec: %v", y)
	}
	s.Set(1, 0, -2)
	s.Add(0, 2, 1)
	if y := s.MulVec([]float64{1, 1, 1}); !floats.Equal(y, []float64{4, -1}) {
		t.Fatalf("MulVec after Set: %v", y)
	}
	if cols := s.RowNonZeros(1); len(cols) != 2 || cols[0] != 0 || cols[1] != 2 {
		t.Fatalf("columns must come back sorted: %v", cols)
	}
	c := s.Clone()
	c.Set(0, 0, 7)
	if s.Has(0, 0) || s.NNZ() != 4 || c.NNZ() != 5 {
		t.Fatal("Clone must not share storage")
	}
	if p := NewSparse(0, 3).Mul(NewSparse(3, 2)); p.NNZ() != 0 {
		t.Fatal("empty product")
	}
}
