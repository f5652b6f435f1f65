package irk

import (
	"fmt"
	"sort"

	"github.com/james-bowman/sparse"
	"gonum.org/v1/gonum/mat"
)

// Sparse is a sparse matrix assembled from (row, col, value) triplets. Stored entries
// define its sparsity pattern, including entries whose value is zero. Arithmetic runs on
// a CSR compression of the triplets sorted by row then column, so every product and sum
// visits the entries in the same order.
type Sparse struct {
	r, c  int
	rows  []int
	cols  []int
	data  []float64
	index map[[2]int]int // (row, col) to triplet position

	csr *sparse.CSR // nil until needed or after a change
}

var _ mat.Matrix = (*Sparse)(nil)

// NewSparse returns an empty r by c sparse matrix.
func NewSparse(r, c int) *Sparse {
	if r < 0 || c < 0 {
		panic(fmt.Errorf("negative sparse dimensions %dx%d", r, c))
	}
	return &Sparse{r: r, c: c, index: make(map[[2]int]int)}
}

// sparseFrom copies the stored entries of a CSR matrix.
func sparseFrom(m *sparse.CSR) *Sparse {
	r, c := m.Dims()
	s := NewSparse(r, c)
	m.DoNonZero(func(i, j int, v float64) {
		s.Add(i, j, v)
	})
	return s
}

// Dims implements mat.Matrix.
func (s *Sparse) Dims() (int, int) {
	return s.r, s.c
}

// At implements mat.Matrix.
func (s *Sparse) At(i, j int) float64 {
	s.check(i, j)
	if k, ok := s.index[[2]int{i, j}]; ok {
		return s.data[k]
	}
	return 0
}

// T implements mat.Matrix.
func (s *Sparse) T() mat.Matrix {
	return mat.Transpose{Matrix: s}
}

func (s *Sparse) check(i, j int) {
	if i < 0 || i >= s.r || j < 0 || j >= s.c {
		panic(fmt.Errorf("sparse index (%d, %d) out of range for %dx%d", i, j, s.r, s.c))
	}
}

// slot returns the position of (i, j) in the triplets, appending it when missing.
func (s *Sparse) slot(i, j int) int {
	s.check(i, j)
	key := [2]int{i, j}
	if k, ok := s.index[key]; ok {
		return k
	}
	s.rows = append(s.rows, i)
	s.cols = append(s.cols, j)
	s.data = append(s.data, 0)
	s.index[key] = len(s.data) - 1
	return len(s.data) - 1
}

// Set stores v at (i, j).
func (s *Sparse) Set(i, j int, v float64) {
	s.data[s.slot(i, j)] = v
	s.csr = nil
}

// Add accumulates v at (i, j).
func (s *Sparse) Add(i, j int, v float64) {
	s.data[s.slot(i, j)] += v
	s.csr = nil
}

// Has returns whether (i, j) is part of the pattern.
func (s *Sparse) Has(i, j int) bool {
	s.check(i, j)
	_, ok := s.index[[2]int{i, j}]
	return ok
}

// AddBlock accumulates scale*m with its top left corner at (i, j). Only the nonzero
// entries of m are stored.
func (s *Sparse) AddBlock(i, j int, m mat.Matrix, scale float64) {
	r, c := m.Dims()
	for bi := 0; bi < r; bi++ {
		for bj := 0; bj < c; bj++ {
			if v := m.At(bi, bj); v != 0 {
				s.Add(i+bi, j+bj, scale*v)
			}
		}
	}
}

// compressed returns the CSR form of the triplets, sorted by row then column.
func (s *Sparse) compressed() *sparse.CSR {
	if s.csr != nil {
		return s.csr
	}
	order := make([]int, len(s.data))
	for k := range order {
		order[k] = k
	}
	sort.Slice(order, func(a, b int) bool {
		ka, kb := order[a], order[b]
		if s.rows[ka] != s.rows[kb] {
			return s.rows[ka] < s.rows[kb]
		}
		return s.cols[ka] < s.cols[kb]
	})
	rows := make([]int, len(order))
	cols := make([]int, len(order))
	data := make([]float64, len(order))
	for n, k := range order {
		rows[n], cols[n], data[n] = s.rows[k], s.cols[k], s.data[k]
	}
	s.csr = sparse.NewCOO(s.r, s.c, rows, cols, data).ToCSR()
	return s.csr
}

// RowNonZeros returns the sorted column indices stored in row i.
func (s *Sparse) RowNonZeros(i int) []int {
	if i < 0 || i >= s.r {
		panic(fmt.Errorf("sparse row %d out of range for %dx%d", i, s.r, s.c))
	}
	var cols []int
	if len(s.data) == 0 {
		return cols
	}
	s.compressed().DoRowNonZero(i, func(_, j int, _ float64) {
		cols = append(cols, j)
	})
	return cols
}

// NNZ returns the number of stored entries.
func (s *Sparse) NNZ() int {
	return len(s.data)
}

// ZeroValues keeps the pattern and resets every stored value to zero.
func (s *Sparse) ZeroValues() {
	for k := range s.data {
		s.data[k] = 0
	}
	s.csr = nil
}

// Clone returns a deep copy.
func (s *Sparse) Clone() *Sparse {
	o := &Sparse{
		r:     s.r,
		c:     s.c,
		rows:  append([]int(nil), s.rows...),
		cols:  append([]int(nil), s.cols...),
		data:  append([]float64(nil), s.data...),
		index: make(map[[2]int]int, len(s.index)),
	}
	for key, k := range s.index {
		o.index[key] = k
	}
	return o
}

// MulVec returns s*x.
func (s *Sparse) MulVec(x []float64) []float64 {
	if len(x) != s.c {
		panic(mat.ErrShape)
	}
	y := make([]float64, s.r)
	if len(s.data) == 0 {
		return y
	}
	s.compressed().DoNonZero(func(i, j int, v float64) {
		y[i] += v * x[j]
	})
	return y
}

// Mul returns s*b.
func (s *Sparse) Mul(b *Sparse) *Sparse {
	if s.c != b.r {
		panic(mat.ErrShape)
	}
	if len(s.data) == 0 || len(b.data) == 0 {
		return NewSparse(s.r, b.c)
	}
	var p sparse.CSR
	p.Mul(s.compressed(), b.compressed())
	return sparseFrom(&p)
}

// Plus returns s+b with the union of both patterns.
func (s *Sparse) Plus(b *Sparse) *Sparse {
	if s.r != b.r || s.c != b.c {
		panic(mat.ErrShape)
	}
	p := s.Clone()
	if len(b.data) == 0 {
		return p
	}
	b.compressed().DoNonZero(func(i, j int, v float64) {
		p.Add(i, j, v)
	})
	return p
}

// Dense returns a dense copy.
func (s *Sparse) Dense() *mat.Dense {
	if s.r == 0 || s.c == 0 {
		return &mat.Dense{}
	}
	d := mat.NewDense(s.r, s.c, nil)
	for k, v := range s.data {
		d.Set(s.rows[k], s.cols[k], v)
	}
	return d
}
