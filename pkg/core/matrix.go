package core

import (
	"errors"
	"runtime"
	"sync"
)

var ErrDimension = errors.New("core: dimension mismatch")

// Matrix is a dense row-major matrix.
type Matrix struct {
	R, C int
	Data []float64
}

// NewMatrix allocates a zero matrix.
func NewMatrix(r, c int) *Matrix {
	return &Matrix{R: r, C: c, Data: make([]float64, r*c)}
}

// FromSlice creates a Matrix from a nested slice (copies rows).
func FromSlice(a [][]float64) *Matrix {
	r := len(a)
	if r == 0 {
		return &Matrix{}
	}
	c := len(a[0])
	m := NewMatrix(r, c)
	for i := range r {
		copy(m.Data[i*c:(i+1)*c], a[i])
	}
	return m
}

func (m *Matrix) At(i, j int) float64 { return m.Data[i*m.C+j] }

func (m *Matrix) Set(i, j int, v float64) { m.Data[i*m.C+j] = v }

// Row returns row i without copying.
func (m *Matrix) Row(i int) []float64 { return m.Data[i*m.C : (i+1)*m.C] }

func (m *Matrix) Clone() *Matrix {
	n := &Matrix{R: m.R, C: m.C, Data: make([]float64, len(m.Data))}
	copy(n.Data, m.Data)
	return n
}

// MatMul computes A·B, splitting rows of A across GOMAXPROCS workers.
func MatMul(A, B *Matrix) (*Matrix, error) {
	if A.C != B.R {
		return nil, ErrDimension
	}

	C := NewMatrix(A.R, B.C)
	workers := runtime.GOMAXPROCS(0)
	var wg sync.WaitGroup
	rowsPerWorker := (A.R + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, A.R)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(rs, re int) {
			defer wg.Done()
			for i := rs; i < re; i++ {
				crow := C.Data[i*C.C : (i+1)*C.C]
				for k := 0; k < A.C; k++ {
					ai := A.Data[i*A.C+k]
					if ai == 0 {
						continue
					}
					brow := B.Data[k*B.C : (k+1)*B.C]
					for j, b := range brow {
						crow[j] += ai * b
					}
				}
			}
		}(start, end)
	}
	wg.Wait()
	return C, nil
}

// AddRowVector adds v to every row of m in place.
func (m *Matrix) AddRowVector(v []float64) error {
	if len(v) != m.C {
		return ErrDimension
	}
	for i := 0; i < m.R; i++ {
		row := m.Data[i*m.C : (i+1)*m.C]
		for j := range row {
			row[j] += v[j]
		}
	}
	return nil
}

// Apply applies f element-wise in place.
func (m *Matrix) Apply(f func(float64) float64) {
	for i := range m.Data {
		m.Data[i] = f(m.Data[i])
	}
}
