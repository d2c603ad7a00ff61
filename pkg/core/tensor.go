package core

import "fmt"

// Shape is a channel-first C×H×W shape.
type Shape struct {
	C, H, W int
}

func (s Shape) Len() int { return s.C * s.H * s.W }

func (s Shape) String() string { return fmt.Sprintf("(%d, %d, %d)", s.C, s.H, s.W) }

// Tensor is a channel-first feature map. Flattened vectors use H = W = 1.
type Tensor struct {
	Shape
	Data []float64
}

func NewTensor(c, h, w int) *Tensor {
	return &Tensor{Shape: Shape{C: c, H: h, W: w}, Data: make([]float64, c*h*w)}
}

// Vector wraps v as a C×1×1 tensor without copying.
func Vector(v []float64) *Tensor {
	return &Tensor{Shape: Shape{C: len(v), H: 1, W: 1}, Data: v}
}

func (t *Tensor) At(c, y, x int) float64 { return t.Data[(c*t.H+y)*t.W+x] }

func (t *Tensor) Set(c, y, x int, v float64) { t.Data[(c*t.H+y)*t.W+x] = v }

// Plane returns channel c without copying.
func (t *Tensor) Plane(c int) []float64 {
	n := t.H * t.W
	return t.Data[c*n : (c+1)*n]
}

func (t *Tensor) Clone() *Tensor {
	n := &Tensor{Shape: t.Shape, Data: make([]float64, len(t.Data))}
	copy(n.Data, t.Data)
	return n
}

// Stack copies equally sized flattened tensors into the rows of a matrix.
func Stack(ts []*Tensor) (*Matrix, error) {
	if len(ts) == 0 {
		return &Matrix{}, nil
	}
	n := len(ts[0].Data)
	m := NewMatrix(len(ts), n)
	for i, t := range ts {
		if len(t.Data) != n {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrDimension, i, len(t.Data), n)
		}
		copy(m.Row(i), t.Data)
	}
	return m, nil
}
