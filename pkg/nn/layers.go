package nn

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"runtime"
	"sync"

	"predkit/pkg/core"
)

var ErrShape = errors.New("nn: shape mismatch")

// Layer is one stage of a Sequential model over channel-first tensors.
type Layer interface {
	Name() string
	OutputShape(in core.Shape) (core.Shape, error)
	Forward(x *core.Tensor) (*core.Tensor, error)
}

// Parametric layers own weight arrays. Weights are returned in archive
// order (kernel, then bias) and alias the layer's storage.
type Parametric interface {
	Layer
	Weights() [][]float64
	SetWeights(w [][]float64) error
	initWeights(rnd *rand.Rand)
}

// ZeroPadding2D pads every plane with Pad zeros on each side.
type ZeroPadding2D struct{ Pad int }

func (z *ZeroPadding2D) Name() string { return "zeropadding2d" }

func (z *ZeroPadding2D) OutputShape(in core.Shape) (core.Shape, error) {
	return core.Shape{C: in.C, H: in.H + 2*z.Pad, W: in.W + 2*z.Pad}, nil
}

func (z *ZeroPadding2D) Forward(x *core.Tensor) (*core.Tensor, error) {
	p := z.Pad
	out := core.NewTensor(x.C, x.H+2*p, x.W+2*p)
	for c := 0; c < x.C; c++ {
		src, dst := x.Plane(c), out.Plane(c)
		for y := 0; y < x.H; y++ {
			copy(dst[(y+p)*out.W+p:(y+p)*out.W+p+x.W], src[y*x.W:(y+1)*x.W])
		}
	}
	return out, nil
}

// Conv2D is a stride-1 valid convolution (cross-correlation) with a square
// kernel. Kernel layout is (filters, channels, k, k).
type Conv2D struct {
	Filters, Channels, Kernel int
	Activation                string
	// Flip rotates kernels by 180 degrees as they are loaded, converting
	// weights saved for a true-convolution backend.
	Flip bool

	W, B []float64
}

func NewConv2D(channels, filters, kernel int, activation string) *Conv2D {
	return &Conv2D{
		Filters:    filters,
		Channels:   channels,
		Kernel:     kernel,
		Activation: activation,
		W:          make([]float64, filters*channels*kernel*kernel),
		B:          make([]float64, filters),
	}
}

func (l *Conv2D) Name() string { return "conv2d" }

func (l *Conv2D) OutputShape(in core.Shape) (core.Shape, error) {
	if in.C != l.Channels || in.H < l.Kernel || in.W < l.Kernel {
		return core.Shape{}, fmt.Errorf("%w: conv2d(%d->%d, %dx%d) on %v", ErrShape, l.Channels, l.Filters, l.Kernel, l.Kernel, in)
	}
	return core.Shape{C: l.Filters, H: in.H - l.Kernel + 1, W: in.W - l.Kernel + 1}, nil
}

// Forward computes output channels in parallel across GOMAXPROCS workers.
func (l *Conv2D) Forward(x *core.Tensor) (*core.Tensor, error) {
	outShape, err := l.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	out := core.NewTensor(outShape.C, outShape.H, outShape.W)
	k := l.Kernel

	workers := runtime.GOMAXPROCS(0)
	perWorker := (l.Filters + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := min(start+perWorker, l.Filters)
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for f := start; f < end; f++ {
				dst := out.Plane(f)
				for i := range dst {
					dst[i] = l.B[f]
				}
				for c := 0; c < l.Channels; c++ {
					src := x.Plane(c)
					kern := l.W[(f*l.Channels+c)*k*k : (f*l.Channels+c+1)*k*k]
					for ky := 0; ky < k; ky++ {
						for kx := 0; kx < k; kx++ {
							wv := kern[ky*k+kx]
							if wv == 0 {
								continue
							}
							for y := 0; y < outShape.H; y++ {
								row := src[(y+ky)*x.W+kx : (y+ky)*x.W+kx+outShape.W]
								drow := dst[y*outShape.W : (y+1)*outShape.W]
								for i, v := range row {
									drow[i] += wv * v
								}
							}
						}
					}
				}
				activate(l.Activation, dst)
			}
		}(start, end)
	}
	wg.Wait()
	return out, nil
}

func (l *Conv2D) Weights() [][]float64 { return [][]float64{l.W, l.B} }

func (l *Conv2D) SetWeights(w [][]float64) error {
	if len(w) != 2 || len(w[0]) != len(l.W) || len(w[1]) != len(l.B) {
		return fmt.Errorf("%w: conv2d(%d->%d) expects %d kernel and %d bias values", ErrShape, l.Channels, l.Filters, len(l.W), len(l.B))
	}
	copy(l.W, w[0])
	copy(l.B, w[1])
	if l.Flip {
		kk := l.Kernel * l.Kernel
		for off := 0; off < len(l.W); off += kk {
			kern := l.W[off : off+kk]
			for i, j := 0, kk-1; i < j; i, j = i+1, j-1 {
				kern[i], kern[j] = kern[j], kern[i]
			}
		}
	}
	return nil
}

func (l *Conv2D) initWeights(rnd *rand.Rand) {
	glorot(rnd, l.W, l.Channels*l.Kernel*l.Kernel, l.Filters*l.Kernel*l.Kernel)
	clear(l.B)
}

// MaxPooling2D takes the maximum over non-overlapping Size×Size windows;
// trailing rows and columns that do not fill a window are dropped.
type MaxPooling2D struct{ Size int }

func (m *MaxPooling2D) Name() string { return "maxpooling2d" }

func (m *MaxPooling2D) OutputShape(in core.Shape) (core.Shape, error) {
	if in.H < m.Size || in.W < m.Size {
		return core.Shape{}, fmt.Errorf("%w: maxpooling2d(%d) on %v", ErrShape, m.Size, in)
	}
	return core.Shape{C: in.C, H: in.H / m.Size, W: in.W / m.Size}, nil
}

func (m *MaxPooling2D) Forward(x *core.Tensor) (*core.Tensor, error) {
	outShape, err := m.OutputShape(x.Shape)
	if err != nil {
		return nil, err
	}
	out := core.NewTensor(outShape.C, outShape.H, outShape.W)
	s := m.Size
	for c := 0; c < x.C; c++ {
		for y := 0; y < outShape.H; y++ {
			for xx := 0; xx < outShape.W; xx++ {
				best := math.Inf(-1)
				for dy := 0; dy < s; dy++ {
					for dx := 0; dx < s; dx++ {
						best = math.Max(best, x.At(c, y*s+dy, xx*s+dx))
					}
				}
				out.Set(c, y, xx, best)
			}
		}
	}
	return out, nil
}

// Flatten turns a C×H×W map into a vector in channel-major order.
type Flatten struct{}

func (Flatten) Name() string { return "flatten" }

func (Flatten) OutputShape(in core.Shape) (core.Shape, error) {
	return core.Shape{C: in.Len(), H: 1, W: 1}, nil
}

func (Flatten) Forward(x *core.Tensor) (*core.Tensor, error) {
	return core.Vector(x.Data), nil
}

// Dense is a fully connected layer. W is In×Out, row-major.
type Dense struct {
	In, Out    int
	Activation string

	W, B []float64
}

func NewDense(in, out int, activation string) *Dense {
	return &Dense{In: in, Out: out, Activation: activation, W: make([]float64, in*out), B: make([]float64, out)}
}

func (d *Dense) Name() string { return "dense" }

func (d *Dense) OutputShape(in core.Shape) (core.Shape, error) {
	if in.Len() != d.In {
		return core.Shape{}, fmt.Errorf("%w: dense(%d->%d) on %v", ErrShape, d.In, d.Out, in)
	}
	return core.Shape{C: d.Out, H: 1, W: 1}, nil
}

func (d *Dense) Forward(x *core.Tensor) (*core.Tensor, error) {
	if _, err := d.OutputShape(x.Shape); err != nil {
		return nil, err
	}
	out, err := d.ForwardBatch(&core.Matrix{R: 1, C: d.In, Data: x.Data})
	if err != nil {
		return nil, err
	}
	return core.Vector(out.Data), nil
}

// ForwardBatch applies the layer to every row of X.
func (d *Dense) ForwardBatch(X *core.Matrix) (*core.Matrix, error) {
	out, err := d.preActivation(X)
	if err != nil {
		return nil, err
	}
	activate(d.Activation, out.Data)
	return out, nil
}

func (d *Dense) preActivation(X *core.Matrix) (*core.Matrix, error) {
	out, err := core.MatMul(X, &core.Matrix{R: d.In, C: d.Out, Data: d.W})
	if err != nil {
		return nil, fmt.Errorf("%w: dense(%d->%d) on %d columns", ErrShape, d.In, d.Out, X.C)
	}
	if err := out.AddRowVector(d.B); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dense) Weights() [][]float64 { return [][]float64{d.W, d.B} }

func (d *Dense) SetWeights(w [][]float64) error {
	if len(w) != 2 || len(w[0]) != len(d.W) || len(w[1]) != len(d.B) {
		return fmt.Errorf("%w: dense(%d->%d) expects %d kernel and %d bias values", ErrShape, d.In, d.Out, len(d.W), len(d.B))
	}
	copy(d.W, w[0])
	copy(d.B, w[1])
	return nil
}

func (d *Dense) initWeights(rnd *rand.Rand) {
	glorot(rnd, d.W, d.In, d.Out)
	clear(d.B)
}

// Dropout zeroes a fraction Rate of activations while training; it is the
// identity at inference.
type Dropout struct{ Rate float64 }

func (Dropout) Name() string { return "dropout" }

func (Dropout) OutputShape(in core.Shape) (core.Shape, error) { return in, nil }

func (Dropout) Forward(x *core.Tensor) (*core.Tensor, error) { return x, nil }

// glorot fills w from the Glorot uniform distribution.
func glorot(rnd *rand.Rand, w []float64, fanIn, fanOut int) {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	for i := range w {
		w[i] = (rnd.Float64()*2 - 1) * limit
	}
}
