package nn

import (
	"fmt"
	"io"
	"math/rand"
	"text/tabwriter"

	"predkit/pkg/core"
)

// Sequential is a linear stack of layers with a fixed input shape.
type Sequential struct {
	Input core.Shape

	layers []Layer
	shapes []core.Shape
}

// NewSequential builds a model, checking that every layer accepts the
// shape produced by the one before it.
func NewSequential(input core.Shape, layers ...Layer) (*Sequential, error) {
	s := &Sequential{Input: input}
	for _, l := range layers {
		if err := s.Add(l); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Add appends l.
func (s *Sequential) Add(l Layer) error {
	out, err := l.OutputShape(s.OutputShape())
	if err != nil {
		return fmt.Errorf("layer %d (%s): %w", len(s.layers), l.Name(), err)
	}
	s.layers = append(s.layers, l)
	s.shapes = append(s.shapes, out)
	return nil
}

func (s *Sequential) Layers() []Layer { return s.layers }

// OutputShape is the shape produced by the last layer.
func (s *Sequential) OutputShape() core.Shape {
	if len(s.shapes) == 0 {
		return s.Input
	}
	return s.shapes[len(s.shapes)-1]
}

func (s *Sequential) Forward(x *core.Tensor) (*core.Tensor, error) {
	if x.Shape != s.Input {
		return nil, fmt.Errorf("%w: model input %v, got %v", ErrShape, s.Input, x.Shape)
	}
	var err error
	for i, l := range s.layers {
		if x, err = l.Forward(x); err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name(), err)
		}
	}
	return x, nil
}

// ForwardBatch runs the rows of X, each a flattened input, through a model
// made only of Flatten, Dense and Dropout layers.
func (s *Sequential) ForwardBatch(X *core.Matrix) (*core.Matrix, error) {
	if X.C != s.Input.Len() {
		return nil, fmt.Errorf("%w: model input %v, got rows of %d", ErrShape, s.Input, X.C)
	}
	var err error
	for i, l := range s.layers {
		switch l := l.(type) {
		case *Flatten, *Dropout:
		case *Dense:
			if X, err = l.ForwardBatch(X); err != nil {
				return nil, fmt.Errorf("layer %d (%s): %w", i, l.Name(), err)
			}
		default:
			return nil, fmt.Errorf("%w: layer %d (%s) has no batch form", ErrShape, i, l.Name())
		}
	}
	return X, nil
}

// Init draws fresh Glorot-uniform kernels and zero biases.
func (s *Sequential) Init(rnd *rand.Rand) {
	for _, l := range s.layers {
		if p, ok := l.(Parametric); ok {
			p.initWeights(rnd)
		}
	}
}

// ParamCount is the number of weights across all layers.
func (s *Sequential) ParamCount() int {
	n := 0
	for _, l := range s.layers {
		if p, ok := l.(Parametric); ok {
			for _, w := range p.Weights() {
				n += len(w)
			}
		}
	}
	return n
}

// Summary writes one line per layer with its output shape and size.
func (s *Sequential) Summary(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tlayer\toutput\tparams")
	for i, l := range s.layers {
		n := 0
		if p, ok := l.(Parametric); ok {
			for _, w := range p.Weights() {
				n += len(w)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%v\t%d\n", i, l.Name(), s.shapes[i], n)
	}
	fmt.Fprintf(tw, "\ttotal\t\t%d\n", s.ParamCount())
	return tw.Flush()
}

// Block is one VGG stage: Convs 3×3 convolutions of Filters channels,
// each behind a one-pixel zero padding, followed by 2×2 max pooling.
type Block struct {
	Filters, Convs int
}

// VGG16Blocks is the convolutional base of VGG16.
var VGG16Blocks = []Block{{64, 2}, {128, 2}, {256, 3}, {512, 3}, {512, 3}}

// VGG builds a VGG-style conv base. Layer indices line up with the
// layer_<k> groups of the published VGG16 weight archives, which store
// padding and pooling layers as parameterless entries.
func VGG(input core.Shape, blocks []Block, flip bool) (*Sequential, error) {
	s := &Sequential{Input: input}
	channels := input.C
	for _, b := range blocks {
		for i := 0; i < b.Convs; i++ {
			conv := NewConv2D(channels, b.Filters, 3, ActReLU)
			conv.Flip = flip
			if err := s.Add(&ZeroPadding2D{Pad: 1}); err != nil {
				return nil, err
			}
			if err := s.Add(conv); err != nil {
				return nil, err
			}
			channels = b.Filters
		}
		if err := s.Add(&MaxPooling2D{Size: 2}); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// VGG16 is VGG with the standard five blocks.
func VGG16(input core.Shape, flip bool) (*Sequential, error) {
	return VGG(input, VGG16Blocks, flip)
}

// TopModel is the classifier head placed on a conv base producing input:
// Flatten, Dense(hidden, relu), Dropout(dropout), Dense(1, sigmoid).
func TopModel(input core.Shape, hidden int, dropout float64) (*Sequential, error) {
	return NewSequential(input,
		&Flatten{},
		NewDense(input.Len(), hidden, ActReLU),
		&Dropout{Rate: dropout},
		NewDense(hidden, 1, ActSigmoid),
	)
}
