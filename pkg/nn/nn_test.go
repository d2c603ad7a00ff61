package nn

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"

	"predkit/pkg/core"
	"predkit/pkg/optim"
)

func TestConv2DForward(t *testing.T) {
	x := &core.Tensor{Shape: core.Shape{C: 1, H: 3, W: 3}, Data: []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}}
	conv := NewConv2D(1, 1, 2, Linear)
	if err := conv.SetWeights([][]float64{{1, 0, 0, 1}, {1}}); err != nil {
		t.Fatal(err)
	}
	out, err := conv.Forward(x)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{7, 9, 13, 15}
	if out.Shape != (core.Shape{C: 1, H: 2, W: 2}) {
		t.Fatalf("shape %v", out.Shape)
	}
	for i, v := range want {
		if out.Data[i] != v {
			t.Errorf("out[%d] = %v, want %v", i, out.Data[i], v)
		}
	}
}

func TestConv2DReLUAndFlip(t *testing.T) {
	conv := NewConv2D(1, 1, 2, ActReLU)
	conv.Flip = true
	if err := conv.SetWeights([][]float64{{1, 2, 3, 4}, {0}}); err != nil {
		t.Fatal(err)
	}
	for i, v := range []float64{4, 3, 2, 1} {
		if conv.W[i] != v {
			t.Fatalf("flipped kernel = %v", conv.W)
		}
	}
	x := &core.Tensor{Shape: core.Shape{C: 1, H: 2, W: 2}, Data: []float64{-1, -1, -1, -1}}
	out, _ := conv.Forward(x)
	if out.Data[0] != 0 {
		t.Errorf("relu output = %v", out.Data[0])
	}
	if err := conv.SetWeights([][]float64{{1, 2, 3}, {0}}); !errors.Is(err, ErrShape) {
		t.Errorf("short kernel: got %v", err)
	}
}

func TestPaddingAndPooling(t *testing.T) {
	x := &core.Tensor{Shape: core.Shape{C: 1, H: 2, W: 2}, Data: []float64{1, 2, 3, 4}}
	padded, _ := (&ZeroPadding2D{Pad: 1}).Forward(x)
	if padded.Shape != (core.Shape{C: 1, H: 4, W: 4}) || padded.At(0, 1, 1) != 1 || padded.At(0, 2, 2) != 4 || padded.At(0, 0, 0) != 0 {
		t.Fatalf("padded = %v", padded.Data)
	}
	pooled, err := (&MaxPooling2D{Size: 2}).Forward(padded)
	if err != nil {
		t.Fatal(err)
	}
	want := []float64{1, 2, 3, 4}
	for i, v := range want {
		if pooled.Data[i] != v {
			t.Errorf("pooled = %v", pooled.Data)
			break
		}
	}
	// odd sizes drop the trailing row and column
	s, _ := (&MaxPooling2D{Size: 2}).OutputShape(core.Shape{C: 2, H: 9, W: 9})
	if s != (core.Shape{C: 2, H: 4, W: 4}) {
		t.Errorf("shape %v", s)
	}
}

func TestVGGLayoutAndOutputShape(t *testing.T) {
	thin := []Block{{1, 2}, {1, 2}, {1, 3}, {1, 3}, {1, 3}}
	m, err := VGG(core.Shape{C: 3, H: 150, W: 150}, thin, false)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(m.Layers()); n != 31 {
		t.Errorf("layers = %d, want 31", n)
	}
	if got := m.OutputShape(); got != (core.Shape{C: 1, H: 4, W: 4}) {
		t.Errorf("output = %v", got)
	}
	if _, ok := m.Layers()[1].(*Conv2D); !ok {
		t.Errorf("layer 1 is %s, want conv2d", m.Layers()[1].Name())
	}

	top, err := TopModel(core.Shape{C: 512, H: 4, W: 4}, 256, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if top.OutputShape() != (core.Shape{C: 1, H: 1, W: 1}) {
		t.Errorf("top output = %v", top.OutputShape())
	}
	if top.ParamCount() != 8192*256+256+256+1 {
		t.Errorf("top params = %d", top.ParamCount())
	}

	var sb strings.Builder
	if err := top.Summary(&sb); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(sb.String(), "total") || !strings.Contains(sb.String(), "2097665") {
		t.Errorf("summary:\n%s", sb.String())
	}
}

func TestSequentialRejectsWrongInput(t *testing.T) {
	m, _ := TopModel(core.Shape{C: 4, H: 1, W: 1}, 3, 0)
	if _, err := m.Forward(core.NewTensor(5, 1, 1)); !errors.Is(err, ErrShape) {
		t.Errorf("got %v", err)
	}
	if _, err := NewSequential(core.Shape{C: 4, H: 1, W: 1}, NewDense(5, 1, Linear)); !errors.Is(err, ErrShape) {
		t.Errorf("got %v", err)
	}
}

func TestWeightsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "top.npz")
	in := core.Shape{C: 2, H: 2, W: 2}
	a, _ := TopModel(in, 3, 0.5)
	a.Init(rand.New(rand.NewSource(1)))
	if err := SaveWeights(path, a); err != nil {
		t.Fatal(err)
	}
	b, _ := TopModel(in, 3, 0.5)
	n, err := LoadWeights(path, b)
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("loaded %d layers, want 4", n)
	}
	x := &core.Tensor{Shape: in, Data: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}}
	ya, _ := a.Forward(x)
	yb, _ := b.Forward(x)
	if ya.Data[0] != yb.Data[0] {
		t.Errorf("outputs differ: %v vs %v", ya.Data[0], yb.Data[0])
	}
}

func TestLoadWeightsStopsAtModelEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "base.npz")
	in := core.Shape{C: 1, H: 8, W: 8}
	full, _ := VGG(in, []Block{{2, 1}, {2, 1}}, false)
	full.Init(rand.New(rand.NewSource(2)))
	if err := SaveWeights(path, full); err != nil {
		t.Fatal(err)
	}
	short, _ := VGG(in, []Block{{2, 1}}, false)
	n, err := LoadWeights(path, short)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(short.Layers()) {
		t.Errorf("loaded %d, want %d", n, len(short.Layers()))
	}
	if short.Layers()[1].(*Conv2D).W[0] != full.Layers()[1].(*Conv2D).W[0] {
		t.Error("first conv not loaded")
	}
}

func TestLoadWeightsErrors(t *testing.T) {
	dir := t.TempDir()
	m, _ := TopModel(core.Shape{C: 4, H: 1, W: 1}, 3, 0)
	if _, err := LoadWeights(filepath.Join(dir, "missing.npz"), m); !errors.Is(err, ErrWeightsNotFound) {
		t.Errorf("missing: got %v", err)
	}

	path := filepath.Join(dir, "other.npz")
	other, _ := TopModel(core.Shape{C: 5, H: 1, W: 1}, 3, 0)
	if err := SaveWeights(path, other); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadWeights(path, m); !errors.Is(err, ErrShape) {
		t.Errorf("mismatch: got %v", err)
	}
}

func TestHeadTrainerLearnsSeparableFeatures(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	var X [][]float64
	var y []int
	for i := 0; i < 200; i++ {
		label := i % 2
		c := -1.0
		if label == 1 {
			c = 1
		}
		X = append(X, []float64{c + 0.3*rnd.NormFloat64(), 0.3 * rnd.NormFloat64()})
		y = append(y, label)
	}
	top, _ := TopModel(core.Shape{C: 2, H: 1, W: 1}, 8, 0.25)
	top.Init(rnd)
	h, err := NewHeadTrainer(top, rnd)
	if err != nil {
		t.Fatal(err)
	}
	h.Optimizer = optim.NewSGD(0.05, 0.9)
	h.Epochs = 30
	history, err := h.Fit(context.Background(), X, y, X, y)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 30 {
		t.Fatalf("history has %d epochs", len(history))
	}
	last := history[len(history)-1]
	if last.ValAccuracy < 0.95 {
		t.Errorf("val accuracy = %v", last.ValAccuracy)
	}
	if !(last.ValLoss < history[0].ValLoss) || math.IsNaN(last.ValLoss) {
		t.Errorf("loss did not fall: %v -> %v", history[0].ValLoss, last.ValLoss)
	}
}

func TestHeadTrainerRejectsOtherModels(t *testing.T) {
	m, _ := NewSequential(core.Shape{C: 2, H: 1, W: 1}, NewDense(2, 1, ActSigmoid))
	if _, err := NewHeadTrainer(m, rand.New(rand.NewSource(1))); err == nil {
		t.Error("expected an error")
	}
}

func TestSigmoidStable(t *testing.T) {
	if v := Sigmoid(-1000); v != 0 || math.IsNaN(v) {
		t.Errorf("Sigmoid(-1000) = %v", v)
	}
	if v := Sigmoid(1000); v != 1 {
		t.Errorf("Sigmoid(1000) = %v", v)
	}
	if Sigmoid(0) != 0.5 {
		t.Error("Sigmoid(0) != 0.5")
	}
}
