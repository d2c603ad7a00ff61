package optim

import (
	"math"
	"testing"
)

func TestSGDPlainStep(t *testing.T) {
	w := []float64{1, 2}
	NewSGD(0.5, 0).Step(w, []float64{2, -2})
	if w[0] != 0 || w[1] != 3 {
		t.Fatalf("got %v", w)
	}
}

func TestSGDMomentumAccumulates(t *testing.T) {
	o := NewSGD(0.1, 0.9)
	w := []float64{0}
	g := []float64{1}
	o.Step(w, g) // v = -0.1
	o.Step(w, g) // v = -0.09 - 0.1 = -0.19
	if math.Abs(w[0]-(-0.29)) > 1e-12 {
		t.Fatalf("w = %v, want -0.29", w[0])
	}

	// a second slice keeps its own velocity
	u := []float64{0}
	o.Step(u, g)
	if math.Abs(u[0]-(-0.1)) > 1e-12 {
		t.Fatalf("u = %v, want -0.1", u[0])
	}
}
