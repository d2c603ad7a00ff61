package model

import (
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"predkit/pkg/loader"
	"predkit/pkg/nn"
	"predkit/pkg/optim"
	"predkit/pkg/stats"
)

// LogisticRegression (binary) with sigmoid, trained by mini-batch SGD on
// binary cross-entropy.
type LogisticRegression struct {
	W           []float64 // weights
	B           float64   // bias
	Lr          float64
	Epochs      int
	BatchSize   int
	Standardize bool
	RandomState int64

	scaler *stats.StandardScaler
}

func NewLogisticRegression() *LogisticRegression {
	return &LogisticRegression{
		Lr:          0.1,
		Epochs:      200,
		BatchSize:   32,
		Standardize: true,
		RandomState: 10,
	}
}

// PredictProba splits rows across GOMAXPROCS workers.
func (m *LogisticRegression) PredictProba(X [][]float64) []float64 {
	if len(X) == 0 {
		return nil
	}
	if m.scaler != nil {
		X = m.scaler.Transform(X)
	}
	out := make([]float64, len(X))
	var wg sync.WaitGroup

	workers := runtime.GOMAXPROCS(0)
	rowsPerWorker := (len(X) + workers - 1) / workers

	for w := 0; w < workers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, len(X))
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = nn.Sigmoid(m.logit(X[i]))
			}
		}(start, end)
	}
	wg.Wait()
	return out
}

func (m *LogisticRegression) logit(row []float64) float64 {
	sum := m.B
	for j, v := range row {
		sum += m.W[j] * v
	}
	return sum
}

func (m *LogisticRegression) Predict(X [][]float64) []int { return threshold(m.PredictProba(X)) }

// Fit reshuffles the rows every epoch and steps once per mini-batch.
func (m *LogisticRegression) Fit(X [][]float64, y []int) error {
	if err := checkXy(X, y); err != nil {
		return err
	}
	m.scaler = nil
	if m.Standardize {
		m.scaler = stats.NewStandardScaler()
		X = m.scaler.FitTransform(X)
	}
	rnd := rand.New(rand.NewSource(m.RandomState))
	m.W = make([]float64, len(X[0]))
	for i := range m.W {
		m.W[i] = rnd.NormFloat64() * 0.01
	}
	m.B = 0
	batch := max(1, m.BatchSize)

	// bias rides along as the last parameter so the optimizer updates both
	params := make([]float64, len(m.W)+1)
	opt := optim.NewSGD(m.Lr, 0)
	for ep := 0; ep < m.Epochs; ep++ {
		xs, ys := loader.Shuffle(X, y, rnd)
		for start := 0; start < len(xs); start += batch {
			end := min(start+batch, len(xs))
			bx, by := xs[start:end], ys[start:end]

			p := make([]float64, len(bx))
			yt := make([]float64, len(bx))
			for i, row := range bx {
				p[i] = nn.Sigmoid(m.logit(row))
				yt[i] = float64(by[i])
			}
			_, dy := nn.BCE(yt, p)

			grads := make([]float64, len(params))
			for i, row := range bx {
				for j, xij := range row {
					grads[j] += dy[i] * xij
				}
				grads[len(m.W)] += dy[i]
			}
			copy(params, m.W)
			params[len(m.W)] = m.B
			opt.Step(params, grads)
			copy(m.W, params[:len(m.W)])
			m.B = params[len(m.W)]
		}
	}
	return nil
}

func (m *LogisticRegression) SetParam(name string, v float64) error {
	switch name {
	case "learning_rate":
		m.Lr = v
	case "epochs":
		m.Epochs = int(v)
	case "batch_size":
		m.BatchSize = int(v)
	case "standardize":
		m.Standardize = v != 0
	case "random_state":
		m.RandomState = int64(v)
	default:
		return fmt.Errorf("%w: logreg has no %q", ErrUnknownParam, name)
	}
	return nil
}

func (m *LogisticRegression) Params() map[string]float64 {
	s := 0.0
	if m.Standardize {
		s = 1
	}
	return map[string]float64{
		"learning_rate": m.Lr,
		"epochs":        float64(m.Epochs),
		"batch_size":    float64(m.BatchSize),
		"standardize":   s,
		"random_state":  float64(m.RandomState),
	}
}

func (m *LogisticRegression) Clone() Tunable {
	c := *m
	c.W, c.B, c.scaler = nil, 0, nil
	return &c
}
