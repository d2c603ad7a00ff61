package nn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"

	"predkit/pkg/core"
	"predkit/pkg/optim"
)

// EpochStats summarizes one pass over the training features.
type EpochStats struct {
	Epoch       int
	Loss        float64
	Accuracy    float64
	ValLoss     float64
	ValAccuracy float64
}

// HeadTrainer fits a TopModel on precomputed conv-base features with
// binary cross-entropy and SGD, applying dropout between the dense layers.
type HeadTrainer struct {
	Model     *Sequential
	Optimizer *optim.SGD
	Epochs    int
	BatchSize int
	Rand      *rand.Rand
	Logger    *log.Logger

	hidden, out *Dense
	rate        float64
}

// NewHeadTrainer checks that model has the TopModel layout. Defaults are
// lr 1e-4 with momentum 0.9, 50 epochs, batches of 32.
func NewHeadTrainer(model *Sequential, rnd *rand.Rand) (*HeadTrainer, error) {
	h := &HeadTrainer{
		Model:     model,
		Optimizer: optim.NewSGD(1e-4, 0.9),
		Epochs:    50,
		BatchSize: 32,
		Rand:      rnd,
		Logger:    log.New(io.Discard, "", 0),
	}
	layers := model.Layers()
	if len(layers) != 4 {
		return nil, errors.New("nn: head must be flatten, dense, dropout, dense")
	}
	var ok1, ok2, ok3 bool
	h.hidden, ok1 = layers[1].(*Dense)
	drop, ok2 := layers[2].(*Dropout)
	h.out, ok3 = layers[3].(*Dense)
	if !ok1 || !ok2 || !ok3 || h.out.Out != 1 {
		return nil, errors.New("nn: head must be flatten, dense, dropout, dense(1)")
	}
	if drop.Rate < 0 || drop.Rate >= 1 {
		return nil, fmt.Errorf("nn: dropout rate %v outside [0, 1)", drop.Rate)
	}
	h.rate = drop.Rate
	return h, nil
}

// Fit trains on rows of X (flattened features) with 0/1 labels y, scoring
// valX/valY after each epoch when given. It stops early if ctx is done.
func (h *HeadTrainer) Fit(ctx context.Context, X [][]float64, y []int, valX [][]float64, valY []int) ([]EpochStats, error) {
	if len(X) == 0 || len(X) != len(y) {
		return nil, fmt.Errorf("%w: %d feature rows, %d labels", ErrShape, len(X), len(y))
	}
	if len(X[0]) != h.hidden.In {
		return nil, fmt.Errorf("%w: features have %d values, head expects %d", ErrShape, len(X[0]), h.hidden.In)
	}
	batch := max(1, h.BatchSize)
	var history []EpochStats
	for ep := 1; ep <= h.Epochs; ep++ {
		if err := ctx.Err(); err != nil {
			return history, err
		}
		order := h.Rand.Perm(len(X))
		lossSum, correct := 0.0, 0
		for start := 0; start < len(order); start += batch {
			end := min(start+batch, len(order))
			l, c, err := h.step(X, y, order[start:end])
			if err != nil {
				return history, err
			}
			lossSum += l * float64(end-start)
			correct += c
		}
		st := EpochStats{Epoch: ep, Loss: lossSum / float64(len(X)), Accuracy: float64(correct) / float64(len(X))}
		if len(valX) > 0 {
			var err error
			if st.ValLoss, st.ValAccuracy, err = h.Evaluate(valX, valY); err != nil {
				return history, err
			}
		}
		h.Logger.Printf("epoch %d/%d loss %.4f acc %.4f val_loss %.4f val_acc %.4f",
			ep, h.Epochs, st.Loss, st.Accuracy, st.ValLoss, st.ValAccuracy)
		history = append(history, st)
	}
	return history, nil
}

// step runs forward and backward on one mini-batch and updates the
// weights. It returns the batch loss and the number of correct labels.
func (h *HeadTrainer) step(X [][]float64, y []int, rows []int) (float64, int, error) {
	n := len(rows)
	in := core.NewMatrix(n, h.hidden.In)
	for i, r := range rows {
		copy(in.Row(i), X[r])
	}
	pre, err := h.hidden.preActivation(in)
	if err != nil {
		return 0, 0, err
	}
	act := pre.Clone()
	activate(ActReLU, act.Data)

	keep := 1 - h.rate
	mask := make([]float64, len(act.Data))
	for i := range mask {
		if h.rate == 0 || h.Rand.Float64() < keep {
			mask[i] = 1 / keep
		}
		act.Data[i] *= mask[i]
	}

	logits, err := h.out.preActivation(act)
	if err != nil {
		return 0, 0, err
	}
	p := make([]float64, n)
	yt := make([]float64, n)
	correct := 0
	for i := range p {
		p[i] = Sigmoid(logits.Data[i])
		yt[i] = float64(y[rows[i]])
		if (p[i] > 0.5) == (y[rows[i]] == 1) {
			correct++
		}
	}
	loss, dz := BCE(yt, p)

	H := h.hidden.Out
	gW2 := make([]float64, len(h.out.W))
	gb2 := make([]float64, 1)
	gW1 := make([]float64, len(h.hidden.W))
	gb1 := make([]float64, H)
	dh := make([]float64, H)
	for i := 0; i < n; i++ {
		a := act.Row(i)
		for j := 0; j < H; j++ {
			gW2[j] += a[j] * dz[i]
			dh[j] = h.out.W[j] * dz[i] * mask[i*H+j] * ReLUPrime(pre.At(i, j))
			gb1[j] += dh[j]
		}
		gb2[0] += dz[i]
		for k, xv := range in.Row(i) {
			if xv == 0 {
				continue
			}
			row := gW1[k*H : (k+1)*H]
			for j, d := range dh {
				row[j] += xv * d
			}
		}
	}

	h.Optimizer.Step(h.out.W, gW2)
	h.Optimizer.Step(h.out.B, gb2)
	h.Optimizer.Step(h.hidden.W, gW1)
	h.Optimizer.Step(h.hidden.B, gb1)
	return loss, correct, nil
}

// Evaluate returns the mean BCE loss and accuracy of the head, without
// dropout, on the given features.
func (h *HeadTrainer) Evaluate(X [][]float64, y []int) (float64, float64, error) {
	if len(X) != len(y) {
		return 0, 0, fmt.Errorf("%w: %d feature rows, %d labels", ErrShape, len(X), len(y))
	}
	if len(X) == 0 {
		return 0, 0, nil
	}
	p, err := h.PredictBatch(X)
	if err != nil {
		return 0, 0, err
	}
	yt := make([]float64, len(y))
	correct := 0
	for i, v := range y {
		yt[i] = float64(v)
		if (p[i] > 0.5) == (v == 1) {
			correct++
		}
	}
	loss, _ := BCE(yt, p)
	return loss, float64(correct) / float64(len(y)), nil
}

// PredictBatch scores flattened feature rows through the head.
func (h *HeadTrainer) PredictBatch(X [][]float64) ([]float64, error) {
	out, err := h.Model.ForwardBatch(core.FromSlice(X))
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}
