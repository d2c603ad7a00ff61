package vision

import (
	"context"
	"fmt"
	"io"
	"log"
	"math/rand"

	"predkit/pkg/config"
	"predkit/pkg/data"
	"predkit/pkg/ledger"
	"predkit/pkg/nn"
	"predkit/pkg/optim"
)

// Bottleneck holds conv-base features of a class-per-subdirectory tree.
type Bottleneck struct {
	X       [][]float64
	Y       []int
	Classes []string
}

// ExtractFeatures runs every image under dir through the conv base, in
// listing order. aug, when set, transforms each image first.
func ExtractFeatures(ctx context.Context, m *Model, dir string, cfg config.Vision, aug *data.Augmenter) (*Bottleneck, error) {
	files, classes, err := data.ListImages(dir)
	if err != nil {
		return nil, err
	}
	if len(classes) != 2 {
		return nil, fmt.Errorf("vision: %s has %d classes, want 2", dir, len(classes))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	samples := make(chan data.Sample)
	data.StreamImages(ctx, files, loadOptions(cfg, aug), samples)

	b := &Bottleneck{Classes: classes}
	for s := range samples {
		if s.Err != nil {
			return nil, s.Err
		}
		f, err := m.Features(s.X)
		if err != nil {
			return nil, err
		}
		b.X = append(b.X, f.Data)
		b.Y = append(b.Y, s.File.Class)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(b.X) != len(files) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, len(b.X), len(files))
	}
	return b, nil
}

// TrainResult summarizes head training.
type TrainResult struct {
	Classes []string
	Samples int
	History []nn.EpochStats
}

// TrainHead fits a fresh classifier head on conv-base features of
// cfg.TrainDir, scoring cfg.ValidationDir after each epoch when set, and
// saves the head to cfg.TopWeights.
func TrainHead(ctx context.Context, cfg config.Vision, logger *log.Logger, store *ledger.Store, opts ...Option) (res *TrainResult, err error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runID, err := store.Begin(ctx, "vision-train")
	if err != nil {
		return nil, err
	}
	defer func() {
		rows := 0
		if res != nil {
			rows = res.Samples
		}
		if ferr := store.Finish(ctx, runID, cfg.TopWeights, rows, err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	m, err := LoadBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	rnd := rand.New(rand.NewSource(cfg.Seed))
	m.Head.Init(rnd)

	var aug *data.Augmenter
	if a := cfg.Augment; a.Shear > 0 || a.Zoom > 0 || a.HorizontalFlip {
		aug = &data.Augmenter{
			Shear:          a.Shear,
			Zoom:           a.Zoom,
			HorizontalFlip: a.HorizontalFlip,
			Rand:           rand.New(rand.NewSource(cfg.Seed + 1)),
		}
	}
	train, err := ExtractFeatures(ctx, m, cfg.TrainDir, cfg, aug)
	if err != nil {
		return nil, err
	}
	logger.Printf("vision: %d training features of %d values", len(train.X), len(train.X[0]))
	var val *Bottleneck
	if cfg.ValidationDir != "" {
		if val, err = ExtractFeatures(ctx, m, cfg.ValidationDir, cfg, nil); err != nil {
			return nil, err
		}
	} else {
		val = &Bottleneck{}
	}

	trainer, err := nn.NewHeadTrainer(m.Head, rnd)
	if err != nil {
		return nil, err
	}
	trainer.Optimizer = optim.NewSGD(cfg.LearningRate, cfg.Momentum)
	trainer.Epochs = cfg.Epochs
	trainer.BatchSize = cfg.BatchSize
	trainer.Logger = logger

	history, err := trainer.Fit(ctx, train.X, train.Y, val.X, val.Y)
	if err != nil {
		return nil, err
	}
	if err := nn.SaveWeights(cfg.TopWeights, m.Head); err != nil {
		return nil, err
	}
	res = &TrainResult{Classes: train.Classes, Samples: len(train.X), History: history}
	logger.Printf("vision: saved head to %s", cfg.TopWeights)

	if len(history) > 0 {
		last := history[len(history)-1]
		for name, v := range map[string]float64{
			"loss":         last.Loss,
			"accuracy":     last.Accuracy,
			"val_loss":     last.ValLoss,
			"val_accuracy": last.ValAccuracy,
		} {
			if err := store.Metric(ctx, runID, name, v); err != nil {
				return res, err
			}
		}
	}
	return res, nil
}
