// Package vision scores images with a VGG16 convolutional base topped by a
// small binary classifier, and trains that classifier on base features.
package vision

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/sbinet/npyio"
	"gonum.org/v1/gonum/mat"

	"predkit/pkg/config"
	"predkit/pkg/core"
	"predkit/pkg/data"
	"predkit/pkg/frame"
	"predkit/pkg/ledger"
	"predkit/pkg/nn"
	"predkit/pkg/report"
)

var ErrIncomplete = errors.New("vision: scored fewer images than listed")

// histogramBins is the resolution of the optional score histogram.
const histogramBins = 20

type settings struct {
	blocks []nn.Block
}

// Option adjusts how the network is built.
type Option func(*settings)

// WithBlocks replaces the VGG16 stages, for smaller conv bases.
func WithBlocks(blocks []nn.Block) Option {
	return func(s *settings) { s.blocks = blocks }
}

func newSettings(opts []Option) settings {
	s := settings{blocks: nn.VGG16Blocks}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Model is a conv base and the classifier head placed on its output.
type Model struct {
	Base *nn.Sequential
	Head *nn.Sequential
}

// NewModel builds an untrained network for cfg's image size.
func NewModel(cfg config.Vision, opts ...Option) (*Model, error) {
	s := newSettings(opts)
	base, err := nn.VGG(core.Shape{C: 3, H: cfg.Height, W: cfg.Width}, s.blocks, cfg.FlipKernels)
	if err != nil {
		return nil, fmt.Errorf("vision: conv base: %w", err)
	}
	head, err := nn.TopModel(base.OutputShape(), cfg.Hidden, cfg.Dropout)
	if err != nil {
		return nil, fmt.Errorf("vision: head: %w", err)
	}
	return &Model{Base: base, Head: head}, nil
}

// LoadBase builds the network and fills the conv base from cfg.Weights.
func LoadBase(cfg config.Vision, opts ...Option) (*Model, error) {
	m, err := NewModel(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := nn.LoadWeights(cfg.Weights, m.Base); err != nil {
		return nil, err
	}
	return m, nil
}

// LoadModel builds the network and fills both the conv base and the head.
func LoadModel(cfg config.Vision, opts ...Option) (*Model, error) {
	m, err := LoadBase(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := nn.LoadWeights(cfg.TopWeights, m.Head); err != nil {
		return nil, err
	}
	return m, nil
}

// Features runs one image through the conv base.
func (m *Model) Features(x *core.Tensor) (*core.Tensor, error) {
	return m.Base.Forward(x)
}

// Score returns p(class 1) for each image, in order.
func (m *Model) Score(images []*core.Tensor) ([]float64, error) {
	feats := make([]*core.Tensor, len(images))
	for i, x := range images {
		f, err := m.Features(x)
		if err != nil {
			return nil, fmt.Errorf("vision: image %d: %w", i, err)
		}
		feats[i] = f
	}
	X, err := core.Stack(feats)
	if err != nil {
		return nil, err
	}
	out, err := m.Head.ForwardBatch(X)
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

func loadOptions(cfg config.Vision, aug *data.Augmenter) data.LoadOptions {
	return data.LoadOptions{
		Width:   cfg.Width,
		Height:  cfg.Height,
		Interp:  cfg.Interp,
		Rescale: 1.0 / 255,
		Augment: aug,
	}
}

// Prediction is the outcome of scoring a test directory.
type Prediction struct {
	IDs    []string
	Scores []float64
	// Labels holds the written 0/1 labels when a threshold is configured.
	Labels []int
}

// Predict scores every image under cfg.TestDir in listing order, writes
// the id,label CSV to cfg.Output and the raw scores as an n×1 array to
// cfg.Predictions.
func Predict(ctx context.Context, cfg config.Vision, logger *log.Logger, store *ledger.Store, opts ...Option) (res *Prediction, err error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	runID, err := store.Begin(ctx, "vision")
	if err != nil {
		return nil, err
	}
	defer func() {
		rows := 0
		if res != nil {
			rows = len(res.IDs)
		}
		if ferr := store.Finish(ctx, runID, cfg.Output, rows, err); ferr != nil && err == nil {
			err = ferr
		}
	}()

	m, err := LoadModel(cfg, opts...)
	if err != nil {
		return nil, err
	}
	logger.Printf("vision: model loaded, %d parameters", m.Base.ParamCount()+m.Head.ParamCount())

	files, _, err := data.ListImages(cfg.TestDir)
	if err != nil {
		return nil, err
	}
	scores, err := scoreFiles(ctx, m, files, cfg, logger)
	if err != nil {
		return nil, err
	}

	res = &Prediction{IDs: make([]string, len(files)), Scores: scores}
	for i, f := range files {
		res.IDs[i] = f.ID
	}
	labels := scores
	if cfg.Threshold > 0 {
		res.Labels = make([]int, len(scores))
		labels = make([]float64, len(scores))
		for i, s := range scores {
			if s >= cfg.Threshold {
				res.Labels[i] = 1
				labels[i] = 1
			}
		}
	}
	if err := writeCSV(cfg.Output, res.IDs, labels); err != nil {
		return res, err
	}
	if cfg.Predictions != "" {
		if err := SaveScores(cfg.Predictions, scores); err != nil {
			return res, err
		}
	}
	if cfg.Histogram != "" {
		if err := report.ScoreHistogram(cfg.Histogram, scores, histogramBins); err != nil {
			return res, err
		}
	}
	logger.Printf("vision: wrote %d predictions to %s", len(scores), cfg.Output)

	if cfg.Threshold > 0 {
		pos := 0
		for _, l := range res.Labels {
			pos += l
		}
		if err := store.Metric(ctx, runID, "positive_rate", float64(pos)/float64(len(res.Labels))); err != nil {
			return res, err
		}
	}
	return res, nil
}

func scoreFiles(ctx context.Context, m *Model, files []data.ImageFile, cfg config.Vision, logger *log.Logger) ([]float64, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	samples := make(chan data.Sample)
	batches := make(chan data.Batch)
	data.StreamImages(ctx, files, loadOptions(cfg, nil), samples)
	data.Batcher(ctx, samples, cfg.BatchSize, batches)

	scores := make([]float64, 0, len(files))
	for b := range batches {
		images := make([]*core.Tensor, len(b.Samples))
		for i, s := range b.Samples {
			if s.Err != nil {
				return nil, s.Err
			}
			images[i] = s.X
		}
		sc, err := m.Score(images)
		if err != nil {
			return nil, err
		}
		scores = append(scores, sc...)
		logger.Printf("vision: scored %d/%d", len(scores), len(files))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(scores) != len(files) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, len(scores), len(files))
	}
	return scores, nil
}

func writeCSV(path string, ids []string, labels []float64) error {
	f := frame.New(len(ids))
	if err := f.SetStrings("id", ids); err != nil {
		return err
	}
	if err := f.SetNumeric("label", labels); err != nil {
		return err
	}
	return f.WriteCSVFile(path)
}

// SaveScores writes scores as a float64 column vector in .npy format.
func SaveScores(path string, scores []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	m := mat.NewDense(len(scores), 1, append([]float64(nil), scores...))
	if err := npyio.Write(f, m); err != nil {
		f.Close()
		return fmt.Errorf("vision: write %s: %w", path, err)
	}
	return f.Close()
}

// LoadScores reads a column vector written by SaveScores.
func LoadScores(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m mat.Dense
	if err := npyio.Read(f, &m); err != nil {
		return nil, fmt.Errorf("vision: read %s: %w", path, err)
	}
	r, c := m.Dims()
	if c != 1 {
		return nil, fmt.Errorf("vision: %s holds %dx%d, want a column", path, r, c)
	}
	return mat.Col(nil, 0, &m), nil
}
