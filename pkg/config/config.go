// Package config holds the settings of both prediction pipelines.
package config

import (
	"errors"
	"fmt"
	"os"

	yaml "gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("config is invalid")

type Config struct {
	Loan   Loan   `yaml:"loan"`
	Vision Vision `yaml:"vision"`
	Ledger Ledger `yaml:"ledger"`
}

// Loan configures the loan-approval pipeline.
type Loan struct {
	Train  string `yaml:"train"`
	Test   string `yaml:"test"`
	Output string `yaml:"output"`

	// Model is an estimator kind: gbm, forest, tree or logreg.
	Model  string             `yaml:"model"`
	Params map[string]float64 `yaml:"params,omitempty"`
	Seed   int64              `yaml:"seed"`

	CVFolds int    `yaml:"cvFolds"`
	Scoring string `yaml:"scoring"`
	// Holdout is the share of train rows split off and scored by a model
	// fitted on the rest; 0 skips it. The submission model always fits on
	// every train row.
	Holdout float64 `yaml:"holdout,omitempty"`

	// ImportanceChart, when set, is where the feature-importance bar chart
	// is written.
	ImportanceChart string `yaml:"importanceChart,omitempty"`
	// Prepared, when set, receives the engineered frame as CSV.
	Prepared string `yaml:"prepared,omitempty"`

	// Grid is searched by tune mode; DefaultGrid when empty.
	Grid map[string][]float64 `yaml:"grid,omitempty"`
}

// DefaultGrid is the first tuning step: the number of boosting stages.
func DefaultGrid() map[string][]float64 {
	return map[string][]float64{"n_estimators": {40, 50, 60, 70, 80, 90, 100}}
}

type Augment struct {
	Shear          float64 `yaml:"shear"`
	Zoom           float64 `yaml:"zoom"`
	HorizontalFlip bool    `yaml:"horizontalFlip"`
}

// Vision configures the image pipeline.
type Vision struct {
	Weights     string `yaml:"weights"`
	TopWeights  string `yaml:"topWeights"`
	FlipKernels bool   `yaml:"flipKernels"`

	TestDir       string `yaml:"testDir"`
	TrainDir      string `yaml:"trainDir,omitempty"`
	ValidationDir string `yaml:"validationDir,omitempty"`

	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	Interp    string `yaml:"interp"`
	BatchSize int    `yaml:"batchSize"`

	Output      string `yaml:"output"`
	Predictions string `yaml:"predictions"`
	// Threshold > 0 writes 0/1 labels (score >= Threshold) instead of
	// raw scores.
	Threshold float64 `yaml:"threshold"`
	Histogram string  `yaml:"histogram,omitempty"`

	Hidden       int     `yaml:"hidden"`
	Dropout      float64 `yaml:"dropout"`
	Epochs       int     `yaml:"epochs"`
	LearningRate float64 `yaml:"learningRate"`
	Momentum     float64 `yaml:"momentum"`
	Augment      Augment `yaml:"augment"`
	Seed         int64   `yaml:"seed"`
}

type Ledger struct {
	// Path of the SQLite run ledger; empty disables it.
	Path string `yaml:"path"`
}

// Default returns the reference settings of both pipelines.
func Default() Config {
	return Config{
		Loan: Loan{
			Train:   "train_u6lujuX_CVtuZ9i.csv",
			Test:    "test_Y3wMUE5_7gLdaTN.csv",
			Output:  "submission_GBM.csv",
			Model:   "gbm",
			Seed:    10,
			CVFolds: 5,
			Scoring: "accuracy",
		},
		Vision: Vision{
			Weights:      "vgg16_weights.npz",
			TopWeights:   "bottleneck_top_model.npz",
			FlipKernels:  true,
			TestDir:      "data/test_small",
			Width:        150,
			Height:       150,
			Interp:       "nearest",
			BatchSize:    32,
			Output:       "sub.csv",
			Predictions:  "test_data_predictions.npy",
			Hidden:       256,
			Dropout:      0.5,
			Epochs:       50,
			LearningRate: 1e-4,
			Momentum:     0.9,
			Augment:      Augment{Shear: 0.2, Zoom: 0.2, HorizontalFlip: true},
			Seed:         10,
		},
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	return Unmarshal(buf)
}

// Unmarshal decodes YAML over the defaults and validates the result.
func Unmarshal(buf []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first unusable setting as ErrInvalidConfig.
func (c Config) Validate() error {
	l, v := c.Loan, c.Vision
	switch {
	case l.CVFolds < 2:
		return fmt.Errorf("%w: loan.cvFolds must be at least 2, got %d", ErrInvalidConfig, l.CVFolds)
	case l.Holdout < 0 || l.Holdout >= 1:
		return fmt.Errorf("%w: loan.holdout must be in [0, 1)", ErrInvalidConfig)
	case v.Width < 1 || v.Height < 1:
		return fmt.Errorf("%w: vision image size %dx%d", ErrInvalidConfig, v.Width, v.Height)
	case v.BatchSize < 1:
		return fmt.Errorf("%w: vision.batchSize must be positive", ErrInvalidConfig)
	case v.Threshold < 0 || v.Threshold >= 1:
		return fmt.Errorf("%w: vision.threshold must be in [0, 1)", ErrInvalidConfig)
	case v.Dropout < 0 || v.Dropout >= 1:
		return fmt.Errorf("%w: vision.dropout must be in [0, 1)", ErrInvalidConfig)
	case v.Hidden < 1:
		return fmt.Errorf("%w: vision.hidden must be positive", ErrInvalidConfig)
	}
	for name, values := range l.Grid {
		if len(values) == 0 {
			return fmt.Errorf("%w: loan.grid.%s has no values", ErrInvalidConfig, name)
		}
	}
	return nil
}

// Marshal renders the configuration as YAML.
func (c Config) Marshal() ([]byte, error) { return yaml.Marshal(c) }
