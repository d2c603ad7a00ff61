package model

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty        = errors.New("model: empty X")
	ErrShape        = errors.New("model: X and y length mismatch")
	ErrLabels       = errors.New("model: labels must be 0 or 1")
	ErrNaN          = errors.New("model: X contains NaN")
	ErrUnknownParam = errors.New("model: unknown parameter")
	ErrUnknownKind  = errors.New("model: unknown estimator")
)

// Classifier is a binary classifier over dense rows. Labels are 0 or 1.
type Classifier interface {
	Fit(X [][]float64, y []int) error
	// PredictProba returns p(y=1) per row.
	PredictProba(X [][]float64) []float64
	Predict(X [][]float64) []int
}

// Tunable is a classifier whose hyperparameters can be set by name, as a
// grid search needs.
type Tunable interface {
	Classifier
	SetParam(name string, v float64) error
	Params() map[string]float64
	// Clone returns an unfitted copy with the same hyperparameters.
	Clone() Tunable
}

// Importancer exposes per-feature importances summing to one.
type Importancer interface {
	FeatureImportances() []float64
}

// Estimator kinds accepted by New.
const (
	KindGBM      = "gbm"
	KindForest   = "forest"
	KindTree     = "tree"
	KindLogistic = "logreg"
)

// New returns an estimator of the given kind with default hyperparameters.
func New(kind string) (Tunable, error) {
	switch kind {
	case KindGBM, "":
		return NewGradientBoosting(), nil
	case KindForest:
		return NewRandomForest(), nil
	case KindTree:
		return NewDecisionTreeClassifier(), nil
	case KindLogistic:
		return NewLogisticRegression(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// SetParams applies every entry of params.
func SetParams(t Tunable, params map[string]float64) error {
	for k, v := range params {
		if err := t.SetParam(k, v); err != nil {
			return err
		}
	}
	return nil
}

func checkXy(X [][]float64, y []int) error {
	if len(X) == 0 {
		return ErrEmpty
	}
	if len(y) != len(X) {
		return ErrShape
	}
	p := len(X[0])
	for i, row := range X {
		if len(row) != p {
			return fmt.Errorf("%w: row %d has %d features, want %d", ErrShape, i, len(row), p)
		}
		if y[i] != 0 && y[i] != 1 {
			return fmt.Errorf("%w: row %d has label %d", ErrLabels, i, y[i])
		}
	}
	return nil
}

// threshold is the decision rule every Predict uses.
func threshold(proba []float64) []int { return BinaryPredFromProba(proba, 0.5) }
