package model

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"
)

// RandomForest averages the class-1 probabilities of bootstrapped trees.
type RandomForest struct {
	NEstimators     int
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int
	Bootstrap       bool
	RandomState     int64

	Trees []*RegressionTree
}

// RandomForestOption functional config for RandomForest
type RandomForestOption func(*RandomForest)

func WithNEstimators(n int) RandomForestOption { return func(rf *RandomForest) { rf.NEstimators = n } }
func WithBootstrap(b bool) RandomForestOption  { return func(rf *RandomForest) { rf.Bootstrap = b } }
func WithForestSeed(seed int64) RandomForestOption {
	return func(rf *RandomForest) { rf.RandomState = seed }
}

// NewRandomForest initializes the forest with sensible defaults.
func NewRandomForest(opts ...RandomForestOption) *RandomForest {
	rf := &RandomForest{
		NEstimators:     100,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		MaxFeatures:     SqrtFeatures,
		Bootstrap:       true,
		RandomState:     10,
	}
	for _, o := range opts {
		o(rf)
	}
	return rf
}

// Fit trains the trees concurrently. Each tree draws its bootstrap sample
// from its own seeded source, so results do not depend on scheduling.
func (rf *RandomForest) Fit(X [][]float64, y []int) error {
	if err := checkXy(X, y); err != nil {
		return err
	}
	if rf.NEstimators < 1 {
		return errors.New("randomforest: n_estimators must be positive")
	}
	n := len(X)
	target := labelsAsFloat(y)

	rf.Trees = make([]*RegressionTree, rf.NEstimators)
	var wg sync.WaitGroup
	errCh := make(chan error, rf.NEstimators)

	for i := 0; i < rf.NEstimators; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			treeRand := rand.New(rand.NewSource(rf.RandomState + int64(idx)))

			sample := make([]int, n)
			for j := range sample {
				if rf.Bootstrap {
					sample[j] = treeRand.Intn(n)
				} else {
					sample[j] = j
				}
			}

			tree := &RegressionTree{
				MaxDepth:        rf.MaxDepth,
				MinSamplesSplit: rf.MinSamplesSplit,
				MinSamplesLeaf:  rf.MinSamplesLeaf,
				MaxFeatures:     rf.MaxFeatures,
				RandomState:     treeRand.Int63(),
			}
			if err := tree.Fit(X, target, sample); err != nil {
				errCh <- err
				return
			}
			rf.Trees[idx] = tree
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		return err
	}
	return nil
}

// PredictProba averages the tree probabilities, one goroutine per tree.
func (rf *RandomForest) PredictProba(X [][]float64) []float64 {
	out := make([]float64, len(X))
	if len(rf.Trees) == 0 {
		return out
	}
	preds := make([][]float64, len(rf.Trees))
	var wg sync.WaitGroup
	for k, tree := range rf.Trees {
		wg.Add(1)
		go func(k int, t *RegressionTree) {
			defer wg.Done()
			preds[k] = t.Predict(X)
		}(k, tree)
	}
	wg.Wait()

	for _, p := range preds {
		for i, v := range p {
			out[i] += v
		}
	}
	for i := range out {
		out[i] /= float64(len(rf.Trees))
	}
	return out
}

func (rf *RandomForest) Predict(X [][]float64) []int { return threshold(rf.PredictProba(X)) }

func (rf *RandomForest) FeatureImportances() []float64 {
	if len(rf.Trees) == 0 {
		return nil
	}
	out := make([]float64, rf.Trees[0].nFeatures)
	for _, t := range rf.Trees {
		for j, v := range t.FeatureImportances() {
			out[j] += v
		}
	}
	return normalize(out)
}

func (rf *RandomForest) SetParam(name string, v float64) error {
	switch name {
	case "n_estimators":
		rf.NEstimators = int(v)
	case "max_depth":
		rf.MaxDepth = int(v)
	case "min_samples_split":
		rf.MinSamplesSplit = int(v)
	case "min_samples_leaf":
		rf.MinSamplesLeaf = int(v)
	case "max_features":
		rf.MaxFeatures = int(v)
	case "bootstrap":
		rf.Bootstrap = v != 0
	case "random_state":
		rf.RandomState = int64(v)
	default:
		return fmt.Errorf("%w: forest has no %q", ErrUnknownParam, name)
	}
	return nil
}

func (rf *RandomForest) Params() map[string]float64 {
	b := 0.0
	if rf.Bootstrap {
		b = 1
	}
	return map[string]float64{
		"n_estimators":      float64(rf.NEstimators),
		"max_depth":         float64(rf.MaxDepth),
		"min_samples_split": float64(rf.MinSamplesSplit),
		"min_samples_leaf":  float64(rf.MinSamplesLeaf),
		"max_features":      float64(rf.MaxFeatures),
		"bootstrap":         b,
		"random_state":      float64(rf.RandomState),
	}
}

func (rf *RandomForest) Clone() Tunable {
	c := *rf
	c.Trees = nil
	return &c
}
