package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"predkit/pkg/nn"
)

// GradientBoosting is a binary gradient-boosted tree ensemble minimizing
// binomial deviance. Each stage fits a regression tree to the residuals
// y - p on a subsample drawn without replacement, then replaces every leaf
// value with the Newton step Σr / Σp(1-p) of its in-bag rows.
type GradientBoosting struct {
	NEstimators     int
	LearningRate    float64
	MaxDepth        int
	MinSamplesSplit int
	MinSamplesLeaf  int
	MaxFeatures     int // 0 => all, SqrtFeatures => sqrt(p)
	Subsample       float64
	RandomState     int64

	// TrainDeviance is the in-bag deviance after each stage.
	TrainDeviance []float64

	init      float64
	trees     []*RegressionTree
	nFeatures int
}

// GBMOption functional config for GradientBoosting.
type GBMOption func(*GradientBoosting)

func WithStages(n int) GBMOption           { return func(g *GradientBoosting) { g.NEstimators = n } }
func WithLearningRate(lr float64) GBMOption { return func(g *GradientBoosting) { g.LearningRate = lr } }
func WithSubsample(s float64) GBMOption     { return func(g *GradientBoosting) { g.Subsample = s } }
func WithGBMSeed(seed int64) GBMOption      { return func(g *GradientBoosting) { g.RandomState = seed } }
func WithTreeShape(maxDepth, minSplit, minLeaf int) GBMOption {
	return func(g *GradientBoosting) {
		g.MaxDepth, g.MinSamplesSplit, g.MinSamplesLeaf = maxDepth, minSplit, minLeaf
	}
}
func WithGBMMaxFeatures(k int) GBMOption { return func(g *GradientBoosting) { g.MaxFeatures = k } }

// NewGradientBoosting returns the ensemble the loan model ships with:
// 100 stages, shrinkage 0.1, depth 5, at least 50 rows per leaf, sqrt(p)
// features per split, 80% subsampling, seed 10.
func NewGradientBoosting(opts ...GBMOption) *GradientBoosting {
	g := &GradientBoosting{
		NEstimators:     100,
		LearningRate:    0.1,
		MaxDepth:        5,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  50,
		MaxFeatures:     SqrtFeatures,
		Subsample:       0.8,
		RandomState:     10,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *GradientBoosting) validate() error {
	switch {
	case g.NEstimators < 1:
		return errors.New("gbm: n_estimators must be positive")
	case g.LearningRate <= 0:
		return errors.New("gbm: learning_rate must be positive")
	case g.Subsample <= 0 || g.Subsample > 1:
		return errors.New("gbm: subsample must be in (0, 1]")
	}
	return nil
}

// Fit trains the ensemble.
func (g *GradientBoosting) Fit(X [][]float64, y []int) error {
	if err := checkXy(X, y); err != nil {
		return err
	}
	if err := g.validate(); err != nil {
		return err
	}
	n := len(X)
	g.nFeatures = len(X[0])

	pos := 0.0
	for _, v := range y {
		pos += float64(v)
	}
	prior := math.Min(math.Max(pos/float64(n), 1e-12), 1-1e-12)
	g.init = math.Log(prior / (1 - prior))

	F := make([]float64, n)
	for i := range F {
		F[i] = g.init
	}
	p := make([]float64, n)
	resid := make([]float64, n)
	rnd := rand.New(rand.NewSource(g.RandomState))
	nIn := max(1, int(g.Subsample*float64(n)))

	g.trees = make([]*RegressionTree, 0, g.NEstimators)
	g.TrainDeviance = make([]float64, 0, g.NEstimators)
	for m := 0; m < g.NEstimators; m++ {
		for i := range F {
			p[i] = nn.Sigmoid(F[i])
			resid[i] = float64(y[i]) - p[i]
		}

		inBag := rnd.Perm(n)
		if nIn < n {
			inBag = inBag[:nIn]
		}
		sort.Ints(inBag)

		tree := &RegressionTree{
			MaxDepth:        g.MaxDepth,
			MinSamplesSplit: max(2, g.MinSamplesSplit),
			MinSamplesLeaf:  max(1, g.MinSamplesLeaf),
			MaxFeatures:     g.MaxFeatures,
			RandomState:     rnd.Int63(),
		}
		if err := tree.Fit(X, resid, inBag); err != nil {
			return fmt.Errorf("gbm: stage %d: %w", m, err)
		}

		type acc struct{ num, den float64 }
		sums := map[*treeNode]*acc{}
		for _, i := range inBag {
			leaf := tree.leaf(X[i])
			a, ok := sums[leaf]
			if !ok {
				a = &acc{}
				sums[leaf] = a
			}
			a.num += resid[i]
			a.den += p[i] * (1 - p[i])
		}
		for leaf, a := range sums {
			if math.Abs(a.den) < 1e-150 {
				leaf.Value = 0
			} else {
				leaf.Value = a.num / a.den
			}
		}

		for i, x := range X {
			F[i] += g.LearningRate * tree.PredictRow(x)
		}
		g.trees = append(g.trees, tree)

		dev := 0.0
		for _, i := range inBag {
			dev += deviance(y[i], F[i])
		}
		g.TrainDeviance = append(g.TrainDeviance, dev/float64(len(inBag)))
	}
	return nil
}

// deviance is the binomial negative log-likelihood of label y at log-odds f.
func deviance(y int, f float64) float64 {
	// log(1+exp(f)) - y*f, computed stably
	var l float64
	if f > 0 {
		l = f + math.Log1p(math.Exp(-f))
	} else {
		l = math.Log1p(math.Exp(f))
	}
	return 2 * (l - float64(y)*f)
}

// DecisionFunction returns the raw log-odds per row.
func (g *GradientBoosting) DecisionFunction(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		f := g.init
		for _, t := range g.trees {
			f += g.LearningRate * t.PredictRow(x)
		}
		out[i] = f
	}
	return out
}

func (g *GradientBoosting) PredictProba(X [][]float64) []float64 {
	out := g.DecisionFunction(X)
	for i, f := range out {
		out[i] = nn.Sigmoid(f)
	}
	return out
}

func (g *GradientBoosting) Predict(X [][]float64) []int { return threshold(g.PredictProba(X)) }

// FeatureImportances averages the per-tree normalized impurity decreases.
func (g *GradientBoosting) FeatureImportances() []float64 {
	out := make([]float64, g.nFeatures)
	for _, t := range g.trees {
		imp := normalize(append([]float64(nil), t.rawImportances()...))
		for j, v := range imp {
			out[j] += v
		}
	}
	return normalize(out)
}

func (g *GradientBoosting) SetParam(name string, v float64) error {
	switch name {
	case "n_estimators":
		g.NEstimators = int(v)
	case "learning_rate":
		g.LearningRate = v
	case "max_depth":
		g.MaxDepth = int(v)
	case "min_samples_split":
		g.MinSamplesSplit = int(v)
	case "min_samples_leaf":
		g.MinSamplesLeaf = int(v)
	case "max_features":
		g.MaxFeatures = int(v)
	case "subsample":
		g.Subsample = v
	case "random_state":
		g.RandomState = int64(v)
	default:
		return fmt.Errorf("%w: gbm has no %q", ErrUnknownParam, name)
	}
	return nil
}

func (g *GradientBoosting) Params() map[string]float64 {
	return map[string]float64{
		"n_estimators":      float64(g.NEstimators),
		"learning_rate":     g.LearningRate,
		"max_depth":         float64(g.MaxDepth),
		"min_samples_split": float64(g.MinSamplesSplit),
		"min_samples_leaf":  float64(g.MinSamplesLeaf),
		"max_features":      float64(g.MaxFeatures),
		"subsample":         g.Subsample,
		"random_state":      float64(g.RandomState),
	}
}

func (g *GradientBoosting) Clone() Tunable {
	c := *g
	c.trees, c.TrainDeviance, c.init, c.nFeatures = nil, nil, 0, 0
	return &c
}

type gbmState struct {
	Params    map[string]float64
	Init      float64
	NFeatures int
	Trees     [][]byte
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (g *GradientBoosting) MarshalBinary() ([]byte, error) {
	s := gbmState{Params: g.Params(), Init: g.init, NFeatures: g.nFeatures}
	for _, t := range g.trees {
		b, err := t.MarshalBinary()
		if err != nil {
			return nil, err
		}
		s.Trees = append(s.Trees, b)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (g *GradientBoosting) UnmarshalBinary(data []byte) error {
	var s gbmState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	if err := SetParams(g, s.Params); err != nil {
		return err
	}
	g.init, g.nFeatures = s.Init, s.NFeatures
	g.trees = make([]*RegressionTree, len(s.Trees))
	for i, b := range s.Trees {
		g.trees[i] = &RegressionTree{}
		if err := g.trees[i].UnmarshalBinary(b); err != nil {
			return err
		}
	}
	return nil
}
