package model

import "fmt"

// DecisionTreeClassifier is a binary CART classifier. It grows a
// RegressionTree on the 0/1 labels; leaf values are p(y=1).
type DecisionTreeClassifier struct {
	tree *RegressionTree
}

// Option functional config
type Option func(*RegressionTree)

func WithMaxDepth(d int) Option        { return func(t *RegressionTree) { t.MaxDepth = d } }
func WithMinSamplesSplit(n int) Option { return func(t *RegressionTree) { t.MinSamplesSplit = n } }
func WithMinSamplesLeaf(n int) Option  { return func(t *RegressionTree) { t.MinSamplesLeaf = n } }
func WithMaxFeatures(k int) Option     { return func(t *RegressionTree) { t.MaxFeatures = k } }
func WithRandomState(seed int64) Option {
	return func(t *RegressionTree) { t.RandomState = seed }
}

func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	t := newRegressionTree()
	for _, o := range opts {
		o(t)
	}
	return &DecisionTreeClassifier{tree: t}
}

// Fit trains the tree on X (n x p) and labels y in {0, 1}.
func (d *DecisionTreeClassifier) Fit(X [][]float64, y []int) error {
	if err := checkXy(X, y); err != nil {
		return err
	}
	return d.tree.Fit(X, labelsAsFloat(y), nil)
}

func (d *DecisionTreeClassifier) PredictProba(X [][]float64) []float64 { return d.tree.Predict(X) }

func (d *DecisionTreeClassifier) Predict(X [][]float64) []int { return threshold(d.PredictProba(X)) }

func (d *DecisionTreeClassifier) FeatureImportances() []float64 { return d.tree.FeatureImportances() }

// Depth of the fitted tree.
func (d *DecisionTreeClassifier) Depth() int { return d.tree.Depth() }

func (d *DecisionTreeClassifier) SetParam(name string, v float64) error {
	if !setTreeParam(d.tree, name, v) {
		return fmt.Errorf("%w: tree has no %q", ErrUnknownParam, name)
	}
	return nil
}

func (d *DecisionTreeClassifier) Params() map[string]float64 { return treeParams(d.tree) }

func (d *DecisionTreeClassifier) Clone() Tunable {
	t := *d.tree
	t.root, t.importances, t.nFeatures = nil, nil, 0
	return &DecisionTreeClassifier{tree: &t}
}

func setTreeParam(t *RegressionTree, name string, v float64) bool {
	switch name {
	case "max_depth":
		t.MaxDepth = int(v)
	case "min_samples_split":
		t.MinSamplesSplit = int(v)
	case "min_samples_leaf":
		t.MinSamplesLeaf = int(v)
	case "max_features":
		t.MaxFeatures = int(v)
	case "min_impurity_decrease":
		t.MinImpurityDecrease = v
	case "random_state":
		t.RandomState = int64(v)
	default:
		return false
	}
	return true
}

func treeParams(t *RegressionTree) map[string]float64 {
	return map[string]float64{
		"max_depth":             float64(t.MaxDepth),
		"min_samples_split":     float64(t.MinSamplesSplit),
		"min_samples_leaf":      float64(t.MinSamplesLeaf),
		"max_features":          float64(t.MaxFeatures),
		"min_impurity_decrease": t.MinImpurityDecrease,
		"random_state":          float64(t.RandomState),
	}
}

func labelsAsFloat(y []int) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		out[i] = float64(v)
	}
	return out
}
