package model

import (
	"bytes"
	"encoding/gob"
	"errors"
	"math"
	"math/rand"
	"sort"
	"sync"
)

// SqrtFeatures as MaxFeatures samples sqrt(p) candidate features per split.
const SqrtFeatures = -1

// RegressionTree is a CART regression tree grown on squared error. With 0/1
// targets the leaf values are class-1 frequencies and the split gain is
// proportional to the Gini decrease, so the same tree serves classifiers.
type RegressionTree struct {
	MaxDepth            int     // 0 => no limit
	MinSamplesSplit     int     // minimum samples to attempt a split
	MinSamplesLeaf      int     // minimum samples required in each leaf
	MaxFeatures         int     // 0 => all, SqrtFeatures => sqrt(p), k > 0 => k
	MinImpurityDecrease float64 // weighted impurity decrease needed to split
	RandomState         int64

	root        *treeNode
	nFeatures   int
	importances []float64
}

// treeNode fields are exported for gob.
type treeNode struct {
	Leaf      bool
	Feature   int
	Threshold float64 // x <= Threshold goes left
	Left      *treeNode
	Right     *treeNode
	N         int
	Value     float64
}

func newRegressionTree() *RegressionTree {
	return &RegressionTree{MinSamplesSplit: 2, MinSamplesLeaf: 1}
}

// Fit grows the tree on the rows of X selected by idx (all rows when idx
// is nil) against real-valued targets y.
func (t *RegressionTree) Fit(X [][]float64, y []float64, idx []int) error {
	if len(X) == 0 {
		return ErrEmpty
	}
	if len(y) != len(X) {
		return ErrShape
	}
	if idx == nil {
		idx = make([]int, len(X))
		for i := range idx {
			idx[i] = i
		}
	}
	if len(idx) == 0 {
		return ErrEmpty
	}
	t.nFeatures = len(X[0])
	for _, i := range idx {
		for _, v := range X[i] {
			if math.IsNaN(v) {
				return ErrNaN
			}
		}
	}
	t.importances = make([]float64, t.nFeatures)
	rnd := rand.New(rand.NewSource(t.RandomState))
	work := append([]int(nil), idx...)
	t.root = t.buildNode(X, y, work, 0, len(idx), rnd)
	return nil
}

// splitResult holds the best split found for one feature.
type splitResult struct {
	gain      float64
	feature   int
	threshold float64
}

func (t *RegressionTree) featureCount() int {
	p := t.nFeatures
	switch {
	case t.MaxFeatures == SqrtFeatures:
		return max(1, int(math.Sqrt(float64(p))))
	case t.MaxFeatures > 0 && t.MaxFeatures < p:
		return t.MaxFeatures
	}
	return p
}

func (t *RegressionTree) buildNode(X [][]float64, y []float64, idx []int, depth, total int, rnd *rand.Rand) *treeNode {
	n := len(idx)
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += y[i]
		sumSq += y[i] * y[i]
	}
	node := &treeNode{N: n, Value: sum / float64(n), Leaf: true}
	sse := sumSq - sum*sum/float64(n)

	minLeaf := max(1, t.MinSamplesLeaf)
	if n < t.MinSamplesSplit || n < 2*minLeaf || sse <= 1e-12 {
		return node
	}
	if t.MaxDepth > 0 && depth >= t.MaxDepth {
		return node
	}

	// sample candidate features before fanning out so rnd use stays sequential
	p := t.nFeatures
	featIndices := make([]int, p)
	for j := range featIndices {
		featIndices[j] = j
	}
	if k := t.featureCount(); k < p {
		for i := 0; i < k; i++ {
			j := i + rnd.Intn(p-i)
			featIndices[i], featIndices[j] = featIndices[j], featIndices[i]
		}
		featIndices = featIndices[:k]
	}

	results := make(chan splitResult, len(featIndices))
	var wg sync.WaitGroup
	for _, f := range featIndices {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			results <- bestSplitForFeature(X, y, idx, f, minLeaf, sum)
		}(f)
	}
	wg.Wait()
	close(results)

	best := splitResult{feature: -1}
	for r := range results {
		if r.feature < 0 {
			continue
		}
		if r.gain > best.gain || (r.gain == best.gain && best.feature >= 0 && r.feature < best.feature) {
			best = r
		}
	}
	if best.feature < 0 || best.gain <= 1e-12 || best.gain/float64(total) < t.MinImpurityDecrease {
		return node
	}

	left := make([]int, 0, n)
	right := make([]int, 0, n)
	for _, i := range idx {
		if X[i][best.feature] <= best.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	t.importances[best.feature] += best.gain

	node.Leaf = false
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = t.buildNode(X, y, left, depth+1, total, rnd)
	node.Right = t.buildNode(X, y, right, depth+1, total, rnd)
	return node
}

// bestSplitForFeature scans the sorted values of feature f and returns the
// threshold maximizing the squared-error decrease, which for a binary split
// equals nl*nr/n * (meanL - meanR)^2.
func bestSplitForFeature(X [][]float64, y []float64, idx []int, f, minLeaf int, total float64) splitResult {
	result := splitResult{feature: -1}
	n := len(idx)
	order := append([]int(nil), idx...)
	sort.SliceStable(order, func(a, b int) bool { return X[order[a]][f] < X[order[b]][f] })

	left := 0.0
	for s := 1; s < n; s++ {
		left += y[order[s-1]]
		if s < minLeaf || n-s < minLeaf {
			continue
		}
		lo, hi := X[order[s-1]][f], X[order[s]][f]
		if lo == hi {
			continue
		}
		nl, nr := float64(s), float64(n-s)
		diff := left/nl - (total-left)/nr
		gain := nl * nr / float64(n) * diff * diff
		if gain > result.gain {
			result = splitResult{gain: gain, feature: f, threshold: (lo + hi) / 2}
		}
	}
	return result
}

// leaf returns the leaf reached by x.
func (t *RegressionTree) leaf(x []float64) *treeNode {
	node := t.root
	for !node.Leaf {
		if x[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

// PredictRow returns the leaf value for x.
func (t *RegressionTree) PredictRow(x []float64) float64 {
	if t.root == nil {
		return 0
	}
	return t.leaf(x).Value
}

func (t *RegressionTree) Predict(X [][]float64) []float64 {
	out := make([]float64, len(X))
	for i, x := range X {
		out[i] = t.PredictRow(x)
	}
	return out
}

// Depth returns the depth of the deepest leaf (a single leaf has depth 0).
func (t *RegressionTree) Depth() int {
	var walk func(n *treeNode) int
	walk = func(n *treeNode) int {
		if n == nil || n.Leaf {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	return walk(t.root)
}

// rawImportances returns the unnormalized impurity decrease per feature.
func (t *RegressionTree) rawImportances() []float64 { return t.importances }

// FeatureImportances returns impurity-decrease importances normalized to
// sum to one. A tree that never split returns zeros.
func (t *RegressionTree) FeatureImportances() []float64 {
	return normalize(append([]float64(nil), t.importances...))
}

func normalize(v []float64) []float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	if s == 0 {
		return v
	}
	for i := range v {
		v[i] /= s
	}
	return v
}

type treeState struct {
	MaxDepth, MinSamplesSplit, MinSamplesLeaf, MaxFeatures int
	MinImpurityDecrease                                    float64
	RandomState                                            int64
	NFeatures                                              int
	Importances                                            []float64
	Root                                                   *treeNode
}

// MarshalBinary implements encoding.BinaryMarshaler using gob.
func (t *RegressionTree) MarshalBinary() ([]byte, error) {
	if t.root == nil {
		return nil, errors.New("tree: not fitted")
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(treeState{
		MaxDepth: t.MaxDepth, MinSamplesSplit: t.MinSamplesSplit, MinSamplesLeaf: t.MinSamplesLeaf,
		MaxFeatures: t.MaxFeatures, MinImpurityDecrease: t.MinImpurityDecrease, RandomState: t.RandomState,
		NFeatures: t.nFeatures, Importances: t.importances, Root: t.root,
	})
	return buf.Bytes(), err
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler using gob.
func (t *RegressionTree) UnmarshalBinary(data []byte) error {
	var s treeState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return err
	}
	t.MaxDepth, t.MinSamplesSplit, t.MinSamplesLeaf = s.MaxDepth, s.MinSamplesSplit, s.MinSamplesLeaf
	t.MaxFeatures, t.MinImpurityDecrease, t.RandomState = s.MaxFeatures, s.MinImpurityDecrease, s.RandomState
	t.nFeatures, t.importances, t.root = s.NFeatures, s.Importances, s.Root
	return nil
}
