package model

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"predkit/pkg/loader"
)

// separable returns n rows whose first feature decides the label and whose
// second feature is noise.
func separable(n int, seed int64) ([][]float64, []int) {
	rnd := rand.New(rand.NewSource(seed))
	X := make([][]float64, n)
	y := make([]int, n)
	for i := range X {
		x := float64(i) / float64(n)
		X[i] = []float64{x, rnd.Float64()}
		if x >= 0.5 {
			y[i] = 1
		}
	}
	return X, y
}

func TestEstimatorsLearnSeparableData(t *testing.T) {
	X, y := separable(200, 1)
	for _, kind := range []string{KindGBM, KindForest, KindTree, KindLogistic} {
		t.Run(kind, func(t *testing.T) {
			m, err := New(kind)
			if err != nil {
				t.Fatal(err)
			}
			if kind == KindForest {
				_ = m.SetParam("n_estimators", 20)
			}
			if err := m.Fit(X, y); err != nil {
				t.Fatalf("Fit: %v", err)
			}
			if acc := Accuracy(y, m.Predict(X)); acc < 0.9 {
				t.Errorf("train accuracy = %.3f", acc)
			}
			if auc := ROCAUC(y, m.PredictProba(X)); auc < 0.95 {
				t.Errorf("train AUC = %.3f", auc)
			}
		})
	}
}

func TestGradientBoostingDeterministic(t *testing.T) {
	X, y := separable(150, 2)
	a, b := NewGradientBoosting(WithStages(20)), NewGradientBoosting(WithStages(20))
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pa, pb := a.PredictProba(X), b.PredictProba(X)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("row %d: %v != %v", i, pa[i], pb[i])
		}
	}
}

func TestGradientBoostingDevianceDecreases(t *testing.T) {
	X, y := separable(200, 3)
	g := NewGradientBoosting(WithStages(30))
	if err := g.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if len(g.TrainDeviance) != 30 {
		t.Fatalf("got %d deviance entries", len(g.TrainDeviance))
	}
	if first, last := g.TrainDeviance[0], g.TrainDeviance[29]; last >= first {
		t.Errorf("deviance did not fall: %v -> %v", first, last)
	}
}

func TestGradientBoostingImportances(t *testing.T) {
	X, y := separable(200, 4)
	g := NewGradientBoosting(WithStages(20), WithGBMMaxFeatures(0))
	if err := g.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	imp := g.FeatureImportances()
	if math.Abs(imp[0]+imp[1]-1) > 1e-9 {
		t.Fatalf("importances %v do not sum to 1", imp)
	}
	if imp[0] <= imp[1] {
		t.Errorf("signal feature should dominate: %v", imp)
	}
}

func TestGradientBoostingBinaryRoundTrip(t *testing.T) {
	X, y := separable(120, 5)
	g := NewGradientBoosting(WithStages(10), WithTreeShape(3, 2, 10))
	if err := g.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	b, err := g.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var back GradientBoosting
	if err := back.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	want, got := g.PredictProba(X), back.PredictProba(X)
	for i := range want {
		if want[i] != got[i] {
			t.Fatalf("row %d: %v != %v", i, got[i], want[i])
		}
	}
	if back.MinSamplesLeaf != 10 {
		t.Errorf("MinSamplesLeaf = %d", back.MinSamplesLeaf)
	}
}

func TestGradientBoostingRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		y    []int
		want error
	}{
		{"empty", nil, nil, ErrEmpty},
		{"length", [][]float64{{1}, {2}}, []int{1}, ErrShape},
		{"label", [][]float64{{1}, {2}}, []int{0, 2}, ErrLabels},
		{"ragged", [][]float64{{1, 2}, {2}}, []int{0, 1}, ErrShape},
		{"nan", [][]float64{{1}, {math.NaN()}}, []int{0, 1}, ErrNaN},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewGradientBoosting(WithStages(1)).Fit(tt.X, tt.y)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRegressionTreeRespectsMinSamplesLeaf(t *testing.T) {
	X, y := separable(100, 6)
	tree := newRegressionTree()
	tree.MinSamplesLeaf = 15
	if err := tree.Fit(X, labelsAsFloat(y), nil); err != nil {
		t.Fatal(err)
	}
	var walk func(n *treeNode)
	walk = func(n *treeNode) {
		if n.Leaf {
			if n.N < 15 {
				t.Errorf("leaf with %d samples", n.N)
			}
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(tree.root)
}

func TestDecisionTreeSingleSplit(t *testing.T) {
	X, y := separable(50, 7)
	d := NewDecisionTreeClassifier(WithMaxFeatures(0))
	if err := d.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if d.Depth() != 1 {
		t.Errorf("depth = %d, want 1", d.Depth())
	}
	if acc := Accuracy(y, d.Predict(X)); acc != 1 {
		t.Errorf("accuracy = %v", acc)
	}
}

func TestRandomForestDeterministic(t *testing.T) {
	X, y := separable(100, 8)
	a := NewRandomForest(WithNEstimators(8))
	b := NewRandomForest(WithNEstimators(8))
	if err := a.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	if err := b.Fit(X, y); err != nil {
		t.Fatal(err)
	}
	pa, pb := a.PredictProba(X), b.PredictProba(X)
	for i := range pa {
		if pa[i] != pb[i] {
			t.Fatalf("row %d differs", i)
		}
	}
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		score []float64
		want  float64
	}{
		{"perfect", []int{0, 0, 1, 1}, []float64{0.1, 0.2, 0.8, 0.9}, 1},
		{"inverted", []int{1, 1, 0, 0}, []float64{0.1, 0.2, 0.8, 0.9}, 0},
		{"all tied", []int{0, 1, 0, 1}, []float64{0.5, 0.5, 0.5, 0.5}, 0.5},
		{"partial", []int{0, 1, 0, 1}, []float64{0.1, 0.3, 0.35, 0.8}, 0.75},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ROCAUC(tt.y, tt.score); math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
	if !math.IsNaN(ROCAUC([]int{1, 1}, []float64{0.2, 0.3})) {
		t.Error("single class should be NaN")
	}
}

func TestPrecisionRecallF1(t *testing.T) {
	yTrue := []int{1, 1, 0, 0, 1}
	yPred := []int{1, 0, 1, 0, 1}
	cm := ConfusionMatrix(yTrue, yPred)
	if cm != [2][2]int{{1, 1}, {1, 2}} {
		t.Fatalf("confusion = %v", cm)
	}
	p, r, f := PrecisionRecallF1(yTrue, yPred)
	if math.Abs(p-2.0/3) > 1e-12 || math.Abs(r-2.0/3) > 1e-12 || math.Abs(f-2.0/3) > 1e-12 {
		t.Errorf("got %v %v %v", p, r, f)
	}
}

func TestGridCandidates(t *testing.T) {
	g := Grid{"max_depth": {2, 3}, "learning_rate": {0.1, 0.2, 0.3}}
	c := g.Candidates()
	if len(c) != 6 {
		t.Fatalf("got %d candidates", len(c))
	}
	if c[0]["learning_rate"] != 0.1 || c[0]["max_depth"] != 2 || c[1]["max_depth"] != 3 {
		t.Errorf("unexpected order: %v", c[:2])
	}
	if got := FormatParams(c[5]); got != "learning_rate=0.3 max_depth=3" {
		t.Errorf("FormatParams = %q", got)
	}
}

func TestGridSearchPicksSplittableLeafSize(t *testing.T) {
	X, y := separable(100, 9)
	folds := loader.StratifiedKFold(y, 5, rand.New(rand.NewSource(10)))
	est := NewDecisionTreeClassifier(WithMaxFeatures(0))
	res, err := GridSearch(context.Background(), est, Grid{"min_samples_leaf": {60, 1}}, X, y, folds, AccuracyScorer)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Results) != 2 {
		t.Fatalf("got %d results", len(res.Results))
	}
	if res.BestParams["min_samples_leaf"] != 1 {
		t.Errorf("best = %v", res.BestParams)
	}
	if res.BestScore < 0.9 {
		t.Errorf("best score = %v", res.BestScore)
	}
	if est.tree.MinSamplesLeaf != 1 || est.tree.root != nil {
		t.Error("grid search mutated the template estimator")
	}
}

func TestGridSearchCancelled(t *testing.T) {
	X, y := separable(40, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	folds := loader.StratifiedKFold(y, 2, rand.New(rand.NewSource(1)))
	_, err := GridSearch(ctx, NewDecisionTreeClassifier(), Grid{"max_depth": {1}}, X, y, folds, AccuracyScorer)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v", err)
	}
}

func TestCrossValScoreRejectsSingleClassFold(t *testing.T) {
	X, y := separable(20, 4)
	// the first fold holds only negatives
	folds := []loader.Fold{
		{Test: []int{0, 1, 2, 3}, Train: []int{4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19}},
		{Test: []int{8, 9, 10, 11, 12, 13}, Train: []int{0, 1, 2, 3, 4, 5, 6, 7, 14, 15, 16, 17, 18, 19}},
	}
	_, err := CrossValScore(NewDecisionTreeClassifier(), X, y, folds, AUCScorer)
	if !errors.Is(err, ErrUndefinedScore) {
		t.Errorf("got %v, want ErrUndefinedScore", err)
	}
	if _, err := GridSearch(context.Background(), NewDecisionTreeClassifier(), Grid{"max_depth": {1, 2}}, X, y, folds, AUCScorer); !errors.Is(err, ErrUndefinedScore) {
		t.Errorf("grid search: got %v, want ErrUndefinedScore", err)
	}
	if _, err := CrossValScore(NewDecisionTreeClassifier(), X, y, folds, AccuracyScorer); err != nil {
		t.Errorf("accuracy is defined on one class: %v", err)
	}
}

func TestHalfProbabilityIsNegative(t *testing.T) {
	proba := []float64{0.5, 0.5000001, 0.4999999}
	got := BinaryPredFromProba(proba, 0.5)
	for i, want := range []int{0, 1, 0} {
		if got[i] != want {
			t.Errorf("p=%v labelled %d, want %d", proba[i], got[i], want)
		}
	}
	if acc := AccuracyScorer([]int{0, 1, 0}, proba); acc != 1 {
		t.Errorf("AccuracyScorer = %v, want 1", acc)
	}
}

func TestNewAndSetParam(t *testing.T) {
	if _, err := New("svm"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("got %v", err)
	}
	m, _ := New(KindGBM)
	if err := m.SetParam("gamma", 1); !errors.Is(err, ErrUnknownParam) {
		t.Errorf("got %v", err)
	}
	if err := m.SetParam("n_estimators", 7); err != nil {
		t.Fatal(err)
	}
	if m.Clone().Params()["n_estimators"] != 7 {
		t.Error("clone lost hyperparameters")
	}
}
