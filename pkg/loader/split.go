package loader

import (
	"math/rand"
	"sort"
)

// TrainTestSplit partitions row indices 0..n-1 into train and test sets.
func TrainTestSplit(n int, testRatio float64, rng *rand.Rand) (train, test []int) {
	indices := rng.Perm(n)
	nTest := int(float64(n) * testRatio)
	return indices[nTest:], indices[:nTest]
}

// Shuffle permutes X and Y in unison, returning new slices.
func Shuffle(X [][]float64, Y []int, rng *rand.Rand) ([][]float64, []int) {
	n := len(X)
	XShuf := make([][]float64, n)
	YShuf := make([]int, n)
	for i, idx := range rng.Perm(n) {
		XShuf[i] = X[idx]
		YShuf[i] = Y[idx]
	}
	return XShuf, YShuf
}

// Fold is one train/validation partition of a k-fold split.
type Fold struct {
	Train, Test []int
}

// StratifiedKFold deals shuffled row indices into k folds class by class,
// so each fold keeps roughly the label proportions of y. A class with at
// least k rows appears in every Test set. Fold sizes differ by at most one.
func StratifiedKFold(y []int, k int, rng *rand.Rand) []Fold {
	byClass := make(map[int][]int)
	for _, i := range rng.Perm(len(y)) {
		byClass[y[i]] = append(byClass[y[i]], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	assign := make([]int, len(y))
	f := 0
	for _, c := range classes {
		for _, i := range byClass[c] {
			assign[i] = f
			f = (f + 1) % k
		}
	}
	folds := make([]Fold, k)
	for i, f := range assign {
		folds[f].Test = append(folds[f].Test, i)
	}
	for f := range folds {
		folds[f].Train = make([]int, 0, len(y)-len(folds[f].Test))
		for i, g := range assign {
			if g != f {
				folds[f].Train = append(folds[f].Train, i)
			}
		}
	}
	return folds
}

// Rows gathers X[idx] and y[idx].
func Rows(X [][]float64, y []int, idx []int) ([][]float64, []int) {
	xs := make([][]float64, len(idx))
	ys := make([]int, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
