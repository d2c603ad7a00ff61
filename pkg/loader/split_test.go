package loader

import (
	"math/rand"
	"sort"
	"testing"
)

func TestStratifiedKFoldCoversEveryIndexOnce(t *testing.T) {
	for _, tc := range []struct{ n, k int }{{10, 5}, {11, 3}, {7, 7}} {
		y := make([]int, tc.n)
		for i := range y {
			y[i] = i % 2
		}
		folds := StratifiedKFold(y, tc.k, rand.New(rand.NewSource(1)))
		if len(folds) != tc.k {
			t.Fatalf("n=%d k=%d: %d folds", tc.n, tc.k, len(folds))
		}
		seen := make([]int, tc.n)
		for _, f := range folds {
			if len(f.Train)+len(f.Test) != tc.n {
				t.Errorf("n=%d k=%d: fold sizes %d+%d", tc.n, tc.k, len(f.Train), len(f.Test))
			}
			if d := len(f.Test) - tc.n/tc.k; d < 0 || d > 1 {
				t.Errorf("n=%d k=%d: unbalanced fold of %d", tc.n, tc.k, len(f.Test))
			}
			for _, i := range f.Test {
				seen[i]++
			}
			inTest := map[int]bool{}
			for _, i := range f.Test {
				inTest[i] = true
			}
			for _, i := range f.Train {
				if inTest[i] {
					t.Errorf("index %d in both train and test", i)
				}
			}
		}
		for i, c := range seen {
			if c != 1 {
				t.Errorf("n=%d k=%d: index %d in %d test folds", tc.n, tc.k, i, c)
			}
		}
	}
}

func TestStratifiedKFoldKeepsBothClasses(t *testing.T) {
	// 3 positives in 20 rows: an unstratified 3-fold split can leave a
	// fold with none.
	y := make([]int, 20)
	y[4], y[11], y[17] = 1, 1, 1
	for seed := int64(0); seed < 20; seed++ {
		folds := StratifiedKFold(y, 3, rand.New(rand.NewSource(seed)))
		seen := make([]int, len(y))
		for _, f := range folds {
			if len(f.Train)+len(f.Test) != len(y) {
				t.Fatalf("seed %d: fold sizes %d+%d", seed, len(f.Train), len(f.Test))
			}
			if d := len(f.Test) - len(y)/3; d < 0 || d > 1 {
				t.Errorf("seed %d: unbalanced fold of %d", seed, len(f.Test))
			}
			pos := 0
			for _, i := range f.Test {
				seen[i]++
				pos += y[i]
			}
			if pos != 1 {
				t.Errorf("seed %d: fold holds %d positives, want 1", seed, pos)
			}
		}
		for i, c := range seen {
			if c != 1 {
				t.Errorf("seed %d: index %d in %d test folds", seed, i, c)
			}
		}
	}
}

func TestStratifiedKFoldIsSeeded(t *testing.T) {
	y := []int{0, 1, 0, 1, 0, 1, 1, 0, 0, 1}
	a := StratifiedKFold(y, 2, rand.New(rand.NewSource(7)))
	b := StratifiedKFold(y, 2, rand.New(rand.NewSource(7)))
	for f := range a {
		if len(a[f].Test) != len(b[f].Test) {
			t.Fatalf("fold %d sizes differ", f)
		}
		for i := range a[f].Test {
			if a[f].Test[i] != b[f].Test[i] {
				t.Fatalf("same seed produced different folds")
			}
		}
	}
}

func TestTrainTestSplitIsSeeded(t *testing.T) {
	tr1, te1 := TrainTestSplit(20, 0.3, rand.New(rand.NewSource(42)))
	tr2, te2 := TrainTestSplit(20, 0.3, rand.New(rand.NewSource(42)))
	if len(te1) != 6 || len(tr1) != 14 {
		t.Fatalf("sizes = %d/%d, want 14/6", len(tr1), len(te1))
	}
	for i := range te1 {
		if te1[i] != te2[i] {
			t.Fatal("same seed produced different splits")
		}
	}
	all := append(append([]int{}, tr1...), te1...)
	sort.Ints(all)
	for i, v := range all {
		if v != i {
			t.Fatalf("split is not a partition: %v", all)
		}
	}
	_ = tr2
}

func TestShuffleKeepsPairs(t *testing.T) {
	X := [][]float64{{0}, {1}, {2}, {3}}
	y := []int{0, 1, 2, 3}
	xs, ys := Shuffle(X, y, rand.New(rand.NewSource(3)))
	for i := range xs {
		if int(xs[i][0]) != ys[i] {
			t.Errorf("pair %d broken: %v/%d", i, xs[i], ys[i])
		}
	}
}
