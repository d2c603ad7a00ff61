package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"predkit/pkg/loader"
	"predkit/pkg/stats"
)

// ErrUndefinedScore is returned when a fold cannot be scored, such as
// roc_auc on a fold holding a single class.
var ErrUndefinedScore = errors.New("model: score undefined on fold")

// Scorer rates predicted probabilities against true labels; higher is better.
type Scorer func(yTrue []int, proba []float64) float64

// AccuracyScorer thresholds at 0.5 and returns the accuracy.
func AccuracyScorer(yTrue []int, proba []float64) float64 { return Accuracy(yTrue, threshold(proba)) }

// AUCScorer returns ROCAUC.
func AUCScorer(yTrue []int, proba []float64) float64 { return ROCAUC(yTrue, proba) }

// ScorerByName resolves "accuracy" (the default) or "roc_auc".
func ScorerByName(name string) (Scorer, error) {
	switch name {
	case "", "accuracy":
		return AccuracyScorer, nil
	case "roc_auc":
		return AUCScorer, nil
	}
	return nil, fmt.Errorf("model: unknown scorer %q", name)
}

// CrossValScore fits an unfitted clone of est on each fold's train rows
// and scores it on the fold's test rows. Folds run concurrently; scores
// come back in fold order.
func CrossValScore(est Tunable, X [][]float64, y []int, folds []loader.Fold, score Scorer) ([]float64, error) {
	if err := checkXy(X, y); err != nil {
		return nil, err
	}
	scores := make([]float64, len(folds))
	errs := make([]error, len(folds))
	var wg sync.WaitGroup
	for k, fold := range folds {
		wg.Add(1)
		go func(k int, fold loader.Fold) {
			defer wg.Done()
			m := est.Clone()
			xs, ys := loader.Rows(X, y, fold.Train)
			if err := m.Fit(xs, ys); err != nil {
				errs[k] = fmt.Errorf("fold %d: %w", k, err)
				return
			}
			xt, yt := loader.Rows(X, y, fold.Test)
			s := score(yt, m.PredictProba(xt))
			if math.IsNaN(s) {
				errs[k] = fmt.Errorf("%w %d", ErrUndefinedScore, k)
				return
			}
			scores[k] = s
		}(k, fold)
	}
	wg.Wait()
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return scores, nil
}

// CVSummary condenses fold scores the way the model report prints them.
type CVSummary struct {
	Mean, Std, Min, Max float64
}

func SummarizeScores(scores []float64) CVSummary {
	lo, hi := stats.MinMax(scores)
	return CVSummary{Mean: stats.Mean(scores), Std: stats.Std(scores), Min: lo, Max: hi}
}

func (s CVSummary) String() string {
	return fmt.Sprintf("Mean - %.7g | Std - %.7g | Min - %.7g | Max - %.7g", s.Mean, s.Std, s.Min, s.Max)
}

// Grid maps a parameter name to the values to try.
type Grid map[string][]float64

// Candidates expands the grid into every parameter combination. Names are
// iterated in sorted order with the last name varying fastest.
func (g Grid) Candidates() []map[string]float64 {
	names := make([]string, 0, len(g))
	for k := range g {
		names = append(names, k)
	}
	sort.Strings(names)

	out := []map[string]float64{{}}
	for _, name := range names {
		var next []map[string]float64
		for _, base := range out {
			for _, v := range g[name] {
				c := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					c[k] = bv
				}
				c[name] = v
				next = append(next, c)
			}
		}
		out = next
	}
	return out
}

// CandidateScore is the cross-validated result of one grid point.
type CandidateScore struct {
	Params map[string]float64
	Scores []float64
	CVSummary
}

// FormatParams renders params as "a=1 b=2" in name order.
func FormatParams(p map[string]float64) string {
	names := make([]string, 0, len(p))
	for k := range p {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = fmt.Sprintf("%s=%g", k, p[k])
	}
	return strings.Join(parts, " ")
}

// SearchResult holds every candidate in grid order plus the winner.
type SearchResult struct {
	Results    []CandidateScore
	BestParams map[string]float64
	BestScore  float64
}

// GridSearch scores every grid candidate on the same folds and keeps the
// one with the highest mean score; the first candidate wins ties.
func GridSearch(ctx context.Context, est Tunable, grid Grid, X [][]float64, y []int, folds []loader.Fold, score Scorer) (*SearchResult, error) {
	cands := grid.Candidates()
	res := &SearchResult{BestScore: -1}
	for i, params := range cands {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m := est.Clone()
		if err := SetParams(m, params); err != nil {
			return nil, err
		}
		scores, err := CrossValScore(m, X, y, folds, score)
		if err != nil {
			return nil, fmt.Errorf("candidate %s: %w", FormatParams(params), err)
		}
		cs := CandidateScore{Params: params, Scores: scores, CVSummary: SummarizeScores(scores)}
		res.Results = append(res.Results, cs)
		if i == 0 || cs.Mean > res.BestScore {
			res.BestScore = cs.Mean
			res.BestParams = params
		}
	}
	return res, nil
}
