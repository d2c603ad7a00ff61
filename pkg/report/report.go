package report

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var ErrNoData = errors.New("report: nothing to plot")

// Importance pairs a feature name with its score.
type Importance struct {
	Name  string
	Value float64
}

// SortImportances orders features by descending importance, breaking ties
// by name.
func SortImportances(names []string, values []float64) ([]Importance, error) {
	if len(names) != len(values) {
		return nil, fmt.Errorf("report: %d names for %d importances", len(names), len(values))
	}
	out := make([]Importance, len(names))
	for i := range names {
		out[i] = Importance{Name: names[i], Value: values[i]}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Value != out[b].Value {
			return out[a].Value > out[b].Value
		}
		return out[a].Name < out[b].Name
	})
	return out, nil
}

// FeatureImportanceChart saves a bar chart of importances, largest first.
// The image format follows the file extension.
func FeatureImportanceChart(path string, names []string, values []float64) error {
	imps, err := SortImportances(names, values)
	if err != nil {
		return err
	}
	if len(imps) == 0 {
		return ErrNoData
	}
	vals := make(plotter.Values, len(imps))
	labels := make([]string, len(imps))
	for i, imp := range imps {
		vals[i] = imp.Value
		labels[i] = imp.Name
	}

	p := plot.New()
	p.Title.Text = "Feature Importances"
	p.Y.Label.Text = "Feature Importance Score"
	bars, err := plotter.NewBarChart(vals, vg.Points(12))
	if err != nil {
		return err
	}
	p.Add(bars)
	p.NominalX(labels...)
	p.X.Tick.Label.Rotation = math.Pi / 2
	p.X.Tick.Label.XAlign = draw.XRight
	p.X.Tick.Label.YAlign = draw.YCenter

	width := vg.Length(math.Max(6, float64(len(labels))*0.35)) * vg.Inch
	if err := p.Save(width, 5*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}

// ScoreHistogram saves a histogram of predicted scores over bins buckets.
func ScoreHistogram(path string, scores []float64, bins int) error {
	if len(scores) == 0 {
		return ErrNoData
	}
	p := plot.New()
	p.Title.Text = "Predicted scores"
	p.X.Label.Text = "score"
	p.Y.Label.Text = "images"
	h, err := plotter.NewHist(plotter.Values(scores), max(1, bins))
	if err != nil {
		return err
	}
	p.Add(h)
	if err := p.Save(6*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("report: save %s: %w", path, err)
	}
	return nil
}
