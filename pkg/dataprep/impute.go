package dataprep

import (
	"fmt"
	"math"
	"sort"

	"predkit/pkg/frame"
	"predkit/pkg/stats"
)

// FillString replaces missing cells of a categorical column with value.
// It returns the number of cells filled.
func FillString(f *frame.Frame, col, value string) (int, error) {
	v, err := f.Strings(col)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, s := range v {
		if s == "" {
			v[i] = value
			n++
		}
	}
	return n, nil
}

// FillNumeric replaces NaN cells of a numeric column with value.
func FillNumeric(f *frame.Frame, col string, value float64) (int, error) {
	v, err := f.Numeric(col)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, x := range v {
		if math.IsNaN(x) {
			v[i] = value
			n++
		}
	}
	return n, nil
}

// GroupKey identifies a cell of a two-way pivot.
type GroupKey struct {
	Row, Col string
}

// MedianTable is a pivot of medians of a numeric column grouped by two
// categorical columns.
type MedianTable struct {
	Value, RowKey, ColKey string
	Medians               map[GroupKey]float64
	// Overall is the median of every observed value, used for pairs that
	// never occur with an observed value.
	Overall float64
}

// Lookup returns the median for the pair and whether the pair was observed.
func (t MedianTable) Lookup(row, col string) (float64, bool) {
	m, ok := t.Medians[GroupKey{row, col}]
	if !ok {
		return t.Overall, false
	}
	return m, true
}

// Keys returns the observed pairs in sorted order.
func (t MedianTable) Keys() []GroupKey {
	keys := make([]GroupKey, 0, len(t.Medians))
	for k := range t.Medians {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a].Row != keys[b].Row {
			return keys[a].Row < keys[b].Row
		}
		return keys[a].Col < keys[b].Col
	})
	return keys
}

// GroupedMedian computes the median of the observed values of value for
// each (rowKey, colKey) pair. Rows where either key is missing are skipped.
func GroupedMedian(f *frame.Frame, value, rowKey, colKey string) (MedianTable, error) {
	v, err := f.Numeric(value)
	if err != nil {
		return MedianTable{}, err
	}
	rk, err := f.Strings(rowKey)
	if err != nil {
		return MedianTable{}, err
	}
	ck, err := f.Strings(colKey)
	if err != nil {
		return MedianTable{}, err
	}

	groups := map[GroupKey][]float64{}
	var observed []float64
	for i, x := range v {
		if math.IsNaN(x) {
			continue
		}
		observed = append(observed, x)
		if rk[i] == "" || ck[i] == "" {
			continue
		}
		k := GroupKey{rk[i], ck[i]}
		groups[k] = append(groups[k], x)
	}

	t := MedianTable{
		Value:   value,
		RowKey:  rowKey,
		ColKey:  colKey,
		Medians: make(map[GroupKey]float64, len(groups)),
		Overall: stats.Median(observed),
	}
	for k, xs := range groups {
		t.Medians[k] = stats.Median(xs)
	}
	return t, nil
}

// FillGroupedMedian replaces missing cells of t.Value with the median of
// their (t.RowKey, t.ColKey) pair, falling back to t.Overall.
func FillGroupedMedian(f *frame.Frame, t MedianTable) (int, error) {
	v, err := f.Numeric(t.Value)
	if err != nil {
		return 0, err
	}
	rk, err := f.Strings(t.RowKey)
	if err != nil {
		return 0, err
	}
	ck, err := f.Strings(t.ColKey)
	if err != nil {
		return 0, err
	}
	n := 0
	for i, x := range v {
		if !math.IsNaN(x) {
			continue
		}
		m, _ := t.Lookup(rk[i], ck[i])
		if math.IsNaN(m) {
			return n, fmt.Errorf("dataprep: no observed %s to impute row %d", t.Value, i)
		}
		v[i] = m
		n++
	}
	return n, nil
}
