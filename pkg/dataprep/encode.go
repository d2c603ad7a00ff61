package dataprep

import (
	"fmt"
	"sort"

	"predkit/pkg/frame"
)

// LabelEncoder maps categories to integer codes. Classes are kept sorted so
// the code of a category does not depend on row order.
type LabelEncoder struct {
	Classes []string
	index   map[string]int
}

// FitLabelEncoder collects the distinct values of data.
func FitLabelEncoder(data []string) *LabelEncoder {
	seen := map[string]struct{}{}
	for _, v := range data {
		seen[v] = struct{}{}
	}
	e := &LabelEncoder{Classes: make([]string, 0, len(seen))}
	for v := range seen {
		e.Classes = append(e.Classes, v)
	}
	sort.Strings(e.Classes)
	e.index = make(map[string]int, len(e.Classes))
	for i, v := range e.Classes {
		e.index[v] = i
	}
	return e
}

// Transform encodes data. Unknown categories are an error.
func (e *LabelEncoder) Transform(data []string) ([]float64, error) {
	out := make([]float64, len(data))
	for i, v := range data {
		c, ok := e.index[v]
		if !ok {
			return nil, fmt.Errorf("dataprep: unseen category %q", v)
		}
		out[i] = float64(c)
	}
	return out, nil
}

// LabelEncodeColumn replaces a categorical column by its codes.
func LabelEncodeColumn(f *frame.Frame, col string) (*LabelEncoder, error) {
	v, err := f.Strings(col)
	if err != nil {
		return nil, err
	}
	e := FitLabelEncoder(v)
	codes, err := e.Transform(v)
	if err != nil {
		return nil, err
	}
	return e, f.SetNumeric(col, codes)
}

// OneHot replaces col with one 0/1 indicator column per distinct value,
// named col_<value>, inserted where col was. Missing cells get all zeros.
// It returns the new column names.
func OneHot(f *frame.Frame, col string) ([]string, error) {
	c, err := f.Column(col)
	if err != nil {
		return nil, err
	}
	pos := f.Position(col)

	var values []string
	seen := map[string]struct{}{}
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		v := dummyLabel(c, i)
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			values = append(values, v)
		}
	}
	if c.Kind == frame.Numeric {
		sort.Slice(values, func(a, b int) bool { return numericLess(values[a], values[b]) })
	} else {
		sort.Strings(values)
	}

	f.Drop(col)
	names := make([]string, len(values))
	for j, v := range values {
		ind := make([]float64, c.Len())
		for i := range ind {
			if !c.IsMissing(i) && dummyLabel(c, i) == v {
				ind[i] = 1
			}
		}
		names[j] = col + "_" + v
		if err := f.Insert(pos+j, &frame.Column{Name: names[j], Kind: frame.Numeric, Num: ind}); err != nil {
			return nil, err
		}
	}
	return names, nil
}

// dummyLabel renders numeric categories with one decimal, the way pandas
// names dummies of a float column (Credit_History_1.0).
func dummyLabel(c *frame.Column, i int) string {
	if c.Kind == frame.Numeric {
		return fmt.Sprintf("%.1f", c.Num[i])
	}
	return c.Str[i]
}

func numericLess(a, b string) bool {
	var x, y float64
	fmt.Sscan(a, &x)
	fmt.Sscan(b, &y)
	return x < y
}
