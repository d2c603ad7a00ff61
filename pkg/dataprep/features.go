package dataprep

import (
	"math"

	"predkit/pkg/frame"
)

// Log adds dst = ln(src). Non-positive inputs yield -Inf or NaN as math.Log does.
func Log(f *frame.Frame, src, dst string) error {
	v, err := f.Numeric(src)
	if err != nil {
		return err
	}
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = math.Log(x)
	}
	return f.SetNumeric(dst, out)
}

// Sum adds dst = a + b.
func Sum(f *frame.Frame, a, b, dst string) error {
	return combine(f, dst, func(x, y float64) float64 { return x + y }, a, b)
}

// Ratio adds dst = num / den.
func Ratio(f *frame.Frame, num, den, dst string) error {
	return combine(f, dst, func(x, y float64) float64 { return x / y }, num, den)
}

// Product adds dst = a * b.
func Product(f *frame.Frame, a, b, dst string) error {
	return combine(f, dst, func(x, y float64) float64 { return x * y }, a, b)
}

// Derive adds dst computed row by row from the named numeric columns.
func Derive(f *frame.Frame, dst string, fn func(row []float64) float64, cols ...string) error {
	src := make([][]float64, len(cols))
	for j, c := range cols {
		v, err := f.Numeric(c)
		if err != nil {
			return err
		}
		src[j] = v
	}
	out := make([]float64, f.Len())
	row := make([]float64, len(cols))
	for i := range out {
		for j := range src {
			row[j] = src[j][i]
		}
		out[i] = fn(row)
	}
	return f.SetNumeric(dst, out)
}

func combine(f *frame.Frame, dst string, op func(x, y float64) float64, a, b string) error {
	return Derive(f, dst, func(r []float64) float64 { return op(r[0], r[1]) }, a, b)
}

// MapStrings adds dst as a numeric column computed from a categorical column.
func MapStrings(f *frame.Frame, src, dst string, fn func(string) float64) error {
	v, err := f.Strings(src)
	if err != nil {
		return err
	}
	out := make([]float64, len(v))
	for i, s := range v {
		out[i] = fn(s)
	}
	return f.SetNumeric(dst, out)
}
