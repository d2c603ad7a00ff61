// Package frame holds small column-oriented tables read from CSV files.
//
// A column is either numeric, with missing cells stored as NaN, or
// categorical, with missing cells stored as the empty string. Column kinds
// are inferred when reading: a column is numeric when every non-missing
// cell parses as a float.
package frame

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrNoColumn  = errors.New("frame: no such column")
	ErrKind      = errors.New("frame: wrong column kind")
	ErrLength    = errors.New("frame: column length mismatch")
	ErrDuplicate = errors.New("frame: duplicate column")
)

type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	if k == Numeric {
		return "numeric"
	}
	return "categorical"
}

// Column is a named vector. Exactly one of Num and Str is populated,
// according to Kind.
type Column struct {
	Name string
	Kind Kind
	Num  []float64
	Str  []string
}

func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Num)
	}
	return len(c.Str)
}

// IsMissing reports whether row i holds no value.
func (c *Column) IsMissing(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Num[i])
	}
	return c.Str[i] == ""
}

// Cell renders row i as text. Missing cells render as "".
func (c *Column) Cell(i int) string {
	if c.Kind == Categorical {
		return c.Str[i]
	}
	return FormatFloat(c.Num[i])
}

func (c *Column) clone() *Column {
	n := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		n.Num = append([]float64(nil), c.Num...)
	} else {
		n.Str = append([]string(nil), c.Str...)
	}
	return n
}

// Frame is an ordered set of equally long columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	n     int
}

// New returns an empty frame with n rows and no columns.
func New(n int) *Frame {
	return &Frame{index: map[string]int{}, n: n}
}

func (f *Frame) Len() int { return f.n }

// Columns returns the column names in order.
func (f *Frame) Columns() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Position returns the index of the named column, or -1.
func (f *Frame) Position(name string) int {
	if i, ok := f.index[name]; ok {
		return i
	}
	return -1
}

func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoColumn, name)
	}
	return f.cols[i], nil
}

// Numeric returns the backing slice of a numeric column.
func (f *Frame) Numeric(name string) ([]float64, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Numeric {
		return nil, fmt.Errorf("%w: %s is %s", ErrKind, name, c.Kind)
	}
	return c.Num, nil
}

// Strings returns the backing slice of a categorical column.
func (f *Frame) Strings(name string) ([]string, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Categorical {
		return nil, fmt.Errorf("%w: %s is %s", ErrKind, name, c.Kind)
	}
	return c.Str, nil
}

// SetNumeric replaces or appends a numeric column.
func (f *Frame) SetNumeric(name string, v []float64) error {
	return f.set(&Column{Name: name, Kind: Numeric, Num: v})
}

// SetStrings replaces or appends a categorical column.
func (f *Frame) SetStrings(name string, v []string) error {
	return f.set(&Column{Name: name, Kind: Categorical, Str: v})
}

func (f *Frame) set(c *Column) error {
	if c.Len() != f.n {
		return fmt.Errorf("%w: %s has %d rows, frame has %d", ErrLength, c.Name, c.Len(), f.n)
	}
	if i, ok := f.index[c.Name]; ok {
		f.cols[i] = c
		return nil
	}
	f.index[c.Name] = len(f.cols)
	f.cols = append(f.cols, c)
	return nil
}

// Insert places c at position pos, shifting later columns right.
func (f *Frame) Insert(pos int, c *Column) error {
	if f.Has(c.Name) {
		return fmt.Errorf("%w: %s", ErrDuplicate, c.Name)
	}
	if c.Len() != f.n {
		return fmt.Errorf("%w: %s has %d rows, frame has %d", ErrLength, c.Name, c.Len(), f.n)
	}
	f.cols = append(f.cols, nil)
	copy(f.cols[pos+1:], f.cols[pos:])
	f.cols[pos] = c
	f.reindex()
	return nil
}

// Drop removes the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) {
	drop := map[string]bool{}
	for _, n := range names {
		drop[n] = true
	}
	kept := f.cols[:0]
	for _, c := range f.cols {
		if !drop[c.Name] {
			kept = append(kept, c)
		}
	}
	f.cols = kept
	f.reindex()
}

func (f *Frame) reindex() {
	f.index = make(map[string]int, len(f.cols))
	for i, c := range f.cols {
		f.index[c.Name] = i
	}
}

// Filter returns a copy holding the rows for which keep returns true.
func (f *Frame) Filter(keep func(i int) bool) *Frame {
	rows := []int{}
	for i := 0; i < f.n; i++ {
		if keep(i) {
			rows = append(rows, i)
		}
	}
	out := New(len(rows))
	for _, c := range f.cols {
		nc := &Column{Name: c.Name, Kind: c.Kind}
		if c.Kind == Numeric {
			nc.Num = make([]float64, len(rows))
			for j, r := range rows {
				nc.Num[j] = c.Num[r]
			}
		} else {
			nc.Str = make([]string, len(rows))
			for j, r := range rows {
				nc.Str[j] = c.Str[r]
			}
		}
		out.index[nc.Name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

// Clone deep-copies the frame.
func (f *Frame) Clone() *Frame {
	out := New(f.n)
	for _, c := range f.cols {
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c.clone())
	}
	return out
}

// Concat stacks frames row-wise, matching columns by name. Column order is
// first appearance; a column absent from a frame is missing in its rows.
// A column is categorical when any frame holds categorical values for it;
// columns that are entirely missing do not vote.
func Concat(frames ...*Frame) *Frame {
	total := 0
	var order []string
	kinds := map[string]Kind{}
	voted := map[string]bool{}
	for _, f := range frames {
		total += f.n
		for _, c := range f.cols {
			if _, seen := kinds[c.Name]; !seen {
				order = append(order, c.Name)
				kinds[c.Name] = c.Kind
			}
			if allMissing(c) {
				continue
			}
			if !voted[c.Name] {
				kinds[c.Name] = c.Kind
				voted[c.Name] = true
			} else if c.Kind == Categorical {
				kinds[c.Name] = Categorical
			}
		}
	}

	out := New(total)
	for _, name := range order {
		nc := &Column{Name: name, Kind: kinds[name]}
		for _, f := range frames {
			c, err := f.Column(name)
			for i := 0; i < f.n; i++ {
				switch {
				case nc.Kind == Numeric && (err != nil || c.Kind != Numeric):
					nc.Num = append(nc.Num, math.NaN())
				case nc.Kind == Numeric:
					nc.Num = append(nc.Num, c.Num[i])
				case err != nil:
					nc.Str = append(nc.Str, "")
				default:
					nc.Str = append(nc.Str, c.Cell(i))
				}
			}
		}
		out.index[name] = len(out.cols)
		out.cols = append(out.cols, nc)
	}
	return out
}

func allMissing(c *Column) bool {
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			return false
		}
	}
	return true
}

// Matrix gathers numeric columns into rows.
func (f *Frame) Matrix(names []string) ([][]float64, error) {
	cols := make([][]float64, len(names))
	for j, name := range names {
		v, err := f.Numeric(name)
		if err != nil {
			return nil, err
		}
		cols[j] = v
	}
	X := make([][]float64, f.n)
	for i := range X {
		row := make([]float64, len(names))
		for j := range names {
			row[j] = cols[j][i]
		}
		X[i] = row
	}
	return X, nil
}

// FormatFloat renders v the way it is written back to CSV. NaN is "".
func FormatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
