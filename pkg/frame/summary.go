package frame

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"predkit/pkg/stats"
)

// Count is one entry of a value-frequency table.
type Count struct {
	Value string
	N     int
}

// ValueCounts returns value frequencies, most frequent first. Missing cells
// are not counted.
func (f *Frame) ValueCounts(name string) ([]Count, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	counts := map[string]int{}
	for i := 0; i < c.Len(); i++ {
		if c.IsMissing(i) {
			continue
		}
		counts[c.Cell(i)]++
	}
	out := make([]Count, 0, len(counts))
	for v, n := range counts {
		out = append(out, Count{Value: v, N: n})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].N != out[b].N {
			return out[a].N > out[b].N
		}
		return out[a].Value < out[b].Value
	})
	return out, nil
}

// Summary holds descriptive statistics of one numeric column.
type Summary struct {
	Name                            string
	Count                           int
	Mean, Std, Min, Q1, Q2, Q3, Max float64
}

// Describe summarizes every numeric column over its non-missing values.
func (f *Frame) Describe() []Summary {
	var out []Summary
	for _, c := range f.cols {
		if c.Kind != Numeric {
			continue
		}
		v := stats.DropNaN(c.Num)
		lo, hi := stats.MinMax(v)
		out = append(out, Summary{
			Name:  c.Name,
			Count: len(v),
			Mean:  stats.Mean(v),
			Std:   stats.SampleStd(v),
			Min:   lo,
			Q1:    stats.Percentile(v, 25),
			Q2:    stats.Percentile(v, 50),
			Q3:    stats.Percentile(v, 75),
			Max:   hi,
		})
	}
	return out
}

// MissingCount is the number of missing cells in a column.
type MissingCount struct {
	Name    string
	Missing int
}

func (f *Frame) MissingCounts() []MissingCount {
	out := make([]MissingCount, len(f.cols))
	for j, c := range f.cols {
		n := 0
		for i := 0; i < c.Len(); i++ {
			if c.IsMissing(i) {
				n++
			}
		}
		out[j] = MissingCount{Name: c.Name, Missing: n}
	}
	return out
}

// WriteDescribe prints Describe as an aligned table.
func (f *Frame) WriteDescribe(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcount\tmean\tstd\tmin\t25%\t50%\t75%\tmax\t")
	for _, s := range f.Describe() {
		fmt.Fprintf(tw, "%s\t%d\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t%.4g\t\n",
			s.Name, s.Count, s.Mean, s.Std, s.Min, s.Q1, s.Q2, s.Q3, s.Max)
	}
	return tw.Flush()
}
