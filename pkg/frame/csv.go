package frame

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

var ErrEmptyCSV = errors.New("frame: csv has no header row")

func isMissing(s string) bool {
	switch strings.TrimSpace(s) {
	case "", "NA", "NaN", "nan", "null":
		return true
	}
	return false
}

// ReadCSV reads a CSV file whose first row is the header.
func ReadCSV(path string) (*Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	f, err := Read(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Read parses CSV from r and infers column kinds.
func Read(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrEmptyCSV
	}

	header := records[0]
	rows := records[1:]
	f := New(len(rows))
	for j, name := range header {
		name = strings.TrimSpace(name)
		if f.Has(name) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, name)
		}
		raw := make([]string, len(rows))
		for i, rec := range rows {
			raw[i] = strings.TrimSpace(rec[j])
		}

		if nums, ok := parseNumeric(raw); ok {
			f.set(&Column{Name: name, Kind: Numeric, Num: nums})
			continue
		}
		for i, s := range raw {
			if isMissing(s) {
				raw[i] = ""
			}
		}
		f.set(&Column{Name: name, Kind: Categorical, Str: raw})
	}
	return f, nil
}

func parseNumeric(raw []string) ([]float64, bool) {
	out := make([]float64, len(raw))
	for i, s := range raw {
		if isMissing(s) {
			out[i] = math.NaN()
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// WriteCSV writes the named columns, header first. With no names, every
// column is written.
func (f *Frame) WriteCSV(w io.Writer, names ...string) error {
	if len(names) == 0 {
		names = f.Columns()
	}
	cols := make([]*Column, len(names))
	for j, name := range names {
		c, err := f.Column(name)
		if err != nil {
			return err
		}
		cols[j] = c
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(names); err != nil {
		return err
	}
	rec := make([]string, len(cols))
	for i := 0; i < f.n; i++ {
		for j, c := range cols {
			rec[j] = c.Cell(i)
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteCSVFile creates path and writes the named columns to it.
func (f *Frame) WriteCSVFile(path string, names ...string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.WriteCSV(file, names...); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
