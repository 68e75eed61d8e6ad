// Package dataset loads tabular CSV data into an in-memory frame and
// converts it to the numeric matrices the trainers consume. The last
// column is the prediction target; everything before it is a feature.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Frame holds a parsed CSV table. Cells are kept as raw strings until a
// matrix is requested so categorical columns survive the round trip.
type Frame struct {
	Columns []string
	Records [][]string
}

func ReadCSV(r io.Reader) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty csv")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	columns := make([]string, len(header))
	for i, col := range header {
		col = strings.TrimSpace(col)
		if col == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		columns[i] = col
	}

	records := make([][]string, 0)
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(records)+1, err)
		}
		row := make([]string, len(record))
		for i, cell := range record {
			row[i] = strings.TrimSpace(cell)
		}
		records = append(records, row)
	}
	return &Frame{Columns: columns, Records: records}, nil
}

func (f *Frame) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, record := range f.Records {
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func (f *Frame) NumRows() int { return len(f.Records) }
func (f *Frame) NumCols() int { return len(f.Columns) }

func missingCell(cell string) bool {
	switch strings.ToLower(cell) {
	case "", "nan", "na", "null":
		return true
	default:
		return false
	}
}

// DropMissing returns a copy of the frame without rows that have any
// missing cell, along with the number of rows removed.
func (f *Frame) DropMissing() (*Frame, int) {
	kept := make([][]string, 0, len(f.Records))
	for _, record := range f.Records {
		missing := false
		for _, cell := range record {
			if missingCell(cell) {
				missing = true
				break
			}
		}
		if !missing {
			kept = append(kept, record)
		}
	}
	out := &Frame{Columns: append([]string(nil), f.Columns...), Records: kept}
	return out, len(f.Records) - len(kept)
}

// MissingCounts returns the number of missing cells per column.
func (f *Frame) MissingCounts() []int {
	counts := make([]int, len(f.Columns))
	for _, record := range f.Records {
		for i, cell := range record {
			if i < len(counts) && missingCell(cell) {
				counts[i]++
			}
		}
	}
	return counts
}

// NumericColumn reports whether every non-missing cell in the column
// parses as a float.
func (f *Frame) NumericColumn(col int) bool {
	if col < 0 || col >= len(f.Columns) {
		return false
	}
	seen := false
	for _, record := range f.Records {
		if col >= len(record) || missingCell(record[col]) {
			continue
		}
		if _, err := strconv.ParseFloat(record[col], 64); err != nil {
			return false
		}
		seen = true
	}
	return seen
}

// ColumnValues returns the parsed float values of a numeric column,
// skipping missing cells.
func (f *Frame) ColumnValues(col int) []float64 {
	values := make([]float64, 0, len(f.Records))
	for _, record := range f.Records {
		if col >= len(record) || missingCell(record[col]) {
			continue
		}
		v, err := strconv.ParseFloat(record[col], 64)
		if err != nil {
			continue
		}
		values = append(values, v)
	}
	return values
}

// ToMatrix converts the frame into a feature matrix and target vector.
// The final column is the target. Categorical columns are label-encoded
// against their sorted distinct values so the encoding is stable across
// runs. When the target itself is categorical the returned classes slice
// holds the label for each encoded class index; it is nil for a numeric
// target.
func (f *Frame) ToMatrix() (x *mat.Dense, y []float64, classes []string, err error) {
	if len(f.Columns) < 2 {
		return nil, nil, nil, errors.New("need at least one feature column and a target column")
	}
	if len(f.Records) == 0 {
		return nil, nil, nil, errors.New("no rows")
	}

	nRows := len(f.Records)
	nFeatures := len(f.Columns) - 1
	targetCol := len(f.Columns) - 1

	encoders := make([]map[string]float64, len(f.Columns))
	for col := 0; col < len(f.Columns); col++ {
		if f.NumericColumn(col) {
			continue
		}
		encoders[col] = labelEncoder(f, col)
	}

	x = mat.NewDense(nRows, nFeatures, nil)
	y = make([]float64, nRows)
	for i, record := range f.Records {
		if len(record) != len(f.Columns) {
			return nil, nil, nil, fmt.Errorf("row %d has %d cells, want %d", i+1, len(record), len(f.Columns))
		}
		for col := 0; col < nFeatures; col++ {
			v, err := encodeCell(record[col], encoders[col])
			if err != nil {
				return nil, nil, nil, fmt.Errorf("row %d column %q: %w", i+1, f.Columns[col], err)
			}
			x.Set(i, col, v)
		}
		v, err := encodeCell(record[targetCol], encoders[targetCol])
		if err != nil {
			return nil, nil, nil, fmt.Errorf("row %d target: %w", i+1, err)
		}
		y[i] = v
	}

	if enc := encoders[targetCol]; enc != nil {
		classes = make([]string, len(enc))
		for label, idx := range enc {
			classes[int(idx)] = label
		}
	}
	return x, y, classes, nil
}

func labelEncoder(f *Frame, col int) map[string]float64 {
	distinct := make(map[string]struct{})
	for _, record := range f.Records {
		if col < len(record) && !missingCell(record[col]) {
			distinct[record[col]] = struct{}{}
		}
	}
	labels := make([]string, 0, len(distinct))
	for label := range distinct {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	enc := make(map[string]float64, len(labels))
	for i, label := range labels {
		enc[label] = float64(i)
	}
	return enc
}

func encodeCell(cell string, encoder map[string]float64) (float64, error) {
	if encoder == nil {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q: %w", cell, err)
		}
		return v, nil
	}
	v, ok := encoder[cell]
	if !ok {
		return 0, fmt.Errorf("unknown label %q", cell)
	}
	return v, nil
}
