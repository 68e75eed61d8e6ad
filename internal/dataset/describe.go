package dataset

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary describes one column for the exploratory report.
type ColumnSummary struct {
	Name    string   `json:"name"`
	Kind    string   `json:"kind"`
	Missing int      `json:"missing"`
	Mean    *float64 `json:"mean,omitempty"`
	Std     *float64 `json:"std,omitempty"`
	Min     *float64 `json:"min,omitempty"`
	Q25     *float64 `json:"q25,omitempty"`
	Median  *float64 `json:"median,omitempty"`
	Q75     *float64 `json:"q75,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Unique  int      `json:"unique,omitempty"`
}

// Summary is the exploratory snapshot of a frame.
type Summary struct {
	Rows    int             `json:"rows"`
	Cols    int             `json:"cols"`
	Columns []ColumnSummary `json:"columns"`
}

// Histogram buckets the values of one numeric column.
type Histogram struct {
	Column string    `json:"column"`
	Bins   int       `json:"bins"`
	Edges  []float64 `json:"edges"`
	Counts []int     `json:"counts"`
}

// Describe computes per-column summary statistics. Numeric columns get
// mean/std/min/quartiles/max; categorical columns report distinct counts.
func (f *Frame) Describe() Summary {
	missing := f.MissingCounts()
	columns := make([]ColumnSummary, 0, len(f.Columns))
	for col, name := range f.Columns {
		summary := ColumnSummary{Name: name, Missing: missing[col]}
		if f.NumericColumn(col) {
			summary.Kind = "numeric"
			values := f.ColumnValues(col)
			if len(values) > 0 {
				sorted := append([]float64(nil), values...)
				sort.Float64s(sorted)
				summary.Mean = ptr(stat.Mean(values, nil))
				summary.Std = ptr(stat.StdDev(values, nil))
				summary.Min = ptr(sorted[0])
				summary.Q25 = ptr(stat.Quantile(0.25, stat.Empirical, sorted, nil))
				summary.Median = ptr(stat.Quantile(0.5, stat.Empirical, sorted, nil))
				summary.Q75 = ptr(stat.Quantile(0.75, stat.Empirical, sorted, nil))
				summary.Max = ptr(sorted[len(sorted)-1])
			}
		} else {
			summary.Kind = "categorical"
			distinct := make(map[string]struct{})
			for _, record := range f.Records {
				if col < len(record) && !missingCell(record[col]) {
					distinct[record[col]] = struct{}{}
				}
			}
			summary.Unique = len(distinct)
		}
		columns = append(columns, summary)
	}
	return Summary{Rows: f.NumRows(), Cols: f.NumCols(), Columns: columns}
}

// HistogramOf buckets a numeric column into the given number of bins.
// A constant column collapses into a single bin.
func (f *Frame) HistogramOf(col, bins int) (Histogram, bool) {
	if bins <= 0 || !f.NumericColumn(col) {
		return Histogram{}, false
	}
	values := f.ColumnValues(col)
	if len(values) == 0 {
		return Histogram{}, false
	}
	min := floats.Min(values)
	max := floats.Max(values)
	if min == max {
		return Histogram{
			Column: f.Columns[col],
			Bins:   1,
			Edges:  []float64{min, max},
			Counts: []int{len(values)},
		}, true
	}

	edges := make([]float64, bins+1)
	width := (max - min) / float64(bins)
	for i := range edges {
		edges[i] = min + width*float64(i)
	}
	edges[bins] = max

	counts := make([]int, bins)
	for _, v := range values {
		idx := int((v - min) / width)
		if idx >= bins {
			idx = bins - 1
		}
		counts[idx]++
	}
	return Histogram{Column: f.Columns[col], Bins: bins, Edges: edges, Counts: counts}, true
}

// FirstNumericColumn returns the index of the first numeric column, or -1.
func (f *Frame) FirstNumericColumn() int {
	for col := range f.Columns {
		if f.NumericColumn(col) {
			return col
		}
	}
	return -1
}

func ptr(v float64) *float64 { return &v }
