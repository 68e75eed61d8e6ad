package train

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	logisticIterations = 300
	logisticLearnRate  = 0.1
)

// logisticPredictor holds one weight vector per class (one for binary).
// Inputs are standardized with the training moments before scoring.
type logisticPredictor struct {
	Mean    []float64
	Std     []float64
	Weights [][]float64 // [bias, w1..wn]
	Classes []float64
}

func (p *logisticPredictor) Predict(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(p.Mean) {
		return nil, fmt.Errorf("expected %d features, got %d", len(p.Mean), cols)
	}
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		for j := range row {
			row[j] = (row[j] - p.Mean[j]) / p.Std[j]
		}
		if len(p.Classes) == 2 {
			if sigmoid(dot(p.Weights[0], row)) >= 0.5 {
				out[i] = p.Classes[1]
			} else {
				out[i] = p.Classes[0]
			}
			continue
		}
		best := 0
		bestScore := math.Inf(-1)
		for c, w := range p.Weights {
			if score := dot(w, row); score > bestScore {
				bestScore = score
				best = c
			}
		}
		out[i] = p.Classes[best]
	}
	return out, nil
}

func (p *logisticPredictor) FeatureImportances() []float64 {
	out := make([]float64, len(p.Mean))
	for _, w := range p.Weights {
		for j := range out {
			out[j] += math.Abs(w[j+1])
		}
	}
	return out
}

type logisticFitter struct{}

func (logisticFitter) Name() string { return FitterLogisticRegression }

// Fit trains by gradient descent on standardized features with an L2
// penalty of 1/C. Multiclass targets use one-vs-rest.
func (logisticFitter) Fit(x *mat.Dense, y []float64, params Params) (Predictor, error) {
	c := params.Float("C", 1.0)
	if c <= 0 {
		return nil, fmt.Errorf("C must be positive, got %v", c)
	}
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty design matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("x has %d rows, y has %d", rows, len(y))
	}

	mean, std := columnMoments(x)
	scaled := standardize(x, mean, std)
	classes := distinctSorted(y)
	if len(classes) < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", len(classes))
	}

	predictor := &logisticPredictor{Mean: mean, Std: std, Classes: classes}
	if len(classes) == 2 {
		target := make([]float64, rows)
		for i, v := range y {
			if v == classes[1] {
				target[i] = 1
			}
		}
		predictor.Weights = [][]float64{trainLogistic(scaled, target, 1/c)}
		return predictor, nil
	}

	weights := make([][]float64, len(classes))
	for ci, class := range classes {
		target := make([]float64, rows)
		for i, v := range y {
			if v == class {
				target[i] = 1
			}
		}
		weights[ci] = trainLogistic(scaled, target, 1/c)
	}
	predictor.Weights = weights
	return predictor, nil
}

func trainLogistic(x [][]float64, y []float64, penalty float64) []float64 {
	n := len(x)
	dim := len(x[0]) + 1
	w := make([]float64, dim)
	grad := make([]float64, dim)

	for iter := 0; iter < logisticIterations; iter++ {
		for j := range grad {
			grad[j] = 0
		}
		for i := 0; i < n; i++ {
			err := sigmoid(dot(w, x[i])) - y[i]
			grad[0] += err
			for j, v := range x[i] {
				grad[j+1] += err * v
			}
		}
		for j := range grad {
			grad[j] /= float64(n)
			if j > 0 {
				grad[j] += penalty * w[j] / float64(n)
			}
		}
		for j := range w {
			w[j] -= logisticLearnRate * grad[j]
		}
	}
	return w
}

func sigmoid(v float64) float64 {
	return 1 / (1 + math.Exp(-v))
}

// dot applies a [bias, w...] vector to an unbiased feature row.
func dot(w, row []float64) float64 {
	v := w[0]
	for j, f := range row {
		v += w[j+1] * f
	}
	return v
}

func columnMoments(x *mat.Dense) (mean, std []float64) {
	rows, cols := x.Dims()
	mean = make([]float64, cols)
	std = make([]float64, cols)
	for j := 0; j < cols; j++ {
		var sum float64
		for i := 0; i < rows; i++ {
			sum += x.At(i, j)
		}
		mean[j] = sum / float64(rows)
		var sq float64
		for i := 0; i < rows; i++ {
			d := x.At(i, j) - mean[j]
			sq += d * d
		}
		std[j] = math.Sqrt(sq / float64(rows))
		if std[j] == 0 {
			std[j] = 1
		}
	}
	return mean, std
}

func standardize(x *mat.Dense, mean, std []float64) [][]float64 {
	rows, cols := x.Dims()
	out := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		for j := 0; j < cols; j++ {
			row[j] = (x.At(i, j) - mean[j]) / std[j]
		}
		out[i] = row
	}
	return out
}

func distinctSorted(y []float64) []float64 {
	seen := make(map[float64]struct{})
	for _, v := range y {
		seen[v] = struct{}{}
	}
	out := make([]float64, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Float64s(out)
	return out
}
