package train

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// centroidPredictor assigns each input to the class with the nearest
// per-class mean vector.
type centroidPredictor struct {
	Classes   []float64
	Centroids [][]float64
}

func (p *centroidPredictor) Predict(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if len(p.Centroids) == 0 {
		return nil, fmt.Errorf("predictor has no centroids")
	}
	if cols != len(p.Centroids[0]) {
		return nil, fmt.Errorf("expected %d features, got %d", len(p.Centroids[0]), cols)
	}
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		best := 0
		bestDist := math.Inf(1)
		for ci, centroid := range p.Centroids {
			var d float64
			for j, v := range centroid {
				diff := v - row[j]
				d += diff * diff
			}
			if d < bestDist {
				bestDist = d
				best = ci
			}
		}
		out[i] = p.Classes[best]
	}
	return out, nil
}

type centroidFitter struct{}

func (centroidFitter) Name() string { return FitterNearestCentroid }

func (centroidFitter) Fit(x *mat.Dense, y []float64, _ Params) (Predictor, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty design matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("x has %d rows, y has %d", rows, len(y))
	}
	classes := distinctSorted(y)
	centroids := make([][]float64, len(classes))
	for ci, class := range classes {
		centroid := make([]float64, cols)
		count := 0
		for i, label := range y {
			if label != class {
				continue
			}
			for j := 0; j < cols; j++ {
				centroid[j] += x.At(i, j)
			}
			count++
		}
		for j := range centroid {
			centroid[j] /= float64(count)
		}
		centroids[ci] = centroid
	}
	return &centroidPredictor{Classes: classes, Centroids: centroids}, nil
}
