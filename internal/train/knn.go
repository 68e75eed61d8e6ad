package train

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

const (
	weightsUniform  = "uniform"
	weightsDistance = "distance"
)

// knnPredictor keeps the training data and votes among the k nearest
// neighbors at prediction time.
type knnPredictor struct {
	Train    [][]float64
	Labels   []float64
	K        int
	Weights  string
	Classify bool
}

func (p *knnPredictor) Predict(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if len(p.Train) == 0 {
		return nil, fmt.Errorf("predictor has no training data")
	}
	if cols != len(p.Train[0]) {
		return nil, fmt.Errorf("expected %d features, got %d", len(p.Train[0]), cols)
	}
	out := make([]float64, rows)
	row := make([]float64, cols)
	for i := 0; i < rows; i++ {
		mat.Row(row, i, x)
		neighbors := p.nearest(row)
		if p.Classify {
			out[i] = p.voteClass(neighbors)
		} else {
			out[i] = p.voteMean(neighbors)
		}
	}
	return out, nil
}

type neighbor struct {
	index    int
	distance float64
}

func (p *knnPredictor) nearest(row []float64) []neighbor {
	neighbors := make([]neighbor, len(p.Train))
	for i, sample := range p.Train {
		var d float64
		for j, v := range sample {
			diff := v - row[j]
			d += diff * diff
		}
		neighbors[i] = neighbor{index: i, distance: math.Sqrt(d)}
	}
	sort.Slice(neighbors, func(a, b int) bool {
		if neighbors[a].distance != neighbors[b].distance {
			return neighbors[a].distance < neighbors[b].distance
		}
		return neighbors[a].index < neighbors[b].index
	})
	k := p.K
	if k > len(neighbors) {
		k = len(neighbors)
	}
	out := neighbors[:k]
	if p.Weights == weightsDistance {
		for i := range out {
			if out[i].distance == 0 {
				out[i].distance = 1e-12
			}
		}
	}
	return out
}

func (p *knnPredictor) weight(n neighbor) float64 {
	if p.Weights == weightsDistance {
		return 1 / n.distance
	}
	return 1
}

// voteClass picks the label with the highest total weight; ties go to
// the smaller encoded label so predictions are deterministic.
func (p *knnPredictor) voteClass(neighbors []neighbor) float64 {
	votes := make(map[float64]float64)
	for _, n := range neighbors {
		votes[p.Labels[n.index]] += p.weight(n)
	}
	best := math.Inf(1)
	bestWeight := math.Inf(-1)
	for label, weight := range votes {
		if weight > bestWeight || (weight == bestWeight && label < best) {
			best = label
			bestWeight = weight
		}
	}
	return best
}

func (p *knnPredictor) voteMean(neighbors []neighbor) float64 {
	var sum, total float64
	for _, n := range neighbors {
		w := p.weight(n)
		sum += w * p.Labels[n.index]
		total += w
	}
	return sum / total
}

type knnFitter struct {
	classify bool
}

func (f knnFitter) Name() string { return FitterKNN }

func (f knnFitter) Fit(x *mat.Dense, y []float64, params Params) (Predictor, error) {
	k := params.Int("n_neighbors", 5)
	if k <= 0 {
		return nil, fmt.Errorf("n_neighbors must be positive, got %d", k)
	}
	weights := params.String("weights", weightsUniform)
	if weights != weightsUniform && weights != weightsDistance {
		return nil, fmt.Errorf("unknown weights %q", weights)
	}
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty design matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("x has %d rows, y has %d", rows, len(y))
	}
	train := make([][]float64, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		mat.Row(row, i, x)
		train[i] = row
	}
	return &knnPredictor{
		Train:    train,
		Labels:   append([]float64(nil), y...),
		K:        k,
		Weights:  weights,
		Classify: f.classify,
	}, nil
}
