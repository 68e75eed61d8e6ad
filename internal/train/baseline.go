package train

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// baselinePredictor always predicts the training majority class or the
// training target mean. It anchors the ranking: any model that cannot
// beat it is not worth keeping.
type baselinePredictor struct {
	Value float64
}

func (p *baselinePredictor) Predict(x *mat.Dense) ([]float64, error) {
	rows, _ := x.Dims()
	out := make([]float64, rows)
	for i := range out {
		out[i] = p.Value
	}
	return out, nil
}

type baselineFitter struct {
	classify bool
}

func (f baselineFitter) Name() string { return FitterBaseline }

func (f baselineFitter) Fit(_ *mat.Dense, y []float64, _ Params) (Predictor, error) {
	if len(y) == 0 {
		return nil, fmt.Errorf("empty target")
	}
	if f.classify {
		counts := make(map[float64]int)
		for _, v := range y {
			counts[v]++
		}
		best := y[0]
		bestCount := -1
		for _, class := range distinctSorted(y) {
			if counts[class] > bestCount {
				best = class
				bestCount = counts[class]
			}
		}
		return &baselinePredictor{Value: best}, nil
	}
	var sum float64
	for _, v := range y {
		sum += v
	}
	return &baselinePredictor{Value: sum / float64(len(y))}, nil
}
