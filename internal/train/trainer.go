package train

import (
	"context"
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// FamilyResult is the outcome of evaluating one model family. Index is
// the family's catalog position; it breaks score ties so the final
// ranking does not depend on completion order. A failed family carries
// Err and the task's worst score.
type FamilyResult struct {
	Index     int
	Name      string
	Params    Params
	Metrics   map[string]float64
	Score     float64
	Predictor Predictor
	Err       error
}

// ProgressFunc receives sweep updates. index/total count grid points.
type ProgressFunc func(family string, params Params, score float64, index, total int)

// EvaluateFamily sweeps the family's grid on the holdout split, then
// computes the full metric set and 5-fold cross-validation for the best
// combination. Ties on holdout score keep the earlier grid point, so
// the stable grid order makes the winner deterministic.
func EvaluateFamily(ctx context.Context, task TaskType, spec FamilySpec, x *mat.Dense, y []float64, split Split, onProgress ProgressFunc) (FamilyResult, error) {
	result := FamilyResult{Name: spec.Name, Score: task.WorstScore()}

	fitter, err := FitterFor(spec.Fitter, task)
	if err != nil {
		return result, err
	}

	xTrain, yTrain := subset(x, y, split.TrainIdx)
	xTest, yTest := subset(x, y, split.TestIdx)

	combos := spec.Grid.Expand()
	var best Predictor
	var bestParams Params
	bestScore := task.WorstScore()
	found := false

	for i, params := range combos {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		predictor, err := fitter.Fit(xTrain, yTrain, params)
		if err != nil {
			return result, fmt.Errorf("fit %s %v: %w", spec.Name, params, err)
		}
		yPred, err := predictor.Predict(xTest)
		if err != nil {
			return result, fmt.Errorf("predict %s %v: %w", spec.Name, params, err)
		}
		score, err := Score(task, yTest, yPred)
		if err != nil {
			return result, err
		}
		if onProgress != nil {
			onProgress(spec.Name, params, score, i+1, len(combos))
		}
		if !found || score > bestScore {
			found = true
			best = predictor
			bestParams = params
			bestScore = score
		}
	}

	yPred, err := best.Predict(xTest)
	if err != nil {
		return result, fmt.Errorf("predict %s: %w", spec.Name, err)
	}
	metrics := MetricSet(task, yTest, yPred)

	cvMean, cvStd, err := crossValidate(ctx, task, fitter, bestParams, x, y, split)
	if err != nil {
		return result, fmt.Errorf("cross-validate %s: %w", spec.Name, err)
	}
	metrics["cv_mean"] = Round4(cvMean)
	metrics["cv_std"] = Round4(cvStd)

	result.Params = bestParams
	result.Metrics = metrics
	result.Score = bestScore
	result.Predictor = best
	return result, nil
}

func crossValidate(ctx context.Context, task TaskType, fitter Fitter, params Params, x *mat.Dense, y []float64, split Split) (mean, std float64, err error) {
	folds := split.Folds()
	scores := make([]float64, 0, len(folds))
	for _, fold := range folds {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		trainIdx := split.FoldTrain(fold)
		xTrain, yTrain := subset(x, y, trainIdx)
		xVal, yVal := subset(x, y, fold)

		predictor, err := fitter.Fit(xTrain, yTrain, params)
		if err != nil {
			return 0, 0, err
		}
		yPred, err := predictor.Predict(xVal)
		if err != nil {
			return 0, 0, err
		}
		score, err := Score(task, yVal, yPred)
		if err != nil {
			return 0, 0, err
		}
		scores = append(scores, score)
	}
	mean = stat.Mean(scores, nil)
	if len(scores) > 1 {
		std = stat.StdDev(scores, nil)
	}
	return mean, std, nil
}

func subset(x *mat.Dense, y []float64, indices []int) (*mat.Dense, []float64) {
	_, cols := x.Dims()
	outX := mat.NewDense(len(indices), cols, nil)
	outY := make([]float64, len(indices))
	for i, idx := range indices {
		for j := 0; j < cols; j++ {
			outX.Set(i, j, x.At(idx, j))
		}
		outY[i] = y[idx]
	}
	return outX, outY
}
