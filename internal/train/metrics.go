package train

import (
	"fmt"
	"math"
)

// Round4 rounds a metric for persistence. Ranking uses full precision.
func Round4(v float64) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	return math.Round(v*1e4) / 1e4
}

func Accuracy(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(yTrue))
}

// WeightedPRF computes precision, recall and F1 averaged over classes
// weighted by support.
func WeightedPRF(yTrue, yPred []float64) (precision, recall, f1 float64) {
	if len(yTrue) == 0 {
		return 0, 0, 0
	}
	classes := distinctSorted(yTrue)
	total := float64(len(yTrue))
	for _, class := range classes {
		var tp, fp, fn, support float64
		for i := range yTrue {
			switch {
			case yTrue[i] == class && yPred[i] == class:
				tp++
			case yTrue[i] != class && yPred[i] == class:
				fp++
			case yTrue[i] == class && yPred[i] != class:
				fn++
			}
			if yTrue[i] == class {
				support++
			}
		}
		var p, r float64
		if tp+fp > 0 {
			p = tp / (tp + fp)
		}
		if tp+fn > 0 {
			r = tp / (tp + fn)
		}
		var f float64
		if p+r > 0 {
			f = 2 * p * r / (p + r)
		}
		weight := support / total
		precision += weight * p
		recall += weight * r
		f1 += weight * f
	}
	return precision, recall, f1
}

func MSE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		sum += d * d
	}
	return sum / float64(len(yTrue))
}

func MAE(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		sum += math.Abs(yTrue[i] - yPred[i])
	}
	return sum / float64(len(yTrue))
}

// R2 is the coefficient of determination. A constant target makes the
// denominator zero; a perfect prediction then scores 1, anything else 0.
func R2(yTrue, yPred []float64) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	var mean float64
	for _, v := range yTrue {
		mean += v
	}
	mean /= float64(len(yTrue))

	var ssRes, ssTot float64
	for i := range yTrue {
		d := yTrue[i] - yPred[i]
		ssRes += d * d
		t := yTrue[i] - mean
		ssTot += t * t
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}

// Score computes the ranking metric for a task.
func Score(task TaskType, yTrue, yPred []float64) (float64, error) {
	switch {
	case task.Classification():
		return Accuracy(yTrue, yPred), nil
	case task == TaskRegression:
		return R2(yTrue, yPred), nil
	default:
		return 0, fmt.Errorf("unknown task %q", task)
	}
}

// MetricSet computes the full persisted metric map for a task.
func MetricSet(task TaskType, yTrue, yPred []float64) map[string]float64 {
	if task.Classification() {
		precision, recall, f1 := WeightedPRF(yTrue, yPred)
		return map[string]float64{
			"accuracy":  Round4(Accuracy(yTrue, yPred)),
			"precision": Round4(precision),
			"recall":    Round4(recall),
			"f1":        Round4(f1),
		}
	}
	return map[string]float64{
		"r2":  Round4(R2(yTrue, yPred)),
		"mse": Round4(MSE(yTrue, yPred)),
		"mae": Round4(MAE(yTrue, yPred)),
	}
}
