// Package train implements the model search: task detection, the fitter
// contract, reference model families, hyperparameter sweeps, evaluation
// metrics and the concurrent search orchestrator.
package train

import (
	"math"
	"strings"
)

type TaskType string

const (
	TaskBinaryClassification     TaskType = "binary_classification"
	TaskMulticlassClassification TaskType = "multiclass_classification"
	TaskRegression               TaskType = "regression"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskBinaryClassification, TaskMulticlassClassification, TaskRegression:
		return true
	default:
		return false
	}
}

func (t TaskType) Classification() bool {
	return t == TaskBinaryClassification || t == TaskMulticlassClassification
}

// PrimaryMetric names the metric the ranking is built on.
func (t TaskType) PrimaryMetric() string {
	if t.Classification() {
		return "accuracy"
	}
	return "r2"
}

// WorstScore is the sentinel a failed family sorts behind. R² is
// unbounded below, so regression uses -Inf.
func (t TaskType) WorstScore() float64 {
	if t.Classification() {
		return 0
	}
	return math.Inf(-1)
}

func NormalizeTaskType(value string) TaskType {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(TaskBinaryClassification):
		return TaskBinaryClassification
	case string(TaskMulticlassClassification):
		return TaskMulticlassClassification
	case string(TaskRegression):
		return TaskRegression
	default:
		return ""
	}
}

// A numeric target with more than this many distinct values is treated
// as continuous when the distinct values also exceed a tenth of the rows.
const maxDiscreteClasses = 20

// DetectTask infers the task from the target. A label-encoded target is
// classification by cardinality. A numeric target is classification
// when its distinct values are few: exactly two means binary, up to
// maxDiscreteClasses means multiclass, and beyond that it is regression
// unless the distinct count stays under 10% of the rows.
func DetectTask(classes []string, y []float64) TaskType {
	switch {
	case len(classes) == 2:
		return TaskBinaryClassification
	case len(classes) > 2:
		return TaskMulticlassClassification
	}

	distinct := make(map[float64]struct{}, len(y))
	for _, v := range y {
		distinct[v] = struct{}{}
	}
	switch unique := len(distinct); {
	case unique == 2:
		return TaskBinaryClassification
	case unique > 2 && unique <= maxDiscreteClasses:
		return TaskMulticlassClassification
	case unique > maxDiscreteClasses && float64(unique)/float64(len(y)) <= 0.1:
		return TaskMulticlassClassification
	default:
		return TaskRegression
	}
}
