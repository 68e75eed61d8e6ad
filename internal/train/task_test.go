package train

import (
	"math"
	"testing"
)

func TestNormalizeTaskType(t *testing.T) {
	if got := NormalizeTaskType(" Binary_Classification "); got != TaskBinaryClassification {
		t.Fatalf("normalize = %q, want %q", got, TaskBinaryClassification)
	}
	if got := NormalizeTaskType("clustering"); got != "" {
		t.Fatalf("normalize unknown = %q, want empty", got)
	}
}

func TestDetectTask(t *testing.T) {
	continuous := make([]float64, 200)
	for i := range continuous {
		continuous[i] = float64(i) * 1.37
	}
	// 30 distinct codes over 1000 rows: many classes but only 3% unique,
	// so still a discrete label column.
	denseCodes := make([]float64, 1000)
	for i := range denseCodes {
		denseCodes[i] = float64(i % 30)
	}

	cases := []struct {
		name    string
		classes []string
		y       []float64
		want    TaskType
	}{
		{"two labels", []string{"no", "yes"}, []float64{0, 1, 1, 0}, TaskBinaryClassification},
		{"three labels", []string{"a", "b", "c"}, []float64{0, 1, 2}, TaskMulticlassClassification},
		{"numeric zero one", nil, []float64{0, 1, 0, 1, 1, 0}, TaskBinaryClassification},
		{"numeric few values", nil, []float64{1, 2, 3, 4, 5, 1, 2, 3}, TaskMulticlassClassification},
		{"numeric continuous", nil, continuous, TaskRegression},
		{"numeric dense codes", nil, denseCodes, TaskMulticlassClassification},
		{"numeric constant", nil, []float64{7, 7, 7, 7}, TaskRegression},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectTask(tc.classes, tc.y); got != tc.want {
				t.Fatalf("DetectTask = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTaskPrimaryMetricAndWorstScore(t *testing.T) {
	for _, tc := range []struct {
		task   TaskType
		metric string
	}{
		{TaskBinaryClassification, "accuracy"},
		{TaskMulticlassClassification, "accuracy"},
		{TaskRegression, "r2"},
	} {
		t.Run(string(tc.task), func(t *testing.T) {
			if got := tc.task.PrimaryMetric(); got != tc.metric {
				t.Fatalf("primary metric = %q, want %q", got, tc.metric)
			}
			worst := tc.task.WorstScore()
			if tc.task.Classification() && worst != 0 {
				t.Fatalf("worst score = %v, want 0", worst)
			}
			if !tc.task.Classification() && !math.IsInf(worst, -1) {
				t.Fatalf("worst score = %v, want -Inf", worst)
			}
		})
	}
}
