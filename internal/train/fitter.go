package train

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Predictor is a fitted model. Classification predictors return encoded
// class indices; regression predictors return raw values.
type Predictor interface {
	Predict(x *mat.Dense) ([]float64, error)
}

// Fitter trains one model family for one hyperparameter combination.
type Fitter interface {
	Name() string
	Fit(x *mat.Dense, y []float64, params Params) (Predictor, error)
}

// FeatureImporter is implemented by predictors that can attribute weight
// to input features.
type FeatureImporter interface {
	FeatureImportances() []float64
}

// Fitter kinds referenced from the catalog.
const (
	FitterLogisticRegression = "logistic_regression"
	FitterKNN                = "knn"
	FitterNearestCentroid    = "nearest_centroid"
	FitterLinearRegression   = "linear_regression"
	FitterRidge              = "ridge"
	FitterBaseline           = "baseline"
)

// FitterFor resolves a catalog fitter kind for a task. Unknown kinds and
// task mismatches are configuration errors.
func FitterFor(kind string, task TaskType) (Fitter, error) {
	switch kind {
	case FitterLogisticRegression:
		if !task.Classification() {
			return nil, fmt.Errorf("fitter %s requires a classification task", kind)
		}
		return logisticFitter{}, nil
	case FitterNearestCentroid:
		if !task.Classification() {
			return nil, fmt.Errorf("fitter %s requires a classification task", kind)
		}
		return centroidFitter{}, nil
	case FitterKNN:
		return knnFitter{classify: task.Classification()}, nil
	case FitterLinearRegression:
		if task.Classification() {
			return nil, fmt.Errorf("fitter %s requires a regression task", kind)
		}
		return linearFitter{}, nil
	case FitterRidge:
		if task.Classification() {
			return nil, fmt.Errorf("fitter %s requires a regression task", kind)
		}
		return ridgeFitter{}, nil
	case FitterBaseline:
		return baselineFitter{classify: task.Classification()}, nil
	default:
		return nil, fmt.Errorf("unknown fitter kind %q", kind)
	}
}

// KnownFitter reports whether the kind is resolvable for some task.
func KnownFitter(kind string) bool {
	switch kind {
	case FitterLogisticRegression, FitterKNN, FitterNearestCentroid,
		FitterLinearRegression, FitterRidge, FitterBaseline:
		return true
	default:
		return false
	}
}

func init() {
	gob.Register(&linearPredictor{})
	gob.Register(&logisticPredictor{})
	gob.Register(&knnPredictor{})
	gob.Register(&centroidPredictor{})
	gob.Register(&baselinePredictor{})
}

// EncodePredictor serializes a fitted predictor for the model blob.
func EncodePredictor(p Predictor) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("predictor is nil")
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&p); err != nil {
		return nil, fmt.Errorf("encode predictor: %w", err)
	}
	return buf.Bytes(), nil
}

func DecodePredictor(raw []byte) (Predictor, error) {
	var p Predictor
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode predictor: %w", err)
	}
	return p, nil
}
