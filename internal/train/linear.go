package train

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// linearPredictor is a fitted least-squares model. Fields are exported
// for gob.
type linearPredictor struct {
	Intercept float64
	Coef      []float64
}

func (p *linearPredictor) Predict(x *mat.Dense) ([]float64, error) {
	rows, cols := x.Dims()
	if cols != len(p.Coef) {
		return nil, fmt.Errorf("expected %d features, got %d", len(p.Coef), cols)
	}
	out := make([]float64, rows)
	for i := 0; i < rows; i++ {
		v := p.Intercept
		for j := 0; j < cols; j++ {
			v += p.Coef[j] * x.At(i, j)
		}
		out[i] = v
	}
	return out, nil
}

func (p *linearPredictor) FeatureImportances() []float64 {
	out := make([]float64, len(p.Coef))
	for i, c := range p.Coef {
		if c < 0 {
			c = -c
		}
		out[i] = c
	}
	return out
}

type linearFitter struct{}

func (linearFitter) Name() string { return FitterLinearRegression }

func (linearFitter) Fit(x *mat.Dense, y []float64, _ Params) (Predictor, error) {
	return fitRidge(x, y, 0)
}

type ridgeFitter struct{}

func (ridgeFitter) Name() string { return FitterRidge }

func (ridgeFitter) Fit(x *mat.Dense, y []float64, params Params) (Predictor, error) {
	lambda := params.Float("lambda", 1.0)
	if lambda < 0 {
		return nil, fmt.Errorf("lambda must be non-negative, got %v", lambda)
	}
	return fitRidge(x, y, lambda)
}

// fitRidge solves the L2-penalized normal equations. The intercept is
// not penalized.
func fitRidge(x *mat.Dense, y []float64, lambda float64) (*linearPredictor, error) {
	rows, cols := x.Dims()
	if rows == 0 || cols == 0 {
		return nil, fmt.Errorf("empty design matrix")
	}
	if rows != len(y) {
		return nil, fmt.Errorf("x has %d rows, y has %d", rows, len(y))
	}

	// Design matrix with a leading ones column for the intercept.
	design := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		design.Set(i, 0, 1)
		for j := 0; j < cols; j++ {
			design.Set(i, j+1, x.At(i, j))
		}
	}

	var gram mat.Dense
	gram.Mul(design.T(), design)
	for j := 1; j <= cols; j++ {
		gram.Set(j, j, gram.At(j, j)+lambda)
	}

	target := mat.NewVecDense(rows, y)
	var rhs mat.VecDense
	rhs.MulVec(design.T(), target)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return nil, fmt.Errorf("solve normal equations: %w", err)
	}

	coef := make([]float64, cols)
	for j := 0; j < cols; j++ {
		coef[j] = beta.AtVec(j + 1)
	}
	return &linearPredictor{Intercept: beta.AtVec(0), Coef: coef}, nil
}
