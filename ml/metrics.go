package ml

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Metrics are the held-out scores of a fitted model.
type Metrics struct {
	R2   float64 `json:"r2"`
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
}

// Evaluate scores predictions against the held-out targets.
func Evaluate(actual, predicted []float64) (Metrics, error) {
	if len(actual) == 0 {
		return Metrics{}, errors.New("no samples to evaluate")
	}
	if len(actual) != len(predicted) {
		return Metrics{}, errors.New("actual and predicted size mismatch")
	}
	n := float64(len(actual))
	mae := 0.0
	for i := range actual {
		mae += math.Abs(actual[i] - predicted[i])
	}
	return Metrics{
		R2:   r2Score(actual, predicted),
		MAE:  mae / n,
		RMSE: floats.Distance(actual, predicted, 2) / math.Sqrt(n),
	}, nil
}

// r2Score is 0 when the actual values are constant, instead of NaN.
func r2Score(actual, predicted []float64) float64 {
	r2 := stat.RSquaredFrom(predicted, actual, nil)
	if math.IsNaN(r2) || math.IsInf(r2, 0) {
		return 0
	}
	return r2
}
