package ml

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metrics summarizes how close predictions are to the actual labels.
type Metrics struct {
	MAE  float64 `json:"mae"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	R2   float64 `json:"r2"`
}

// Evaluate compares predictions against actual values. It is a host-side
// report and runs in float64; it is not part of the bounded pipeline.
func Evaluate(predictions PredictionVector, actuals []float32) (Metrics, error) {
	if len(predictions) == 0 {
		return Metrics{}, emptyf("no predictions to evaluate")
	}
	if len(predictions) != len(actuals) {
		return Metrics{}, dimensionf("%d predictions, %d actual values", len(predictions), len(actuals))
	}

	estimates := make([]float64, len(predictions))
	values := make([]float64, len(actuals))
	absErrors := make([]float64, len(predictions))
	sqErrors := make([]float64, len(predictions))
	for i := range predictions {
		estimates[i] = float64(predictions[i])
		values[i] = float64(actuals[i])
		diff := estimates[i] - values[i]
		absErrors[i] = math.Abs(diff)
		sqErrors[i] = diff * diff
	}

	mse := stat.Mean(sqErrors, nil)
	return Metrics{
		MAE:  stat.Mean(absErrors, nil),
		MSE:  mse,
		RMSE: math.Sqrt(mse),
		R2:   stat.RSquaredFrom(estimates, values, nil),
	}, nil
}
