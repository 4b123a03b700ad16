package ml

import (
	"math"
)

// ScalerParams are the fitted mean and scale of a standard scaler.
type ScalerParams struct {
	Mean  []float32 `json:"mean"`
	Scale []float32 `json:"scale"`
}

// Scaler standardizes each column as (x - mean) / scale.
//
// A zero scale entry is not rejected here: the division follows IEEE-754 and
// yields ±Inf or NaN. Use ValidateScaler to refuse such parameters up front.
type Scaler struct {
	mean  []float32
	scale []float32
}

func NewScaler(params ScalerParams) (*Scaler, error) {
	if len(params.Mean) != len(params.Scale) {
		return nil, dimensionf("scaler mean has %d entries, scale has %d", len(params.Mean), len(params.Scale))
	}
	if len(params.Mean) == 0 {
		return nil, emptyf("scaler has no features")
	}
	return &Scaler{
		mean:  append([]float32(nil), params.Mean...),
		scale: append([]float32(nil), params.Scale...),
	}, nil
}

// Width is the number of base features the scaler was fitted on.
func (s *Scaler) Width() int {
	return len(s.mean)
}

func (s *Scaler) Transform(matrix FeatureMatrix) (FeatureMatrix, error) {
	if len(matrix) == 0 {
		return nil, emptyf("matrix has no rows")
	}
	for i, row := range matrix {
		if len(row) != len(s.mean) {
			return nil, dimensionf("row %d has width %d, scaler expects %d", i, len(row), len(s.mean))
		}
	}

	out := make(FeatureMatrix, len(matrix))
	for i, row := range matrix {
		scaled := make([]float32, len(row))
		for j, value := range row {
			scaled[j] = (value - s.mean[j]) / s.scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// ValidateScaler rejects parameters whose scale contains zero or non-finite
// entries, or whose mean contains non-finite entries.
func ValidateScaler(params ScalerParams) error {
	if len(params.Mean) != len(params.Scale) {
		return dimensionf("scaler mean has %d entries, scale has %d", len(params.Mean), len(params.Scale))
	}
	for j, scale := range params.Scale {
		f := float64(scale)
		if scale == 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return Invalidf("scale[%d] = %v", j, scale)
		}
	}
	for j, mean := range params.Mean {
		f := float64(mean)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Invalidf("mean[%d] = %v", j, mean)
		}
	}
	return nil
}
