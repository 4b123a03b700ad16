package ml

// FeatureMatrix is a row-major table of float32 features.
type FeatureMatrix [][]float32

// PredictionVector holds one prediction per input row, in input order.
type PredictionVector []float32

// Width returns the width of the first row, or 0 for an empty matrix.
func (m FeatureMatrix) Width() int {
	if len(m) == 0 {
		return 0
	}
	return len(m[0])
}

// ModelInput bundles everything one inference call needs. Features is nil
// for plain linear and ridge models.
type ModelInput struct {
	Scaler   ScalerParams      `json:"scaler"`
	Model    LinearModelParams `json:"model"`
	Features *FeatureNameSpec  `json:"features,omitempty"`
	Matrix   FeatureMatrix     `json:"x"`
}
