package ml

// LinearModelParams are the fitted weights of a linear, ridge or polynomial
// ridge regression. FeatureNames is only set for the polynomial variant.
type LinearModelParams struct {
	Coefficients []float32 `json:"coefficients"`
	Intercept    float32   `json:"intercept"`
	FeatureNames []string  `json:"feature_names,omitempty"`
}

// LinearModel computes sum_j(row[j]*coef[j]) + intercept. Linear and ridge
// models only differ in how the coefficients were fitted.
type LinearModel struct {
	coefficients []float32
	intercept    float32
}

func NewLinearModel(params LinearModelParams) (*LinearModel, error) {
	if len(params.Coefficients) == 0 {
		return nil, emptyf("model has no coefficients")
	}
	return &LinearModel{
		coefficients: append([]float32(nil), params.Coefficients...),
		intercept:    params.Intercept,
	}, nil
}

func (m *LinearModel) Width() int {
	return len(m.coefficients)
}

func (m *LinearModel) Predict(row []float32) (float32, error) {
	if len(row) != len(m.coefficients) {
		return 0, dimensionf("row has width %d, model has %d coefficients", len(row), len(m.coefficients))
	}
	return dot(row, m.coefficients) + m.intercept, nil
}

// PredictMatrix predicts every row in order. It returns nothing if any row
// has the wrong width.
func (m *LinearModel) PredictMatrix(matrix FeatureMatrix) (PredictionVector, error) {
	if len(matrix) == 0 {
		return nil, emptyf("matrix has no rows")
	}
	for i, row := range matrix {
		if len(row) != len(m.coefficients) {
			return nil, dimensionf("row %d has width %d, model has %d coefficients", i, len(row), len(m.coefficients))
		}
	}
	out := make(PredictionVector, len(matrix))
	for i, row := range matrix {
		out[i] = dot(row, m.coefficients) + m.intercept
	}
	return out, nil
}
