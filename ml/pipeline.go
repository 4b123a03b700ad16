package ml

// Plan is a validated standardize → expand → predict chain. Building a Plan
// resolves every feature name and checks that the stage widths line up, so
// the only errors left at run time concern the matrix itself.
type Plan struct {
	scaler   *Scaler
	expander *FeatureExpander
	model    *LinearModel
}

func NewPlan(scaler ScalerParams, model LinearModelParams, features *FeatureNameSpec) (*Plan, error) {
	s, err := NewScaler(scaler)
	if err != nil {
		return nil, err
	}
	m, err := NewLinearModel(model)
	if err != nil {
		return nil, err
	}

	plan := &Plan{scaler: s, model: m}
	if features == nil {
		if len(model.FeatureNames) > 0 {
			return nil, Invalidf("model declares %d feature names but no base names were supplied", len(model.FeatureNames))
		}
		if m.Width() != s.Width() {
			return nil, dimensionf("model has %d coefficients, scaler has %d features", m.Width(), s.Width())
		}
		return plan, nil
	}

	spec := *features
	if len(spec.OutputNames) == 0 {
		spec.OutputNames = model.FeatureNames
	}
	e, err := CompileFeatureSpec(spec)
	if err != nil {
		return nil, err
	}
	if e.InputWidth() != s.Width() {
		return nil, dimensionf("feature spec has %d base names, scaler has %d features", e.InputWidth(), s.Width())
	}
	if e.OutputWidth() != m.Width() {
		return nil, dimensionf("feature spec yields %d features, model has %d coefficients", e.OutputWidth(), m.Width())
	}
	plan.expander = e
	return plan, nil
}

// PlanFor builds the plan for a ModelInput.
func PlanFor(input ModelInput) (*Plan, error) {
	return NewPlan(input.Scaler, input.Model, input.Features)
}

// BaseWidth is the width every input row must have.
func (p *Plan) BaseWidth() int {
	return p.scaler.Width()
}

// ModelWidth is the width of the rows the predictor consumes.
func (p *Plan) ModelWidth() int {
	return p.model.Width()
}

// Expands reports whether the plan has a feature expansion stage.
func (p *Plan) Expands() bool {
	return p.expander != nil
}

// Check validates the shape of matrix without computing anything.
func (p *Plan) Check(matrix FeatureMatrix) error {
	if len(matrix) == 0 {
		return emptyf("matrix has no rows")
	}
	for i, row := range matrix {
		if len(row) == 0 {
			return emptyf("row %d has no features", i)
		}
		if len(row) != p.scaler.Width() {
			return dimensionf("row %d has width %d, scaler expects %d", i, len(row), p.scaler.Width())
		}
	}
	return nil
}

// Run applies every stage to the whole matrix in order.
func (p *Plan) Run(matrix FeatureMatrix) (PredictionVector, error) {
	if err := p.Check(matrix); err != nil {
		return nil, err
	}
	x, err := p.scaler.Transform(matrix)
	if err != nil {
		return nil, err
	}
	if p.expander != nil {
		x, err = p.expander.Transform(x)
		if err != nil {
			return nil, err
		}
	}
	return p.model.PredictMatrix(x)
}

// PredictRow runs a single row through every stage. It produces the same
// bits as the corresponding entry of Run.
func (p *Plan) PredictRow(row []float32) (float32, error) {
	x, err := p.scaler.Transform(FeatureMatrix{row})
	if err != nil {
		return 0, err
	}
	features := x[0]
	if p.expander != nil {
		features, err = p.expander.Expand(features)
		if err != nil {
			return 0, err
		}
	}
	return p.model.Predict(features)
}

// Infer is the whole pipeline as one call.
func Infer(input ModelInput) (PredictionVector, error) {
	plan, err := PlanFor(input)
	if err != nil {
		return nil, err
	}
	return plan.Run(input.Matrix)
}
