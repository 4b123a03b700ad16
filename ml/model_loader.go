package ml

import (
	"encoding/json"
	"fmt"
	"os"
)

const (
	ModelLinear          = "linear"
	ModelRidge           = "ridge"
	ModelPolynomialRidge = "polynomial_ridge"
)

// Bundle is a fully materialized set of parameters for one model. It is
// read-only once loaded and can back any number of inference calls.
type Bundle struct {
	Type     string
	Scaler   ScalerParams
	Model    LinearModelParams
	Features *FeatureNameSpec
}

// Input pairs the bundle's parameters with a fresh feature matrix.
func (b *Bundle) Input(matrix FeatureMatrix) ModelInput {
	return ModelInput{
		Scaler:   b.Scaler,
		Model:    b.Model,
		Features: b.Features,
		Matrix:   matrix,
	}
}

// LoadOptions tune how parameter files are interpreted.
type LoadOptions struct {
	// BaseNames are the base column names for polynomial models.
	BaseNames []string
	// StrictScale rejects zero or non-finite scaler entries at load time.
	StrictScale bool
}

func LoadScalerParams(path string) (ScalerParams, error) {
	var params ScalerParams
	if err := readJSON(path, &params); err != nil {
		return ScalerParams{}, err
	}
	if params.Mean == nil || params.Scale == nil {
		return ScalerParams{}, Parsef("%s: scaler needs both mean and scale", path)
	}
	return params, nil
}

func LoadModelParams(path string) (LinearModelParams, error) {
	var params LinearModelParams
	if err := readJSON(path, &params); err != nil {
		return LinearModelParams{}, err
	}
	if params.Coefficients == nil {
		return LinearModelParams{}, Parsef("%s: model has no coefficients field", path)
	}
	return params, nil
}

// LoadModel reads the scaler and model files for the given model type and
// checks that they form a valid plan.
func LoadModel(modelType, scalerPath, modelPath string, opts LoadOptions) (*Bundle, error) {
	scaler, err := LoadScalerParams(scalerPath)
	if err != nil {
		return nil, err
	}
	if opts.StrictScale {
		if err := ValidateScaler(scaler); err != nil {
			return nil, err
		}
	}
	model, err := LoadModelParams(modelPath)
	if err != nil {
		return nil, err
	}

	bundle := &Bundle{Type: modelType, Scaler: scaler, Model: model}
	switch modelType {
	case ModelLinear, ModelRidge:
		if len(model.FeatureNames) > 0 {
			return nil, Invalidf("%s model %s declares feature names", modelType, modelPath)
		}
	case ModelPolynomialRidge:
		if len(model.FeatureNames) == 0 {
			return nil, Invalidf("polynomial model %s has no feature_names", modelPath)
		}
		if len(opts.BaseNames) == 0 {
			return nil, Invalidf("polynomial model %s needs base names", modelPath)
		}
		bundle.Features = &FeatureNameSpec{
			BaseNames:   append([]string(nil), opts.BaseNames...),
			OutputNames: model.FeatureNames,
		}
	default:
		return nil, Invalidf("unsupported model type %q", modelType)
	}

	if _, err := NewPlan(bundle.Scaler, bundle.Model, bundle.Features); err != nil {
		return nil, fmt.Errorf("load %s: %w", modelPath, err)
	}
	return bundle, nil
}

func readJSON(path string, v any) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return Parsef("%s: %v", path, err)
	}
	return nil
}
