package ml

import (
	"errors"
	"testing"
)

func TestInferScenarios(t *testing.T) {
	tests := []struct {
		name  string
		input ModelInput
		want  float32
	}{
		{
			name: "identity scaler",
			input: ModelInput{
				Scaler: ScalerParams{Mean: []float32{0, 0}, Scale: []float32{1, 1}},
				Model:  LinearModelParams{Coefficients: []float32{1, 2}, Intercept: 0.5},
				Matrix: FeatureMatrix{{1, 2}},
			},
			want: 5.5,
		},
		{
			name: "centered and scaled",
			input: ModelInput{
				Scaler: ScalerParams{Mean: []float32{1, 1}, Scale: []float32{2, 2}},
				Model:  LinearModelParams{Coefficients: []float32{1, 1}},
				Matrix: FeatureMatrix{{5, 3}},
			},
			want: 3,
		},
		{
			name: "polynomial",
			input: ModelInput{
				Scaler: ScalerParams{Mean: []float32{0, 0}, Scale: []float32{1, 1}},
				Model: LinearModelParams{
					Coefficients: []float32{1, 1, 1},
					Intercept:    1,
					FeatureNames: []string{"a", "a^2", "a b"},
				},
				Features: &FeatureNameSpec{BaseNames: []string{"a", "b"}},
				Matrix:   FeatureMatrix{{3, 2}},
			},
			want: 3 + 9 + 6 + 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds, err := Infer(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(preds) != 1 || preds[0] != tt.want {
				t.Fatalf("expected [%v], got %v", tt.want, preds)
			}
		})
	}
}

func TestInferPreservesRowOrder(t *testing.T) {
	input := ModelInput{
		Scaler: ScalerParams{Mean: []float32{0}, Scale: []float32{1}},
		Model:  LinearModelParams{Coefficients: []float32{2}},
		Matrix: FeatureMatrix{{3}, {1}, {2}},
	}
	preds, err := Infer(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := PredictionVector{6, 2, 4}
	for i := range want {
		if preds[i] != want[i] {
			t.Fatalf("row %d: got %v want %v", i, preds[i], want[i])
		}
	}
}

func TestInferErrors(t *testing.T) {
	scaler := ScalerParams{Mean: []float32{0, 0}, Scale: []float32{1, 1}}
	tests := []struct {
		name  string
		input ModelInput
		kind  error
	}{
		{
			name:  "no rows",
			input: ModelInput{Scaler: scaler, Model: LinearModelParams{Coefficients: []float32{1, 1}}},
			kind:  ErrEmptyInput,
		},
		{
			name:  "zero width row",
			input: ModelInput{Scaler: scaler, Model: LinearModelParams{Coefficients: []float32{1, 1}}, Matrix: FeatureMatrix{{}}},
			kind:  ErrEmptyInput,
		},
		{
			name:  "ragged rows",
			input: ModelInput{Scaler: scaler, Model: LinearModelParams{Coefficients: []float32{1, 1}}, Matrix: FeatureMatrix{{1, 2}, {1}}},
			kind:  ErrDimensionMismatch,
		},
		{
			name:  "coefficient width",
			input: ModelInput{Scaler: scaler, Model: LinearModelParams{Coefficients: []float32{1}}, Matrix: FeatureMatrix{{1, 2}}},
			kind:  ErrDimensionMismatch,
		},
		{
			name: "unknown feature",
			input: ModelInput{
				Scaler:   scaler,
				Model:    LinearModelParams{Coefficients: []float32{1}, FeatureNames: []string{"a z"}},
				Features: &FeatureNameSpec{BaseNames: []string{"a", "b"}},
				Matrix:   FeatureMatrix{{1, 2}},
			},
			kind: ErrUnknownFeatureName,
		},
		{
			name: "base names disagree with scaler",
			input: ModelInput{
				Scaler:   scaler,
				Model:    LinearModelParams{Coefficients: []float32{1}, FeatureNames: []string{"a"}},
				Features: &FeatureNameSpec{BaseNames: []string{"a"}},
				Matrix:   FeatureMatrix{{1, 2}},
			},
			kind: ErrDimensionMismatch,
		},
		{
			name: "feature names without base names",
			input: ModelInput{
				Scaler: scaler,
				Model:  LinearModelParams{Coefficients: []float32{1}, FeatureNames: []string{"a"}},
				Matrix: FeatureMatrix{{1, 2}},
			},
			kind: ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			preds, err := Infer(tt.input)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("expected %v, got %v", tt.kind, err)
			}
			if preds != nil {
				t.Fatalf("expected no output, got %v", preds)
			}
		})
	}
}

func TestPredictRowMatchesRun(t *testing.T) {
	plan, err := NewPlan(
		ScalerParams{Mean: []float32{0.5, -1.25, 3}, Scale: []float32{1.5, 0.75, 2.5}},
		LinearModelParams{
			Coefficients: []float32{0.1, -0.7, 1.3, 0.01, 2.2},
			Intercept:    0.33,
			FeatureNames: []string{"x", "y^2", "x z", "z", "y z"},
		},
		&FeatureNameSpec{BaseNames: []string{"x", "y", "z"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	matrix := FeatureMatrix{
		{1.1, 2.2, 3.3},
		{-4.4, 5.5, -6.6},
		{0.07, 0.08, 0.09},
	}
	all, err := plan.Run(matrix)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, row := range matrix {
		got, err := plan.PredictRow(row)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != all[i] {
			t.Fatalf("row %d: PredictRow %v, Run %v", i, got, all[i])
		}
	}
}
