package ml

import (
	"errors"
	"math"
	"testing"
)

func TestScalerTransform(t *testing.T) {
	scaler, err := NewScaler(ScalerParams{
		Mean:  []float32{2, 1, -3},
		Scale: []float32{4, 0.5, 3},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := FeatureMatrix{
		{10, -4, 0},
		{2, 1, -3},
	}
	out, err := scaler.Transform(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := FeatureMatrix{
		{2, -10, 1},
		{0, 0, 0},
	}
	for i := range want {
		for j := range want[i] {
			if out[i][j] != want[i][j] {
				t.Fatalf("out[%d][%d] = %v, want %v", i, j, out[i][j], want[i][j])
			}
		}
	}
	if input[0][0] != 10 {
		t.Fatalf("transform mutated its input")
	}
}

func TestScalerMatchesFormula(t *testing.T) {
	mean := []float32{0.3, -1.7, 12.5, 1e-3}
	scale := []float32{0.7, 3.1, 0.9, 2e-2}
	row := []float32{1.1, 4.4, -2.2, 0.37}

	scaler, err := NewScaler(ScalerParams{Mean: mean, Scale: scale})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := scaler.Transform(FeatureMatrix{row})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for j := range row {
		want := (row[j] - mean[j]) / scale[j]
		if out[0][j] != want {
			t.Fatalf("column %d: got %v want %v", j, out[0][j], want)
		}
	}
}

func TestScalerRowWidthMismatch(t *testing.T) {
	scaler, err := NewScaler(ScalerParams{Mean: []float32{0, 0}, Scale: []float32{1, 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, err = scaler.Transform(FeatureMatrix{{1, 2}, {1, 2, 3}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestNewScalerRejectsUnevenParams(t *testing.T) {
	if _, err := NewScaler(ScalerParams{Mean: []float32{0, 0}, Scale: []float32{1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if _, err := NewScaler(ScalerParams{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected empty input, got %v", err)
	}
}

func TestScalerZeroScalePropagates(t *testing.T) {
	scaler, err := NewScaler(ScalerParams{Mean: []float32{0, 0}, Scale: []float32{0, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out, err := scaler.Transform(FeatureMatrix{{1, 0}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !math.IsInf(float64(out[0][0]), 1) {
		t.Fatalf("expected +Inf, got %v", out[0][0])
	}
	if !math.IsNaN(float64(out[0][1])) {
		t.Fatalf("expected NaN, got %v", out[0][1])
	}
}

func TestValidateScaler(t *testing.T) {
	if err := ValidateScaler(ScalerParams{Mean: []float32{1}, Scale: []float32{2}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := ValidateScaler(ScalerParams{Mean: []float32{1, 1}, Scale: []float32{2, 0}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	nan := float32(math.NaN())
	if err := ValidateScaler(ScalerParams{Mean: []float32{nan}, Scale: []float32{1}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for NaN mean, got %v", err)
	}
}
