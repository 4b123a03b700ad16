package ml

import (
	"errors"
	"fmt"
	"testing"
)

func TestLinearModelZeroRowReturnsIntercept(t *testing.T) {
	model, err := NewLinearModel(LinearModelParams{Coefficients: []float32{1.5, -2, 0.25}, Intercept: -3.25})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := model.Predict([]float32{0, 0, 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != -3.25 {
		t.Fatalf("expected intercept -3.25, got %v", got)
	}
}

func TestLinearModelDimensionMismatch(t *testing.T) {
	model, err := NewLinearModel(LinearModelParams{Coefficients: []float32{1, 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := model.Predict([]float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if got != 0 {
		t.Fatalf("expected zero value on failure, got %v", got)
	}

	preds, err := model.PredictMatrix(FeatureMatrix{{1, 2}, {1}})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
	if preds != nil {
		t.Fatalf("expected no partial predictions, got %v", preds)
	}
}

func TestLinearModelAccumulatesLeftToRight(t *testing.T) {
	// 1e8 + 1 - 1e8 is 0 in float32 when summed left to right, but 1 when
	// the large terms are paired first.
	model, err := NewLinearModel(LinearModelParams{Coefficients: []float32{1, 1, 1}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := model.Predict([]float32{1e8, 1, -1e8})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("expected left-to-right sum 0, got %v", got)
	}
}

func TestLinearModelCopiesCoefficients(t *testing.T) {
	coef := []float32{1, 2}
	model, err := NewLinearModel(LinearModelParams{Coefficients: coef})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	coef[0] = 100
	got, _ := model.Predict([]float32{1, 1})
	if got != 3 {
		t.Fatalf("model observed caller mutation: %v", got)
	}
}

func TestNewLinearModelEmpty(t *testing.T) {
	if _, err := NewLinearModel(LinearModelParams{}); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected empty input, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(BudgetExceeded("heap", 1, 2)) != ErrResourceBudgetExceeded {
		t.Fatal("expected budget kind")
	}
	wrapped := fmt.Errorf("load: %w", Parsef("bad json"))
	if KindOf(wrapped) != ErrParse {
		t.Fatal("expected parse kind through wrapping")
	}
	if KindOf(errors.New("disk on fire")) != nil {
		t.Fatal("expected no kind for foreign error")
	}
}
