package ml

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadModelRidge(t *testing.T) {
	dir := t.TempDir()
	scaler := writeFile(t, dir, "scaler_params.json", `{"mean":[1.0,1.0],"scale":[2.0,2.0]}`)
	model := writeFile(t, dir, "ridge_regression_params.json", `{"coefficients":[1.0,1.0],"intercept":0.0}`)

	bundle, err := LoadModel(ModelRidge, scaler, model, LoadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bundle.Features != nil {
		t.Fatal("ridge model should not carry a feature spec")
	}
	preds, err := Infer(bundle.Input(FeatureMatrix{{5, 3}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds[0] != 3 {
		t.Fatalf("expected 3, got %v", preds[0])
	}
}

func TestLoadModelPolynomial(t *testing.T) {
	dir := t.TempDir()
	scaler := writeFile(t, dir, "scaler_params.json", `{"mean":[0,0],"scale":[1,1]}`)
	model := writeFile(t, dir, "polynomial_ridge_regression_params.json",
		`{"coefficients":[1,1,1],"intercept":0,"feature_names":["a","b^2","a b"]}`)

	if _, err := LoadModel(ModelPolynomialRidge, scaler, model, LoadOptions{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input without base names, got %v", err)
	}

	bundle, err := LoadModel(ModelPolynomialRidge, scaler, model, LoadOptions{BaseNames: []string{"a", "b"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	preds, err := Infer(bundle.Input(FeatureMatrix{{2, 3}}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if preds[0] != 2+9+6 {
		t.Fatalf("expected 17, got %v", preds[0])
	}
}

func TestLoadModelErrors(t *testing.T) {
	dir := t.TempDir()
	scaler := writeFile(t, dir, "scaler.json", `{"mean":[0],"scale":[0]}`)
	model := writeFile(t, dir, "model.json", `{"coefficients":[1],"intercept":0}`)
	broken := writeFile(t, dir, "broken.json", `{"coefficients":`)
	unknown := writeFile(t, dir, "unknown.json", `{"coefficients":[1],"intercept":0,"feature_names":["zz"]}`)

	if _, err := LoadModel(ModelLinear, scaler, model, LoadOptions{StrictScale: true}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for zero scale, got %v", err)
	}
	if _, err := LoadModel(ModelLinear, scaler, model, LoadOptions{}); err != nil {
		t.Fatalf("zero scale should load without strict mode: %v", err)
	}
	if _, err := LoadModel(ModelLinear, scaler, broken, LoadOptions{}); !errors.Is(err, ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if _, err := LoadModel(ModelPolynomialRidge, scaler, unknown, LoadOptions{BaseNames: []string{"a"}}); !errors.Is(err, ErrUnknownFeatureName) {
		t.Fatalf("expected unknown feature name, got %v", err)
	}
	if _, err := LoadModel("decision_tree", scaler, model, LoadOptions{}); !errors.Is(err, ErrInvalidInput) || !strings.Contains(err.Error(), `"decision_tree"`) {
		t.Fatalf("expected invalid input naming the model type, got %v", err)
	}
	if _, err := LoadModel(ModelLinear, filepath.Join(dir, "missing.json"), model, LoadOptions{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}
