package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"salesproof/ml"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func testModels(t *testing.T) (string, []ModelConfig) {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "scaler.json"), `{"mean":[1,1],"scale":[2,2]}`)
	writeFile(t, filepath.Join(dir, "ridge.json"), `{"coefficients":[1,1],"intercept":0}`)
	writeFile(t, filepath.Join(dir, "poly.json"),
		`{"coefficients":[1,1,1],"intercept":0,"feature_names":["a","b^2","a b"]}`)
	return dir, []ModelConfig{
		{Name: "ridge", Type: ml.ModelRidge, ScalerPath: filepath.Join(dir, "scaler.json"), ModelPath: filepath.Join(dir, "ridge.json")},
		{Name: "poly", Type: ml.ModelPolynomialRidge, ScalerPath: filepath.Join(dir, "scaler.json"), ModelPath: filepath.Join(dir, "poly.json"), BaseNames: []string{"a", "b"}},
	}
}

func TestLoadAndGet(t *testing.T) {
	_, models := testModels(t)
	r, err := New(models, false, nil)
	require.NoError(t, err)
	require.NoError(t, r.Load())

	assert.Equal(t, []string{"poly", "ridge"}, r.Names())

	entry, err := r.Get("ridge")
	require.NoError(t, err)
	preds, err := ml.Infer(entry.Bundle.Input(ml.FeatureMatrix{{5, 3}}))
	require.NoError(t, err)
	assert.Equal(t, float32(3), preds[0])

	poly, err := r.Get("poly")
	require.NoError(t, err)
	require.NotNil(t, poly.Bundle.Features)

	_, err = r.Get("missing")
	assert.True(t, errors.Is(err, ErrUnknownModel))
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New([]ModelConfig{{Name: "a"}, {Name: "a"}}, false, nil)
	require.Error(t, err)
	_, err = New([]ModelConfig{{Type: ml.ModelLinear}}, false, nil)
	require.Error(t, err)
}

func TestFailedReloadKeepsPreviousBundle(t *testing.T) {
	dir, models := testModels(t)
	r, err := New(models, false, nil)
	require.NoError(t, err)
	require.NoError(t, r.Load())

	writeFile(t, filepath.Join(dir, "ridge.json"), `{"coefficients":[1,1,1],"intercept":0}`)
	err = r.Reload("ridge")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ml.ErrDimensionMismatch))

	entry, err := r.Get("ridge")
	require.NoError(t, err)
	assert.Len(t, entry.Bundle.Model.Coefficients, 2)
}

func TestStrictScaleRejectsZeroScale(t *testing.T) {
	dir, models := testModels(t)
	writeFile(t, filepath.Join(dir, "scaler.json"), `{"mean":[1,1],"scale":[0,2]}`)

	r, err := New(models[:1], true, nil)
	require.NoError(t, err)
	err = r.Load()
	assert.True(t, errors.Is(err, ml.ErrInvalidInput))
	assert.Empty(t, r.Names())
}

func TestWatchReloadsChangedModel(t *testing.T) {
	dir, models := testModels(t)
	r, err := New(models[:1], false, nil)
	require.NoError(t, err)
	require.NoError(t, r.Load())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx) }()

	path := filepath.Join(dir, "ridge.json")
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`{"coefficients":[2,2],"intercept":1}`), 0o600)
		entry, err := r.Get("ridge")
		return err == nil && entry.Bundle.Model.Intercept == 1
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}
