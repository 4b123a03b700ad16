// Package registry keeps the named model bundles the server predicts with and
// reloads them when their parameter files change on disk.
package registry

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"salesproof/ml"
	"salesproof/pipeline"
)

var ErrUnknownModel = errors.New("unknown model")

// ModelConfig describes one entry of the models section of the config.
type ModelConfig struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"`
	ScalerPath string   `yaml:"scaler_path"`
	ModelPath  string   `yaml:"model_path"`
	BaseNames  []string `yaml:"base_names"`
}

// Entry is a loaded model together with the config it came from.
type Entry struct {
	Config ModelConfig
	Bundle *ml.Bundle
}

type Registry struct {
	mu      sync.RWMutex
	configs map[string]ModelConfig
	entries map[string]*Entry

	strictScale bool
	logger      *zap.Logger
}

// New returns an empty registry for the given models. Call Load to read
// their parameter files.
func New(models []ModelConfig, strictScale bool, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		configs:     make(map[string]ModelConfig, len(models)),
		entries:     make(map[string]*Entry, len(models)),
		strictScale: strictScale,
		logger:      logger,
	}
	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("model config without a name")
		}
		if _, dup := r.configs[m.Name]; dup {
			return nil, fmt.Errorf("duplicate model %q", m.Name)
		}
		r.configs[m.Name] = m
	}
	return r, nil
}

// Load reads every configured model. A model that fails to load keeps its
// previously loaded bundle; the failures are joined into the returned error.
func (r *Registry) Load() error {
	var errs []error
	for _, name := range r.configNames() {
		if err := r.Reload(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reload reads one model's parameter files and swaps it in on success.
func (r *Registry) Reload(name string) error {
	r.mu.RLock()
	cfg, ok := r.configs[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}

	baseNames := cfg.BaseNames
	if cfg.Type == ml.ModelPolynomialRidge && len(baseNames) == 0 {
		baseNames = pipeline.FeatureColumns()
	}
	bundle, err := ml.LoadModel(cfg.Type, cfg.ScalerPath, cfg.ModelPath, ml.LoadOptions{
		BaseNames:   baseNames,
		StrictScale: r.strictScale,
	})
	if err != nil {
		r.logger.Warn("model load failed", zap.String("model", name), zap.Error(err))
		return fmt.Errorf("model %s: %w", name, err)
	}

	r.mu.Lock()
	r.entries[name] = &Entry{Config: cfg, Bundle: bundle}
	r.mu.Unlock()
	r.logger.Info("model loaded",
		zap.String("model", name),
		zap.String("type", cfg.Type),
		zap.Int("features", len(bundle.Model.Coefficients)))
	return nil
}

func (r *Registry) Get(name string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, name)
	}
	return e, nil
}

// Names lists the loaded models in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) configNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// modelsFor returns the models that read the given file.
func (r *Registry) modelsFor(path string) []string {
	path = filepath.Clean(path)
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, cfg := range r.configs {
		if filepath.Clean(cfg.ScalerPath) == path || filepath.Clean(cfg.ModelPath) == path {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Watch reloads models whose parameter files are written, created or renamed
// into place. It blocks until ctx is done.
func (r *Registry) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dirs := make(map[string]bool)
	r.mu.RLock()
	for _, cfg := range r.configs {
		dirs[filepath.Dir(filepath.Clean(cfg.ScalerPath))] = true
		dirs[filepath.Dir(filepath.Clean(cfg.ModelPath))] = true
	}
	r.mu.RUnlock()
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			for _, name := range r.modelsFor(event.Name) {
				r.logger.Debug("model file changed", zap.String("model", name), zap.String("path", event.Name))
				_ = r.Reload(name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Error("watcher error", zap.Error(err))
		}
	}
}
