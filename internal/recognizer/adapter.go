package recognizer

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotTrained means Predict was called before any model was trained
// or loaded.
var ErrNotTrained = errors.New("recognizer not trained")

// Adapter owns the recognizer model behind a copy-on-write reference:
// Train builds a complete new model and swaps it in under a short
// lock, so concurrent Predict calls read either the old model or the
// new one, never a partially trained state. The model is also
// persisted to one fixed path as a cache; it is derived state and can
// always be rebuilt from the template store.
type Adapter struct {
	path string

	mu       sync.RWMutex
	model    *Model
	loadedAt time.Time
}

func NewAdapter(path string) *Adapter {
	return &Adapter{path: path}
}

// Path returns the model cache file location.
func (a *Adapter) Path() string {
	return a.path
}

// Train replaces the model wholesale and persists the result.
func (a *Adapter) Train(samples []*image.Gray, labels []int64) error {
	m, err := Train(samples, labels)
	if err != nil {
		return err
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}

	a.mu.Lock()
	a.model = m
	a.loadedAt = time.Now()
	a.mu.Unlock()

	return writeAtomic(a.path, data)
}

// Predict classifies a crop against the current model snapshot.
func (a *Adapter) Predict(sample *image.Gray) (int64, float64, error) {
	a.mu.RLock()
	m := a.model
	a.mu.RUnlock()

	if m == nil {
		return 0, 0, ErrNotTrained
	}
	label, distance := m.Predict(sample)
	return label, distance, nil
}

// Load reads the persisted model cache.
func (a *Adapter) Load() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read model file: %w", err)
	}

	m := &Model{}
	if err := json.Unmarshal(data, m); err != nil {
		return fmt.Errorf("parse model file: %w", err)
	}
	if len(m.Histograms) == 0 || len(m.Histograms) != len(m.Labels) {
		return fmt.Errorf("model file is inconsistent")
	}

	a.mu.Lock()
	a.model = m
	a.loadedAt = time.Now()
	a.mu.Unlock()
	return nil
}

// UpToDate reports whether the in-memory model is at least as fresh as
// the model file written at mtime. Another process may have retrained
// since we loaded.
func (a *Adapter) UpToDate(mtime time.Time) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model != nil && !a.loadedAt.Before(mtime)
}

// Trained reports whether a model is currently available.
func (a *Adapter) Trained() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.model != nil
}

// Reset drops the in-memory model and removes the cache file. Used
// when the last identity is deleted.
func (a *Adapter) Reset() error {
	a.mu.Lock()
	a.model = nil
	a.loadedAt = time.Time{}
	a.mu.Unlock()

	if err := os.Remove(a.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove model file: %w", err)
	}
	return nil
}

// writeAtomic goes through a temp file and rename so readers never see
// a half-written model.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write model file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename model file: %w", err)
	}
	return nil
}
