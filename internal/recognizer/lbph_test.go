package recognizer

import (
	"image"
	"math/rand"
	"path/filepath"
	"testing"
)

// checkerboard and gradient produce very different LBP statistics, so
// they stand in for faces of two different people.
func checkerboard(size, square int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x/square+y/square)%2 == 0 {
				g.Pix[y*g.Stride+x] = 230
			} else {
				g.Pix[y*g.Stride+x] = 20
			}
		}
	}
	return g
}

func gradient(size int) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			g.Pix[y*g.Stride+x] = uint8((x + y) * 255 / (2 * size))
		}
	}
	return g
}

func noise(size int, seed int64) *image.Gray {
	rng := rand.New(rand.NewSource(seed))
	g := image.NewGray(image.Rect(0, 0, size, size))
	for i := range g.Pix {
		g.Pix[i] = uint8(rng.Intn(256))
	}
	return g
}

func TestTrainValidation(t *testing.T) {
	if _, err := Train(nil, nil); err == nil {
		t.Error("Train with no samples should fail")
	}
	if _, err := Train([]*image.Gray{gradient(64)}, []int64{1, 2}); err == nil {
		t.Error("Train with mismatched labels should fail")
	}
}

func TestPredictExactSample(t *testing.T) {
	samples := []*image.Gray{checkerboard(128, 16), gradient(128)}
	labels := []int64{1, 2}

	m, err := Train(samples, labels)
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	for i, sample := range samples {
		label, dist := m.Predict(sample)
		if label != labels[i] {
			t.Errorf("Predict(sample %d) label = %d; want %d", i, label, labels[i])
		}
		if dist != 0 {
			t.Errorf("Predict(sample %d) distance = %v; want 0 for identical input", i, dist)
		}
	}
}

func TestPredictDistantForUnrelatedInput(t *testing.T) {
	m, err := Train([]*image.Gray{checkerboard(128, 16)}, []int64{7})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	_, dist := m.Predict(noise(128, 42))
	if dist < 80.0 {
		t.Errorf("distance to unrelated input = %v; want at least the match threshold", dist)
	}
}

func TestPredictHandlesDifferentCropSizes(t *testing.T) {
	// Crops arrive at whatever size the detector reported; the model
	// normalizes internally.
	m, err := Train([]*image.Gray{checkerboard(96, 12)}, []int64{3})
	if err != nil {
		t.Fatalf("Train: %v", err)
	}

	label, _ := m.Predict(checkerboard(200, 25))
	if label != 3 {
		t.Errorf("label = %d; want 3", label)
	}
}

func TestAdapterLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	a := NewAdapter(path)

	if _, _, err := a.Predict(gradient(64)); err != ErrNotTrained {
		t.Fatalf("Predict before train: err = %v; want ErrNotTrained", err)
	}
	if a.Trained() {
		t.Fatal("Trained() = true before any training")
	}

	samples := []*image.Gray{checkerboard(128, 16), gradient(128)}
	if err := a.Train(samples, []int64{1, 2}); err != nil {
		t.Fatalf("Train: %v", err)
	}

	label, dist, err := a.Predict(samples[1])
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if label != 2 || dist != 0 {
		t.Errorf("Predict = (%d, %v); want (2, 0)", label, dist)
	}

	// A fresh adapter loading the persisted file must predict the same.
	b := NewAdapter(path)
	if err := b.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	label, dist, err = b.Predict(samples[0])
	if err != nil {
		t.Fatalf("Predict after Load: %v", err)
	}
	if label != 1 || dist != 0 {
		t.Errorf("Predict after Load = (%d, %v); want (1, 0)", label, dist)
	}

	if err := b.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if b.Trained() {
		t.Error("Trained() = true after Reset")
	}
	if err := b.Load(); err == nil {
		t.Error("Load after Reset should fail, file is gone")
	}
}

func TestAdapterRetrainReplacesModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.json")
	a := NewAdapter(path)

	if err := a.Train([]*image.Gray{checkerboard(128, 16)}, []int64{1}); err != nil {
		t.Fatalf("first Train: %v", err)
	}
	if err := a.Train([]*image.Gray{gradient(128)}, []int64{2}); err != nil {
		t.Fatalf("second Train: %v", err)
	}

	// Old training data is gone: nearest template is now label 2.
	label, _, err := a.Predict(gradient(128))
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if label != 2 {
		t.Errorf("label = %d; want 2 after full retrain", label)
	}
}
