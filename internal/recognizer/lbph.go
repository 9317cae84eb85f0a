// Package recognizer implements the nearest-template face classifier.
//
// The model follows the classic LBPH scheme: each training crop is
// normalized to a fixed square, encoded as local binary patterns,
// histogrammed over a spatial grid, and prediction returns the label
// of the nearest stored histogram under the chi-square distance.
// Lower distance means higher confidence.
package recognizer

import (
	"fmt"
	"image"

	"github.com/your-org/faceauth/internal/vision"
)

const (
	// sampleSize is the square crops are normalized to before coding,
	// so histograms from differently sized detections stay comparable.
	sampleSize = 128
	gridX      = 8
	gridY      = 8
	bins       = 256
)

// Model holds one histogram per training sample and the identity id
// that produced it. A trained model is a pure function of the sample
// set: retraining from the same crops reproduces it exactly.
type Model struct {
	SampleSize int         `json:"sample_size"`
	GridX      int         `json:"grid_x"`
	GridY      int         `json:"grid_y"`
	Labels     []int64     `json:"labels"`
	Histograms [][]float64 `json:"histograms"`
}

// Train builds a model from scratch. There is no incremental path;
// callers pass every sample on every call.
func Train(samples []*image.Gray, labels []int64) (*Model, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("train: no samples")
	}
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("train: %d samples but %d labels", len(samples), len(labels))
	}

	m := &Model{
		SampleSize: sampleSize,
		GridX:      gridX,
		GridY:      gridY,
		Labels:     make([]int64, len(labels)),
		Histograms: make([][]float64, len(samples)),
	}
	copy(m.Labels, labels)

	for i, sample := range samples {
		m.Histograms[i] = histogram(sample)
	}
	return m, nil
}

// Predict returns the label of the closest stored template and the
// chi-square distance to it. The model must hold at least one
// histogram; the Adapter guarantees that.
func (m *Model) Predict(sample *image.Gray) (int64, float64) {
	probe := histogram(sample)

	bestLabel := m.Labels[0]
	bestDist := chiSquare(probe, m.Histograms[0])
	for i := 1; i < len(m.Histograms); i++ {
		if d := chiSquare(probe, m.Histograms[i]); d < bestDist {
			bestDist = d
			bestLabel = m.Labels[i]
		}
	}
	return bestLabel, bestDist
}

// histogram encodes a crop as a concatenation of per-cell LBP
// histograms over a gridX by gridY partition.
func histogram(g *image.Gray) []float64 {
	codes := lbpCodes(vision.ResizeGray(g, sampleSize, sampleSize))
	w := len(codes[0])
	h := len(codes)

	hist := make([]float64, gridX*gridY*bins)
	for y := 0; y < h; y++ {
		cy := y * gridY / h
		for x := 0; x < w; x++ {
			cx := x * gridX / w
			cell := cy*gridX + cx
			hist[cell*bins+int(codes[y][x])]++
		}
	}
	return hist
}

// lbpCodes computes the 8-neighbor local binary pattern for every
// interior pixel; the one-pixel border has no full neighborhood and is
// dropped.
func lbpCodes(g *image.Gray) [][]uint8 {
	b := g.Bounds()
	w, h := b.Dx(), b.Dy()

	// Neighbor offsets in a fixed clockwise order starting top-left.
	offsets := [8][2]int{
		{-1, -1}, {0, -1}, {1, -1},
		{1, 0}, {1, 1}, {0, 1},
		{-1, 1}, {-1, 0},
	}

	codes := make([][]uint8, h-2)
	for y := 1; y < h-1; y++ {
		row := make([]uint8, w-2)
		for x := 1; x < w-1; x++ {
			center := g.GrayAt(b.Min.X+x, b.Min.Y+y).Y
			var code uint8
			for bit, off := range offsets {
				if g.GrayAt(b.Min.X+x+off[0], b.Min.Y+y+off[1]).Y >= center {
					code |= 1 << uint(bit)
				}
			}
			row[x-1] = code
		}
		codes[y-1] = row
	}
	return codes
}

// chiSquare is sum((a-b)^2 / (a+b)) over bins where a+b > 0.
// Identical histograms give 0.
func chiSquare(a, b []float64) float64 {
	var sum float64
	for i := range a {
		total := a[i] + b[i]
		if total > 0 {
			diff := a[i] - b[i]
			sum += diff * diff / total
		}
	}
	return sum
}
