package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngPayload(t *testing.T, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 17), G: uint8(y * 31), B: 100, A: 255})
		}
	}
	return img
}

func TestDecodeImagePayload(t *testing.T) {
	raw := pngPayload(t, testImage(8, 6))

	tests := []struct {
		name    string
		payload string
	}{
		{"raw base64", raw},
		{"data url", "data:image/png;base64," + raw},
		{"arbitrary meta prefix", "whatever," + raw},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			img, err := DecodeImagePayload(tc.payload)
			if err != nil {
				t.Fatalf("DecodeImagePayload: %v", err)
			}
			if img.Bounds().Dx() != 8 || img.Bounds().Dy() != 6 {
				t.Errorf("bounds = %v; want 8x6", img.Bounds())
			}
		})
	}
}

func TestDecodeImagePayloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not base64", "!!! not base64 !!!"},
		{"base64 but not an image", base64.StdEncoding.EncodeToString([]byte("plain text"))},
		{"empty", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeImagePayload(tc.payload)
			if !errors.Is(err, ErrDecode) {
				t.Errorf("err = %v; want ErrDecode", err)
			}
		})
	}
}

func TestToGrayAndCrop(t *testing.T) {
	gray := ToGray(testImage(10, 10))
	if gray.Bounds() != image.Rect(0, 0, 10, 10) {
		t.Fatalf("gray bounds = %v", gray.Bounds())
	}

	crop := CropGray(gray, image.Rect(2, 2, 6, 8))
	if crop.Bounds() != image.Rect(0, 0, 4, 6) {
		t.Fatalf("crop bounds = %v; want zero-based 4x6", crop.Bounds())
	}
	if crop.GrayAt(0, 0) != gray.GrayAt(2, 2) {
		t.Errorf("crop origin pixel mismatch")
	}

	// Cropping past the edge clips instead of failing.
	clipped := CropGray(gray, image.Rect(8, 8, 20, 20))
	if clipped.Bounds() != image.Rect(0, 0, 2, 2) {
		t.Errorf("clipped bounds = %v; want 2x2", clipped.Bounds())
	}
}

func TestGrayPNGRoundTrip(t *testing.T) {
	orig := ToGray(testImage(16, 16))

	data, err := EncodeGrayPNG(orig)
	if err != nil {
		t.Fatalf("EncodeGrayPNG: %v", err)
	}

	back, err := DecodeGrayPNG(data)
	if err != nil {
		t.Fatalf("DecodeGrayPNG: %v", err)
	}

	if back.Bounds() != orig.Bounds() {
		t.Fatalf("bounds = %v; want %v", back.Bounds(), orig.Bounds())
	}
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if back.GrayAt(x, y) != orig.GrayAt(x, y) {
				t.Fatalf("pixel (%d,%d) = %v; want %v", x, y, back.GrayAt(x, y), orig.GrayAt(x, y))
			}
		}
	}
}

func TestResizeGray(t *testing.T) {
	g := ToGray(testImage(32, 32))
	small := ResizeGray(g, 8, 8)
	if small.Bounds() != image.Rect(0, 0, 8, 8) {
		t.Errorf("resized bounds = %v; want 8x8", small.Bounds())
	}
	if same := ResizeGray(g, 32, 32); same != g {
		t.Errorf("resize to same size should return the input")
	}
}
