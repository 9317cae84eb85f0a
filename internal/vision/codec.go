package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"strings"

	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"
)

// ErrDecode means the payload was not valid base64 or not a decodable
// image container.
var ErrDecode = errors.New("undecodable image payload")

// DecodeImagePayload turns a data-URL-or-raw base64 string into an
// image. A "data:image/...;base64," style prefix is stripped when
// present; everything before the first comma is treated as metadata.
func DecodeImagePayload(payload string) (image.Image, error) {
	b64 := payload
	if idx := strings.IndexByte(payload, ','); idx >= 0 {
		b64 = payload[idx+1:]
	}

	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return img, nil
}

// ToGray converts any image to single-channel intensity.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(bounds)
	draw.Draw(gray, bounds, img, bounds.Min, draw.Src)
	return gray
}

// CropGray copies the region r out of g into a zero-based image.
func CropGray(g *image.Gray, r image.Rectangle) *image.Gray {
	r = r.Intersect(g.Bounds())
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			out.SetGray(x-r.Min.X, y-r.Min.Y, g.GrayAt(x, y))
		}
	}
	return out
}

// ResizeGray scales g to w times h using bilinear interpolation.
func ResizeGray(g *image.Gray, w, h int) *image.Gray {
	if g.Bounds().Dx() == w && g.Bounds().Dy() == h {
		return g
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), g, g.Bounds(), xdraw.Src, nil)
	return out
}

// EncodeGrayPNG serializes a grayscale crop for the blob store.
func EncodeGrayPNG(g *image.Gray) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, g); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeGrayPNG reads a stored crop back into a grayscale image.
func DecodeGrayPNG(data []byte) (*image.Gray, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode crop: %w", err)
	}
	return ToGray(img), nil
}
