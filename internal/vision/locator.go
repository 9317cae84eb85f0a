package vision

import (
	"errors"
	"image"
)

// ErrNoFace means the detector reported zero regions.
var ErrNoFace = errors.New("no face detected")

// Locator finds the face region in a decoded image and returns it as a
// grayscale crop. Implemented by DetectorLocator in production and by
// stubs in tests.
type Locator interface {
	Locate(img image.Image) (*image.Gray, error)
}

// DetectorLocator adapts the ONNX detector to the Locator contract.
//
// Policy: only the first reported region is used. Additional faces in
// frame are ignored, which is a documented limitation of the service,
// not a bug. No minimum-size check is applied either; any detector
// hit is accepted.
type DetectorLocator struct {
	det *Detector
}

func NewDetectorLocator(det *Detector) *DetectorLocator {
	return &DetectorLocator{det: det}
}

func (l *DetectorLocator) Locate(img image.Image) (*image.Gray, error) {
	regions, err := l.det.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, ErrNoFace
	}

	return CropGray(ToGray(img), regions[0].Rect), nil
}
