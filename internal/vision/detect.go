package vision

import (
	"fmt"
	"image"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Region is one detected face in original-image pixel coordinates.
type Region struct {
	Rect       image.Rectangle
	Confidence float32
}

// Detector runs RetinaFace (det_10g) face detection via ONNX Runtime.
// Only scores and boxes are read; the model's landmark outputs are
// left unbound because nothing downstream aligns faces.
type Detector struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	scoreTensors [3]*ort.Tensor[float32]
	boxTensors   [3]*ort.Tensor[float32]
	threshold    float32
	inputW       int
	inputH       int
}

// det_10g emits anchors at three strides, two anchors per cell.
var detStrides = [3]int{8, 16, 32}

const detAnchors = 2

// NewDetector loads the RetinaFace ONNX model from modelPath.
func NewDetector(modelPath string, threshold float32) (*Detector, error) {
	const inputW, inputH = 640, 640

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, inputH, inputW))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	d := &Detector{
		inputTensor: inputTensor,
		threshold:   threshold,
		inputW:      inputW,
		inputH:      inputH,
	}

	// Output names are the det_10g graph node ids. Rows per stride:
	// (640/stride)^2 * 2 anchors.
	scoreNames := [3]string{"448", "471", "494"}
	boxNames := [3]string{"451", "474", "497"}

	outputNames := make([]string, 0, 6)
	outputValues := make([]ort.Value, 0, 6)
	for i, stride := range detStrides {
		rows := int64(inputW / stride * inputH / stride * detAnchors)

		st, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, 1))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create score tensor (stride %d): %w", stride, err)
		}
		d.scoreTensors[i] = st

		bt, err := ort.NewEmptyTensor[float32](ort.NewShape(rows, 4))
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("create box tensor (stride %d): %w", stride, err)
		}
		d.boxTensors[i] = bt

		outputNames = append(outputNames, scoreNames[i], boxNames[i])
		outputValues = append(outputValues, st, bt)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		nil,
	)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("create detector session: %w", err)
	}
	d.session = session

	return d, nil
}

// Detect finds faces in img, returned in descending confidence order.
func (d *Detector) Detect(img image.Image) ([]Region, error) {
	bounds := img.Bounds()
	origW, origH := bounds.Dx(), bounds.Dy()

	d.preprocess(img)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	regions := d.decode(origW, origH)
	regions = suppress(regions, 0.4)

	return regions, nil
}

// preprocess fills the input tensor with the image resized to the
// model size, CHW layout, normalized as (v-127.5)/128.
func (d *Detector) preprocess(img image.Image) {
	data := d.inputTensor.GetData()
	bounds := img.Bounds()
	srcW, srcH := bounds.Dx(), bounds.Dy()
	plane := d.inputW * d.inputH

	for y := 0; y < d.inputH; y++ {
		srcY := bounds.Min.Y + y*srcH/d.inputH
		for x := 0; x < d.inputW; x++ {
			srcX := bounds.Min.X + x*srcW/d.inputW
			r, g, b, _ := img.At(srcX, srcY).RGBA()

			idx := y*d.inputW + x
			data[idx] = (float32(r>>8) - 127.5) / 128.0
			data[plane+idx] = (float32(g>>8) - 127.5) / 128.0
			data[2*plane+idx] = (float32(b>>8) - 127.5) / 128.0
		}
	}
}

// decode walks the anchor grid at each stride and scales box
// coordinates back to the original image.
func (d *Detector) decode(origW, origH int) []Region {
	var regions []Region

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range detStrides {
		scores := d.scoreTensors[si].GetData()
		boxes := d.boxTensors[si].GetData()
		cells := d.inputW / stride

		for idx := range scores {
			if scores[idx] < d.threshold {
				continue
			}

			cell := idx / detAnchors
			anchorX := float32(cell%cells) * float32(stride)
			anchorY := float32(cell/cells) * float32(stride)

			// Boxes are stride-scaled distances from the anchor
			// center to each edge.
			st := float32(stride)
			x1 := (anchorX - boxes[idx*4+0]*st) * scaleW
			y1 := (anchorY - boxes[idx*4+1]*st) * scaleH
			x2 := (anchorX + boxes[idx*4+2]*st) * scaleW
			y2 := (anchorY + boxes[idx*4+3]*st) * scaleH

			rect := image.Rect(int(x1), int(y1), int(x2), int(y2)).
				Intersect(image.Rect(0, 0, origW, origH))
			if rect.Empty() {
				continue
			}

			regions = append(regions, Region{Rect: rect, Confidence: scores[idx]})
		}
	}

	return regions
}

func (d *Detector) Close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.scoreTensors {
		if t != nil {
			t.Destroy()
		}
	}
	for _, t := range d.boxTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// suppress applies non-maximum suppression and leaves the survivors
// sorted by confidence, best first.
func suppress(regions []Region, iouThreshold float64) []Region {
	if len(regions) == 0 {
		return regions
	}

	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Confidence > regions[j].Confidence
	})

	var kept []Region
	for _, r := range regions {
		overlaps := false
		for _, k := range kept {
			if iou(r.Rect, k.Rect) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, r)
		}
	}
	return kept
}

func iou(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
