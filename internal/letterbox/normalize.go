// Package letterbox converts frames into fixed-size model inputs and maps
// model-space boxes back into the frame they came from.
package letterbox

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/MeKo-Tech/platex/internal/mempool"
	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/disintegration/imaging"
)

// ErrInvalidImageDimensions is returned for empty frames or frames that would
// collapse to zero pixels after resizing.
var ErrInvalidImageDimensions = errors.New("invalid image dimensions")

// ImageError represents a failure in an image operation.
type ImageError struct {
	Operation string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image processing error in %s: %v", e.Operation, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// Anchor controls where the resized frame sits on the padded canvas.
type Anchor string

const (
	AnchorCenter  Anchor = "center"
	AnchorTopLeft Anchor = "top-left"
)

// ChannelOrder is the order of colour planes in the output tensor.
type ChannelOrder string

const (
	RGB ChannelOrder = "rgb"
	BGR ChannelOrder = "bgr"
)

// Config parametrizes a Normalizer. Mean and Std are given in tensor
// channel order.
type Config struct {
	TargetHeight int
	TargetWidth  int
	Mean         [3]float32
	Std          [3]float32
	PadValue     uint8
	Anchor       Anchor
	ChannelOrder ChannelOrder
	// Round rounds the resized dimensions to nearest; otherwise they are truncated.
	Round bool
}

// PlateLocalizerConfig is the preprocessing of the plate localization model.
func PlateLocalizerConfig() Config {
	return Config{
		TargetHeight: 640,
		TargetWidth:  640,
		Mean:         [3]float32{103.53, 116.28, 123.675},
		Std:          [3]float32{57.375, 57.12, 58.395},
		PadValue:     0,
		Anchor:       AnchorCenter,
		ChannelOrder: BGR,
		Round:        true,
	}
}

// PlateFieldConfig is the preprocessing of the plate character model.
// Size and statistics come from the model's transforms metadata.
func PlateFieldConfig(height, width int, mean, std [3]float32) Config {
	return Config{
		TargetHeight: height,
		TargetWidth:  width,
		Mean:         mean,
		Std:          std,
		PadValue:     114,
		Anchor:       AnchorCenter,
		ChannelOrder: BGR,
	}
}

// DocumentConfig is the preprocessing of the identity document field model.
func DocumentConfig() Config {
	return Config{
		TargetHeight: 640,
		TargetWidth:  640,
		Mean:         [3]float32{123.675, 116.28, 103.53},
		Std:          [3]float32{58.395, 57.12, 57.375},
		PadValue:     0,
		Anchor:       AnchorCenter,
		ChannelOrder: RGB,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TargetHeight <= 0 || c.TargetWidth <= 0 {
		return fmt.Errorf("target size must be positive, got %dx%d", c.TargetWidth, c.TargetHeight)
	}
	for i, s := range c.Std {
		if s == 0 {
			return fmt.Errorf("std[%d] must be non-zero", i)
		}
	}
	switch c.Anchor {
	case AnchorCenter, AnchorTopLeft:
	default:
		return fmt.Errorf("unknown anchor %q", c.Anchor)
	}
	switch c.ChannelOrder {
	case RGB, BGR:
	default:
		return fmt.Errorf("unknown channel order %q", c.ChannelOrder)
	}
	return nil
}

// ScalingContext records how a frame was fitted onto the model canvas.
type ScalingContext struct {
	Scale      float64
	PadTop     int
	PadLeft    int
	OrigHeight int
	OrigWidth  int
}

// Normalizer letterboxes frames into NCHW tensors.
type Normalizer struct {
	cfg Config
}

// NewNormalizer validates cfg and returns a Normalizer.
func NewNormalizer(cfg Config) (*Normalizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Normalizer{cfg: cfg}, nil
}

// Config returns the normalizer configuration.
func (n *Normalizer) Config() Config { return n.cfg }

// Normalize resizes img to fit the target size preserving aspect ratio, pads
// the remainder with the configured fill value and standardizes every channel.
// The returned tensor data is drawn from mempool; callers may hand it back
// with Release once inference is done.
func (n *Normalizer) Normalize(img image.Image) (onnx.Tensor, ScalingContext, error) {
	canvas, sc, err := n.Letterbox(img)
	if err != nil {
		return onnx.Tensor{}, ScalingContext{}, err
	}

	th, tw := n.cfg.TargetHeight, n.cfg.TargetWidth
	plane := th * tw
	data := mempool.GetFloat32(3 * plane)
	src := [3]int{0, 1, 2}
	if n.cfg.ChannelOrder == BGR {
		src = [3]int{2, 1, 0}
	}
	for y := range th {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+tw*4]
		for x := range tw {
			px := row[x*4 : x*4+4]
			for c := range 3 {
				data[c*plane+y*tw+x] = (float32(px[src[c]]) - n.cfg.Mean[c]) / n.cfg.Std[c]
			}
		}
	}

	tensor, err := onnx.NewImageTensor(data, 3, th, tw)
	if err != nil {
		mempool.PutFloat32(data)
		return onnx.Tensor{}, ScalingContext{}, &ImageError{Operation: "normalize", Err: err}
	}
	return tensor, sc, nil
}

// Letterbox performs the resize and pad steps without standardization.
func (n *Normalizer) Letterbox(img image.Image) (*image.NRGBA, ScalingContext, error) {
	if img == nil {
		return nil, ScalingContext{}, &ImageError{Operation: "letterbox", Err: ErrInvalidImageDimensions}
	}
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	if h <= 0 || w <= 0 {
		return nil, ScalingContext{}, &ImageError{
			Operation: "letterbox",
			Err:       fmt.Errorf("%w: %dx%d", ErrInvalidImageDimensions, w, h),
		}
	}

	th, tw := n.cfg.TargetHeight, n.cfg.TargetWidth
	scale := math.Min(float64(th)/float64(h), float64(tw)/float64(w))
	nh, nw := n.resizedDim(float64(h)*scale), n.resizedDim(float64(w)*scale)
	if nh <= 0 || nw <= 0 {
		return nil, ScalingContext{}, &ImageError{
			Operation: "letterbox",
			Err:       fmt.Errorf("%w: %dx%d resizes to %dx%d", ErrInvalidImageDimensions, w, h, nw, nh),
		}
	}
	nh, nw = min(nh, th), min(nw, tw)

	var top, left int
	if n.cfg.Anchor == AnchorCenter {
		top, left = (th-nh)/2, (tw-nw)/2
	}

	fill := color.NRGBA{R: n.cfg.PadValue, G: n.cfg.PadValue, B: n.cfg.PadValue, A: 255}
	canvas := imaging.New(tw, th, fill)
	resized := imaging.Resize(img, nw, nh, imaging.Linear)
	canvas = imaging.Paste(canvas, resized, image.Pt(left, top))

	return canvas, ScalingContext{
		Scale:      scale,
		PadTop:     top,
		PadLeft:    left,
		OrigHeight: h,
		OrigWidth:  w,
	}, nil
}

func (n *Normalizer) resizedDim(v float64) int {
	if n.cfg.Round {
		return int(math.Round(v))
	}
	return int(v)
}

// Release returns tensor storage obtained from Normalize to the pool.
func Release(t onnx.Tensor) {
	mempool.PutFloat32(t.Data)
}
