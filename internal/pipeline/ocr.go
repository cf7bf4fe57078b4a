package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"

	"github.com/MeKo-Tech/platex/internal/assembler"
	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/disintegration/imaging"
)

// cropField cuts box, grown by margin and clamped to img, out of img.
func cropField(img image.Image, box geometry.Box, margin int) (*image.NRGBA, error) {
	b := img.Bounds()
	r := box.Expand(float64(margin)).Clamp(float64(b.Dx()), float64(b.Dy())).ToRect(b)
	if r.Empty() {
		return nil, fmt.Errorf("%w: box %v", ErrOCRCrop, box.Ints())
	}
	return imaging.Crop(img, r), nil
}

// readField crops box out of img and recognizes it. Engine errors and panics
// are reported as ErrOCREngine.
func (c *Context) readField(ctx context.Context, img image.Image, box geometry.Box, spec FieldSpec) (text string, conf float64, err error) {
	patch, err := cropField(img, box, spec.Margin)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			text, conf = "", 0
			err = fmt.Errorf("%w: panic: %v", ErrOCREngine, r)
		}
	}()
	tokens, err := c.ocr.Read(ctx, patch, recognizer.Options{AllowList: spec.AllowList})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", ErrOCREngine, err)
	}
	text, conf = recognizer.Aggregate(tokens, spec.Mode)
	return text, conf, nil
}

// readPlateText turns a field read into plate slot text, substituting the
// failure sentinels.
func (c *Context) readPlateText(ctx context.Context, img image.Image, box geometry.Box, spec FieldSpec) (string, float64) {
	text, conf, err := c.readField(ctx, img, box, spec)
	switch {
	case errors.Is(err, ErrOCRCrop):
		slog.Warn("OCR crop failed", "box", box.Ints())
		ocrFailures.WithLabelValues(string(KindPlate), "crop").Inc()
		return assembler.SentinelCropFail, 0
	case err != nil:
		slog.Error("OCR failed", "box", box.Ints(), "error", err)
		ocrFailures.WithLabelValues(string(KindPlate), "engine").Inc()
		return assembler.SentinelOCRError, 0
	case text == "":
		ocrFailures.WithLabelValues(string(KindPlate), "empty").Inc()
		return assembler.SentinelNoDigits, 0
	}
	return text, conf
}
