package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/platex/internal/assembler"
	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/letterbox"
	"github.com/disintegration/imaging"
)

// Result messages shared with API clients.
const (
	MsgNoRegion     = "No plate detected with sufficient confidence in Stage 1."
	MsgNoFields     = "No characters detected in Stage 2"
	MsgNoDocFields  = "No relevant fields detected in the image."
	MsgNoDocText    = "No information could be extracted, or all fields were empty after OCR."
	MsgDecodeFailed = "Failed to decode image bytes."
	MsgCropTooSmall = "Plate region too small to read in Stage 2."
)

// detect letterboxes img, runs model and maps the filtered detections back
// into img's space. Model failures wrap ErrDetector.
func detect(img image.Image, norm *letterbox.Normalizer, model detector.Model,
	f detector.Filter, lm labels.ClassLabelMap,
) ([]detector.MappedDetection, error) {
	t, sc, err := norm.Normalize(img)
	if err != nil {
		return nil, err
	}
	raws, err := model.Detect(t)
	letterbox.Release(t)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetector, err)
	}
	m, err := letterbox.NewMapper(sc)
	if err != nil {
		return nil, err
	}
	return f.Apply(raws, m, lm), nil
}

// Plate reads a registration plate from a frame: localize, crop, deskew,
// detect characters inside the crop, read the number fields and assemble
// them through the layout registry.
func (c *Context) Plate(ctx context.Context, img image.Image) (*Result, error) {
	p := c.plate
	if p == nil {
		return nil, fmt.Errorf("%w: plate deployment disabled", ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := newResult(KindPlate)

	frame, err := prepareFrame(img)
	if err != nil {
		return nil, &StageError{Stage: StateRawFrame, Err: err}
	}

	t0 := time.Now()
	regions, err := detect(frame, p.localizerNorm, p.localizer, p.cfg.LocalizerFilter, p.localizerLabels)
	res.Timings.Localize = time.Since(t0)
	if errors.Is(err, ErrDetector) {
		slog.Warn("Plate localizer failed", "error", err)
		return c.done(res, start, OutcomeDetectorError, false, "Stage 1 "+err.Error()), nil
	}
	if err != nil {
		return nil, &StageError{Stage: StateRawFrame, Err: err}
	}
	if len(regions) == 0 {
		slog.Info("No plate region", "threshold", p.cfg.LocalizerFilter.Threshold)
		res.enter(StateNoRegion)
		return c.done(res, start, OutcomeNoRegion, false, MsgNoRegion), nil
	}
	region := regions[0]
	stageConf := region.Confidence()
	res.Region = &region.Box
	res.enter(StateLocalized)
	slog.Debug("Stage 1 complete", "box", region.Box.Ints(), "confidence", stageConf)

	t1 := time.Now()
	crop := imaging.Crop(frame, region.Box.ToRect(frame.Bounds()))
	corrected := p.corrector.Correct(crop)
	res.SkewAngle, res.Deskewed = corrected.Angle, corrected.Applied
	res.Timings.Deskew = time.Since(t1)

	t2 := time.Now()
	fields, err := detect(corrected.Image, p.fieldNorm, p.fields, p.cfg.FieldFilter, p.fieldLabels)
	res.Timings.Fields = time.Since(t2)
	if err != nil {
		res.Confidence = stageConf
		if errors.Is(err, ErrDetector) {
			slog.Warn("Plate field detector failed", "error", err)
			return c.done(res, start, OutcomeDetectorError, false, "Stage 2 "+err.Error()), nil
		}
		slog.Info("Plate crop not normalizable", "box", region.Box.Ints(), "error", err)
		res.enter(StateNoFields)
		return c.done(res, start, OutcomeNoFields, false, MsgCropTooSmall), nil
	}
	res.enter(StateCropNormalized)
	if len(fields) == 0 {
		res.Confidence = stageConf
		res.enter(StateNoFields)
		return c.done(res, start, OutcomeNoFields, false, MsgNoFields), nil
	}
	res.enter(StateFieldsDetected)
	slog.Debug("Stage 2 complete", "fields", len(fields))

	t3 := time.Now()
	for i := range fields {
		if !p.ocrClasses[fields[i].ClassName] {
			continue
		}
		text, conf := c.readPlateText(ctx, corrected.Image, fields[i].Box, p.cfg.OCR)
		fields[i].Text, fields[i].TextConfidence, fields[i].HasText = text, conf, true
	}
	res.Timings.OCR = time.Since(t3)
	res.enter(StateRecognized)

	asm := p.assembler.Assemble(stageConf, fields)
	res.enter(StateAssembled)
	res.Text = asm.Text
	res.Confidence = asm.Confidence
	res.Pattern = asm.Pattern
	res.RawSequence = asm.RawSequence
	res.Segments = make([]FieldResult, len(asm.Fields))
	for i, f := range asm.Fields {
		res.Segments[i] = FieldResult{Class: f.ClassName, Text: f.Text, Confidence: f.Confidence(), Box: f.Box}
	}
	slog.Debug("Assembled plate", "sequence", asm.RawSequence, "text", asm.Text, "outcome", asm.Outcome)

	switch asm.Outcome {
	case assembler.OutcomeMatched:
		if asm.Success {
			return c.done(res, start, OutcomeSuccess, true, ""), nil
		}
		return c.done(res, start, OutcomeAssemblyIncomplete, false, asm.Reason), nil
	case assembler.OutcomeIncomplete:
		return c.done(res, start, OutcomeAssemblyIncomplete, asm.Success, asm.Reason), nil
	default:
		return c.done(res, start, OutcomePatternUnrecognized, false, asm.Reason), nil
	}
}

func (c *Context) done(res *Result, start time.Time, o Outcome, success bool, reason string) *Result {
	res.finish(o, success, reason)
	res.Timings.Total = time.Since(start)
	observe(res)
	return res
}

// Run dispatches img to the deployment named by kind.
func (c *Context) Run(ctx context.Context, kind Kind, img image.Image) (*Result, error) {
	switch kind {
	case KindPlate:
		return c.Plate(ctx, img)
	case KindDocument:
		return c.Document(ctx, img)
	default:
		return nil, fmt.Errorf("unknown pipeline kind %q", kind)
	}
}

// RunBytes decodes data and runs the deployment named by kind.
func (c *Context) RunBytes(ctx context.Context, kind Kind, data []byte) (*Result, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, &StageError{Stage: StateRawFrame, Err: err}
	}
	return c.Run(ctx, kind, img)
}
