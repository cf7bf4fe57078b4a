package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/labels"
)

// Document reads the identity fields of an ID card photograph. Each role is
// filled from its most confident detection; the card counts as read when at
// least one field produced text.
func (c *Context) Document(ctx context.Context, img image.Image) (*Result, error) {
	d := c.doc
	if d == nil {
		return nil, fmt.Errorf("%w: document deployment disabled", ErrNotConfigured)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	res := newResult(KindDocument)

	frame, err := prepareFrame(img)
	if err != nil {
		return nil, &StageError{Stage: StateRawFrame, Err: err}
	}

	t0 := time.Now()
	dets, err := detect(frame, d.norm, d.model, d.cfg.Filter, d.labels)
	res.Timings.Fields = time.Since(t0)
	if errors.Is(err, ErrDetector) {
		slog.Warn("Document detector failed", "error", err)
		return c.done(res, start, OutcomeDetectorError, false, err.Error()), nil
	}
	if err != nil {
		return nil, &StageError{Stage: StateRawFrame, Err: err}
	}

	best := make(map[labels.Role]detector.MappedDetection)
	for _, det := range dets {
		role, ok := d.cfg.Roles.RoleOf(det.ClassName)
		if !ok {
			continue
		}
		if cur, seen := best[role]; !seen || det.Confidence() > cur.Confidence() {
			best[role] = det
		}
	}
	if len(best) == 0 {
		res.enter(StateNoFields)
		return c.done(res, start, OutcomeNoFields, false, MsgNoDocFields), nil
	}
	res.enter(StateFieldsDetected)
	slog.Debug("Document fields detected", "count", len(dets), "roles", len(best))

	t1 := time.Now()
	res.Fields = make(map[string]FieldResult, len(best))
	var sum float64
	var filled int
	for _, role := range labels.KnownRoles {
		det, ok := best[role]
		if !ok {
			continue
		}
		spec := d.cfg.Fields[role]
		text, conf, err := c.readField(ctx, frame, det.Box, spec)
		if err != nil {
			slog.Warn("Skipping field", "role", role, "box", det.Box.Ints(), "error", err)
			ocrFailures.WithLabelValues(string(KindDocument), "engine").Inc()
			continue
		}
		res.Fields[string(role)] = FieldResult{Class: det.ClassName, Text: text, Confidence: conf, Box: det.Box}
		if text != "" {
			sum += conf
			filled++
		} else {
			ocrFailures.WithLabelValues(string(KindDocument), "empty").Inc()
		}
	}
	res.Timings.OCR = time.Since(t1)
	res.enter(StateRecognized)

	if filled == 0 {
		return c.done(res, start, OutcomeNoText, false, MsgNoDocText), nil
	}
	res.Confidence = sum / float64(filled)
	res.Text = res.Fields[string(labels.RoleIDNumber)].Text
	res.enter(StateAssembled)
	return c.done(res, start, OutcomeSuccess, true, ""), nil
}
