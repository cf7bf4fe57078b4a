// Package detector turns raw detector outputs into labelled, reference-space
// detections.
package detector

import (
	"fmt"

	"github.com/MeKo-Tech/platex/internal/geometry"
)

// RawDetection is one detector output in model space.
type RawDetection struct {
	Box        geometry.Box
	Confidence float64
	ClassID    int
}

// MappedDetection is a detection in the reference frame it was detected in,
// optionally carrying recognized text.
type MappedDetection struct {
	Raw       RawDetection
	Box       geometry.Box
	ClassName string

	Text           string
	TextConfidence float64
	HasText        bool
}

// Confidence is the detector score.
func (d MappedDetection) Confidence() float64 { return d.Raw.Confidence }

func (d MappedDetection) String() string {
	b := d.Box.Ints()
	return fmt.Sprintf("%s@[%d %d %d %d]:%.2f", d.ClassName, b[0], b[1], b[2], b[3], d.Raw.Confidence)
}

// IoU is the intersection-over-union of two boxes.
func IoU(a, b geometry.Box) float64 {
	ix := min(a.MaxX, b.MaxX) - max(a.MinX, b.MinX)
	iy := min(a.MaxY, b.MaxY) - max(a.MinY, b.MinY)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Width()*a.Height() + b.Width()*b.Height() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}
