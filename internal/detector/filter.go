package detector

import (
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/letterbox"
)

// Policy selects which passing detections a Filter keeps.
type Policy string

const (
	// PolicyBestSingle keeps the single highest-confidence detection; the
	// first one seen wins ties.
	PolicyBestSingle Policy = "best_single"
	// PolicyRetainAllValid keeps every detection whose class is allow-listed.
	PolicyRetainAllValid Policy = "retain_all_valid"
)

// Filter thresholds, labels and maps raw detections of one stage.
type Filter struct {
	Threshold float64
	// Inclusive compares with >= instead of >.
	Inclusive bool
	Policy    Policy
	// AllowList restricts PolicyRetainAllValid to these class names. Empty
	// allows every class.
	AllowList []string
	// NMSThreshold suppresses same-class overlaps above this IoU. Zero disables it.
	NMSThreshold float64
}

// Validate checks the filter parameters.
func (f Filter) Validate() error {
	if f.Threshold < 0 || f.Threshold > 1 {
		return fmt.Errorf("invalid threshold: %.2f (must be between 0.0 and 1.0)", f.Threshold)
	}
	if f.NMSThreshold < 0 || f.NMSThreshold > 1 {
		return fmt.Errorf("invalid nms threshold: %.2f (must be between 0.0 and 1.0)", f.NMSThreshold)
	}
	switch f.Policy {
	case PolicyBestSingle, PolicyRetainAllValid:
		return nil
	default:
		return fmt.Errorf("unknown filter policy %q", f.Policy)
	}
}

// Passes reports whether a confidence clears the threshold.
func (f Filter) Passes(conf float64) bool {
	if f.Inclusive {
		return conf >= f.Threshold
	}
	return conf > f.Threshold
}

func (f Filter) allowed(class string) bool {
	return len(f.AllowList) == 0 || slices.Contains(f.AllowList, class)
}

// Apply thresholds raws, resolves class names, maps boxes into the mapper's
// reference frame and applies the policy. Boxes with non-finite coordinates
// or that are degenerate after mapping are never returned.
func (f Filter) Apply(raws []RawDetection, m *letterbox.Mapper, lm labels.ClassLabelMap) []MappedDetection {
	var kept []MappedDetection
	for _, r := range raws {
		if !f.Passes(r.Confidence) {
			continue
		}
		name := lm.Name(r.ClassID)
		if f.Policy == PolicyRetainAllValid && !f.allowed(name) {
			continue
		}
		if !r.Box.Finite() {
			slog.Debug("Dropping non-finite detection", "class", name, "confidence", r.Confidence)
			continue
		}
		box := m.ToReferenceSpace(r.Box)
		if box.Degenerate() {
			slog.Debug("Dropping degenerate detection", "class", name, "box", box)
			continue
		}
		d := MappedDetection{Raw: r, Box: box, ClassName: name}

		if f.Policy == PolicyBestSingle {
			if len(kept) == 0 || r.Confidence > kept[0].Raw.Confidence {
				kept = []MappedDetection{d}
			}
			continue
		}
		kept = append(kept, d)
	}

	if f.NMSThreshold > 0 && len(kept) > 1 {
		kept = suppress(kept, f.NMSThreshold)
	}
	return kept
}

// suppress drops lower-confidence detections overlapping a kept detection of
// the same class. Input order is preserved for the survivors.
func suppress(dets []MappedDetection, iou float64) []MappedDetection {
	order := make([]int, len(dets))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return dets[order[a]].Raw.Confidence > dets[order[b]].Raw.Confidence
	})

	dropped := make([]bool, len(dets))
	for i, a := range order {
		if dropped[a] {
			continue
		}
		for _, b := range order[i+1:] {
			if !dropped[b] && dets[a].ClassName == dets[b].ClassName && IoU(dets[a].Box, dets[b].Box) > iou {
				dropped[b] = true
			}
		}
	}

	out := dets[:0:0]
	for i, d := range dets {
		if !dropped[i] {
			out = append(out, d)
		}
	}
	return out
}
