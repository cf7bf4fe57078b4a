// Package assembler orders recognized fields left to right and renders them
// through the first matching layout pattern.
package assembler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/MeKo-Tech/platex/internal/detector"
)

// Sentinels mark slots whose text could not be produced. They are bracketed
// so that no allow-listed recognition can collide with them.
const (
	SentinelCropFail = "[OCR_CROP_FAIL]"
	SentinelOCRError = "[OCR_ERROR]"
	SentinelNoDigits = "[NO_DIGITS]"

	notAvailable = "[N/A]"
	patternError = "Pattern Error"
)

var sentinels = []string{SentinelCropFail, SentinelOCRError, SentinelNoDigits}

// IsSentinel reports whether s is one of the failure sentinels.
func IsSentinel(s string) bool {
	for _, v := range sentinels {
		if s == v {
			return true
		}
	}
	return false
}

// validText reports whether slot text is usable.
func validText(s string) bool {
	return s != "" && !IsSentinel(s)
}

// Outcome classifies an assembly.
type Outcome string

const (
	OutcomeMatched             Outcome = "matched"
	OutcomeIncomplete          Outcome = "assembly_incomplete"
	OutcomePatternUnrecognized Outcome = "pattern_unrecognized"
)

// Assembly is the result of assembling one set of field detections.
type Assembly struct {
	Text        string
	Confidence  float64
	Success     bool
	Outcome     Outcome
	Pattern     string
	Reason      string
	RawSequence []string
	Fields      []detector.MappedDetection
}

// Assembler matches sorted field sequences against a registry.
type Assembler struct {
	registry *Registry
	// incompleteIsSuccess reports incomplete reads as successful.
	incompleteIsSuccess bool
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithIncompleteAsSuccess marks incomplete assemblies as successful.
func WithIncompleteAsSuccess(v bool) Option {
	return func(a *Assembler) { a.incompleteIsSuccess = v }
}

// New returns an Assembler over registry.
func New(registry *Registry, opts ...Option) *Assembler {
	a := &Assembler{registry: registry}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Registry returns the pattern registry.
func (a *Assembler) Registry() *Registry { return a.registry }

// Assemble sorts dets by x_min (stable), matches their class sequence and
// renders the text. stageConf is the confidence of the enclosing region.
// It never panics on empty input.
func (a *Assembler) Assemble(stageConf float64, dets []detector.MappedDetection) Assembly {
	sorted := make([]detector.MappedDetection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Box.MinX < sorted[j].Box.MinX })

	seq := make([]string, len(sorted))
	for i, d := range sorted {
		seq[i] = d.ClassName
	}

	res := Assembly{
		Confidence:  Confidence(stageConf, sorted),
		RawSequence: seq,
		Fields:      sorted,
	}

	pattern, ok := a.registry.Lookup(seq)
	if !ok {
		res.Text = patternError
		res.Outcome = OutcomePatternUnrecognized
		res.Reason = fmt.Sprintf("Unrecognized plate pattern: [%s]", strings.Join(seq, " "))
		return res
	}
	res.Pattern = pattern.Name

	var failed []string
	for _, slot := range pattern.Slots() {
		if !validText(sorted[slot].Text) {
			failed = append(failed, pattern.SlotNames[slot])
		}
	}

	if len(failed) == 0 {
		res.Text = render(pattern.Template, func(i int) string { return sorted[i].Text })
		res.Outcome = OutcomeMatched
		res.Success = res.Text != ""
		if !res.Success {
			res.Reason = "Failed to assemble plate string"
		}
		return res
	}

	res.Outcome = OutcomeIncomplete
	res.Success = a.incompleteIsSuccess
	tpl := pattern.FailureTemplate
	if tpl == "" {
		tpl = pattern.Template
	}
	res.Text = render(tpl, func(i int) string {
		if sorted[i].Text == "" {
			return notAvailable
		}
		return sorted[i].Text
	})
	res.Reason = pattern.FailureReason
	if res.Reason == "" {
		res.Reason = "OCR failed on " + strings.Join(failed, ", ")
	}
	return res
}

// Confidence averages the region confidence with the mean field confidence.
func Confidence(stageConf float64, dets []detector.MappedDetection) float64 {
	if len(dets) == 0 {
		return stageConf / 2
	}
	var sum float64
	for _, d := range dets {
		sum += d.Confidence()
	}
	return (stageConf + sum/float64(len(dets))) / 2
}
