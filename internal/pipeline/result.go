package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MeKo-Tech/platex/internal/geometry"
)

// State is a step of the extraction state machine.
type State string

const (
	StateRawFrame       State = "RAW_FRAME"
	StateLocalized      State = "LOCALIZED"
	StateNoRegion       State = "NO_REGION"
	StateCropNormalized State = "CROP_NORMALIZED"
	StateFieldsDetected State = "FIELDS_DETECTED"
	StateNoFields       State = "NO_FIELDS"
	StateRecognized     State = "RECOGNIZED"
	StateAssembled      State = "ASSEMBLED"
	StateSuccess        State = "SUCCESS"
	StatePartial        State = "PARTIAL"
	StateFailure        State = "FAILURE"
)

// Terminal reports whether s ends an invocation.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StatePartial || s == StateFailure
}

// Outcome classifies how an invocation ended.
type Outcome string

const (
	OutcomeSuccess             Outcome = "success"
	OutcomeNoRegion            Outcome = "no_region"
	OutcomeNoFields            Outcome = "no_fields"
	OutcomePatternUnrecognized Outcome = "pattern_unrecognized"
	OutcomeAssemblyIncomplete  Outcome = "assembly_incomplete"
	// OutcomeNoText is a document whose fields were found but read empty.
	OutcomeNoText Outcome = "no_text"
	// OutcomeDetectorError is a detector collaborator failing at run time.
	OutcomeDetectorError Outcome = "detector_error"
)

// Kind names a deployment.
type Kind string

const (
	KindPlate    Kind = "plate"
	KindDocument Kind = "document"
)

// ParseKind parses a deployment name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindPlate, KindDocument:
		return k, nil
	default:
		return "", fmt.Errorf("unknown kind %q", s)
	}
}

// FieldResult is the recognized value of one field.
type FieldResult struct {
	Class      string       `json:"class"`
	Text       string       `json:"text"`
	Confidence float64      `json:"confidence"`
	Box        geometry.Box `json:"box"`
}

// Timings holds per-stage durations.
type Timings struct {
	Localize time.Duration `json:"localize_ns"`
	Deskew   time.Duration `json:"deskew_ns"`
	Fields   time.Duration `json:"fields_ns"`
	OCR      time.Duration `json:"ocr_ns"`
	Total    time.Duration `json:"total_ns"`
}

// Result is the outcome of one extraction. Failures the pipeline can
// explain are reported here with Success=false rather than as errors.
type Result struct {
	Kind        Kind                   `json:"kind"`
	Text        string                 `json:"text"`
	Confidence  float64                `json:"confidence"`
	Success     bool                   `json:"success"`
	Outcome     Outcome                `json:"outcome"`
	ErrorReason string                 `json:"error_reason,omitempty"`
	Pattern     string                 `json:"pattern,omitempty"`
	RawSequence []string               `json:"raw_sequence,omitempty"`
	Fields      map[string]FieldResult `json:"fields,omitempty"`
	Segments    []FieldResult          `json:"segments,omitempty"`
	Region      *geometry.Box          `json:"region,omitempty"`
	SkewAngle   float64                `json:"skew_angle,omitempty"`
	Deskewed    bool                   `json:"deskewed,omitempty"`
	Stage       State                  `json:"stage"`
	Trace       []State                `json:"trace"`
	Timings     Timings                `json:"timings"`
}

func newResult(kind Kind) *Result {
	return &Result{Kind: kind, Stage: StateRawFrame, Trace: []State{StateRawFrame}}
}

func (r *Result) enter(s State) {
	r.Stage = s
	r.Trace = append(r.Trace, s)
}

// finish moves r into the terminal state matching its outcome.
func (r *Result) finish(o Outcome, success bool, reason string) *Result {
	r.Outcome = o
	r.Success = success
	r.ErrorReason = reason
	switch {
	case o == OutcomeSuccess:
		r.enter(StateSuccess)
	case o == OutcomeAssemblyIncomplete:
		r.enter(StatePartial)
	default:
		r.enter(StateFailure)
	}
	return r
}

// Err returns the taxonomy error behind a non-successful outcome, or nil.
func (r *Result) Err() error {
	switch r.Outcome {
	case OutcomeNoRegion:
		return ErrNoRegion
	case OutcomeNoFields, OutcomeNoText:
		return ErrNoFields
	case OutcomePatternUnrecognized:
		return ErrPatternUnrecognized
	case OutcomeAssemblyIncomplete:
		return ErrAssemblyIncomplete
	case OutcomeDetectorError:
		return ErrDetector
	default:
		return nil
	}
}

// ToJSON serializes a result to indented JSON.
func ToJSON(res *Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	b, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ToJSONs serializes several results to indented JSON.
func ToJSONs(results []*Result) (string, error) {
	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}
