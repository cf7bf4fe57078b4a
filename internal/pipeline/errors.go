package pipeline

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/platex/internal/letterbox"
)

// Error taxonomy. Only ErrInvalidImageDimensions (for the input frame) and
// ErrImageDecode are returned as Go errors from an invocation; the rest
// classify a Result and are exposed through Result.Err.
var (
	ErrInvalidImageDimensions = letterbox.ErrInvalidImageDimensions
	ErrImageDecode            = errors.New("failed to decode image bytes")
	ErrNoRegion               = errors.New("no region detected")
	ErrNoFields               = errors.New("no fields detected")
	ErrDetector               = errors.New("detector failed")
	ErrOCRCrop                = errors.New("ocr crop is empty")
	ErrOCREngine              = errors.New("ocr engine failed")
	ErrPatternUnrecognized    = errors.New("pattern unrecognized")
	ErrAssemblyIncomplete     = errors.New("assembly incomplete")
	ErrNotConfigured          = errors.New("pipeline not configured")
)

// StageError records the state a failing invocation had reached.
type StageError struct {
	Stage State
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
