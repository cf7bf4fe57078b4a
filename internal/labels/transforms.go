package labels

import (
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Preprocess holds the input size and channel statistics a model was trained with.
type Preprocess struct {
	Height int
	Width  int
	Mean   [3]float32
	Std    [3]float32
}

// DefaultPreprocess is used when the transforms file omits a step.
func DefaultPreprocess() Preprocess {
	return Preprocess{Height: 640, Width: 640, Std: [3]float32{1, 1, 1}}
}

type transformStep struct {
	RescaleWithPadding *struct {
		Height int `yaml:"height"`
		Width  int `yaml:"width"`
	} `yaml:"RescaleWithPadding"`
	NormalizeMeanStd *struct {
		Mean []float32 `yaml:"mean"`
		Std  []float32 `yaml:"std"`
	} `yaml:"NormalizeMeanStd"`
}

type transformsFile struct {
	Valid []transformStep `yaml:"valid"`
	Train []transformStep `yaml:"train"`
}

// LoadPreprocess reads a transforms.yaml file. The "valid" pipeline is
// preferred over "train"; missing steps fall back to DefaultPreprocess.
func LoadPreprocess(path string) (Preprocess, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from configuration
	if err != nil {
		return DefaultPreprocess(), fmt.Errorf("failed to read transforms: %w", err)
	}
	return ParsePreprocess(data)
}

// ParsePreprocess parses the contents of a transforms.yaml file.
func ParsePreprocess(data []byte) (Preprocess, error) {
	var f transformsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return DefaultPreprocess(), fmt.Errorf("failed to parse transforms: %w", err)
	}
	steps := f.Valid
	if len(steps) == 0 {
		steps = f.Train
	}
	if len(steps) == 0 {
		slog.Warn("No 'valid' or 'train' transform list found")
	}

	p := DefaultPreprocess()
	var sized, normalized bool
	for _, s := range steps {
		if !sized && s.RescaleWithPadding != nil {
			p.Height, p.Width = s.RescaleWithPadding.Height, s.RescaleWithPadding.Width
			sized = true
		}
		if !normalized && s.NormalizeMeanStd != nil {
			m, sd := s.NormalizeMeanStd.Mean, s.NormalizeMeanStd.Std
			if len(m) != 3 || len(sd) != 3 {
				return DefaultPreprocess(), fmt.Errorf("NormalizeMeanStd needs 3 values, got mean=%d std=%d", len(m), len(sd))
			}
			copy(p.Mean[:], m)
			copy(p.Std[:], sd)
			normalized = true
		}
	}
	if !sized {
		slog.Warn("RescaleWithPadding not found in transforms, using default", "height", p.Height, "width", p.Width)
	}
	if !normalized {
		slog.Warn("NormalizeMeanStd not found in transforms, using mean=0 std=1")
	}
	if p.Height <= 0 || p.Width <= 0 {
		return DefaultPreprocess(), fmt.Errorf("invalid target size %dx%d", p.Width, p.Height)
	}
	return p, nil
}
