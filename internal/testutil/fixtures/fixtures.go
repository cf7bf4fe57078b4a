// Package fixtures builds pipeline contexts over scripted detectors and OCR
// for tests of the outer surfaces.
package fixtures

import (
	"context"
	"image"
	"testing"

	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/letterbox"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/stretchr/testify/require"
)

// Class ids of the scripted field and document detectors.
const (
	ClassNum = 0
	ClassTun = 1

	ClassID       = 0
	ClassName     = 1
	ClassLastName = 2
)

var (
	LocalizerLabels = labels.NewClassLabelMap(map[int]string{0: "plate"})
	FieldLabels     = labels.NewClassLabelMap(map[int]string{ClassNum: "num", ClassTun: "tun", 2: "slash"})
	DocumentLabels  = labels.NewClassLabelMap(map[int]string{ClassID: "id", ClassName: "name", ClassLastName: "lastname", 3: "photo"})
)

// PlateScene is a 1920x1080 frame with one plate reading "<num> TN"
// left to right, which renders as "RS <num>".
func PlateScene() testutil.Scene {
	return testutil.Scene{
		Width: 1920, Height: 1080,
		Regions: []testutil.SceneBox{{Box: geometry.NewBox(100, 200, 500, 260), Confidence: 0.81}},
		Fields: []testutil.SceneBox{
			{ClassID: ClassTun, Box: geometry.NewBox(65, 5, 90, 55), Confidence: 0.90},
			{ClassID: ClassNum, Box: geometry.NewBox(10, 5, 60, 55), Confidence: 0.90},
		},
	}
}

// DocumentScene is a 1280x800 identity card with all three fields.
func DocumentScene() testutil.Scene {
	return testutil.Scene{
		Width: 1280, Height: 800,
		Fields: []testutil.SceneBox{
			{ClassID: ClassID, Box: geometry.NewBox(100, 100, 410, 160), Confidence: 0.90},
			{ClassID: ClassName, Box: geometry.NewBox(100, 200, 300, 250), Confidence: 0.80},
			{ClassID: ClassLastName, Box: geometry.NewBox(320, 200, 500, 250), Confidence: 0.80},
		},
	}
}

// PlateConfig is the plate configuration the scenes are projected with.
func PlateConfig() pipeline.PlateConfig {
	cfg := pipeline.DefaultPlateConfig()
	cfg.Fields = letterbox.PlateFieldConfig(120, 800, [3]float32{}, [3]float32{1, 1, 1})
	cfg.Deskew.Enabled = false
	return cfg
}

// ScriptedOCR answers digit-restricted reads with digits and free reads
// with words.
func ScriptedOCR(digits, words string, conf float64) recognizer.Engine {
	return recognizer.EngineFunc(func(_ context.Context, _ image.Image, opts recognizer.Options) ([]recognizer.Token, error) {
		text := words
		if opts.AllowList != "" {
			text = digits
		}
		if text == "" {
			return nil, nil
		}
		return []recognizer.Token{{Text: text, Confidence: conf}}, nil
	})
}

// Context builds a context with the plate deployment over plate and the
// document deployment over doc. A scene with no boxes leaves its deployment
// disabled.
func Context(t *testing.T, plate, doc testutil.Scene, ocr recognizer.Engine) *pipeline.Context {
	t.Helper()
	b := pipeline.NewBuilder().WithOCR(ocr)
	if len(plate.Regions) > 0 {
		cfg := PlateConfig()
		b.WithPlateConfig(cfg).
			WithPlateModels(plate.Localizer(t, cfg.Localizer), LocalizerLabels, plate.FieldModel(t, cfg.Fields), FieldLabels)
	}
	if len(doc.Fields) > 0 {
		cfg := pipeline.DefaultDocumentConfig()
		b.WithDocumentModel(doc.DocumentModel(t, cfg.Detector), DocumentLabels)
	}
	pc, err := b.Build()
	require.NoError(t, err)
	return pc
}
