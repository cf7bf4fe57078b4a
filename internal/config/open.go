package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/MeKo-Tech/platex/internal/assembler"
	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/models"
	"github.com/MeKo-Tech/platex/internal/onnx"
	"github.com/MeKo-Tech/platex/internal/pipeline"
	"github.com/MeKo-Tech/platex/internal/recognizer"
)

type closableModel interface {
	detector.Model
	io.Closer
}

// Constructors are variables so tests can run Open without ONNX Runtime.
var (
	openDetector = func(cfg detector.Config) (closableModel, error) {
		return detector.NewONNXModel(cfg)
	}
	openCTC = func(cfg recognizer.Config) (recognizer.Engine, error) {
		return recognizer.NewCTCEngine(cfg)
	}
)

// Open loads every model the configuration enables and returns a ready
// Context. Parts opened before a failure are closed again.
func (c *Config) Open() (*pipeline.Context, error) {
	gpu, err := c.ToGPUConfig()
	if err != nil {
		return nil, fmt.Errorf("invalid GPU config: %w", err)
	}

	var opened []io.Closer
	fail := func(err error) (*pipeline.Context, error) {
		for i := len(opened) - 1; i >= 0; i-- {
			_ = opened[i].Close()
		}
		return nil, err
	}
	own := func(v interface{}) {
		if cl, ok := v.(io.Closer); ok {
			opened = append(opened, cl)
		}
	}

	b := pipeline.NewBuilder().WithInfo("models_dir", models.GetModelsDir(c.ModelsDir))

	engine, err := c.openEngine(gpu)
	if err != nil {
		return fail(err)
	}
	own(engine)
	b.WithOCR(engine).WithInfo("ocr_engine", c.OCR.Engine)

	if c.Plate.Enabled {
		paths := models.GetPlatePaths(c.ModelsDir)
		localizerPath := orDefault(c.Plate.Localizer.ModelPath, paths.Localizer)
		fieldsPath := orDefault(c.Plate.Fields.ModelPath, paths.Fields)

		localizer, err := openDetector(detector.Config{ModelPath: localizerPath, NumThreads: c.Plate.Localizer.NumThreads, GPU: gpu})
		if err != nil {
			return fail(fmt.Errorf("failed to open plate localizer: %w", err))
		}
		own(localizer)
		fields, err := openDetector(detector.Config{ModelPath: fieldsPath, NumThreads: c.Plate.Fields.NumThreads, GPU: gpu})
		if err != nil {
			return fail(fmt.Errorf("failed to open plate field detector: %w", err))
		}
		own(fields)

		transformsPath := orDefault(c.Plate.TransformsPath, paths.FieldTransforms)
		pre, err := labels.LoadPreprocess(transformsPath)
		if err != nil {
			slog.Warn("Field transforms unavailable, using defaults", "path", transformsPath, "error", err)
		}
		registry, err := c.loadRegistry(paths.Layouts)
		if err != nil {
			return fail(err)
		}

		b.WithPlateModels(
			localizer, labels.LoadClassLabelMapOrEmpty(orDefault(c.Plate.Localizer.LabelsPath, paths.LocalizerLabels)),
			fields, labels.LoadClassLabelMapOrEmpty(orDefault(c.Plate.Fields.LabelsPath, paths.FieldLabels)),
		).
			WithPlateConfig(c.ToPlateConfig(pre)).
			WithRegistry(registry).
			WithInfo("plate_localizer", localizerPath).
			WithInfo("plate_fields", fieldsPath)
	}

	if c.Document.Enabled {
		paths := models.GetDocumentPaths(c.ModelsDir)
		docCfg, err := c.ToDocumentConfig()
		if err != nil {
			return fail(fmt.Errorf("invalid document config: %w", err))
		}
		modelPath := orDefault(c.Document.Detector.ModelPath, paths.Detector)
		model, err := openDetector(detector.Config{ModelPath: modelPath, NumThreads: c.Document.Detector.NumThreads, GPU: gpu})
		if err != nil {
			return fail(fmt.Errorf("failed to open document detector: %w", err))
		}
		own(model)
		b.WithDocumentModel(model, labels.LoadClassLabelMapOrEmpty(orDefault(c.Document.Detector.LabelsPath, paths.Labels))).
			WithDocumentConfig(docCfg).
			WithInfo("document_detector", modelPath)
	}

	for _, cl := range opened {
		b.WithCloser(cl)
	}
	pc, err := b.Build()
	if err != nil {
		return fail(err)
	}
	return pc, nil
}

func (c *Config) openEngine(gpu onnx.GPUConfig) (recognizer.Engine, error) {
	switch c.OCR.Engine {
	case EngineRemote:
		e, err := recognizer.NewRemoteEngine(c.ToRemoteConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create remote OCR engine: %w", err)
		}
		return e, nil
	case EngineONNX, "":
		e, err := openCTC(c.ToRecognizerConfig(gpu))
		if err != nil {
			return nil, fmt.Errorf("failed to open OCR engine: %w", err)
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown OCR engine %q", c.OCR.Engine)
	}
}

// loadRegistry loads the configured layouts file. Without one, a layouts
// file next to the models replaces the built-in layouts when present.
func (c *Config) loadRegistry(modelsLayouts string) (*assembler.Registry, error) {
	if c.Plate.LayoutsPath != "" {
		r, err := assembler.LoadRegistry(c.Plate.LayoutsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load plate layouts: %w", err)
		}
		return r, nil
	}
	if _, err := os.Stat(modelsLayouts); err != nil {
		return assembler.DefaultPlateRegistry(), nil
	}
	r, err := assembler.LoadRegistry(modelsLayouts)
	if err != nil {
		return nil, fmt.Errorf("failed to load plate layouts: %w", err)
	}
	return r, nil
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
