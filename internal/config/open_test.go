package config

import (
	"context"
	"errors"
	"image"
	"path/filepath"
	"testing"

	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/labels"
	"github.com/MeKo-Tech/platex/internal/recognizer"
	"github.com/MeKo-Tech/platex/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type closeLog struct{ closed []string }

type fakeModel struct {
	detector.StaticModel
	name string
	log  *closeLog
}

func (m fakeModel) Close() error {
	m.log.closed = append(m.log.closed, m.name)
	return nil
}

type fakeEngine struct {
	recognizer.Engine
	log *closeLog
}

func (e fakeEngine) Close() error {
	e.log.closed = append(e.log.closed, "ocr")
	return nil
}

// stubConstructors swaps the ONNX constructors for fakes serving models by path.
func stubConstructors(t *testing.T, log *closeLog, byPath map[string]detector.StaticModel, engine recognizer.Engine) {
	t.Helper()
	prevDet, prevCTC := openDetector, openCTC
	t.Cleanup(func() { openDetector, openCTC = prevDet, prevCTC })

	openDetector = func(cfg detector.Config) (closableModel, error) {
		m, ok := byPath[cfg.ModelPath]
		if !ok {
			return nil, errors.New("model file not found: " + cfg.ModelPath)
		}
		return fakeModel{StaticModel: m, name: filepath.Base(cfg.ModelPath), log: log}, nil
	}
	openCTC = func(recognizer.Config) (recognizer.Engine, error) {
		return fakeEngine{Engine: engine, log: log}, nil
	}
}

const testTransforms = `valid:
  - RescaleWithPadding: {height: 120, width: 800}
  - NormalizeMeanStd: {mean: [0, 0, 0], std: [1, 1, 1]}
`

func plateTestConfig(t *testing.T) (Config, testutil.Scene) {
	t.Helper()
	dir := t.TempDir()
	testutil.WriteFile(t, dir, "localizer_dm.json", []byte(`{"0": {"name": "plate"}}`))
	testutil.WriteFile(t, dir, "dm.json", []byte(`{"0": {"name": "num"}, "1": {"name": "tun"}}`))
	testutil.WriteFile(t, dir, "transforms.yaml", []byte(testTransforms))

	cfg := DefaultConfig()
	cfg.ModelsDir = dir
	cfg.Plate.Deskew.Enabled = false

	scene := testutil.Scene{
		Width: 1920, Height: 1080,
		Regions: []testutil.SceneBox{{Box: geometry.NewBox(100, 200, 500, 260), Confidence: 0.81}},
		Fields: []testutil.SceneBox{
			{ClassID: 1, Box: geometry.NewBox(65, 5, 90, 55), Confidence: 0.90},
			{ClassID: 0, Box: geometry.NewBox(10, 5, 60, 55), Confidence: 0.90},
		},
	}
	return cfg, scene
}

func TestOpen_Plate(t *testing.T) {
	cfg, scene := plateTestConfig(t)
	pc := cfg.ToPlateConfig(labels.Preprocess{Height: 120, Width: 800, Std: [3]float32{1, 1, 1}})

	log := &closeLog{}
	ocr := recognizer.EngineFunc(func(context.Context, image.Image, recognizer.Options) ([]recognizer.Token, error) {
		return []recognizer.Token{{Text: "1234", Confidence: 0.9}}, nil
	})
	stubConstructors(t, log, map[string]detector.StaticModel{
		filepath.Join(cfg.ModelsDir, "localizer.onnx"): scene.Localizer(t, pc.Localizer),
		filepath.Join(cfg.ModelsDir, "fields.onnx"):    scene.FieldModel(t, pc.Fields),
	}, ocr)

	px, err := cfg.Open()
	require.NoError(t, err)
	assert.True(t, px.HasPlate())
	assert.False(t, px.HasDocument())
	assert.Equal(t, EngineONNX, px.Info()["ocr_engine"])

	res, err := px.Plate(context.Background(), scene.Frame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "RS 1234", res.Text)

	require.NoError(t, px.Close())
	assert.Equal(t, []string{"fields.onnx", "localizer.onnx", "ocr"}, log.closed)
}

func TestOpen_LayoutsFile(t *testing.T) {
	cfg, scene := plateTestConfig(t)
	cfg.Plate.LayoutsPath = testutil.WriteFile(t, t.TempDir(), "layouts.yaml", []byte(`patterns:
  - name: tun-number
    sequence: [num, tun]
    template: "{0}/TN"
    failure_template: "TN: {0}"
    slots: {0: number}
`))
	pc := cfg.ToPlateConfig(labels.Preprocess{Height: 120, Width: 800, Std: [3]float32{1, 1, 1}})
	stubConstructors(t, &closeLog{}, map[string]detector.StaticModel{
		filepath.Join(cfg.ModelsDir, "localizer.onnx"): scene.Localizer(t, pc.Localizer),
		filepath.Join(cfg.ModelsDir, "fields.onnx"):    scene.FieldModel(t, pc.Fields),
	}, recognizer.EngineFunc(func(context.Context, image.Image, recognizer.Options) ([]recognizer.Token, error) {
		return []recognizer.Token{{Text: "77", Confidence: 1}}, nil
	}))

	px, err := cfg.Open()
	require.NoError(t, err)
	defer px.Close()
	require.Len(t, px.Registry().Patterns(), 1)

	res, err := px.Plate(context.Background(), scene.Frame())
	require.NoError(t, err)
	assert.Equal(t, "77/TN", res.Text)

	cfg.Plate.LayoutsPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err = cfg.Open()
	assert.ErrorContains(t, err, "plate layouts")
}

func TestOpen_ClosesOnFailure(t *testing.T) {
	cfg, scene := plateTestConfig(t)
	log := &closeLog{}
	stubConstructors(t, log, map[string]detector.StaticModel{
		filepath.Join(cfg.ModelsDir, "localizer.onnx"): scene.Localizer(t, cfg.ToPlateConfig(labels.DefaultPreprocess()).Localizer),
	}, recognizer.EngineFunc(func(context.Context, image.Image, recognizer.Options) ([]recognizer.Token, error) {
		return nil, nil
	}))

	_, err := cfg.Open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plate field detector")
	assert.Equal(t, []string{"localizer.onnx", "ocr"}, log.closed)
}

func TestOpen_Document(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ModelsDir = dir
	cfg.Plate.Enabled = false
	cfg.Document.Enabled = true
	cfg.Document.Detector.ModelPath = filepath.Join(dir, "custom.onnx")
	cfg.Document.Detector.LabelsPath = testutil.WriteFile(t, dir, "labels.json",
		[]byte(`{"0": {"name": "id"}, "1": {"name": "name"}, "2": {"name": "lastname"}}`))

	dc, err := cfg.ToDocumentConfig()
	require.NoError(t, err)
	scene := testutil.Scene{
		Width: 1280, Height: 800,
		Fields: []testutil.SceneBox{{ClassID: 0, Box: geometry.NewBox(100, 100, 400, 150), Confidence: 0.9}},
	}
	log := &closeLog{}
	stubConstructors(t, log, map[string]detector.StaticModel{
		cfg.Document.Detector.ModelPath: scene.DocumentModel(t, dc.Detector),
	}, recognizer.EngineFunc(func(context.Context, image.Image, recognizer.Options) ([]recognizer.Token, error) {
		return []recognizer.Token{{Text: "0123456", Confidence: 0.8}}, nil
	}))

	px, err := cfg.Open()
	require.NoError(t, err)
	assert.False(t, px.HasPlate())
	assert.True(t, px.HasDocument())
	assert.Equal(t, cfg.Document.Detector.ModelPath, px.Info()["document_detector"])

	res, err := px.Document(context.Background(), scene.Frame())
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "0123456", res.Text)

	require.NoError(t, px.Close())
	assert.Equal(t, []string{"custom.onnx", "ocr"}, log.closed)
}

func TestOpen_RemoteEngine(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelsDir = t.TempDir()
	cfg.OCR.Engine = EngineRemote
	cfg.OCR.RemoteURL = ""
	stubConstructors(t, &closeLog{}, nil, nil)

	_, err := cfg.Open()
	assert.ErrorContains(t, err, "remote OCR engine")

	cfg.OCR.RemoteURL = "http://127.0.0.1:1/read"
	_, err = cfg.Open()
	assert.ErrorContains(t, err, "plate localizer")

	cfg.GPU.MemoryLimit = "many"
	_, err = cfg.Open()
	assert.ErrorContains(t, err, "GPU")
}
