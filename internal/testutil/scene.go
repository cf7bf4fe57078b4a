package testutil

import (
	"image"
	"testing"

	"github.com/MeKo-Tech/platex/internal/detector"
	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/MeKo-Tech/platex/internal/letterbox"
	"github.com/stretchr/testify/require"
)

// SceneBox is one scripted detection in reference space.
type SceneBox struct {
	ClassID    int
	Box        geometry.Box
	Confidence float64
}

// Scene scripts what the detectors of a two-stage deployment report for
// one frame. Boxes are given in the space the stage sees: Regions in frame
// space and Fields in the space of the cropped region.
type Scene struct {
	Width, Height int
	Regions       []SceneBox
	Fields        []SceneBox
}

// Frame renders a frame of the scene size with the first region painted as
// a plate.
func (s Scene) Frame() *image.NRGBA {
	f := PlateFrame{Width: s.Width, Height: s.Height}
	if len(s.Regions) > 0 {
		b := s.Regions[0].Box.Ints()
		f.Plate = image.Rect(b[0], b[1], b[2], b[3])
	}
	return f.Render()
}

// Localizer returns a model reporting the regions in the model space of cfg.
func (s Scene) Localizer(t *testing.T, cfg letterbox.Config) detector.StaticModel {
	t.Helper()
	return toModelSpace(t, cfg, s.Width, s.Height, s.Regions)
}

// FieldModel returns a model reporting the fields in the model space of cfg,
// given the crop of the first region.
func (s Scene) FieldModel(t *testing.T, cfg letterbox.Config) detector.StaticModel {
	t.Helper()
	require.NotEmpty(t, s.Regions, "scene has no region to crop")
	r := s.Regions[0].Box
	return toModelSpace(t, cfg, int(r.Width()), int(r.Height()), s.Fields)
}

// DocumentModel returns a single-stage model reporting the fields in frame
// space.
func (s Scene) DocumentModel(t *testing.T, cfg letterbox.Config) detector.StaticModel {
	t.Helper()
	return toModelSpace(t, cfg, s.Width, s.Height, s.Fields)
}

// toModelSpace letterboxes a w x h reference through cfg and projects boxes
// onto the canvas. A quarter-pixel offset keeps the truncating inverse
// mapping on the original integer coordinates.
func toModelSpace(t *testing.T, cfg letterbox.Config, w, h int, boxes []SceneBox) detector.StaticModel {
	t.Helper()

	norm, err := letterbox.NewNormalizer(cfg)
	require.NoError(t, err)
	_, sc, err := norm.Letterbox(image.NewGray(image.Rect(0, 0, w, h)))
	require.NoError(t, err)
	m, err := letterbox.NewMapper(sc)
	require.NoError(t, err)

	raws := make([]detector.RawDetection, len(boxes))
	for i, b := range boxes {
		nudged := geometry.NewBox(b.Box.MinX+0.25, b.Box.MinY+0.25, b.Box.MaxX+0.25, b.Box.MaxY+0.25)
		raws[i] = detector.RawDetection{Box: m.ToModelSpace(nudged), Confidence: b.Confidence, ClassID: b.ClassID}
	}
	return detector.StaticModel{Detections: raws}
}
