package letterbox

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/disintegration/imaging"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.NRGBA) image.Image {
	return imaging.New(w, h, c)
}

func TestNormalize_WideFrameIsCentered(t *testing.T) {
	n, err := NewNormalizer(PlateLocalizerConfig())
	require.NoError(t, err)

	tensor, sc, err := n.Normalize(solid(1920, 1080, color.NRGBA{R: 200, G: 100, B: 50, A: 255}))
	require.NoError(t, err)
	defer Release(tensor)

	assert.Equal(t, []int64{1, 3, 640, 640}, tensor.Shape)
	assert.InDelta(t, 1.0/3.0, sc.Scale, 1e-12)
	assert.Equal(t, 140, sc.PadTop)
	assert.Equal(t, 0, sc.PadLeft)
	assert.Equal(t, 1080, sc.OrigHeight)
	assert.Equal(t, 1920, sc.OrigWidth)

	// Padding rows hold the standardized fill value.
	cfg := n.Config()
	assert.InDelta(t, (0-cfg.Mean[0])/cfg.Std[0], tensor.At(0, 0, 0), 1e-4)

	// Content rows are BGR ordered.
	assert.InDelta(t, (50-cfg.Mean[0])/cfg.Std[0], tensor.At(0, 320, 320), 1e-3)
	assert.InDelta(t, (100-cfg.Mean[1])/cfg.Std[1], tensor.At(1, 320, 320), 1e-3)
	assert.InDelta(t, (200-cfg.Mean[2])/cfg.Std[2], tensor.At(2, 320, 320), 1e-3)
}

func TestNormalize_FillAndAnchor(t *testing.T) {
	cfg := PlateFieldConfig(64, 64, [3]float32{0, 0, 0}, [3]float32{1, 1, 1})
	cfg.Anchor = AnchorTopLeft
	n, err := NewNormalizer(cfg)
	require.NoError(t, err)

	tensor, sc, err := n.Normalize(solid(32, 16, color.NRGBA{R: 10, G: 10, B: 10, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, 0, sc.PadTop)
	assert.Equal(t, 0, sc.PadLeft)
	assert.InDelta(t, 2.0, sc.Scale, 1e-12)
	assert.InDelta(t, 10, tensor.At(0, 0, 0), 1e-3)
	assert.InDelta(t, 114, tensor.At(0, 63, 0), 1e-3)
}

func TestNormalize_RGBOrder(t *testing.T) {
	n, err := NewNormalizer(DocumentConfig())
	require.NoError(t, err)
	tensor, _, err := n.Normalize(solid(640, 640, color.NRGBA{R: 255, A: 255}))
	require.NoError(t, err)
	cfg := n.Config()
	assert.InDelta(t, (255-cfg.Mean[0])/cfg.Std[0], tensor.At(0, 10, 10), 1e-3)
	assert.InDelta(t, (0-cfg.Mean[2])/cfg.Std[2], tensor.At(2, 10, 10), 1e-3)
}

func TestNormalize_InvalidDimensions(t *testing.T) {
	n, err := NewNormalizer(PlateLocalizerConfig())
	require.NoError(t, err)

	tests := []struct {
		name string
		img  image.Image
	}{
		{"nil", nil},
		{"empty", image.NewNRGBA(image.Rect(0, 0, 0, 10))},
		{"collapses to zero rows", image.NewNRGBA(image.Rect(0, 0, 100000, 1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := n.Normalize(tt.img)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidImageDimensions))
			var ie *ImageError
			assert.True(t, errors.As(err, &ie))
		})
	}
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, PlateLocalizerConfig().Validate())
	bad := DocumentConfig()
	bad.Std[1] = 0
	assert.Error(t, bad.Validate())
	bad = DocumentConfig()
	bad.Anchor = "middle"
	assert.Error(t, bad.Validate())
	bad = DocumentConfig()
	bad.TargetWidth = 0
	assert.Error(t, bad.Validate())
}

func TestMapper(t *testing.T) {
	_, err := NewMapper(ScalingContext{Scale: 0})
	assert.ErrorIs(t, err, ErrZeroScale)

	m, err := NewMapper(ScalingContext{Scale: 1.0 / 3.0, PadTop: 140, OrigHeight: 1080, OrigWidth: 1920})
	require.NoError(t, err)

	model := m.ToModelSpace(geometry.Box{MinX: 100, MinY: 200, MaxX: 500, MaxY: 260})
	assert.InDelta(t, 33.333, model.MinX, 1e-3)
	assert.InDelta(t, 206.667, model.MinY, 1e-3)

	ref := m.ToReferenceSpace(geometry.Box{MinX: -10, MinY: 100, MaxX: 700, MaxY: 600})
	assert.Equal(t, geometry.Box{MinX: 0, MinY: 0, MaxX: 1920, MaxY: 1080}, ref)
}

func TestMapper_RoundTrip(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("model then reference space is identity up to one pixel", prop.ForAll(
		func(scale float64, top, left int, x1, y1, w, h float64) bool {
			sc := ScalingContext{Scale: scale, PadTop: top, PadLeft: left, OrigHeight: 2000, OrigWidth: 2000}
			m, err := NewMapper(sc)
			if err != nil {
				return false
			}
			in := geometry.Box{MinX: x1, MinY: y1, MaxX: x1 + w, MaxY: y1 + h}.Truncate()
			out := m.ToReferenceSpace(m.ToModelSpace(in))
			return math.Abs(out.MinX-in.MinX) <= 1 && math.Abs(out.MinY-in.MinY) <= 1 &&
				math.Abs(out.MaxX-in.MaxX) <= 1 && math.Abs(out.MaxY-in.MaxY) <= 1
		},
		gen.Float64Range(0.01, 10),
		gen.IntRange(0, 320),
		gen.IntRange(0, 320),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(1, 900),
		gen.Float64Range(1, 900),
	))

	properties.TestingRun(t)
}
