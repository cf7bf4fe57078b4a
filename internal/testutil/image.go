package testutil

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Plate colours of the synthetic frames.
var (
	Background = color.RGBA{90, 90, 90, 255}
	PlateColor = color.RGBA{20, 20, 20, 255}
	InkColor   = color.RGBA{240, 240, 240, 255}
)

// CreateTestImage creates a uniform image of the given size.
func CreateTestImage(width, height int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{c}, image.Point{}, draw.Src)
	return img
}

// PlateFrame describes a synthetic frame with one plate on it.
type PlateFrame struct {
	Width, Height int
	Plate         image.Rectangle
	Text          string
	// Rotation tilts the whole frame, in degrees counter-clockwise.
	Rotation float64
}

// Render draws the frame.
func (f PlateFrame) Render() *image.NRGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	draw.Draw(img, img.Bounds(), &image.Uniform{Background}, image.Point{}, draw.Src)
	draw.Draw(img, f.Plate, &image.Uniform{PlateColor}, image.Point{}, draw.Src)

	if f.Text != "" {
		face := basicfont.Face7x13
		d := &font.Drawer{Dst: img, Src: &image.Uniform{InkColor}, Face: face}
		w := font.MeasureString(face, f.Text).Ceil()
		h := face.Metrics().Height.Ceil()
		x := f.Plate.Min.X + (f.Plate.Dx()-w)/2
		y := f.Plate.Min.Y + (f.Plate.Dy()+h)/2
		d.Dot = fixed.P(x, y)
		d.DrawString(f.Text)
	}

	if f.Rotation != 0 {
		return imaging.Rotate(img, f.Rotation, Background)
	}
	return imaging.Clone(img)
}

// EncodePNG encodes img as PNG.
func EncodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// EncodeJPEG encodes img as JPEG.
func EncodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// SaveImage saves img as PNG at path.
func SaveImage(t *testing.T, img image.Image, path string) {
	t.Helper()

	require.NoError(t, EnsureDir(filepath.Dir(path)))
	require.NoError(t, os.WriteFile(path, EncodePNG(t, img), 0o600))
}
