// Package deskew estimates and removes small in-plane rotation of a cropped
// region before the second detection stage.
package deskew

import (
	"fmt"
	"image"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/platex/internal/geometry"
	"github.com/disintegration/imaging"
)

// Config controls skew estimation.
type Config struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	// AngleThreshold is the dead zone in degrees; smaller skews are ignored.
	AngleThreshold float64 `mapstructure:"angle_threshold" yaml:"angle_threshold" json:"angle_threshold"`
	BlurSigma      float64 `mapstructure:"blur_sigma" yaml:"blur_sigma" json:"blur_sigma"`
	// BlockSize is the odd neighbourhood size of the adaptive threshold.
	BlockSize int `mapstructure:"block_size" yaml:"block_size" json:"block_size"`
	// C is subtracted from the local mean before comparison.
	C         float64 `mapstructure:"c" yaml:"c" json:"c"`
	MinPixels int     `mapstructure:"min_pixels" yaml:"min_pixels" json:"min_pixels"`
}

// DefaultConfig mirrors a 5x5 Gaussian pre-blur and an 11x11 Gaussian
// adaptive threshold with C=2.
func DefaultConfig() Config {
	return Config{
		Enabled:        true,
		AngleThreshold: 2.0,
		BlurSigma:      1.1,
		BlockSize:      11,
		C:              2,
		MinPixels:      5,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.AngleThreshold < 0 || c.AngleThreshold > 45 {
		return fmt.Errorf("angle threshold must be within [0, 45], got %.2f", c.AngleThreshold)
	}
	if c.BlockSize < 3 || c.BlockSize%2 == 0 {
		return fmt.Errorf("block size must be an odd number >= 3, got %d", c.BlockSize)
	}
	if c.BlurSigma < 0 {
		return fmt.Errorf("blur sigma must be non-negative, got %.2f", c.BlurSigma)
	}
	return nil
}

// Result describes one correction.
type Result struct {
	Image   image.Image
	Angle   float64
	Applied bool
}

// Corrector estimates skew from the dominant contour and rotates it away.
type Corrector struct {
	cfg Config
}

// New returns a Corrector.
func New(cfg Config) *Corrector {
	return &Corrector{cfg: cfg}
}

// Correct returns img rotated so that its dominant contour is horizontal.
// It never fails: on any problem the input is returned unchanged.
func (c *Corrector) Correct(img image.Image) (res Result) {
	res = Result{Image: img}
	if !c.cfg.Enabled || img == nil || img.Bounds().Empty() {
		return res
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("Skew correction failed, keeping original", "panic", r)
			res = Result{Image: img}
		}
	}()

	angle, ok := c.Estimate(img)
	if !ok {
		return res
	}
	res.Angle = angle
	if math.Abs(angle) < c.cfg.AngleThreshold {
		return res
	}

	res.Image = rotate(imaging.Clone(img), angle)
	res.Applied = true
	slog.Debug("Skew corrected", "angle", angle)
	return res
}

// Estimate returns the skew angle in degrees within [-45, 45]. ok is false
// when no usable contour is found.
func (c *Corrector) Estimate(img image.Image) (float64, bool) {
	if img == nil || img.Bounds().Empty() {
		return 0, false
	}
	mask, w, h := c.binarize(img)
	contour := largestContour(mask, w, h, max(c.cfg.MinPixels, 1))
	if len(contour) < 3 {
		return 0, false
	}
	rect, ok := geometry.MinAreaRect(contour)
	if !ok {
		return 0, false
	}
	return NormalizeAngle(rect.Angle), true
}

// NormalizeAngle folds a rectangle edge angle into [-45, 45] so it measures
// skew against the horizontal axis whichever edge was reported.
func NormalizeAngle(a float64) float64 {
	if a < -45 {
		return a + 90
	}
	if a > 45 {
		return a - 90
	}
	return a
}

// binarize produces an inverted adaptive-threshold mask: dark strokes on a
// light background become foreground.
func (c *Corrector) binarize(img image.Image) ([]bool, int, int) {
	gray := imaging.Grayscale(img)
	if c.cfg.BlurSigma > 0 {
		gray = imaging.Blur(gray, c.cfg.BlurSigma)
	}
	// Gaussian window sigma for a given aperture, as used by common
	// adaptive-threshold implementations.
	sigma := 0.3*(float64(c.cfg.BlockSize-1)*0.5-1) + 0.8
	local := imaging.Blur(gray, sigma)

	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	mask := make([]bool, w*h)
	for y := range h {
		for x := range w {
			v := float64(gray.Pix[y*gray.Stride+x*4])
			m := float64(local.Pix[y*local.Stride+x*4])
			mask[y*w+x] = v <= m-c.cfg.C
		}
	}
	return mask, w, h
}
