package deskew

import (
	"image"
	"math"
)

// cubic convolution coefficient used by common imaging libraries.
const cubicA = -0.75

func cubicWeight(t float64) float64 {
	t = math.Abs(t)
	switch {
	case t <= 1:
		return (cubicA+2)*t*t*t - (cubicA+3)*t*t + 1
	case t < 2:
		return cubicA*t*t*t - 5*cubicA*t*t + 8*cubicA*t - 4*cubicA
	default:
		return 0
	}
}

// rotate returns src rotated by deg about its centre with the same size.
// Output pixel p samples src at R(deg)(p-c)+c, so content skewed by deg
// becomes level. Samples outside src replicate the nearest edge pixel.
func rotate(src *image.NRGBA, deg float64) *image.NRGBA {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	rad := deg * math.Pi / 180
	cos, sin := math.Cos(rad), math.Sin(rad)
	cx, cy := float64(w)/2, float64(h)/2

	for y := range h {
		for x := range w {
			dx, dy := float64(x)-cx, float64(y)-cy
			sx := cos*dx - sin*dy + cx
			sy := sin*dx + cos*dy + cy
			off := y*dst.Stride + x*4
			bicubic(src, sx, sy, dst.Pix[off:off+4])
		}
	}
	return dst
}

// bicubic writes the interpolated NRGBA value at (x, y) into out.
func bicubic(src *image.NRGBA, x, y float64, out []uint8) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	x0, y0 := int(math.Floor(x)), int(math.Floor(y))
	fx, fy := x-float64(x0), y-float64(y0)

	var wx, wy [4]float64
	for i := range 4 {
		wx[i] = cubicWeight(fx - float64(i-1))
		wy[i] = cubicWeight(fy - float64(i-1))
	}

	var acc [4]float64
	for j := range 4 {
		py := clampIndex(y0+j-1, h)
		for i := range 4 {
			px := clampIndex(x0+i-1, w)
			wgt := wx[i] * wy[j]
			off := py*src.Stride + px*4
			for c := range 4 {
				acc[c] += wgt * float64(src.Pix[off+c])
			}
		}
	}
	for c := range 4 {
		out[c] = uint8(math.Max(0, math.Min(255, math.Round(acc[c]))))
	}
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
