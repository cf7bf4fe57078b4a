package geometry

import (
	"image"
	"math"
)

// Point represents a 2D coordinate in float space.
type Point struct {
	X float64
	Y float64
}

// Box is an axis-aligned rectangle (x_min, y_min, x_max, y_max).
// Unlike NewBox, the literal form keeps the corners as given so that
// degenerate boxes coming out of a detector stay observable.
type Box struct {
	MinX float64
	MinY float64
	MaxX float64
	MaxY float64
}

// NewBox constructs a Box from two corners, ordering them.
func NewBox(x1, y1, x2, y2 float64) Box {
	if x1 > x2 {
		x1, x2 = x2, x1
	}
	if y1 > y2 {
		y1, y2 = y2, y1
	}
	return Box{MinX: x1, MinY: y1, MaxX: x2, MaxY: y2}
}

// Width returns the box width.
func (b Box) Width() float64 { return b.MaxX - b.MinX }

// Height returns the box height.
func (b Box) Height() float64 { return b.MaxY - b.MinY }

// Degenerate reports whether the box has zero or negative extent on an axis
// or a coordinate that is NaN or infinite.
func (b Box) Degenerate() bool {
	if !b.Finite() {
		return true
	}
	return b.MinX >= b.MaxX || b.MinY >= b.MaxY
}

// Finite reports whether every coordinate is a finite number.
func (b Box) Finite() bool {
	for _, v := range [4]float64{b.MinX, b.MinY, b.MaxX, b.MaxY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Truncate drops the fractional part of every coordinate.
func (b Box) Truncate() Box {
	return Box{
		MinX: math.Trunc(b.MinX),
		MinY: math.Trunc(b.MinY),
		MaxX: math.Trunc(b.MaxX),
		MaxY: math.Trunc(b.MaxY),
	}
}

// Clamp limits all coordinates to [0,w] x [0,h].
func (b Box) Clamp(w, h float64) Box {
	return Box{
		MinX: clamp(b.MinX, 0, w),
		MinY: clamp(b.MinY, 0, h),
		MaxX: clamp(b.MaxX, 0, w),
		MaxY: clamp(b.MaxY, 0, h),
	}
}

// Expand grows the box by margin pixels on every side.
func (b Box) Expand(margin float64) Box {
	return Box{MinX: b.MinX - margin, MinY: b.MinY - margin, MaxX: b.MaxX + margin, MaxY: b.MaxY + margin}
}

// ToRect converts a Box to an image.Rectangle, clamped to bounds.
func (b Box) ToRect(bounds image.Rectangle) image.Rectangle {
	x1 := clampInt(int(math.Floor(b.MinX)), bounds.Min.X, bounds.Max.X)
	y1 := clampInt(int(math.Floor(b.MinY)), bounds.Min.Y, bounds.Max.Y)
	x2 := clampInt(int(math.Ceil(b.MaxX)), bounds.Min.X, bounds.Max.X)
	y2 := clampInt(int(math.Ceil(b.MaxY)), bounds.Min.Y, bounds.Max.Y)
	if x2 < x1 {
		x2 = x1
	}
	if y2 < y1 {
		y2 = y1
	}
	return image.Rect(x1, y1, x2, y2)
}

// Ints returns the corners as integers (truncated).
func (b Box) Ints() [4]int {
	return [4]int{int(b.MinX), int(b.MinY), int(b.MaxX), int(b.MaxY)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
