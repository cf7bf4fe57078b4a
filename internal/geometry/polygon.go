package geometry

import (
	"math"
	"sort"
)

// RotatedRect is a minimum-area enclosing rectangle.
type RotatedRect struct {
	Corners [4]Point
	Width   float64
	Height  float64
	// Angle of the first edge (c0 -> c1) in degrees, in [-90, 90).
	Angle float64
}

// PolygonArea returns the absolute shoelace area of a closed polygon.
func PolygonArea(pts []Point) float64 {
	if len(pts) < 3 {
		return 0
	}
	var s float64
	for i := range pts {
		j := (i + 1) % len(pts)
		s += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return math.Abs(s) / 2
}

// ConvexHull computes the convex hull with the monotone chain algorithm.
// The hull is returned in CCW order without repeating the first point.
func ConvexHull(pts []Point) []Point {
	if len(pts) <= 1 {
		return append([]Point(nil), pts...)
	}
	p := append([]Point(nil), pts...)
	sort.Slice(p, func(i, j int) bool {
		if p[i].X != p[j].X {
			return p[i].X < p[j].X
		}
		return p[i].Y < p[j].Y
	})
	p = dedupe(p)
	if len(p) <= 1 {
		return p
	}

	hull := make([]Point, 0, 2*len(p))
	for _, pt := range p {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	lower := len(hull) + 1
	for i := len(p) - 2; i >= 0; i-- {
		pt := p[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], pt) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, pt)
	}
	return hull[:len(hull)-1]
}

func dedupe(p []Point) []Point {
	out := p[:0]
	for i, pt := range p {
		if i == 0 || pt != p[i-1] {
			out = append(out, pt)
		}
	}
	return out
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// MinAreaRect finds the minimum-area rectangle enclosing pts using rotating
// calipers over the convex hull. ok is false when fewer than three distinct
// non-collinear points are available.
func MinAreaRect(pts []Point) (RotatedRect, bool) {
	hull := ConvexHull(pts)
	if len(hull) < 3 {
		return RotatedRect{}, false
	}

	best := math.Inf(1)
	var rect RotatedRect
	for i := range hull {
		a := hull[i]
		b := hull[(i+1)%len(hull)]
		dx, dy := b.X-a.X, b.Y-a.Y
		l := math.Hypot(dx, dy)
		if l == 0 {
			continue
		}
		ux, uy := dx/l, dy/l
		vx, vy := -uy, ux

		minS, maxS := math.Inf(1), math.Inf(-1)
		minT, maxT := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			s := p.X*ux + p.Y*uy
			t := p.X*vx + p.Y*vy
			minS, maxS = math.Min(minS, s), math.Max(maxS, s)
			minT, maxT = math.Min(minT, t), math.Max(maxT, t)
		}

		area := (maxS - minS) * (maxT - minT)
		if area < best {
			best = area
			corner := func(s, t float64) Point {
				return Point{X: ux*s + vx*t, Y: uy*s + vy*t}
			}
			rect = RotatedRect{
				Corners: [4]Point{
					corner(minS, minT), corner(maxS, minT),
					corner(maxS, maxT), corner(minS, maxT),
				},
				Width:  maxS - minS,
				Height: maxT - minT,
				Angle:  normalizeEdgeAngle(math.Atan2(uy, ux) * 180 / math.Pi),
			}
		}
	}
	return rect, !math.IsInf(best, 1)
}

// normalizeEdgeAngle folds an edge direction into [-90, 90).
func normalizeEdgeAngle(deg float64) float64 {
	for deg >= 90 {
		deg -= 180
	}
	for deg < -90 {
		deg += 180
	}
	return deg
}
