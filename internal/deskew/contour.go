package deskew

import "github.com/MeKo-Tech/platex/internal/geometry"

// component is a connected foreground blob with its bounding box.
type component struct {
	label                  int
	count                  int
	minX, minY, maxX, maxY int
}

// 8-neighbourhood in clockwise order starting east: E, SE, S, SW, W, NW, N, NE.
var (
	ndx = [8]int{1, 1, 0, -1, -1, -1, 0, 1}
	ndy = [8]int{0, 1, 1, 1, 0, -1, -1, -1}
)

// labelComponents finds 8-connected components of mask with an explicit queue.
// labels holds the component label (1-based) per pixel, 0 for background.
func labelComponents(mask []bool, w, h int) ([]component, []int) {
	labels := make([]int, w*h)
	var comps []component
	queue := make([]int, 0, 256)

	for y := range h {
		for x := range w {
			start := y*w + x
			if !mask[start] || labels[start] != 0 {
				continue
			}
			c := component{label: len(comps) + 1, minX: x, minY: y, maxX: x, maxY: y}
			labels[start] = c.label
			queue = append(queue[:0], start)
			for len(queue) > 0 {
				i := queue[0]
				queue = queue[1:]
				cx, cy := i%w, i/w
				c.count++
				c.minX, c.maxX = min(c.minX, cx), max(c.maxX, cx)
				c.minY, c.maxY = min(c.minY, cy), max(c.maxY, cy)
				for k := range 8 {
					nx, ny := cx+ndx[k], cy+ndy[k]
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					ni := ny*w + nx
					if mask[ni] && labels[ni] == 0 {
						labels[ni] = c.label
						queue = append(queue, ni)
					}
				}
			}
			comps = append(comps, c)
		}
	}
	return comps, labels
}

// traceOuterContour walks the outer boundary of component c with
// Moore-neighbour tracing and returns pixel-centre points.
func traceOuterContour(labels []int, w, h int, c component) []geometry.Point {
	is := func(x, y int) bool {
		return x >= 0 && y >= 0 && x < w && y < h && labels[y*w+x] == c.label
	}

	// The first pixel in raster order always lies on the outer boundary.
	sx, sy := -1, -1
	for y := c.minY; y <= c.maxY && sx < 0; y++ {
		for x := c.minX; x <= c.maxX; x++ {
			if is(x, y) {
				sx, sy = x, y
				break
			}
		}
	}
	if sx < 0 {
		return nil
	}

	pts := []geometry.Point{{X: float64(sx), Y: float64(sy)}}
	cx, cy := sx, sy
	bx, by := sx-1, sy
	maxSteps := 4*c.count + 8

	for range maxSteps {
		start := (direction(bx-cx, by-cy) + 1) % 8
		found := false
		for k := range 8 {
			i := (start + k) % 8
			tx, ty := cx+ndx[i], cy+ndy[i]
			if is(tx, ty) {
				bx, by = cx, cy
				cx, cy = tx, ty
				found = true
				break
			}
			bx, by = tx, ty
		}
		if !found {
			break
		}
		if cx == sx && cy == sy {
			break
		}
		pts = append(pts, geometry.Point{X: float64(cx), Y: float64(cy)})
	}
	return pts
}

func direction(dx, dy int) int {
	for i := range 8 {
		if ndx[i] == dx && ndy[i] == dy {
			return i
		}
	}
	return 0
}

// largestContour returns the outer contour enclosing the largest area.
func largestContour(mask []bool, w, h, minPixels int) []geometry.Point {
	comps, labels := labelComponents(mask, w, h)
	var best []geometry.Point
	bestArea := -1.0
	for _, c := range comps {
		if c.count < minPixels {
			continue
		}
		pts := traceOuterContour(labels, w, h, c)
		if a := geometry.PolygonArea(pts); a > bestArea {
			best, bestArea = pts, a
		}
	}
	return best
}
