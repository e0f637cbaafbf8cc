package detection

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Geometry converts a region that passed filtering into the shape emitted
// for it. Implementations must be deterministic.
type Geometry func(c Contour) Shape

// Geometry strategy names accepted by ParseGeometry.
const (
	GeometryStraight = "straight"
	GeometryRotated  = "rotated"
	GeometryPolygon  = "polygon"
)

// GeometryNames lists the accepted strategy names.
var GeometryNames = []string{GeometryStraight, GeometryRotated, GeometryPolygon}

// ParseGeometry returns the strategy registered under name.
func ParseGeometry(name string) (Geometry, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case GeometryStraight, "":
		return StraightBoxes, nil
	case GeometryRotated:
		return RotatedBoxes, nil
	case GeometryPolygon:
		return PolygonBoxes, nil
	default:
		return nil, fmt.Errorf("unknown geometry %q (expected one of %s)", name, strings.Join(GeometryNames, ", "))
	}
}

// StraightBoxes emits the axis-aligned rectangle covering the region's
// pixels. Coords are [xmin, ymin, xmax, ymax] in pixel-edge coordinates, so
// xmax-xmin is the region width in pixels.
func StraightBoxes(c Contour) Shape {
	x1 := float64(c.Bounds.X1)
	y1 := float64(c.Bounds.Y1)
	x2 := float64(c.Bounds.X2 + 1)
	y2 := float64(c.Bounds.Y2 + 1)
	return Shape{
		Polygon: []Point{{x1, y1}, {x2, y1}, {x2, y2}, {x1, y2}},
		Coords:  []float64{x1, y1, x2, y2},
	}
}

// RotatedBoxes emits the minimum-area rectangle enclosing the region's
// pixels, which may be rotated. Coords are the 4 corners, flattened.
func RotatedBoxes(c Contour) Shape {
	// Hull the pixel corners so an axis-aligned block maps onto the same
	// rectangle StraightBoxes would produce.
	corners := make([]Point, 0, 4*len(c.Points))
	for _, p := range c.Points {
		x, y := float64(p.X), float64(p.Y)
		corners = append(corners, Point{x, y}, Point{x + 1, y}, Point{x + 1, y + 1}, Point{x, y + 1})
	}
	rect := MinAreaRect(ConvexHull(corners))
	return Shape{Polygon: rect, Coords: flatten(rect)}
}

// PolygonBoxes emits the contour simplified with Douglas-Peucker, using a
// tolerance of 1% of the contour perimeter. Vertices sit on pixel centres.
// Regions that simplify to fewer than 4 vertices fall back to RotatedBoxes.
func PolygonBoxes(c Contour) Shape {
	pts := c.FloatPoints()
	for i := range pts {
		pts[i].X += 0.5
		pts[i].Y += 0.5
	}

	poly := SimplifyClosed(pts, 0.01*perimeter(pts))
	if len(poly) < 4 {
		return RotatedBoxes(c)
	}
	return Shape{Polygon: poly, Coords: flatten(poly)}
}

func flatten(pts []Point) []float64 {
	out := make([]float64, 0, 2*len(pts))
	for _, p := range pts {
		out = append(out, p.X, p.Y)
	}
	return out
}

func perimeter(pts []Point) float64 {
	var sum float64
	for i := range pts {
		sum += dist(pts[i], pts[(i+1)%len(pts)])
	}
	return sum
}

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func cross(o, a, b Point) float64 {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}

// ConvexHull returns the convex hull of pts using Andrew's monotone chain.
// Collinear points are dropped. In image coordinates (Y down) the hull runs
// clockwise on screen.
func ConvexHull(pts []Point) []Point {
	if len(pts) < 3 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}

	sorted := make([]Point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})

	hull := make([]Point, 0, 2*len(sorted))
	for _, p := range sorted {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(sorted) - 2; i >= 0; i-- {
		p := sorted[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

// MinAreaRect returns the 4 corners of the smallest-area rectangle enclosing
// the convex polygon hull. One side of the optimal rectangle is collinear
// with a hull edge, so each edge direction is tried in turn.
func MinAreaRect(hull []Point) []Point {
	switch len(hull) {
	case 0:
		return nil
	case 1, 2:
		return axisRect(hull)
	}

	bestArea := math.Inf(1)
	var best []Point
	for i := range hull {
		a, b := hull[i], hull[(i+1)%len(hull)]
		l := dist(a, b)
		if l == 0 {
			continue
		}
		ux, uy := (b.X-a.X)/l, (b.Y-a.Y)/l // along the edge
		vx, vy := -uy, ux                  // normal

		minU, maxU := math.Inf(1), math.Inf(-1)
		minV, maxV := math.Inf(1), math.Inf(-1)
		for _, p := range hull {
			du, dv := (p.X-a.X)*ux+(p.Y-a.Y)*uy, (p.X-a.X)*vx+(p.Y-a.Y)*vy
			minU, maxU = math.Min(minU, du), math.Max(maxU, du)
			minV, maxV = math.Min(minV, dv), math.Max(maxV, dv)
		}

		area := (maxU - minU) * (maxV - minV)
		if area < bestArea-1e-9 {
			bestArea = area
			corner := func(u, v float64) Point {
				return Point{X: a.X + u*ux + v*vx, Y: a.Y + u*uy + v*vy}
			}
			best = []Point{corner(minU, minV), corner(maxU, minV), corner(maxU, maxV), corner(minU, maxV)}
		}
	}
	if best == nil {
		return axisRect(hull)
	}
	return orderCorners(best)
}

func axisRect(pts []Point) []Point {
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := minX, minY
	for _, p := range pts[1:] {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return []Point{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
}

// orderCorners rotates a rectangle's corners so the one with the smallest
// x+y comes first and makes the order clockwise on screen.
func orderCorners(rect []Point) []Point {
	if cross(rect[0], rect[1], rect[2]) < 0 {
		rect[1], rect[3] = rect[3], rect[1]
	}
	start := 0
	for i, p := range rect {
		s, best := p.X+p.Y, rect[start].X+rect[start].Y
		if s < best-1e-9 || (math.Abs(s-best) <= 1e-9 && p.X < rect[start].X) {
			start = i
		}
	}
	out := make([]Point, 4)
	for i := range out {
		out[i] = snap(rect[(start+i)%4])
	}
	return out
}

// snap removes floating point noise left by the projection.
func snap(p Point) Point {
	const eps = 1e-9
	r := func(v float64) float64 {
		if n := math.Round(v); math.Abs(v-n) < eps {
			return n
		}
		return v
	}
	return Point{X: r(p.X), Y: r(p.Y)}
}

// SimplifyClosed runs Douglas-Peucker over a closed polygon. The polygon is
// split at its first vertex and the vertex farthest from it, and each half
// is simplified independently.
func SimplifyClosed(pts []Point, epsilon float64) []Point {
	n := len(pts)
	if n < 3 {
		out := make([]Point, n)
		copy(out, pts)
		return out
	}

	far := 0
	farDist := -1.0
	for i := 1; i < n; i++ {
		if d := dist(pts[0], pts[i]); d > farDist {
			far, farDist = i, d
		}
	}

	first := simplifyOpen(pts[:far+1], epsilon)
	second := simplifyOpen(append(append([]Point{}, pts[far:]...), pts[0]), epsilon)

	out := make([]Point, 0, len(first)+len(second))
	out = append(out, first...)
	out = append(out, second[1:len(second)-1]...)
	return out
}

func simplifyOpen(pts []Point, epsilon float64) []Point {
	if len(pts) < 3 {
		out := make([]Point, len(pts))
		copy(out, pts)
		return out
	}

	keep := make([]bool, len(pts))
	keep[0], keep[len(pts)-1] = true, true

	type span struct{ lo, hi int }
	stack := []span{{0, len(pts) - 1}}
	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		idx, maxDist := -1, epsilon
		for i := s.lo + 1; i < s.hi; i++ {
			if d := segmentDistance(pts[i], pts[s.lo], pts[s.hi]); d > maxDist {
				idx, maxDist = i, d
			}
		}
		if idx < 0 {
			continue
		}
		keep[idx] = true
		stack = append(stack, span{s.lo, idx}, span{idx, s.hi})
	}

	out := make([]Point, 0, len(pts))
	for i, k := range keep {
		if k {
			out = append(out, pts[i])
		}
	}
	return out
}

func segmentDistance(p, a, b Point) float64 {
	l := dist(a, b)
	if l == 0 {
		return dist(p, a)
	}
	return math.Abs(cross(a, b, p)) / l
}
