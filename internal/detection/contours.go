package detection

import (
	"image"
)

// Contour is the outer boundary of one 8-connected region of a mask,
// traced clockwise (in image coordinates) and compressed so straight runs
// keep only their end points.
type Contour struct {
	Points []image.Point
	Bounds Bounds
}

// FloatPoints returns the contour vertices as polygon points.
func (c Contour) FloatPoints() []Point {
	pts := make([]Point, len(c.Points))
	for i, p := range c.Points {
		pts[i] = Point{X: float64(p.X), Y: float64(p.Y)}
	}
	return pts
}

// neighbours lists the 8 directions clockwise on screen, starting east.
var neighbours = [8]image.Point{
	{X: 1, Y: 0},   // E
	{X: 1, Y: 1},   // SE
	{X: 0, Y: 1},   // S
	{X: -1, Y: 1},  // SW
	{X: -1, Y: 0},  // W
	{X: -1, Y: -1}, // NW
	{X: 0, Y: -1},  // N
	{X: 1, Y: -1},  // NE
}

const dirWest = 4

func direction(d image.Point) int {
	for i, n := range neighbours {
		if n == d {
			return i
		}
	}
	return -1
}

// FindContours returns the outer contour of every 8-connected region in b,
// ordered by the raster position of each region's first pixel. Holes are
// not traced.
func FindContours(b *Bitmap) []Contour {
	labels := labelComponents(b)

	var contours []Contour
	seen := make(map[int32]bool)
	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			label := labels[y*b.Width+x]
			if label == 0 || seen[label] {
				continue
			}
			seen[label] = true

			in := func(p image.Point) bool {
				if p.X < 0 || p.X >= b.Width || p.Y < 0 || p.Y >= b.Height {
					return false
				}
				return labels[p.Y*b.Width+p.X] == label
			}
			trace := traceBoundary(in, image.Point{X: x, Y: y})
			contours = append(contours, Contour{
				Points: compressChain(trace),
				Bounds: pointBounds(trace),
			})
		}
	}
	return contours
}

// labelComponents assigns a positive label to each 8-connected region.
// Background pixels get label 0.
func labelComponents(b *Bitmap) []int32 {
	labels := make([]int32, len(b.Pix))
	var next int32
	var stack []image.Point

	for y := 0; y < b.Height; y++ {
		for x := 0; x < b.Width; x++ {
			i := y*b.Width + x
			if !b.Pix[i] || labels[i] != 0 {
				continue
			}
			next++
			labels[i] = next
			stack = append(stack[:0], image.Point{X: x, Y: y})

			for len(stack) > 0 {
				p := stack[len(stack)-1]
				stack = stack[:len(stack)-1]

				// 8-connected neighbors
				for _, d := range neighbours {
					q := p.Add(d)
					if q.X < 0 || q.X >= b.Width || q.Y < 0 || q.Y >= b.Height {
						continue
					}
					j := q.Y*b.Width + q.X
					if !b.Pix[j] || labels[j] != 0 {
						continue
					}
					labels[j] = next
					stack = append(stack, q)
				}
			}
		}
	}
	return labels
}

// traceBoundary follows the outer boundary of the region containing start
// using Moore-neighbour tracing with Jacob's stopping criterion. start must
// be the region's first pixel in raster order, so its west neighbour is
// background.
func traceBoundary(in func(image.Point) bool, start image.Point) []image.Point {
	trace := []image.Point{start}

	next, back, ok := mooreStep(in, start, dirWest)
	if !ok {
		return trace
	}
	first := next

	for {
		cur := next
		next, back, _ = mooreStep(in, cur, back)
		if cur == start && next == first {
			break
		}
		trace = append(trace, cur)
	}
	return trace
}

// mooreStep scans the neighbours of cur clockwise, starting after the
// background direction back, and returns the first region pixel found along
// with the direction from it to the last background pixel examined.
func mooreStep(in func(image.Point) bool, cur image.Point, back int) (image.Point, int, bool) {
	prev := cur.Add(neighbours[back])
	for i := 1; i < 8; i++ {
		p := cur.Add(neighbours[(back+i)%8])
		if in(p) {
			return p, direction(prev.Sub(p)), true
		}
		prev = p
	}
	return cur, back, false
}

// compressChain drops every point that continues its predecessor's
// direction, keeping only the turning points of the closed chain.
func compressChain(trace []image.Point) []image.Point {
	n := len(trace)
	if n < 3 {
		out := make([]image.Point, n)
		copy(out, trace)
		return out
	}

	out := make([]image.Point, 0, n)
	for i := 0; i < n; i++ {
		prev := trace[(i+n-1)%n]
		next := trace[(i+1)%n]
		cur := trace[i]
		if cur.Sub(prev) != next.Sub(cur) {
			out = append(out, cur)
		}
	}
	return out
}

func pointBounds(pts []image.Point) Bounds {
	b := Bounds{X1: pts[0].X, Y1: pts[0].Y, X2: pts[0].X, Y2: pts[0].Y}
	for _, p := range pts[1:] {
		b.X1 = minInt(b.X1, p.X)
		b.Y1 = minInt(b.Y1, p.Y)
		b.X2 = maxInt(b.X2, p.X)
		b.Y2 = maxInt(b.Y2, p.Y)
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
