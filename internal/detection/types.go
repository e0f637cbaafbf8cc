package detection

import (
	"math"
)

// Point is a polygon vertex. Coordinates may be sub-pixel.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Bounds is an axis-aligned rectangle of pixel indices.
//
// Both corners are inclusive: a region covering a single pixel at (3, 4)
// has X1 == X2 == 3 and Y1 == Y2 == 4.
type Bounds struct {
	X1 int `json:"x1"` // Left column (inclusive)
	Y1 int `json:"y1"` // Top row (inclusive)
	X2 int `json:"x2"` // Right column (inclusive)
	Y2 int `json:"y2"` // Bottom row (inclusive)
}

// Width returns the number of columns covered.
func (b Bounds) Width() int {
	return b.X2 - b.X1 + 1
}

// Height returns the number of rows covered.
func (b Bounds) Height() int {
	return b.Y2 - b.Y1 + 1
}

// MinSide returns the smaller of Width and Height.
func (b Bounds) MinSide() int {
	if b.Width() < b.Height() {
		return b.Width()
	}
	return b.Height()
}

// Shape is the geometry a Geometry strategy derives from a region.
type Shape struct {
	// Polygon has 4 or more vertices.
	Polygon []Point

	// Coords is the flat geometry emitted in result rows, for example
	// [xmin, ymin, xmax, ymax] for straight boxes or [x1, y1, ..., xn, yn]
	// for polygons.
	Coords []float64
}

// Box is a scored text region that passed the size and score filters.
type Box struct {
	// Polygon outlines the region (4 or more vertices).
	Polygon []Point `json:"polygon"`

	// Coords is the row geometry (see Shape.Coords).
	Coords []float64 `json:"coords"`

	// Bounds is the inclusive pixel bounding rectangle of the region's
	// contour, the rectangle the score was computed over.
	Bounds Bounds `json:"bounds"`

	// Score is the mean probability over Bounds, in [0, 1].
	Score float64 `json:"score"`
}

// Row returns the box as a result row: geometry followed by the score.
func (b Box) Row() []float64 {
	row := make([]float64, 0, len(b.Coords)+1)
	row = append(row, b.Coords...)
	return append(row, b.Score)
}

// Rows renders a page result as a (K, 5+) array.
func Rows(boxes []Box) [][]float64 {
	rows := make([][]float64, len(boxes))
	for i, b := range boxes {
		rows[i] = b.Row()
	}
	return rows
}

// Scale maps the box from probability-map coordinates into a space scaled by
// sx horizontally and sy vertically, typically the original page size
// divided by the model input size.
func (b Box) Scale(sx, sy float64) Box {
	out := Box{
		Polygon: make([]Point, len(b.Polygon)),
		Coords:  make([]float64, len(b.Coords)),
		Score:   b.Score,
	}
	for i, p := range b.Polygon {
		out.Polygon[i] = Point{X: p.X * sx, Y: p.Y * sy}
	}
	for i, c := range b.Coords {
		if i%2 == 0 {
			out.Coords[i] = c * sx
		} else {
			out.Coords[i] = c * sy
		}
	}
	out.Bounds = Bounds{
		X1: int(math.Floor(float64(b.Bounds.X1) * sx)),
		Y1: int(math.Floor(float64(b.Bounds.Y1) * sy)),
		X2: int(math.Ceil(float64(b.Bounds.X2+1)*sx)) - 1,
		Y2: int(math.Ceil(float64(b.Bounds.Y2+1)*sy)) - 1,
	}
	return out
}
