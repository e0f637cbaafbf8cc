package detection

import (
	"fmt"
	"math"

	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/tensor"
)

// Config holds the post-processing thresholds.
type Config struct {
	// MinSizeBox is the smallest bounding-box side, in pixels, a region
	// may have and still be emitted.
	MinSizeBox int `yaml:"min_size_box" json:"min_size_box"`

	// BoxThresh is the minimum box score a region needs to be emitted.
	BoxThresh float64 `yaml:"box_thresh" json:"box_thresh"`

	// BinThresh is the probability a pixel must strictly exceed to be
	// foreground.
	BinThresh float64 `yaml:"bin_thresh" json:"bin_thresh"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinSizeBox: 5,
		BoxThresh:  0.5,
		BinThresh:  0.5,
	}
}

// Validate checks that the thresholds are usable.
func (c Config) Validate() error {
	if c.MinSizeBox < 0 {
		return apperrors.NewInvalidConfigError("min_size_box", fmt.Sprintf("must be >= 0, got %d", c.MinSizeBox))
	}
	if math.IsNaN(c.BoxThresh) || c.BoxThresh < 0 || c.BoxThresh > 1 {
		return apperrors.NewInvalidConfigError("box_thresh", fmt.Sprintf("must be in [0, 1], got %v", c.BoxThresh))
	}
	if math.IsNaN(c.BinThresh) || c.BinThresh < 0 || c.BinThresh > 1 {
		return apperrors.NewInvalidConfigError("bin_thresh", fmt.Sprintf("must be in [0, 1], got %v", c.BinThresh))
	}
	return nil
}

// PostProcessor turns probability maps into scored text boxes.
// It holds no mutable state and is safe for concurrent use.
type PostProcessor struct {
	cfg      Config
	geometry Geometry
}

// NewPostProcessor validates cfg and returns a post-processor emitting
// shapes built by geometry. A nil geometry selects StraightBoxes.
func NewPostProcessor(cfg Config, geometry Geometry) (*PostProcessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if geometry == nil {
		geometry = StraightBoxes
	}
	return &PostProcessor{cfg: cfg, geometry: geometry}, nil
}

// Config returns the thresholds in use.
func (pp *PostProcessor) Config() Config {
	return pp.cfg
}

// Process runs the per-page algorithm over every page of a (batch, H, W, 1)
// probability tensor. Result i belongs to page i.
func (pp *PostProcessor) Process(probaMap *tensor.Tensor) ([][]Box, error) {
	maps, err := MapsFromTensor(probaMap)
	if err != nil {
		return nil, err
	}

	out := make([][]Box, len(maps))
	for i, m := range maps {
		out[i] = pp.ProcessMap(m)
	}
	return out, nil
}

// ProcessMap binarizes p, opens the mask, extracts its regions and returns
// those that pass the size and score filters, in region order. A page with
// no surviving region yields an empty, non-nil slice.
func (pp *PostProcessor) ProcessMap(p ProbabilityMap) []Box {
	boxes := []Box{}
	if p.Width == 0 || p.Height == 0 {
		return boxes
	}

	mask := Open(Binarize(p, pp.cfg.BinThresh))

	for _, c := range FindContours(mask) {
		// A single pixel or a one-pixel-thick run compresses to one or two
		// points and encloses no area. Opening removes these except in
		// maps under 3 pixels thick, where the clipped window lets them
		// through.
		if len(c.Points) < 3 {
			continue
		}
		if c.Bounds.MinSide() < pp.cfg.MinSizeBox {
			continue
		}
		score := boxScore(p, c.Bounds)
		if score < pp.cfg.BoxThresh {
			continue
		}

		shape := pp.geometry(c)
		boxes = append(boxes, Box{
			Polygon: shape.Polygon,
			Coords:  shape.Coords,
			Bounds:  c.Bounds,
			Score:   score,
		})
	}
	return boxes
}

// BoxScore returns the mean probability over the bounding rectangle of
// points. The rectangle runs from floor(min) to ceil(max) on each axis and
// is clipped to the map, both ends inclusive. It is the rectangle mean, not
// the polygon-interior mean. An empty point set scores 0.
func BoxScore(p ProbabilityMap, points []Point) float64 {
	if len(points) == 0 || p.Width == 0 || p.Height == 0 {
		return 0
	}

	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, pt := range points[1:] {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}

	b := Bounds{
		X1: clamp(int(math.Floor(minX)), 0, p.Width-1),
		Y1: clamp(int(math.Floor(minY)), 0, p.Height-1),
		X2: clamp(int(math.Ceil(maxX)), 0, p.Width-1),
		Y2: clamp(int(math.Ceil(maxY)), 0, p.Height-1),
	}
	return boxScore(p, b)
}

// boxScore averages p over the inclusive rectangle b, which must lie inside
// the map.
func boxScore(p ProbabilityMap, b Bounds) float64 {
	var sum float64
	for y := b.Y1; y <= b.Y2; y++ {
		row := p.Data[y*p.Width : (y+1)*p.Width]
		for x := b.X1; x <= b.X2; x++ {
			sum += float64(row[x])
		}
	}
	return sum / float64(b.Width()*b.Height())
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
