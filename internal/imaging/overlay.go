package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Outline is a closed polygon to draw on top of an image, with an optional
// text label placed at its first vertex.
type Outline struct {
	Points []image.Point
	Label  string
}

// OverlayOptions controls how outlines are drawn.
type OverlayOptions struct {
	// Color is a "#RRGGBB" stroke colour. Empty gives every outline its own
	// hue from an evenly spread palette.
	Color string `yaml:"color" json:"color,omitempty"`

	// Thickness is the stroke width in pixels. Values below 1 mean 1.
	Thickness int `yaml:"thickness" json:"thickness"`

	// ShowLabels draws each outline's label.
	ShowLabels bool `yaml:"show_labels" json:"show_labels"`
}

// OverlayResult contains an annotated image encoded as base64 PNG.
type OverlayResult struct {
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Count       int    `json:"count"`
}

// DrawDetections strokes each outline on a copy of img.
func DrawDetections(img image.Image, outlines []Outline, opts OverlayOptions) (*image.RGBA, error) {
	bounds := img.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, img, bounds.Min, draw.Src)

	var fixedColor color.Color
	if opts.Color != "" {
		c, err := colorful.Hex(opts.Color)
		if err != nil {
			return nil, fmt.Errorf("invalid overlay color %q: %w", opts.Color, err)
		}
		fixedColor = c
	}

	thickness := opts.Thickness
	if thickness < 1 {
		thickness = 1
	}

	for i, o := range outlines {
		stroke := fixedColor
		if stroke == nil {
			stroke = paletteColor(i)
		}
		for j := range o.Points {
			a := o.Points[j]
			b := o.Points[(j+1)%len(o.Points)]
			drawLine(result, a, b, thickness, stroke)
		}
		if opts.ShowLabels && o.Label != "" && len(o.Points) > 0 {
			drawLabel(result, o.Points[0], o.Label, stroke)
		}
	}

	return result, nil
}

// RenderOverlay draws the outlines and packs the result for a tool response.
func RenderOverlay(img image.Image, outlines []Outline, opts OverlayOptions) (*OverlayResult, error) {
	annotated, err := DrawDetections(img, outlines, opts)
	if err != nil {
		return nil, err
	}
	encoded, err := EncodePNGBase64(annotated)
	if err != nil {
		return nil, err
	}
	return &OverlayResult{
		Width:       annotated.Bounds().Dx(),
		Height:      annotated.Bounds().Dy(),
		ImageBase64: encoded,
		MimeType:    "image/png",
		Count:       len(outlines),
	}, nil
}

// EncodePNGBase64 encodes an image as base64 PNG.
func EncodePNGBase64(img image.Image) (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// SaveImage writes an image to disk as PNG.
func SaveImage(path string, img image.Image) error {
	if err := imgio.Save(path, img, imgio.PNGEncoder()); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	return nil
}

// paletteColor spreads hues by the golden angle so neighbouring indices get
// clearly different colours.
func paletteColor(i int) color.Color {
	hue := math.Mod(float64(i)*137.508, 360)
	return colorful.Hsv(hue, 0.85, 0.95)
}

// drawLine draws a line segment with Bresenham's algorithm, stamping a
// thickness x thickness square at each step.
func drawLine(img *image.RGBA, a, b image.Point, thickness int, c color.Color) {
	dx := absInt(b.X - a.X)
	dy := -absInt(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	half := thickness / 2

	for {
		for ty := y - half; ty < y-half+thickness; ty++ {
			for tx := x - half; tx < x-half+thickness; tx++ {
				if image.Pt(tx, ty).In(img.Rect) {
					img.Set(tx, ty, c)
				}
			}
		}
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

// drawLabel draws text on a filled background just above anchor.
func drawLabel(img *image.RGBA, anchor image.Point, text string, bg color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Height

	top := anchor.Y - height - 1
	if top < img.Rect.Min.Y {
		top = anchor.Y + 1
	}
	box := image.Rect(anchor.X, top, anchor.X+width+2, top+height+1).Intersect(img.Rect)
	draw.Draw(img, box, image.NewUniform(bg), image.Point{}, draw.Src)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.White,
		Face: face,
		Dot:  fixed.P(anchor.X+1, top+face.Ascent),
	}
	d.DrawString(text)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
