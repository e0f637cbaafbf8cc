package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/blur"
	"github.com/anthonynsimon/bild/effect"
)

// EdgeDensity computes a smoothed edge-strength map for an image.
//
// The image is converted to luminance, passed through a Sobel operator and
// blurred with a Gaussian of the given radius, so each value reflects how
// much edge structure surrounds the pixel. Values are in [0, 1] and stored
// row-major (width*height). A radius <= 0 skips the blur.
//
// Printed text produces dense, fine-grained edges; flat backgrounds and
// large filled shapes produce little, which makes this map a cheap stand-in
// for a learned text probability.
func EdgeDensity(img image.Image, radius float64) []float64 {
	gray := effect.Grayscale(img)
	edges := effect.Sobel(gray)

	var smoothed *image.RGBA
	if radius > 0 {
		smoothed = blur.Gaussian(edges, radius)
	} else {
		smoothed = edges
	}

	b := smoothed.Bounds()
	width, height := b.Dx(), b.Dy()
	out := make([]float64, width*height)
	for y := 0; y < height; y++ {
		row := smoothed.Pix[y*smoothed.Stride:]
		for x := 0; x < width; x++ {
			// Sobel output is gray, any channel carries the magnitude.
			out[y*width+x] = float64(row[x*4]) / 255.0
		}
	}
	return out
}
