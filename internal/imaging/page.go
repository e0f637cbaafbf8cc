package imaging

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	apperrors "github.com/ironsheep/textdet/internal/errors"
)

// PageChannels is the channel count every page must carry (R, G, B).
const PageChannels = 3

// Page is a decoded document page: a dense 8-bit raster stored row-major with
// interleaved channels (height x width x channels).
//
// Pages are produced by the document readers and consumed by the
// preprocessor. Nothing in the pipeline mutates a page.
type Page struct {
	// Height is the number of rows.
	Height int

	// Width is the number of columns.
	Width int

	// Channels is the number of interleaved values per pixel. Well-formed
	// pages have exactly PageChannels.
	Channels int

	// Pix holds Height*Width*Channels values.
	Pix []uint8
}

// NewPage allocates a black 3-channel page.
func NewPage(height, width int) Page {
	return Page{
		Height:   height,
		Width:    width,
		Channels: PageChannels,
		Pix:      make([]uint8, height*width*PageChannels),
	}
}

// Validate checks that the page is a well-formed 3-channel 2D raster.
// The returned error matches apperrors.ErrInvalidInputShape.
func (p Page) Validate() error {
	return p.validate(0)
}

func (p Page) validate(index int) error {
	switch {
	case p.Height <= 0 || p.Width <= 0:
		return apperrors.NewInvalidInputShapeError(index,
			fmt.Sprintf("non-positive size %dx%d", p.Height, p.Width))
	case p.Channels != PageChannels:
		return apperrors.NewInvalidInputShapeError(index,
			fmt.Sprintf("%d channels", p.Channels))
	case len(p.Pix) != p.Height*p.Width*p.Channels:
		return apperrors.NewInvalidInputShapeError(index,
			fmt.Sprintf("%d values for a %dx%dx%d raster", len(p.Pix), p.Height, p.Width, p.Channels))
	}
	return nil
}

// ValidatePages checks every page and fails on the first malformed one.
func ValidatePages(pages []Page) error {
	for i, p := range pages {
		if err := p.validate(i); err != nil {
			return err
		}
	}
	return nil
}

// At returns the RGB triple at (x, y). No bounds checking is performed.
func (p Page) At(x, y int) (r, g, b uint8) {
	i := (y*p.Width + x) * p.Channels
	return p.Pix[i], p.Pix[i+1], p.Pix[i+2]
}

// Bounds returns the page rectangle anchored at the origin.
func (p Page) Bounds() image.Rectangle {
	return image.Rect(0, 0, p.Width, p.Height)
}

// FromImage converts any image.Image into a page. Alpha is discarded and
// 16-bit channels are reduced to 8 bits. Coordinates are rebased so that the
// image's Min corner becomes (0, 0).
func FromImage(img image.Image) Page {
	b := img.Bounds()
	page := NewPage(b.Dy(), b.Dx())

	// Fast path for the layout produced by disintegration/imaging and go-fitz.
	src, ok := img.(*image.NRGBA)
	if !ok {
		if rgba, isRGBA := img.(*image.RGBA); isRGBA && opaque(rgba) {
			src = &image.NRGBA{Pix: rgba.Pix, Stride: rgba.Stride, Rect: rgba.Rect}
			ok = true
		}
	}
	if ok {
		for y := 0; y < page.Height; y++ {
			row := src.Pix[(y+b.Min.Y-src.Rect.Min.Y)*src.Stride+(b.Min.X-src.Rect.Min.X)*4:]
			for x := 0; x < page.Width; x++ {
				di := (y*page.Width + x) * PageChannels
				page.Pix[di] = row[x*4]
				page.Pix[di+1] = row[x*4+1]
				page.Pix[di+2] = row[x*4+2]
			}
		}
		return page
	}

	for y := 0; y < page.Height; y++ {
		for x := 0; x < page.Width; x++ {
			c := color.NRGBAModel.Convert(img.At(x+b.Min.X, y+b.Min.Y)).(color.NRGBA)
			di := (y*page.Width + x) * PageChannels
			page.Pix[di] = c.R
			page.Pix[di+1] = c.G
			page.Pix[di+2] = c.B
		}
	}
	return page
}

// opaque reports whether every alpha value is 255, in which case RGBA and
// NRGBA share the same byte layout.
func opaque(img *image.RGBA) bool {
	b := img.Rect
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := img.Pix[(y-b.Min.Y)*img.Stride:]
		for x := 0; x < b.Dx(); x++ {
			if row[x*4+3] != 0xff {
				return false
			}
		}
	}
	return true
}

// ToImage converts the page into an opaque *image.NRGBA.
func (p Page) ToImage() *image.NRGBA {
	img := image.NewNRGBA(p.Bounds())
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			si := (y*p.Width + x) * p.Channels
			di := y*img.Stride + x*4
			img.Pix[di] = p.Pix[si]
			img.Pix[di+1] = p.Pix[si+1]
			img.Pix[di+2] = p.Pix[si+2]
			img.Pix[di+3] = 0xff
		}
	}
	return img
}

// ToRGBA converts the page into a drawable *image.RGBA.
func (p Page) ToRGBA() *image.RGBA {
	dst := image.NewRGBA(p.Bounds())
	draw.Draw(dst, dst.Bounds(), p.ToImage(), image.Point{}, draw.Src)
	return dst
}
