package imaging

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// CropRegion extracts a rectangular region from an image, grown by padding
// pixels on every side and clipped to the image bounds.
//
// The result is rebased to start at (0, 0). An error is returned when the
// clipped region is empty.
func CropRegion(img image.Image, region image.Rectangle, padding int) (*image.NRGBA, error) {
	bounds := img.Bounds()

	r := region.Inset(-padding).Intersect(bounds)
	if r.Empty() {
		return nil, fmt.Errorf("crop region %v outside image bounds %v", region, bounds)
	}

	return imaging.Crop(img, r), nil
}

// ScaleRegion upsamples a crop so that its height is at least minHeight,
// keeping the aspect ratio. Small crops of text lines read poorly in
// Tesseract; crops that are already tall enough are returned as is.
func ScaleRegion(img *image.NRGBA, minHeight int) *image.NRGBA {
	h := img.Bounds().Dy()
	if minHeight <= 0 || h >= minHeight || h == 0 {
		return img
	}
	scale := float64(minHeight) / float64(h)
	newWidth := int(float64(img.Bounds().Dx())*scale + 0.5)
	return imaging.Resize(img, newWidth, minHeight, imaging.Lanczos)
}
