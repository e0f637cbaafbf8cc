package documents

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF format decoder
	_ "image/jpeg" // Register JPEG format decoder
	_ "image/png"  // Register PNG format decoder

	dimaging "github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // Register BMP format decoder
	_ "golang.org/x/image/tiff" // Register TIFF format decoder
	_ "golang.org/x/image/webp" // Register WebP format decoder

	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
)

type imageOptions struct {
	height, width int
}

// ImageOption configures ReadImage.
type ImageOption func(*imageOptions)

// WithOutputSize resizes the decoded image to exactly height x width with
// bilinear interpolation.
func WithOutputSize(height, width int) ImageOption {
	return func(o *imageOptions) {
		o.height, o.width = height, width
	}
}

// ReadImage decodes an image file into a page. EXIF orientation is applied.
// Supported formats are PNG, JPEG, GIF, BMP, TIFF and WebP.
func ReadImage(f File, opts ...ImageOption) (imaging.Page, error) {
	var o imageOptions
	for _, opt := range opts {
		opt(&o)
	}

	data, err := f.bytes()
	if err != nil {
		return imaging.Page{}, err
	}
	return decodePage(f.String(), data, o)
}

func decodePage(name string, data []byte, o imageOptions) (imaging.Page, error) {
	img, err := dimaging.Decode(bytes.NewReader(data), dimaging.AutoOrientation(true))
	if err != nil {
		return imaging.Page{}, apperrors.NewUndecodableError(name, err)
	}

	page := imaging.FromImage(img)
	if o.height != 0 || o.width != 0 {
		page, err = imaging.ResizePage(page, o.height, o.width, imaging.Bilinear)
		if err != nil {
			return imaging.Page{}, fmt.Errorf("failed to resize %s: %w", name, err)
		}
	}
	return page, nil
}

// FromImages reads every file as an image page, in order. The first failure
// aborts the call.
func FromImages(files []File, opts ...ImageOption) ([]imaging.Page, error) {
	pages := make([]imaging.Page, 0, len(files))
	for _, f := range files {
		page, err := ReadImage(f, opts...)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// decodeConfig reads the image header only.
func decodeConfig(data []byte) (image.Config, string, error) {
	return image.DecodeConfig(bytes.NewReader(data))
}
