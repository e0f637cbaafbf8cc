package documents

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	apperrors "github.com/ironsheep/textdet/internal/errors"
)

// Kinds reported by Inspect.
const (
	KindImage = "image"
	KindPDF   = "pdf"
)

// Info describes a document without rasterizing it.
type Info struct {
	// Kind is KindImage or KindPDF.
	Kind string `json:"kind"`

	// Format is the decoder name for images ("png", "jpeg", ...) or "pdf".
	Format string `json:"format"`

	// Pages is the page count; 1 for images.
	Pages int `json:"pages"`

	// Width and Height are the size of the first page: pixels for images,
	// points for PDFs.
	Width  int `json:"width"`
	Height int `json:"height"`

	// ColorDepth is "8-bit" or "16-bit" (images only).
	ColorDepth string `json:"color_depth,omitempty"`

	// HasAlpha reports an alpha channel (images only).
	HasAlpha bool `json:"has_alpha,omitempty"`

	// SizeBytes is the size of the encoded file.
	SizeBytes int64 `json:"size_bytes"`

	// Metadata is the PDF information dictionary, with empty values dropped.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Inspect reads a document's header and reports its kind, size and page
// count. Images are identified by content, not extension.
func Inspect(f File) (*Info, error) {
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}

	if isPDF(data) {
		return inspectPDF(f, int64(len(data)))
	}

	cfg, format, err := decodeConfig(data)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, apperrors.NewUnsupportedTypeError(fmt.Sprintf("%s is neither a PDF nor a supported image", f))
		}
		return nil, apperrors.NewUndecodableError(f.String(), err)
	}

	depth, alpha := describeModel(cfg.ColorModel)
	return &Info{
		Kind:       KindImage,
		Format:     format,
		Pages:      1,
		Width:      cfg.Width,
		Height:     cfg.Height,
		ColorDepth: depth,
		HasAlpha:   alpha,
		SizeBytes:  int64(len(data)),
	}, nil
}

func inspectPDF(f File, size int64) (*Info, error) {
	doc, err := ReadPDF(f)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	info := &Info{
		Kind:      KindPDF,
		Format:    "pdf",
		Pages:     doc.NumPages(),
		SizeBytes: size,
	}
	if info.Pages > 0 {
		w, h, err := doc.PageSize(0)
		if err != nil {
			return nil, apperrors.NewUndecodableError(f.String(), err)
		}
		info.Width, info.Height = int(w), int(h)
	}

	meta := doc.Metadata()
	for k, v := range meta {
		if v == "" {
			continue
		}
		if info.Metadata == nil {
			info.Metadata = make(map[string]string)
		}
		info.Metadata[k] = v
	}
	return info, nil
}

// describeModel maps a colour model to a bit depth and alpha flag.
func describeModel(m color.Model) (depth string, alpha bool) {
	switch m {
	case color.RGBA64Model, color.NRGBA64Model:
		return "16-bit", true
	case color.Gray16Model:
		return "16-bit", false
	case color.RGBAModel, color.NRGBAModel, color.AlphaModel:
		return "8-bit", true
	case color.Alpha16Model:
		return "16-bit", true
	}
	return "8-bit", false
}
