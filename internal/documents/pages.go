package documents

import (
	"context"
	"net/http"

	"github.com/ironsheep/textdet/internal/imaging"
)

// ReadPages reads any supported document into pages: a PDF is rendered
// page by page with opts, anything else is decoded as a single image.
// The kind is taken from the content, not the file name. WithPages limits
// the pages read, for images as for PDFs.
func ReadPages(ctx context.Context, f File, opts ...RenderOption) ([]imaging.Page, error) {
	data, err := f.bytes()
	if err != nil {
		return nil, err
	}

	if !isPDF(data) {
		o := resolveRenderOptions(opts)
		indices, err := o.selectPages(f.String(), 1)
		if err != nil {
			return nil, err
		}
		page, err := decodePage(f.String(), data, imageOptions{})
		if err != nil {
			return nil, err
		}
		pages := make([]imaging.Page, len(indices))
		for k := range pages {
			pages[k] = page
		}
		return pages, nil
	}

	doc, err := ReadPDF(f)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.AsImages(ctx, opts...)
}

// ReadURLPages fetches a web page and renders it.
func ReadURLPages(ctx context.Context, client *http.Client, url string, opts ...RenderOption) ([]imaging.Page, error) {
	doc, err := FromURL(ctx, client, url)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.AsImages(ctx, opts...)
}
