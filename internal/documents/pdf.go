package documents

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/gen2brain/go-fitz"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
)

// DefaultDPI is the rendering resolution used when none is given.
const DefaultDPI = 144

// pointsPerInch is the PDF user-space unit; MuPDF reports page bounds in
// points, i.e. pixels at 72 DPI.
const pointsPerInch = 72

// Document is an open MuPDF document: a PDF, or HTML opened through MuPDF's
// reflowable layout engine.
//
// The methods of a single Document must not be called concurrently; AsImages
// renders in parallel by opening one extra handle per worker.
type Document struct {
	mu   sync.Mutex
	doc  *fitz.Document
	path string
	data []byte

	// cleanup runs on Close, after the handle is released.
	cleanup func()
}

// ReadPDF opens a PDF document.
func ReadPDF(f File) (*Document, error) {
	if err := f.validate(); err != nil {
		return nil, err
	}

	if f.Path != "" {
		if _, err := checkPath(f.Path); err != nil {
			return nil, err
		}
	} else if !isPDF(f.Data) {
		return nil, apperrors.NewUndecodableError(f.String(), fmt.Errorf("missing %%PDF header"))
	}

	d := &Document{path: f.Path, data: f.Data}
	doc, err := d.open()
	if err != nil {
		return nil, apperrors.NewUndecodableError(f.String(), err)
	}
	d.doc = doc
	return d, nil
}

// isPDF reports whether data carries the PDF header within its first
// kilobyte, the window PDF readers scan.
func isPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}

// open creates a fresh MuPDF handle on the document source.
func (d *Document) open() (*fitz.Document, error) {
	if d.path != "" {
		return fitz.New(d.path)
	}
	return fitz.NewFromMemory(d.data)
}

// NumPages returns the page count.
func (d *Document) NumPages() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.NumPage()
}

// Text returns the text layer of page i.
func (d *Document) Text(i int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Text(i)
}

// PageSize returns the size of page i in points.
func (d *Document) PageSize(i int) (width, height float64, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rect, err := d.doc.Bound(i)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// Metadata returns the document information dictionary.
func (d *Document) Metadata() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Metadata()
}

// Close releases the MuPDF handle.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.doc == nil {
		return nil
	}
	err := d.doc.Close()
	d.doc = nil
	if d.cleanup != nil {
		d.cleanup()
		d.cleanup = nil
	}
	return err
}

type renderOptions struct {
	dpi           float64
	height, width int
	workers       int
	pages         []int

	// rendered, when set, is called with each page index before it is
	// rasterized.
	rendered func(page int)
}

// RenderOption configures page rendering.
type RenderOption func(*renderOptions)

// WithDPI sets the rendering resolution.
func WithDPI(dpi float64) RenderOption {
	return func(o *renderOptions) {
		o.dpi = dpi
	}
}

// WithPageSize renders every page to exactly height x width pixels. The
// page is rasterized at the smallest resolution covering that size, then
// resized.
func WithPageSize(height, width int) RenderOption {
	return func(o *renderOptions) {
		o.height, o.width = height, width
	}
}

// WithWorkers bounds the number of pages rendered concurrently.
func WithWorkers(n int) RenderOption {
	return func(o *renderOptions) {
		o.workers = n
	}
}

// WithPages restricts rendering to the given page indices. Pages are
// returned in the order given; an index outside the document is an error.
func WithPages(pages ...int) RenderOption {
	return func(o *renderOptions) {
		o.pages = pages
	}
}

// selectPages returns the indices to render out of n pages.
func (o renderOptions) selectPages(name string, n int) ([]int, error) {
	if len(o.pages) == 0 {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}
	for _, i := range o.pages {
		if i < 0 || i >= n {
			return nil, fmt.Errorf("page %d out of range: %s has %d pages", i, name, n)
		}
	}
	return o.pages, nil
}

func resolveRenderOptions(opts []RenderOption) renderOptions {
	o := renderOptions{dpi: DefaultDPI, workers: runtime.NumCPU()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.dpi <= 0 {
		o.dpi = DefaultDPI
	}
	if o.workers < 1 {
		o.workers = 1
	}
	return o
}

// RenderPage rasterizes page i.
func (d *Document) RenderPage(i int, opts ...RenderOption) (imaging.Page, error) {
	o := resolveRenderOptions(opts)
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkPage(i); err != nil {
		return imaging.Page{}, err
	}
	return renderPage(d.doc, i, o)
}

// AsImages rasterizes every page, or the pages chosen with WithPages, in
// order. Pages are rendered on up to WithWorkers goroutines, each with its
// own MuPDF handle. The first error cancels the remaining work.
func (d *Document) AsImages(ctx context.Context, opts ...RenderOption) ([]imaging.Page, error) {
	o := resolveRenderOptions(opts)
	indices, err := o.selectPages(d.name(), d.NumPages())
	if err != nil {
		return nil, err
	}
	n := len(indices)
	pages := make([]imaging.Page, n)
	if n == 0 {
		return pages, nil
	}

	workers := o.workers
	if workers > n {
		workers = n
	}

	next := make(chan int)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(next)
		for k := 0; k < n; k++ {
			select {
			case next <- k:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			doc, err := d.open()
			if err != nil {
				return apperrors.NewUndecodableError(d.name(), err)
			}
			defer doc.Close()

			for k := range next {
				if err := ctx.Err(); err != nil {
					return err
				}
				page, err := renderPage(doc, indices[k], o)
				if err != nil {
					return err
				}
				pages[k] = page
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

func (d *Document) name() string {
	if d.path != "" {
		return d.path
	}
	return fmt.Sprintf("<%d bytes>", len(d.data))
}

func renderPage(doc *fitz.Document, i int, o renderOptions) (imaging.Page, error) {
	if o.rendered != nil {
		o.rendered(i)
	}
	dpi := o.dpi
	if o.height > 0 && o.width > 0 {
		rect, err := doc.Bound(i)
		if err != nil {
			return imaging.Page{}, fmt.Errorf("failed to read bounds of page %d: %w", i, err)
		}
		if rect.Dx() > 0 && rect.Dy() > 0 {
			dpi = pointsPerInch * math.Max(
				float64(o.height)/float64(rect.Dy()),
				float64(o.width)/float64(rect.Dx()))
		}
	}

	img, err := doc.ImageDPI(i, dpi)
	if err != nil {
		return imaging.Page{}, fmt.Errorf("failed to render page %d: %w", i, err)
	}
	page := imaging.FromImage(img)

	if o.height > 0 && o.width > 0 {
		page, err = imaging.ResizePage(page, o.height, o.width, imaging.Bilinear)
		if err != nil {
			return imaging.Page{}, fmt.Errorf("failed to resize page %d: %w", i, err)
		}
	}
	return page, nil
}
