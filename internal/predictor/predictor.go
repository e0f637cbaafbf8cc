// Package predictor chains preprocessing, a detection model and
// post-processing into a single call from pages to text boxes.
package predictor

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/ironsheep/textdet/internal/detection"
	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/model"
	"github.com/ironsheep/textdet/internal/preprocess"
)

// Predictor localizes text on document pages.
//
// A Predictor holds no per-call state; concurrent calls are safe when the
// model is.
type Predictor struct {
	pre    *preprocess.Preprocessor
	model  model.Model
	post   *detection.PostProcessor
	logger *slog.Logger
}

// Option configures a Predictor.
type Option func(*Predictor)

// WithLogger sets the logger used for batch progress.
func WithLogger(l *slog.Logger) Option {
	return func(p *Predictor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New assembles a Predictor from its three stages.
func New(pre *preprocess.Preprocessor, m model.Model, post *detection.PostProcessor, opts ...Option) *Predictor {
	p := &Predictor{
		pre:    pre,
		model:  m,
		post:   post,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InputSize returns the (height, width) pages are resized to before
// inference. Boxes returned by Predict are in this coordinate space.
func (p *Predictor) InputSize() (height, width int) {
	return p.pre.OutputSize()
}

// Predict returns one box list per page, in page order, with coordinates in
// model input space (see ToPage).
//
// Every page is validated before any work starts; a malformed page fails
// the whole call with an InvalidInputShape error and no results. Model
// errors are returned unchanged. Model options are forwarded to every
// batch.
func (p *Predictor) Predict(ctx context.Context, pages []imaging.Page, opts ...model.Option) ([][]detection.Box, error) {
	batches, err := p.pre.Process(pages)
	if err != nil {
		return nil, err
	}

	results := make([][]detection.Box, 0, len(pages))
	for i, batch := range batches {
		p.logger.DebugContext(ctx, "running detection batch",
			"batch", i+1, "batches", len(batches), "pages", batch.Dim(0))

		out, err := p.model.Call(ctx, batch, opts...)
		if err != nil {
			return nil, err
		}
		probaMap, err := model.ProbaMap(out, batch)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		boxes, err := p.post.Process(probaMap)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		results = append(results, boxes...)
	}

	p.logger.DebugContext(ctx, "detection complete", "pages", len(pages), "batches", len(batches))
	return results, nil
}

// PredictImages converts images to pages and runs Predict.
func (p *Predictor) PredictImages(ctx context.Context, imgs []image.Image, opts ...model.Option) ([][]detection.Box, error) {
	pages := make([]imaging.Page, len(imgs))
	for i, img := range imgs {
		pages[i] = imaging.FromImage(img)
	}
	return p.Predict(ctx, pages, opts...)
}

// ToPage maps boxes from model input space onto a page of the given size.
func (p *Predictor) ToPage(boxes []detection.Box, pageHeight, pageWidth int) []detection.Box {
	h, w := p.InputSize()
	sx := float64(pageWidth) / float64(w)
	sy := float64(pageHeight) / float64(h)

	out := make([]detection.Box, len(boxes))
	for i, b := range boxes {
		out[i] = b.Scale(sx, sy)
	}
	return out
}
