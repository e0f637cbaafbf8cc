// Package preprocess turns page rasters into normalized model input batches.
//
// Every page is resized to the configured output size, scaled to [0, 1],
// normalized per channel with (v - mean) / std and packed into NHWC float32
// tensors of at most BatchSize pages.
package preprocess

import (
	"fmt"
	"math"

	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/tensor"
)

// Config describes the model input.
type Config struct {
	// OutputSize is the (height, width) every page is resized to.
	OutputSize [2]int `yaml:"output_size" json:"output_size"`

	// BatchSize is the maximum number of pages per batch.
	BatchSize int `yaml:"batch_size" json:"batch_size"`

	// Mean and Std are the per-channel statistics of the training data,
	// expressed on the [0, 1] scale.
	Mean [3]float64 `yaml:"mean" json:"mean"`
	Std  [3]float64 `yaml:"std" json:"std"`

	// Interpolation selects the resize filter.
	Interpolation imaging.Interpolation `yaml:"interpolation" json:"interpolation"`
}

// DefaultConfig returns the standard statistics for the given output size.
func DefaultConfig(height, width int) Config {
	return Config{
		OutputSize:    [2]int{height, width},
		BatchSize:     1,
		Mean:          [3]float64{0.5, 0.5, 0.5},
		Std:           [3]float64{1, 1, 1},
		Interpolation: imaging.Bilinear,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.OutputSize[0] <= 0 || c.OutputSize[1] <= 0 {
		return apperrors.NewInvalidConfigError("output_size",
			fmt.Sprintf("must be positive, got %dx%d", c.OutputSize[0], c.OutputSize[1]))
	}
	if c.BatchSize <= 0 {
		return apperrors.NewInvalidConfigError("batch_size", fmt.Sprintf("must be positive, got %d", c.BatchSize))
	}
	for i, s := range c.Std {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return apperrors.NewInvalidConfigError("std", fmt.Sprintf("channel %d must be finite and non-zero, got %v", i, s))
		}
	}
	for i, m := range c.Mean {
		if math.IsNaN(m) || math.IsInf(m, 0) {
			return apperrors.NewInvalidConfigError("mean", fmt.Sprintf("channel %d must be finite, got %v", i, m))
		}
	}
	if _, err := c.Interpolation.Filter(); err != nil {
		return apperrors.NewInvalidConfigError("interpolation", err.Error())
	}
	return nil
}

// Preprocessor resizes, normalizes and batches pages.
// It is immutable once built and safe for concurrent use.
type Preprocessor struct {
	cfg Config

	// scale and shift fold the normalization into one multiply-add per
	// value: (v/255 - mean) / std == v*scale + shift.
	scale [3]float32
	shift [3]float32
}

// New validates cfg and returns a Preprocessor.
func New(cfg Config) (*Preprocessor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Preprocessor{cfg: cfg}
	for c := 0; c < 3; c++ {
		p.scale[c] = float32(1 / (255 * cfg.Std[c]))
		p.shift[c] = float32(-cfg.Mean[c] / cfg.Std[c])
	}
	return p, nil
}

// Config returns the configuration in use.
func (p *Preprocessor) Config() Config {
	return p.cfg
}

// OutputSize returns the (height, width) of every page in a batch.
func (p *Preprocessor) OutputSize() (height, width int) {
	return p.cfg.OutputSize[0], p.cfg.OutputSize[1]
}

// NumBatches returns how many batches Process produces for n pages.
func (p *Preprocessor) NumBatches(n int) int {
	return (n + p.cfg.BatchSize - 1) / p.cfg.BatchSize
}

// Process validates every page, then returns ceil(N/B) tensors of shape
// (b, H, W, 3) with b <= B, pages in input order. If any page is
// malformed no batch is returned.
func (p *Preprocessor) Process(pages []imaging.Page) ([]*tensor.Tensor, error) {
	if err := imaging.ValidatePages(pages); err != nil {
		return nil, err
	}

	h, w := p.OutputSize()
	batches := make([]*tensor.Tensor, 0, p.NumBatches(len(pages)))
	for start := 0; start < len(pages); start += p.cfg.BatchSize {
		end := start + p.cfg.BatchSize
		if end > len(pages) {
			end = len(pages)
		}

		planes := make([]*tensor.Tensor, 0, end-start)
		for i, page := range pages[start:end] {
			resized, err := imaging.ResizePage(page, h, w, p.cfg.Interpolation)
			if err != nil {
				return nil, fmt.Errorf("failed to resize page %d: %w", start+i, err)
			}
			plane := tensor.New(h, w, imaging.PageChannels)
			p.normalize(resized.Pix, plane.Data)
			planes = append(planes, plane)
		}
		batch, err := tensor.Stack(planes)
		if err != nil {
			return nil, fmt.Errorf("failed to assemble batch at page %d: %w", start, err)
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// normalize writes the normalized values of HWC pixels into dst.
func (p *Preprocessor) normalize(pix []uint8, dst []float32) {
	for i, v := range pix {
		c := i % imaging.PageChannels
		dst[i] = float32(v)*p.scale[c] + p.shift[c]
	}
}
