// Package model defines the boundary between the detection pipeline and a
// text detection network.
//
// A model is anything that maps a normalized (batch, H, W, 3) input tensor to
// an Output holding a (batch, H, W, 1) text probability map under
// ProbaMapKey. Architectures are interchangeable as long as they honour that
// contract; ProbaMap checks it before the post-processor runs.
package model

import (
	"context"
	"fmt"

	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/tensor"
)

// ProbaMapKey is the Output key carrying the probability map.
const ProbaMapKey = "proba_map"

// Output maps output names to tensors.
type Output map[string]*tensor.Tensor

// Model runs text detection on one preprocessed batch.
type Model interface {
	Call(ctx context.Context, batch *tensor.Tensor, opts ...Option) (Output, error)
}

// Func adapts an ordinary function to the Model interface.
type Func func(ctx context.Context, batch *tensor.Tensor, opts ...Option) (Output, error)

// Call calls f.
func (f Func) Call(ctx context.Context, batch *tensor.Tensor, opts ...Option) (Output, error) {
	return f(ctx, batch, opts...)
}

// Options is the resolved set of per-call overrides.
type Options struct {
	Training bool
	Params   map[string]float64
}

// Param returns the named override or def when it is absent.
func (o Options) Param(name string, def float64) float64 {
	if v, ok := o.Params[name]; ok {
		return v
	}
	return def
}

// Option overrides model behaviour for a single call. The pipeline forwards
// options untouched; their meaning is up to the model.
type Option func(*Options)

// WithTraining toggles training-mode behaviour such as dropout.
func WithTraining(training bool) Option {
	return func(o *Options) {
		o.Training = training
	}
}

// WithParam sets a named numeric parameter.
func WithParam(name string, value float64) Option {
	return func(o *Options) {
		if o.Params == nil {
			o.Params = make(map[string]float64)
		}
		o.Params[name] = value
	}
}

// Apply resolves opts in order; later options win.
func Apply(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// ProbaMap extracts the probability map from out and checks it against the
// input batch: it must exist, be rank 4 with a single channel and match the
// batch's size and spatial dimensions. Values are not range-checked.
func ProbaMap(out Output, batch *tensor.Tensor) (*tensor.Tensor, error) {
	p, ok := out[ProbaMapKey]
	if !ok || p == nil {
		return nil, apperrors.NewModelContractError(fmt.Sprintf("output has no %q tensor", ProbaMapKey))
	}
	if p.Rank() != 4 || p.Dim(3) != 1 {
		return nil, apperrors.NewModelContractError(
			fmt.Sprintf("%s must have shape (batch, H, W, 1), got %v", ProbaMapKey, p.Shape))
	}
	if batch != nil && batch.Rank() == 4 && !p.HasShape(batch.Dim(0), batch.Dim(1), batch.Dim(2), 1) {
		return nil, apperrors.NewModelContractError(
			fmt.Sprintf("%s shape %v does not match input batch %v", ProbaMapKey, p.Shape, batch.Shape))
	}
	if len(p.Data) != p.Dim(0)*p.Dim(1)*p.Dim(2) {
		return nil, apperrors.NewModelContractError(
			fmt.Sprintf("%s holds %d values for shape %v", ProbaMapKey, len(p.Data), p.Shape))
	}
	return p, nil
}
