package model

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/ironsheep/textdet/internal/imaging"
	"github.com/ironsheep/textdet/internal/tensor"
)

// Contrast is a training-free detection model. It scores each pixel by the
// density of edges around it: printed text is made of many short strokes,
// backgrounds and large fills have few edges.
//
// The smoothed edge density d is mapped to a probability with the logistic
// curve 1 / (1 + exp(-Gain*(d-Midpoint))).
type Contrast struct {
	// Sigma is the Gaussian blur radius applied to the edge map.
	// WithParam("sigma", v) overrides it per call.
	Sigma float64 `yaml:"sigma" json:"sigma"`

	// Gain is the steepness of the logistic curve.
	Gain float64 `yaml:"gain" json:"gain"`

	// Midpoint is the edge density mapped to probability 0.5.
	Midpoint float64 `yaml:"midpoint" json:"midpoint"`

	// Mean and Std undo the preprocessing normalization so the model sees
	// the original pixel values.
	Mean [3]float64 `yaml:"-" json:"-"`
	Std  [3]float64 `yaml:"-" json:"-"`
}

// NewContrast returns a Contrast model with default curve parameters for
// input normalized with mean and std.
func NewContrast(mean, std [3]float64) *Contrast {
	return &Contrast{
		Sigma:    2,
		Gain:     25,
		Midpoint: 0.12,
		Mean:     mean,
		Std:      std,
	}
}

// Call implements Model.
func (m *Contrast) Call(ctx context.Context, batch *tensor.Tensor, opts ...Option) (Output, error) {
	if batch == nil || batch.Rank() != 4 || batch.Dim(3) != imaging.PageChannels {
		var shape []int
		if batch != nil {
			shape = batch.Shape
		}
		return nil, fmt.Errorf("contrast model expects a (batch, H, W, 3) tensor, got %v", shape)
	}

	o := Apply(opts...)
	sigma := o.Param("sigma", m.Sigma)

	n, h, w := batch.Dim(0), batch.Dim(1), batch.Dim(2)
	out := tensor.New(n, h, w, 1)
	for i, page := range batch.Unstack() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		density := imaging.EdgeDensity(Denormalize(page, m.Mean, m.Std), sigma)
		dst := out.Data[i*h*w : (i+1)*h*w]
		for j, d := range density {
			dst[j] = float32(1 / (1 + math.Exp(-m.Gain*(d-m.Midpoint))))
		}
	}
	return Output{ProbaMapKey: out}, nil
}

// Denormalize rebuilds an 8-bit raster from one (H, W, 3) page tensor
// normalized with mean and std. A zero std channel is treated as 1.
func Denormalize(page *tensor.Tensor, mean, std [3]float64) *image.NRGBA {
	h, w := page.Dim(0), page.Dim(1)
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			src := (y*w + x) * 3
			dst := y*img.Stride + x*4
			for c := 0; c < 3; c++ {
				sd := std[c]
				if sd == 0 {
					sd = 1
				}
				v := (float64(page.Data[src+c])*sd + mean[c]) * 255
				img.Pix[dst+c] = uint8(math.Max(0, math.Min(255, math.Round(v))))
			}
			img.Pix[dst+3] = 0xff
		}
	}
	return img
}
