package detection

import (
	"fmt"

	apperrors "github.com/ironsheep/textdet/internal/errors"
	"github.com/ironsheep/textdet/internal/tensor"
)

// ProbabilityMap holds one page of model output: the per-pixel probability
// that the pixel belongs to text, row-major, values in [0, 1].
type ProbabilityMap struct {
	Width  int
	Height int
	Data   []float32
}

// NewProbabilityMap allocates a map filled with value.
func NewProbabilityMap(width, height int, value float32) ProbabilityMap {
	data := make([]float32, width*height)
	if value != 0 {
		for i := range data {
			data[i] = value
		}
	}
	return ProbabilityMap{Width: width, Height: height, Data: data}
}

// At returns the probability at (x, y). No bounds checking is performed.
func (p ProbabilityMap) At(x, y int) float32 {
	return p.Data[y*p.Width+x]
}

// Set stores v at (x, y).
func (p ProbabilityMap) Set(x, y int, v float32) {
	p.Data[y*p.Width+x] = v
}

// Fill sets every pixel of the inclusive rectangle b to v.
func (p ProbabilityMap) Fill(b Bounds, v float32) {
	for y := b.Y1; y <= b.Y2; y++ {
		for x := b.X1; x <= b.X2; x++ {
			p.Data[y*p.Width+x] = v
		}
	}
}

// MapsFromTensor squeezes the channel axis of a (batch, H, W, 1) tensor and
// unstacks it into one map per page. A (batch, H, W) tensor is accepted as
// already squeezed. The maps share storage with t.
func MapsFromTensor(t *tensor.Tensor) ([]ProbabilityMap, error) {
	if t == nil {
		return nil, apperrors.NewModelContractError("probability map is nil")
	}

	squeezed := t
	switch {
	case t.Rank() == 4 && t.Dim(3) == 1:
		var err error
		if squeezed, err = t.Squeeze(3); err != nil {
			return nil, apperrors.NewModelContractError(err.Error())
		}
	case t.Rank() == 3:
	default:
		return nil, apperrors.NewModelContractError(
			fmt.Sprintf("probability map must have shape (batch, H, W, 1), got %v", t.Shape))
	}

	pages := squeezed.Unstack()
	maps := make([]ProbabilityMap, len(pages))
	for i, page := range pages {
		maps[i] = ProbabilityMap{Width: page.Dim(1), Height: page.Dim(0), Data: page.Data}
	}
	return maps, nil
}
