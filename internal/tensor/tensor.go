// Package tensor provides the dense float32 tensor exchanged between the
// preprocessor, detection models and the post-processor.
//
// Tensors are stored row-major. Image batches use the NHWC layout:
// (batch, height, width, channels).
package tensor

import (
	"fmt"
)

// Tensor is a dense row-major float32 array.
type Tensor struct {
	Shape []int
	Data  []float32
}

// New allocates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in shape %v", shape))
		}
		n *= d
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{Shape: s, Data: make([]float32, n)}
}

// FromData wraps data in a tensor, checking that its length matches shape.
func FromData(data []float32, shape ...int) (*Tensor, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return nil, fmt.Errorf("negative dimension in shape %v", shape)
		}
		n *= d
	}
	if n != len(data) {
		return nil, fmt.Errorf("shape %v needs %d values, got %d", shape, n, len(data))
	}
	s := make([]int, len(shape))
	copy(s, shape)
	return &Tensor{Shape: s, Data: data}, nil
}

// Rank returns the number of dimensions.
func (t *Tensor) Rank() int {
	return len(t.Shape)
}

// Dim returns the size of dimension i.
func (t *Tensor) Dim(i int) int {
	return t.Shape[i]
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	return len(t.Data)
}

// Offset converts a multi-index to a flat offset into Data.
// It panics when the index rank or a coordinate is out of range.
func (t *Tensor) Offset(idx ...int) int {
	if len(idx) != len(t.Shape) {
		panic(fmt.Sprintf("tensor: index rank %d, tensor rank %d", len(idx), len(t.Shape)))
	}
	off := 0
	for i, v := range idx {
		if v < 0 || v >= t.Shape[i] {
			panic(fmt.Sprintf("tensor: index %v out of range for shape %v", idx, t.Shape))
		}
		off = off*t.Shape[i] + v
	}
	return off
}

// At returns the element at idx.
func (t *Tensor) At(idx ...int) float32 {
	return t.Data[t.Offset(idx...)]
}

// Set stores v at idx.
func (t *Tensor) Set(v float32, idx ...int) {
	t.Data[t.Offset(idx...)] = v
}

// HasShape reports whether the tensor has exactly the given shape.
// A negative expected dimension matches any size.
func (t *Tensor) HasShape(shape ...int) bool {
	if len(shape) != len(t.Shape) {
		return false
	}
	for i, d := range shape {
		if d >= 0 && t.Shape[i] != d {
			return false
		}
	}
	return true
}

// Unstack splits the tensor along its first axis. The returned tensors share
// storage with t.
func (t *Tensor) Unstack() []*Tensor {
	if len(t.Shape) == 0 {
		return nil
	}
	n := t.Shape[0]
	inner := t.Shape[1:]
	stride := 1
	for _, d := range inner {
		stride *= d
	}
	out := make([]*Tensor, n)
	for i := 0; i < n; i++ {
		s := make([]int, len(inner))
		copy(s, inner)
		out[i] = &Tensor{Shape: s, Data: t.Data[i*stride : (i+1)*stride]}
	}
	return out
}

// Squeeze removes axis when its size is 1. The result shares storage with t.
func (t *Tensor) Squeeze(axis int) (*Tensor, error) {
	if axis < 0 {
		axis += len(t.Shape)
	}
	if axis < 0 || axis >= len(t.Shape) {
		return nil, fmt.Errorf("axis %d out of range for shape %v", axis, t.Shape)
	}
	if t.Shape[axis] != 1 {
		return nil, fmt.Errorf("cannot squeeze axis %d of size %d", axis, t.Shape[axis])
	}
	s := make([]int, 0, len(t.Shape)-1)
	s = append(s, t.Shape[:axis]...)
	s = append(s, t.Shape[axis+1:]...)
	return &Tensor{Shape: s, Data: t.Data}, nil
}

// Stack joins same-shaped tensors along a new leading axis.
func Stack(ts []*Tensor) (*Tensor, error) {
	if len(ts) == 0 {
		return nil, fmt.Errorf("nothing to stack")
	}
	inner := ts[0].Shape
	stride := len(ts[0].Data)
	out := New(append([]int{len(ts)}, inner...)...)
	for i, t := range ts {
		if !sameShape(t.Shape, inner) {
			return nil, fmt.Errorf("tensor %d has shape %v, want %v", i, t.Shape, inner)
		}
		copy(out.Data[i*stride:], t.Data)
	}
	return out, nil
}

func sameShape(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
