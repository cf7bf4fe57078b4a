package onnx

import (
	"errors"
	"fmt"
)

// Tensor is a float32 tensor prepared for ONNX input.
// Data layout is row-major, NCHW for images.
type Tensor struct {
	Data  []float32
	Shape []int64
}

// NewImageTensor builds a single-image tensor with shape [1, C, H, W].
func NewImageTensor(data []float32, c, h, w int) (Tensor, error) {
	if data == nil {
		return Tensor{}, errors.New("nil data")
	}
	if expected := c * h * w; len(data) != expected {
		return Tensor{}, fmt.Errorf("unexpected data length: got %d, want %d", len(data), expected)
	}
	return Tensor{Data: data, Shape: []int64{1, int64(c), int64(h), int64(w)}}, nil
}

// Height returns the H dimension of an NCHW tensor.
func (t Tensor) Height() int {
	if len(t.Shape) != 4 {
		return 0
	}
	return int(t.Shape[2])
}

// Width returns the W dimension of an NCHW tensor.
func (t Tensor) Width() int {
	if len(t.Shape) != 4 {
		return 0
	}
	return int(t.Shape[3])
}

// At returns the value at (c, y, x) of the first batch entry.
func (t Tensor) At(c, y, x int) float32 {
	h, w := t.Height(), t.Width()
	return t.Data[c*h*w+y*w+x]
}

// Verify checks that Shape is a positive NCHW shape matching len(Data).
func (t Tensor) Verify() error {
	if len(t.Shape) != 4 {
		return fmt.Errorf("shape rank %d != 4", len(t.Shape))
	}
	expected := int64(1)
	for i, v := range t.Shape {
		if v <= 0 {
			return fmt.Errorf("dimension %d must be > 0, got %d", i, v)
		}
		expected *= v
	}
	if int64(len(t.Data)) != expected {
		return fmt.Errorf("tensor data length %d != expected %d for shape %v", len(t.Data), expected, t.Shape)
	}
	return nil
}
