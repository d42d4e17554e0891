package inference

import (
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// NewFloat32 wraps data in a dense tensor of the given shape
func NewFloat32(shape []int, data []float32) (*tensor.Dense, error) {
	size := 1
	for _, dim := range shape {
		if dim <= 0 {
			return nil, errors.Wrapf(ErrShape, "dimension %d in %v", dim, shape)
		}
		size *= dim
	}
	if data == nil {
		data = make([]float32, size)
	}
	if len(data) != size {
		return nil, errors.Wrapf(ErrShape, "%d values for shape %v", len(data), shape)
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data)), nil
}

// Float32s returns the backing data of a float32 tensor
func Float32s(t *tensor.Dense) ([]float32, error) {
	if t == nil {
		return nil, errors.New("nil tensor")
	}
	data, ok := t.Data().([]float32)
	if !ok {
		return nil, errors.Errorf("tensor has dtype %v, want float32", t.Dtype())
	}
	return data, nil
}

// Rows returns the leading non-batch dimension of a shape,
// e.g. 896 for [1, 896, 16] and for [896, 16]
func Rows(shape tensor.Shape) int {
	dims := trimBatch(shape)
	if len(dims) == 0 {
		return 0
	}
	return dims[0]
}

// Volume returns the number of elements in a shape, skipping unknown dims
func Volume(shape tensor.Shape) int {
	if len(shape) == 0 {
		return 0
	}
	size := 1
	for _, dim := range shape {
		if dim > 0 {
			size *= dim
		}
	}
	return size
}

// CheckRows validates that a tensor has rows x cols elements, ignoring a batch dim of 1
func CheckRows(t *tensor.Dense, rows, cols int) error {
	if t == nil {
		return errors.Wrap(ErrShape, "nil tensor")
	}
	if got := t.Shape().TotalSize(); got != rows*cols {
		return errors.Wrapf(ErrShape, "shape %v, want %dx%d", t.Shape(), rows, cols)
	}
	return nil
}

func trimBatch(shape tensor.Shape) tensor.Shape {
	if len(shape) > 1 && shape[0] == 1 {
		return shape[1:]
	}
	return shape
}
