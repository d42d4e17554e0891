// Package inference defines the contract between the post-processing core and
// whatever runtime executes the models.
package inference

import (
	"context"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// ErrShape is returned when a tensor does not have the expected shape
var ErrShape = errors.New("unexpected tensor shape")

// TensorInfo describes one model input or output
type TensorInfo struct {
	Name  string
	Shape tensor.Shape
}

// Engine runs a model on float32 tensors
type Engine interface {
	Run(ctx context.Context, inputs []*tensor.Dense) ([]*tensor.Dense, error)
	Inputs() []TensorInfo
	Outputs() []TensorInfo
	Close() error
}

// Func adapts a plain function to the Engine interface
type Func struct {
	InputInfo  []TensorInfo
	OutputInfo []TensorInfo
	Fn         func(ctx context.Context, inputs []*tensor.Dense) ([]*tensor.Dense, error)
}

// Run calls Fn
func (f *Func) Run(ctx context.Context, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if f.Fn == nil {
		return nil, errors.New("engine has no function")
	}
	return f.Fn(ctx, inputs)
}

// Inputs returns the declared inputs
func (f *Func) Inputs() []TensorInfo { return f.InputInfo }

// Outputs returns the declared outputs
func (f *Func) Outputs() []TensorInfo { return f.OutputInfo }

// Close is a no-op
func (f *Func) Close() error { return nil }
