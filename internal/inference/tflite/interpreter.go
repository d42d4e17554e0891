// Package tflite runs models through the TensorFlow Lite C API.
package tflite

import (
	"context"
	"runtime"
	"sync"

	gotflite "github.com/mattn/go-tflite"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/logging"
)

// Interpreter wraps a TFLite interpreter and implements inference.Engine
type Interpreter struct {
	mu        sync.Mutex
	model     *gotflite.Model
	options   *gotflite.InterpreterOptions
	interp    *gotflite.Interpreter
	modelPath string
	inputs    []inference.TensorInfo
	outputs   []inference.TensorInfo
}

// NewInterpreter loads a .tflite model and allocates its tensors
func NewInterpreter(modelPath string, threads int, logger *zap.SugaredLogger) (*Interpreter, error) {
	logger = logging.Or(logger)
	if threads <= 0 {
		threads = runtime.NumCPU()
	}

	model := gotflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, errors.Errorf("cannot load model %s", modelPath)
	}

	options := gotflite.NewInterpreterOptions()
	if options == nil {
		model.Delete()
		return nil, errors.New("interpreter options failed to be created")
	}
	options.SetNumThread(threads)
	options.SetErrorReporter(func(msg string, _ interface{}) {
		logger.Warnw("tflite", "model", modelPath, "message", msg)
	}, nil)

	interp := gotflite.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		model.Delete()
		return nil, errors.Errorf("cannot create interpreter for %s", modelPath)
	}

	if status := interp.AllocateTensors(); status != gotflite.OK {
		interp.Delete()
		options.Delete()
		model.Delete()
		return nil, errors.Errorf("failed to allocate tensors for %s", modelPath)
	}

	i := &Interpreter{
		model:     model,
		options:   options,
		interp:    interp,
		modelPath: modelPath,
	}
	for n := 0; n < interp.GetInputTensorCount(); n++ {
		i.inputs = append(i.inputs, info(interp.GetInputTensor(n)))
	}
	for n := 0; n < interp.GetOutputTensorCount(); n++ {
		i.outputs = append(i.outputs, info(interp.GetOutputTensor(n)))
	}
	return i, nil
}

// Run copies the inputs in, invokes the interpreter and copies the outputs out
func (i *Interpreter) Run(ctx context.Context, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if len(inputs) != len(i.inputs) {
		return nil, errors.Errorf("%s expects %d inputs, got %d", i.modelPath, len(i.inputs), len(inputs))
	}

	for n, in := range inputs {
		data, err := inference.Float32s(in)
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", i.inputs[n].Name)
		}
		dst := i.interp.GetInputTensor(n)
		switch dst.Type() {
		case gotflite.Float32:
			if status := dst.CopyFromBuffer(data); status != gotflite.OK {
				return nil, errors.Errorf("copying input %s failed", i.inputs[n].Name)
			}
		case gotflite.UInt8:
			q := make([]uint8, len(data))
			for k, v := range data {
				q[k] = uint8(clamp(v*255, 0, 255))
			}
			if status := dst.CopyFromBuffer(q); status != gotflite.OK {
				return nil, errors.Errorf("copying input %s failed", i.inputs[n].Name)
			}
		default:
			return nil, errors.Errorf("unsupported input type %v", dst.Type())
		}
	}

	if status := i.interp.Invoke(); status != gotflite.OK {
		return nil, errors.New("invoke failed")
	}

	outputs := make([]*tensor.Dense, len(i.outputs))
	for n := range i.outputs {
		src := i.interp.GetOutputTensor(n)
		var data []float32
		switch src.Type() {
		case gotflite.Float32:
			data = append([]float32(nil), src.Float32s()...)
		case gotflite.UInt8:
			q := src.QuantizationParams()
			raw := src.UInt8s()
			data = make([]float32, len(raw))
			for k, v := range raw {
				data[k] = float32(float64(int(v)-q.ZeroPoint) * q.Scale)
			}
		default:
			return nil, errors.Errorf("unsupported output type %v", src.Type())
		}
		dense, err := inference.NewFloat32(shape(src), data)
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", i.outputs[n].Name)
		}
		outputs[n] = dense
	}
	return outputs, nil
}

// Inputs returns the model inputs
func (i *Interpreter) Inputs() []inference.TensorInfo { return i.inputs }

// Outputs returns the model outputs
func (i *Interpreter) Outputs() []inference.TensorInfo { return i.outputs }

// Close deletes the interpreter, its options and the model
func (i *Interpreter) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.interp != nil {
		i.interp.Delete()
		i.interp = nil
	}
	if i.options != nil {
		i.options.Delete()
		i.options = nil
	}
	if i.model != nil {
		i.model.Delete()
		i.model = nil
	}
	return nil
}

func info(t *gotflite.Tensor) inference.TensorInfo {
	return inference.TensorInfo{Name: t.Name(), Shape: shape(t)}
}

func shape(t *gotflite.Tensor) []int {
	dims := make([]int, t.NumDims())
	for idx := range dims {
		dims[idx] = t.Dim(idx)
	}
	return dims
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
