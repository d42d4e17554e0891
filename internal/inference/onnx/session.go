// Package onnx runs models through ONNX Runtime.
package onnx

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/logging"
)

// DefaultLibraryPath is where the ONNX Runtime shared library is looked up
const DefaultLibraryPath = "lib/libonnxruntime.so"

var (
	initialized bool
	initMu      sync.Mutex
)

// Initialize sets up the ONNX Runtime environment (call once at startup)
func Initialize(libraryPath string) error {
	initMu.Lock()
	defer initMu.Unlock()

	if initialized {
		return nil
	}

	if libraryPath == "" {
		libraryPath = DefaultLibraryPath
	}
	ort.SetSharedLibraryPath(libraryPath)

	if err := ort.InitializeEnvironment(); err != nil {
		return errors.Wrap(err, "failed to initialize ONNX Runtime")
	}

	initialized = true
	return nil
}

// Shutdown cleans up the ONNX Runtime environment
func Shutdown() error {
	initMu.Lock()
	defer initMu.Unlock()

	if !initialized {
		return nil
	}

	if err := ort.DestroyEnvironment(); err != nil {
		return err
	}

	initialized = false
	return nil
}

// Options configures a session
type Options struct {
	Threads int
	// CoreML appends the CoreML execution provider, falling back to CPU
	CoreML bool
}

// Session wraps an ONNX Runtime session and implements inference.Engine
type Session struct {
	session   *ort.DynamicAdvancedSession
	modelPath string
	inputs    []inference.TensorInfo
	outputs   []inference.TensorInfo
	logger    *zap.SugaredLogger
}

// NewSession creates a session with every input and output of the model
func NewSession(modelPath string, opts Options, logger *zap.SugaredLogger) (*Session, error) {
	logger = logging.Or(logger)

	initMu.Lock()
	ready := initialized
	initMu.Unlock()
	if !ready {
		return nil, errors.New("ONNX Runtime not initialized, call Initialize() first")
	}

	inputs, outputs, err := Describe(modelPath)
	if err != nil {
		return nil, err
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	defer options.Destroy()

	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			return nil, errors.Wrap(err, "failed to set thread count")
		}
	}

	if opts.CoreML {
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			logger.Warnw("CoreML unavailable, using CPU", "model", modelPath, "error", err)
		} else {
			logger.Debugw("using CoreML", "model", modelPath)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		names(inputs),
		names(outputs),
		options,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create session for %s", modelPath)
	}

	return &Session{
		session:   session,
		modelPath: modelPath,
		inputs:    inputs,
		outputs:   outputs,
		logger:    logger,
	}, nil
}

// Describe reads the model's input and output tensors
func Describe(modelPath string) ([]inference.TensorInfo, []inference.TensorInfo, error) {
	in, out, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read model info for %s", modelPath)
	}
	return toInfo(in), toInfo(out), nil
}

// Metadata holds the descriptive fields of an ONNX model
type Metadata struct {
	Producer    string
	Domain      string
	Description string
	Version     int64
}

// ReadMetadata reads the model metadata; missing fields are left empty
func ReadMetadata(modelPath string) (Metadata, error) {
	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return Metadata{}, errors.Wrapf(err, "failed to read metadata for %s", modelPath)
	}
	defer metadata.Destroy()

	var md Metadata
	if producer, err := metadata.GetProducerName(); err == nil {
		md.Producer = producer
	}
	if domain, err := metadata.GetDomain(); err == nil {
		md.Domain = domain
	}
	if desc, err := metadata.GetDescription(); err == nil {
		md.Description = desc
	}
	if version, err := metadata.GetVersion(); err == nil {
		md.Version = version
	}
	return md, nil
}

// Run executes inference on float32 inputs
func (s *Session) Run(ctx context.Context, inputs []*tensor.Dense) ([]*tensor.Dense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(inputs) != len(s.inputs) {
		return nil, errors.Errorf("%s expects %d inputs, got %d", s.modelPath, len(s.inputs), len(inputs))
	}

	values := make([]ort.Value, 0, len(inputs))
	defer func() {
		for _, v := range values {
			v.Destroy()
		}
	}()
	for i, in := range inputs {
		data, err := inference.Float32s(in)
		if err != nil {
			return nil, errors.Wrapf(err, "input %s", s.inputs[i].Name)
		}
		t, err := ort.NewTensor(toShape(in.Shape()), data)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create input tensor %s", s.inputs[i].Name)
		}
		values = append(values, t)
	}

	// nil outputs are allocated by the runtime
	outputs := make([]ort.Value, len(s.outputs))
	defer func() {
		for _, v := range outputs {
			if v != nil {
				v.Destroy()
			}
		}
	}()

	if err := s.session.Run(values, outputs); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	result := make([]*tensor.Dense, len(outputs))
	for i, v := range outputs {
		t, ok := v.(*ort.Tensor[float32])
		if !ok {
			return nil, errors.Errorf("output %s is not a float32 tensor", s.outputs[i].Name)
		}
		data := append([]float32(nil), t.GetData()...)
		dense, err := inference.NewFloat32(fromShape(t.GetShape()), data)
		if err != nil {
			return nil, errors.Wrapf(err, "output %s", s.outputs[i].Name)
		}
		result[i] = dense
	}
	return result, nil
}

// Inputs returns the model inputs
func (s *Session) Inputs() []inference.TensorInfo { return s.inputs }

// Outputs returns the model outputs
func (s *Session) Outputs() []inference.TensorInfo { return s.outputs }

// Close releases session resources
func (s *Session) Close() error {
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

func toInfo(in []ort.InputOutputInfo) []inference.TensorInfo {
	infos := make([]inference.TensorInfo, len(in))
	for i, info := range in {
		infos[i] = inference.TensorInfo{Name: info.Name, Shape: fromShape(info.Dimensions)}
	}
	return infos
}

func names(infos []inference.TensorInfo) []string {
	return lo.Map(infos, func(info inference.TensorInfo, _ int) string { return info.Name })
}

func toShape(shape tensor.Shape) ort.Shape {
	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}
	return ort.NewShape(dims...)
}

// fromShape maps dynamic (-1) dimensions to 1
func fromShape(shape ort.Shape) []int {
	dims := make([]int, len(shape))
	for i, d := range shape {
		if d <= 0 {
			d = 1
		}
		dims[i] = int(d)
	}
	return dims
}
