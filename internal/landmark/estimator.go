package landmark

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/inference"
)

// Estimator runs a landmark model on an ROI crop
type Estimator struct {
	engine        inference.Engine
	family        detector.Family
	model         Model
	width, height int

	landmarksOutput int
	scoreOutput     int
	logger          *zap.SugaredLogger
}

// NewEstimator pairs an engine with the landmark layout of a detector family.
// Outputs are located by size: the first single-value output is the score and
// the first output large enough for the layout holds the landmarks.
func NewEstimator(engine inference.Engine, family detector.Family, logger *zap.SugaredLogger) (*Estimator, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	outputs := engine.Outputs()
	landmarksLen := 0
	if family == detector.FamilyPalm || family == detector.FamilyPose {
		for _, out := range outputs {
			if n := inference.Volume(out.Shape); n > 1 {
				if _, err := ForFamily(family, n); err == nil {
					landmarksLen = n
					break
				}
			}
		}
	}
	model, err := ForFamily(family, landmarksLen)
	if err != nil {
		return nil, err
	}

	e := &Estimator{
		engine:          engine,
		family:          family,
		model:           model,
		width:           model.InputSize,
		height:          model.InputSize,
		landmarksOutput: 0,
		scoreOutput:     1,
		logger:          logger,
	}
	if err := e.locateOutputs(outputs); err != nil {
		return nil, err
	}
	if inputs := engine.Inputs(); len(inputs) > 0 {
		if w, h, ok := imageSize(inputs[0].Shape); ok {
			e.width, e.height = w, h
		}
	}

	logger.Debugw("landmark model ready",
		"family", family,
		"landmarks", model.Options.Count,
		"input", []int{e.width, e.height},
		"landmarks_output", e.landmarksOutput,
		"score_output", e.scoreOutput,
	)
	return e, nil
}

func (e *Estimator) locateOutputs(outputs []inference.TensorInfo) error {
	if len(outputs) == 0 {
		return nil
	}
	need := e.model.Options.Count * e.model.Options.Stride
	landmarks, larger, score := -1, -1, -1
	for i, out := range outputs {
		switch vol := inference.Volume(out.Shape); {
		case vol == 1 && score < 0:
			score = i
		case vol == need && landmarks < 0:
			landmarks = i
		case vol > need && larger < 0:
			larger = i
		}
	}
	if landmarks < 0 {
		landmarks = larger
	}
	if landmarks < 0 {
		return errors.Wrapf(ErrShortTensor, "%s landmark model has no output with %d values", e.family, need)
	}
	if score < 0 {
		return errors.Errorf("%s landmark model has no score output", e.family)
	}
	e.landmarksOutput, e.scoreOutput = landmarks, score
	return nil
}

// imageSize reads width and height from an NHWC or NCHW image shape
func imageSize(shape tensor.Shape) (int, int, bool) {
	if len(shape) != 4 {
		return 0, 0, false
	}
	switch {
	case shape[3] == 3 && shape[1] > 0 && shape[2] > 0:
		return shape[2], shape[1], true
	case shape[1] == 3 && shape[2] > 0 && shape[3] > 0:
		return shape[3], shape[2], true
	}
	return 0, 0, false
}

// Model returns the landmark layout in use
func (e *Estimator) Model() Model {
	return e.model
}

// InputSize returns the crop width and height the model expects
func (e *Estimator) InputSize() (int, int) {
	return e.width, e.height
}

// Estimate runs the model on a crop and maps the landmarks back through inverseCrop
func (e *Estimator) Estimate(ctx context.Context, input *tensor.Dense, inverseCrop mgl32.Mat4) (Result, error) {
	outputs, err := e.engine.Run(ctx, []*tensor.Dense{input})
	if err != nil {
		return Result{}, errors.Wrapf(err, "%s landmark inference failed", e.family)
	}
	if len(outputs) <= max(e.landmarksOutput, e.scoreOutput) {
		return Result{}, errors.Wrapf(inference.ErrShape, "%s landmark model returned %d outputs", e.family, len(outputs))
	}

	raw, err := inference.Float32s(outputs[e.landmarksOutput])
	if err != nil {
		return Result{}, err
	}
	scores, err := inference.Float32s(outputs[e.scoreOutput])
	if err != nil {
		return Result{}, err
	}
	if len(scores) == 0 {
		return Result{}, errors.Wrap(inference.ErrShape, "empty score output")
	}

	landmarks, err := Decode(raw, inverseCrop, e.model.Options)
	if err != nil {
		return Result{}, err
	}
	return Result{Score: scores[0], Landmarks: landmarks}, nil
}

// Close releases the engine
func (e *Estimator) Close() error {
	return e.engine.Close()
}
