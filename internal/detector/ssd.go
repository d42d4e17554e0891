package detector

import (
	"context"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/anchor"
	"github.com/dudu/blazekit/internal/inference"
)

// ErrAnchorMismatch is returned when a model's output rows differ from the anchor count
var ErrAnchorMismatch = errors.New("anchor count does not match model outputs")

// Option customizes an SSD detector
type Option func(*SSD)

// WithThresholds overrides the family score and IoU thresholds
func WithThresholds(score, iou float32) Option {
	return func(s *SSD) {
		s.spec.ScoreThreshold = score
		s.spec.IoUThreshold = iou
	}
}

// WithMaxResults overrides the family result cap
func WithMaxResults(n int) Option {
	return func(s *SSD) {
		s.spec.MaxResults = n
	}
}

// WithLogger sets the detector logger
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(s *SSD) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// SSD runs a BlazeFace, BlazePose or BlazePalm detector
type SSD struct {
	engine       inference.Engine
	family       Family
	spec         Spec
	anchors      []anchor.Anchor
	boxesOutput  int
	scoresOutput int
	logger       *zap.SugaredLogger
}

// NewSSD creates a detector and validates the engine outputs against the anchors
func NewSSD(engine inference.Engine, family Family, opts ...Option) (*SSD, error) {
	spec, err := family.Spec()
	if err != nil {
		return nil, err
	}

	anchors, err := anchor.Generate(spec.Anchors)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to generate %s anchors", family)
	}

	s := &SSD{
		engine:       engine,
		family:       family,
		spec:         spec,
		anchors:      anchors,
		boxesOutput:  spec.BoxesOutput,
		scoresOutput: spec.ScoresOutput,
		logger:       zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.locateOutputs(engine.Outputs()); err != nil {
		return nil, err
	}

	s.logger.Debugw("detector ready",
		"family", family,
		"anchors", len(anchors),
		"boxes_output", s.boxesOutput,
		"scores_output", s.scoresOutput,
	)
	return s, nil
}

// locateOutputs finds the regressor and score outputs by shape
func (s *SSD) locateOutputs(outputs []inference.TensorInfo) error {
	if len(outputs) < 2 {
		return errors.Wrapf(ErrAnchorMismatch, "%s detector needs 2 outputs, model has %d", s.family, len(outputs))
	}

	n := len(s.anchors)
	minCols := 4 + 2*s.spec.NumKeypoints
	boxes, scores := -1, -1
	for i, out := range outputs[:2] {
		if inference.Rows(out.Shape) != n {
			return errors.Wrapf(ErrAnchorMismatch, "output %q has shape %v, want %d rows", out.Name, out.Shape, n)
		}
		switch cols := inference.Volume(out.Shape) / n; {
		case cols == 1:
			scores = i
		case cols >= minCols:
			boxes = i
		}
	}
	if boxes < 0 || scores < 0 {
		return errors.Wrapf(ErrAnchorMismatch, "cannot tell regressors from scores in %v and %v",
			outputs[0].Shape, outputs[1].Shape)
	}
	s.boxesOutput, s.scoresOutput = boxes, scores
	return nil
}

// Family returns the detector family
func (s *SSD) Family() Family {
	return s.family
}

// InputSize returns the model input width and height
func (s *SSD) InputSize() (int, int) {
	return s.spec.Anchors.InputWidth, s.spec.Anchors.InputHeight
}

// Anchors returns the generated anchors; callers must not modify them
func (s *SSD) Anchors() []anchor.Anchor {
	return s.anchors
}

// Detect runs the model on a preprocessed [1, H, W, 3] input and returns
// detections after NMS, sorted by descending score
func (s *SSD) Detect(ctx context.Context, input *tensor.Dense) ([]Detection, error) {
	outputs, err := s.engine.Run(ctx, []*tensor.Dense{input})
	if err != nil {
		return nil, errors.Wrapf(err, "%s detector inference failed", s.family)
	}
	if len(outputs) <= max(s.boxesOutput, s.scoresOutput) {
		return nil, errors.Wrapf(ErrAnchorMismatch, "%s detector got %d outputs", s.family, len(outputs))
	}

	boxes, err := inference.Float32s(outputs[s.boxesOutput])
	if err != nil {
		return nil, err
	}
	scores, err := inference.Float32s(outputs[s.scoresOutput])
	if err != nil {
		return nil, err
	}

	detections, err := Decode(s.anchors, boxes, scores, DecodeOptions{
		InputWidth:     s.spec.Anchors.InputWidth,
		InputHeight:    s.spec.Anchors.InputHeight,
		NumKeypoints:   s.spec.NumKeypoints,
		ScoreThreshold: s.spec.ScoreThreshold,
		ScoreClip:      s.spec.ScoreClip,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "%s detector decode failed", s.family)
	}

	return NMS(detections, s.spec.IoUThreshold, s.spec.MaxResults), nil
}

// Close releases the engine
func (s *SSD) Close() error {
	return s.engine.Close()
}
