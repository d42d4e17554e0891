package pipeline

import (
	"context"

	"github.com/go-gl/mathgl/mgl32"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/landmark"
)

// Frame is a camera or still image of known pixel size
type Frame interface {
	Size() (width, height int)
}

// Preprocessor turns frames into model input tensors
type Preprocessor interface {
	// Detection fits the whole frame into a width x height detector input
	Detection(frame Frame, width, height int, mode geometry.AspectMode) (*tensor.Dense, error)
	// Crop samples the ROI described by crop, a model-space crop matrix,
	// into a width x height landmark input
	Crop(frame Frame, crop mgl32.Mat4, viewport geometry.Viewport, width, height int) (*tensor.Dense, error)
}

// Detector finds ROIs in a detector input
type Detector interface {
	Detect(ctx context.Context, input *tensor.Dense) ([]detector.Detection, error)
	InputSize() (int, int)
	Family() detector.Family
	Close() error
}

// LandmarkModel estimates landmarks inside an ROI crop
type LandmarkModel interface {
	Estimate(ctx context.Context, input *tensor.Dense, inverseCrop mgl32.Mat4) (landmark.Result, error)
	InputSize() (int, int)
	Model() landmark.Model
	Close() error
}
