// Package landmark decodes second-stage landmark tensors back into frame space.
package landmark

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/dudu/blazekit/internal/align"
	"github.com/dudu/blazekit/internal/geometry"
)

// VisibilityUnknown marks landmarks whose model has no visibility channel
const VisibilityUnknown float32 = -1

// ErrShortTensor is returned when a landmark tensor has fewer values than expected
var ErrShortTensor = errors.New("landmark tensor too short")

// Dimension is the number of coordinates a model emits per landmark
type Dimension int

const (
	Dim2 Dimension = 2
	Dim3 Dimension = 3
)

// Landmark is a decoded landmark in normalized frame space
type Landmark struct {
	X, Y, Z    float32
	Visibility float32
}

// Point returns the 2D position
func (l Landmark) Point() geometry.Point {
	return geometry.Point{X: l.X, Y: l.Y}
}

// Options describes the layout of a landmark tensor
type Options struct {
	Count     int
	Stride    int
	Dimension Dimension
	// Scale converts raw model values to normalized crop units
	Scale float32
	// VisibilityIndex is the column holding visibility, or -1
	VisibilityIndex int
}

// Validate checks the layout is self-consistent
func (o Options) Validate() error {
	if o.Count <= 0 {
		return errors.Errorf("landmark count %d", o.Count)
	}
	if o.Dimension != Dim2 && o.Dimension != Dim3 {
		return errors.Errorf("unsupported dimension %d", o.Dimension)
	}
	if o.Stride < int(o.Dimension) {
		return errors.Errorf("stride %d cannot hold %d coordinates", o.Stride, o.Dimension)
	}
	if o.VisibilityIndex >= o.Stride {
		return errors.Errorf("visibility index %d outside stride %d", o.VisibilityIndex, o.Stride)
	}
	return nil
}

// Decode un-normalizes raw landmark values and maps them through the inverse crop
func Decode(raw []float32, inverseCrop mgl32.Mat4, opts Options) ([]Landmark, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if need := opts.Count * opts.Stride; len(raw) < need {
		return nil, errors.Wrapf(ErrShortTensor, "%d values, need %d", len(raw), need)
	}

	// ROI width in frame units, used to bring depth to the same scale as x
	zScale := float32(math.Hypot(float64(inverseCrop.At(0, 0)), float64(inverseCrop.At(1, 0))))

	landmarks := make([]Landmark, opts.Count)
	for i := range landmarks {
		row := raw[i*opts.Stride : (i+1)*opts.Stride]
		p := align.MultiplyPoint(inverseCrop, mgl32.Vec3{row[0] * opts.Scale, row[1] * opts.Scale, 0})

		lm := Landmark{X: p.X(), Y: p.Y(), Visibility: VisibilityUnknown}
		if opts.Dimension == Dim3 {
			lm.Z = row[2] * opts.Scale * zScale
		}
		if opts.VisibilityIndex >= 0 {
			lm.Visibility = row[opts.VisibilityIndex]
		}
		landmarks[i] = lm
	}
	return landmarks, nil
}
