package filter

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/dudu/blazekit/internal/landmark"
)

// Vector2 filters each component of a 2D value independently
type Vector2 struct {
	x, y *RelativeVelocity
}

// NewVector2 creates a 2D filter
func NewVector2(opts Options, logger *zap.SugaredLogger) *Vector2 {
	return &Vector2{
		x: NewRelativeVelocity(opts, logger),
		y: NewRelativeVelocity(opts, logger),
	}
}

// Apply filters v observed at timestampNanos
func (f *Vector2) Apply(timestampNanos int64, valueScale float32, v mgl32.Vec2) mgl32.Vec2 {
	return mgl32.Vec2{
		f.x.Apply(timestampNanos, valueScale, v.X()),
		f.y.Apply(timestampNanos, valueScale, v.Y()),
	}
}

// Vector3 filters each component of a 3D value independently
type Vector3 struct {
	x, y, z *RelativeVelocity
}

// NewVector3 creates a 3D filter
func NewVector3(opts Options, logger *zap.SugaredLogger) *Vector3 {
	return &Vector3{
		x: NewRelativeVelocity(opts, logger),
		y: NewRelativeVelocity(opts, logger),
		z: NewRelativeVelocity(opts, logger),
	}
}

// Apply filters v observed at timestampNanos
func (f *Vector3) Apply(timestampNanos int64, valueScale float32, v mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		f.x.Apply(timestampNanos, valueScale, v.X()),
		f.y.Apply(timestampNanos, valueScale, v.Y()),
		f.z.Apply(timestampNanos, valueScale, v.Z()),
	}
}

// Landmarks smooths a landmark set frame to frame. Visibility passes through.
type Landmarks struct {
	opts   Options
	logger *zap.SugaredLogger

	filters       []*Vector3
	lastTimestamp int64
	initialized   bool
}

// NewLandmarks creates a landmark set filter
func NewLandmarks(opts Options, logger *zap.SugaredLogger) *Landmarks {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Landmarks{opts: opts, logger: logger}
}

// Reset drops all history, e.g. when the tracked object is lost
func (f *Landmarks) Reset() {
	f.filters = nil
	f.initialized = false
}

// Apply returns a filtered copy of lms. Out of order timestamps return lms
// unchanged without touching any state.
func (f *Landmarks) Apply(timestampNanos int64, valueScale float32, lms []landmark.Landmark) []landmark.Landmark {
	if f.initialized && f.lastTimestamp >= timestampNanos {
		f.logger.Warnw("timestamp is not after the last one, skipping landmark filter",
			"timestamp", timestampNanos,
			"last", f.lastTimestamp,
		)
		return lms
	}
	if len(f.filters) != len(lms) {
		if f.filters != nil {
			f.logger.Debugw("landmark count changed, resetting filter", "from", len(f.filters), "to", len(lms))
		}
		f.filters = make([]*Vector3, len(lms))
		for i := range f.filters {
			f.filters[i] = NewVector3(f.opts, f.logger)
		}
	}

	out := make([]landmark.Landmark, len(lms))
	for i, lm := range lms {
		v := f.filters[i].Apply(timestampNanos, valueScale, mgl32.Vec3{lm.X, lm.Y, lm.Z})
		out[i] = landmark.Landmark{X: v.X(), Y: v.Y(), Z: v.Z(), Visibility: lm.Visibility}
	}
	f.lastTimestamp = timestampNanos
	f.initialized = true
	return out
}
