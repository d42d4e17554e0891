// Package filter smooths landmark streams with MediaPipe's relative velocity filter.
package filter

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// assumedMaxDuration is one frame at 30 fps, in nanoseconds
const assumedMaxDuration = int64(1e9) / 30

// DistanceMode selects how value changes are measured across scale changes
type DistanceMode int

const (
	// LegacyTransition compares scaled values; not translation invariant
	LegacyTransition DistanceMode = iota
	// ForceCurrentScale always uses the current scale; translation invariant
	ForceCurrentScale
)

func (m DistanceMode) String() string {
	if m == ForceCurrentScale {
		return "force_current_scale"
	}
	return "legacy_transition"
}

// ParseDistanceMode parses "legacy_transition" or "force_current_scale"
func ParseDistanceMode(s string) (DistanceMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "legacy", "legacy_transition":
		return LegacyTransition, nil
	case "force_current_scale", "current":
		return ForceCurrentScale, nil
	}
	return LegacyTransition, errors.Errorf("unknown distance mode %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (m DistanceMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *DistanceMode) UnmarshalText(text []byte) error {
	mode, err := ParseDistanceMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Options configures a relative velocity filter
type Options struct {
	WindowSize    int          `yaml:"window_size"`
	VelocityScale float32      `yaml:"velocity_scale"`
	Mode          DistanceMode `yaml:"mode"`
}

// DefaultOptions returns the pose landmark filter settings
func DefaultOptions() Options {
	return Options{
		WindowSize:    5,
		VelocityScale: 10,
		Mode:          LegacyTransition,
	}
}

type windowElement struct {
	distance float32
	duration int64
}

// RelativeVelocity filters one scalar channel. Higher velocity weights new
// values more; a larger window adds lag and stability.
type RelativeVelocity struct {
	opts   Options
	logger *zap.SugaredLogger

	lastValue      float32
	lastValueScale float32
	lastTimestamp  int64
	initialized    bool

	// oldest first
	window  []windowElement
	lowPass LowPass
}

// NewRelativeVelocity creates a filter channel
func NewRelativeVelocity(opts Options, logger *zap.SugaredLogger) *RelativeVelocity {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RelativeVelocity{
		opts:           opts,
		logger:         logger,
		lastValueScale: 1,
		window:         make([]windowElement, 0, max(opts.WindowSize, 0)+1),
	}
}

// Apply filters value observed at timestampNanos. Timestamps that do not
// increase are logged and the value is returned unchanged.
func (f *RelativeVelocity) Apply(timestampNanos int64, valueScale, value float32) float32 {
	if f.initialized && f.lastTimestamp >= timestampNanos {
		f.logger.Warnw("timestamp is not after the last one, skipping filter",
			"timestamp", timestampNanos,
			"last", f.lastTimestamp,
		)
		return value
	}

	alpha := 1.0
	if f.initialized {
		var distance float32
		if f.opts.Mode == LegacyTransition {
			distance = value*valueScale - f.lastValue*f.lastValueScale
		} else {
			distance = valueScale * (value - f.lastValue)
		}
		duration := timestampNanos - f.lastTimestamp

		cumulativeDistance := distance
		cumulativeDuration := duration

		maxCumulativeDuration := int64(1+len(f.window)) * assumedMaxDuration
		for i := len(f.window) - 1; i >= 0; i-- {
			el := f.window[i]
			if cumulativeDuration+el.duration > maxCumulativeDuration {
				break
			}
			cumulativeDistance += el.distance
			cumulativeDuration += el.duration
		}

		velocity := float64(cumulativeDistance) / (float64(cumulativeDuration) * 1e-9)
		alpha = 1.0 - 1.0/(1.0+float64(f.opts.VelocityScale)*math.Abs(velocity))

		f.window = append(f.window, windowElement{distance: distance, duration: duration})
		if len(f.window) > f.opts.WindowSize {
			n := copy(f.window, f.window[len(f.window)-max(f.opts.WindowSize, 0):])
			f.window = f.window[:n]
		}
	}

	f.lastValue = value
	f.lastValueScale = valueScale
	f.lastTimestamp = timestampNanos
	f.initialized = true

	return f.lowPass.Apply(value, float32(alpha))
}

// LowPass is a single-pole exponential smoother
type LowPass struct {
	stored      float32
	initialized bool
}

// Apply blends value into the stored value; the first call stores value as is
func (l *LowPass) Apply(value, alpha float32) float32 {
	result := value
	if l.initialized {
		result = alpha*value + (1-alpha)*l.stored
	}
	l.stored = result
	l.initialized = true
	return result
}
