// Package pipeline runs detection, ROI cropping, landmark estimation and
// smoothing over a stream of frames.
package pipeline

import (
	"context"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dudu/blazekit/internal/align"
	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/filter"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/landmark"
)

// Config holds pipeline configuration
type Config struct {
	Aspect geometry.AspectMode
	Camera align.Camera

	DetectionROI align.ROI
	TrackingROI  align.ROI

	// Tracking reuses the previous frame's landmarks instead of running the
	// detector while the tracked score stays at or above DetectThreshold
	Tracking        bool
	DetectThreshold float32
	// LandmarkThreshold is the landmark score below which tracking is dropped
	LandmarkThreshold float32

	Filter        bool
	FilterOptions filter.Options
}

// DefaultConfig returns the settings used by the reference models of a family
func DefaultConfig(family detector.Family) (Config, error) {
	detROI, err := align.DetectionROI(family)
	if err != nil {
		return Config{}, err
	}
	trackROI, err := align.TrackingROI(family)
	if err != nil {
		return Config{}, err
	}
	return Config{
		Aspect:            geometry.AspectFit,
		DetectionROI:      detROI,
		TrackingROI:       trackROI,
		Tracking:          true,
		DetectThreshold:   0.5,
		LandmarkThreshold: 0.3,
		Filter:            family == detector.FamilyPose,
		FilterOptions:     filter.DefaultOptions(),
	}, nil
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Landmark  time.Duration
	Filter    time.Duration
	Total     time.Duration
}

// Result is the outcome of one frame, in frame-normalized coordinates
type Result struct {
	// Detection is the ROI source: a fresh detection or one rebuilt from the
	// previous frame's landmarks
	Detection detector.Detection
	// Detections holds every detection when the detector ran this frame
	Detections []detector.Detection
	Tracked    bool

	Landmarks landmark.Result
	// Crop is the crop matrix in square model space
	Crop mgl32.Mat4
	// ROI holds the corners of the landmark crop, clockwise from top-left
	ROI [4]geometry.Point
}

// Pipeline orchestrates the two-stage detection process. It is not safe for
// concurrent use.
type Pipeline struct {
	config     Config
	detector   Detector
	landmarks  LandmarkModel
	pre        Preprocessor
	filter     *filter.Landmarks
	tracked    *detector.Detection
	lastTiming Timing
	logger     *zap.SugaredLogger
}

// New creates a pipeline. landmarks may be nil for detection only.
func New(config Config, det Detector, landmarks LandmarkModel, pre Preprocessor, logger *zap.SugaredLogger) (*Pipeline, error) {
	if det == nil {
		return nil, errors.New("pipeline needs a detector")
	}
	if pre == nil {
		return nil, errors.New("pipeline needs a preprocessor")
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	p := &Pipeline{
		config:    config,
		detector:  det,
		landmarks: landmarks,
		pre:       pre,
		logger:    logger,
	}
	if config.Filter && landmarks != nil {
		p.filter = filter.NewLandmarks(config.FilterOptions, logger.Named("filter"))
	}
	return p, nil
}

func (p *Pipeline) needsDetection() bool {
	return !p.config.Tracking || p.landmarks == nil || p.tracked == nil ||
		p.tracked.Score < p.config.DetectThreshold
}

// Reset forgets the tracked ROI and the filter history
func (p *Pipeline) Reset() {
	p.tracked = nil
	if p.filter != nil {
		p.filter.Reset()
	}
}

// Process runs one frame captured at timestampNanos. It returns nil when
// nothing was found.
func (p *Pipeline) Process(ctx context.Context, frame Frame, timestampNanos int64) (*Result, error) {
	totalStart := time.Now()
	var timing Timing
	defer func() {
		timing.Total = time.Since(totalStart)
		p.lastTiming = timing
	}()

	width, height := frame.Size()
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("frame size %dx%d", width, height)
	}
	viewport := geometry.NewViewport(p.config.Aspect, width, height)
	toFrame := viewport.Map

	result := &Result{}
	var det detector.Detection
	roi := p.config.TrackingROI

	if p.needsDetection() {
		detectStart := time.Now()
		dw, dh := p.detector.InputSize()
		input, err := p.pre.Detection(frame, dw, dh, p.config.Aspect)
		if err != nil {
			return nil, errors.Wrap(err, "detector preprocessing failed")
		}
		detections, err := p.detector.Detect(ctx, input)
		timing.Detection = time.Since(detectStart)
		if err != nil {
			return nil, errors.Wrap(err, "detection failed")
		}
		if len(detections) == 0 {
			p.Reset()
			return nil, nil
		}

		det = detections[0]
		roi = p.config.DetectionROI
		result.Detections = lo.Map(detections, func(d detector.Detection, _ int) detector.Detection {
			return d.Map(toFrame)
		})
	} else {
		det = *p.tracked
		result.Tracked = true
	}
	result.Detection = det.Map(toFrame)

	if p.landmarks == nil {
		return result, nil
	}

	landmarkStart := time.Now()
	crop, inverse, err := roi.Matrix(det, p.config.Camera)
	if err != nil {
		p.logger.Debugw("dropping ROI", "error", err)
		p.Reset()
		return nil, nil
	}
	result.Crop = crop
	for i, corner := range align.Corners(inverse) {
		result.ROI[i] = toFrame(corner)
	}

	lw, lh := p.landmarks.InputSize()
	input, err := p.pre.Crop(frame, crop, viewport, lw, lh)
	if err != nil {
		return nil, errors.Wrap(err, "landmark preprocessing failed")
	}
	lms, err := p.landmarks.Estimate(ctx, input, inverse)
	timing.Landmark = time.Since(landmarkStart)
	if err != nil {
		return nil, errors.Wrap(err, "landmark estimation failed")
	}

	p.track(det, lms)

	if p.filter != nil {
		filterStart := time.Now()
		lms.Landmarks = p.filter.Apply(timestampNanos, lms.ValueScale(), lms.Landmarks)
		timing.Filter = time.Since(filterStart)
	}
	result.Landmarks = lms.Map(toFrame)

	p.logger.Debugw("frame processed",
		"tracked", result.Tracked,
		"score", lms.Score,
		"detection", timing.Detection,
		"landmark", timing.Landmark,
		"filter", timing.Filter,
	)
	return result, nil
}

// track updates the ROI for the next frame
func (p *Pipeline) track(det detector.Detection, lms landmark.Result) {
	if !p.config.Tracking {
		return
	}
	if lms.Score < p.config.LandmarkThreshold {
		det.Score = lms.Score
		p.tracked = &det
		return
	}
	next := lms.ToDetection(p.landmarks.Model().Tracking)
	p.tracked = &next
}

// LastTiming returns timing from last Process call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var err error
	if p.detector != nil {
		err = multierr.Append(err, errors.Wrap(p.detector.Close(), "close detector"))
	}
	if p.landmarks != nil {
		err = multierr.Append(err, errors.Wrap(p.landmarks.Close(), "close landmark model"))
	}
	return err
}
