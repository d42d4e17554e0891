// Package config loads pipeline settings from YAML.
package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/dudu/blazekit/internal/align"
	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/filter"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/pipeline"
)

// Backend represents the inference backend to use
type Backend string

const (
	BackendAuto   Backend = ""
	BackendONNX   Backend = "onnx"
	BackendTFLite Backend = "tflite"
)

// Config describes one detector and landmark pipeline
type Config struct {
	Family   string   `yaml:"family"`
	Backend  Backend  `yaml:"backend"`
	Detector Detector `yaml:"detector"`
	Landmark Landmark `yaml:"landmark"`
	Runtime  Runtime  `yaml:"runtime"`

	Aspect   geometry.AspectMode `yaml:"aspect"`
	ROI      ROI                 `yaml:"roi"`
	Tracking Tracking            `yaml:"tracking"`
	Filter   Filter              `yaml:"filter"`
	Camera   Camera              `yaml:"camera"`
	Log      Log                 `yaml:"log"`
}

// Detector holds the first-stage model settings
type Detector struct {
	Model          string  `yaml:"model"`
	ScoreThreshold float32 `yaml:"score_threshold"`
	IoUThreshold   float32 `yaml:"iou_threshold"`
	MaxResults     int     `yaml:"max_results"`

	Normalization inference.Normalization `yaml:"normalization"`
}

// Landmark holds the second-stage model settings; an empty model means detection only
type Landmark struct {
	Model         string                  `yaml:"model"`
	Normalization inference.Normalization `yaml:"normalization"`
}

// Runtime holds inference engine settings
type Runtime struct {
	// LibraryPath is the ONNX Runtime shared library
	LibraryPath string `yaml:"library_path"`
	Threads     int    `yaml:"threads"`
	CoreML      bool   `yaml:"coreml"`
}

// ROI overrides the shift and scale of the detection ROI
type ROI struct {
	Shift [2]float32 `yaml:"shift"`
	Scale [2]float32 `yaml:"scale"`
}

// Tracking controls detector skipping between frames
type Tracking struct {
	Enabled           bool    `yaml:"enabled"`
	DetectThreshold   float32 `yaml:"detect_threshold"`
	LandmarkThreshold float32 `yaml:"landmark_threshold"`
}

// Filter controls landmark smoothing
type Filter struct {
	Enabled        bool `yaml:"enabled"`
	filter.Options `yaml:",inline"`
}

// Camera selects the capture device and its orientation correction
type Camera struct {
	Device           int     `yaml:"device"`
	Width            int     `yaml:"width"`
	Height           int     `yaml:"height"`
	RotationDegrees  float32 `yaml:"rotation_degrees"`
	MirrorHorizontal bool    `yaml:"mirror_horizontal"`
	MirrorVertical   bool    `yaml:"mirror_vertical"`
}

// Log configures the process logger
type Log struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the settings of the reference models for a family
func Default(family string) (*Config, error) {
	fam, err := detector.ParseFamily(family)
	if err != nil {
		return nil, err
	}
	spec, err := fam.Spec()
	if err != nil {
		return nil, err
	}
	pc, err := pipeline.DefaultConfig(fam)
	if err != nil {
		return nil, err
	}

	return &Config{
		Family: string(fam),
		Detector: Detector{
			ScoreThreshold: spec.ScoreThreshold,
			IoUThreshold:   spec.IoUThreshold,
			MaxResults:     spec.MaxResults,
		},
		Runtime: Runtime{
			LibraryPath: "lib/libonnxruntime.so",
			Threads:     4,
		},
		Aspect: pc.Aspect,
		ROI: ROI{
			Shift: pc.DetectionROI.Shift,
			Scale: pc.DetectionROI.Scale,
		},
		Tracking: Tracking{
			Enabled:           pc.Tracking,
			DetectThreshold:   pc.DetectThreshold,
			LandmarkThreshold: pc.LandmarkThreshold,
		},
		Filter: Filter{
			Enabled: pc.Filter,
			Options: pc.FilterOptions,
		},
		Camera: Camera{Width: 1280, Height: 720},
		Log:    Log{Level: "info"},
	}, nil
}

// Load reads a YAML file over the defaults of the family it names
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults of the family it names
func Parse(data []byte) (*Config, error) {
	var probe struct {
		Family string `yaml:"family"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, errors.Wrap(err, "invalid yaml")
	}
	if probe.Family == "" {
		return nil, errors.New("config must name a family")
	}

	cfg, err := Default(probe.Family)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "invalid yaml")
	}
	if cfg.Family, err = normalizeFamily(cfg.Family); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func normalizeFamily(s string) (string, error) {
	fam, err := detector.ParseFamily(s)
	return string(fam), err
}

// Validate reports every invalid setting
func (c *Config) Validate() error {
	var err error
	if _, ferr := detector.ParseFamily(c.Family); ferr != nil {
		err = multierr.Append(err, ferr)
	}
	switch c.Backend {
	case BackendAuto, BackendONNX, BackendTFLite:
	default:
		err = multierr.Append(err, errors.Errorf("unknown backend %q", c.Backend))
	}
	if c.Detector.ScoreThreshold < 0 || c.Detector.ScoreThreshold > 1 {
		err = multierr.Append(err, errors.Errorf("detector score threshold %v outside [0, 1]", c.Detector.ScoreThreshold))
	}
	if c.Detector.IoUThreshold <= 0 || c.Detector.IoUThreshold > 1 {
		err = multierr.Append(err, errors.Errorf("detector IoU threshold %v outside (0, 1]", c.Detector.IoUThreshold))
	}
	if c.ROI.Scale[0] <= 0 || c.ROI.Scale[1] <= 0 {
		err = multierr.Append(err, errors.Errorf("ROI scale %v must be positive", c.ROI.Scale))
	}
	if c.Filter.WindowSize < 0 {
		err = multierr.Append(err, errors.Errorf("filter window size %d is negative", c.Filter.WindowSize))
	}
	if c.Filter.VelocityScale < 0 {
		err = multierr.Append(err, errors.Errorf("filter velocity scale %v is negative", c.Filter.VelocityScale))
	}
	if c.Runtime.Threads < 0 {
		err = multierr.Append(err, errors.Errorf("thread count %d is negative", c.Runtime.Threads))
	}
	return err
}

// DetectorFamily returns the parsed family
func (c *Config) DetectorFamily() detector.Family {
	fam, _ := detector.ParseFamily(c.Family)
	return fam
}

// BackendFor resolves the backend of a model file, using its extension when
// the backend is not set
func (c *Config) BackendFor(modelPath string) Backend {
	if c.Backend != BackendAuto {
		return c.Backend
	}
	if strings.EqualFold(filepath.Ext(modelPath), ".tflite") {
		return BackendTFLite
	}
	return BackendONNX
}

// DetectorOptions returns the detector overrides
func (c *Config) DetectorOptions() []detector.Option {
	return []detector.Option{
		detector.WithThresholds(c.Detector.ScoreThreshold, c.Detector.IoUThreshold),
		detector.WithMaxResults(c.Detector.MaxResults),
	}
}

// Pipeline returns the pipeline settings
func (c *Config) Pipeline() (pipeline.Config, error) {
	pc, err := pipeline.DefaultConfig(c.DetectorFamily())
	if err != nil {
		return pipeline.Config{}, err
	}
	pc.Aspect = c.Aspect
	pc.Camera = align.Camera{
		RotationDegrees:  c.Camera.RotationDegrees,
		MirrorHorizontal: c.Camera.MirrorHorizontal,
		MirrorVertical:   c.Camera.MirrorVertical,
	}
	pc.DetectionROI.Shift = mgl32.Vec2(c.ROI.Shift)
	pc.DetectionROI.Scale = mgl32.Vec2(c.ROI.Scale)
	pc.Tracking = c.Tracking.Enabled
	pc.DetectThreshold = c.Tracking.DetectThreshold
	pc.LandmarkThreshold = c.Tracking.LandmarkThreshold
	pc.Filter = c.Filter.Enabled
	pc.FilterOptions = c.Filter.Options
	return pc, nil
}
