package main

import (
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dudu/blazekit/internal/config"
	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/inference/onnx"
	"github.com/dudu/blazekit/internal/inference/tflite"
	"github.com/dudu/blazekit/internal/landmark"
	"github.com/dudu/blazekit/internal/logging"
	"github.com/dudu/blazekit/internal/pipeline"
	"github.com/dudu/blazekit/internal/preprocess"
)

// pipelineFlags select and override the pipeline configuration
func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    flagConfig,
			Aliases: []string{"c"},
			Usage:   "YAML pipeline config",
		},
		&cli.StringFlag{
			Name:    flagFamily,
			Aliases: []string{"f"},
			Value:   "face",
			Usage:   "face, hand (palm) or pose; ignored when --config is set",
		},
		&cli.StringFlag{
			Name:  flagDetectorModel,
			Usage: "detector model (.onnx or .tflite)",
		},
		&cli.StringFlag{
			Name:  flagLandmarkModel,
			Usage: "landmark model (.onnx or .tflite); empty runs detection only",
		},
		&cli.StringFlag{
			Name:  flagBackend,
			Usage: "onnx or tflite; by default chosen from the model extension",
		},
		&cli.IntFlag{
			Name:  flagThreads,
			Usage: "inference threads",
		},
	}
}

// setup loads the config, applies flag overrides and builds the logger
func setup(c *cli.Context) (*config.Config, *zap.SugaredLogger, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := c.String(flagConfig); path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Default(c.String(flagFamily))
	}
	if err != nil {
		return nil, nil, err
	}

	if c.IsSet(flagDetectorModel) {
		cfg.Detector.Model = c.String(flagDetectorModel)
	}
	if c.IsSet(flagLandmarkModel) {
		cfg.Landmark.Model = c.String(flagLandmarkModel)
	}
	if c.IsSet(flagBackend) {
		cfg.Backend = config.Backend(c.String(flagBackend))
	}
	if c.IsSet(flagThreads) {
		cfg.Runtime.Threads = c.Int(flagThreads)
	}
	if c.IsSet(flagLogLevel) || cfg.Log.Level == "" {
		cfg.Log.Level = c.String(flagLogLevel)
	}
	if c.IsSet(flagLogJSON) {
		cfg.Log.JSON = c.Bool(flagLogJSON)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.Detector.Model == "" {
		return nil, nil, errors.New("no detector model: set detector.model or --detector-model")
	}

	logger, err := logging.NewLogger("blazekit", cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openEngine loads a model with the backend the config selects for it
func openEngine(cfg *config.Config, path string, logger *zap.SugaredLogger) (inference.Engine, error) {
	switch cfg.BackendFor(path) {
	case config.BackendTFLite:
		interp, err := tflite.NewInterpreter(path, cfg.Runtime.Threads, logger.Named("tflite"))
		if err != nil {
			return nil, err
		}
		return interp, nil
	default:
		if err := onnx.Initialize(cfg.Runtime.LibraryPath); err != nil {
			return nil, err
		}
		session, err := onnx.NewSession(path, onnx.Options{
			Threads: cfg.Runtime.Threads,
			CoreML:  cfg.Runtime.CoreML,
		}, logger.Named("onnx"))
		if err != nil {
			return nil, err
		}
		return session, nil
	}
}

// buildPipeline opens both models and wires them into a pipeline
func buildPipeline(cfg *config.Config, logger *zap.SugaredLogger) (*pipeline.Pipeline, error) {
	family := cfg.DetectorFamily()
	pc, err := cfg.Pipeline()
	if err != nil {
		return nil, err
	}

	logger.Infow("loading detector", "family", family, "model", cfg.Detector.Model)
	detEngine, err := openEngine(cfg, cfg.Detector.Model, logger)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load detector")
	}
	opts := append(cfg.DetectorOptions(), detector.WithLogger(logger.Named("detector")))
	ssd, err := detector.NewSSD(detEngine, family, opts...)
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "failed to create detector"), detEngine.Close())
	}

	var landmarks pipeline.LandmarkModel
	if cfg.Landmark.Model != "" {
		logger.Infow("loading landmark model", "model", cfg.Landmark.Model)
		lmEngine, err := openEngine(cfg, cfg.Landmark.Model, logger)
		if err != nil {
			return nil, multierr.Append(errors.Wrap(err, "failed to load landmark model"), ssd.Close())
		}
		estimator, err := landmark.NewEstimator(lmEngine, family, logger.Named("landmark"))
		if err != nil {
			return nil, multierr.Combine(errors.Wrap(err, "failed to create landmark model"), lmEngine.Close(), ssd.Close())
		}
		landmarks = estimator
	}

	pre := &preprocess.Preprocessor{
		Detector: cfg.Detector.Normalization,
		Landmark: cfg.Landmark.Normalization,
	}
	p, err := pipeline.New(pc, ssd, landmarks, pre, logger.Named("pipeline"))
	if err != nil {
		closeErr := ssd.Close()
		if landmarks != nil {
			closeErr = multierr.Append(closeErr, landmarks.Close())
		}
		return nil, multierr.Append(err, closeErr)
	}
	return p, nil
}

// closePipeline releases the pipeline and the ONNX Runtime environment
func closePipeline(p *pipeline.Pipeline, logger *zap.SugaredLogger) {
	if err := multierr.Append(p.Close(), onnx.Shutdown()); err != nil {
		logger.Warnw("cleanup failed", "error", err)
	}
}
