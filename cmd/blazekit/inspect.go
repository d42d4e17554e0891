package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/tsawler/go-metal/checkpoints"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/dudu/blazekit/internal/config"
	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/inference/onnx"
	"github.com/dudu/blazekit/internal/landmark"
)

const (
	stageDetector = "detector"
	stageLandmark = "landmark"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "print a model's tensors and check it against a detector family",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     flagModel,
				Aliases:  []string{"m"},
				Usage:    "model to inspect (.onnx or .tflite)",
				Required: true,
			},
			&cli.StringFlag{
				Name:    flagFamily,
				Aliases: []string{"f"},
				Value:   "face",
				Usage:   "face, hand (palm) or pose",
			},
			&cli.StringFlag{
				Name:  flagStage,
				Value: stageDetector,
				Usage: "detector or landmark",
			},
			&cli.StringFlag{
				Name:  flagBackend,
				Usage: "onnx or tflite; by default chosen from the model extension",
			},
			&cli.BoolFlag{
				Name:  flagMetal,
				Usage: "also try importing the ONNX graph with go-metal",
			},
		},
		Action: runInspect,
	}
}

func runInspect(c *cli.Context) error {
	logger, err := newLogger(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	modelPath := c.String(flagModel)
	if _, err := os.Stat(modelPath); err != nil {
		return errors.Wrap(err, "model not found")
	}
	stage := c.String(flagStage)
	if stage != stageDetector && stage != stageLandmark {
		return errors.Errorf("unknown stage %q", stage)
	}

	cfg, err := config.Default(c.String(flagFamily))
	if err != nil {
		return err
	}
	cfg.Backend = config.Backend(c.String(flagBackend))
	if err := cfg.Validate(); err != nil {
		return err
	}
	backend := cfg.BackendFor(modelPath)
	fmt.Printf("Model: %s (%s)\n", modelPath, backend)

	engine, err := openEngine(cfg, modelPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := multierr.Append(engine.Close(), onnx.Shutdown()); err != nil {
			logger.Warnw("cleanup failed", "error", err)
		}
	}()

	printTensors("Inputs", engine.Inputs())
	printTensors("Outputs", engine.Outputs())

	if backend == config.BackendONNX {
		md, err := onnx.ReadMetadata(modelPath)
		if err != nil {
			fmt.Printf("\nMetadata: unavailable (%v)\n", err)
		} else {
			fmt.Println("\nMetadata:")
			fmt.Printf("  Producer: %s\n", md.Producer)
			fmt.Printf("  Version: %d\n", md.Version)
			fmt.Printf("  Domain: %s\n", md.Domain)
			fmt.Printf("  Description: %s\n", md.Description)
		}
	}

	fmt.Println()
	if err := checkStage(engine, cfg.DetectorFamily(), stage, logger); err != nil {
		fmt.Printf("Not usable as %s %s: %v\n", cfg.DetectorFamily(), stage, err)
	}

	if c.Bool(flagMetal) {
		if backend != config.BackendONNX {
			return errors.New("--metal needs an ONNX model")
		}
		return importMetal(modelPath)
	}
	return nil
}

func printTensors(title string, infos []inference.TensorInfo) {
	fmt.Printf("\n%s (%d):\n", title, len(infos))
	for i, info := range infos {
		fmt.Printf("  %d: %s shape=%v volume=%d\n", i, info.Name, info.Shape, inference.Volume(info.Shape))
	}
}

// checkStage builds the stage on top of engine without taking ownership of it
func checkStage(engine inference.Engine, family detector.Family, stage string, logger *zap.SugaredLogger) error {
	switch stage {
	case stageLandmark:
		e, err := landmark.NewEstimator(engine, family, logger.Named("landmark"))
		if err != nil {
			return err
		}
		w, h := e.InputSize()
		m := e.Model()
		fmt.Printf("Usable as %s landmark model: %dx%d input, %d landmarks of %d values\n",
			family, w, h, m.Options.Count, m.Options.Stride)
	default:
		ssd, err := detector.NewSSD(engine, family, detector.WithLogger(logger.Named("detector")))
		if err != nil {
			return err
		}
		w, h := ssd.InputSize()
		fmt.Printf("Usable as %s detector: %dx%d input, %d anchors\n", family, w, h, len(ssd.Anchors()))
	}
	return nil
}

func importMetal(modelPath string) error {
	fmt.Println("\nImporting with go-metal...")
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		return errors.Wrap(err, "go-metal import failed; the graph likely uses unsupported operations")
	}

	fmt.Printf("  Layers: %d\n", len(checkpoint.ModelSpec.Layers))
	fmt.Printf("  Weights: %d tensors\n", len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}
