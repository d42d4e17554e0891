// Package main is the blazekit command line tool.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/dudu/blazekit/internal/logging"
)

const (
	flagLogLevel      = "log-level"
	flagLogJSON       = "log-json"
	flagConfig        = "config"
	flagFamily        = "family"
	flagDetectorModel = "detector-model"
	flagLandmarkModel = "landmark-model"
	flagBackend       = "backend"
	flagThreads       = "threads"
	flagImage         = "image"
	flagOutput        = "output"
	flagCamera        = "camera"
	flagVideo         = "video"
	flagPreview       = "preview"
	flagFPS           = "fps"
	flagAddr          = "addr"
	flagStatic        = "static"
	flagModel         = "model"
	flagMetal         = "metal"
	flagStage         = "stage"
	flagCount         = "count"
	flagJSON          = "json"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// This is required on macOS for OpenCV's highgui (window creation).
	runtime.LockOSThread()
}

func main() {
	app := &cli.App{
		Name:  "blazekit",
		Usage: "run BlazeFace, BlazePalm and BlazePose detection and landmark pipelines",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  flagLogLevel,
				Value: "info",
				Usage: "debug, info, warn or error",
			},
			&cli.BoolFlag{
				Name:  flagLogJSON,
				Usage: "log as JSON",
			},
		},
		Commands: []*cli.Command{
			anchorsCommand(),
			detectCommand(),
			trackCommand(),
			serveCommand(),
			inspectCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(c *cli.Context) (*zap.SugaredLogger, error) {
	return logging.NewLogger("blazekit", c.String(flagLogLevel), c.Bool(flagLogJSON))
}
