package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"gocv.io/x/gocv"

	"github.com/dudu/blazekit/internal/camera"
	"github.com/dudu/blazekit/internal/preprocess"
	"github.com/dudu/blazekit/internal/ui"
)

func trackCommand() *cli.Command {
	return &cli.Command{
		Name:  "track",
		Usage: "track a face, hand or body on a camera or video stream",
		Flags: append(pipelineFlags(),
			&cli.IntFlag{
				Name:  flagCamera,
				Value: -1,
				Usage: "camera device index; defaults to camera.device from the config",
			},
			&cli.StringFlag{
				Name:  flagVideo,
				Usage: "read frames from a video file instead of a camera",
			},
			&cli.BoolFlag{
				Name:    flagPreview,
				Aliases: []string{"p"},
				Value:   true,
				Usage:   "show preview window",
			},
			&cli.IntFlag{
				Name:  flagFPS,
				Value: 30,
				Usage: "requested camera frame rate",
			},
		),
		Action: runTrack,
	}
}

func runTrack(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	var source interface{} = cfg.Camera.Device
	if idx := c.Int(flagCamera); idx >= 0 {
		source = idx
	}
	if video := c.String(flagVideo); video != "" {
		source = video
	}
	logger.Infow("opening capture", "source", source)
	cam, err := camera.Open(source, cfg.Camera.Width, cfg.Camera.Height, c.Int(flagFPS))
	if err != nil {
		return err
	}
	defer cam.Close()
	logger.Infow("capture opened", "width", cam.Width(), "height", cam.Height())

	var window *ui.Window
	if c.Bool(flagPreview) {
		window = ui.NewWindow("blazekit", cam.Width(), cam.Height())
		defer window.Close()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	frame := gocv.NewMat()
	defer frame.Close()

	ctx := context.Background()
	fmt.Println("Running... Press 'q' to quit")

	for {
		select {
		case <-sigChan:
			logger.Info("shutting down")
			return nil
		default:
		}

		ts, ok := cam.Read(&frame)
		if !ok {
			if _, isFile := source.(string); isFile {
				logger.Info("end of video")
				return nil
			}
			continue
		}

		res, err := p.Process(ctx, preprocess.MatFrame{Mat: frame}, ts)
		if err != nil {
			logger.Warnw("frame failed", "error", err)
		}

		timing := p.LastTiming()
		status := fmt.Sprintf("D:%.1fms L:%.1fms F:%.2fms T:%.1fms",
			float64(timing.Detection.Microseconds())/1000,
			float64(timing.Landmark.Microseconds())/1000,
			float64(timing.Filter.Microseconds())/1000,
			float64(timing.Total.Microseconds())/1000)

		if window == nil {
			fmt.Printf("\r%s  ", status)
			continue
		}
		ui.DrawResult(&frame, res)
		window.Show(&frame, status)
		// WaitKey must be called to process window events on macOS
		key := window.WaitKey(1)
		if key == 'q' || key == 27 { // 'q' or ESC
			logger.Info("quitting")
			return nil
		}
	}
}
