package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gocv.io/x/gocv"

	"github.com/dudu/blazekit/internal/preprocess"
	"github.com/dudu/blazekit/internal/ui"
)

func detectCommand() *cli.Command {
	return &cli.Command{
		Name:  "detect",
		Usage: "run the pipeline once on an image",
		Flags: append(pipelineFlags(),
			&cli.StringFlag{
				Name:     flagImage,
				Aliases:  []string{"i"},
				Usage:    "input image",
				Required: true,
			},
			&cli.StringFlag{
				Name:    flagOutput,
				Aliases: []string{"o"},
				Usage:   "write the annotated image here",
			},
			&cli.BoolFlag{
				Name:  flagJSON,
				Usage: "print the result as JSON",
			},
		),
		Action: runDetect,
	}
}

func runDetect(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	img := gocv.IMRead(c.String(flagImage), gocv.IMReadColor)
	if img.Empty() {
		return errors.Errorf("failed to read image %s", c.String(flagImage))
	}
	defer img.Close()

	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer closePipeline(p, logger)

	res, err := p.Process(context.Background(), preprocess.MatFrame{Mat: img}, 0)
	if err != nil {
		return err
	}
	out := newResultJSON(cfg.DetectorFamily(), img.Cols(), img.Rows(), res, p.LastTiming())

	if path := c.String(flagOutput); path != "" {
		ui.DrawResult(&img, res)
		if !gocv.IMWrite(path, img) {
			return errors.Errorf("failed to write %s", path)
		}
		logger.Infow("wrote annotated image", "path", path)
	}

	if c.Bool(flagJSON) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if res == nil {
		fmt.Println("nothing detected")
		return nil
	}
	for i, d := range out.Detections {
		fmt.Printf("detection %d: score=%.3f box=[%.3f %.3f %.3f %.3f]\n",
			i, d.Score, d.Box[0], d.Box[1], d.Box[2], d.Box[3])
	}
	if len(out.Landmarks) > 0 {
		fmt.Printf("%d landmarks, score %.3f\n", len(out.Landmarks), out.LandmarkScore)
	}
	fmt.Printf("total %.1fms\n", out.Timing.TotalMs)
	return nil
}
