package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/dudu/blazekit/internal/anchor"
	"github.com/dudu/blazekit/internal/detector"
)

func anchorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "anchors",
		Usage: "print the SSD anchors of a detector family",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagFamily,
				Aliases: []string{"f"},
				Value:   "face",
				Usage:   "face, hand (palm), pose or ssd (MobileNet SSD)",
			},
			&cli.IntFlag{
				Name:  flagCount,
				Value: 10,
				Usage: "anchors to print; 0 prints all",
			},
			&cli.BoolFlag{
				Name:  flagJSON,
				Usage: "print as JSON",
			},
		},
		Action: runAnchors,
	}
}

func anchorOptions(name string) (anchor.Options, error) {
	if name == "ssd" {
		return anchor.MobileSSD(), nil
	}
	family, err := detector.ParseFamily(name)
	if err != nil {
		return anchor.Options{}, err
	}
	spec, err := family.Spec()
	if err != nil {
		return anchor.Options{}, err
	}
	return spec.Anchors, nil
}

func runAnchors(c *cli.Context) error {
	opts, err := anchorOptions(c.String(flagFamily))
	if err != nil {
		return err
	}
	anchors, err := anchor.Generate(opts)
	if err != nil {
		return errors.Wrap(err, "failed to generate anchors")
	}

	shown := anchors
	if n := c.Int(flagCount); n > 0 && n < len(anchors) {
		shown = anchors[:n]
	}

	if c.Bool(flagJSON) {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Input   [2]int          `json:"input"`
			Count   int             `json:"count"`
			Anchors []anchor.Anchor `json:"anchors"`
		}{
			Input:   [2]int{opts.InputWidth, opts.InputHeight},
			Count:   len(anchors),
			Anchors: shown,
		})
	}

	fmt.Printf("%d anchors for %dx%d input\n", len(anchors), opts.InputWidth, opts.InputHeight)
	for i, a := range shown {
		fmt.Printf("%5d  x=%.6f y=%.6f w=%.6f h=%.6f\n", i, a.X, a.Y, a.Width, a.Height)
	}
	return nil
}
