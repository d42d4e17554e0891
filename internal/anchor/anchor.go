// Package anchor generates the SSD anchor grids that BlazeFace, BlazePose and
// BlazePalm detectors regress their boxes against.
package anchor

import (
	"math"

	"github.com/pkg/errors"
)

// ErrInvalidOptions is returned when anchor options cannot describe a grid
var ErrInvalidOptions = errors.New("invalid anchor options")

// Anchor is an anchor center and size in normalized input space
type Anchor struct {
	X, Y          float32
	Width, Height float32
}

// Options configures anchor generation for one detector family
type Options struct {
	InputWidth  int
	InputHeight int

	MinScale float32
	MaxScale float32

	OffsetX float32
	OffsetY float32

	NumLayers        int
	FeatureMapWidth  []int // optional, one entry per layer
	FeatureMapHeight []int // optional, one entry per layer
	Strides          []int

	AspectRatios []float32

	ReduceBoxesInLowestLayer     bool
	InterpolatedScaleAspectRatio float32

	FixedAnchorSize bool
}

// Validate checks that the options describe a generatable grid
func (o Options) Validate() error {
	if len(o.Strides) == 0 {
		return errors.Wrap(ErrInvalidOptions, "no strides")
	}
	if o.NumLayers != len(o.Strides) {
		return errors.Wrapf(ErrInvalidOptions, "num layers %d does not match %d strides", o.NumLayers, len(o.Strides))
	}
	if len(o.FeatureMapWidth) != len(o.FeatureMapHeight) {
		return errors.Wrap(ErrInvalidOptions, "feature map width and height lengths differ")
	}
	if len(o.FeatureMapHeight) > 0 && len(o.FeatureMapHeight) != len(o.Strides) {
		return errors.Wrapf(ErrInvalidOptions, "%d feature maps for %d strides", len(o.FeatureMapHeight), len(o.Strides))
	}
	if len(o.FeatureMapHeight) == 0 && (o.InputWidth <= 0 || o.InputHeight <= 0) {
		return errors.Wrapf(ErrInvalidOptions, "input size %dx%d", o.InputWidth, o.InputHeight)
	}
	for _, s := range o.Strides {
		if s <= 0 {
			return errors.Wrapf(ErrInvalidOptions, "stride %d", s)
		}
	}
	return nil
}

// Generate builds anchors in layer, y, x, aspect order
func Generate(opts Options) ([]Anchor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	var anchors []Anchor
	numStrides := len(opts.Strides)

	layer := 0
	for layer < numStrides {
		var ratios, scales []float32

		// Layers sharing a stride are merged into one grid
		last := layer
		for last < numStrides && opts.Strides[last] == opts.Strides[layer] {
			scale := calculateScale(opts.MinScale, opts.MaxScale, last, numStrides)
			if last == 0 && opts.ReduceBoxesInLowestLayer {
				ratios = append(ratios, 1.0, 2.0, 0.5)
				scales = append(scales, 0.1, scale, scale)
			} else {
				for _, ratio := range opts.AspectRatios {
					ratios = append(ratios, ratio)
					scales = append(scales, scale)
				}
				if opts.InterpolatedScaleAspectRatio > 0 {
					scaleNext := float32(1.0)
					if last < numStrides-1 {
						scaleNext = calculateScale(opts.MinScale, opts.MaxScale, last+1, numStrides)
					}
					scales = append(scales, sqrt32(scale*scaleNext))
					ratios = append(ratios, opts.InterpolatedScaleAspectRatio)
				}
			}
			last++
		}

		widths := make([]float32, len(ratios))
		heights := make([]float32, len(ratios))
		for i, ratio := range ratios {
			r := sqrt32(ratio)
			widths[i] = scales[i] * r
			heights[i] = scales[i] / r
		}

		mapW, mapH := featureMapSize(opts, layer)
		for y := 0; y < mapH; y++ {
			for x := 0; x < mapW; x++ {
				cx := (float32(x) + opts.OffsetX) / float32(mapW)
				cy := (float32(y) + opts.OffsetY) / float32(mapH)
				for i := range ratios {
					a := Anchor{X: cx, Y: cy, Width: 1, Height: 1}
					if !opts.FixedAnchorSize {
						a.Width = widths[i]
						a.Height = heights[i]
					}
					anchors = append(anchors, a)
				}
			}
		}
		layer = last
	}

	return anchors, nil
}

func calculateScale(minScale, maxScale float32, index, count int) float32 {
	if count <= 1 {
		return minScale
	}
	return minScale + (maxScale-minScale)*float32(index)/float32(count-1)
}

func featureMapSize(opts Options, layer int) (int, int) {
	if len(opts.FeatureMapHeight) > 0 {
		return opts.FeatureMapWidth[layer], opts.FeatureMapHeight[layer]
	}
	stride := opts.Strides[layer]
	w := int(math.Ceil(float64(opts.InputWidth) / float64(stride)))
	h := int(math.Ceil(float64(opts.InputHeight) / float64(stride)))
	return w, h
}

func sqrt32(v float32) float32 {
	return float32(math.Sqrt(float64(v)))
}
