package detector

import (
	"math"

	"github.com/pkg/errors"

	"github.com/dudu/blazekit/internal/anchor"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/inference"
)

// DecodeOptions controls how raw SSD tensors are turned into detections
type DecodeOptions struct {
	InputWidth     int
	InputHeight    int
	NumKeypoints   int
	ScoreThreshold float32
	// ScoreClip clamps logits to [-ScoreClip, ScoreClip] before the sigmoid, 0 disables it
	ScoreClip float32
}

// Decode turns the regressor tensor [N, cols] and the logit tensor [N] into
// detections whose score reaches ScoreThreshold. Coordinates are not clamped.
func Decode(anchors []anchor.Anchor, boxes, scores []float32, opts DecodeOptions) ([]Detection, error) {
	n := len(anchors)
	if n == 0 {
		return nil, nil
	}
	if len(scores) != n {
		return nil, errors.Wrapf(inference.ErrShape, "%d scores for %d anchors", len(scores), n)
	}
	if len(boxes)%n != 0 {
		return nil, errors.Wrapf(inference.ErrShape, "%d box values for %d anchors", len(boxes), n)
	}
	cols := len(boxes) / n
	if cols < 4+2*opts.NumKeypoints {
		return nil, errors.Wrapf(inference.ErrShape, "%d box columns cannot hold %d keypoints", cols, opts.NumKeypoints)
	}
	if opts.InputWidth <= 0 || opts.InputHeight <= 0 {
		return nil, errors.Errorf("invalid input size %dx%d", opts.InputWidth, opts.InputHeight)
	}

	w := float32(opts.InputWidth)
	h := float32(opts.InputHeight)

	var detections []Detection
	for i, a := range anchors {
		logit := scores[i]
		if opts.ScoreClip > 0 {
			logit = clamp(logit, -opts.ScoreClip, opts.ScoreClip)
		}
		score := Sigmoid(logit)
		if score < opts.ScoreThreshold {
			continue
		}

		row := boxes[i*cols : (i+1)*cols]

		// Offsets and sizes are in input pixels; anchor sizes are not applied
		cx := (row[0] + a.X*w) / w
		cy := (row[1] + a.Y*h) / h
		bw := row[2] / w
		bh := row[3] / h

		det := Detection{
			Score: score,
			Rect:  geometry.RectFromCenter(geometry.Point{X: cx, Y: cy}, bw, bh),
		}
		if opts.NumKeypoints > 0 {
			det.Keypoints = make([]geometry.Point, opts.NumKeypoints)
			for j := range det.Keypoints {
				det.Keypoints[j] = geometry.Point{
					X: (row[4+2*j] + a.X*w) / w,
					Y: (row[4+2*j+1] + a.Y*h) / h,
				}
			}
		}
		detections = append(detections, det)
	}

	return detections, nil
}

// Sigmoid maps a logit to (0, 1)
func Sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
