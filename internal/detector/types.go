package detector

import (
	"github.com/dudu/blazekit/internal/geometry"
)

// Detection is one decoded SSD box in normalized detector input space
type Detection struct {
	Score     float32
	Rect      geometry.Rect
	Keypoints []geometry.Point
}

// Keypoint returns keypoint i, or the rect center when it is missing
func (d Detection) Keypoint(i int) geometry.Point {
	if i < 0 || i >= len(d.Keypoints) {
		return d.Rect.Center()
	}
	return d.Keypoints[i]
}

// Map returns the detection with every coordinate passed through fn
func (d Detection) Map(fn func(geometry.Point) geometry.Point) Detection {
	out := Detection{
		Score: d.Score,
		Rect:  geometry.RectFromMinMax(fn(d.Rect.Min()), fn(d.Rect.Max())),
	}
	if len(d.Keypoints) > 0 {
		out.Keypoints = make([]geometry.Point, len(d.Keypoints))
		for i, kp := range d.Keypoints {
			out.Keypoints[i] = fn(kp)
		}
	}
	return out
}
