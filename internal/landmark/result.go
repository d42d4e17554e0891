package landmark

import (
	"github.com/samber/lo"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/geometry"
)

// Result is the output of one landmark model run
type Result struct {
	Score     float32
	Landmarks []Landmark
}

// Points returns the 2D positions of the landmarks
func (r Result) Points() []geometry.Point {
	return lo.Map(r.Landmarks, func(l Landmark, _ int) geometry.Point { return l.Point() })
}

// BoundingBox returns the 2D bounding box of the landmarks
func (r Result) BoundingBox() geometry.Rect {
	return geometry.BoundingBox(r.Points())
}

// ValueScale is the filter scale: the inverse of the mean bounding box side
func (r Result) ValueScale() float32 {
	box := r.BoundingBox()
	mean := (box.Width + box.Height) / 2
	if mean <= 0 {
		return 1
	}
	return 1 / mean
}

// Map returns a copy with every position passed through fn
func (r Result) Map(fn func(geometry.Point) geometry.Point) Result {
	out := Result{Score: r.Score, Landmarks: make([]Landmark, len(r.Landmarks))}
	for i, l := range r.Landmarks {
		p := fn(l.Point())
		l.X, l.Y = p.X, p.Y
		out.Landmarks[i] = l
	}
	return out
}

// ToDetection rebuilds a detection from landmarks so the next frame can skip the
// detector: the rect bounds the selected landmarks and the keypoints are the
// selected tracking landmarks, in order.
func (r Result) ToDetection(t Tracking) detector.Detection {
	points := r.Points()
	rectPoints := points
	if t.RectIndices != nil {
		rectPoints = pick(points, t.RectIndices)
	}
	return detector.Detection{
		Score:     r.Score,
		Rect:      geometry.BoundingBox(rectPoints),
		Keypoints: pick(points, t.KeypointIndices),
	}
}

func pick(points []geometry.Point, indices []int) []geometry.Point {
	valid := lo.Filter(indices, func(i int, _ int) bool { return i >= 0 && i < len(points) })
	return lo.Map(valid, func(i int, _ int) geometry.Point { return points[i] })
}
