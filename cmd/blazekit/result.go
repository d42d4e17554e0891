package main

import (
	"github.com/samber/lo"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/landmark"
	"github.com/dudu/blazekit/internal/pipeline"
)

// All coordinates are normalized to the frame, y down.
type detectionJSON struct {
	Score     float32      `json:"score"`
	Box       [4]float32   `json:"box"` // x, y, width, height
	Keypoints [][2]float32 `json:"keypoints,omitempty"`
}

type landmarkJSON struct {
	X          float32 `json:"x"`
	Y          float32 `json:"y"`
	Z          float32 `json:"z"`
	Visibility float32 `json:"visibility"`
}

type timingJSON struct {
	DetectionMs float64 `json:"detection_ms"`
	LandmarkMs  float64 `json:"landmark_ms"`
	FilterMs    float64 `json:"filter_ms"`
	TotalMs     float64 `json:"total_ms"`
}

type resultJSON struct {
	Family        string          `json:"family"`
	Width         int             `json:"width"`
	Height        int             `json:"height"`
	Detections    []detectionJSON `json:"detections"`
	Tracked       bool            `json:"tracked,omitempty"`
	LandmarkScore float32         `json:"landmark_score,omitempty"`
	Landmarks     []landmarkJSON  `json:"landmarks,omitempty"`
	ROI           [][2]float32    `json:"roi,omitempty"`
	Timing        timingJSON      `json:"timing"`
}

func point(p geometry.Point) [2]float32 {
	return [2]float32{p.X, p.Y}
}

func toDetectionJSON(d detector.Detection, _ int) detectionJSON {
	return detectionJSON{
		Score:     d.Score,
		Box:       [4]float32{d.Rect.X, d.Rect.Y, d.Rect.Width, d.Rect.Height},
		Keypoints: lo.Map(d.Keypoints, func(p geometry.Point, _ int) [2]float32 { return point(p) }),
	}
}

func newResultJSON(family detector.Family, width, height int, res *pipeline.Result, timing pipeline.Timing) resultJSON {
	out := resultJSON{
		Family:     string(family),
		Width:      width,
		Height:     height,
		Detections: []detectionJSON{},
		Timing: timingJSON{
			DetectionMs: float64(timing.Detection.Microseconds()) / 1000,
			LandmarkMs:  float64(timing.Landmark.Microseconds()) / 1000,
			FilterMs:    float64(timing.Filter.Microseconds()) / 1000,
			TotalMs:     float64(timing.Total.Microseconds()) / 1000,
		},
	}
	if res == nil {
		return out
	}

	out.Detections = lo.Map(res.Detections, toDetectionJSON)
	if res.Tracked {
		out.Tracked = true
		out.Detections = []detectionJSON{toDetectionJSON(res.Detection, 0)}
	}
	if len(res.Landmarks.Landmarks) > 0 {
		out.LandmarkScore = res.Landmarks.Score
		out.Landmarks = lo.Map(res.Landmarks.Landmarks, func(l landmark.Landmark, _ int) landmarkJSON {
			return landmarkJSON{X: l.X, Y: l.Y, Z: l.Z, Visibility: l.Visibility}
		})
		out.ROI = lo.Map(res.ROI[:], func(p geometry.Point, _ int) [2]float32 { return point(p) })
	}
	return out
}
