// Package ui draws pipeline results and shows the preview window.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/landmark"
	"github.com/dudu/blazekit/internal/pipeline"
)

var (
	detectionColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	trackedColor   = color.RGBA{R: 255, G: 200, B: 0, A: 255}
	roiColor       = color.RGBA{R: 0, G: 160, B: 255, A: 255}
	landmarkColor  = color.RGBA{R: 255, G: 0, B: 255, A: 255}
)

// Window is a preview window with an FPS counter and a status line
type Window struct {
	window *gocv.Window
	last   time.Time
	fps    float64
}

// NewWindow opens a preview window sized for width x height frames
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{window: window}
}

// Show draws the FPS and status text onto frame and displays it
func (w *Window) Show(frame *gocv.Mat, status string) {
	now := time.Now()
	if !w.last.IsZero() {
		if dt := now.Sub(w.last).Seconds(); dt > 0 {
			instant := 1 / dt
			if w.fps == 0 {
				w.fps = instant
			} else {
				w.fps = 0.9*w.fps + 0.1*instant
			}
		}
	}
	w.last = now

	gocv.PutText(frame, fmt.Sprintf("FPS: %.1f", w.fps), image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, detectionColor, 2)
	if status != "" {
		gocv.PutText(frame, status, image.Pt(10, 60),
			gocv.FontHersheyPlain, 1.5, detectionColor, 2)
	}
	w.window.IMShow(*frame)
}

// WaitKey pumps window events for delayMs and returns the pressed key or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns the smoothed display rate
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	return w.window.Close()
}

// DrawResult draws detections, the landmark ROI and landmarks onto frame
func DrawResult(frame *gocv.Mat, res *pipeline.Result) {
	if res == nil {
		return
	}
	w, h := frame.Cols(), frame.Rows()
	px := func(p geometry.Point) image.Point {
		return image.Pt(int(p.X*float32(w)), int(p.Y*float32(h)))
	}

	for _, det := range res.Detections {
		gocv.Rectangle(frame, image.Rectangle{Min: px(det.Rect.Min()), Max: px(det.Rect.Max())}, detectionColor, 2)
		for _, kp := range det.Keypoints {
			gocv.Circle(frame, px(kp), 3, detectionColor, -1)
		}
		gocv.PutText(frame, fmt.Sprintf("%.2f", det.Score), px(det.Rect.Min()).Add(image.Pt(0, -4)),
			gocv.FontHersheyPlain, 1.2, detectionColor, 1)
	}
	if res.Tracked {
		gocv.Rectangle(frame, image.Rectangle{Min: px(res.Detection.Rect.Min()), Max: px(res.Detection.Rect.Max())}, trackedColor, 1)
	}

	if len(res.Landmarks.Landmarks) == 0 {
		return
	}
	for i := range res.ROI {
		gocv.Line(frame, px(res.ROI[i]), px(res.ROI[(i+1)%len(res.ROI)]), roiColor, 2)
	}
	for _, lm := range res.Landmarks.Landmarks {
		if lm.Visibility != landmark.VisibilityUnknown && lm.Visibility < 0.5 {
			continue
		}
		gocv.Circle(frame, px(lm.Point()), 2, landmarkColor, -1)
	}
}
