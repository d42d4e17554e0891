// Package camera reads timestamped frames from webcams and video files.
package camera

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture manages webcam or video file capture
type Capture struct {
	webcam *gocv.VideoCapture
	source interface{}
	width  int
	height int
	start  time.Time
	lastTS int64
	mu     sync.Mutex
}

// Open starts capture from a device index or a video file path, requesting
// the given resolution and frame rate; zero values keep the device defaults
func Open(source interface{}, width, height, fps int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(source)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open camera %v", source)
	}

	if width > 0 && height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	}
	if fps > 0 {
		webcam.Set(gocv.VideoCaptureFPS, float64(fps))
	}

	// camera may not support requested resolution
	return &Capture{
		webcam: webcam,
		source: source,
		width:  int(webcam.Get(gocv.VideoCaptureFrameWidth)),
		height: int(webcam.Get(gocv.VideoCaptureFrameHeight)),
		start:  time.Now(),
		lastTS: -1,
	}, nil
}

// Read captures a frame into the provided Mat and returns its timestamp in
// nanoseconds since capture started. Timestamps strictly increase.
func (c *Capture) Read(frame *gocv.Mat) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil || !c.webcam.Read(frame) || frame.Empty() {
		return 0, false
	}

	var ts int64
	if _, isFile := c.source.(string); isFile {
		ts = int64(c.webcam.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))
	} else {
		ts = time.Since(c.start).Nanoseconds()
	}
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts, true
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
