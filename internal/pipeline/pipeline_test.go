package pipeline

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/align"
	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/landmark"
)

type fakeFrame struct{ w, h int }

func (f fakeFrame) Size() (int, int) { return f.w, f.h }

type fakePre struct {
	detections int
	crops      []mgl32.Mat4
	err        error
}

func (f *fakePre) Detection(_ Frame, width, height int, _ geometry.AspectMode) (*tensor.Dense, error) {
	f.detections++
	if f.err != nil {
		return nil, f.err
	}
	return inference.NewFloat32([]int{1, height, width, 3}, nil)
}

func (f *fakePre) Crop(_ Frame, crop mgl32.Mat4, _ geometry.Viewport, width, height int) (*tensor.Dense, error) {
	f.crops = append(f.crops, crop)
	return inference.NewFloat32([]int{1, height, width, 3}, nil)
}

type fakeDetector struct {
	detections []detector.Detection
	calls      int
	closeErr   error
}

func (f *fakeDetector) Detect(context.Context, *tensor.Dense) ([]detector.Detection, error) {
	f.calls++
	return f.detections, nil
}

func (f *fakeDetector) InputSize() (int, int)    { return 128, 128 }
func (f *fakeDetector) Family() detector.Family { return detector.FamilyFace }
func (f *fakeDetector) Close() error            { return f.closeErr }

// fakeLandmarks reports three points on the horizontal center line of the crop
type fakeLandmarks struct {
	scores   []float32
	calls    int
	closeErr error
}

func (f *fakeLandmarks) Estimate(_ context.Context, _ *tensor.Dense, inverse mgl32.Mat4) (landmark.Result, error) {
	score := f.scores[min(f.calls, len(f.scores)-1)]
	f.calls++
	res := landmark.Result{Score: score}
	for _, x := range []float32{0.5, 0.3, 0.7} {
		p := align.MultiplyPoint(inverse, mgl32.Vec3{x, 0.5, 0})
		res.Landmarks = append(res.Landmarks, landmark.Landmark{X: p.X(), Y: p.Y(), Visibility: landmark.VisibilityUnknown})
	}
	return res, nil
}

func (f *fakeLandmarks) InputSize() (int, int) { return 192, 192 }
func (f *fakeLandmarks) Model() landmark.Model {
	return landmark.Model{Tracking: landmark.Tracking{KeypointIndices: []int{1, 2}}}
}
func (f *fakeLandmarks) Close() error { return f.closeErr }

func faceDetection() detector.Detection {
	return detector.Detection{
		Score: 0.9,
		Rect:  geometry.Rect{X: 0.4, Y: 0.4, Width: 0.2, Height: 0.2},
		Keypoints: []geometry.Point{
			{X: 0.45, Y: 0.5}, {X: 0.55, Y: 0.5},
		},
	}
}

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg, err := DefaultConfig(detector.FamilyFace)
	test.That(t, err, test.ShouldBeNil)
	cfg.Aspect = geometry.AspectNone
	return cfg
}

func TestProcessDetectThenTrack(t *testing.T) {
	det := &fakeDetector{detections: []detector.Detection{faceDetection()}}
	lms := &fakeLandmarks{scores: []float32{0.9, 0.9, 0.1, 0.9}}
	pre := &fakePre{}
	p, err := New(testConfig(t), det, lms, pre, nil)
	test.That(t, err, test.ShouldBeNil)
	ctx := context.Background()
	frame := fakeFrame{100, 100}

	res, err := p.Process(ctx, frame, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldNotBeNil)
	test.That(t, res.Tracked, test.ShouldBeFalse)
	test.That(t, res.Detections, test.ShouldHaveLength, 1)
	test.That(t, det.calls, test.ShouldEqual, 1)

	// crop center sits shift*size above the rect center
	test.That(t, res.Landmarks.Landmarks, test.ShouldHaveLength, 3)
	test.That(t, res.Landmarks.Landmarks[0].X, test.ShouldAlmostEqual, 0.5, 1e-4)
	test.That(t, res.Landmarks.Landmarks[0].Y, test.ShouldAlmostEqual, 0.47, 1e-4)
	// the square crop is 1.5 times the detection
	test.That(t, res.ROI[1].X-res.ROI[0].X, test.ShouldAlmostEqual, 0.3, 1e-4)
	test.That(t, res.ROI[0].Y, test.ShouldAlmostEqual, 0.32, 1e-4)

	res, err = p.Process(ctx, frame, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Tracked, test.ShouldBeTrue)
	test.That(t, res.Detections, test.ShouldBeEmpty)
	test.That(t, det.calls, test.ShouldEqual, 1)
	test.That(t, res.Detection.Keypoints, test.ShouldHaveLength, 2)

	// low landmark score on frame 3 forces a detection on frame 4
	_, err = p.Process(ctx, frame, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, det.calls, test.ShouldEqual, 1)

	res, err = p.Process(ctx, frame, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Tracked, test.ShouldBeFalse)
	test.That(t, det.calls, test.ShouldEqual, 2)
	test.That(t, pre.crops, test.ShouldHaveLength, 4)
}

func TestProcessNoDetection(t *testing.T) {
	det := &fakeDetector{}
	p, err := New(testConfig(t), det, &fakeLandmarks{scores: []float32{1}}, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)

	res, err := p.Process(context.Background(), fakeFrame{64, 64}, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldBeNil)

	res, err = p.Process(context.Background(), fakeFrame{64, 64}, 1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldBeNil)
	test.That(t, det.calls, test.ShouldEqual, 2)
}

func TestProcessDetectionOnly(t *testing.T) {
	second := faceDetection()
	second.Score = 0.8
	second.Rect.X = 0.1
	det := &fakeDetector{detections: []detector.Detection{faceDetection(), second}}
	p, err := New(testConfig(t), det, nil, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)

	for ts := int64(0); ts < 2; ts++ {
		res, err := p.Process(context.Background(), fakeFrame{64, 64}, ts)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Detections, test.ShouldHaveLength, 2)
		test.That(t, res.Landmarks.Landmarks, test.ShouldBeEmpty)
	}
	test.That(t, det.calls, test.ShouldEqual, 2)
}

func TestProcessMapsToFrame(t *testing.T) {
	cfg := testConfig(t)
	cfg.Aspect = geometry.AspectFit
	det := &fakeDetector{detections: []detector.Detection{faceDetection()}}
	p, err := New(cfg, det, nil, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)

	// 2:1 frame covers the middle half of the square model input
	res, err := p.Process(context.Background(), fakeFrame{200, 100}, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Detection.Rect.Height, test.ShouldAlmostEqual, 0.4, 1e-5)
	test.That(t, res.Detection.Rect.Width, test.ShouldAlmostEqual, 0.2, 1e-5)
	test.That(t, res.Detection.Rect.Center().Y, test.ShouldAlmostEqual, 0.5, 1e-5)
}

func TestProcessFilter(t *testing.T) {
	cfg := testConfig(t)
	cfg.Filter = true
	cfg.Tracking = false
	det := &fakeDetector{detections: []detector.Detection{faceDetection()}}
	p, err := New(cfg, det, &fakeLandmarks{scores: []float32{0.9}}, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)

	first, err := p.Process(context.Background(), fakeFrame{64, 64}, 0)
	test.That(t, err, test.ShouldBeNil)
	second, err := p.Process(context.Background(), fakeFrame{64, 64}, 33_333_333)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, second.Landmarks.Landmarks[1].X, test.ShouldAlmostEqual, first.Landmarks.Landmarks[1].X, 1e-6)
	test.That(t, det.calls, test.ShouldEqual, 2)
}

func TestProcessErrors(t *testing.T) {
	det := &fakeDetector{detections: []detector.Detection{faceDetection()}}
	p, err := New(testConfig(t), det, nil, &fakePre{err: errors.New("no pixels")}, nil)
	test.That(t, err, test.ShouldBeNil)

	_, err = p.Process(context.Background(), fakeFrame{0, 10}, 0)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = p.Process(context.Background(), fakeFrame{10, 10}, 0)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "no pixels")

	_, err = New(testConfig(t), nil, nil, &fakePre{}, nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = New(testConfig(t), det, nil, nil, nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestProcessDegenerateROI(t *testing.T) {
	flat := faceDetection()
	flat.Rect = geometry.Rect{X: 0.5, Y: 0.5}
	det := &fakeDetector{detections: []detector.Detection{flat}}
	p, err := New(testConfig(t), det, &fakeLandmarks{scores: []float32{1}}, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)

	res, err := p.Process(context.Background(), fakeFrame{10, 10}, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res, test.ShouldBeNil)
}

func TestClose(t *testing.T) {
	det := &fakeDetector{closeErr: errors.New("detector busy")}
	lms := &fakeLandmarks{scores: []float32{1}, closeErr: errors.New("landmarks busy")}
	p, err := New(testConfig(t), det, lms, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)

	err = p.Close()
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "detector busy")
	test.That(t, err.Error(), test.ShouldContainSubstring, "landmarks busy")

	p, err = New(testConfig(t), &fakeDetector{}, nil, &fakePre{}, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Close(), test.ShouldBeNil)
}

func TestDefaultConfig(t *testing.T) {
	cfg, err := DefaultConfig(detector.FamilyPose)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.Filter, test.ShouldBeTrue)
	test.That(t, cfg.DetectionROI.FromKeypoints, test.ShouldBeTrue)

	_, err = DefaultConfig("iris")
	test.That(t, err, test.ShouldNotBeNil)
}
