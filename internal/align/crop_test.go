package align

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/geometry"
)

func expectIdentity(t *testing.T, m mgl32.Mat4) {
	t.Helper()
	ident := mgl32.Ident4()
	for i := range m {
		test.That(t, m[i], test.ShouldAlmostEqual, ident[i], 1e-5)
	}
}

func TestCropMatrixIdentity(t *testing.T) {
	m, err := CropMatrix(CropOptions{
		Rect:  geometry.Rect{Width: 1, Height: 1},
		Scale: mgl32.Vec2{1, 1},
	})
	test.That(t, err, test.ShouldBeNil)
	expectIdentity(t, m)
}

func TestCropMatrixRoundTrip(t *testing.T) {
	for _, opts := range []CropOptions{
		{Rect: geometry.Rect{X: 0.2, Y: 0.3, Width: 0.25, Height: 0.25}, RotationDegrees: 30, Shift: mgl32.Vec2{0, -0.2}, Scale: mgl32.Vec2{2.8, 2.8}},
		{Rect: geometry.Rect{X: 0.1, Y: 0.1, Width: 0.4, Height: 0.2}, RotationDegrees: -120, Scale: mgl32.Vec2{1.5, 1.25}},
		{Rect: geometry.Rect{X: 0.4, Y: 0.5, Width: 0.1, Height: 0.3}, RotationDegrees: 90, Shift: mgl32.Vec2{0.1, 0.1}, Scale: mgl32.Vec2{1, 1},
			Camera: Camera{RotationDegrees: 90, MirrorHorizontal: true}},
	} {
		m, err := CropMatrix(opts)
		test.That(t, err, test.ShouldBeNil)
		inv, err := Invert(m)
		test.That(t, err, test.ShouldBeNil)
		expectIdentity(t, inv.Mul4(m))
	}
}

func TestCropMatrixCenterAndShift(t *testing.T) {
	rect := geometry.Rect{X: 0.2, Y: 0.3, Width: 0.2, Height: 0.2}
	m, err := CropMatrix(CropOptions{
		Rect:            rect,
		RotationDegrees: 45,
		Shift:           mgl32.Vec2{0, -0.2},
		Scale:           mgl32.Vec2{2, 2},
	})
	test.That(t, err, test.ShouldBeNil)

	c := TransformPoint(m, rect.Center())
	test.That(t, c.X, test.ShouldAlmostEqual, 0.5, 1e-5)
	test.That(t, c.Y, test.ShouldAlmostEqual, 0.7, 1e-5)
}

func TestCropMatrixRotation(t *testing.T) {
	origin := geometry.Point{X: 0.5, Y: 0.5}
	target := geometry.Point{X: 0.75, Y: 0.5}
	rotation := geometry.RotationDegrees(origin, target, 90)

	m, err := CropMatrix(CropOptions{
		Rect:            geometry.RectFromCenter(origin, 0.5, 0.5),
		RotationDegrees: rotation,
		Scale:           mgl32.Vec2{1, 1},
	})
	test.That(t, err, test.ShouldBeNil)

	// the target ends up straight above the crop center
	p := TransformPoint(m, target)
	test.That(t, p.X, test.ShouldAlmostEqual, 0.5, 1e-5)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0, 1e-5)
}

func TestCropMatrixCamera(t *testing.T) {
	m, err := CropMatrix(CropOptions{
		Rect:   geometry.Rect{Width: 1, Height: 1},
		Scale:  mgl32.Vec2{1, 1},
		Camera: Camera{MirrorHorizontal: true},
	})
	test.That(t, err, test.ShouldBeNil)
	p := TransformPoint(m, geometry.Point{X: 0.25, Y: 0.5})
	test.That(t, p.X, test.ShouldAlmostEqual, 0.75, 1e-6)
	test.That(t, p.Y, test.ShouldAlmostEqual, 0.5, 1e-6)
}

func TestCropMatrixDegenerate(t *testing.T) {
	_, err := CropMatrix(CropOptions{Rect: geometry.Rect{X: 0.5, Y: 0.5}, Scale: mgl32.Vec2{1, 1}})
	test.That(t, errors.Is(err, ErrDegenerateRect), test.ShouldBeTrue)

	_, err = CropMatrix(CropOptions{Rect: geometry.Rect{Width: 0.5, Height: 0.5}})
	test.That(t, errors.Is(err, ErrDegenerateRect), test.ShouldBeTrue)

	_, err = Invert(mgl32.Mat4{})
	test.That(t, errors.Is(err, ErrDegenerateRect), test.ShouldBeTrue)
}

func TestCorners(t *testing.T) {
	corners := Corners(mgl32.Ident4())
	test.That(t, corners[0], test.ShouldResemble, geometry.Point{X: 0, Y: 0})
	test.That(t, corners[2], test.ShouldResemble, geometry.Point{X: 1, Y: 1})
}

func TestROI(t *testing.T) {
	t.Run("pose uses alignment points", func(t *testing.T) {
		roi, err := DetectionROI(detector.FamilyPose)
		test.That(t, err, test.ShouldBeNil)
		det := detector.Detection{
			Rect: geometry.Rect{X: 0.4, Y: 0.2, Width: 0.1, Height: 0.1},
			Keypoints: []geometry.Point{
				{X: 0.5, Y: 0.6}, {X: 0.5, Y: 0.4}, {X: 0.5, Y: 0.3}, {X: 0.5, Y: 0.2},
			},
		}
		rect := roi.PivotRect(det)
		test.That(t, rect.Width, test.ShouldAlmostEqual, 0.4, 1e-5)
		test.That(t, rect.Center().Y, test.ShouldAlmostEqual, 0.6, 1e-5)
		test.That(t, roi.Rotation(det), test.ShouldAlmostEqual, 0, 1e-4)
	})

	t.Run("palm is square", func(t *testing.T) {
		roi, err := DetectionROI(detector.FamilyPalm)
		test.That(t, err, test.ShouldBeNil)
		det := detector.Detection{Rect: geometry.Rect{X: 0.4, Y: 0.4, Width: 0.1, Height: 0.2}}
		rect := roi.PivotRect(det)
		test.That(t, rect.Width, test.ShouldAlmostEqual, 0.2, 1e-6)
		test.That(t, rect.Height, test.ShouldAlmostEqual, 0.2, 1e-6)
		test.That(t, roi.Rotation(det), test.ShouldEqual, float32(0))

		crop, inverse, err := roi.Matrix(det, Camera{})
		test.That(t, err, test.ShouldBeNil)
		expectIdentity(t, inverse.Mul4(crop))
	})

	t.Run("degenerate detection", func(t *testing.T) {
		roi, err := DetectionROI(detector.FamilyFace)
		test.That(t, err, test.ShouldBeNil)
		_, _, err = roi.Matrix(detector.Detection{}, Camera{})
		test.That(t, errors.Is(err, ErrDegenerateRect), test.ShouldBeTrue)
	})

	t.Run("unknown family", func(t *testing.T) {
		_, err := DetectionROI("iris")
		test.That(t, err, test.ShouldNotBeNil)
		_, err = TrackingROI("iris")
		test.That(t, err, test.ShouldNotBeNil)
	})
}
