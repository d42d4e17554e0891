// Package align builds the region-of-interest transforms that re-crop a frame
// for the second-stage landmark models.
package align

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/dudu/blazekit/internal/geometry"
)

// ErrDegenerateRect is returned when a crop rect has no usable size
var ErrDegenerateRect = errors.New("degenerate crop rect")

var (
	pushMatrix = mgl32.Translate3D(-0.5, -0.5, 0)
	popMatrix  = mgl32.Translate3D(0.5, 0.5, 0)
)

// Camera describes the device orientation correction applied before cropping
type Camera struct {
	RotationDegrees  float32
	MirrorHorizontal bool
	MirrorVertical   bool
}

// IsZero reports whether no correction is needed
func (c Camera) IsZero() bool {
	return c.RotationDegrees == 0 && !c.MirrorHorizontal && !c.MirrorVertical
}

// Matrix returns the rotation and mirror matrix of the correction
func (c Camera) Matrix() mgl32.Mat4 {
	sx, sy := float32(1), float32(1)
	if c.MirrorHorizontal {
		sx = -1
	}
	if c.MirrorVertical {
		sy = -1
	}
	rotation := mgl32.HomogRotate3DZ(mgl32.DegToRad(-c.RotationDegrees))
	return rotation.Mul4(mgl32.Scale3D(sx, sy, 1))
}

// CropOptions describes one region of interest
type CropOptions struct {
	Rect            geometry.Rect
	RotationDegrees float32
	Shift           mgl32.Vec2
	Scale           mgl32.Vec2
	Camera          Camera
}

// CropMatrix returns the matrix mapping normalized frame space into normalized
// crop space: the scaled rect, rotated by RotationDegrees around its center and
// moved by Shift (in crop units), becomes the unit square.
func CropMatrix(opts CropOptions) (mgl32.Mat4, error) {
	size := mgl32.Vec2{opts.Rect.Width * opts.Scale.X(), opts.Rect.Height * opts.Scale.Y()}
	if !finitePositive(size.X()) || !finitePositive(size.Y()) {
		return mgl32.Ident4(), errors.Wrapf(ErrDegenerateRect, "size %vx%v", size.X(), size.Y())
	}

	rotation := mgl32.QuatRotate(mgl32.DegToRad(opts.RotationDegrees), mgl32.Vec3{0, 0, 1})

	// Rect center relative to the frame center, in rotated crop units
	c := opts.Rect.Center()
	center := rotation.Rotate(mgl32.Vec3{c.X - 0.5, c.Y - 0.5, 0})
	center[0] = (center[0] + opts.Shift.X()*size.X()) / size.X()
	center[1] = (center[1] + opts.Shift.Y()*size.Y()) / size.Y()

	trs := mgl32.Translate3D(-center.X(), -center.Y(), 0).
		Mul4(mgl32.Scale3D(1/size.X(), 1/size.Y(), 1)).
		Mul4(rotation.Mat4())

	if opts.Camera.IsZero() {
		return popMatrix.Mul4(trs).Mul4(pushMatrix), nil
	}
	return popMatrix.Mul4(trs).Mul4(opts.Camera.Matrix()).Mul4(pushMatrix), nil
}

// Invert returns the inverse of a crop matrix
func Invert(m mgl32.Mat4) (mgl32.Mat4, error) {
	det := m.Det()
	if det == 0 || math.IsNaN(float64(det)) || math.IsInf(float64(det), 0) {
		return mgl32.Ident4(), errors.Wrap(ErrDegenerateRect, "matrix is not invertible")
	}
	return m.Inv(), nil
}

// MultiplyPoint applies the affine part of m to p
func MultiplyPoint(m mgl32.Mat4, p mgl32.Vec3) mgl32.Vec3 {
	return m.Mul4x1(p.Vec4(1)).Vec3()
}

// TransformPoint applies the affine part of m to a 2D point
func TransformPoint(m mgl32.Mat4, p geometry.Point) geometry.Point {
	v := MultiplyPoint(m, mgl32.Vec3{p.X, p.Y, 0})
	return geometry.Point{X: v.X(), Y: v.Y()}
}

// Corners returns the four corners of the unit crop square in frame space,
// clockwise from the top-left
func Corners(inverse mgl32.Mat4) [4]geometry.Point {
	return [4]geometry.Point{
		TransformPoint(inverse, geometry.Point{X: 0, Y: 0}),
		TransformPoint(inverse, geometry.Point{X: 1, Y: 0}),
		TransformPoint(inverse, geometry.Point{X: 1, Y: 1}),
		TransformPoint(inverse, geometry.Point{X: 0, Y: 1}),
	}
}

func finitePositive(v float32) bool {
	f := float64(v)
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}
