package align

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/geometry"
)

// ROI turns a detection into crop options for a landmark model
type ROI struct {
	// FromKeypoints builds the pivot rect from CenterKeypoint and ScaleKeypoint
	// instead of the detection rect
	FromKeypoints  bool
	CenterKeypoint int
	ScaleKeypoint  int

	// Rotation brings RotationOrigin->RotationTarget onto TargetDegrees
	RotationOrigin int
	RotationTarget int
	TargetDegrees  float32

	Shift mgl32.Vec2
	Scale mgl32.Vec2
	// Square uses the long side of the pivot rect for both sides
	Square bool
}

// DetectionROI returns the ROI rule applied to fresh detector output
func DetectionROI(family detector.Family) (ROI, error) {
	switch family {
	case detector.FamilyFace:
		return ROI{
			RotationOrigin: 0, // right eye
			RotationTarget: 1, // left eye
			TargetDegrees:  0,
			Shift:          mgl32.Vec2{0, -0.1},
			Scale:          mgl32.Vec2{1.5, 1.5},
			Square:         true,
		}, nil
	case detector.FamilyPalm:
		return ROI{
			RotationOrigin: 0, // wrist center
			RotationTarget: 2, // middle finger base
			TargetDegrees:  90,
			Shift:          mgl32.Vec2{0, -0.2},
			Scale:          mgl32.Vec2{2.8, 2.8},
			Square:         true,
		}, nil
	case detector.FamilyPose:
		return ROI{
			FromKeypoints:  true,
			CenterKeypoint: 0, // hip center
			ScaleKeypoint:  1, // full body scale point
			RotationOrigin: 0,
			RotationTarget: 1,
			TargetDegrees:  90,
			Scale:          mgl32.Vec2{1.5, 1.5},
		}, nil
	}
	return ROI{}, errors.Errorf("no ROI rule for family %q", string(family))
}

// TrackingROI returns the ROI rule applied to detections rebuilt from landmarks
func TrackingROI(family detector.Family) (ROI, error) {
	switch family {
	case detector.FamilyFace:
		return ROI{
			RotationOrigin: 0,
			RotationTarget: 1,
			TargetDegrees:  0,
			Scale:          mgl32.Vec2{1.5, 1.5},
			Square:         true,
		}, nil
	case detector.FamilyPalm:
		return ROI{
			RotationOrigin: 0,
			RotationTarget: 1,
			TargetDegrees:  90,
			Shift:          mgl32.Vec2{0, -0.1},
			Scale:          mgl32.Vec2{2.0, 2.0},
			Square:         true,
		}, nil
	case detector.FamilyPose:
		return ROI{
			FromKeypoints:  true,
			CenterKeypoint: 0,
			ScaleKeypoint:  1,
			RotationOrigin: 0,
			RotationTarget: 1,
			TargetDegrees:  90,
			Scale:          mgl32.Vec2{1.25, 1.25},
		}, nil
	}
	return ROI{}, errors.Errorf("no ROI rule for family %q", string(family))
}

// PivotRect returns the rect the crop is built around
func (r ROI) PivotRect(det detector.Detection) geometry.Rect {
	rect := det.Rect
	if r.FromKeypoints {
		rect = geometry.AlignmentRect(det.Keypoint(r.CenterKeypoint), det.Keypoint(r.ScaleKeypoint))
	}
	if r.Square {
		side := max(rect.Width, rect.Height)
		rect = geometry.RectFromCenter(rect.Center(), side, side)
	}
	return rect
}

// Rotation returns the ROI rotation in degrees
func (r ROI) Rotation(det detector.Detection) float32 {
	if len(det.Keypoints) == 0 {
		return 0
	}
	return geometry.RotationDegrees(det.Keypoint(r.RotationOrigin), det.Keypoint(r.RotationTarget), r.TargetDegrees)
}

// Options returns the crop options for a detection
func (r ROI) Options(det detector.Detection, camera Camera) CropOptions {
	scale := r.Scale
	if scale == (mgl32.Vec2{}) {
		scale = mgl32.Vec2{1, 1}
	}
	return CropOptions{
		Rect:            r.PivotRect(det),
		RotationDegrees: r.Rotation(det),
		Shift:           r.Shift,
		Scale:           scale,
		Camera:          camera,
	}
}

// Matrix returns the crop matrix and its inverse for a detection
func (r ROI) Matrix(det detector.Detection, camera Camera) (mgl32.Mat4, mgl32.Mat4, error) {
	crop, err := CropMatrix(r.Options(det, camera))
	if err != nil {
		return crop, mgl32.Ident4(), err
	}
	inverse, err := Invert(crop)
	if err != nil {
		return crop, inverse, err
	}
	return crop, inverse, nil
}
