package landmark

import (
	"github.com/pkg/errors"

	"github.com/dudu/blazekit/internal/detector"
)

// HandJoints is the number of hand landmarks
const HandJoints = 21

// FaceMeshPoints is the number of face mesh landmarks
const FaceMeshPoints = 468

// PoseBodyJoints is the number of drawable full-body pose landmarks; the model
// emits six more used for ROI tracking
const PoseBodyJoints = 33

// PoseUpperBodyJoints is the number of drawable upper-body pose landmarks; the
// model emits six more used for ROI tracking
const PoseUpperBodyJoints = 25

// poseAuxiliary is the number of ROI tracking landmarks after the body joints
const poseAuxiliary = 6

// Model describes a landmark model family
type Model struct {
	Options Options
	// InputSize is the square crop side the model expects
	InputSize int
	// Tracking rebuilds a detection from landmarks for the next frame
	Tracking Tracking
}

// Tracking selects the landmarks used to rebuild a detection
type Tracking struct {
	RectIndices     []int // nil means every landmark
	KeypointIndices []int
}

// Hand returns the hand landmark model layout
func Hand(dim Dimension) Model {
	return Model{
		InputSize: 224,
		Options: Options{
			Count:           HandJoints,
			Stride:          int(dim),
			Dimension:       dim,
			Scale:           1.0 / 255.0,
			VisibilityIndex: -1,
		},
		Tracking: Tracking{
			// wrist and palm base joints
			RectIndices: []int{0, 1, 2, 3, 5, 6, 9, 10, 13, 14, 17, 18},
			// wrist, middle finger base
			KeypointIndices: []int{0, 9},
		},
	}
}

// HandDimensionFromLength picks the hand layout from the flat output length
func HandDimensionFromLength(n int) (Dimension, error) {
	switch n {
	case HandJoints * 2:
		return Dim2, nil
	case HandJoints * 3:
		return Dim3, nil
	}
	return 0, errors.Errorf("hand landmark output of %d values is neither 2D nor 3D", n)
}

// FaceMesh returns the face mesh model layout
func FaceMesh() Model {
	return Model{
		InputSize: 192,
		Options: Options{
			Count:           FaceMeshPoints,
			Stride:          3,
			Dimension:       Dim3,
			Scale:           1.0 / 192.0,
			VisibilityIndex: -1,
		},
		Tracking: Tracking{
			// outer eye corners
			KeypointIndices: []int{33, 263},
		},
	}
}

// Pose returns the full-body pose landmark model layout
func Pose() Model {
	return Model{
		InputSize: 256,
		Options: Options{
			Count:           PoseBodyJoints + poseAuxiliary,
			Stride:          5,
			Dimension:       Dim3,
			Scale:           1.0 / 255.0,
			VisibilityIndex: 3,
		},
		Tracking: Tracking{
			RectIndices: bodyIndices(PoseBodyJoints),
			// hip center, full body scale point
			KeypointIndices: []int{PoseBodyJoints, PoseBodyJoints + 1},
		},
	}
}

// PoseUpperBody returns the upper-body pose landmark model layout
func PoseUpperBody() Model {
	return Model{
		InputSize: 256,
		Options: Options{
			Count:           PoseUpperBodyJoints + poseAuxiliary,
			Stride:          4,
			Dimension:       Dim3,
			Scale:           1.0 / 255.0,
			VisibilityIndex: 3,
		},
		Tracking: Tracking{
			RectIndices: bodyIndices(PoseUpperBodyJoints),
			// hip center, upper body scale point
			KeypointIndices: []int{PoseUpperBodyJoints, PoseUpperBodyJoints + 1},
		},
	}
}

// PoseModelFromLength picks the pose layout from the flat output length
func PoseModelFromLength(n int) (Model, error) {
	for _, m := range []Model{Pose(), PoseUpperBody()} {
		if n == m.Options.Count*m.Options.Stride {
			return m, nil
		}
	}
	return Model{}, errors.Errorf("pose landmark output of %d values is neither full nor upper body", n)
}

// ForFamily returns the landmark model paired with a detector family
func ForFamily(family detector.Family, outputLength int) (Model, error) {
	switch family {
	case detector.FamilyFace:
		return FaceMesh(), nil
	case detector.FamilyPose:
		if outputLength > 0 {
			return PoseModelFromLength(outputLength)
		}
		return Pose(), nil
	case detector.FamilyPalm:
		dim := Dim3
		if outputLength > 0 {
			var err error
			if dim, err = HandDimensionFromLength(outputLength); err != nil {
				return Model{}, err
			}
		}
		return Hand(dim), nil
	}
	return Model{}, errors.Errorf("no landmark model for family %q", string(family))
}

func bodyIndices(n int) []int {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return idx
}
