package detector

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/inference"
)

// fakeFaceEngine returns a single confident face at anchor 0
func fakeFaceEngine(t *testing.T, rows int, scoresFirst bool) *inference.Func {
	t.Helper()
	boxesShape := tensor.Shape{1, rows, 16}
	scoresShape := tensor.Shape{1, rows, 1}
	outputs := []inference.TensorInfo{
		{Name: "regressors", Shape: boxesShape},
		{Name: "classificators", Shape: scoresShape},
	}
	if scoresFirst {
		outputs[0], outputs[1] = outputs[1], outputs[0]
	}

	return &inference.Func{
		InputInfo:  []inference.TensorInfo{{Name: "input", Shape: tensor.Shape{1, 128, 128, 3}}},
		OutputInfo: outputs,
		Fn: func(_ context.Context, _ []*tensor.Dense) ([]*tensor.Dense, error) {
			boxes := make([]float32, rows*16)
			scores := make([]float32, rows)
			for i := range scores {
				scores[i] = -10
			}
			scores[0] = 5
			boxes[2], boxes[3] = 16, 16
			b, err := inference.NewFloat32(boxesShape, boxes)
			if err != nil {
				return nil, err
			}
			s, err := inference.NewFloat32(scoresShape, scores)
			if err != nil {
				return nil, err
			}
			if scoresFirst {
				return []*tensor.Dense{s, b}, nil
			}
			return []*tensor.Dense{b, s}, nil
		},
	}
}

func TestSSDDetect(t *testing.T) {
	for _, scoresFirst := range []bool{false, true} {
		ssd, err := NewSSD(fakeFaceEngine(t, 896, scoresFirst), FamilyFace)
		test.That(t, err, test.ShouldBeNil)

		w, h := ssd.InputSize()
		test.That(t, w, test.ShouldEqual, 128)
		test.That(t, h, test.ShouldEqual, 128)
		test.That(t, ssd.Anchors(), test.ShouldHaveLength, 896)

		input, err := inference.NewFloat32([]int{1, 128, 128, 3}, nil)
		test.That(t, err, test.ShouldBeNil)

		dets, err := ssd.Detect(context.Background(), input)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dets, test.ShouldHaveLength, 1)
		test.That(t, dets[0].Keypoints, test.ShouldHaveLength, 6)
		test.That(t, dets[0].Rect.Width, test.ShouldAlmostEqual, 0.125, 1e-6)
		test.That(t, dets[0].Rect.Center().X, test.ShouldAlmostEqual, 0.03125, 1e-6)
		test.That(t, ssd.Close(), test.ShouldBeNil)
	}
}

func TestSSDAnchorMismatch(t *testing.T) {
	_, err := NewSSD(fakeFaceEngine(t, 2254, false), FamilyFace)
	test.That(t, errors.Is(err, ErrAnchorMismatch), test.ShouldBeTrue)

	single := &inference.Func{OutputInfo: []inference.TensorInfo{{Name: "out", Shape: tensor.Shape{1, 896, 16}}}}
	_, err = NewSSD(single, FamilyFace)
	test.That(t, errors.Is(err, ErrAnchorMismatch), test.ShouldBeTrue)

	_, err = NewSSD(&inference.Func{}, FamilyFace)
	test.That(t, errors.Is(err, ErrAnchorMismatch), test.ShouldBeTrue)
}

func TestSSDOptions(t *testing.T) {
	ssd, err := NewSSD(fakeFaceEngine(t, 896, false), FamilyFace, WithThresholds(0.999, 0.3), WithMaxResults(3))
	test.That(t, err, test.ShouldBeNil)

	input, err := inference.NewFloat32([]int{1, 128, 128, 3}, nil)
	test.That(t, err, test.ShouldBeNil)
	dets, err := ssd.Detect(context.Background(), input)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, dets, test.ShouldBeEmpty)
}

func TestFamilies(t *testing.T) {
	for _, tc := range []struct {
		name      string
		family    Family
		keypoints int
	}{
		{"face", FamilyFace, 6},
		{"pose", FamilyPose, 4},
		{"hand", FamilyPalm, 7},
	} {
		f, err := ParseFamily(tc.name)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, f, test.ShouldEqual, tc.family)
		spec, err := f.Spec()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, spec.NumKeypoints, test.ShouldEqual, tc.keypoints)
	}

	_, err := ParseFamily("iris")
	test.That(t, err, test.ShouldNotBeNil)
	_, err = Family("iris").Spec()
	test.That(t, err, test.ShouldNotBeNil)
}
