package landmark

import (
	"context"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/detector"
	"github.com/dudu/blazekit/internal/inference"
)

func handEngine(t *testing.T, score float32) *inference.Func {
	t.Helper()
	return &inference.Func{
		InputInfo: []inference.TensorInfo{{Name: "input_1", Shape: tensor.Shape{1, 224, 224, 3}}},
		OutputInfo: []inference.TensorInfo{
			{Name: "Identity", Shape: tensor.Shape{1, 63}},
			{Name: "Identity_1", Shape: tensor.Shape{1, 1}},
			{Name: "Identity_2", Shape: tensor.Shape{1, 1}},
			{Name: "Identity_3", Shape: tensor.Shape{1, 63}},
		},
		Fn: func(_ context.Context, _ []*tensor.Dense) ([]*tensor.Dense, error) {
			raw := make([]float32, 63)
			for i := 0; i < HandJoints; i++ {
				raw[i*3] = 112
				raw[i*3+1] = 56
			}
			lms, err := inference.NewFloat32([]int{1, 63}, raw)
			test.That(t, err, test.ShouldBeNil)
			flag, err := inference.NewFloat32([]int{1, 1}, []float32{score})
			test.That(t, err, test.ShouldBeNil)
			handed, err := inference.NewFloat32([]int{1, 1}, []float32{0.2})
			test.That(t, err, test.ShouldBeNil)
			world, err := inference.NewFloat32([]int{1, 63}, nil)
			test.That(t, err, test.ShouldBeNil)
			return []*tensor.Dense{lms, flag, handed, world}, nil
		},
	}
}

func TestEstimatorHand(t *testing.T) {
	e, err := NewEstimator(handEngine(t, 0.95), detector.FamilyPalm, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.Model().Options.Dimension, test.ShouldEqual, Dim3)
	w, h := e.InputSize()
	test.That(t, w, test.ShouldEqual, 224)
	test.That(t, h, test.ShouldEqual, 224)

	input, err := inference.NewFloat32([]int{1, 224, 224, 3}, nil)
	test.That(t, err, test.ShouldBeNil)
	res, err := e.Estimate(context.Background(), input, mgl32.Ident4())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Score, test.ShouldAlmostEqual, 0.95, 1e-6)
	test.That(t, res.Landmarks, test.ShouldHaveLength, HandJoints)
	test.That(t, res.Landmarks[4].X, test.ShouldAlmostEqual, 112.0/255.0, 1e-6)
	test.That(t, res.Landmarks[4].Y, test.ShouldAlmostEqual, 56.0/255.0, 1e-6)
	test.That(t, e.Close(), test.ShouldBeNil)
}

func TestEstimatorDefaults(t *testing.T) {
	e, err := NewEstimator(&inference.Func{}, detector.FamilyFace, nil)
	test.That(t, err, test.ShouldBeNil)
	w, _ := e.InputSize()
	test.That(t, w, test.ShouldEqual, 192)
	test.That(t, e.landmarksOutput, test.ShouldEqual, 0)
	test.That(t, e.scoreOutput, test.ShouldEqual, 1)

	e, err = NewEstimator(&inference.Func{
		InputInfo: []inference.TensorInfo{{Shape: tensor.Shape{1, 3, 256, 256}}},
	}, detector.FamilyPose, nil)
	test.That(t, err, test.ShouldBeNil)
	w, _ = e.InputSize()
	test.That(t, w, test.ShouldEqual, 256)
}

func TestEstimatorUpperBodyPose(t *testing.T) {
	engine := &inference.Func{
		InputInfo: []inference.TensorInfo{{Name: "input_1", Shape: tensor.Shape{1, 256, 256, 3}}},
		OutputInfo: []inference.TensorInfo{
			{Name: "ld_3d", Shape: tensor.Shape{1, 124}},
			{Name: "output_poseflag", Shape: tensor.Shape{1, 1}},
			{Name: "output_segmentation", Shape: tensor.Shape{1, 128, 128, 1}},
		},
		Fn: func(_ context.Context, _ []*tensor.Dense) ([]*tensor.Dense, error) {
			raw := make([]float32, 124)
			for i := 0; i < 31; i++ {
				raw[i*4] = 128
				raw[i*4+1] = 64
				raw[i*4+3] = 0.8
			}
			lms, err := inference.NewFloat32([]int{1, 124}, raw)
			test.That(t, err, test.ShouldBeNil)
			flag, err := inference.NewFloat32([]int{1, 1}, []float32{0.7})
			test.That(t, err, test.ShouldBeNil)
			seg, err := inference.NewFloat32([]int{1, 128, 128, 1}, nil)
			test.That(t, err, test.ShouldBeNil)
			return []*tensor.Dense{lms, flag, seg}, nil
		},
	}

	e, err := NewEstimator(engine, detector.FamilyPose, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, e.Model().Options.Count, test.ShouldEqual, PoseUpperBodyJoints+6)
	test.That(t, e.landmarksOutput, test.ShouldEqual, 0)
	test.That(t, e.scoreOutput, test.ShouldEqual, 1)

	input, err := inference.NewFloat32([]int{1, 256, 256, 3}, nil)
	test.That(t, err, test.ShouldBeNil)
	res, err := e.Estimate(context.Background(), input, mgl32.Ident4())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Score, test.ShouldAlmostEqual, 0.7, 1e-6)
	test.That(t, res.Landmarks, test.ShouldHaveLength, 31)
	test.That(t, res.Landmarks[24].X, test.ShouldAlmostEqual, 128.0/255.0, 1e-6)
	test.That(t, res.Landmarks[24].Y, test.ShouldAlmostEqual, 64.0/255.0, 1e-6)
	test.That(t, res.Landmarks[24].Visibility, test.ShouldAlmostEqual, 0.8, 1e-6)
}

func TestEstimatorErrors(t *testing.T) {
	_, err := NewEstimator(&inference.Func{
		OutputInfo: []inference.TensorInfo{{Shape: tensor.Shape{1, 10}}, {Shape: tensor.Shape{1, 1}}},
	}, detector.FamilyFace, nil)
	test.That(t, errors.Is(err, ErrShortTensor), test.ShouldBeTrue)

	_, err = NewEstimator(&inference.Func{
		OutputInfo: []inference.TensorInfo{{Shape: tensor.Shape{1, 1404}}},
	}, detector.FamilyFace, nil)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewEstimator(&inference.Func{}, detector.Family("iris"), nil)
	test.That(t, err, test.ShouldNotBeNil)

	failing := &inference.Func{Fn: func(context.Context, []*tensor.Dense) ([]*tensor.Dense, error) {
		return nil, errors.New("boom")
	}}
	e, err := NewEstimator(failing, detector.FamilyFace, nil)
	test.That(t, err, test.ShouldBeNil)
	_, err = e.Estimate(context.Background(), nil, mgl32.Ident4())
	test.That(t, err, test.ShouldNotBeNil)
}
