package anchor

import (
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

func TestPresetCounts(t *testing.T) {
	for _, tc := range []struct {
		name  string
		opts  Options
		count int
	}{
		{"face", FaceShortRange(), 896},
		{"pose", Pose(), 2254},
		{"palm", Palm(), 2944},
		{"mobilessd", MobileSSD(), 1917},
	} {
		t.Run(tc.name, func(t *testing.T) {
			anchors, err := Generate(tc.opts)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, anchors, test.ShouldHaveLength, tc.count)
		})
	}
}

func TestGenerateOrder(t *testing.T) {
	anchors, err := Generate(FaceShortRange())
	test.That(t, err, test.ShouldBeNil)

	// stride 8 layer: 16x16 cells, two entries per cell
	test.That(t, anchors[0], test.ShouldResemble, Anchor{X: 0.03125, Y: 0.03125, Width: 1, Height: 1})
	test.That(t, anchors[1], test.ShouldResemble, anchors[0])
	test.That(t, anchors[2].X, test.ShouldAlmostEqual, 0.09375, 1e-6)
	test.That(t, anchors[2].Y, test.ShouldAlmostEqual, 0.03125, 1e-6)
	test.That(t, anchors[32].Y, test.ShouldAlmostEqual, 0.09375, 1e-6)

	// merged stride 16 layers: 8x8 cells, six entries per cell
	first16 := anchors[512]
	test.That(t, first16.X, test.ShouldAlmostEqual, 0.0625, 1e-6)
	test.That(t, first16.Y, test.ShouldAlmostEqual, 0.0625, 1e-6)
	test.That(t, anchors[517], test.ShouldResemble, first16)
	test.That(t, anchors[518].X, test.ShouldAlmostEqual, 0.1875, 1e-6)

	last := anchors[len(anchors)-1]
	test.That(t, last.X, test.ShouldAlmostEqual, 0.9375, 1e-6)
	test.That(t, last.Y, test.ShouldAlmostEqual, 0.9375, 1e-6)
}

func TestReduceBoxesInLowestLayer(t *testing.T) {
	anchors, err := Generate(MobileSSD())
	test.That(t, err, test.ShouldBeNil)

	test.That(t, anchors[0].X, test.ShouldAlmostEqual, 0.5/19, 1e-6)
	test.That(t, anchors[0].Width, test.ShouldAlmostEqual, 0.1, 1e-6)
	test.That(t, anchors[0].Height, test.ShouldAlmostEqual, 0.1, 1e-6)
	test.That(t, anchors[1].Width, test.ShouldAlmostEqual, 0.28284271, 1e-5)
	test.That(t, anchors[1].Height, test.ShouldAlmostEqual, 0.14142136, 1e-5)
	test.That(t, anchors[2].Width, test.ShouldAlmostEqual, 0.14142136, 1e-5)
	test.That(t, anchors[2].Height, test.ShouldAlmostEqual, 0.28284271, 1e-5)
}

func TestGenerateFeatureMaps(t *testing.T) {
	opts := Options{
		MinScale:         0.2,
		MaxScale:         0.8,
		OffsetX:          0.5,
		OffsetY:          0.5,
		NumLayers:        2,
		FeatureMapWidth:  []int{4, 2},
		FeatureMapHeight: []int{2, 1},
		Strides:          []int{8, 16},
		AspectRatios:     []float32{1.0},
	}
	anchors, err := Generate(opts)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, anchors, test.ShouldHaveLength, 10)
	test.That(t, anchors[0].Width, test.ShouldAlmostEqual, 0.2, 1e-6)
	test.That(t, anchors[9].Width, test.ShouldAlmostEqual, 0.8, 1e-6)
	test.That(t, anchors[9].Y, test.ShouldAlmostEqual, 0.5, 1e-6)
}

func TestGenerateInvalid(t *testing.T) {
	opts := FaceShortRange()
	opts.NumLayers = 3
	_, err := Generate(opts)
	test.That(t, errors.Is(err, ErrInvalidOptions), test.ShouldBeTrue)

	_, err = Generate(Options{})
	test.That(t, errors.Is(err, ErrInvalidOptions), test.ShouldBeTrue)

	opts = FaceShortRange()
	opts.FeatureMapWidth = []int{1}
	opts.FeatureMapHeight = []int{1}
	_, err = Generate(opts)
	test.That(t, errors.Is(err, ErrInvalidOptions), test.ShouldBeTrue)
}
