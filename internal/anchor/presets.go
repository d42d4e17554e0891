package anchor

// FaceShortRange returns the BlazeFace short-range (128x128) anchor options
func FaceShortRange() Options {
	return Options{
		InputWidth:                   128,
		InputHeight:                  128,
		MinScale:                     0.1484375,
		MaxScale:                     0.75,
		OffsetX:                      0.5,
		OffsetY:                      0.5,
		NumLayers:                    4,
		Strides:                      []int{8, 16, 16, 16},
		AspectRatios:                 []float32{1.0},
		InterpolatedScaleAspectRatio: 1.0,
		FixedAnchorSize:              true,
	}
}

// Pose returns the BlazePose detector (224x224) anchor options
func Pose() Options {
	return Options{
		InputWidth:                   224,
		InputHeight:                  224,
		MinScale:                     0.1484375,
		MaxScale:                     0.75,
		OffsetX:                      0.5,
		OffsetY:                      0.5,
		NumLayers:                    5,
		Strides:                      []int{8, 16, 32, 32, 32},
		AspectRatios:                 []float32{1.0},
		InterpolatedScaleAspectRatio: 1.0,
		FixedAnchorSize:              true,
	}
}

// Palm returns the BlazePalm detector (256x256) anchor options
func Palm() Options {
	return Options{
		InputWidth:                   256,
		InputHeight:                  256,
		MinScale:                     0.1171875,
		MaxScale:                     0.75,
		OffsetX:                      0.5,
		OffsetY:                      0.5,
		NumLayers:                    5,
		Strides:                      []int{8, 16, 32, 32, 32},
		AspectRatios:                 []float32{1.0},
		InterpolatedScaleAspectRatio: 1.0,
		FixedAnchorSize:              true,
	}
}

// MobileSSD returns the classic 300x300 MobileNet-SSD anchor options
func MobileSSD() Options {
	return Options{
		InputWidth:                   300,
		InputHeight:                  300,
		MinScale:                     0.2,
		MaxScale:                     0.95,
		OffsetX:                      0.5,
		OffsetY:                      0.5,
		NumLayers:                    6,
		Strides:                      []int{16, 32, 64, 128, 256, 512},
		AspectRatios:                 []float32{1.0, 2.0, 0.5, 3.0, 0.3333},
		ReduceBoxesInLowestLayer:     true,
		InterpolatedScaleAspectRatio: 1.0,
	}
}
