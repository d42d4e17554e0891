// Package preprocess turns OpenCV frames into model input tensors.
package preprocess

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/dudu/blazekit/internal/align"
	"github.com/dudu/blazekit/internal/geometry"
	"github.com/dudu/blazekit/internal/inference"
	"github.com/dudu/blazekit/internal/pipeline"
)

// MatFrame adapts a BGR gocv.Mat to pipeline.Frame
type MatFrame struct {
	Mat gocv.Mat
}

// Size returns the frame width and height in pixels
func (f MatFrame) Size() (int, int) {
	return f.Mat.Cols(), f.Mat.Rows()
}

// Preprocessor implements pipeline.Preprocessor for MatFrame
type Preprocessor struct {
	Detector inference.Normalization
	Landmark inference.Normalization
}

var _ pipeline.Preprocessor = (*Preprocessor)(nil)

// Detection letterboxes, stretches or crops the frame into the detector input
func (p *Preprocessor) Detection(frame pipeline.Frame, width, height int, mode geometry.AspectMode) (*tensor.Dense, error) {
	mf, ok := frame.(MatFrame)
	if !ok {
		return nil, errors.Errorf("unsupported frame type %T", frame)
	}
	return Letterbox(mf.Mat, width, height, mode, p.Detector)
}

// Crop samples the ROI into the landmark input
func (p *Preprocessor) Crop(frame pipeline.Frame, crop mgl32.Mat4, viewport geometry.Viewport, width, height int) (*tensor.Dense, error) {
	mf, ok := frame.(MatFrame)
	if !ok {
		return nil, errors.Errorf("unsupported frame type %T", frame)
	}
	return Crop(mf.Mat, crop, viewport, width, height, p.Landmark)
}

// Letterbox maps the whole image into a width x height model input using the
// viewport of mode, padding with black where the frame does not cover it
func Letterbox(img gocv.Mat, width, height int, mode geometry.AspectMode, norm inference.Normalization) (*tensor.Dense, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	viewport := geometry.NewViewport(mode, img.Cols(), img.Rows())
	size := viewport.Size()

	// image pixels -> model pixels
	sx := size.X * float32(width) / float32(img.Cols())
	sy := size.Y * float32(height) / float32(img.Rows())
	forward := mgl32.Mat3{
		sx, 0, 0,
		0, sy, 0,
		viewport.Min.X * float32(width), viewport.Min.Y * float32(height), 1,
	}
	return warp(img, forward, width, height, norm)
}

// Crop samples the ROI of a model-space crop matrix into a width x height
// input, so that input pixel (u, v) holds the image at inverse(crop)(u, v)
func Crop(img gocv.Mat, crop mgl32.Mat4, viewport geometry.Viewport, width, height int, norm inference.Normalization) (*tensor.Dense, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	// image pixels -> frame normalized -> model normalized -> crop normalized -> crop pixels
	size := viewport.Size()
	toFrame := mgl32.Mat3{
		1 / float32(img.Cols()), 0, 0,
		0, 1 / float32(img.Rows()), 0,
		0, 0, 1,
	}
	toModel := mgl32.Mat3{
		size.X, 0, 0,
		0, size.Y, 0,
		viewport.Min.X, viewport.Min.Y, 1,
	}
	toPixels := mgl32.Mat3{
		float32(width), 0, 0,
		0, float32(height), 0,
		0, 0, 1,
	}
	forward := toPixels.Mul3(affine2D(crop)).Mul3(toModel).Mul3(toFrame)
	return warp(img, forward, width, height, norm)
}

// affine2D drops the z row and column of a crop matrix
func affine2D(m mgl32.Mat4) mgl32.Mat3 {
	return mgl32.Mat3{
		m.At(0, 0), m.At(1, 0), 0,
		m.At(0, 1), m.At(1, 1), 0,
		m.At(0, 3), m.At(1, 3), 1,
	}
}

// warp applies forward, a source to destination pixel transform, and converts
// the result to a [1, H, W, 3] RGB tensor
func warp(img gocv.Mat, forward mgl32.Mat3, width, height int, norm inference.Normalization) (*tensor.Dense, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("input size %dx%d", width, height)
	}
	if det := forward.Det(); det == 0 || det != det {
		return nil, errors.Wrap(align.ErrDegenerateRect, "singular sampling transform")
	}

	transform := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer transform.Close()
	for row := 0; row < 2; row++ {
		for col := 0; col < 3; col++ {
			transform.SetDoubleAt(row, col, float64(forward.At(row, col)))
		}
	}

	warped := gocv.NewMat()
	defer warped.Close()
	gocv.WarpAffine(img, &warped, transform, image.Pt(width, height))

	// Convert BGR to RGB
	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(warped, &rgb, gocv.ColorBGRToRGB)

	blob := gocv.NewMat()
	defer blob.Close()
	rgb.ConvertTo(&blob, gocv.MatTypeCV32FC3)

	alpha, beta := norm.ScaleOffset()
	gocv.AddWeighted(blob, alpha, blob, 0, beta, &blob)

	data, err := blob.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pixels")
	}
	pixels := make([]float32, len(data))
	copy(pixels, data)
	return inference.NewFloat32([]int{1, height, width, 3}, pixels)
}
