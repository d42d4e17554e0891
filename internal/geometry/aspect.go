package geometry

import (
	"strings"

	"github.com/pkg/errors"
)

// AspectMode describes how a non-square frame is fitted into a square model input
type AspectMode int

const (
	// AspectNone stretches the frame to the square
	AspectNone AspectMode = iota
	// AspectFit letterboxes the whole frame inside the square
	AspectFit
	// AspectFill center-crops the frame to the square
	AspectFill
)

func (m AspectMode) String() string {
	switch m {
	case AspectFit:
		return "fit"
	case AspectFill:
		return "fill"
	default:
		return "none"
	}
}

// ParseAspectMode parses "none", "fit" or "fill"
func ParseAspectMode(s string) (AspectMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AspectNone, nil
	case "fit":
		return AspectFit, nil
	case "fill":
		return AspectFill, nil
	}
	return AspectNone, errors.Errorf("unknown aspect mode %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (m AspectMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *AspectMode) UnmarshalText(text []byte) error {
	mode, err := ParseAspectMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Viewport is the region of the square model space covered by the frame
type Viewport struct {
	Min, Max Point
}

// NewViewport computes where a width x height frame lands in model space
func NewViewport(mode AspectMode, width, height int) Viewport {
	full := Viewport{Max: Point{X: 1, Y: 1}}
	if width <= 0 || height <= 0 || mode == AspectNone {
		return full
	}

	aspect := float32(width) / float32(height)
	switch mode {
	case AspectFit:
		if aspect >= 1 {
			h := 1 / aspect
			return Viewport{Min: Point{X: 0, Y: (1 - h) / 2}, Max: Point{X: 1, Y: (1 + h) / 2}}
		}
		return Viewport{Min: Point{X: (1 - aspect) / 2, Y: 0}, Max: Point{X: (1 + aspect) / 2, Y: 1}}
	case AspectFill:
		if aspect >= 1 {
			pad := (aspect - 1) / 2
			return Viewport{Min: Point{X: -pad, Y: 0}, Max: Point{X: 1 + pad, Y: 1}}
		}
		pad := (1/aspect - 1) / 2
		return Viewport{Min: Point{X: 0, Y: -pad}, Max: Point{X: 1, Y: 1 + pad}}
	}
	return full
}

// Size returns the extent of the viewport in model space
func (v Viewport) Size() Point {
	return v.Max.Sub(v.Min)
}

// Map converts a model-space point into frame-normalized coordinates
func (v Viewport) Map(p Point) Point {
	size := v.Size()
	return Point{X: (p.X - v.Min.X) / size.X, Y: (p.Y - v.Min.Y) / size.Y}
}

// Unmap converts a frame-normalized point into model space
func (v Viewport) Unmap(p Point) Point {
	size := v.Size()
	return Point{X: v.Min.X + p.X*size.X, Y: v.Min.Y + p.Y*size.Y}
}
