// Package geometry holds the rect, point and angle helpers shared by the
// detection and landmark stages.
package geometry

import "math"

// IoU calculates Intersection over Union of two rects.
// Degenerate rects never overlap anything.
func IoU(a, b Rect) float32 {
	if a.Empty() || b.Empty() {
		return 0
	}
	areaA, areaB := a.Area(), b.Area()

	// Intersection
	x1 := max(a.X, b.X)
	y1 := max(a.Y, b.Y)
	x2 := min(a.X+a.Width, b.X+b.Width)
	y2 := min(a.Y+a.Height, b.Y+b.Height)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := areaA + areaB - intersection
	if union <= 0 {
		return 0
	}

	iou := intersection / union
	if iou > 1 {
		return 1
	}
	return iou
}

// BoundingBox computes the tight bounding box around points
func BoundingBox(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := points[0].X, points[0].Y
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// AlignmentRect returns the square centered on center whose half side is the
// distance from center to scale.
func AlignmentRect(center, scale Point) Rect {
	size := 2 * scale.Sub(center).Len()
	return RectFromCenter(center, size, size)
}

// RotationDegrees returns the rotation that brings the direction origin->target
// onto targetDegrees, where 90 points up and 0 points right.
func RotationDegrees(origin, target Point, targetDegrees float32) float32 {
	v := target.Sub(origin)
	angle := math.Atan2(float64(v.Y), float64(v.X)) * 180 / math.Pi
	return NormalizeDegrees(-(targetDegrees + float32(angle)))
}

// NormalizeDegrees maps an angle into (-180, 180]
func NormalizeDegrees(deg float32) float32 {
	d := math.Mod(float64(deg), 360)
	if d <= -180 {
		d += 360
	} else if d > 180 {
		d -= 360
	}
	return float32(d)
}
