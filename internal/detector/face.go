// Package detector provides face feature extraction interfaces and implementations.
package detector

import "math"

// Point is a 2D position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in frame pixel coordinates.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the midpoint of the rectangle.
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Face describes one detected face in a single frame.
//
// Pointer fields are optional: nil means the extractor had no information,
// which is distinct from a zero value.
type Face struct {
	Bounds   *Rect    `json:"bounds,omitempty"`
	Angle    *float64 `json:"angle,omitempty"` // degrees
	LeftEye  *Point   `json:"left_eye,omitempty"`
	RightEye *Point   `json:"right_eye,omitempty"`
	Mouth    *Point   `json:"mouth,omitempty"`

	Smiling        bool `json:"smiling"`
	LeftEyeClosed  bool `json:"left_eye_closed"`
	RightEyeClosed bool `json:"right_eye_closed"`
}

// eyeLineAngle returns the inclination of the line from left to right eye in degrees.
func eyeLineAngle(left, right Point) float64 {
	return math.Atan2(right.Y-left.Y, right.X-left.X) * 180 / math.Pi
}

func ptr[T any](v T) *T {
	return &v
}
