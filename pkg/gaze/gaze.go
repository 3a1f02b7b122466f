// Package gaze approximates where the subject is looking from head
// orientation alone. Pupil tracking is not attempted.
package gaze

import "math"

// Vector is a unit gaze direction in camera space. +Z points at the camera.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Forward is the gaze used when no estimate can be made.
var Forward = Vector{X: 0, Y: 0, Z: 1}

// Length returns the Euclidean norm.
func (v Vector) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalize returns v scaled to unit length, or Forward when v is degenerate.
func (v Vector) Normalize() Vector {
	l := v.Length()
	if l == 0 || math.IsNaN(l) || math.IsInf(l, 0) {
		return Forward
	}
	return Vector{X: v.X / l, Y: v.Y / l, Z: v.Z / l}
}

// FromHeadPose derives a gaze vector from head yaw and pitch in degrees.
// Roll does not change where the face points and is ignored.
func FromHeadPose(yaw, pitch, _ float64) Vector {
	y := yaw * math.Pi / 180
	p := pitch * math.Pi / 180

	v := Vector{
		X: -math.Sin(y),
		Y: math.Sin(p),
		Z: math.Cos(y) * math.Cos(p),
	}
	return v.Normalize()
}

// Score rates how directly the subject faces the camera, in [0,100].
// Lateral deviation of 1 (looking fully sideways) scores 0.
func Score(v Vector) float64 {
	dev := math.Sqrt(v.X*v.X + v.Y*v.Y)
	if math.IsNaN(dev) {
		return 0
	}
	return math.Max(0, 100-100*dev)
}
