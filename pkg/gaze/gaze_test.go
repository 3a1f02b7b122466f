package gaze

import (
	"math"
	"testing"
)

func TestFromHeadPose(t *testing.T) {
	tests := []struct {
		name             string
		yaw, pitch, roll float64
		want             Vector
	}{
		{"straight ahead", 0, 0, 0, Vector{0, 0, 1}},
		{"roll ignored", 0, 0, 45, Vector{0, 0, 1}},
		{"turned right 90", 90, 0, 0, Vector{-1, 0, 0}},
		{"looking up 90", 0, 90, 0, Vector{0, 1, 0}},
		{"yaw 30", 30, 0, 0, Vector{-0.5, 0, math.Sqrt(3) / 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FromHeadPose(tt.yaw, tt.pitch, tt.roll)
			if math.Abs(got.X-tt.want.X) > 1e-9 ||
				math.Abs(got.Y-tt.want.Y) > 1e-9 ||
				math.Abs(got.Z-tt.want.Z) > 1e-9 {
				t.Errorf("FromHeadPose = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestFromHeadPoseIsUnitLength(t *testing.T) {
	for yaw := -90.0; yaw <= 90; yaw += 15 {
		for pitch := -60.0; pitch <= 60; pitch += 15 {
			v := FromHeadPose(yaw, pitch, 0)
			if math.Abs(v.Length()-1) > 1e-9 {
				t.Fatalf("yaw=%v pitch=%v: length %v", yaw, pitch, v.Length())
			}
		}
	}
}

func TestFromHeadPoseDegenerate(t *testing.T) {
	tests := []struct {
		name       string
		yaw, pitch float64
	}{
		{"NaN yaw", math.NaN(), 0},
		{"Inf pitch", 0, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromHeadPose(tt.yaw, tt.pitch, 0); got != Forward {
				t.Errorf("FromHeadPose = %+v, want Forward", got)
			}
		})
	}
}

func TestScore(t *testing.T) {
	tests := []struct {
		name string
		v    Vector
		want float64
	}{
		{"forward", Forward, 100},
		{"fully lateral", Vector{0.6, 0.8, 0}.Normalize(), 0},
		{"x 0.3", Vector{0.3, 0, 0.9539392014169456}, 70},
		{"x 0.3 y 0.4", Vector{0.3, 0.4, 0.8660254037844386}, 50},
		{"NaN", Vector{math.NaN(), 0, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.v)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Score = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 100 {
				t.Errorf("Score out of range: %v", got)
			}
		})
	}
}
