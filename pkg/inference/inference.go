// Package inference provides a unified interface over the perceptual models
// that feed the engagement pipeline.
//
// The package abstracts face detection, emotion classification, head pose,
// facial landmarks and eye open/closed probability behind a single Adapter
// interface, so backends (OpenVINO IR, ONNX, test doubles) can be swapped or
// chained without touching the scorer.
//
// Example usage:
//
//	backend, _ := cv.NewBackend(cv.DefaultModelConfig())
//	adapter := inference.NewSafe(backend, inference.WithLogger(logger))
//	defer adapter.Close()
//
//	faces := adapter.DetectFaces(ctx, frame)
//	face, _ := detection.SelectBest(faces)
//	emotion := adapter.AnalyzeEmotion(ctx, frame, face)
package inference

import (
	"context"
	"image"
	"math"

	"github.com/teslashibe/go-engage/pkg/detection"
)

// Frame is a decoded video frame owned by a backend.
// Backends assert the concrete type they produced.
type Frame interface {
	// Bounds returns the frame size in pixels.
	Bounds() image.Rectangle

	// Close releases the pixel buffer.
	Close() error
}

// Adapter is the inference interface used by the analyzer.
// All implementations must satisfy this interface.
type Adapter interface {
	// DetectFaces returns face regions found in the frame.
	DetectFaces(ctx context.Context, frame Frame) ([]detection.FaceRegion, error)

	// AnalyzeEmotion classifies the dominant facial expression in face.
	AnalyzeEmotion(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error)

	// AnalyzeHeadPose estimates head orientation in degrees.
	AnalyzeHeadPose(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error)

	// ExtractLandmarks returns per-eye landmark points in frame coordinates.
	// Returns ErrLandmarksUnavailable when the backend cannot provide them.
	ExtractLandmarks(ctx context.Context, frame Frame, face detection.FaceRegion) (Landmarks, error)

	// EyeOpenProbability returns P(open) for a single eye region.
	// Returns ErrModelUnavailable when no eye model is configured.
	EyeOpenProbability(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error)

	// Capabilities returns what this backend supports.
	Capabilities() Capabilities

	// Close releases any resources held by the backend.
	Close() error
}

// Capabilities describes what features a backend supports.
type Capabilities struct {
	Faces     bool // Supports face detection
	Emotion   bool // Supports expression classification
	HeadPose  bool // Supports yaw/pitch/roll estimation
	Landmarks bool // Supports eye landmarks
	EyeModel  bool // Supports eye open/closed probability
}

// HeadPose is head orientation in degrees.
type HeadPose struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
	Roll  float64 `json:"roll"`
}

// Finite reports whether every angle is a real number.
func (p HeadPose) Finite() bool {
	for _, a := range [...]float64{p.Yaw, p.Pitch, p.Roll} {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return false
		}
	}
	return true
}

// Landmarks holds eye outline points in frame coordinates.
// LeftEye is the eye on the left side of the image.
type Landmarks struct {
	LeftEye  []image.Point
	RightEye []image.Point
}

// Empty reports whether either eye has no points.
func (l Landmarks) Empty() bool {
	return len(l.LeftEye) == 0 || len(l.RightEye) == 0
}
