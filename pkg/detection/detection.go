// Package detection holds face regions produced by detector backends and the
// selection rules the analyzer applies to them.
package detection

import "image"

// FaceRegion is an axis-aligned face box in pixel coordinates.
type FaceRegion struct {
	XMin       int     `json:"x_min"`
	YMin       int     `json:"y_min"`
	XMax       int     `json:"x_max"`
	YMax       int     `json:"y_max"`
	Confidence float64 `json:"confidence"`
}

// FromRect builds a FaceRegion from an image rectangle.
func FromRect(r image.Rectangle, confidence float64) FaceRegion {
	r = r.Canon()
	return FaceRegion{
		XMin:       r.Min.X,
		YMin:       r.Min.Y,
		XMax:       r.Max.X,
		YMax:       r.Max.Y,
		Confidence: confidence,
	}
}

// Rect returns the region as an image rectangle.
func (f FaceRegion) Rect() image.Rectangle {
	return image.Rect(f.XMin, f.YMin, f.XMax, f.YMax)
}

// Width returns the box width in pixels.
func (f FaceRegion) Width() int {
	return f.XMax - f.XMin
}

// Height returns the box height in pixels.
func (f FaceRegion) Height() int {
	return f.YMax - f.YMin
}

// Area returns the box area in pixels.
func (f FaceRegion) Area() int {
	if f.Width() <= 0 || f.Height() <= 0 {
		return 0
	}
	return f.Width() * f.Height()
}

// Empty reports whether the box has no area.
func (f FaceRegion) Empty() bool {
	return f.Area() == 0
}

// Clip returns the region clipped to bounds.
func (f FaceRegion) Clip(bounds image.Rectangle) FaceRegion {
	return FromRect(f.Rect().Intersect(bounds), f.Confidence)
}

// Config holds detector configuration
type Config struct {
	ModelPath        string  `yaml:"model_path"`        // Path to ONNX model
	ConfidenceThresh float64 `yaml:"confidence_thresh"` // Minimum confidence (default 0.5)
	NMSThresh        float64 `yaml:"nms_thresh"`        // Non-maximum suppression overlap
	InputWidth       int     `yaml:"input_width"`       // Model input width
	InputHeight      int     `yaml:"input_height"`      // Model input height
}

// DefaultConfig returns production defaults for YuNet
func DefaultConfig() Config {
	return Config{
		ModelPath:        "models/face_detection_yunet.onnx",
		ConfidenceThresh: 0.5,
		NMSThresh:        0.3,
		InputWidth:       320,
		InputHeight:      320,
	}
}

// Filter drops regions below minConfidence and regions with no area.
func Filter(faces []FaceRegion, minConfidence float64) []FaceRegion {
	out := faces[:0:0]
	for _, f := range faces {
		if f.Confidence < minConfidence || f.Empty() {
			continue
		}
		out = append(out, f)
	}
	return out
}

// SelectBest picks the primary subject from multiple detections.
// Priority: confidence * 0.7 + relative area * 0.3
func SelectBest(faces []FaceRegion) (FaceRegion, bool) {
	switch len(faces) {
	case 0:
		return FaceRegion{}, false
	case 1:
		return faces[0], true
	}

	maxArea := 0
	for _, f := range faces {
		if a := f.Area(); a > maxArea {
			maxArea = a
		}
	}
	if maxArea == 0 {
		return faces[0], true
	}

	best := 0
	bestScore := -1.0
	for i, f := range faces {
		score := f.Confidence*0.7 + float64(f.Area())/float64(maxArea)*0.3
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	return faces[best], true
}
