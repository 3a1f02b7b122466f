package inference

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/teslashibe/go-engage/pkg/detection"
)

// Mock implements Adapter for testing.
type Mock struct {
	// DetectFacesFunc is called when DetectFaces is invoked.
	DetectFacesFunc func(ctx context.Context, frame Frame) ([]detection.FaceRegion, error)

	// EmotionFunc is called when AnalyzeEmotion is invoked.
	EmotionFunc func(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error)

	// HeadPoseFunc is called when AnalyzeHeadPose is invoked.
	HeadPoseFunc func(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error)

	// LandmarksFunc is called when ExtractLandmarks is invoked.
	LandmarksFunc func(ctx context.Context, frame Frame, face detection.FaceRegion) (Landmarks, error)

	// EyeOpenFunc is called when EyeOpenProbability is invoked.
	EyeOpenFunc func(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error)

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// CapabilitiesOverride overrides default capabilities.
	CapabilitiesOverride *Capabilities

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation.
type MockCall struct {
	Method string
	Time   time.Time
}

// NewMock creates a mock that sees one centered, attentive face.
func NewMock() *Mock {
	return &Mock{
		DetectFacesFunc: func(ctx context.Context, frame Frame) ([]detection.FaceRegion, error) {
			b := frame.Bounds()
			w, h := b.Dx(), b.Dy()
			return []detection.FaceRegion{{
				XMin:       b.Min.X + w/4,
				YMin:       b.Min.Y + h/4,
				XMax:       b.Min.X + 3*w/4,
				YMax:       b.Min.Y + 3*h/4,
				Confidence: 0.95,
			}}, nil
		},
		EmotionFunc: func(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error) {
			return Neutral, nil
		},
		HeadPoseFunc: func(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error) {
			return HeadPose{}, nil
		},
	}
}

// DetectFaces calls DetectFacesFunc and records the call.
func (m *Mock) DetectFaces(ctx context.Context, frame Frame) ([]detection.FaceRegion, error) {
	m.record("DetectFaces")
	if m.DetectFacesFunc != nil {
		return m.DetectFacesFunc(ctx, frame)
	}
	return nil, WrapError("mock", "detect_faces", ErrModelUnavailable)
}

// AnalyzeEmotion calls EmotionFunc and records the call.
func (m *Mock) AnalyzeEmotion(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error) {
	m.record("AnalyzeEmotion")
	if m.EmotionFunc != nil {
		return m.EmotionFunc(ctx, frame, face)
	}
	return Neutral, WrapError("mock", "emotion", ErrModelUnavailable)
}

// AnalyzeHeadPose calls HeadPoseFunc and records the call.
func (m *Mock) AnalyzeHeadPose(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error) {
	m.record("AnalyzeHeadPose")
	if m.HeadPoseFunc != nil {
		return m.HeadPoseFunc(ctx, frame, face)
	}
	return HeadPose{}, WrapError("mock", "head_pose", ErrModelUnavailable)
}

// ExtractLandmarks calls LandmarksFunc and records the call.
func (m *Mock) ExtractLandmarks(ctx context.Context, frame Frame, face detection.FaceRegion) (Landmarks, error) {
	m.record("ExtractLandmarks")
	if m.LandmarksFunc != nil {
		return m.LandmarksFunc(ctx, frame, face)
	}
	return Landmarks{}, ErrLandmarksUnavailable
}

// EyeOpenProbability calls EyeOpenFunc and records the call.
func (m *Mock) EyeOpenProbability(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error) {
	m.record("EyeOpenProbability")
	if m.EyeOpenFunc != nil {
		return m.EyeOpenFunc(ctx, frame, eye)
	}
	return 0, ErrModelUnavailable
}

// Capabilities returns mock capabilities.
func (m *Mock) Capabilities() Capabilities {
	if m.CapabilitiesOverride != nil {
		return *m.CapabilitiesOverride
	}
	return Capabilities{
		Faces:     m.DetectFacesFunc != nil,
		Emotion:   m.EmotionFunc != nil,
		HeadPose:  m.HeadPoseFunc != nil,
		Landmarks: m.LandmarksFunc != nil,
		EyeModel:  m.EyeOpenFunc != nil,
	}
}

// Close calls CloseFunc and records the call.
func (m *Mock) Close() error {
	m.record("Close")
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// record adds a call to the tracking list.
func (m *Mock) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{
		Method: method,
		Time:   time.Now(),
	})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]MockCall, len(m.calls))
	copy(result, m.calls)
	return result
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Method == method {
			count++
		}
	}
	return count
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// WithError returns a mock that always returns the given error.
func WithError(err error) *Mock {
	return &Mock{
		DetectFacesFunc: func(ctx context.Context, frame Frame) ([]detection.FaceRegion, error) {
			return nil, err
		},
		EmotionFunc: func(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error) {
			return "", err
		},
		HeadPoseFunc: func(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error) {
			return HeadPose{}, err
		},
		LandmarksFunc: func(ctx context.Context, frame Frame, face detection.FaceRegion) (Landmarks, error) {
			return Landmarks{}, err
		},
		EyeOpenFunc: func(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error) {
			return 0, err
		},
	}
}

// StubFrame is an in-memory Frame of a fixed size.
type StubFrame struct {
	Width, Height int
	closed        bool
}

// Bounds returns the frame rectangle.
func (f *StubFrame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Close marks the frame closed.
func (f *StubFrame) Close() error {
	f.closed = true
	return nil
}

// Closed reports whether Close was called.
func (f *StubFrame) Closed() bool {
	return f.closed
}

// Verify Mock implements Adapter at compile time.
var _ Adapter = (*Mock)(nil)
