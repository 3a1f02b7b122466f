package inference

import (
	"context"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-engage/pkg/detection"
)

func TestMockAdapter(t *testing.T) {
	ctx := context.Background()
	mock := NewMock()
	frame := &StubFrame{Width: 640, Height: 480}

	faces, err := mock.DetectFaces(ctx, frame)
	if err != nil {
		t.Fatalf("DetectFaces failed: %v", err)
	}
	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	if faces[0].Width() != 320 || faces[0].Height() != 240 {
		t.Errorf("Unexpected face size %dx%d", faces[0].Width(), faces[0].Height())
	}

	emotion, err := mock.AnalyzeEmotion(ctx, frame, faces[0])
	if err != nil {
		t.Fatalf("AnalyzeEmotion failed: %v", err)
	}
	if emotion != Neutral {
		t.Errorf("Expected neutral, got %s", emotion)
	}

	if _, err := mock.ExtractLandmarks(ctx, frame, faces[0]); !errors.Is(err, ErrLandmarksUnavailable) {
		t.Errorf("Expected ErrLandmarksUnavailable, got %v", err)
	}

	if mock.CallCount("DetectFaces") != 1 {
		t.Errorf("Expected 1 DetectFaces call, got %d", mock.CallCount("DetectFaces"))
	}
	if len(mock.Calls()) != 3 {
		t.Errorf("Expected 3 calls, got %d", len(mock.Calls()))
	}

	mock.Reset()
	if len(mock.Calls()) != 0 {
		t.Error("Expected 0 calls after reset")
	}
}

func TestMockCapabilities(t *testing.T) {
	mock := NewMock()
	caps := mock.Capabilities()

	if !caps.Faces || !caps.Emotion || !caps.HeadPose {
		t.Errorf("Expected faces/emotion/head pose support, got %+v", caps)
	}
	if caps.Landmarks || caps.EyeModel {
		t.Errorf("Expected no landmarks or eye model, got %+v", caps)
	}
}

func TestSafeDefaults(t *testing.T) {
	ctx := context.Background()
	testErr := errors.New("model exploded")
	safe := NewSafe(WithError(testErr))
	frame := &StubFrame{Width: 320, Height: 240}
	face := detection.FaceRegion{XMin: 10, YMin: 10, XMax: 100, YMax: 100, Confidence: 0.9}

	if faces := safe.DetectFaces(ctx, frame); len(faces) != 0 {
		t.Errorf("Expected no faces on error, got %d", len(faces))
	}
	if e := safe.AnalyzeEmotion(ctx, frame, face); e != Neutral {
		t.Errorf("Expected neutral on error, got %s", e)
	}
	if p := safe.AnalyzeHeadPose(ctx, frame, face); p != (HeadPose{}) {
		t.Errorf("Expected zero pose on error, got %+v", p)
	}
	if _, ok := safe.ExtractLandmarks(ctx, frame, face); ok {
		t.Error("Expected landmarks unavailable on error")
	}
	if _, ok := safe.EyeOpenProbability(ctx, frame, image.Rect(0, 0, 10, 10)); ok {
		t.Error("Expected eye probability unavailable on error")
	}
}

func TestSafeDetectFacesFiltersAndClips(t *testing.T) {
	mock := NewMock()
	mock.DetectFacesFunc = func(ctx context.Context, frame Frame) ([]detection.FaceRegion, error) {
		return []detection.FaceRegion{
			{XMin: -10, YMin: 0, XMax: 50, YMax: 50, Confidence: 0.8},
			{XMin: 100, YMin: 100, XMax: 150, YMax: 150, Confidence: 0.3},
			{XMin: 500, YMin: 500, XMax: 600, YMax: 600, Confidence: 0.9}, // outside frame
		}, nil
	}

	safe := NewSafe(mock)
	faces := safe.DetectFaces(context.Background(), &StubFrame{Width: 320, Height: 240})

	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	if faces[0].XMin != 0 {
		t.Errorf("Expected clipped XMin 0, got %d", faces[0].XMin)
	}
}

func TestSafeRejectsUnknownEmotionAndBadProbability(t *testing.T) {
	ctx := context.Background()
	mock := NewMock()
	mock.EmotionFunc = func(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error) {
		return Emotion("bored"), nil
	}
	mock.EyeOpenFunc = func(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error) {
		return 1.7, nil
	}

	safe := NewSafe(mock)
	frame := &StubFrame{Width: 100, Height: 100}

	if e := safe.AnalyzeEmotion(ctx, frame, detection.FaceRegion{}); e != Neutral {
		t.Errorf("Expected neutral for unknown label, got %s", e)
	}
	if _, ok := safe.EyeOpenProbability(ctx, frame, image.Rect(0, 0, 5, 5)); ok {
		t.Error("Expected out-of-range probability to be rejected")
	}
}

func TestSafeRejectsNonFiniteHeadPose(t *testing.T) {
	tests := []struct {
		name string
		pose HeadPose
	}{
		{"nan yaw", HeadPose{Yaw: math.NaN()}},
		{"nan pitch", HeadPose{Yaw: 10, Pitch: math.NaN()}},
		{"inf roll", HeadPose{Roll: math.Inf(1)}},
		{"negative inf yaw", HeadPose{Yaw: math.Inf(-1), Pitch: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMock()
			mock.HeadPoseFunc = func(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error) {
				return tt.pose, nil
			}

			safe := NewSafe(mock)
			pose := safe.AnalyzeHeadPose(context.Background(), &StubFrame{Width: 10, Height: 10}, detection.FaceRegion{})
			if pose != (HeadPose{}) {
				t.Errorf("Expected zero pose, got %+v", pose)
			}
		})
	}

	if !(HeadPose{Yaw: 30, Pitch: -10, Roll: 5}).Finite() {
		t.Error("Expected finite pose to be accepted")
	}
}

func TestSafeEyeProbabilityRange(t *testing.T) {
	tests := []struct {
		name string
		p    float64
		ok   bool
	}{
		{"open", 0.9, true},
		{"lower bound", 0, true},
		{"upper bound", 1, true},
		{"negative", -0.1, false},
		{"above one", 1.7, false},
		{"nan", math.NaN(), false},
		{"inf", math.Inf(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMock()
			mock.EyeOpenFunc = func(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error) {
				return tt.p, nil
			}

			safe := NewSafe(mock)
			p, ok := safe.EyeOpenProbability(context.Background(), &StubFrame{Width: 10, Height: 10}, image.Rect(0, 0, 5, 5))
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v for %v, got %v", tt.ok, tt.p, ok)
			}
			if ok && p != tt.p {
				t.Errorf("Expected %v, got %v", tt.p, p)
			}
		})
	}
}

func TestSafeTimeout(t *testing.T) {
	mock := NewMock()
	mock.HeadPoseFunc = func(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error) {
		<-ctx.Done()
		return HeadPose{Yaw: 45}, ctx.Err()
	}

	safe := NewSafe(mock, WithTimeout(10*time.Millisecond))
	pose := safe.AnalyzeHeadPose(context.Background(), &StubFrame{Width: 10, Height: 10}, detection.FaceRegion{})
	if pose != (HeadPose{}) {
		t.Errorf("Expected zero pose after timeout, got %+v", pose)
	}
}

func TestParseEmotion(t *testing.T) {
	tests := []struct {
		label string
		want  Emotion
		ok    bool
	}{
		{"neutral", Neutral, true},
		{"Happy", Happy, true},
		{"angry", Anger, true},
		{" surprised ", Surprise, true},
		{"contempt", Disgust, true},
		{"bored", Neutral, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ParseEmotion(tt.label)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseEmotion(%q) = %s,%v want %s,%v", tt.label, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFunctionalOptions(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Apply(
		WithMinConfidence(0.7),
		WithTimeout(time.Second),
	)

	if cfg.MinConfidence != 0.7 {
		t.Errorf("Expected 0.7, got %f", cfg.MinConfidence)
	}
	if cfg.Timeout != time.Second {
		t.Errorf("Expected 1s, got %v", cfg.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}

	cfg.Apply(WithMinConfidence(1.5))
	if err := cfg.Validate(); err == nil {
		t.Error("Expected validation error for confidence > 1")
	}
}

func TestBackendError(t *testing.T) {
	err := WrapError("openvino", "emotion", ErrEmptyCrop)
	if !errors.Is(err, ErrEmptyCrop) {
		t.Error("Expected wrapped error to match ErrEmptyCrop")
	}

	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatal("Expected BackendError")
	}
	if be.Backend != "openvino" || be.Op != "emotion" {
		t.Errorf("Unexpected backend error fields: %+v", be)
	}

	if WrapError("x", "y", nil) != nil {
		t.Error("Expected nil for nil error")
	}
}
