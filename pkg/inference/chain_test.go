package inference

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/teslashibe/go-engage/pkg/detection"
)

func TestChainFallback(t *testing.T) {
	ctx := context.Background()

	failing := WithError(errors.New("backend 1 failed"))

	working := NewMock()
	working.EmotionFunc = func(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error) {
		return Happy, nil
	}

	chain, err := NewChain(failing, working)
	if err != nil {
		t.Fatalf("Failed to create chain: %v", err)
	}
	defer chain.Close()

	emotion, err := chain.AnalyzeEmotion(ctx, &StubFrame{Width: 10, Height: 10}, detection.FaceRegion{})
	if err != nil {
		t.Fatalf("Chain emotion failed: %v", err)
	}
	if emotion != Happy {
		t.Errorf("Unexpected emotion: %s", emotion)
	}
}

func TestChainAllFail(t *testing.T) {
	ctx := context.Background()

	b1 := WithError(errors.New("backend 1 failed"))
	b2 := WithError(ErrEmptyCrop)

	chain, _ := NewChain(b1, b2)
	defer chain.Close()

	_, err := chain.AnalyzeHeadPose(ctx, &StubFrame{Width: 10, Height: 10}, detection.FaceRegion{})
	if err == nil {
		t.Fatal("Expected error when all backends fail")
	}

	var chainErr *ChainError
	if !errors.As(err, &chainErr) {
		t.Fatalf("Expected ChainError, got %T", err)
	}
	if len(chainErr.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(chainErr.Errors))
	}
	if !errors.Is(err, ErrEmptyCrop) {
		t.Error("Expected chain error to match ErrEmptyCrop")
	}
}

func TestChainSkipsIncapableBackends(t *testing.T) {
	ctx := context.Background()

	noEyes := NewMock()
	withEyes := NewMock()
	withEyes.EyeOpenFunc = func(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error) {
		return 0.9, nil
	}

	chain, _ := NewChain(noEyes, withEyes)

	p, err := chain.EyeOpenProbability(ctx, &StubFrame{Width: 10, Height: 10}, image.Rect(0, 0, 5, 5))
	if err != nil {
		t.Fatalf("EyeOpenProbability failed: %v", err)
	}
	if p != 0.9 {
		t.Errorf("Expected 0.9, got %f", p)
	}
	if noEyes.CallCount("EyeOpenProbability") != 0 {
		t.Error("Backend without eye model should not be called")
	}
}

func TestChainNoCapableBackend(t *testing.T) {
	chain, _ := NewChain(NewMock())

	_, err := chain.ExtractLandmarks(context.Background(), &StubFrame{Width: 10, Height: 10}, detection.FaceRegion{})
	if !errors.Is(err, ErrLandmarksUnavailable) {
		t.Errorf("Expected ErrLandmarksUnavailable, got %v", err)
	}
}

func TestChainCapabilities(t *testing.T) {
	a := NewMock()
	a.CapabilitiesOverride = &Capabilities{Faces: true}
	b := NewMock()
	b.CapabilitiesOverride = &Capabilities{EyeModel: true, Landmarks: true}

	chain, _ := NewChain(a, b)
	caps := chain.Capabilities()

	if !caps.Faces || !caps.EyeModel || !caps.Landmarks {
		t.Errorf("Expected combined capabilities, got %+v", caps)
	}
	if caps.Emotion {
		t.Error("Emotion should not be reported")
	}
}

func TestChainEmpty(t *testing.T) {
	if _, err := NewChain(); !errors.Is(err, ErrBackendUnavailable) {
		t.Errorf("Expected ErrBackendUnavailable, got %v", err)
	}
}

func TestChainContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := NewMock()
	first.DetectFacesFunc = func(ctx context.Context, frame Frame) ([]detection.FaceRegion, error) {
		cancel()
		return nil, errors.New("interrupted")
	}
	second := NewMock()

	chain, _ := NewChain(first, second)
	_, err := chain.DetectFaces(ctx, &StubFrame{Width: 10, Height: 10})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if second.CallCount("DetectFaces") != 0 {
		t.Error("Second backend should not run after cancellation")
	}
}
