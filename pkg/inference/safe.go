package inference

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/teslashibe/go-engage/pkg/detection"
)

// Safe wraps an Adapter and converts every failure into the documented
// default so a bad frame never stops a session.
//
//	DetectFaces        -> no faces
//	AnalyzeEmotion     -> Neutral
//	AnalyzeHeadPose    -> (0, 0, 0)
//	ExtractLandmarks   -> ok=false (use proportional regions)
//	EyeOpenProbability -> ok=false (classical only)
type Safe struct {
	adapter Adapter
	cfg     *Config
	logger  *slog.Logger
}

// NewSafe wraps adapter with default-on-failure behavior.
func NewSafe(adapter Adapter, opts ...Option) *Safe {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Safe{
		adapter: adapter,
		cfg:     cfg,
		logger:  cfg.Logger.With("component", "inference.safe"),
	}
}

// Adapter returns the wrapped adapter.
func (s *Safe) Adapter() Adapter {
	return s.adapter
}

// Capabilities returns the wrapped adapter's capabilities.
func (s *Safe) Capabilities() Capabilities {
	return s.adapter.Capabilities()
}

// DetectFaces returns faces at or above the configured confidence.
func (s *Safe) DetectFaces(ctx context.Context, frame Frame) []detection.FaceRegion {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	faces, err := s.adapter.DetectFaces(ctx, frame)
	if err != nil {
		s.logger.Warn("face detection failed", "error", err)
		return nil
	}

	bounds := frame.Bounds()
	for i := range faces {
		faces[i] = faces[i].Clip(bounds)
	}
	return detection.Filter(faces, s.cfg.MinConfidence)
}

// AnalyzeEmotion returns the face's expression or Neutral on failure.
func (s *Safe) AnalyzeEmotion(ctx context.Context, frame Frame, face detection.FaceRegion) Emotion {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	emotion, err := s.adapter.AnalyzeEmotion(ctx, frame, face)
	if err != nil {
		s.logger.Debug("emotion analysis failed, using neutral", "error", err)
		return Neutral
	}
	if !emotion.Valid() {
		s.logger.Debug("unknown emotion label, using neutral", "label", string(emotion))
		return Neutral
	}
	return emotion
}

// AnalyzeHeadPose returns head orientation or the zero pose on failure.
func (s *Safe) AnalyzeHeadPose(ctx context.Context, frame Frame, face detection.FaceRegion) HeadPose {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pose, err := s.adapter.AnalyzeHeadPose(ctx, frame, face)
	if err != nil {
		s.logger.Debug("head pose estimation failed, using zero pose", "error", err)
		return HeadPose{}
	}
	if !pose.Finite() {
		s.logger.Debug("head pose not finite, using zero pose", "yaw", pose.Yaw, "pitch", pose.Pitch, "roll", pose.Roll)
		return HeadPose{}
	}
	return pose
}

// ExtractLandmarks returns eye landmarks, or ok=false when unavailable.
func (s *Safe) ExtractLandmarks(ctx context.Context, frame Frame, face detection.FaceRegion) (Landmarks, bool) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	lm, err := s.adapter.ExtractLandmarks(ctx, frame, face)
	if err != nil {
		if !errors.Is(err, ErrLandmarksUnavailable) {
			s.logger.Debug("landmark extraction failed", "error", err)
		}
		return Landmarks{}, false
	}
	if lm.Empty() {
		return Landmarks{}, false
	}
	return lm, true
}

// EyeOpenProbability returns P(open), or ok=false when no model answered.
func (s *Safe) EyeOpenProbability(ctx context.Context, frame Frame, eye image.Rectangle) (float64, bool) {
	if !s.adapter.Capabilities().EyeModel {
		return 0, false
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p, err := s.adapter.EyeOpenProbability(ctx, frame, eye)
	if err != nil {
		if !errors.Is(err, ErrModelUnavailable) {
			s.logger.Debug("eye model failed", "error", err)
		}
		return 0, false
	}
	if !(p >= 0 && p <= 1) {
		s.logger.Debug("eye model probability out of range", "p", p)
		return 0, false
	}
	return p, true
}

// Close closes the wrapped adapter.
func (s *Safe) Close() error {
	return s.adapter.Close()
}

func (s *Safe) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.cfg.Timeout)
}
