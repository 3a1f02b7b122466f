package inference

import (
	"context"
	"image"
	"log/slog"

	"github.com/teslashibe/go-engage/pkg/detection"
)

// Chain tries multiple backends in order until one succeeds.
// A typical chain is OpenVINO IR models first and ONNX models second.
type Chain struct {
	backends []Adapter
	logger   *slog.Logger
}

// NewChain creates a backend chain.
// At least one backend is required.
func NewChain(backends ...Adapter) (*Chain, error) {
	if len(backends) == 0 {
		return nil, ErrBackendUnavailable
	}
	return &Chain{
		backends: backends,
		logger:   slog.Default().With("component", "inference.chain"),
	}, nil
}

// NewChainWithLogger creates a backend chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, backends ...Adapter) (*Chain, error) {
	chain, err := NewChain(backends...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "inference.chain")
	return chain, nil
}

// firstSuccess runs call on each capable backend until one succeeds.
func firstSuccess[T any](
	ctx context.Context,
	c *Chain,
	op string,
	capable func(Capabilities) bool,
	unsupported error,
	call func(Adapter) (T, error),
) (T, error) {
	var zero T
	var errs []error

	for i, b := range c.backends {
		if !capable(b.Capabilities()) {
			continue
		}

		out, err := call(b)
		if err == nil {
			if i > 0 {
				c.logger.Info("fallback backend succeeded",
					"op", op,
					"backend_index", i,
				)
			}
			return out, nil
		}

		errs = append(errs, err)
		c.logger.Debug("backend failed, trying next",
			"op", op,
			"backend_index", i,
			"error", err,
		)

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	if len(errs) == 0 {
		return zero, unsupported
	}
	return zero, &ChainError{Errors: errs}
}

// DetectFaces tries each backend that supports face detection.
func (c *Chain) DetectFaces(ctx context.Context, frame Frame) ([]detection.FaceRegion, error) {
	return firstSuccess(ctx, c, "detect_faces",
		func(caps Capabilities) bool { return caps.Faces },
		ErrModelUnavailable,
		func(b Adapter) ([]detection.FaceRegion, error) { return b.DetectFaces(ctx, frame) },
	)
}

// AnalyzeEmotion tries each backend that supports emotion.
func (c *Chain) AnalyzeEmotion(ctx context.Context, frame Frame, face detection.FaceRegion) (Emotion, error) {
	return firstSuccess(ctx, c, "emotion",
		func(caps Capabilities) bool { return caps.Emotion },
		ErrModelUnavailable,
		func(b Adapter) (Emotion, error) { return b.AnalyzeEmotion(ctx, frame, face) },
	)
}

// AnalyzeHeadPose tries each backend that supports head pose.
func (c *Chain) AnalyzeHeadPose(ctx context.Context, frame Frame, face detection.FaceRegion) (HeadPose, error) {
	return firstSuccess(ctx, c, "head_pose",
		func(caps Capabilities) bool { return caps.HeadPose },
		ErrModelUnavailable,
		func(b Adapter) (HeadPose, error) { return b.AnalyzeHeadPose(ctx, frame, face) },
	)
}

// ExtractLandmarks tries each backend that supports landmarks.
func (c *Chain) ExtractLandmarks(ctx context.Context, frame Frame, face detection.FaceRegion) (Landmarks, error) {
	return firstSuccess(ctx, c, "landmarks",
		func(caps Capabilities) bool { return caps.Landmarks },
		ErrLandmarksUnavailable,
		func(b Adapter) (Landmarks, error) { return b.ExtractLandmarks(ctx, frame, face) },
	)
}

// EyeOpenProbability tries each backend that has an eye model.
func (c *Chain) EyeOpenProbability(ctx context.Context, frame Frame, eye image.Rectangle) (float64, error) {
	return firstSuccess(ctx, c, "eye_open",
		func(caps Capabilities) bool { return caps.EyeModel },
		ErrModelUnavailable,
		func(b Adapter) (float64, error) { return b.EyeOpenProbability(ctx, frame, eye) },
	)
}

// Capabilities returns combined capabilities of all backends.
func (c *Chain) Capabilities() Capabilities {
	var caps Capabilities
	for _, b := range c.backends {
		bc := b.Capabilities()
		caps.Faces = caps.Faces || bc.Faces
		caps.Emotion = caps.Emotion || bc.Emotion
		caps.HeadPose = caps.HeadPose || bc.HeadPose
		caps.Landmarks = caps.Landmarks || bc.Landmarks
		caps.EyeModel = caps.EyeModel || bc.EyeModel
	}
	return caps
}

// Close closes all backends.
func (c *Chain) Close() error {
	var lastErr error
	for _, b := range c.backends {
		if err := b.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// Backends returns the list of backends in the chain.
func (c *Chain) Backends() []Adapter {
	return c.backends
}

// Verify Chain implements Adapter at compile time.
var _ Adapter = (*Chain)(nil)
