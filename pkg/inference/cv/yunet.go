package cv

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-engage/pkg/detection"
	"github.com/teslashibe/go-engage/pkg/inference"
)

// YuNet detects faces and five facial landmarks with OpenCV's FaceDetectorYN.
// It answers DetectFaces and ExtractLandmarks only.
type YuNet struct {
	detector gocv.FaceDetectorYN
	config   detection.Config
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference and the cache

	// Landmarks come from the same pass as the boxes; keep the last frame's rows.
	lastFrame inference.Frame
	lastRows  []yunetRow
}

// yunetRow is one detector output row.
type yunetRow struct {
	face              detection.FaceRegion
	leftEye, rightEye image.Point // image-left and image-right eye centres
}

// NewYuNet loads the YuNet ONNX model.
func NewYuNet(cfg detection.Config, logger *slog.Logger) (*YuNet, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s: %w", cfg.ModelPath, inference.ErrModelUnavailable)
	}
	if logger == nil {
		logger = slog.Default()
	}

	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		image.Pt(cfg.InputWidth, cfg.InputHeight),
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNet{
		detector: detector,
		config:   cfg,
		logger:   logger.With("component", "inference.yunet"),
	}, nil
}

// DetectFaces finds faces in frame.
func (y *YuNet) DetectFaces(ctx context.Context, frame inference.Frame) ([]detection.FaceRegion, error) {
	rows, err := y.detect(ctx, frame)
	if err != nil {
		return nil, err
	}
	faces := make([]detection.FaceRegion, len(rows))
	for i, r := range rows {
		faces[i] = r.face
	}
	return faces, nil
}

// ExtractLandmarks returns a small box of points around each eye centre,
// sized from the inter-ocular distance.
func (y *YuNet) ExtractLandmarks(ctx context.Context, frame inference.Frame, face detection.FaceRegion) (inference.Landmarks, error) {
	rows, err := y.detect(ctx, frame)
	if err != nil {
		return inference.Landmarks{}, err
	}

	best, bestIoU := -1, 0.0
	for i, r := range rows {
		if v := iou(r.face.Rect(), face.Rect()); v > bestIoU {
			best, bestIoU = i, v
		}
	}
	if best < 0 || bestIoU < 0.3 {
		return inference.Landmarks{}, inference.ErrLandmarksUnavailable
	}

	r := rows[best]
	dx := r.rightEye.X - r.leftEye.X
	if dx <= 0 {
		return inference.Landmarks{}, inference.ErrLandmarksUnavailable
	}
	hw, hh := dx/4, max(dx/8, 1)
	return inference.Landmarks{
		LeftEye:  eyeBox(r.leftEye, hw, hh),
		RightEye: eyeBox(r.rightEye, hw, hh),
	}, nil
}

func eyeBox(c image.Point, hw, hh int) []image.Point {
	return []image.Point{
		{c.X - hw, c.Y}, {c.X + hw, c.Y},
		{c.X, c.Y - hh}, {c.X, c.Y + hh},
	}
}

// detect runs the detector once per frame.
func (y *YuNet) detect(ctx context.Context, frame inference.Frame) ([]yunetRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	y.mu.Lock()
	defer y.mu.Unlock()

	if y.lastFrame == frame && y.lastRows != nil {
		return y.lastRows, nil
	}

	img, err := MatOf(frame)
	if err != nil {
		return nil, err
	}

	y.detector.SetInputSize(image.Pt(img.Cols(), img.Rows()))

	faces := gocv.NewMat()
	defer faces.Close()
	y.detector.Detect(img, &faces)

	// Output rows: x, y, w, h, five landmark (x,y) pairs starting with the
	// subject's right eye, then the score in column 14.
	rows := make([]yunetRow, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		x := int(faces.GetFloatAt(r, 0))
		yy := int(faces.GetFloatAt(r, 1))
		w := int(faces.GetFloatAt(r, 2))
		h := int(faces.GetFloatAt(r, 3))
		rows = append(rows, yunetRow{
			face: detection.FaceRegion{
				XMin: x, YMin: yy, XMax: x + w, YMax: yy + h,
				Confidence: float64(faces.GetFloatAt(r, 14)),
			},
			leftEye:  image.Pt(int(faces.GetFloatAt(r, 4)), int(faces.GetFloatAt(r, 5))),
			rightEye: image.Pt(int(faces.GetFloatAt(r, 6)), int(faces.GetFloatAt(r, 7))),
		})
	}

	if len(rows) > 0 {
		y.logger.Debug("faces detected", "count", len(rows))
	}
	y.lastFrame, y.lastRows = frame, rows
	return rows, nil
}

// AnalyzeEmotion is not supported.
func (y *YuNet) AnalyzeEmotion(ctx context.Context, frame inference.Frame, face detection.FaceRegion) (inference.Emotion, error) {
	return inference.Neutral, inference.ErrModelUnavailable
}

// AnalyzeHeadPose is not supported.
func (y *YuNet) AnalyzeHeadPose(ctx context.Context, frame inference.Frame, face detection.FaceRegion) (inference.HeadPose, error) {
	return inference.HeadPose{}, inference.ErrModelUnavailable
}

// EyeOpenProbability is not supported.
func (y *YuNet) EyeOpenProbability(ctx context.Context, frame inference.Frame, eye image.Rectangle) (float64, error) {
	return 0, inference.ErrModelUnavailable
}

// Capabilities reports faces and landmarks.
func (y *YuNet) Capabilities() inference.Capabilities {
	return inference.Capabilities{Faces: true, Landmarks: true}
}

// Close releases the detector resources.
func (y *YuNet) Close() error {
	y.mu.Lock()
	defer y.mu.Unlock()
	y.lastFrame, y.lastRows = nil, nil
	y.detector.Close()
	return nil
}

func iou(a, b image.Rectangle) float64 {
	in := a.Intersect(b)
	if in.Empty() {
		return 0
	}
	inter := float64(in.Dx() * in.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

var _ inference.Adapter = (*YuNet)(nil)
