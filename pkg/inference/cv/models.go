package cv

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-engage/pkg/detection"
	"github.com/teslashibe/go-engage/pkg/inference"
)

// NetConfig describes one classification network and its preprocessing.
type NetConfig struct {
	Path        string     `yaml:"path"`
	Config      string     `yaml:"config"` // Weights file for OpenVINO IR; empty for ONNX
	InputWidth  int        `yaml:"input_width"`
	InputHeight int        `yaml:"input_height"`
	Scale       float64    `yaml:"scale"`
	Mean        [3]float64 `yaml:"mean"`
	SwapRB      bool       `yaml:"swap_rb"`
}

// ModelsConfig configures the optional emotion, head-pose and eye nets.
// A net with an empty Path is not loaded.
type ModelsConfig struct {
	Backend string `yaml:"backend"` // gocv backend name, e.g. "default" or "openvino"
	Target  string `yaml:"target"`  // gocv target name, e.g. "cpu"

	Emotion       NetConfig `yaml:"emotion"`
	EmotionLabels []string  `yaml:"emotion_labels"` // Output order

	HeadPose        NetConfig `yaml:"head_pose"`
	HeadPoseOutputs [3]string `yaml:"head_pose_outputs"` // yaw, pitch, roll layer names

	Eye          NetConfig `yaml:"eye"`
	EyeOpenIndex int       `yaml:"eye_open_index"` // Output index holding P(open)
}

// DefaultModelsConfig returns settings for the Open Model Zoo emotion,
// head-pose and open/closed-eye models.
func DefaultModelsConfig() ModelsConfig {
	return ModelsConfig{
		Backend: "default",
		Target:  "cpu",
		Emotion: NetConfig{
			Path:        "models/emotions-recognition-retail-0003.xml",
			Config:      "models/emotions-recognition-retail-0003.bin",
			InputWidth:  64,
			InputHeight: 64,
			Scale:       1,
		},
		EmotionLabels: []string{"neutral", "happy", "sad", "surprise", "anger"},
		HeadPose: NetConfig{
			Path:        "models/head-pose-estimation-adas-0001.xml",
			Config:      "models/head-pose-estimation-adas-0001.bin",
			InputWidth:  60,
			InputHeight: 60,
			Scale:       1,
		},
		HeadPoseOutputs: [3]string{"angle_y_fc", "angle_p_fc", "angle_r_fc"},
		Eye: NetConfig{
			Path:        "models/open-closed-eye-0001.xml",
			Config:      "models/open-closed-eye-0001.bin",
			InputWidth:  32,
			InputHeight: 32,
			Scale:       1,
		},
		EyeOpenIndex: 1,
	}
}

// Models runs the emotion, head-pose and eye-state networks on face and
// eye crops. Face detection comes from another backend.
type Models struct {
	cfg      ModelsConfig
	emotion  *classifier
	headPose *classifier
	eye      *classifier
	logger   *slog.Logger
	mu       sync.Mutex // Protects inference
}

// NewModels loads every configured net whose file exists. Missing files
// are logged and leave that capability off.
func NewModels(cfg ModelsConfig, logger *slog.Logger) (*Models, error) {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Models{cfg: cfg, logger: logger.With("component", "inference.models")}

	var err error
	if m.emotion, err = m.load("emotion", cfg.Emotion); err != nil {
		return nil, err
	}
	if m.headPose, err = m.load("head_pose", cfg.HeadPose); err != nil {
		m.Close()
		return nil, err
	}
	if m.eye, err = m.load("eye", cfg.Eye); err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

func (m *Models) load(name string, nc NetConfig) (*classifier, error) {
	if nc.Path == "" {
		return nil, nil
	}
	if _, err := os.Stat(nc.Path); os.IsNotExist(err) {
		m.logger.Warn("model file not found, capability disabled", "model", name, "path", nc.Path)
		return nil, nil
	}

	net := gocv.ReadNet(nc.Path, nc.Config)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load %s model from %s", name, nc.Path)
	}
	net.SetPreferableBackend(gocv.ParseNetBackend(m.cfg.Backend))
	net.SetPreferableTarget(gocv.ParseNetTarget(m.cfg.Target))

	m.logger.Info("model loaded", "model", name, "path", nc.Path)
	return &classifier{net: net, cfg: nc}, nil
}

// AnalyzeEmotion classifies the face expression.
func (m *Models) AnalyzeEmotion(ctx context.Context, frame inference.Frame, face detection.FaceRegion) (inference.Emotion, error) {
	if m.emotion == nil {
		return inference.Neutral, inference.ErrModelUnavailable
	}
	out, err := m.run(ctx, m.emotion, frame, face.Rect())
	if err != nil {
		return inference.Neutral, inference.WrapError("models", "emotion", err)
	}

	scores := out[0]
	best := argmax(scores)
	if best < 0 || best >= len(m.cfg.EmotionLabels) {
		return inference.Neutral, inference.WrapError("models", "emotion", fmt.Errorf("output index %d has no label", best))
	}
	e, _ := inference.ParseEmotion(m.cfg.EmotionLabels[best])
	return e, nil
}

// AnalyzeHeadPose estimates yaw, pitch and roll in degrees.
func (m *Models) AnalyzeHeadPose(ctx context.Context, frame inference.Frame, face detection.FaceRegion) (inference.HeadPose, error) {
	if m.headPose == nil {
		return inference.HeadPose{}, inference.ErrModelUnavailable
	}
	out, err := m.run(ctx, m.headPose, frame, face.Rect(), m.cfg.HeadPoseOutputs[:]...)
	if err != nil {
		return inference.HeadPose{}, inference.WrapError("models", "head_pose", err)
	}
	for i, o := range out {
		if len(o) == 0 {
			return inference.HeadPose{}, inference.WrapError("models", "head_pose", fmt.Errorf("empty output %s", m.cfg.HeadPoseOutputs[i]))
		}
	}
	return inference.HeadPose{
		Yaw:   float64(out[0][0]),
		Pitch: float64(out[1][0]),
		Roll:  float64(out[2][0]),
	}, nil
}

// EyeOpenProbability returns P(open) for the eye crop.
func (m *Models) EyeOpenProbability(ctx context.Context, frame inference.Frame, eye image.Rectangle) (float64, error) {
	if m.eye == nil {
		return 0, inference.ErrModelUnavailable
	}
	out, err := m.run(ctx, m.eye, frame, eye)
	if err != nil {
		return 0, inference.WrapError("models", "eye", err)
	}

	probs := probabilities(out[0])
	if m.cfg.EyeOpenIndex < 0 || m.cfg.EyeOpenIndex >= len(probs) {
		return 0, inference.WrapError("models", "eye", fmt.Errorf("open index %d outside %d outputs", m.cfg.EyeOpenIndex, len(probs)))
	}
	return probs[m.cfg.EyeOpenIndex], nil
}

// DetectFaces is not supported.
func (m *Models) DetectFaces(ctx context.Context, frame inference.Frame) ([]detection.FaceRegion, error) {
	return nil, inference.ErrModelUnavailable
}

// ExtractLandmarks is not supported.
func (m *Models) ExtractLandmarks(ctx context.Context, frame inference.Frame, face detection.FaceRegion) (inference.Landmarks, error) {
	return inference.Landmarks{}, inference.ErrLandmarksUnavailable
}

// Capabilities reports which nets loaded.
func (m *Models) Capabilities() inference.Capabilities {
	return inference.Capabilities{
		Emotion:  m.emotion != nil,
		HeadPose: m.headPose != nil,
		EyeModel: m.eye != nil,
	}
}

// Close releases every loaded net.
func (m *Models) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for _, c := range []*classifier{m.emotion, m.headPose, m.eye} {
		if c != nil {
			errs = append(errs, c.net.Close())
		}
	}
	m.emotion, m.headPose, m.eye = nil, nil, nil
	return errors.Join(errs...)
}

func (m *Models) run(ctx context.Context, c *classifier, frame inference.Frame, r image.Rectangle, outputs ...string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	roi, err := Crop(frame, r)
	if err != nil {
		return nil, err
	}
	defer roi.Close()

	m.mu.Lock()
	defer m.mu.Unlock()
	return c.forward(roi, outputs...)
}

// classifier is one loaded net.
type classifier struct {
	net gocv.Net
	cfg NetConfig
}

// forward runs the net on img and copies the named outputs, or the
// default output when none are named.
func (c *classifier) forward(img gocv.Mat, outputs ...string) ([][]float32, error) {
	size := image.Pt(c.cfg.InputWidth, c.cfg.InputHeight)
	mean := gocv.NewScalar(c.cfg.Mean[0], c.cfg.Mean[1], c.cfg.Mean[2], 0)

	blob := gocv.BlobFromImage(img, c.cfg.Scale, size, mean, c.cfg.SwapRB, false)
	defer blob.Close()
	c.net.SetInput(blob, "")

	var mats []gocv.Mat
	if len(outputs) == 0 {
		mats = []gocv.Mat{c.net.Forward("")}
	} else {
		mats = c.net.ForwardLayers(outputs)
	}
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()

	out := make([][]float32, len(mats))
	for i, m := range mats {
		data, err := m.DataPtrFloat32()
		if err != nil {
			return nil, fmt.Errorf("read output %d: %w", i, err)
		}
		out[i] = append([]float32(nil), data...)
	}
	if len(out) == 0 {
		return nil, errors.New("net produced no output")
	}
	return out, nil
}

func argmax(v []float32) int {
	best := -1
	for i, x := range v {
		if best < 0 || x > v[best] {
			best = i
		}
	}
	return best
}

// probabilities returns v as probabilities, applying softmax when v is
// not already a distribution.
func probabilities(v []float32) []float64 {
	out := make([]float64, len(v))
	var sum float64
	valid := true
	for i, x := range v {
		out[i] = float64(x)
		sum += out[i]
		if out[i] < 0 || out[i] > 1 {
			valid = false
		}
	}
	if valid && math.Abs(sum-1) < 1e-3 {
		return out
	}

	peak := math.Inf(-1)
	for _, x := range out {
		peak = math.Max(peak, x)
	}
	sum = 0
	for i, x := range out {
		out[i] = math.Exp(x - peak)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

var _ inference.Adapter = (*Models)(nil)
