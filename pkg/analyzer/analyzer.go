// Package analyzer runs the per-frame engagement pipeline for one subject
// and keeps one analyzer per session.
package analyzer

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"time"

	"github.com/teslashibe/go-engage/pkg/detection"
	"github.com/teslashibe/go-engage/pkg/engagement"
	"github.com/teslashibe/go-engage/pkg/eyestate"
	"github.com/teslashibe/go-engage/pkg/gaze"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/lighting"
	"github.com/teslashibe/go-engage/pkg/weights"
)

// EyeFeatureExtractor measures classical openness features of one eye region.
type EyeFeatureExtractor interface {
	EyeFeatures(frame inference.Frame, eye image.Rectangle) (eyestate.Features, error)
}

// LightingMeter measures frame luminance.
type LightingMeter interface {
	MeasureLighting(frame inference.Frame) (lighting.Measurement, error)
}

// Upstream carries optional per-frame signals from collaborators outside
// the vision pipeline.
type Upstream struct {
	Posture        *float64 `json:"posture,omitempty"`
	Gesture        *float64 `json:"gesture,omitempty"`
	EngagedGesture bool     `json:"engaged_gesture,omitempty"`
}

// Config holds analyzer settings.
type Config struct {
	Context  string            `yaml:"context"`
	Policy   eyestate.Policy   `yaml:"eye_policy"`
	Scorer   engagement.Config `yaml:"scorer"`
	Lighting lighting.Config   `yaml:"lighting"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Context:  weights.Default,
		Policy:   eyestate.DefaultPolicy(),
		Scorer:   engagement.DefaultConfig(),
		Lighting: lighting.DefaultConfig(),
	}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithConfig replaces the analyzer config.
func WithConfig(cfg Config) Option {
	return func(a *Analyzer) { a.cfg = cfg }
}

// WithContext sets the initial weight context.
func WithContext(name string) Option {
	return func(a *Analyzer) { a.cfg.Context = name }
}

// WithEyeFeatures sets the classical eye feature extractor.
func WithEyeFeatures(x EyeFeatureExtractor) Option {
	return func(a *Analyzer) { a.features = x }
}

// WithLightingMeter sets the lighting meter.
func WithLightingMeter(m LightingMeter) Option {
	return func(a *Analyzer) { a.meter = m }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// Analyzer scores frames for one subject. It owns all temporal state and
// is not safe for concurrent use; Registry serializes access per session.
type Analyzer struct {
	cfg       Config
	adapter   *inference.Safe
	optimizer *weights.Optimizer
	features  EyeFeatureExtractor
	meter     LightingMeter
	logger    *slog.Logger
	now       func() time.Time

	eyes     *eyestate.Classifier
	presence *engagement.FacePresence
	scorer   *engagement.Scorer
	light    *lighting.Tracker
	stats    *engagement.SessionStats

	context string
	frames  int
	history []weights.Scores
}

// New creates an analyzer. The optimizer is shared between analyzers.
func New(adapter *inference.Safe, optimizer *weights.Optimizer, opts ...Option) (*Analyzer, error) {
	if adapter == nil {
		return nil, errors.New("analyzer: nil adapter")
	}
	if optimizer == nil {
		return nil, errors.New("analyzer: nil optimizer")
	}

	a := &Analyzer{
		cfg:       DefaultConfig(),
		adapter:   adapter,
		optimizer: optimizer,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := a.cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	scorer, err := engagement.NewScorer(a.cfg.Scorer)
	if err != nil {
		return nil, err
	}

	start := a.now()
	a.logger = a.logger.With("component", "analyzer")
	a.scorer = scorer
	a.eyes = eyestate.NewClassifier(a.cfg.Policy, start)
	a.presence = engagement.NewFacePresence(a.cfg.Scorer.Absence)
	a.light = lighting.NewTracker(a.cfg.Lighting)
	a.stats = engagement.NewSessionStats(start)
	a.context = a.cfg.Context
	if a.context == "" {
		a.context = weights.Default
	}
	return a, nil
}

// ProcessFrame scores one frame with no upstream posture or gesture signal.
func (a *Analyzer) ProcessFrame(ctx context.Context, frame inference.Frame) Result {
	return a.ProcessFrameWithSignals(ctx, frame, Upstream{})
}

// ProcessFrameWithSignals scores one frame. Extraction failures degrade
// to their documented defaults; the frame is always scored.
func (a *Analyzer) ProcessFrameWithSignals(ctx context.Context, frame inference.Frame, up Upstream) Result {
	began := time.Now()
	now := a.now()
	a.frames++

	res := Result{
		Frame:     a.frames,
		Timestamp: now,
		Context:   a.context,
		Gaze:      gaze.Forward,
		Emotion:   inference.Neutral,
		Lighting:  a.measureLighting(frame),
	}

	sig := engagement.Signals{
		Posture:        up.Posture,
		Gesture:        up.Gesture,
		EngagedGesture: up.EngagedGesture,
	}

	face, ok := detection.SelectBest(a.adapter.DetectFaces(ctx, frame))
	if ok {
		res.FaceDetected = true
		res.Face = &face

		res.Emotion = a.adapter.AnalyzeEmotion(ctx, frame, face)
		res.HeadPose = a.adapter.AnalyzeHeadPose(ctx, frame, face)
		res.Gaze = gaze.FromHeadPose(res.HeadPose.Yaw, res.HeadPose.Pitch, res.HeadPose.Roll)

		eyes := a.classifyEyes(ctx, frame, face, now)
		res.EyeStates = eyes

		sig.FacePresent = true
		sig.Emotion = res.Emotion
		sig.HeadPose = res.HeadPose
		sig.EyeScore = eyes.Score
		sig.Gaze = res.Gaze
	} else {
		res.EyeStates = a.eyes.Current(now)
	}

	presence := a.presence.Observe(ok, now)
	res.FaceAbsentFrames = a.presence.AbsentFrames()

	scores := engagement.Components(sig, presence, a.cfg.Scorer)
	profile := a.optimizer.Weights(a.context)
	if up.EngagedGesture {
		profile = weights.Adjust(profile, weights.Gesture, a.cfg.Scorer.GestureBoost)
	}

	weighted := engagement.WeightedSum(scores, profile)
	state := a.scorer.Update(weighted)
	a.remember(scores)

	res.ComponentScores = scores
	res.Weights = profile
	res.WeightedScore = weighted
	res.RawScore = state.Raw
	res.EngagementScore = state.Smoothed
	res.Level = engagement.LevelFor(state.Smoothed)
	res.Trend = state.Trend
	res.TrendDuration = state.TrendDuration
	res.NeedsIntervention = a.scorer.NeedsIntervention()
	res.Blinks = a.eyes.Blinks(now)

	a.stats.Observe(state.Smoothed, ok, res.Blinks.TotalBlinks, res.Blinks.DrowsyEpisodes, now)
	res.ProcessingTime = time.Since(began)

	if res.NeedsIntervention && state.Samples%a.cfg.Scorer.LongWindow == 0 {
		a.logger.Info("sustained low engagement", "long_term_avg", state.LongAvg, "trend", state.Trend)
	}
	return res
}

// classifyEyes decides each eye and advances the eye-state machines.
func (a *Analyzer) classifyEyes(ctx context.Context, frame inference.Frame, face detection.FaceRegion, now time.Time) eyestate.Result {
	var leftPts, rightPts []image.Point
	if lm, ok := a.adapter.ExtractLandmarks(ctx, frame, face); ok {
		leftPts, rightPts = lm.LeftEye, lm.RightEye
	}
	leftRect, rightRect, _ := eyestate.Regions(face, leftPts, rightPts)

	left := a.decideEye(ctx, frame, leftRect)
	right := a.decideEye(ctx, frame, rightRect)
	return a.eyes.Observe(left, right, now)
}

func (a *Analyzer) decideEye(ctx context.Context, frame inference.Frame, eye image.Rectangle) eyestate.Decision {
	if eye.Empty() {
		return eyestate.ErrorDecision()
	}

	var model *float64
	if p, ok := a.adapter.EyeOpenProbability(ctx, frame, eye); ok {
		model = &p
	}

	if a.features == nil {
		if model != nil {
			return eyestate.DecideModel(*model, a.cfg.Policy)
		}
		return eyestate.ErrorDecision()
	}

	f, err := a.features.EyeFeatures(frame, eye)
	if err != nil {
		a.logger.Debug("eye feature extraction failed", "region", eye, "error", err)
		if model != nil {
			return eyestate.DecideModel(*model, a.cfg.Policy)
		}
		return eyestate.ErrorDecision()
	}
	return eyestate.Decide(f, model, a.cfg.Policy)
}

func (a *Analyzer) measureLighting(frame inference.Frame) lighting.Report {
	if a.meter == nil {
		return lighting.Unknown()
	}
	m, err := a.meter.MeasureLighting(frame)
	if err != nil {
		a.logger.Debug("lighting measurement failed", "error", err)
		return lighting.Unknown()
	}
	return a.light.Observe(m)
}

func (a *Analyzer) remember(scores weights.Scores) {
	a.history = append(a.history, scores)
	if n := a.cfg.Scorer.HistorySize; len(a.history) > n {
		a.history = append([]weights.Scores(nil), a.history[len(a.history)-n:]...)
	}
}

// SetContext switches the weight context and returns the profile now in use.
func (a *Analyzer) SetContext(name string) weights.Profile {
	if name == "" {
		name = weights.Default
	}
	a.context = name
	a.logger.Info("context changed", "context", name, "known", a.optimizer.Has(name))
	return a.optimizer.Weights(name)
}

// Context returns the active weight context.
func (a *Analyzer) Context() string { return a.context }

// LatestScores returns the most recent component scores.
func (a *Analyzer) LatestScores() (weights.Scores, bool) {
	if len(a.history) == 0 {
		return nil, false
	}
	return a.history[len(a.history)-1].Clamp(), true
}

// History returns the retained component-score snapshots, oldest first.
func (a *Analyzer) History() []weights.Scores {
	out := make([]weights.Scores, len(a.history))
	for i, s := range a.history {
		out[i] = s.Clamp()
	}
	return out
}

// AddTrainingSample labels the latest component scores with groundTruth.
func (a *Analyzer) AddTrainingSample(ctx context.Context, groundTruth float64) (weights.TrainingSample, error) {
	scores, ok := a.LatestScores()
	if !ok {
		return weights.TrainingSample{}, ErrNoScores
	}
	return a.optimizer.AddTrainingSample(ctx, scores, groundTruth)
}

// SaveTrainingSample is AddTrainingSample reporting only success.
func (a *Analyzer) SaveTrainingSample(ctx context.Context, groundTruth float64) bool {
	if _, err := a.AddTrainingSample(ctx, groundTruth); err != nil {
		a.logger.Warn("training sample rejected", "ground_truth", groundTruth, "error", err)
		return false
	}
	return true
}

// TrainWeightModel retrains the shared learned profile.
func (a *Analyzer) TrainWeightModel(ctx context.Context) bool {
	if _, err := a.optimizer.Train(ctx); err != nil {
		a.logger.Warn("weight training failed", "error", err)
		return false
	}
	return true
}

// Summary returns the session statistics.
func (a *Analyzer) Summary() engagement.Summary {
	return a.stats.Summary()
}

// State returns the scorer state.
func (a *Analyzer) State() engagement.State {
	return a.scorer.State()
}

// Reset clears all temporal state and starts a new session.
func (a *Analyzer) Reset() {
	start := a.now()
	a.scorer.Reset()
	a.presence.Reset()
	a.eyes = eyestate.NewClassifier(a.cfg.Policy, start)
	a.light = lighting.NewTracker(a.cfg.Lighting)
	a.stats = engagement.NewSessionStats(start)
	a.history = nil
	a.frames = 0
}
