package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-engage/pkg/detection"
	"github.com/teslashibe/go-engage/pkg/eyestate"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/lighting"
	"github.com/teslashibe/go-engage/pkg/weights"
)

var openEye = eyestate.Features{Variance: 800, EdgeDensity: 0.2, LaplacianVar: 300, LinePeakDensity: 0.4}

type fakeFeatures struct {
	features eyestate.Features
	err      error
	regions  []image.Rectangle
}

func (f *fakeFeatures) EyeFeatures(frame inference.Frame, eye image.Rectangle) (eyestate.Features, error) {
	f.regions = append(f.regions, eye)
	return f.features, f.err
}

type fakeMeter struct {
	m   lighting.Measurement
	err error
}

func (f fakeMeter) MeasureLighting(frame inference.Frame) (lighting.Measurement, error) {
	return f.m, f.err
}

// clock is a manually advanced time source.
type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *clock {
	return &clock{t: time.Date(2024, 4, 2, 9, 0, 0, 0, time.UTC)}
}

func newTestAnalyzer(t *testing.T, adapter inference.Adapter, opts ...Option) *Analyzer {
	t.Helper()
	a, err := New(inference.NewSafe(adapter), weights.NewOptimizer(), opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func frame() *inference.StubFrame {
	return &inference.StubFrame{Width: 640, Height: 480}
}

func assertInRange(t *testing.T, res Result) {
	t.Helper()
	if res.EngagementScore < 0 || res.EngagementScore > 100 {
		t.Errorf("engagement score %v out of range", res.EngagementScore)
	}
	for c, v := range res.ComponentScores {
		if v < 0 || v > 100 {
			t.Errorf("%s = %v out of range", c, v)
		}
	}
	if sum := res.Weights.Sum(); math.Abs(sum-100) > 1e-9 {
		t.Errorf("weights sum to %v", sum)
	}
}

func TestProcessFrameAttentiveFace(t *testing.T) {
	a := newTestAnalyzer(t, inference.NewMock(), WithEyeFeatures(&fakeFeatures{features: openEye}))

	res := a.ProcessFrame(context.Background(), frame())
	assertInRange(t, res)

	if !res.FaceDetected || res.Face == nil {
		t.Fatal("expected a face")
	}
	if res.EyeStates.Left != eyestate.Open || res.EyeStates.Right != eyestate.Open {
		t.Fatalf("eye states = %+v", res.EyeStates)
	}

	want := weights.Scores{
		weights.FacePresence: 100,
		weights.Emotion:      70,
		weights.EyeState:     100,
		weights.HeadPose:     100,
		weights.Gaze:         100,
		weights.Posture:      70,
		weights.Gesture:      70,
	}
	for c, v := range want {
		if math.Abs(res.ComponentScores[c]-v) > 1e-9 {
			t.Errorf("%s = %v, want %v", c, res.ComponentScores[c], v)
		}
	}
	if math.Abs(res.WeightedScore-91) > 1e-9 || res.RawScore != 91 || res.EngagementScore != 91 {
		t.Errorf("scores weighted=%v raw=%v smoothed=%v, want 91", res.WeightedScore, res.RawScore, res.EngagementScore)
	}
	if res.Gaze.Z != 1 {
		t.Errorf("gaze = %+v, want forward", res.Gaze)
	}
	if res.Lighting.Quality != lighting.QualityUnknown {
		t.Errorf("lighting without meter = %s", res.Lighting.Quality)
	}
}

func TestProcessFrameUsesLandmarkRegions(t *testing.T) {
	mock := inference.NewMock()
	mock.LandmarksFunc = func(ctx context.Context, f inference.Frame, face detection.FaceRegion) (inference.Landmarks, error) {
		return inference.Landmarks{
			LeftEye:  []image.Point{{250, 200}, {270, 200}, {260, 196}, {260, 204}},
			RightEye: []image.Point{{370, 200}, {390, 200}, {380, 196}, {380, 204}},
		}, nil
	}
	features := &fakeFeatures{features: openEye}
	a := newTestAnalyzer(t, mock, WithEyeFeatures(features))

	a.ProcessFrame(context.Background(), frame())

	if len(features.regions) != 2 {
		t.Fatalf("expected two eye regions, got %d", len(features.regions))
	}
	if !features.regions[0].Overlaps(image.Rect(250, 196, 270, 204)) {
		t.Errorf("left region %v does not cover landmarks", features.regions[0])
	}
	if features.regions[0].Max.X > features.regions[1].Min.X {
		t.Errorf("left region %v should sit left of right region %v", features.regions[0], features.regions[1])
	}
}

func TestProcessFrameNoFace(t *testing.T) {
	mock := inference.NewMock()
	mock.DetectFacesFunc = func(ctx context.Context, f inference.Frame) ([]detection.FaceRegion, error) {
		return nil, nil
	}
	a := newTestAnalyzer(t, mock)

	res := a.ProcessFrame(context.Background(), frame())
	assertInRange(t, res)

	if res.FaceDetected {
		t.Error("no face expected")
	}
	if res.EyeStates.Left != eyestate.Open || res.EyeStates.LeftDecision.Source != eyestate.SourceNone {
		t.Errorf("eye states without a face = %+v", res.EyeStates)
	}
	if res.FaceAbsentFrames != 1 {
		t.Errorf("FaceAbsentFrames = %d, want 1", res.FaceAbsentFrames)
	}
	// Only posture and gesture defaults contribute: 70*10/100 + 70*5/100.
	if math.Abs(res.WeightedScore-10.5) > 1e-9 {
		t.Errorf("weighted = %v, want 10.5", res.WeightedScore)
	}
	if mock.CallCount("AnalyzeEmotion") != 0 {
		t.Error("emotion should not be analysed without a face")
	}
}

func TestProcessFrameFaceAbsenceDecay(t *testing.T) {
	clk := newClock()
	present := true
	mock := inference.NewMock()
	detect := mock.DetectFacesFunc
	mock.DetectFacesFunc = func(ctx context.Context, f inference.Frame) ([]detection.FaceRegion, error) {
		if present {
			return detect(ctx, f)
		}
		return nil, nil
	}
	a := newTestAnalyzer(t, mock, WithClock(clk.now))

	a.ProcessFrame(context.Background(), frame())
	present = false

	steps := []struct {
		advance time.Duration
		want    float64
	}{
		{0, 100},
		{2 * time.Second, 80},
		{2 * time.Second, 50},
		{3 * time.Second, 0},
	}
	for _, s := range steps {
		clk.advance(s.advance)
		res := a.ProcessFrame(context.Background(), frame())
		if got := res.ComponentScores[weights.FacePresence]; got != s.want {
			t.Errorf("after %v more: face_presence = %v, want %v", s.advance, got, s.want)
		}
	}
}

func TestProcessFrameAdapterFailure(t *testing.T) {
	a := newTestAnalyzer(t, inference.WithError(errors.New("model crashed")))

	for i := 0; i < 5; i++ {
		res := a.ProcessFrame(context.Background(), frame())
		assertInRange(t, res)
		if res.FaceDetected {
			t.Fatal("failed detector should report no face")
		}
	}
	if a.State().Samples != 5 {
		t.Errorf("every frame should be scored, got %d", a.State().Samples)
	}
}

func TestProcessFrameEyeExtractionFailure(t *testing.T) {
	features := &fakeFeatures{err: errors.New("empty crop")}
	a := newTestAnalyzer(t, inference.NewMock(), WithEyeFeatures(features))

	res := a.ProcessFrame(context.Background(), frame())
	if res.EyeStates.Left != eyestate.Closed || res.EyeStates.Right != eyestate.Closed {
		t.Errorf("eye error default = %s/%s, want closed", res.EyeStates.Left, res.EyeStates.Right)
	}
	if res.EyeStates.LeftDecision.Source != eyestate.SourceError {
		t.Errorf("source = %s, want error", res.EyeStates.LeftDecision.Source)
	}
	if res.ComponentScores[weights.EyeState] != 20 {
		t.Errorf("eye_state = %v, want 20", res.ComponentScores[weights.EyeState])
	}

	// Recovery goes straight to open; error frames never count as a blink.
	features.err = nil
	features.features = openEye
	res = a.ProcessFrame(context.Background(), frame())
	if res.EyeStates.Left != eyestate.Open || res.Blinks.TotalBlinks != 0 {
		t.Errorf("after recovery: %s, blinks %d", res.EyeStates.Left, res.Blinks.TotalBlinks)
	}
}

func TestProcessFrameModelOnlyEyes(t *testing.T) {
	mock := inference.NewMock()
	mock.EyeOpenFunc = func(ctx context.Context, f inference.Frame, eye image.Rectangle) (float64, error) {
		return 0.95, nil
	}
	a := newTestAnalyzer(t, mock)

	res := a.ProcessFrame(context.Background(), frame())
	if res.EyeStates.Left != eyestate.Open || res.EyeStates.LeftDecision.Source != eyestate.SourceModel {
		t.Errorf("model-only eyes = %+v", res.EyeStates.LeftDecision)
	}
}

func TestProcessFrameNonFiniteModelOutputs(t *testing.T) {
	mock := inference.NewMock()
	mock.HeadPoseFunc = func(ctx context.Context, f inference.Frame, face detection.FaceRegion) (inference.HeadPose, error) {
		return inference.HeadPose{Yaw: math.NaN()}, nil
	}
	mock.EyeOpenFunc = func(ctx context.Context, f inference.Frame, eye image.Rectangle) (float64, error) {
		return math.NaN(), nil
	}
	a := newTestAnalyzer(t, mock, WithEyeFeatures(&fakeFeatures{features: openEye}))

	res := a.ProcessFrame(context.Background(), frame())
	assertInRange(t, res)

	if res.HeadPose != (inference.HeadPose{}) {
		t.Errorf("head pose = %+v, want zero pose", res.HeadPose)
	}
	if res.ComponentScores[weights.HeadPose] != 100 {
		t.Errorf("head_pose = %v, want 100", res.ComponentScores[weights.HeadPose])
	}
	if res.EyeStates.Left != eyestate.Open || res.EyeStates.LeftDecision.Source == eyestate.SourceModel {
		t.Errorf("eyes with NaN model = %+v", res.EyeStates.LeftDecision)
	}
	if _, err := json.Marshal(res); err != nil {
		t.Errorf("result not encodable: %v", err)
	}
}

func TestGestureBoostIsTransient(t *testing.T) {
	a := newTestAnalyzer(t, inference.NewMock())
	ctx := context.Background()

	res := a.ProcessFrameWithSignals(ctx, frame(), Upstream{EngagedGesture: true})
	assertInRange(t, res)
	if res.Weights[weights.Gesture] < 15 {
		t.Errorf("boosted gesture weight = %v, want >= 15", res.Weights[weights.Gesture])
	}

	res = a.ProcessFrame(ctx, frame())
	if res.Weights[weights.Gesture] != 5 {
		t.Errorf("gesture weight after boost = %v, want 5", res.Weights[weights.Gesture])
	}
}

func TestUpstreamPosture(t *testing.T) {
	a := newTestAnalyzer(t, inference.NewMock())
	posture := 20.0

	res := a.ProcessFrameWithSignals(context.Background(), frame(), Upstream{Posture: &posture})
	if res.ComponentScores[weights.Posture] != 20 {
		t.Errorf("posture = %v, want 20", res.ComponentScores[weights.Posture])
	}
}

func TestSetContext(t *testing.T) {
	a := newTestAnalyzer(t, inference.NewMock())

	p := a.SetContext(weights.Exam)
	if p[weights.HeadPose] != 25 || a.Context() != weights.Exam {
		t.Errorf("exam profile = %+v", p)
	}
	res := a.ProcessFrame(context.Background(), frame())
	if res.Context != weights.Exam || res.Weights[weights.HeadPose] != 25 {
		t.Errorf("frame used context %s", res.Context)
	}

	p = a.SetContext("unknown_context")
	if p[weights.Gesture] != weights.DefaultProfile()[weights.Gesture] {
		t.Errorf("unknown context should fall back to default, got %+v", p)
	}
}

func TestTrainingSamples(t *testing.T) {
	a := newTestAnalyzer(t, inference.NewMock())
	ctx := context.Background()

	if a.SaveTrainingSample(ctx, 80) {
		t.Error("sample before any frame should fail")
	}
	if _, err := a.AddTrainingSample(ctx, 80); !errors.Is(err, ErrNoScores) {
		t.Errorf("expected ErrNoScores, got %v", err)
	}

	a.ProcessFrame(ctx, frame())
	if !a.SaveTrainingSample(ctx, 80) {
		t.Error("sample after a frame should succeed")
	}
	if a.SaveTrainingSample(ctx, 180) {
		t.Error("out-of-range ground truth should fail")
	}
	if a.optimizer.SampleCount() != 1 {
		t.Errorf("SampleCount = %d, want 1", a.optimizer.SampleCount())
	}
	if a.TrainWeightModel(ctx) {
		t.Error("training with one sample should fail")
	}
}

func TestHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scorer.HistorySize = 5
	a := newTestAnalyzer(t, inference.NewMock(), WithConfig(cfg))

	for i := 0; i < 12; i++ {
		a.ProcessFrame(context.Background(), frame())
	}
	if got := len(a.History()); got != 5 {
		t.Errorf("history length = %d, want 5", got)
	}
}

func TestLightingReported(t *testing.T) {
	a := newTestAnalyzer(t, inference.NewMock(), WithLightingMeter(fakeMeter{m: lighting.Measurement{Brightness: 120, Contrast: 45}}))

	res := a.ProcessFrame(context.Background(), frame())
	if res.Lighting.Quality != lighting.QualityGood {
		t.Errorf("quality = %s, want good", res.Lighting.Quality)
	}

	dark := newTestAnalyzer(t, inference.NewMock(), WithLightingMeter(fakeMeter{err: errors.New("no pixels")}))
	if res := dark.ProcessFrame(context.Background(), frame()); res.Lighting.Quality != lighting.QualityUnknown {
		t.Errorf("failed measurement quality = %s", res.Lighting.Quality)
	}
}

func TestSummaryAndReset(t *testing.T) {
	clk := newClock()
	a := newTestAnalyzer(t, inference.NewMock(), WithClock(clk.now), WithEyeFeatures(&fakeFeatures{features: openEye}))

	for i := 0; i < 4; i++ {
		clk.advance(time.Second)
		a.ProcessFrame(context.Background(), frame())
	}
	s := a.Summary()
	if s.Frames != 4 || s.FaceFrames != 4 || s.AverageScore != 91 {
		t.Errorf("summary = %+v", s)
	}
	if s.Duration != 4 {
		t.Errorf("duration = %v, want 4", s.Duration)
	}

	a.Reset()
	if a.Summary().Frames != 0 || a.State().Samples != 0 {
		t.Error("Reset should clear session state")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil, weights.NewOptimizer()); err == nil {
		t.Error("nil adapter should fail")
	}
	cfg := DefaultConfig()
	cfg.Policy.BlinkThreshold = 0
	if _, err := New(inference.NewSafe(inference.NewMock()), weights.NewOptimizer(), WithConfig(cfg)); !errors.Is(err, eyestate.ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
}
