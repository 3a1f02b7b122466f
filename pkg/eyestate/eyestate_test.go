package eyestate

import (
	"errors"
	"image"
	"math"
	"testing"
	"time"

	"github.com/teslashibe/go-engage/pkg/detection"
)

var (
	wideOpen = Features{Variance: 800, EdgeDensity: 0.2, LaplacianVar: 300, LinePeakDensity: 0.4, EAR: 0.35, HasEAR: true}
	shut     = Features{Variance: 100, EdgeDensity: 0.02, LaplacianVar: 30}
	weak     = Features{Variance: 200, EdgeDensity: 0.06, LaplacianVar: 60}
	textured = Features{Variance: 300, EdgeDensity: 0.09, LaplacianVar: 60}
)

func prob(p float64) *float64 { return &p }

func TestClassicalScore(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name     string
		features Features
		want     float64
	}{
		{"wide open", wideOpen, 1.0},
		{"shut", shut, 0.0},
		{"midpoint", Features{Variance: 375, EdgeDensity: 0.10, LaplacianVar: 125, LinePeakDensity: 0.15}, 0.5},
		{"invalid EAR ignored", Features{Variance: 375, EdgeDensity: 0.10, LaplacianVar: 125, LinePeakDensity: 0.15, EAR: 0.8, HasEAR: true}, 0.5},
		{"EAR at lower bound pulls down", Features{Variance: 375, EdgeDensity: 0.10, LaplacianVar: 125, LinePeakDensity: 0.15, EAR: 0.15, HasEAR: true}, 0.45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassicalScore(tt.features, p)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ClassicalScore = %.4f, want %.4f", got, tt.want)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	p := DefaultPolicy()

	tests := []struct {
		name       string
		features   Features
		model      *float64
		wantOpen   bool
		wantSource Source
	}{
		{"classical open", wideOpen, nil, true, SourceClassical},
		{"hard override closed", shut, nil, false, SourceOverride},
		{"weak classical closed", weak, nil, false, SourceClassical},
		{"model trusted open", wideOpen, prob(0.9), true, SourceModel},
		{"model open distrusted on low variance", weak, prob(0.9), false, SourceClassical},
		{"model trusted closed", wideOpen, prob(0.2), false, SourceModel},
		{"override beats confident model", shut, prob(0.95), false, SourceClassical},
		{"disagreement without margin stays closed", textured, prob(0.65), false, SourceBlend},
		{"disagreement with margin opens", textured, prob(0.84), true, SourceBlend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.features, tt.model, p)
			if got.Open != tt.wantOpen {
				t.Errorf("Open = %v, want %v (score %.3f)", got.Open, tt.wantOpen, got.Score)
			}
			// Override decisions keep their source when the classical path wins.
			if tt.wantSource == SourceClassical && got.Source == SourceOverride {
				return
			}
			if got.Source != tt.wantSource {
				t.Errorf("Source = %s, want %s", got.Source, tt.wantSource)
			}
			if got.Confidence < 0 || got.Confidence > 1 {
				t.Errorf("Confidence out of range: %f", got.Confidence)
			}
		})
	}
}

func TestErrorDecisionIsClosed(t *testing.T) {
	d := ErrorDecision()
	if d.Open {
		t.Error("error decision must be closed")
	}
	if d.Confidence > 0.5 {
		t.Errorf("error decision should be low confidence, got %.2f", d.Confidence)
	}
}

func TestTrackerBlinkSequence(t *testing.T) {
	tr := NewTracker(2)
	seq := []bool{false, false, true, true, true, true, true}

	var states []State
	for _, open := range seq {
		states = append(states, tr.Update(open))
	}

	want := []State{Closed, Closed, Blinking, Open, Open, Open, Open}
	blinking := 0
	for i, s := range states {
		if s != want[i] {
			t.Errorf("frame %d: got %s, want %s", i, s, want[i])
		}
		if s == Blinking {
			blinking++
		}
	}
	if blinking != 1 {
		t.Errorf("expected exactly one blinking frame, got %d", blinking)
	}
}

func TestTrackerLongClosureIsNotBlink(t *testing.T) {
	tr := NewTracker(2)
	for i := 0; i < 3; i++ {
		tr.Update(false)
	}
	if tr.ClosedFrames() != 3 {
		t.Fatalf("ClosedFrames = %d, want 3", tr.ClosedFrames())
	}
	if got := tr.Update(true); got != Open {
		t.Errorf("after long closure got %s, want open", got)
	}
	if tr.ClosedFrames() != 0 {
		t.Error("counter should reset on open")
	}
}

func TestTrackerFail(t *testing.T) {
	tr := NewTracker(2)
	tr.Update(false)

	if got := tr.Fail(); got != Closed {
		t.Errorf("Fail = %s, want closed", got)
	}
	if tr.ClosedFrames() != 0 {
		t.Errorf("Fail should zero the counter, got %d", tr.ClosedFrames())
	}
	if got := tr.Update(true); got != Open {
		t.Errorf("open after failure = %s, want open", got)
	}
}

func TestPairScore(t *testing.T) {
	tests := []struct {
		left, right State
		want        float64
	}{
		{Open, Open, 100},
		{Blinking, Blinking, 90},
		{Open, Blinking, 85},
		{Blinking, Open, 85},
		{Open, Closed, 60},
		{Closed, Open, 60},
		{Blinking, Closed, 40},
		{Closed, Closed, 20},
	}

	for _, tt := range tests {
		t.Run(tt.left.String()+"_"+tt.right.String(), func(t *testing.T) {
			if got := PairScore(tt.left, tt.right); got != tt.want {
				t.Errorf("PairScore = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStateJSON(t *testing.T) {
	b, err := Blinking.MarshalJSON()
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"blinking"` {
		t.Errorf("MarshalJSON = %s", b)
	}

	var s State
	if err := s.UnmarshalJSON([]byte(`"closed"`)); err != nil || s != Closed {
		t.Errorf("UnmarshalJSON = %v, %v", s, err)
	}
	if err := s.UnmarshalJSON([]byte(`"squinting"`)); err == nil {
		t.Error("expected error for unknown state")
	}
}

func TestBlinkCounter(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	bc := NewBlinkCounter(2, start)

	now := start
	for i := 0; i < 3; i++ {
		now = now.Add(20 * time.Second)
		bc.Observe(Blinking, Open, now)
	}

	stats := bc.Stats(now)
	if stats.TotalBlinks != 3 {
		t.Errorf("TotalBlinks = %d, want 3", stats.TotalBlinks)
	}
	if math.Abs(stats.BlinksPerMinute-3) > 1e-9 {
		t.Errorf("BlinksPerMinute = %.2f, want 3", stats.BlinksPerMinute)
	}

	for i := 0; i < 3; i++ {
		stats = bc.Observe(Closed, Closed, now)
	}
	if !stats.Drowsy || stats.DrowsyEpisodes != 1 {
		t.Errorf("expected drowsy episode 1, got %+v", stats)
	}

	stats = bc.Observe(Open, Open, now)
	if stats.Drowsy {
		t.Error("drowsiness should clear when eyes open")
	}
	for i := 0; i < 3; i++ {
		stats = bc.Observe(Closed, Closed, now)
	}
	if stats.DrowsyEpisodes != 2 {
		t.Errorf("DrowsyEpisodes = %d, want 2", stats.DrowsyEpisodes)
	}
}

func TestClassifier(t *testing.T) {
	start := time.Now()
	c := NewClassifier(DefaultPolicy(), start)
	closed := Decision{Open: false, Source: SourceClassical}
	open := Decision{Open: true, Source: SourceClassical}

	c.Observe(closed, closed, start)
	c.Observe(closed, closed, start)
	res := c.Observe(open, open, start)

	if res.Left != Blinking || res.Right != Blinking {
		t.Fatalf("expected both blinking, got %s/%s", res.Left, res.Right)
	}
	if res.Score != 90 {
		t.Errorf("Score = %v, want 90", res.Score)
	}
	if res.Blinks.TotalBlinks != 1 {
		t.Errorf("TotalBlinks = %d, want 1", res.Blinks.TotalBlinks)
	}

	res = c.Fail(start)
	if res.Left != Closed || res.Right != Closed || res.Score != 20 {
		t.Errorf("Fail result = %+v", res)
	}
	res = c.Observe(open, open, start)
	if res.Left != Open || res.Right != Open {
		t.Errorf("after failure expected open, got %s/%s", res.Left, res.Right)
	}
}

func TestClassifierCurrentDoesNotAdvance(t *testing.T) {
	start := time.Now()
	c := NewClassifier(DefaultPolicy(), start)
	closed := Decision{Open: false, Source: SourceClassical}

	for i := 0; i < 5; i++ {
		c.Observe(closed, closed, start)
	}
	res := c.Current(start)
	if res.Left != Closed || res.Right != Closed {
		t.Fatalf("expected closed carried over, got %s/%s", res.Left, res.Right)
	}
	if res.LeftDecision.Source != SourceNone || res.LeftDecision.Open {
		t.Errorf("LeftDecision = %+v", res.LeftDecision)
	}
	if res.Score != 20 {
		t.Errorf("Score = %v, want 20", res.Score)
	}

	before := c.left.ClosedFrames()
	c.Current(start)
	if c.left.ClosedFrames() != before {
		t.Errorf("Current advanced the tracker: %d -> %d", before, c.left.ClosedFrames())
	}
}

func TestProportionalRegions(t *testing.T) {
	face := detection.FaceRegion{XMin: 0, YMin: 0, XMax: 200, YMax: 100}
	left, right := ProportionalRegions(face)

	if want := image.Rect(30, 30, 90, 50); left != want {
		t.Errorf("left = %v, want %v", left, want)
	}
	if want := image.Rect(110, 30, 170, 50); right != want {
		t.Errorf("right = %v, want %v", right, want)
	}
}

func TestLandmarkRegion(t *testing.T) {
	face := detection.FaceRegion{XMin: 0, YMin: 0, XMax: 200, YMax: 100}
	pts := []image.Point{{40, 40}, {60, 40}, {50, 36}, {50, 44}}

	got := LandmarkRegion(pts, face)
	if want := image.Rect(26, 32, 74, 48); got != want {
		t.Errorf("LandmarkRegion = %v, want %v", got, want)
	}

	edge := []image.Point{{2, 2}, {20, 4}}
	if r := LandmarkRegion(edge, face); r.Min.X < 0 || r.Min.Y < 0 {
		t.Errorf("region not clipped to face: %v", r)
	}
}

func TestRegionsFallback(t *testing.T) {
	face := detection.FaceRegion{XMin: 0, YMin: 0, XMax: 200, YMax: 100}
	pl, pr := ProportionalRegions(face)

	left, right, fromLandmarks := Regions(face, nil, nil)
	if fromLandmarks {
		t.Error("expected proportional fallback")
	}
	if left != pl || right != pr {
		t.Errorf("fallback regions = %v %v", left, right)
	}
}

func TestPolicyValidate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("DefaultPolicy invalid: %v", err)
	}
	if err := SensitivePolicy().Validate(); err != nil {
		t.Errorf("SensitivePolicy invalid: %v", err)
	}

	p := DefaultPolicy()
	p.BlinkThreshold = 0
	p.Thresholds.VarianceOpen = 100
	err := p.Validate()
	if !errors.Is(err, ErrInvalidPolicy) {
		t.Errorf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestDecideModel(t *testing.T) {
	p := DefaultPolicy()
	if d := DecideModel(0.9, p); !d.Open || d.Source != SourceModel {
		t.Errorf("DecideModel(0.9) = %+v", d)
	}
	if d := DecideModel(0.55, p); d.Open {
		t.Error("probability inside the margin should stay closed")
	}
}
