// Package engagement turns per-frame component scores into a smoothed
// engagement score with trend tracking.
package engagement

import (
	"math"
	"time"

	"github.com/teslashibe/go-engage/pkg/gaze"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/weights"
)

var emotionScores = map[inference.Emotion]float64{
	inference.Neutral:  70,
	inference.Happy:    90,
	inference.Surprise: 80,
	inference.Sad:      40,
	inference.Anger:    30,
	inference.Fear:     35,
	inference.Disgust:  30,
}

// EmotionScore maps an emotion label to its engagement contribution.
// Unknown labels score as neutral.
func EmotionScore(e inference.Emotion) float64 {
	if s, ok := emotionScores[e]; ok {
		return s
	}
	return emotionScores[inference.Neutral]
}

// HeadPoseScore averages the yaw and pitch penalties. Pitch is penalised
// harder than yaw.
func HeadPoseScore(p inference.HeadPose) float64 {
	if math.IsNaN(p.Yaw) || math.IsNaN(p.Pitch) {
		return 0
	}
	yaw := math.Max(0, 100-2*math.Abs(p.Yaw))
	pitch := math.Max(0, 100-3*math.Abs(p.Pitch))
	return (yaw + pitch) / 2
}

// Signals are the upstream observations for one frame.
type Signals struct {
	FacePresent bool
	Emotion     inference.Emotion
	HeadPose    inference.HeadPose
	EyeScore    float64
	Gaze        gaze.Vector

	// Optional upstream scores in [0,100]; nil uses the configured default.
	Posture *float64
	Gesture *float64

	// EngagedGesture boosts the gesture weight for this frame.
	EngagedGesture bool
}

// FacePresence scores how recently a face was seen.
// It is not safe for concurrent use.
type FacePresence struct {
	buckets    []AbsenceBucket
	lastSeen   time.Time
	seen       bool
	absentRun  int
	absentSeen int
}

// NewFacePresence creates a tracker using buckets for absence decay.
func NewFacePresence(buckets []AbsenceBucket) *FacePresence {
	return &FacePresence{buckets: append([]AbsenceBucket(nil), buckets...)}
}

// Observe records whether a face is visible at now and returns the
// face_presence score. A face never seen scores 0.
func (f *FacePresence) Observe(present bool, now time.Time) float64 {
	if present {
		f.lastSeen = now
		f.seen = true
		f.absentRun = 0
		return 100
	}

	f.absentRun++
	f.absentSeen++
	if !f.seen {
		return 0
	}
	return f.score(now.Sub(f.lastSeen))
}

func (f *FacePresence) score(absent time.Duration) float64 {
	if absent <= 0 {
		return 100
	}
	for _, b := range f.buckets {
		if absent <= b.Within {
			return b.Score
		}
	}
	return 0
}

// AbsentFrames returns the total number of frames without a face.
func (f *FacePresence) AbsentFrames() int { return f.absentSeen }

// AbsentRun returns the number of consecutive frames without a face.
func (f *FacePresence) AbsentRun() int { return f.absentRun }

// Reset forgets the last sighting.
func (f *FacePresence) Reset() {
	*f = FacePresence{buckets: f.buckets}
}

// Components computes the seven component scores for one frame.
// Face-derived components score 0 when no face is present.
func Components(sig Signals, presence float64, cfg Config) weights.Scores {
	s := weights.Scores{
		weights.FacePresence: presence,
		weights.Posture:      optional(sig.Posture, cfg.PostureDefault),
		weights.Gesture:      optional(sig.Gesture, cfg.GestureDefault),
	}
	if sig.FacePresent {
		s[weights.Emotion] = EmotionScore(sig.Emotion)
		s[weights.EyeState] = sig.EyeScore
		s[weights.HeadPose] = HeadPoseScore(sig.HeadPose)
		s[weights.Gaze] = gaze.Score(sig.Gaze)
	}
	return s.Clamp()
}

func optional(v *float64, def float64) float64 {
	if v == nil || math.IsNaN(*v) {
		return def
	}
	return *v
}

// WeightedSum returns Σ score·weight/100, clamped to [0,100].
func WeightedSum(scores weights.Scores, profile weights.Profile) float64 {
	var sum float64
	for _, c := range weights.Components {
		sum += scores[c] * profile[c] / 100
	}
	return clamp(sum)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
