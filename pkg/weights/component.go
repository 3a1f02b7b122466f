// Package weights holds the component weight profiles used by the
// engagement scorer, learns new profiles from labelled samples and
// persists both.
package weights

import (
	"math"
	"sort"
)

// Component names one engagement sub-score.
type Component string

// Engagement components.
const (
	FacePresence Component = "face_presence"
	Emotion      Component = "emotion"
	EyeState     Component = "eye_state"
	HeadPose     Component = "head_pose"
	Gaze         Component = "gaze"
	Posture      Component = "posture"
	Gesture      Component = "gesture"
)

// Components lists every component in a fixed order.
var Components = []Component{FacePresence, Emotion, EyeState, HeadPose, Gaze, Posture, Gesture}

// Valid reports whether c is a known component.
func (c Component) Valid() bool {
	for _, k := range Components {
		if c == k {
			return true
		}
	}
	return false
}

// Scores maps each component to a score in [0,100].
type Scores map[Component]float64

// Clamp returns a copy with every known component present and within [0,100].
// Missing or non-finite scores become 0.
func (s Scores) Clamp() Scores {
	out := make(Scores, len(Components))
	for _, c := range Components {
		out[c] = clampScore(s[c])
	}
	return out
}

// Vector returns the scores in Components order.
func (s Scores) Vector() []float64 {
	v := make([]float64, len(Components))
	for i, c := range Components {
		v[i] = s[c]
	}
	return v
}

// Profile maps each component to its weight. Weights sum to 100.
type Profile map[Component]float64

// Sum returns the total weight.
func (p Profile) Sum() float64 {
	var sum float64
	for _, c := range Components {
		sum += p[c]
	}
	return sum
}

// Clone returns a copy of p.
func (p Profile) Clone() Profile {
	out := make(Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Validate checks that p names exactly the known components with finite,
// non-negative weights. It does not check the sum.
func (p Profile) Validate() error {
	for c := range p {
		if !c.Valid() {
			return &ValidationError{Component: c, Err: ErrUnknownComponent}
		}
	}
	for _, c := range Components {
		w, ok := p[c]
		if !ok {
			return &ValidationError{Component: c, Err: ErrMissingComponent}
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return &ValidationError{Component: c, Err: ErrInvalidWeight}
		}
	}
	return nil
}

// Ranked returns the components ordered by descending weight.
func (p Profile) Ranked() []Component {
	out := append([]Component(nil), Components...)
	sort.SliceStable(out, func(i, j int) bool { return p[out[i]] > p[out[j]] })
	return out
}

func clampScore(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
