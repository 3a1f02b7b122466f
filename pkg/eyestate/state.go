// Package eyestate classifies each eye as open, blinking or closed from
// classical image features and an optional model probability, and tracks
// the per-eye state machine across frames.
package eyestate

import (
	"encoding/json"
	"fmt"
)

// State is the per-eye state.
type State int

const (
	Open State = iota
	Blinking
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Blinking:
		return "blinking"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalJSON encodes the state by name.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a state name.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "open":
		*s = Open
	case "blinking":
		*s = Blinking
	case "closed":
		*s = Closed
	default:
		return fmt.Errorf("eyestate: unknown state %q", name)
	}
	return nil
}

// Tracker is the per-eye counter state machine.
//
// Closed frames increment the counter. On the first open frame after a
// closure the eye is Blinking if the closure lasted at most the blink
// threshold, Open otherwise, and the counter resets.
type Tracker struct {
	threshold int
	counter   int
	state     State
}

// NewTracker creates a tracker. Thresholds below 1 are raised to 1.
func NewTracker(blinkThreshold int) *Tracker {
	if blinkThreshold < 1 {
		blinkThreshold = 1
	}
	return &Tracker{threshold: blinkThreshold, state: Open}
}

// Update feeds one frame's verdict and returns the new state.
func (t *Tracker) Update(open bool) State {
	if !open {
		t.counter++
		t.state = Closed
		return t.state
	}

	switch {
	case t.counter == 0:
		t.state = Open
	case t.counter <= t.threshold:
		t.state = Blinking
	default:
		t.state = Open
	}
	t.counter = 0
	return t.state
}

// Fail records a frame whose eye could not be measured.
func (t *Tracker) Fail() State {
	t.counter = 0
	t.state = Closed
	return t.state
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// ClosedFrames returns the current consecutive closed-frame count.
func (t *Tracker) ClosedFrames() int {
	return t.counter
}

// Reset returns the tracker to Open with a zero counter.
func (t *Tracker) Reset() {
	t.counter = 0
	t.state = Open
}

// PairScore maps the two eye states to the eye_state component score.
func PairScore(left, right State) float64 {
	if left > right {
		left, right = right, left
	}
	switch {
	case left == Open && right == Open:
		return 100
	case left == Blinking && right == Blinking:
		return 90
	case left == Open && right == Blinking:
		return 85
	case left == Open && right == Closed:
		return 60
	case left == Blinking && right == Closed:
		return 40
	default:
		return 20
	}
}
