package eyestate

import "time"

// Result is the eye-state outcome for one frame.
type Result struct {
	Left          State      `json:"left"`
	Right         State      `json:"right"`
	LeftDecision  Decision   `json:"left_decision"`
	RightDecision Decision   `json:"right_decision"`
	Score         float64    `json:"score"`
	Blinks        BlinkStats `json:"blinks"`
}

// Classifier owns both eye trackers and blink statistics for one subject.
// It is not safe for concurrent use.
type Classifier struct {
	policy Policy
	left   *Tracker
	right  *Tracker
	blinks *BlinkCounter
}

// NewClassifier creates a classifier. start anchors the blink rate.
func NewClassifier(policy Policy, start time.Time) *Classifier {
	return &Classifier{
		policy: policy,
		left:   NewTracker(policy.BlinkThreshold),
		right:  NewTracker(policy.BlinkThreshold),
		blinks: NewBlinkCounter(policy.DrowsyFrames, start),
	}
}

// Policy returns the classifier policy.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// Observe advances both eyes with this frame's decisions.
func (c *Classifier) Observe(left, right Decision, now time.Time) Result {
	ls := advance(c.left, left)
	rs := advance(c.right, right)

	return Result{
		Left:          ls,
		Right:         rs,
		LeftDecision:  left,
		RightDecision: right,
		Score:         PairScore(ls, rs),
		Blinks:        c.blinks.Observe(ls, rs, now),
	}
}

func advance(t *Tracker, d Decision) State {
	if d.Source == SourceError {
		return t.Fail()
	}
	return t.Update(d.Open)
}

// Fail records a frame where neither eye could be measured.
func (c *Classifier) Fail(now time.Time) Result {
	return c.Observe(ErrorDecision(), ErrorDecision(), now)
}

// Current reports both eyes without advancing them, for frames with no face.
func (c *Classifier) Current(now time.Time) Result {
	ls, rs := c.left.State(), c.right.State()
	return Result{
		Left:          ls,
		Right:         rs,
		LeftDecision:  Decision{Open: ls != Closed, Source: SourceNone},
		RightDecision: Decision{Open: rs != Closed, Source: SourceNone},
		Score:         PairScore(ls, rs),
		Blinks:        c.blinks.Stats(now),
	}
}

// Blinks returns the blink stats as of now.
func (c *Classifier) Blinks(now time.Time) BlinkStats {
	return c.blinks.Stats(now)
}

// Reset returns both eyes to Open.
func (c *Classifier) Reset() {
	c.left.Reset()
	c.right.Reset()
}
