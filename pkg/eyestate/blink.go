package eyestate

import "time"

// BlinkStats summarizes blinking and drowsiness over a session.
type BlinkStats struct {
	TotalBlinks     int     `json:"total_blinks"`
	BlinksPerMinute float64 `json:"blinks_per_minute"`
	ClosedFrames    int     `json:"closed_frames"` // Consecutive frames with both eyes closed
	Drowsy          bool    `json:"drowsy"`
	DrowsyEpisodes  int     `json:"drowsy_episodes"`
}

// BlinkCounter accumulates BlinkStats from per-frame eye states.
type BlinkCounter struct {
	drowsyFrames int
	start        time.Time

	blinks       int
	closedFrames int
	drowsy       bool
	episodes     int
}

// NewBlinkCounter starts a counter at start.
func NewBlinkCounter(drowsyFrames int, start time.Time) *BlinkCounter {
	return &BlinkCounter{drowsyFrames: drowsyFrames, start: start}
}

// Observe records one frame and returns the running stats.
// A frame where either eye completes a blink counts as one blink.
func (b *BlinkCounter) Observe(left, right State, now time.Time) BlinkStats {
	if left == Blinking || right == Blinking {
		b.blinks++
	}

	if left == Closed && right == Closed {
		b.closedFrames++
	} else {
		b.closedFrames = 0
	}

	drowsy := b.closedFrames > b.drowsyFrames
	if drowsy && !b.drowsy {
		b.episodes++
	}
	b.drowsy = drowsy

	return b.stats(now)
}

// Stats returns the stats as of now without recording a frame.
func (b *BlinkCounter) Stats(now time.Time) BlinkStats {
	return b.stats(now)
}

func (b *BlinkCounter) stats(now time.Time) BlinkStats {
	var rate float64
	if elapsed := now.Sub(b.start); elapsed > time.Second {
		rate = float64(b.blinks) / elapsed.Minutes()
	}
	return BlinkStats{
		TotalBlinks:     b.blinks,
		BlinksPerMinute: rate,
		ClosedFrames:    b.closedFrames,
		Drowsy:          b.drowsy,
		DrowsyEpisodes:  b.episodes,
	}
}
