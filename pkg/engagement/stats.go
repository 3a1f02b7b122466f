package engagement

import (
	"math"
	"time"
)

// SessionStats accumulates per-session totals.
// It is not safe for concurrent use.
type SessionStats struct {
	Start          time.Time
	Frames         int
	FaceFrames     int
	sum            float64
	max            float64
	min            float64
	TotalBlinks    int
	DrowsyEpisodes int
	last           time.Time
}

// Summary is the JSON view of SessionStats.
type Summary struct {
	Frames         int     `json:"total_frames"`
	FaceFrames     int     `json:"face_frames"`
	AverageScore   float64 `json:"average_engagement"`
	MaxScore       float64 `json:"max_engagement"`
	MinScore       float64 `json:"min_engagement"`
	Level          Level   `json:"level"`
	TotalBlinks    int     `json:"total_blinks"`
	DrowsyEpisodes int     `json:"drowsy_episodes"`
	Duration       float64 `json:"session_duration_seconds"`
}

// NewSessionStats starts a session at start.
func NewSessionStats(start time.Time) *SessionStats {
	return &SessionStats{Start: start, last: start, min: math.Inf(1)}
}

// Observe records one frame. Blink counters are cumulative values, not deltas.
func (s *SessionStats) Observe(score float64, facePresent bool, totalBlinks, drowsyEpisodes int, now time.Time) {
	s.Frames++
	if facePresent {
		s.FaceFrames++
	}
	s.sum += score
	s.max = math.Max(s.max, score)
	s.min = math.Min(s.min, score)
	s.TotalBlinks = totalBlinks
	s.DrowsyEpisodes = drowsyEpisodes
	if now.After(s.last) {
		s.last = now
	}
}

// Summary returns the session summary.
func (s *SessionStats) Summary() Summary {
	out := Summary{
		Frames:         s.Frames,
		FaceFrames:     s.FaceFrames,
		TotalBlinks:    s.TotalBlinks,
		DrowsyEpisodes: s.DrowsyEpisodes,
		Duration:       round(s.last.Sub(s.Start).Seconds()),
		Level:          Disengaged,
	}
	if s.Frames > 0 {
		out.AverageScore = round(s.sum / float64(s.Frames))
		out.MaxScore = round(s.max)
		out.MinScore = round(s.min)
		out.Level = LevelFor(out.AverageScore)
	}
	return out
}
