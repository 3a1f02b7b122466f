// Package lighting grades camera lighting from per-frame luminance
// measurements averaged over a short history.
package lighting

import (
	"math"

	"github.com/teslashibe/go-engage/internal/ring"
)

// Measurement is the luminance summary of one frame.
type Measurement struct {
	Brightness float64 // Mean L* on a 0-255 scale
	Contrast   float64 // Standard deviation of L*
	Exposure   float64 // Fraction of pixels with L* >= 240
}

// Quality labels.
const (
	QualityGood        = "Good"
	QualityTooDark     = "Poor (Too Dark)"
	QualityTooBright   = "Poor (Too Bright)"
	QualityLowContrast = "Low Contrast"
	QualityOverexposed = "Overexposed"
	QualityUnknown     = "Unknown"
)

// Report is the lighting grade over the recent history.
type Report struct {
	Brightness     float64 `json:"brightness"`
	Contrast       float64 `json:"contrast"`
	Exposure       float64 `json:"exposure"`
	Quality        string  `json:"quality"`
	Recommendation string  `json:"recommendation"`
	Score          float64 `json:"score"`
}

// Unknown is reported when a frame could not be measured.
func Unknown() Report {
	return Report{Quality: QualityUnknown, Recommendation: "Check camera"}
}

// Config holds grading thresholds.
type Config struct {
	History       int     `yaml:"history"`
	DarkBelow     float64 `yaml:"dark_below"`
	BrightAbove   float64 `yaml:"bright_above"`
	ContrastBelow float64 `yaml:"contrast_below"`
	ExposureAbove float64 `yaml:"exposure_above"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		History:       30,
		DarkBelow:     40,
		BrightAbove:   200,
		ContrastBelow: 20,
		ExposureAbove: 0.05,
	}
}

// Tracker averages measurements and grades the result.
// It is not safe for concurrent use.
type Tracker struct {
	cfg        Config
	brightness *ring.Buffer
	contrast   *ring.Buffer
	exposure   *ring.Buffer
}

// NewTracker creates a tracker.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{
		cfg:        cfg,
		brightness: ring.New(cfg.History),
		contrast:   ring.New(cfg.History),
		exposure:   ring.New(cfg.History),
	}
}

// Observe adds m to the history and returns the current grade.
func (t *Tracker) Observe(m Measurement) Report {
	t.brightness.Push(m.Brightness)
	t.contrast.Push(m.Contrast)
	t.exposure.Push(m.Exposure)
	return t.grade()
}

func (t *Tracker) grade() Report {
	r := Report{
		Brightness: round(t.brightness.Mean(), 2),
		Contrast:   round(t.contrast.Mean(), 2),
		Exposure:   round(t.exposure.Mean(), 3),
	}

	b, c, e := t.brightness.Mean(), t.contrast.Mean(), t.exposure.Mean()
	switch {
	case b < t.cfg.DarkBelow:
		r.Quality, r.Recommendation, r.Score = QualityTooDark, "Add more lighting", 0.2
	case b > t.cfg.BrightAbove:
		r.Quality, r.Recommendation, r.Score = QualityTooBright, "Reduce lighting", 0.3
	case c < t.cfg.ContrastBelow:
		r.Quality, r.Recommendation, r.Score = QualityLowContrast, "Adjust lighting position", 0.5
	case e > t.cfg.ExposureAbove:
		r.Quality, r.Recommendation, r.Score = QualityOverexposed, "Reduce lighting intensity", 0.4
	default:
		r.Quality, r.Recommendation, r.Score = QualityGood, "Optimal conditions", 1.0
	}
	return r
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
