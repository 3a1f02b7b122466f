package engagement

import (
	"errors"
	"fmt"
	"time"
)

// AbsenceBucket maps an absence duration to a face_presence score.
// Absences up to and including Within score Score.
type AbsenceBucket struct {
	Within time.Duration `yaml:"within" json:"within"`
	Score  float64       `yaml:"score" json:"score"`
}

// Config holds scorer tunables.
type Config struct {
	// Retention is the share of the previous raw score kept each frame.
	Retention float64 `yaml:"retention"`

	SmoothWindow int `yaml:"smooth_window"`
	ShortWindow  int `yaml:"short_window"`
	MediumWindow int `yaml:"medium_window"`
	LongWindow   int `yaml:"long_window"`

	// Trend compares the newest TrendSpan samples with the TrendSpan
	// samples ending TrendLag samples back.
	TrendMinSamples int     `yaml:"trend_min_samples"`
	TrendSpan       int     `yaml:"trend_span"`
	TrendLag        int     `yaml:"trend_lag"`
	TrendThreshold  float64 `yaml:"trend_threshold"`

	InterventionBelow float64 `yaml:"intervention_below"`

	// Absence decay, checked in order. Longer absences score 0.
	Absence []AbsenceBucket `yaml:"absence"`

	PostureDefault float64 `yaml:"posture_default"`
	GestureDefault float64 `yaml:"gesture_default"`
	GestureBoost   float64 `yaml:"gesture_boost"`

	// HistorySize bounds the retained component-score snapshots.
	HistorySize int `yaml:"history_size"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Retention:       0.7,
		SmoothWindow:    10,
		ShortWindow:     10,
		MediumWindow:    60,
		LongWindow:      300,
		TrendMinSamples: 30,
		TrendSpan:       10,
		TrendLag:        20,
		TrendThreshold:  5,

		InterventionBelow: 40,

		Absence: []AbsenceBucket{
			{Within: 2 * time.Second, Score: 80},
			{Within: 4 * time.Second, Score: 50},
			{Within: 6 * time.Second, Score: 20},
		},

		PostureDefault: 70,
		GestureDefault: 70,
		GestureBoost:   10,
		HistorySize:    100,
	}
}

// Validate checks the config for values the scorer cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Retention < 0 || c.Retention >= 1 {
		errs = append(errs, fmt.Errorf("retention %v outside [0,1)", c.Retention))
	}
	for name, v := range map[string]int{
		"smooth_window": c.SmoothWindow,
		"short_window":  c.ShortWindow,
		"medium_window": c.MediumWindow,
		"long_window":   c.LongWindow,
		"trend_span":    c.TrendSpan,
		"history_size":  c.HistorySize,
	} {
		if v < 1 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if c.TrendLag+c.TrendSpan > c.MediumWindow {
		errs = append(errs, fmt.Errorf("trend lag+span %d exceeds medium window %d", c.TrendLag+c.TrendSpan, c.MediumWindow))
	}
	if c.TrendMinSamples < c.TrendLag+c.TrendSpan {
		errs = append(errs, fmt.Errorf("trend_min_samples %d below lag+span", c.TrendMinSamples))
	}
	var prev time.Duration
	for i, b := range c.Absence {
		if b.Within <= prev {
			errs = append(errs, fmt.Errorf("absence bucket %d not increasing", i))
		}
		if b.Score < 0 || b.Score > 100 {
			errs = append(errs, fmt.Errorf("absence bucket %d score %v outside [0,100]", i, b.Score))
		}
		prev = b.Within
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
