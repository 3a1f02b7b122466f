package engagement

import (
	"fmt"
	"math"

	"github.com/teslashibe/go-engage/internal/ring"
)

// Trend is the direction of recent change in the raw score.
type Trend string

// Trend directions.
const (
	Stable     Trend = "stable"
	Increasing Trend = "increasing"
	Decreasing Trend = "decreasing"
)

// State is the scorer output after one frame.
type State struct {
	Raw           float64 `json:"raw_score"`
	Smoothed      float64 `json:"smoothed_score"`
	ShortAvg      float64 `json:"short_term_avg"`
	MediumAvg     float64 `json:"medium_term_avg"`
	LongAvg       float64 `json:"long_term_avg"`
	Trend         Trend   `json:"trend"`
	TrendDuration int     `json:"trend_duration"`
	Samples       int     `json:"samples"`
}

// Scorer smooths weighted sums into an engagement score and tracks the
// trend. It is not safe for concurrent use.
type Scorer struct {
	cfg Config

	raw    float64
	seeded bool

	smooth *ring.Buffer
	short  *ring.Buffer
	medium *ring.Buffer
	long   *ring.Buffer

	trend    Trend
	duration int
	samples  int
}

// NewScorer creates a scorer. cfg must pass Validate.
func NewScorer(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scorer{
		cfg:    cfg,
		smooth: ring.New(cfg.SmoothWindow),
		short:  ring.New(cfg.ShortWindow),
		medium: ring.New(cfg.MediumWindow),
		long:   ring.New(cfg.LongWindow),
		trend:  Stable,
	}, nil
}

// Update folds a frame's weighted sum into the raw score and records it.
// The first frame seeds the raw score directly.
func (s *Scorer) Update(weighted float64) State {
	weighted = clamp(weighted)
	if !s.seeded {
		s.raw = weighted
		s.seeded = true
	} else {
		s.raw = clamp(s.cfg.Retention*s.raw + (1-s.cfg.Retention)*weighted)
	}
	return s.Record(s.raw)
}

// Record pushes a raw score into every window and re-evaluates the trend.
func (s *Scorer) Record(raw float64) State {
	raw = clamp(raw)
	s.raw = raw
	s.seeded = true
	s.samples++

	s.smooth.Push(raw)
	s.short.Push(raw)
	s.medium.Push(raw)
	s.long.Push(raw)

	s.updateTrend()
	return s.State()
}

func (s *Scorer) updateTrend() {
	if s.medium.Len() < s.cfg.TrendMinSamples {
		return
	}
	span, lag := s.cfg.TrendSpan, s.cfg.TrendLag
	window := s.medium.Last(lag + span)
	recent := ring.Mean(window[len(window)-span:])
	earlier := ring.Mean(window[:span])

	next := Stable
	switch diff := recent - earlier; {
	case diff > s.cfg.TrendThreshold:
		next = Increasing
	case diff < -s.cfg.TrendThreshold:
		next = Decreasing
	}

	if next == s.trend && s.duration > 0 {
		s.duration++
	} else {
		s.trend = next
		s.duration = 1
	}
}

// State returns the current scorer state.
func (s *Scorer) State() State {
	return State{
		Raw:           round(s.raw),
		Smoothed:      round(s.smooth.Mean()),
		ShortAvg:      round(s.short.Mean()),
		MediumAvg:     round(s.medium.Mean()),
		LongAvg:       round(s.long.Mean()),
		Trend:         s.trend,
		TrendDuration: s.duration,
		Samples:       s.samples,
	}
}

// NeedsIntervention reports a low long-term average without recovery.
func (s *Scorer) NeedsIntervention() bool {
	if s.long.Len() == 0 {
		return false
	}
	return s.long.Mean() < s.cfg.InterventionBelow && s.trend != Increasing
}

// Config returns the scorer config.
func (s *Scorer) Config() Config { return s.cfg }

// Reset clears all history.
func (s *Scorer) Reset() {
	s.raw, s.seeded = 0, false
	s.smooth.Reset()
	s.short.Reset()
	s.medium.Reset()
	s.long.Reset()
	s.trend, s.duration, s.samples = Stable, 0, 0
}

func (s State) String() string {
	return fmt.Sprintf("engagement %.1f (raw %.1f, %s x%d)", s.Smoothed, s.Raw, s.Trend, s.TrendDuration)
}

func round(v float64) float64 {
	return math.Round(v*100) / 100
}
