package analyzer

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/teslashibe/go-engage/pkg/engagement"
	"github.com/teslashibe/go-engage/pkg/inference"
	"github.com/teslashibe/go-engage/pkg/weights"
)

// Factory builds a fresh analyzer for a new session.
type Factory func(contextName string) (*Analyzer, error)

// RegistryConfig bounds the session registry.
type RegistryConfig struct {
	MaxSessions   int           `yaml:"max_sessions" validate:"gte=0"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	FrameRate     float64       `yaml:"frame_rate" validate:"gte=0"` // Frames per second per session; 0 disables
	FrameBurst    int           `yaml:"frame_burst" validate:"gte=0"`
}

// DefaultRegistryConfig returns production defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		MaxSessions:   64,
		IdleTimeout:   10 * time.Minute,
		SweepInterval: time.Minute,
		FrameRate:     30,
		FrameBurst:    10,
	}
}

// Session is one tracked subject.
type Session struct {
	ID      string
	Created time.Time

	mu       sync.Mutex
	analyzer *Analyzer
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Process scores a frame. Frames beyond the rate limit are rejected
// with ErrRateLimited.
func (s *Session) Process(ctx context.Context, frame inference.Frame, up Upstream) (Result, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return Result{}, ErrRateLimited
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.analyzer.ProcessFrameWithSignals(ctx, frame, up), nil
}

// SetContext switches the session's weight context.
func (s *Session) SetContext(name string) weights.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.analyzer.SetContext(name)
}

// Context returns the active weight context.
func (s *Session) Context() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzer.Context()
}

// AddTrainingSample labels the session's latest scores.
func (s *Session) AddTrainingSample(ctx context.Context, groundTruth float64) (weights.TrainingSample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
	return s.analyzer.AddTrainingSample(ctx, groundTruth)
}

// Summary returns the session statistics.
func (s *Session) Summary() engagement.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzer.Summary()
}

// Do runs fn with exclusive access to the analyzer.
func (s *Session) Do(fn func(*Analyzer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s.analyzer)
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// Info is the listing view of a session.
type Info struct {
	ID       string    `json:"id"`
	Context  string    `json:"context"`
	Created  time.Time `json:"created"`
	LastSeen time.Time `json:"last_seen"`
}

// Registry owns one analyzer per session.
type Registry struct {
	cfg     RegistryConfig
	factory Factory
	logger  *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	// OnClose is called after a session is removed.
	OnClose func(id string)
}

// NewRegistry creates a registry using factory to build analyzers.
func NewRegistry(factory Factory, cfg RegistryConfig, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:      cfg,
		factory:  factory,
		logger:   logger.With("component", "analyzer.registry"),
		sessions: make(map[string]*Session),
	}
}

// Create starts a session in the given weight context.
func (r *Registry) Create(contextName string) (*Session, error) {
	r.mu.RLock()
	full := r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions
	r.mu.RUnlock()
	if full {
		return nil, ErrTooManySessions
	}

	a, err := r.factory(contextName)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	s := &Session{
		ID:       uuid.NewString(),
		Created:  now,
		analyzer: a,
		lastSeen: now,
	}
	if r.cfg.FrameRate > 0 {
		burst := max(r.cfg.FrameBurst, 1)
		s.limiter = rate.NewLimiter(rate.Limit(r.cfg.FrameRate), burst)
	}

	r.mu.Lock()
	if r.cfg.MaxSessions > 0 && len(r.sessions) >= r.cfg.MaxSessions {
		r.mu.Unlock()
		return nil, ErrTooManySessions
	}
	r.sessions[s.ID] = s
	count := len(r.sessions)
	r.mu.Unlock()

	r.logger.Info("session created", "session", s.ID, "context", a.Context(), "sessions", count)
	return s, nil
}

// Get returns the session with id.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Delete removes a session and returns its final summary.
func (r *Registry) Delete(id string) (engagement.Summary, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return engagement.Summary{}, ErrSessionNotFound
	}
	summary := s.Summary()
	r.logger.Info("session closed", "session", id, "frames", summary.Frames, "avg", summary.AverageScore)
	if r.OnClose != nil {
		r.OnClose(id)
	}
	return summary, nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// List returns every session, oldest first.
func (r *Registry) List() []Info {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	out := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Info{ID: s.ID, Context: s.Context(), Created: s.Created, LastSeen: s.idleSince()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Created.Before(out[j].Created) })
	return out
}

// Sweep removes sessions idle longer than IdleTimeout and returns their ids.
func (r *Registry) Sweep(now time.Time) []string {
	if r.cfg.IdleTimeout <= 0 {
		return nil
	}

	r.mu.RLock()
	var stale []string
	for id, s := range r.sessions {
		if now.Sub(s.idleSince()) > r.cfg.IdleTimeout {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()

	for _, id := range stale {
		if _, err := r.Delete(id); err == nil {
			r.logger.Info("idle session expired", "session", id)
		}
	}
	return stale
}

// Run sweeps idle sessions until ctx is done.
func (r *Registry) Run(ctx context.Context) error {
	interval := r.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			r.Sweep(now)
		}
	}
}
