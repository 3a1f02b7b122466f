package inference

import (
	"errors"
	"log/slog"
	"time"
)

// Config holds adapter configuration.
type Config struct {
	// Detection
	MinConfidence float64 // Faces below this score are dropped

	// Timeouts
	Timeout time.Duration // Per-call budget; zero disables

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring adapters.
type Option func(*Config)

// WithMinConfidence sets the face confidence cutoff.
func WithMinConfidence(v float64) Option {
	return func(c *Config) { c.MinConfidence = v }
}

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) { c.Timeout = d }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// DefaultConfig returns production defaults.
func DefaultConfig() *Config {
	return &Config{
		MinConfidence: 0.5,
		Timeout:       2 * time.Second,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return errors.New("inference: min confidence must be within [0,1]")
	}
	if c.Timeout < 0 {
		return errors.New("inference: timeout must not be negative")
	}
	return nil
}
