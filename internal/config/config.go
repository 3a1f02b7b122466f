// Package config loads engaged settings from a YAML file, a .env file
// and the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/teslashibe/go-engage/pkg/analyzer"
	"github.com/teslashibe/go-engage/pkg/detection"
	"github.com/teslashibe/go-engage/pkg/inference/cv"
	"github.com/teslashibe/go-engage/pkg/vision"
	"github.com/teslashibe/go-engage/pkg/web"
	"github.com/teslashibe/go-engage/pkg/weights"
)

// Config is the complete engaged configuration.
type Config struct {
	Log       LogConfig               `yaml:"log"`
	Server    web.Config              `yaml:"server"`
	Storage   StorageConfig           `yaml:"storage"`
	Detection detection.Config        `yaml:"detection"`
	Models    cv.ModelsConfig         `yaml:"models"`
	Eyes      vision.EyeConfig        `yaml:"eyes"`
	Analyzer  analyzer.Config         `yaml:"analyzer"`
	Registry  analyzer.RegistryConfig `yaml:"registry"`
	Weights   weights.Config          `yaml:"weights"`

	// Per-call inference budget; zero disables
	InferenceTimeout time.Duration `yaml:"inference_timeout" validate:"gte=0"`
}

// LogConfig controls the global logger.
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// StorageConfig selects where profiles and training samples live.
// Profiles go to Redis when RedisAddr is set, otherwise to ProfilesPath.
// Samples go to the SQLite database at SamplesPath; empty keeps them
// in memory only.
type StorageConfig struct {
	ProfilesPath  string `yaml:"profiles_path" validate:"required_without=RedisAddr"`
	SamplesPath   string `yaml:"samples_path"`
	RedisAddr     string `yaml:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db" validate:"gte=0"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// Default returns production defaults.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info"},
		Server: web.DefaultConfig(),
		Storage: StorageConfig{
			ProfilesPath: "data/weight_profiles.json",
			SamplesPath:  "data/training_samples.db",
		},
		Detection:        detection.DefaultConfig(),
		Models:           cv.DefaultModelsConfig(),
		Eyes:             vision.DefaultEyeConfig(),
		Analyzer:         analyzer.DefaultConfig(),
		Registry:         analyzer.DefaultRegistryConfig(),
		Weights:          weights.DefaultConfig(),
		InferenceTimeout: 2 * time.Second,
	}
}

// Load builds the configuration. path names an optional YAML file and
// defaults to $ENGAGE_CONFIG; a .env file in the working directory is
// read when present. Environment variables override both.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	if path == "" {
		path = os.Getenv("ENGAGE_CONFIG")
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables.
func (c *Config) applyEnv() {
	c.Log.Level = Env("LOG_LEVEL", c.Log.Level)
	c.Log.File = Env("LOG_FILE", c.Log.File)

	c.Server.Addr = Env("ENGAGE_ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}

	c.Storage.ProfilesPath = Env("PROFILES_PATH", c.Storage.ProfilesPath)
	c.Storage.SamplesPath = Env("SAMPLES_DB", c.Storage.SamplesPath)
	c.Storage.RedisAddr = Env("REDIS_ADDR", c.Storage.RedisAddr)
	c.Storage.RedisPassword = Env("REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = EnvInt("REDIS_DB", c.Storage.RedisDB)

	c.Detection.ModelPath = Env("YUNET_MODEL", c.Detection.ModelPath)
	c.Models.Backend = Env("DNN_BACKEND", c.Models.Backend)
	c.Models.Target = Env("DNN_TARGET", c.Models.Target)

	c.Analyzer.Context = Env("ENGAGE_CONTEXT", c.Analyzer.Context)
	c.Registry.MaxSessions = EnvInt("MAX_SESSIONS", c.Registry.MaxSessions)
	c.Registry.FrameRate = EnvFloat("FRAME_RATE", c.Registry.FrameRate)
	c.Registry.IdleTimeout = EnvDuration("SESSION_IDLE_TIMEOUT", c.Registry.IdleTimeout)
	c.InferenceTimeout = EnvDuration("INFERENCE_TIMEOUT", c.InferenceTimeout)
}

// Validate checks struct constraints and the nested domain configs.
func (c *Config) Validate() error {
	var errs []error
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		errs = append(errs, err)
	}
	if err := c.Analyzer.Policy.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Analyzer.Scorer.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
