package weights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ProfileStore persists named weight profiles and the fitted model.
type ProfileStore interface {
	// LoadProfiles returns every stored profile. An empty store returns an empty map.
	LoadProfiles(ctx context.Context) (map[string]Profile, error)

	// SaveProfiles replaces the stored profile set.
	SaveProfiles(ctx context.Context, profiles map[string]Profile) error

	// LoadModel returns the stored model, or nil when none has been saved.
	LoadModel(ctx context.Context) (*Model, error)

	// SaveModel stores the model.
	SaveModel(ctx context.Context, m *Model) error
}

// SampleStore persists training samples.
type SampleStore interface {
	// AppendSamples stores samples. Samples already stored are ignored.
	AppendSamples(ctx context.Context, samples []TrainingSample) error

	// LoadSamples returns up to limit of the most recent samples, oldest first.
	// A limit <= 0 returns every sample.
	LoadSamples(ctx context.Context, limit int) ([]TrainingSample, error)

	// Close releases the store.
	Close() error
}

// JSONStore implements ProfileStore using JSON files for persistence.
// The model is kept in a sibling file named <base>_model.json.
type JSONStore struct {
	path      string
	modelPath string
	mu        sync.RWMutex
}

// profileFile is the JSON structure for the profile file.
type profileFile struct {
	Version   int                `json:"version"`
	UpdatedAt string             `json:"updated_at"`
	Profiles  map[string]Profile `json:"profiles"`
}

// modelFile is the JSON structure for the model file.
type modelFile struct {
	Version   int    `json:"version"`
	UpdatedAt string `json:"updated_at"`
	Model     *Model `json:"model"`
}

const currentVersion = 1

// NewJSONStore creates a new JSON-based store at the given path.
// Files are created on first save.
func NewJSONStore(path string) (*JSONStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	base := strings.TrimSuffix(path, filepath.Ext(path))
	return &JSONStore{
		path:      path,
		modelPath: base + "_model.json",
	}, nil
}

// LoadProfiles reads the profile file.
func (s *JSONStore) LoadProfiles(ctx context.Context) (map[string]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored profileFile
	found, err := readJSON(s.path, &stored)
	if err != nil || !found {
		return map[string]Profile{}, err
	}
	if stored.Profiles == nil {
		stored.Profiles = map[string]Profile{}
	}
	return stored.Profiles, nil
}

// SaveProfiles writes the profile file.
func (s *JSONStore) SaveProfiles(ctx context.Context, profiles map[string]Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(s.path, profileFile{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Profiles:  profiles,
	})
}

// LoadModel reads the model file.
func (s *JSONStore) LoadModel(ctx context.Context) (*Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stored modelFile
	found, err := readJSON(s.modelPath, &stored)
	if err != nil || !found {
		return nil, err
	}
	return stored.Model, nil
}

// SaveModel writes the model file.
func (s *JSONStore) SaveModel(ctx context.Context, m *Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return writeJSON(s.modelPath, modelFile{
		Version:   currentVersion,
		UpdatedAt: time.Now().Format(time.RFC3339),
		Model:     m,
	})
}

// Path returns the file path of the profile file.
func (s *JSONStore) Path() string {
	return s.path
}

// ModelPath returns the file path of the model file.
func (s *JSONStore) ModelPath() string {
	return s.modelPath
}

func readJSON(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read file: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return true, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	// Write to temp file first, then rename (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) // Clean up temp file
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// Verify JSONStore implements ProfileStore at compile time.
var _ ProfileStore = (*JSONStore)(nil)
