package weights

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements ProfileStore on Redis so several engaged
// instances can share one profile set.
//
// Profiles live in a hash keyed by profile name; the model is a plain
// string key. Both hold JSON.
type RedisStore struct {
	client      redis.UniversalClient
	profilesKey string
	modelKey    string
	logger      *slog.Logger
}

// RedisOptions configures a RedisStore.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // Defaults to "engage:weights"
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return NewRedisStoreFromClient(client, opts.KeyPrefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client redis.UniversalClient, prefix string, logger *slog.Logger) *RedisStore {
	if prefix == "" {
		prefix = "engage:weights"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:      client,
		profilesKey: prefix + ":profiles",
		modelKey:    prefix + ":model",
		logger:      logger.With("component", "weights.redis"),
	}
}

// LoadProfiles reads every profile from the hash.
func (s *RedisStore) LoadProfiles(ctx context.Context) (map[string]Profile, error) {
	fields, err := s.client.HGetAll(ctx, s.profilesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	out := make(map[string]Profile, len(fields))
	for name, raw := range fields {
		var p Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			s.logger.Warn("skipping unreadable profile", "name", name, "error", err)
			continue
		}
		out[name] = p
	}
	return out, nil
}

// SaveProfiles replaces the hash in one transaction.
func (s *RedisStore) SaveProfiles(ctx context.Context, profiles map[string]Profile) error {
	values := make(map[string]any, len(profiles))
	for name, p := range profiles {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal profile %s: %w", name, err)
		}
		values[name] = string(data)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.profilesKey)
		if len(values) > 0 {
			pipe.HSet(ctx, s.profilesKey, values)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save profiles: %w", err)
	}
	return nil
}

// LoadModel reads the model key.
func (s *RedisStore) LoadModel(ctx context.Context) (*Model, error) {
	raw, err := s.client.Get(ctx, s.modelKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	var m Model
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse model: %w", err)
	}
	return &m, nil
}

// SaveModel writes the model key.
func (s *RedisStore) SaveModel(ctx context.Context, m *Model) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal model: %w", err)
	}
	if err := s.client.Set(ctx, s.modelKey, data, 0).Err(); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Verify RedisStore implements ProfileStore at compile time.
var _ ProfileStore = (*RedisStore)(nil)
