package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/rashenal/navigator/pkg/logging"
	"github.com/rashenal/navigator/pkg/models"
)

// ConfigKey is the fixed process-wide settings key.
const ConfigKey = "navigator:optimization_config"

// KV is the narrow slice of the Redis client the store needs.
type KV interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
}

// Store persists OptimizationConfig under the fixed key. The in-memory
// config stays authoritative when persistence fails; the next Save retries.
type Store struct {
	kv     KV
	logger logging.Logger
}

func New(kv KV, logger logging.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Load returns the persisted config merged over defaults. A missing key or
// an unreadable payload yields pure defaults without error; only transport
// failures are reported.
func (s *Store) Load(ctx context.Context) (models.OptimizationConfig, error) {
	cfg := models.DefaultOptimizationConfig()

	payload, err := s.kv.Get(ctx, ConfigKey).Result()
	if err == goredis.Nil {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("load optimization config: %w", err)
	}

	// Unmarshal over the defaults struct so absent fields keep default
	// values.
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		s.logger.WithError(err).Warn("Persisted optimization config unreadable; using defaults")
		return models.DefaultOptimizationConfig(), nil
	}
	return cfg, nil
}

// Save persists the config. No TTL: settings survive until overwritten.
func (s *Store) Save(ctx context.Context, cfg models.OptimizationConfig) error {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal optimization config: %w", err)
	}
	if err := s.kv.Set(ctx, ConfigKey, payload, 0).Err(); err != nil {
		return fmt.Errorf("persist optimization config: %w", err)
	}
	return nil
}
