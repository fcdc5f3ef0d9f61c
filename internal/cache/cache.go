// Package cache provides the advisory read-through cache used by the panel
// assembler. A cache never decides correctness: any failure is reported to
// the caller, which logs it and falls back to disk.
package cache

import (
	"context"
	"log/slog"
	"time"

	"mdwarehouse/internal/config"
)

// Cache stores opaque byte values by key. Implementations are safe for
// concurrent use.
type Cache interface {
	// Get returns the value and true on a hit, false on a miss
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores a value; a zero ttl never expires
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New returns the cache selected by cfg. A Redis backend that cannot be
// reached falls back to an in-memory cache.
func New(cfg config.CacheConfig, logger *slog.Logger) Cache {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Backend {
	case "memory":
		logger.Info("Using in-memory panel cache", slog.Duration("ttl", cfg.TTL))
		return NewMemoryCache(DefaultMaxEntries)
	case "redis":
		rc, err := NewRedisCache(cfg.Redis)
		if err != nil {
			logger.Warn("Redis cache unavailable, falling back to memory",
				slog.String("addr", cfg.Redis.Addr),
				slog.String("error", err.Error()))
			return NewMemoryCache(DefaultMaxEntries)
		}
		logger.Info("Using Redis panel cache",
			slog.String("addr", cfg.Redis.Addr),
			slog.Int("db", cfg.Redis.DB))
		return rc
	default:
		return NoopCache{}
	}
}

// NoopCache never stores anything
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, nil }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (NoopCache) Delete(context.Context, string) error                     { return nil }
func (NoopCache) Close() error                                             { return nil }
