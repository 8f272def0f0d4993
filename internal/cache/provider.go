package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-risk/internal/config"
)

// Provider is the byte-oriented cache used for remotely fetched snapshots.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found or has expired.
var ErrCacheMiss = errors.New("cache miss")

// NewProvider selects a backend for cfg.Mode. An unreachable Valkey falls back to the in-memory
// cache so the service can still start. Keys are namespaced under "mirador-risk:".
func NewProvider(cfg config.CacheConfig, logger *slog.Logger) Provider {
	if logger == nil {
		logger = slog.Default()
	}
	var p Provider
	switch cfg.Mode {
	case config.CacheModeValkey:
		valkey, err := NewValkeyProvider(ValkeyConfig{
			Addr:         cfg.Addr,
			Username:     cfg.Username,
			Password:     cfg.Password,
			DB:           cfg.DB,
			DialTimeout:  cfg.DialTimeout,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			MaxRetries:   cfg.MaxRetries,
			TLS:          cfg.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back to in-memory cache", slog.Any("error", err))
			p = NewMemoryProvider()
		} else {
			logger.Info("using valkey snapshot cache", slog.String("addr", cfg.Addr))
			p = valkey
		}
	case config.CacheModeMemory:
		p = NewMemoryProvider()
	default:
		return NoopProvider{}
	}
	return Namespaced(p, "mirador-risk:")
}

type namespaced struct {
	Provider
	prefix string
}

// Namespaced prefixes every key passed to p.
func Namespaced(p Provider, prefix string) Provider {
	if prefix == "" {
		return p
	}
	return namespaced{Provider: p, prefix: prefix}
}

func (n namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.Provider.Get(ctx, n.prefix+key)
}

func (n namespaced) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return n.Provider.Set(ctx, n.prefix+key, value, ttl)
}

func (n namespaced) Del(ctx context.Context, key string) error {
	return n.Provider.Del(ctx, n.prefix+key)
}

// NoopProvider never stores data.
type NoopProvider struct{}

func (NoopProvider) Get(context.Context, string) ([]byte, error) { return nil, ErrCacheMiss }

func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (NoopProvider) Del(context.Context, string) error { return nil }

func (NoopProvider) Close() error { return nil }
