package cache

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/miradorstack/mirador-risk/internal/config"
)

func TestMemoryProviderRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryProvider()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}

	value := []byte("v1")
	if err := c.Set(ctx, "k", value, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	value[0] = 'x'

	got, err := c.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Fatalf("expected stored copy v1, got %q %v", got, err)
	}

	if err := c.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss after delete, got %v", err)
	}
}

func TestMemoryProviderExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemoryProvider()
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "short", []byte("a"), time.Second); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Set(ctx, "forever", []byte("b"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	now = now.Add(2 * time.Second)
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected expired entry, got %v", err)
	}
	if _, err := c.Get(ctx, "forever"); err != nil {
		t.Fatalf("expected non-expiring entry, got %v", err)
	}
}

func TestNoopProviderAlwaysMisses(t *testing.T) {
	ctx := context.Background()
	var p Provider = NoopProvider{}
	if err := p.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected miss, got %v", err)
	}
}

func TestNewValkeyProviderRequiresAddr(t *testing.T) {
	if _, err := NewValkeyProvider(ValkeyConfig{}); err == nil {
		t.Fatalf("expected error without addr")
	}
}

func TestRedisOptions(t *testing.T) {
	cfg := ValkeyConfig{Addr: "valkey.internal:6380", TLS: true}
	normaliseDurations(&cfg)
	opts := redisOptions(cfg)
	if opts.TLSConfig == nil || opts.TLSConfig.ServerName != "valkey.internal" {
		t.Fatalf("expected TLS server name from addr, got %+v", opts.TLSConfig)
	}
	if opts.DialTimeout != 2*time.Second || opts.MaxRetries != 1 {
		t.Fatalf("expected normalised defaults, got %v %d", opts.DialTimeout, opts.MaxRetries)
	}
}

func TestNewProviderModes(t *testing.T) {
	if _, ok := NewProvider(config.CacheConfig{Mode: config.CacheModeNone}, nil).(NoopProvider); !ok {
		t.Fatalf("expected noop provider for mode none")
	}

	p := NewProvider(config.CacheConfig{Mode: config.CacheModeMemory}, nil)
	ns, ok := p.(namespaced)
	if !ok {
		t.Fatalf("expected namespaced provider, got %T", p)
	}
	if _, ok := ns.Provider.(*MemoryProvider); !ok {
		t.Fatalf("expected memory backend, got %T", ns.Provider)
	}

	// Unreachable valkey falls back to memory.
	p = NewProvider(config.CacheConfig{Mode: config.CacheModeValkey, Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond}, slog.New(slog.DiscardHandler))
	if _, ok := p.(namespaced).Provider.(*MemoryProvider); !ok {
		t.Fatalf("expected memory fallback, got %T", p)
	}
}

func TestNamespacedPrefixesKeys(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryProvider()
	p := Namespaced(backend, "svc:")

	if err := p.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := backend.Get(ctx, "svc:k"); err != nil || string(got) != "v" {
		t.Fatalf("expected prefixed key in backend, got %q %v", got, err)
	}
	if got, err := p.Get(ctx, "k"); err != nil || string(got) != "v" {
		t.Fatalf("expected value through namespace, got %q %v", got, err)
	}
	if err := p.Del(ctx, "k"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, err := backend.Get(ctx, "svc:k"); !errors.Is(err, ErrCacheMiss) {
		t.Fatalf("expected delete through namespace, got %v", err)
	}
}
