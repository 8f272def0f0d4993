package repo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/miradorstack/mirador-risk/internal/cache"
	"github.com/miradorstack/mirador-risk/internal/metrics"
	"github.com/miradorstack/mirador-risk/internal/models"
)

// ErrInvalidURL marks a metrics URL that cannot be fetched (bad syntax or scheme).
var ErrInvalidURL = errors.New("invalid metrics url")

// FetchError reports a failure to retrieve a snapshot from a remote metrics endpoint.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch metrics from %s: upstream returned %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch metrics from %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

const defaultMaxBodyBytes = 1 << 20

// SnapshotClient retrieves metrics snapshots from remote JSON endpoints.
type SnapshotClient struct {
	httpClient   *http.Client
	cache        cache.Provider
	timeout      time.Duration
	ttl          time.Duration
	maxBodyBytes int64
	group        singleflight.Group
	logger       *slog.Logger
}

// NewSnapshotClient constructs a client; cacheProvider may be nil to disable caching.
func NewSnapshotClient(logger *slog.Logger, timeout time.Duration, cacheProvider cache.Provider, ttl time.Duration, maxBodyBytes int64) *SnapshotClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if ttl < 0 {
		ttl = 0
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	return &SnapshotClient{
		httpClient:   &http.Client{Timeout: timeout},
		cache:        cacheProvider,
		timeout:      timeout,
		ttl:          ttl,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// FetchSnapshot GETs rawURL and decodes the response into a MetricsSnapshot. Concurrent calls
// for the same URL share one upstream request bounded by the client timeout; a caller whose ctx
// ends stops waiting without cancelling the request for the others. Successful results are
// cached for the TTL.
func (c *SnapshotClient) FetchSnapshot(ctx context.Context, rawURL string) (models.MetricsSnapshot, error) {
	if c == nil {
		return models.MetricsSnapshot{}, fmt.Errorf("snapshot client not initialised")
	}
	endpoint, err := ValidateURL(rawURL)
	if err != nil {
		return models.MetricsSnapshot{}, err
	}

	key := cacheKey(endpoint)
	if snap, ok := c.fromCache(ctx, key); ok {
		metrics.ObserveRemoteFetch(metrics.OutcomeCacheHit)
		return snap, nil
	}

	results := c.group.DoChan(endpoint, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.fetch(fetchCtx, endpoint)
	})
	select {
	case <-ctx.Done():
		metrics.ObserveRemoteFetch(metrics.OutcomeError)
		return models.MetricsSnapshot{}, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			metrics.ObserveRemoteFetch(metrics.OutcomeError)
			return models.MetricsSnapshot{}, res.Err
		}
		metrics.ObserveRemoteFetch(metrics.OutcomeSuccess)
		if res.Shared {
			c.logger.Debug("shared in-flight snapshot fetch", slog.String("url", endpoint))
		}
		return res.Val.(models.MetricsSnapshot), nil
	}
}

// ValidateURL checks that rawURL is an absolute http(s) URL and returns its canonical form.
func ValidateURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidURL)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: host is required", ErrInvalidURL)
	}
	return u.String(), nil
}

func (c *SnapshotClient) fetch(ctx context.Context, endpoint string) (models.MetricsSnapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return models.MetricsSnapshot{}, &FetchError{URL: endpoint, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.MetricsSnapshot{}, &FetchError{URL: endpoint, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.MetricsSnapshot{}, &FetchError{URL: endpoint, StatusCode: resp.StatusCode, Err: errors.New(resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes+1))
	if err != nil {
		return models.MetricsSnapshot{}, &FetchError{URL: endpoint, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > c.maxBodyBytes {
		return models.MetricsSnapshot{}, &FetchError{URL: endpoint, Err: fmt.Errorf("response exceeds %d bytes", c.maxBodyBytes)}
	}

	snap, err := models.DecodeSnapshot(body)
	if err != nil {
		return models.MetricsSnapshot{}, &FetchError{URL: endpoint, Err: err}
	}

	if c.ttl > 0 {
		if err := c.cache.Set(ctx, cacheKey(endpoint), body, c.ttl); err != nil {
			c.logger.Warn("snapshot cache set failed", slog.String("url", endpoint), slog.Any("error", err))
		}
	}
	return snap, nil
}

func (c *SnapshotClient) fromCache(ctx context.Context, key string) (models.MetricsSnapshot, bool) {
	if c.ttl <= 0 {
		return models.MetricsSnapshot{}, false
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			c.logger.Warn("snapshot cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		return models.MetricsSnapshot{}, false
	}
	snap, err := models.DecodeSnapshot(data)
	if err != nil {
		c.logger.Warn("discarding corrupt cached snapshot", slog.String("key", key), slog.Any("error", err))
		_ = c.cache.Del(ctx, key)
		return models.MetricsSnapshot{}, false
	}
	return snap, true
}

func cacheKey(endpoint string) string {
	return "snapshot:" + endpoint
}
