package repo

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miradorstack/mirador-risk/internal/models"
)

const snapshotJSON = `{"traffic_count":1000,"error_rate":5,"uptime":99,"cpu_usage":40,"memory_usage":50,"disk_io":30,"concurrent_users":200}`

func TestFetchSnapshotCachesResults(t *testing.T) {
	var hits int32
	cacheStub := newStubCache()
	client := NewSnapshotClient(nil, time.Second, cacheStub, time.Minute, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		if req.Method != http.MethodGet {
			t.Fatalf("unexpected method: %s", req.Method)
		}
		if req.URL.Path != "/metrics/api" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, snapshotJSON), nil
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		snap, err := client.FetchSnapshot(ctx, "https://example.com/metrics/api")
		if err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
		if snap.ConcurrentUsers != 200 || snap.CPUUsage != 40 {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	}
	if hits != 1 {
		t.Fatalf("expected one upstream request, got %d", hits)
	}
	if cacheStub.sets != 1 {
		t.Fatalf("expected one cache write, got %d", cacheStub.sets)
	}
}

func TestFetchSnapshotWithoutTTLSkipsCache(t *testing.T) {
	var hits int32
	client := NewSnapshotClient(nil, time.Second, newStubCache(), 0, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		return jsonResponse(http.StatusOK, snapshotJSON), nil
	}))
	for i := 0; i < 2; i++ {
		if _, err := client.FetchSnapshot(context.Background(), "http://example.com/m"); err != nil {
			t.Fatalf("fetch: %v", err)
		}
	}
	if hits != 2 {
		t.Fatalf("expected two upstream requests, got %d", hits)
	}
}

func TestFetchSnapshotUpstreamStatus(t *testing.T) {
	client := NewSnapshotClient(nil, time.Second, nil, time.Minute, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusServiceUnavailable, "down"), nil
	}))

	_, err := client.FetchSnapshot(context.Background(), "https://example.com/metrics")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status %d", fetchErr.StatusCode)
	}
}

func TestFetchSnapshotTransportError(t *testing.T) {
	client := NewSnapshotClient(nil, time.Second, nil, 0, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	}))

	_, err := client.FetchSnapshot(context.Background(), "https://example.com/metrics")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestFetchSnapshotMalformedPayload(t *testing.T) {
	client := NewSnapshotClient(nil, time.Second, nil, 0, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"traffic_count":10}`), nil
	}))

	_, err := client.FetchSnapshot(context.Background(), "https://example.com/metrics")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	var verr *models.ValidationError
	if !errors.As(err, &verr) || len(verr.Missing) != 6 {
		t.Fatalf("expected wrapped ValidationError listing missing fields, got %v", err)
	}
}

func TestFetchSnapshotBodyLimit(t *testing.T) {
	client := NewSnapshotClient(nil, time.Second, nil, 0, 16)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, snapshotJSON), nil
	}))
	if _, err := client.FetchSnapshot(context.Background(), "https://example.com/metrics"); err == nil {
		t.Fatalf("expected body limit error")
	}
}

func TestFetchSnapshotInvalidURL(t *testing.T) {
	client := NewSnapshotClient(nil, time.Second, nil, 0, 0)
	for _, raw := range []string{"ftp://example.com/x", "not a url", "/relative/path", "http://"} {
		if _, err := client.FetchSnapshot(context.Background(), raw); !errors.Is(err, ErrInvalidURL) {
			t.Fatalf("%q: expected ErrInvalidURL, got %v", raw, err)
		}
	}
}

func TestFetchSnapshotDiscardsCorruptCache(t *testing.T) {
	cacheStub := newStubCache()
	cacheStub.store[cacheKey("https://example.com/metrics")] = []byte("{broken")
	var hits int32
	client := NewSnapshotClient(nil, time.Second, cacheStub, time.Minute, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&hits, 1)
		return jsonResponse(http.StatusOK, snapshotJSON), nil
	}))

	if _, err := client.FetchSnapshot(context.Background(), "https://example.com/metrics"); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if hits != 1 {
		t.Fatalf("expected refetch after corrupt cache entry, got %d hits", hits)
	}
}

func TestFetchSnapshotSharedFetchSurvivesCallerCancel(t *testing.T) {
	entered := make(chan struct{}, 4)
	release := make(chan struct{})
	client := NewSnapshotClient(nil, 5*time.Second, nil, 0, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		entered <- struct{}{}
		select {
		case <-release:
			return jsonResponse(http.StatusOK, snapshotJSON), nil
		case <-req.Context().Done():
			return nil, req.Context().Err()
		}
	}))

	const endpoint = "http://metrics.local/x"
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := client.FetchSnapshot(firstCtx, endpoint)
		firstErr <- err
	}()
	<-entered

	type result struct {
		snap models.MetricsSnapshot
		err  error
	}
	second := make(chan result, 1)
	go func() {
		snap, err := client.FetchSnapshot(context.Background(), endpoint)
		second <- result{snap, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancelled caller to get context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("cancelled caller did not return")
	}

	close(release)
	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("second caller failed after first was cancelled: %v", res.err)
		}
		if res.snap.ConcurrentUsers != 200 {
			t.Fatalf("unexpected snapshot: %+v", res.snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("second caller did not return")
	}
}

func TestFetchSnapshotSharedFetchHonoursClientTimeout(t *testing.T) {
	client := NewSnapshotClient(nil, 50*time.Millisecond, nil, 0, 0)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	}))

	_, err := client.FetchSnapshot(context.Background(), "http://metrics.local/slow")
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected FetchError wrapping deadline, got %v", err)
	}
}
