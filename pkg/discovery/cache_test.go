package discovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeClock is a manually advanced clock for freshness tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(timeout time.Duration) (*URLCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewURLCache(timeout, true)
	cache.now = clock.Now
	return cache, clock
}

func staticFetch(url string, calls *int32) FetchFunc {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return url, nil
	}
}

func failingFetch(err error, calls *int32) FetchFunc {
	return func(context.Context) (string, error) {
		atomic.AddInt32(calls, 1)
		return "", err
	}
}

func TestNewURLCache_DefaultTimeout(t *testing.T) {
	if got := NewURLCache(0, false).Timeout(); got != DefaultCacheTimeout {
		t.Errorf("Timeout() = %v, want %v", got, DefaultCacheTimeout)
	}
	if DefaultCacheTimeout != 43200*time.Second {
		t.Errorf("DefaultCacheTimeout = %v, want 12h", DefaultCacheTimeout)
	}
}

func TestURLCache_EmptyKey(t *testing.T) {
	cache, _ := newTestCache(time.Minute)
	var calls int32

	_, err := cache.Resolve(context.Background(), "", staticFetch("https://x", &calls))
	if !errors.Is(err, ErrEmptyKey) {
		t.Errorf("Expected ErrEmptyKey, got %v", err)
	}
	if calls != 0 {
		t.Errorf("fetch called %d times for empty key", calls)
	}
}

func TestURLCache_Freshness(t *testing.T) {
	cache, clock := newTestCache(time.Hour)
	ctx := context.Background()
	var calls int32

	url, err := cache.Resolve(ctx, "bpn", staticFetch("https://first", &calls))
	if err != nil || url != "https://first" {
		t.Fatalf("Resolve() = %q, %v", url, err)
	}

	// Within the timeout, including the boundary, the fetch is skipped.
	for _, step := range []time.Duration{time.Minute, 30 * time.Minute, 29 * time.Minute} {
		clock.Advance(step)
		url, err := cache.Resolve(ctx, "bpn", staticFetch("https://second", &calls))
		if err != nil || url != "https://first" {
			t.Errorf("Resolve() = %q, %v; want cached https://first", url, err)
		}
	}

	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}

	// Past the timeout a refresh happens.
	clock.Advance(time.Second)
	url, _ = cache.Resolve(ctx, "bpn", staticFetch("https://second", &calls))
	if url != "https://second" || calls != 2 {
		t.Errorf("Resolve() after expiry = %q (calls %d), want https://second (calls 2)", url, calls)
	}
}

func TestURLCache_StaleFallbackAndRecovery(t *testing.T) {
	cache, clock := newTestCache(time.Hour)
	ctx := context.Background()
	var calls int32

	if _, err := cache.Resolve(ctx, "bpn", staticFetch("https://old", &calls)); err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	clock.Advance(2 * time.Hour)

	url, err := cache.Resolve(ctx, "bpn", failingFetch(errors.New("connection refused"), &calls))
	if err != nil {
		t.Fatalf("Expected stale fallback, got error %v", err)
	}
	if url != "https://old" {
		t.Errorf("Resolve() = %q, want https://old", url)
	}

	// The stale entry is retained, not refreshed.
	entry, ok := cache.Entry("bpn")
	if !ok || entry.URL != "https://old" {
		t.Errorf("Entry() = %+v, %v", entry, ok)
	}

	url, err = cache.Resolve(ctx, "bpn", staticFetch("https://new", &calls))
	if err != nil || url != "https://new" {
		t.Fatalf("Resolve() = %q, %v; want https://new", url, err)
	}

	// Fresh again: the new URL is served without fetching.
	clock.Advance(time.Minute)
	url, _ = cache.Resolve(ctx, "bpn", failingFetch(errors.New("unused"), &calls))
	if url != "https://new" {
		t.Errorf("Resolve() = %q, want https://new", url)
	}
	if calls != 3 {
		t.Errorf("fetch called %d times, want 3", calls)
	}
}

func TestURLCache_NoFallback(t *testing.T) {
	cache, _ := newTestCache(time.Hour)
	var calls int32
	fetchErr := errors.New("finder returned 503")

	url, err := cache.Resolve(context.Background(), "bpn", failingFetch(fetchErr, &calls))
	if err == nil {
		t.Fatalf("Expected error, got url %q", url)
	}
	if !errors.Is(err, fetchErr) {
		t.Errorf("error %v should wrap the fetch error", err)
	}
	if !errors.Is(err, ErrDiscoveryUnavailable) {
		t.Errorf("error %v should wrap ErrDiscoveryUnavailable", err)
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d, failed fetch must not create an entry", cache.Len())
	}
}

func TestURLCache_EmptyURLIsFailure(t *testing.T) {
	cache, _ := newTestCache(time.Hour)
	var calls int32

	_, err := cache.Resolve(context.Background(), "bpn", staticFetch("", &calls))
	if !errors.Is(err, ErrDiscoveryUnavailable) {
		t.Errorf("Expected ErrDiscoveryUnavailable for empty url, got %v", err)
	}
	if cache.Len() != 0 {
		t.Error("empty url must not be cached")
	}
}

func TestURLCache_KeysAreIndependent(t *testing.T) {
	cache, _ := newTestCache(time.Hour)
	ctx := context.Background()
	var calls int32

	a, _ := cache.Resolve(ctx, "bpn", staticFetch("https://connector-discovery", &calls))
	b, _ := cache.Resolve(ctx, "manufacturerPartId", staticFetch("https://bpn-discovery", &calls))

	if a != "https://connector-discovery" || b != "https://bpn-discovery" {
		t.Errorf("Resolve() = %q, %q", a, b)
	}
	if cache.Len() != 2 || calls != 2 {
		t.Errorf("Len() = %d, calls = %d; want 2, 2", cache.Len(), calls)
	}
}

func TestURLCache_TwoResolvesOneFetch(t *testing.T) {
	cache := NewURLCache(DefaultCacheTimeout, false)
	ctx := context.Background()
	var calls int32

	for i := 0; i < 2; i++ {
		url, err := cache.Resolve(ctx, "bpn", staticFetch("https://discovery", &calls))
		if err != nil || url != "https://discovery" {
			t.Fatalf("Resolve() = %q, %v", url, err)
		}
	}

	if calls != 1 {
		t.Errorf("fetch called %d times, want 1", calls)
	}
}

func TestURLCache_ConcurrentRefreshSharesFetch(t *testing.T) {
	cache := NewURLCache(time.Hour, false)
	ctx := context.Background()

	var calls int32
	release := make(chan struct{})
	fetch := func(context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "https://discovery", nil
	}

	const callers = 10
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Resolve(ctx, "bpn", fetch)
		}(i)
	}

	// Let the callers pile up on the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i, url := range results {
		if url != "https://discovery" {
			t.Errorf("results[%d] = %q", i, url)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("fetch called %d times, want 1", got)
	}
}

func TestURLCache_ReadsDoNotBlockOnFetch(t *testing.T) {
	cache, clock := newTestCache(time.Hour)
	ctx := context.Background()
	var calls int32

	cache.Resolve(ctx, "bpn", staticFetch("https://bpn", &calls))
	clock.Advance(2 * time.Hour)

	// A slow refresh of one key must not block lookups of another.
	block := make(chan struct{})
	go cache.Resolve(ctx, "bpn", func(context.Context) (string, error) {
		<-block
		return "https://bpn-new", nil
	})
	defer close(block)

	cache.Resolve(ctx, "other", staticFetch("https://other", &calls))

	done := make(chan struct{})
	go func() {
		cache.Resolve(ctx, "other", staticFetch("https://unused", &calls))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Resolve of a fresh key blocked behind an in-flight fetch")
	}
}

func TestURLCache_CancelledCallerDoesNotFailWaiters(t *testing.T) {
	cache := NewURLCache(time.Hour, false)

	started := make(chan struct{})
	release := make(chan struct{})
	fetchErr := make(chan error, 1)
	fetchA := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		fetchErr <- ctx.Err()
		return "https://connector-discovery", nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cache.Resolve(ctxA, "bpn", fetchA)
		errA <- err
	}()
	<-started

	type result struct {
		url string
		err error
	}
	resB := make(chan result, 1)
	var callsB int32
	go func() {
		url, err := cache.Resolve(context.Background(), "bpn", staticFetch("https://unused", &callsB))
		resB <- result{url, err}
	}()

	// Let caller B join the in-flight refresh before A gives up.
	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrDiscoveryUnavailable) {
			t.Errorf("caller A error = %v, want ErrDiscoveryUnavailable wrapping context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("cancelled caller did not return")
	}

	close(release)

	select {
	case got := <-resB:
		if got.err != nil || got.url != "https://connector-discovery" {
			t.Errorf("caller B Resolve() = %q, %v", got.url, got.err)
		}
	case <-time.After(time.Second):
		t.Fatal("caller B did not return")
	}

	if err := <-fetchErr; err != nil {
		t.Errorf("shared fetch saw context error %v", err)
	}
	if atomic.LoadInt32(&callsB) != 0 {
		t.Error("caller B should share the in-flight fetch")
	}
	if entry, ok := cache.Entry("bpn"); !ok || entry.URL != "https://connector-discovery" {
		t.Errorf("Entry() = %+v, %v", entry, ok)
	}
}

func TestURLCache_FreshInsideRefreshCountsAsHit(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cache := NewURLCache(time.Hour, false)
	cache.entries["bpn"] = CacheEntry{URL: "https://bpn", FetchedAt: base}

	// The first freshness check sees the entry expired. By the time the
	// refresh runs, another caller has stored it again.
	var nowCalls int32
	cache.now = func() time.Time {
		if atomic.AddInt32(&nowCalls, 1) == 1 {
			return base.Add(2 * time.Hour)
		}
		return base
	}

	hits := promtestutil.ToFloat64(cacheLookups.WithLabelValues("hit"))
	refreshed := promtestutil.ToFloat64(cacheLookups.WithLabelValues("refreshed"))

	var calls int32
	url, err := cache.Resolve(context.Background(), "bpn", staticFetch("https://unused", &calls))
	if err != nil || url != "https://bpn" {
		t.Fatalf("Resolve() = %q, %v", url, err)
	}
	if calls != 0 {
		t.Errorf("fetch called %d times, want 0", calls)
	}
	if got := promtestutil.ToFloat64(cacheLookups.WithLabelValues("hit")) - hits; got != 1 {
		t.Errorf("hit lookups += %v, want 1", got)
	}
	if got := promtestutil.ToFloat64(cacheLookups.WithLabelValues("refreshed")) - refreshed; got != 0 {
		t.Errorf("refreshed lookups += %v, want 0", got)
	}
}
