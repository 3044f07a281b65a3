package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// DefaultCacheTimeout is how long a resolved discovery URL stays fresh.
const DefaultCacheTimeout = 12 * time.Hour

var (
	// ErrDiscoveryUnavailable is returned when a URL cannot be refreshed and
	// no previously resolved URL exists to fall back to.
	ErrDiscoveryUnavailable = errors.New("discovery service unavailable")

	// ErrEmptyKey is returned when Resolve is called without a discovery key.
	ErrEmptyKey = errors.New("discovery key is required")

	errEmptyURL = errors.New("fetch returned an empty url")
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tractusx_discovery_cache_lookups_total",
		Help: "Discovery URL cache lookups by result",
	}, []string{"result"}) // "hit", "refreshed", "stale", "error"

	cacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tractusx_discovery_cache_entries",
		Help: "Number of discovery keys with a resolved URL",
	})
)

// FetchFunc resolves the current URL for one discovery key.
type FetchFunc func(ctx context.Context) (string, error)

// CacheEntry is a resolved discovery URL and when it was fetched.
type CacheEntry struct {
	URL       string
	FetchedAt time.Time
}

// URLCache memoizes discovery key → URL mappings. Stale entries are kept as
// a fallback and only replaced by a successful refresh.
//
// The map lock is never held while fetching. Concurrent refreshes of the same
// key share one fetch.
type URLCache struct {
	timeout time.Duration
	logger  zerolog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]CacheEntry
	group   singleflight.Group
}

// NewURLCache creates an empty cache. A non-positive timeout selects
// DefaultCacheTimeout. Log output is emitted only when verbose is set.
func NewURLCache(timeout time.Duration, verbose bool) *URLCache {
	if timeout <= 0 {
		timeout = DefaultCacheTimeout
	}
	return &URLCache{
		timeout: timeout,
		logger:  logging.Verbose(logging.NewLogger(logging.ComponentDiscovery), verbose),
		now:     time.Now,
		entries: make(map[string]CacheEntry),
	}
}

// Timeout returns the freshness window.
func (c *URLCache) Timeout() time.Duration {
	return c.timeout
}

// Resolve returns the URL for key, calling fetch when the cached entry is
// missing or older than the timeout. If fetch fails and an entry exists, the
// stale URL is returned without error. Otherwise the error wraps both
// ErrDiscoveryUnavailable and the fetch error.
func (c *URLCache) Resolve(ctx context.Context, key string, fetch FetchFunc) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	entry, ok := c.lookup(key)
	if ok && c.fresh(entry) {
		cacheLookups.WithLabelValues("hit").Inc()
		c.logger.Debug().
			Str("key", key).
			Str("url", entry.URL).
			Time("valid_until", entry.FetchedAt.Add(c.timeout)).
			Msg("Using cached discovery URL")
		return entry.URL, nil
	}

	var err error
	select {
	case res := <-c.refresh(ctx, key, fetch):
		if res.Err == nil {
			r := res.Val.(refreshResult)
			if r.cached {
				cacheLookups.WithLabelValues("hit").Inc()
			} else {
				cacheLookups.WithLabelValues("refreshed").Inc()
			}
			return r.url, nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	if ok {
		cacheLookups.WithLabelValues("stale").Inc()
		c.logger.Warn().
			Err(err).
			Str("key", key).
			Str("url", entry.URL).
			Msg("Failed to refresh discovery URL, using cached version")
		return entry.URL, nil
	}

	cacheLookups.WithLabelValues("error").Inc()
	return "", fmt.Errorf("%w: key %q: %w", ErrDiscoveryUnavailable, key, err)
}

// refreshResult is the value shared by the callers of one refresh. cached is
// set when another refresh stored a fresh URL before this one started.
type refreshResult struct {
	url    string
	cached bool
}

// refresh fetches key once for all concurrent callers. The fetch runs
// detached from the cancellation of the caller that started it, so callers
// that give up do not fail the ones still waiting.
func (c *URLCache) refresh(ctx context.Context, key string, fetch FetchFunc) <-chan singleflight.Result {
	fetchCtx := context.WithoutCancel(ctx)
	return c.group.DoChan(key, func() (any, error) {
		if current, ok := c.lookup(key); ok && c.fresh(current) {
			return refreshResult{url: current.URL, cached: true}, nil
		}

		url, err := fetch(fetchCtx)
		if err == nil && url == "" {
			err = errEmptyURL
		}
		if err != nil {
			return nil, err
		}

		c.store(key, url)
		return refreshResult{url: url}, nil
	})
}

// Entry returns the cached entry for key regardless of freshness.
func (c *URLCache) Entry(key string) (CacheEntry, bool) {
	return c.lookup(key)
}

// Len returns the number of cached keys.
func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *URLCache) lookup(key string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	return entry, ok
}

func (c *URLCache) fresh(entry CacheEntry) bool {
	return c.now().Sub(entry.FetchedAt) <= c.timeout
}

func (c *URLCache) store(key, url string) {
	now := c.now()

	c.mu.Lock()
	c.entries[key] = CacheEntry{URL: url, FetchedAt: now}
	count := len(c.entries)
	c.mu.Unlock()

	cacheEntries.Set(float64(count))
	c.logger.Info().
		Str("key", key).
		Str("url", url).
		Int("cached_urls", count).
		Time("valid_until", now.Add(c.timeout)).
		Msg("Updated discovery URL cache")
}
