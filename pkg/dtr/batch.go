package dtr

import (
	"context"
	"sync"
	"time"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var (
	batchFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tractusx_dtr_batch_fetch_duration_seconds",
		Help:    "Duration of shell descriptor batch fetches",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})

	batchFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tractusx_dtr_batch_fetched_total",
		Help: "Shell descriptors fetched in batches by result",
	}, []string{"result"})
)

// BatchConfig holds batch fetcher configuration.
type BatchConfig struct {
	// MaxConcurrency is the maximum number of parallel requests.
	MaxConcurrency int

	// Timeout per descriptor fetch.
	Timeout time.Duration

	// BPN is sent with every request.
	BPN string
}

// DefaultBatchConfig returns a configuration suited to registries behind a
// connector data plane.
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxConcurrency: 10,
		Timeout:        15 * time.Second,
	}
}

// ShellFetcher fetches a single shell descriptor. *Client implements it.
type ShellFetcher interface {
	FetchShellDescriptor(ctx context.Context, id, bpn string) (ShellDescriptor, error)
}

// BatchResult holds the descriptors fetched by id and the failures by id.
type BatchResult struct {
	Shells map[string]ShellDescriptor
	Errors map[string]error
}

// BatchFetcher fetches many shell descriptors in parallel.
type BatchFetcher struct {
	fetcher ShellFetcher
	config  BatchConfig
	logger  zerolog.Logger
}

// NewBatchFetcher creates a new batch fetcher.
func NewBatchFetcher(fetcher ShellFetcher, config BatchConfig) *BatchFetcher {
	defaults := DefaultBatchConfig()
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = defaults.MaxConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}

	return &BatchFetcher{
		fetcher: fetcher,
		config:  config,
		logger:  logging.NewLogger(logging.ComponentDTR),
	}
}

// FetchShellDescriptors fetches every id with at most MaxConcurrency
// requests in flight. A failed id does not stop the others; the returned
// error is only set when ctx ends before all ids were attempted.
func (bf *BatchFetcher) FetchShellDescriptors(ctx context.Context, ids []string) (BatchResult, error) {
	start := time.Now()
	defer func() {
		batchFetchDuration.Observe(time.Since(start).Seconds())
	}()

	result := BatchResult{
		Shells: make(map[string]ShellDescriptor, len(ids)),
		Errors: make(map[string]error),
	}
	var mu sync.Mutex

	bf.logger.Info().
		Int("shells", len(ids)).
		Int("concurrency", bf.config.MaxConcurrency).
		Msg("Starting parallel shell fetch")

	var g errgroup.Group
	g.SetLimit(bf.config.MaxConcurrency)

	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		if ctx.Err() != nil {
			break
		}

		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(ctx, bf.config.Timeout)
			shell, err := bf.fetcher.FetchShellDescriptor(fetchCtx, id, bf.config.BPN)
			cancel()

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				batchFetchedTotal.WithLabelValues("error").Inc()
				bf.logger.Warn().Err(err).Str("shell_id", id).Msg("Shell fetch failed")
				result.Errors[id] = err
				return nil
			}
			batchFetchedTotal.WithLabelValues("success").Inc()
			result.Shells[id] = shell
			return nil
		})
	}
	_ = g.Wait()

	bf.logger.Info().
		Int("fetched", len(result.Shells)).
		Int("failed", len(result.Errors)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}
