package dtr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeFetcher struct {
	delay    time.Duration
	fail     map[string]bool
	inFlight int32
	peak     int32
	calls    int32

	mu   sync.Mutex
	bpns []string
}

func (f *fakeFetcher) FetchShellDescriptor(ctx context.Context, id, bpn string) (ShellDescriptor, error) {
	atomic.AddInt32(&f.calls, 1)
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.peak)
		if n <= peak || atomic.CompareAndSwapInt32(&f.peak, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.bpns = append(f.bpns, bpn)
	f.mu.Unlock()

	select {
	case <-time.After(f.delay):
	case <-ctx.Done():
		return ShellDescriptor{}, ctx.Err()
	}
	if f.fail[id] {
		return ShellDescriptor{}, errors.New("registry unavailable")
	}
	return ShellDescriptor{ID: id}, nil
}

func shellIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("urn:uuid:shell-%d", i)
	}
	return ids
}

func TestNewBatchFetcher_Defaults(t *testing.T) {
	bf := NewBatchFetcher(&fakeFetcher{}, BatchConfig{})
	if bf.config.MaxConcurrency != 10 {
		t.Errorf("MaxConcurrency = %d, want 10", bf.config.MaxConcurrency)
	}
	if bf.config.Timeout != 15*time.Second {
		t.Errorf("Timeout = %v, want 15s", bf.config.Timeout)
	}
}

func TestBatchFetcher_FetchShellDescriptors(t *testing.T) {
	fetcher := &fakeFetcher{delay: 5 * time.Millisecond}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 3, BPN: "BPNL000000000002"})

	ids := shellIDs(20)
	result, err := bf.FetchShellDescriptors(context.Background(), append(ids, ids[0]))
	if err != nil {
		t.Fatalf("FetchShellDescriptors failed: %v", err)
	}

	if len(result.Shells) != 20 || len(result.Errors) != 0 {
		t.Errorf("shells = %d, errors = %d; want 20, 0", len(result.Shells), len(result.Errors))
	}
	if result.Shells[ids[7]].ID != ids[7] {
		t.Errorf("shell %s missing", ids[7])
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls != 20 {
		t.Errorf("calls = %d, want 20 (duplicates fetched once)", calls)
	}
	if peak := atomic.LoadInt32(&fetcher.peak); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
	for _, bpn := range fetcher.bpns {
		if bpn != "BPNL000000000002" {
			t.Fatalf("bpn = %q", bpn)
		}
	}
}

func TestBatchFetcher_PartialFailure(t *testing.T) {
	ids := shellIDs(6)
	fetcher := &fakeFetcher{fail: map[string]bool{ids[1]: true, ids[4]: true}}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 2})

	result, err := bf.FetchShellDescriptors(context.Background(), ids)
	if err != nil {
		t.Fatalf("FetchShellDescriptors failed: %v", err)
	}
	if len(result.Shells) != 4 || len(result.Errors) != 2 {
		t.Errorf("shells = %d, errors = %d; want 4, 2", len(result.Shells), len(result.Errors))
	}
	if result.Errors[ids[1]] == nil || result.Errors[ids[4]] == nil {
		t.Errorf("errors = %v", result.Errors)
	}
}

func TestBatchFetcher_Timeout(t *testing.T) {
	fetcher := &fakeFetcher{delay: time.Second}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 2, Timeout: 10 * time.Millisecond})

	result, err := bf.FetchShellDescriptors(context.Background(), shellIDs(2))
	if err != nil {
		t.Fatalf("FetchShellDescriptors failed: %v", err)
	}
	for id, fetchErr := range result.Errors {
		if !errors.Is(fetchErr, context.DeadlineExceeded) {
			t.Errorf("error for %s = %v, want deadline exceeded", id, fetchErr)
		}
	}
	if len(result.Errors) != 2 {
		t.Errorf("errors = %d, want 2", len(result.Errors))
	}
}

func TestBatchFetcher_ContextCancelled(t *testing.T) {
	fetcher := &fakeFetcher{delay: time.Second}
	bf := NewBatchFetcher(fetcher, BatchConfig{MaxConcurrency: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	result, err := bf.FetchShellDescriptors(ctx, shellIDs(50))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if len(result.Shells) != 0 {
		t.Errorf("shells = %d, want 0", len(result.Shells))
	}
	if calls := atomic.LoadInt32(&fetcher.calls); calls >= 50 {
		t.Errorf("calls = %d, cancelled batch must stop scheduling", calls)
	}
}
