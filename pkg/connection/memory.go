package connection

import (
	"context"
	"sync"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/rs/zerolog"
)

const backendMemory = "memory"

var _ Manager = (*MemoryManager)(nil)

// MemoryManager is a process-local Manager. One mutex guards every operation
// for its full duration; no operation performs I/O.
type MemoryManager struct {
	opts   Options
	logger zerolog.Logger

	mu      sync.Mutex
	entries map[Key]Entry
	count   int
}

// NewMemoryManager creates an empty in-memory connection cache. Zero-valued
// fields of opts fall back to DefaultOptions.
func NewMemoryManager(opts Options) *MemoryManager {
	return &MemoryManager{
		opts:    opts.withDefaults(),
		logger:  logging.NewLogger(logging.ComponentConnection).With().Str("backend", backendMemory).Logger(),
		entries: make(map[Key]Entry),
	}
}

// Put stores a sanitized deep copy of entry under key. Overwriting an
// existing key replaces the entry without changing the count.
func (m *MemoryManager) Put(_ context.Context, key Key, entry Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved, transferID, err := m.opts.sanitize(entry)
	if err != nil {
		CacheOperations.WithLabelValues(backendMemory, "put", "error").Inc()
		return "", err
	}

	result := "replaced"
	if _, exists := m.entries[key]; !exists {
		m.count++
		result = "stored"
	}
	m.entries[key] = saved

	CacheOperations.WithLabelValues(backendMemory, "put", result).Inc()
	CacheEntries.WithLabelValues(backendMemory).Set(float64(m.count))

	m.logger.Debug().
		Str("counter_party_id", key.CounterPartyID).
		Str("transfer_id", transferID).
		Int("entries", m.count).
		Msg("Connection entry saved")

	return transferID, nil
}

// Get returns a deep copy of the entry stored under key.
func (m *MemoryManager) Get(_ context.Context, key Key) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[key]
	if !ok {
		CacheOperations.WithLabelValues(backendMemory, "get", "miss").Inc()
		return nil, false, nil
	}

	copied, err := deepCopy(stored)
	if err != nil {
		CacheOperations.WithLabelValues(backendMemory, "get", "error").Inc()
		return nil, false, err
	}
	CacheOperations.WithLabelValues(backendMemory, "get", "hit").Inc()
	return copied, true, nil
}

// TransferID returns the transfer id of the entry stored under key.
func (m *MemoryManager) TransferID(_ context.Context, key Key) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.entries[key]
	if !ok {
		CacheOperations.WithLabelValues(backendMemory, "get", "miss").Inc()
		return "", false, nil
	}
	CacheOperations.WithLabelValues(backendMemory, "get", "hit").Inc()

	id, ok := transferID(stored, m.opts.TransferIDKey)
	return id, ok, nil
}

// Delete removes the entry stored under key and reports whether one existed.
func (m *MemoryManager) Delete(_ context.Context, key Key) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok {
		CacheOperations.WithLabelValues(backendMemory, "delete", "miss").Inc()
		m.logger.Debug().Str("key", key.String()).Msg("No connection entry to delete")
		return false, nil
	}

	delete(m.entries, key)
	m.count--

	CacheOperations.WithLabelValues(backendMemory, "delete", "deleted").Inc()
	CacheEntries.WithLabelValues(backendMemory).Set(float64(m.count))

	m.logger.Debug().Str("key", key.String()).Int("entries", m.count).Msg("Connection entry deleted")
	return true, nil
}

// Count returns the number of stored entries.
func (m *MemoryManager) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count, nil
}

// TransferIDKey returns the configured transfer id field.
func (m *MemoryManager) TransferIDKey() string {
	return m.opts.TransferIDKey
}
