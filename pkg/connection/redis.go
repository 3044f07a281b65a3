package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/eclipse-tractusx/tractusx-sdk-go/pkg/logging"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const backendRedis = "redis"

var _ Manager = (*RedisManager)(nil)

// DefaultRedisHash is the Redis hash holding all connection entries.
const DefaultRedisHash = "tractusx:edr"

// RedisManager is a Manager backed by a single Redis hash. Each field is a
// Key string and each value the JSON-encoded entry, so Count is HLEN and
// stays exact across replicas.
type RedisManager struct {
	redis  *redis.Client
	hash   string
	opts   Options
	logger zerolog.Logger
}

// NewRedisManager creates a connection cache stored in hash (DefaultRedisHash
// when empty).
func NewRedisManager(redisClient *redis.Client, hash string, opts Options) *RedisManager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if hash == "" {
		hash = DefaultRedisHash
	}
	return &RedisManager{
		redis:  redisClient,
		hash:   hash,
		opts:   opts.withDefaults(),
		logger: logging.NewLogger(logging.ComponentConnection).With().Str("backend", backendRedis).Logger(),
	}
}

// Put stores the sanitized entry. HSETNX decides whether the key is new;
// an existing field is overwritten with HSET.
func (m *RedisManager) Put(ctx context.Context, key Key, entry Entry) (string, error) {
	saved, transferID, err := m.opts.sanitize(entry)
	if err != nil {
		CacheOperations.WithLabelValues(backendRedis, "put", "error").Inc()
		return "", err
	}

	data, err := json.Marshal(saved)
	if err != nil {
		CacheOperations.WithLabelValues(backendRedis, "put", "error").Inc()
		return "", fmt.Errorf("marshal connection entry: %w", err)
	}

	field := key.String()
	created, err := m.redis.HSetNX(ctx, m.hash, field, data).Result()
	if err != nil {
		CacheOperations.WithLabelValues(backendRedis, "put", "error").Inc()
		return "", fmt.Errorf("redis hsetnx: %w", err)
	}

	if !created {
		if err := m.redis.HSet(ctx, m.hash, field, data).Err(); err != nil {
			CacheOperations.WithLabelValues(backendRedis, "put", "error").Inc()
			return "", fmt.Errorf("redis hset: %w", err)
		}
		CacheOperations.WithLabelValues(backendRedis, "put", "replaced").Inc()
	} else {
		CacheOperations.WithLabelValues(backendRedis, "put", "stored").Inc()
		m.syncEntries(ctx)
	}

	m.logger.Debug().
		Str("counter_party_id", key.CounterPartyID).
		Str("transfer_id", transferID).
		Bool("created", created).
		Msg("Connection entry saved")

	return transferID, nil
}

// Get returns the entry stored under key.
func (m *RedisManager) Get(ctx context.Context, key Key) (Entry, bool, error) {
	data, err := m.redis.HGet(ctx, m.hash, key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheOperations.WithLabelValues(backendRedis, "get", "miss").Inc()
			return nil, false, nil
		}
		CacheOperations.WithLabelValues(backendRedis, "get", "error").Inc()
		return nil, false, fmt.Errorf("redis hget: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheOperations.WithLabelValues(backendRedis, "get", "error").Inc()
		return nil, false, fmt.Errorf("decode connection entry %s: %w", key, err)
	}

	CacheOperations.WithLabelValues(backendRedis, "get", "hit").Inc()
	return entry, true, nil
}

// TransferID returns the transfer id of the entry stored under key.
func (m *RedisManager) TransferID(ctx context.Context, key Key) (string, bool, error) {
	entry, ok, err := m.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	id, ok := transferID(entry, m.opts.TransferIDKey)
	return id, ok, nil
}

// Delete removes the entry stored under key and reports whether one existed.
func (m *RedisManager) Delete(ctx context.Context, key Key) (bool, error) {
	removed, err := m.redis.HDel(ctx, m.hash, key.String()).Result()
	if err != nil {
		CacheOperations.WithLabelValues(backendRedis, "delete", "error").Inc()
		return false, fmt.Errorf("redis hdel: %w", err)
	}

	if removed == 0 {
		CacheOperations.WithLabelValues(backendRedis, "delete", "miss").Inc()
		return false, nil
	}

	CacheOperations.WithLabelValues(backendRedis, "delete", "deleted").Inc()
	m.syncEntries(ctx)
	m.logger.Debug().Str("key", key.String()).Msg("Connection entry deleted")
	return true, nil
}

// Count returns the number of stored entries.
func (m *RedisManager) Count(ctx context.Context) (int, error) {
	n, err := m.redis.HLen(ctx, m.hash).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen: %w", err)
	}
	CacheEntries.WithLabelValues(backendRedis).Set(float64(n))
	return int(n), nil
}

// syncEntries sets the entries gauge from the shared hash, which other
// replicas write too.
func (m *RedisManager) syncEntries(ctx context.Context) {
	if _, err := m.Count(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to refresh connection entry gauge")
	}
}

// TransferIDKey returns the configured transfer id field.
func (m *RedisManager) TransferIDKey() string {
	return m.opts.TransferIDKey
}

// Ping checks the Redis connection.
func (m *RedisManager) Ping(ctx context.Context) error {
	return m.redis.Ping(ctx).Err()
}
