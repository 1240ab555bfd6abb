package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")

	// ErrEntryTooLarge is returned by Set for images above the size limit.
	ErrEntryTooLarge = errors.New("cache entry too large")
)

// Hash fields of a stored entry. The image is kept as raw bytes in its own
// field so it is not base64-inflated.
const (
	fieldData     = "data"
	fieldMetadata = "metadata"
	fieldCachedAt = "cached_at"
	fieldExpires  = "expires"
)

// DefaultMaxEntrySize bounds a single cached image.
const DefaultMaxEntrySize = 64 << 20

// Manager stores processed images in Redis hashes.
type Manager struct {
	redis        *redis.Client
	maxEntrySize int
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis:        redisClient,
		maxEntrySize: DefaultMaxEntrySize,
	}
}

// SetMaxEntrySize changes the size limit; n <= 0 removes it.
func (m *Manager) SetMaxEntrySize(n int) {
	m.maxEntrySize = n
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	fields, err := m.redis.HGetAll(ctx, key.String()).Result()
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis hgetall: %w", err)
	}
	if len(fields) == 0 {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	entry, err := decodeEntry(fields)
	if err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, err
	}

	// Redis expiry normally removes the hash first; clock skew between
	// writers can still leave a stale one behind.
	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return entry, nil
}

// Set stores a cache entry with TTL based on the entry's Expires field.
// Entries that are already expired are not stored.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if m.maxEntrySize > 0 && len(entry.Data) > m.maxEntrySize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrEntryTooLarge, len(entry.Data), m.maxEntrySize)
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		return nil
	}

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal metadata: %w", err)
	}

	k := key.String()
	_, err = m.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		pipe.HSet(ctx, k,
			fieldData, entry.Data,
			fieldMetadata, metadata,
			fieldCachedAt, entry.CachedAt.UnixNano(),
			fieldExpires, entry.Expires.UnixNano(),
		)
		pipe.PExpire(ctx, k, ttl)
		return nil
	})
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis hset: %w", err)
	}

	CacheStoredBytes.Add(float64(len(entry.Data)))
	return nil
}

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func decodeEntry(fields map[string]string) (*Entry, error) {
	data, ok := fields[fieldData]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s field", ErrInvalidEntry, fieldData)
	}

	entry := &Entry{Data: []byte(data)}

	if raw := fields[fieldMetadata]; raw != "" && raw != "null" {
		if err := json.Unmarshal([]byte(raw), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidEntry, err)
		}
	}

	var err error
	if entry.CachedAt, err = unixNanoField(fields, fieldCachedAt); err != nil {
		return nil, err
	}
	if entry.Expires, err = unixNanoField(fields, fieldExpires); err != nil {
		return nil, err
	}
	return entry, nil
}

func unixNanoField(fields map[string]string, name string) (time.Time, error) {
	n, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrInvalidEntry, name, err)
	}
	return time.Unix(0, n), nil
}
