package cache

import (
	"time"
)

// Entry is a cached API result.
type Entry struct {
	// Data is the response body (the processed image)
	Data []byte

	// Metadata holds the pr-* response headers and content type
	Metadata map[string]string

	// Expires is when the entry becomes stale
	Expires time.Time

	// CachedAt is when we cached this result
	CachedAt time.Time
}

// NewEntry creates an entry that expires after ttl.
func NewEntry(data []byte, metadata map[string]string, ttl time.Duration) *Entry {
	now := time.Now()
	return &Entry{
		Data:     data,
		Metadata: metadata,
		Expires:  now.Add(ttl),
		CachedAt: now,
	}
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
