// Package cache stores processed PhotoRoom images in Redis so that the same
// image sent with the same parameters is not paid for twice.
//
// Entries are keyed by endpoint, a SHA-256 digest of the uploaded image (or
// source URL) and the sorted request parameters. Each entry is a Redis hash
// holding the raw image bytes, the response metadata as JSON and the
// timestamps; the hash expires with the entry. A hit is served without
// touching the network or the rate limiter.
//
// # Basic Usage
//
//	manager := cache.NewManager(redisClient)
//
//	key := cache.Key{
//		Endpoint:    "/v1/segment",
//		ImageDigest: cache.Digest(imageBytes),
//		Params:      url.Values{"format": []string{"png"}},
//	}
//
//	entry, err := manager.Get(ctx, key)
//	if errors.Is(err, cache.ErrCacheMiss) {
//		// call the API, then
//		_ = manager.Set(ctx, key, cache.NewEntry(data, metadata, 24*time.Hour))
//	}
//
// # Metrics
//
//   - photoroom_cache_hits_total - Cache hits
//   - photoroom_cache_misses_total - Cache misses
//   - photoroom_cache_stored_bytes_total - Bytes written to the cache
//   - photoroom_cache_errors_total{operation} - Cache operation errors
package cache
