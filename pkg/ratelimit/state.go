// Package ratelimit implements client-side token-bucket rate limiting for
// PhotoRoom API requests. A bucket refills continuously at a fixed rate up to
// its capacity; every request debits tokens before it is sent.
package ratelimit

import (
	"math"
	"time"
)

// Redis keys for shared bucket state.
const (
	// RedisKeyBucket is the default hash holding tokens and last refill time.
	RedisKeyBucket = "photoroom:rate_limit:bucket"

	// RedisBucketTTL expires idle buckets so stale state does not linger.
	RedisBucketTTL = 10 * time.Minute
)

// BucketState is the mutable state of a token bucket.
// All reads and writes happen inside a single critical section owned by the bucket.
type BucketState struct {
	// Capacity is the maximum number of tokens the bucket can hold.
	Capacity float64 `json:"capacity"`

	// Tokens is the number of tokens currently available. Always within [0, Capacity].
	Tokens float64 `json:"tokens"`

	// RefillRate is the number of tokens added per second.
	RefillRate float64 `json:"refill_rate"`

	// LastRefill is the monotonic instant of the last refill.
	LastRefill time.Time `json:"last_refill"`
}

// NewBucketState returns a full bucket.
func NewBucketState(rate, capacity float64, now time.Time) BucketState {
	return BucketState{
		Capacity:   capacity,
		Tokens:     capacity,
		RefillRate: rate,
		LastRefill: now,
	}
}

// DefaultCapacity returns floor(rate), never less than one token.
func DefaultCapacity(rate float64) float64 {
	c := math.Floor(rate)
	if c < 1 {
		return 1
	}
	return c
}

// Refill adds tokens for the time elapsed since LastRefill, capped at Capacity.
func (s *BucketState) Refill(now time.Time) {
	elapsed := now.Sub(s.LastRefill).Seconds()
	if elapsed > 0 {
		s.Tokens = math.Min(s.Capacity, s.Tokens+elapsed*s.RefillRate)
	}
	s.LastRefill = now
}

// Take refills and then debits cost if enough tokens are available.
// Returns false without modifying Tokens when the bucket is short.
func (s *BucketState) Take(now time.Time, cost float64) bool {
	s.Refill(now)
	if s.Tokens >= cost {
		s.Tokens -= cost
		return true
	}
	return false
}

// WaitFor returns how long it takes until cost tokens are available.
// Returns 0 if they already are.
func (s *BucketState) WaitFor(cost float64) time.Duration {
	missing := cost - s.Tokens
	if missing <= 0 || s.RefillRate <= 0 {
		return 0
	}
	return time.Duration(missing / s.RefillRate * float64(time.Second))
}
