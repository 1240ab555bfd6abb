// Package retry decides whether a failed PhotoRoom request is attempted again
// and how long to back off before the next attempt.
package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"time"
)

// DefaultRetryableStatusCodes are the transient server statuses retried by default.
var DefaultRetryableStatusCodes = []int{500, 502, 503, 504}

// Config holds the retry configuration.
type Config struct {
	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// BackoffFactor is the exponential base; attempt k sleeps factor^k seconds.
	BackoffFactor float64

	// RetryableStatusCodes lists HTTP statuses that are retried.
	RetryableStatusCodes []int

	// MaxBackoff caps the pre-jitter backoff.
	MaxBackoff time.Duration

	// Jitter adds up to ±25% randomness to each backoff.
	Jitter bool
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:           3,
		BackoffFactor:        2.0,
		RetryableStatusCodes: slices.Clone(DefaultRetryableStatusCodes),
		MaxBackoff:           60 * time.Second,
		Jitter:               true,
	}
}

// Policy is an immutable retry policy built from a Config.
type Policy struct {
	maxRetries    int
	backoffFactor float64
	retryable     map[int]struct{}
	maxBackoff    time.Duration
	jitter        bool
	random        func() float64
}

// NewPolicy validates cfg and returns a Policy.
func NewPolicy(cfg Config) (Policy, error) {
	if cfg.MaxRetries < 0 {
		return Policy{}, fmt.Errorf("max_retries must be >= 0 (got %d)", cfg.MaxRetries)
	}
	if cfg.BackoffFactor <= 0 {
		return Policy{}, fmt.Errorf("backoff_factor must be > 0 (got %v)", cfg.BackoffFactor)
	}
	if cfg.MaxBackoff < 0 {
		return Policy{}, fmt.Errorf("max_backoff must be >= 0 (got %v)", cfg.MaxBackoff)
	}

	retryable := make(map[int]struct{}, len(cfg.RetryableStatusCodes))
	for _, code := range cfg.RetryableStatusCodes {
		retryable[code] = struct{}{}
	}

	return Policy{
		maxRetries:    cfg.MaxRetries,
		backoffFactor: cfg.BackoffFactor,
		retryable:     retryable,
		maxBackoff:    cfg.MaxBackoff,
		jitter:        cfg.Jitter,
		random:        rand.Float64,
	}, nil
}

// DefaultPolicy returns the policy for DefaultConfig.
func DefaultPolicy() Policy {
	p, _ := NewPolicy(DefaultConfig())
	return p
}

// MaxRetries returns the number of retries after the initial attempt.
func (p Policy) MaxRetries() int {
	return p.maxRetries
}

// IsRetryableStatus reports whether status is in the retryable set.
func (p Policy) IsRetryableStatus(status int) bool {
	_, ok := p.retryable[status]
	return ok
}

// ShouldRetry reports whether a response with status on zero-based attempt
// should be retried.
func (p Policy) ShouldRetry(status, attempt int) bool {
	return attempt < p.maxRetries && p.IsRetryableStatus(status)
}

// Retryable reports whether err on zero-based attempt should be retried.
// Status-coded errors follow ShouldRetry; network errors retry until the
// budget is spent; everything else is permanent.
func (p Policy) Retryable(err error, attempt int) bool {
	if err == nil || attempt >= p.maxRetries {
		return false
	}
	if status, ok := StatusCode(err); ok {
		return p.IsRetryableStatus(status)
	}
	return IsNetwork(err)
}

// Transient reports whether err is of a kind this policy retries,
// ignoring the attempt budget.
func (p Policy) Transient(err error) bool {
	if err == nil {
		return false
	}
	if status, ok := StatusCode(err); ok {
		return p.IsRetryableStatus(status)
	}
	return IsNetwork(err)
}

// Backoff returns the delay before the attempt following attempt k:
// min(factor^k, max_backoff) seconds, then ±25% jitter clamped at zero.
func (p Policy) Backoff(attempt int) time.Duration {
	seconds := math.Pow(p.backoffFactor, float64(attempt))
	if maxSeconds := p.maxBackoff.Seconds(); seconds > maxSeconds {
		seconds = maxSeconds
	}

	if p.jitter && seconds > 0 {
		spread := seconds * 0.25
		seconds += (p.random()*2 - 1) * spread
		if seconds < 0 {
			seconds = 0
		}
	}

	return time.Duration(seconds * float64(time.Second))
}
