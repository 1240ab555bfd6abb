package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for client-side rate limiting.
var (
	rateLimitTokens = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "photoroom_rate_limit_tokens",
		Help: "Tokens available in the request bucket after the last acquire",
	})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoroom_rate_limit_waits_total",
		Help: "Total number of times a request waited for bucket tokens",
	})

	rateLimitWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "photoroom_rate_limit_wait_seconds",
		Help:    "Time spent sleeping for bucket tokens",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	rateLimitRejectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "photoroom_rate_limit_rejections_total",
		Help: "Total number of requests rejected by the error strategy",
	})
)

// Strategy decides what happens when the bucket is short of tokens.
type Strategy string

const (
	// StrategyWait blocks until enough tokens have been refilled.
	StrategyWait Strategy = "wait"

	// StrategyError fails immediately with ErrRateLimitExceeded.
	StrategyError Strategy = "error"
)

// ParseStrategy maps a config string to a Strategy. Unknown values return false.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyWait, "":
		return StrategyWait, true
	case StrategyError:
		return StrategyError, true
	default:
		return StrategyWait, false
	}
}

var (
	// ErrRateLimitExceeded is matched by *ExceededError.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrCostExceedsCapacity is returned for a cost the bucket can never satisfy.
	ErrCostExceedsCapacity = errors.New("cost exceeds bucket capacity")
)

// ExceededError reports a request rejected under StrategyError.
type ExceededError struct {
	Rate      float64
	Available float64
}

// Error implements the error interface.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %.2f requests/s allowed, %.2f tokens available",
		e.Rate, e.Available)
}

// Is reports whether target is ErrRateLimitExceeded.
func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// Bucket stores token state. Take must refill and debit as one atomic step.
type Bucket interface {
	// Take debits cost if available. Otherwise it returns false and the
	// tokens available after refilling, leaving the balance untouched.
	Take(ctx context.Context, cost float64) (ok bool, available float64, err error)

	// Available returns the refilled token count without debiting.
	Available(ctx context.Context) (float64, error)

	// Reset fills the bucket to capacity.
	Reset(ctx context.Context) error
}

// MemoryBucket is a process-local Bucket guarded by a mutex.
type MemoryBucket struct {
	mu    sync.Mutex
	state BucketState
	now   func() time.Time
}

// NewMemoryBucket creates a full in-memory bucket.
func NewMemoryBucket(rate, capacity float64) *MemoryBucket {
	return &MemoryBucket{
		state: NewBucketState(rate, capacity, time.Now()),
		now:   time.Now,
	}
}

// Take implements Bucket.
func (b *MemoryBucket) Take(_ context.Context, cost float64) (bool, float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ok := b.state.Take(b.now(), cost)
	return ok, b.state.Tokens, nil
}

// Available implements Bucket.
func (b *MemoryBucket) Available(_ context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Refill(b.now())
	return b.state.Tokens, nil
}

// Reset implements Bucket.
func (b *MemoryBucket) Reset(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = NewBucketState(b.state.RefillRate, b.state.Capacity, b.now())
	return nil
}

// Config holds limiter configuration.
type Config struct {
	// Rate is the sustained number of requests per second. Rate <= 0 disables limiting.
	Rate float64

	// Capacity is the burst size. Zero means DefaultCapacity(Rate).
	Capacity float64

	// Strategy selects wait or error behaviour when the bucket is empty.
	Strategy Strategy
}

// DefaultConfig returns a disabled limiter configuration using StrategyWait.
func DefaultConfig() Config {
	return Config{
		Strategy: StrategyWait,
	}
}

// Limiter gates requests through a token bucket.
// A nil or disabled Limiter admits everything.
type Limiter struct {
	bucket   Bucket
	rate     float64
	capacity float64
	strategy Strategy
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// New creates a limiter backed by an in-memory bucket.
func New(cfg Config, logger zerolog.Logger) (*Limiter, error) {
	if cfg.Rate <= 0 {
		return &Limiter{logger: logger}, nil
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity(cfg.Rate)
	}
	return NewWithBucket(cfg, NewMemoryBucket(cfg.Rate, cfg.Capacity), logger)
}

// NewWithBucket creates a limiter over an existing bucket, e.g. a RedisBucket.
func NewWithBucket(cfg Config, bucket Bucket, logger zerolog.Logger) (*Limiter, error) {
	if cfg.Rate <= 0 {
		return &Limiter{logger: logger}, nil
	}
	if bucket == nil {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity(cfg.Rate)
	}

	strategy, ok := ParseStrategy(string(cfg.Strategy))
	if !ok {
		logger.Warn().
			Str("strategy", string(cfg.Strategy)).
			Msg("Unknown rate limit strategy, falling back to wait")
	}

	return &Limiter{
		bucket:   bucket,
		rate:     cfg.Rate,
		capacity: cfg.Capacity,
		strategy: strategy,
		logger:   logger,
		sleep:    sleepContext,
	}, nil
}

// Enabled reports whether the limiter gates anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Rate returns the configured refill rate in tokens per second.
func (l *Limiter) Rate() float64 {
	if !l.Enabled() {
		return 0
	}
	return l.rate
}

// Capacity returns the bucket size.
func (l *Limiter) Capacity() float64 {
	if !l.Enabled() {
		return 0
	}
	return l.capacity
}

// Strategy returns the active strategy.
func (l *Limiter) Strategy() Strategy {
	if !l.Enabled() {
		return StrategyWait
	}
	return l.strategy
}

// Acquire debits cost tokens following the configured strategy.
// Under StrategyWait it sleeps for the computed deficit and re-checks until
// the debit succeeds or ctx is done.
func (l *Limiter) Acquire(ctx context.Context, cost float64) error {
	if !l.Enabled() {
		return nil
	}
	if l.strategy == StrategyError {
		return l.TryAcquire(ctx, cost)
	}
	if err := l.checkCost(cost); err != nil {
		return err
	}

	for {
		ok, available, err := l.bucket.Take(ctx, cost)
		if err != nil {
			return fmt.Errorf("take tokens: %w", err)
		}
		rateLimitTokens.Set(available)
		if ok {
			return nil
		}

		// Deficit divided by refill rate; at least one millisecond so float
		// rounding cannot spin.
		wait := time.Duration((cost - available) / l.rate * float64(time.Second))
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		rateLimitWaitsTotal.Inc()
		rateLimitWaitSeconds.Observe(wait.Seconds())
		l.logger.Debug().
			Float64("available", available).
			Float64("cost", cost).
			Dur("wait", wait).
			Msg("Waiting for rate limit tokens")

		if err := l.sleep(ctx, wait); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
}

// TryAcquire debits cost tokens or fails immediately with *ExceededError.
func (l *Limiter) TryAcquire(ctx context.Context, cost float64) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.checkCost(cost); err != nil {
		return err
	}

	ok, available, err := l.bucket.Take(ctx, cost)
	if err != nil {
		return fmt.Errorf("take tokens: %w", err)
	}
	rateLimitTokens.Set(available)
	if ok {
		return nil
	}

	rateLimitRejectionsTotal.Inc()
	l.logger.Warn().
		Float64("available", available).
		Float64("rate", l.rate).
		Msg("Request rejected by rate limiter")

	return &ExceededError{Rate: l.rate, Available: available}
}

// Available returns the tokens currently available. A disabled limiter reports 0.
func (l *Limiter) Available(ctx context.Context) (float64, error) {
	if !l.Enabled() {
		return 0, nil
	}
	return l.bucket.Available(ctx)
}

// Reset refills the bucket to capacity.
func (l *Limiter) Reset(ctx context.Context) error {
	if !l.Enabled() {
		return nil
	}
	return l.bucket.Reset(ctx)
}

func (l *Limiter) checkCost(cost float64) error {
	if cost < 0 {
		return fmt.Errorf("cost must be >= 0 (got %.2f)", cost)
	}
	if cost > l.capacity {
		return fmt.Errorf("%w: cost %.2f, capacity %.2f", ErrCostExceedsCapacity, cost, l.capacity)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
