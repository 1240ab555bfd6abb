// Package executor runs a single logical API operation under a rate limiter
// and a retry policy.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/photoroom-client/pkg/ratelimit"
	"github.com/Sternrassler/photoroom-client/pkg/retry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photoroom_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "photoroom_retry_backoff_seconds",
		Help:    "Backoff duration for retries by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photoroom_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})
)

// ErrContextCancelled is returned when the context is cancelled during backoff.
var ErrContextCancelled = errors.New("context cancelled")

// Options tunes an Executor.
type Options struct {
	// LimitEachAttempt debits the rate limiter before every attempt instead of
	// once per logical operation.
	LimitEachAttempt bool
}

// Executor wraps operations with rate limiting and retries.
type Executor struct {
	limiter *ratelimit.Limiter
	policy  retry.Policy
	opts    Options
	logger  zerolog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates an executor. limiter may be nil.
func New(policy retry.Policy, limiter *ratelimit.Limiter, logger zerolog.Logger) *Executor {
	return NewWithOptions(policy, limiter, Options{}, logger)
}

// NewWithOptions creates an executor with explicit options.
func NewWithOptions(policy retry.Policy, limiter *ratelimit.Limiter, opts Options, logger zerolog.Logger) *Executor {
	return &Executor{
		limiter: limiter,
		policy:  policy,
		opts:    opts,
		logger:  logger,
		sleep:   sleepContext,
	}
}

// Policy returns the retry policy.
func (e *Executor) Policy() retry.Policy {
	return e.policy
}

// Limiter returns the rate limiter, possibly nil.
func (e *Executor) Limiter() *ratelimit.Limiter {
	return e.limiter
}

// Do runs fn until it succeeds, fails permanently, or the retry budget is spent.
// The last failure is returned unchanged once retries are exhausted.
func (e *Executor) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !e.opts.LimitEachAttempt {
		if err := e.limiter.Acquire(ctx, 1); err != nil {
			return err
		}
	}

	for attempt := 0; ; attempt++ {
		if e.opts.LimitEachAttempt {
			if err := e.limiter.Acquire(ctx, 1); err != nil {
				return err
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				e.logger.Info().
					Int("attempt", attempt+1).
					Msg("Request succeeded after retry")
			}
			return nil
		}

		// A dead context makes every further attempt pointless.
		if ctx.Err() != nil {
			return err
		}

		class := retry.Classify(err)

		if !e.policy.Retryable(err, attempt) {
			if attempt > 0 && e.policy.Transient(err) {
				retryExhaustedTotal.WithLabelValues(string(class)).Inc()
				e.logger.Warn().
					Err(err).
					Str("error_class", string(class)).
					Int("attempts", attempt+1).
					Msg("Retry attempts exhausted")
			}
			return err
		}

		backoff := e.policy.Backoff(attempt)
		retriesTotal.WithLabelValues(string(class)).Inc()
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(backoff.Seconds())

		e.logger.Warn().
			Err(err).
			Str("error_class", string(class)).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Retrying request after backoff")

		if err := e.sleep(ctx, backoff); err != nil {
			e.logger.Warn().
				Int("attempt", attempt+1).
				Msg("Context cancelled during retry backoff")
			return fmt.Errorf("%w: %w", ErrContextCancelled, err)
		}
	}
}

// Execute runs op through e and returns its value.
func Execute[T any](ctx context.Context, e *Executor, op func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := e.Do(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	return result, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
