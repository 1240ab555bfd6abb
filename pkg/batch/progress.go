package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Progress is an immutable snapshot of a running batch.
type Progress struct {
	Total      int
	Completed  int
	Successful int
	Failed     int

	// Elapsed is the time since the batch started.
	Elapsed time.Duration

	// EstimatedRemaining is average time per completed item times items
	// left. Only meaningful when HasEstimate is true.
	EstimatedRemaining time.Duration
}

// HasEstimate reports whether EstimatedRemaining is known.
func (p Progress) HasEstimate() bool {
	return p.Completed > 0
}

// Percent returns completion in percent, 0 for an empty batch.
func (p Progress) Percent() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total) * 100
}

// IsComplete reports whether every item has an outcome.
func (p Progress) IsComplete() bool {
	return p.Completed >= p.Total
}

// SuccessRate returns the share of completed items that succeeded.
func (p Progress) SuccessRate() float64 {
	if p.Completed == 0 {
		return 0
	}
	return float64(p.Successful) / float64(p.Completed)
}

// String implements fmt.Stringer.
func (p Progress) String() string {
	s := fmt.Sprintf("%d/%d (%.1f%%) ok=%d failed=%d elapsed=%s",
		p.Completed, p.Total, p.Percent(), p.Successful, p.Failed, p.Elapsed.Round(time.Millisecond))
	if p.HasEstimate() && !p.IsComplete() {
		s += fmt.Sprintf(" eta=%s", p.EstimatedRemaining.Round(time.Millisecond))
	}
	return s
}

func estimateRemaining(elapsed time.Duration, completed, total int) time.Duration {
	if completed == 0 {
		return 0
	}
	perItem := elapsed / time.Duration(completed)
	return perItem * time.Duration(total-completed)
}

// Reporter receives a Progress snapshot after each completed item.
// Calls for one batch are serialized.
type Reporter interface {
	Report(ctx context.Context, p Progress) error
}

// ReporterFunc adapts a plain function to a synchronous Reporter.
type ReporterFunc func(p Progress)

// Report implements Reporter.
func (f ReporterFunc) Report(_ context.Context, p Progress) error {
	f(p)
	return nil
}

// DefaultReportTimeout bounds an AsyncReporter without an explicit Timeout.
const DefaultReportTimeout = 5 * time.Second

// AsyncReporter runs Fn on its own goroutine and waits for it at most
// Timeout. A panic in Fn is returned as an error.
type AsyncReporter struct {
	Fn func(ctx context.Context, p Progress) error

	// Timeout defaults to DefaultReportTimeout when zero or negative.
	Timeout time.Duration
}

func (r AsyncReporter) timeout() time.Duration {
	if r.Timeout <= 0 {
		return DefaultReportTimeout
	}
	return r.Timeout
}

// Report implements Reporter.
func (r AsyncReporter) Report(ctx context.Context, p Progress) error {
	if r.Fn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("progress callback panic: %v", rec)
			}
		}()
		done <- r.Fn(ctx, p)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("progress callback: %w", ctx.Err())
	}
}

// LogReporter logs progress every n completed items and once at the end.
func LogReporter(logger zerolog.Logger, every int) Reporter {
	if every <= 0 {
		every = 10
	}
	return ReporterFunc(func(p Progress) {
		if p.Completed%every != 0 && !p.IsComplete() {
			return
		}
		event := logger.Info().
			Int("completed", p.Completed).
			Int("total", p.Total).
			Int("failed", p.Failed).
			Float64("progress_pct", p.Percent()).
			Dur("elapsed", p.Elapsed)
		if p.HasEstimate() {
			event = event.Dur("eta", p.EstimatedRemaining)
		}
		event.Msg("Batch progress")
	})
}

// safeReport invokes r and logs instead of propagating failures or panics.
func safeReport(ctx context.Context, r Reporter, p Progress, logger zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error().
				Interface("panic", rec).
				Int("completed", p.Completed).
				Msg("Progress callback panicked")
		}
	}()

	if err := r.Report(ctx, p); err != nil {
		logger.Warn().
			Err(err).
			Int("completed", p.Completed).
			Msg("Progress callback failed")
	}
}
