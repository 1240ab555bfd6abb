package batch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Runner executes task(i) for every i in [0, n) with bounded concurrency.
// After the first task error no new task starts; running tasks finish and
// that first error is returned. Cancelling ctx stops scheduling as well.
type Runner interface {
	Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error
}

// Pool runs tasks on a fixed set of worker goroutines pulling from a queue.
type Pool struct {
	Workers int
	Logger  zerolog.Logger
}

// Run implements Runner.
func (p Pool) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	queue := make(chan int, n)
	for i := 0; i < n; i++ {
		queue <- i
	}
	close(queue)

	var (
		stopped  atomic.Bool
		mu       sync.Mutex
		firstErr error
		ctxErr   error
		wg       sync.WaitGroup
	)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			processed := 0

			for i := range queue {
				if stopped.Load() {
					return
				}

				select {
				case <-ctx.Done():
					mu.Lock()
					ctxErr = ctx.Err()
					mu.Unlock()
					p.Logger.Debug().
						Int("worker_id", workerID).
						Int("items_processed", processed).
						Msg("Worker stopping (context cancelled)")
					return
				default:
				}

				if err := task(ctx, i); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
					stopped.Store(true)
					return
				}
				processed++
			}

			if processed > 0 {
				p.Logger.Debug().
					Int("worker_id", workerID).
					Int("items_processed", processed).
					Msg("Worker completed")
			}
		}(w)
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return ctxErr
}

// Limited starts a goroutine per task, admitting at most Limit at a time
// through a weighted semaphore.
type Limited struct {
	Limit int
}

// Run implements Runner.
func (l Limited) Run(ctx context.Context, n int, task func(ctx context.Context, i int) error) error {
	limit := l.Limit
	if limit <= 0 {
		limit = 1
	}

	sem := semaphore.NewWeighted(int64(limit))
	var (
		g       errgroup.Group
		stopped atomic.Bool
	)

	for i := 0; i < n; i++ {
		if stopped.Load() {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			if werr := g.Wait(); werr != nil {
				return werr
			}
			return err
		}
		if stopped.Load() {
			sem.Release(1)
			break
		}

		g.Go(func() error {
			defer sem.Release(1)
			if err := task(ctx, i); err != nil {
				stopped.Store(true)
				return err
			}
			return nil
		})
	}

	return g.Wait()
}
