package batch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Sternrassler/photoroom-client/pkg/executor"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for batch runs.
var (
	batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photoroom_batch_items_total",
		Help: "Total batch items processed by outcome",
	}, []string{"outcome"})

	batchRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "photoroom_batch_runs_total",
		Help: "Total batch runs by final state",
	}, []string{"state"})

	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "photoroom_batch_duration_seconds",
		Help:    "Wall-clock duration of batch runs",
		Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
	})
)

// ErrorStrategy decides what a failed item does to the rest of the batch.
type ErrorStrategy string

const (
	// Continue records the failure and keeps going.
	Continue ErrorStrategy = "continue"

	// FailFast stops scheduling new items and aborts the run.
	FailFast ErrorStrategy = "fail_fast"
)

// ParseErrorStrategy maps a config string to an ErrorStrategy.
func ParseErrorStrategy(s string) (ErrorStrategy, error) {
	switch ErrorStrategy(strings.ToLower(strings.TrimSpace(s))) {
	case Continue, "":
		return Continue, nil
	case FailFast, "fail-fast", "failfast":
		return FailFast, nil
	default:
		return "", fmt.Errorf("unknown error strategy %q (want continue or fail_fast)", s)
	}
}

// State is the lifecycle state of a batch run.
type State string

const (
	// StatePending is a run that has not started processing items.
	StatePending State = "pending"

	// StateRunning is set while items are being processed.
	StateRunning State = "running"

	// StateCompleted means every item has an outcome.
	StateCompleted State = "completed"

	// StateAborted means fail-fast or cancellation stopped the run early.
	StateAborted State = "aborted"
)

// Config holds coordinator configuration.
type Config struct {
	// Concurrency is the maximum number of items in flight. Default 4.
	Concurrency int

	// OnError selects Continue (default) or FailFast.
	OnError ErrorStrategy

	// Reporter receives a snapshot after every completed item. Optional.
	Reporter Reporter

	// Runner overrides the default Pool of Concurrency workers.
	Runner Runner

	// Executor, when set, wraps every operation call with rate limiting and retries.
	Executor *executor.Executor

	// OutputDir enables persistence through a DirSink when Sink is nil.
	OutputDir string

	// OutputPattern names persisted files. Default DefaultPattern.
	OutputPattern string

	// Sink stores successful artifacts. Takes precedence over OutputDir.
	Sink Sink

	// Logger defaults to the global logger with component=batch.
	Logger *zerolog.Logger
}

// DefaultConfig returns a configuration with four workers and Continue.
func DefaultConfig() Config {
	return Config{
		Concurrency:   4,
		OnError:       Continue,
		OutputPattern: DefaultPattern,
	}
}

// Coordinator fans an operation out over many inputs.
type Coordinator struct {
	config Config
	runner Runner
	sink   Sink
	logger zerolog.Logger
}

// NewCoordinator creates a coordinator, filling unset fields with defaults.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.OnError == "" {
		cfg.OnError = Continue
	}
	if cfg.OutputPattern == "" {
		cfg.OutputPattern = DefaultPattern
	}

	logger := log.With().Str("component", "batch").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	runner := cfg.Runner
	if runner == nil {
		runner = Pool{Workers: cfg.Concurrency, Logger: logger}
	}

	sink := cfg.Sink
	if sink == nil && cfg.OutputDir != "" {
		sink = DirSink{Dir: cfg.OutputDir}
	}

	return &Coordinator{
		config: cfg,
		runner: runner,
		sink:   sink,
		logger: logger,
	}
}

// Run applies op to every input and returns the outcomes in input order.
// Under FailFast the first failure aborts the run with an *AbortError and no Result.
func (c *Coordinator) Run(ctx context.Context, inputs []Input, op Operation) (*Result, error) {
	id := uuid.NewString()
	logger := c.logger.With().Str("batch_id", id).Logger()

	if len(inputs) == 0 {
		batchRunsTotal.WithLabelValues(string(StateCompleted)).Inc()
		return NewResult(id, nil, 0, Progress{}), nil
	}
	if op == nil {
		return nil, fmt.Errorf("operation is required")
	}

	r := &run{
		coord:    c,
		inputs:   inputs,
		op:       op,
		state:    StatePending,
		logger:   logger,
		outcomes: make([]Outcome, 0, len(inputs)),
	}

	logger.Info().
		Int("items", len(inputs)).
		Int("concurrency", c.config.Concurrency).
		Str("on_error", string(c.config.OnError)).
		Msg("Starting batch")

	r.start = time.Now()
	r.setState(StateRunning)
	err := c.runner.Run(ctx, len(inputs), r.process)
	duration := time.Since(r.start)
	batchDurationSeconds.Observe(duration.Seconds())

	if err != nil {
		r.setState(StateAborted)
		var abort *AbortError
		if errors.As(err, &abort) {
			logger.Error().
				Err(abort.Err).
				Int("index", abort.Index).
				Str("input", abort.Input).
				Dur("duration", duration).
				Msg("Batch aborted")
			return nil, abort
		}
		logger.Warn().Err(err).Dur("duration", duration).Msg("Batch cancelled")
		return nil, fmt.Errorf("batch cancelled: %w", err)
	}

	r.setState(StateCompleted)
	r.mu.Lock()
	result := NewResult(id, r.outcomes, duration, r.last)
	r.mu.Unlock()

	logger.Info().
		Int("total", result.Total()).
		Int("successful", result.SuccessfulCount()).
		Int("failed", result.FailedCount()).
		Dur("duration", duration).
		Msg("Batch complete")

	return result, nil
}

// run holds the bookkeeping of a single Coordinator.Run call.
type run struct {
	coord  *Coordinator
	inputs []Input
	op     Operation
	logger zerolog.Logger
	start  time.Time

	mu         sync.Mutex
	state      State
	outcomes   []Outcome
	completed  int
	successful int
	failed     int
	last       Progress
}

func (r *run) setState(s State) {
	r.mu.Lock()
	prev := r.state
	r.state = s
	r.mu.Unlock()

	if s == StateCompleted || s == StateAborted {
		batchRunsTotal.WithLabelValues(string(s)).Inc()
	}
	r.logger.Debug().Str("from", string(prev)).Str("to", string(s)).Msg("Batch state changed")
}

func (r *run) process(ctx context.Context, i int) error {
	in := r.inputs[i]
	cfg := r.coord.config

	artifact, err := r.invoke(ctx, in)

	var outputPath string
	if err == nil && r.coord.sink != nil {
		name := FormatFilename(cfg.OutputPattern, i, in.FileName(i))
		outputPath, err = r.coord.sink.Save(ctx, name, artifact)
		if err != nil {
			err = fmt.Errorf("persist output: %w", err)
		}
	}

	if err != nil {
		batchItemsTotal.WithLabelValues("failed").Inc()
		if cfg.OnError == FailFast {
			return &AbortError{Index: i, Input: in.Descriptor(i), Err: err}
		}
		r.logger.Warn().
			Err(err).
			Int("index", i).
			Str("input", in.Descriptor(i)).
			Msg("Batch item failed")
		r.record(ctx, Outcome{
			Index: i,
			Input: in.Descriptor(i),
			Name:  in.FileName(i),
			Err:   err,
		})
		return nil
	}

	batchItemsTotal.WithLabelValues("success").Inc()
	r.record(ctx, Outcome{
		Index:      i,
		Input:      in.Descriptor(i),
		Name:       in.FileName(i),
		Success:    true,
		Artifact:   artifact,
		OutputPath: outputPath,
	})
	return nil
}

// invoke runs op, optionally through the executor, turning panics into errors.
func (r *run) invoke(ctx context.Context, in Input) (artifact Artifact, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			artifact = nil
			err = fmt.Errorf("operation panicked: %v", rec)
		}
	}()

	if e := r.coord.config.Executor; e != nil {
		artifact, err = executor.Execute(ctx, e, func(ctx context.Context) (Artifact, error) {
			return r.op(ctx, in)
		})
	} else {
		artifact, err = r.op(ctx, in)
	}
	if err == nil && artifact == nil {
		err = fmt.Errorf("operation returned no artifact")
	}
	return artifact, err
}

// record appends an outcome and reports progress. The reporter runs under the
// same lock so successive snapshots never go backwards.
func (r *run) record(ctx context.Context, o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.outcomes = append(r.outcomes, o)
	r.completed++
	if o.Success {
		r.successful++
	} else {
		r.failed++
	}

	elapsed := time.Since(r.start)
	r.last = Progress{
		Total:              len(r.inputs),
		Completed:          r.completed,
		Successful:         r.successful,
		Failed:             r.failed,
		Elapsed:            elapsed,
		EstimatedRemaining: estimateRemaining(elapsed, r.completed, len(r.inputs)),
	}

	if rep := r.coord.config.Reporter; rep != nil {
		safeReport(ctx, rep, r.last, r.logger)
	}
}
