package batch

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Outcome records how one input was handled.
// Success implies Artifact != nil and Err == nil; otherwise Err != nil.
type Outcome struct {
	Index      int
	Input      string
	Name       string
	Success    bool
	Artifact   Artifact
	Err        error
	OutputPath string
}

// Statistics summarizes a finished batch.
type Statistics struct {
	Total              int           `json:"total"`
	Successful         int           `json:"successful"`
	Failed             int           `json:"failed"`
	SuccessRate        float64       `json:"success_rate"`
	TotalTime          time.Duration `json:"total_time"`
	AverageTimePerItem time.Duration `json:"average_time_per_item"`
	TotalBytes         int64         `json:"total_bytes"`
}

// Result is the read-only outcome of a batch, ordered by input index.
type Result struct {
	id        string
	outcomes  []Outcome
	totalTime time.Duration
	progress  Progress
}

// NewResult sorts a copy of outcomes by index and wraps it.
func NewResult(id string, outcomes []Outcome, totalTime time.Duration, progress Progress) *Result {
	sorted := slices.Clone(outcomes)
	slices.SortFunc(sorted, func(a, b Outcome) int {
		return a.Index - b.Index
	})
	return &Result{
		id:        id,
		outcomes:  sorted,
		totalTime: totalTime,
		progress:  progress,
	}
}

// ID returns the batch run identifier.
func (r *Result) ID() string {
	return r.id
}

// Outcomes returns all outcomes in index order.
func (r *Result) Outcomes() []Outcome {
	return slices.Clone(r.outcomes)
}

// Total returns the number of outcomes.
func (r *Result) Total() int {
	return len(r.outcomes)
}

// SuccessfulCount returns the number of successful outcomes.
func (r *Result) SuccessfulCount() int {
	n := 0
	for _, o := range r.outcomes {
		if o.Success {
			n++
		}
	}
	return n
}

// FailedCount returns the number of failed outcomes.
func (r *Result) FailedCount() int {
	return r.Total() - r.SuccessfulCount()
}

// SuccessRate returns successful/total, 0 for an empty batch.
func (r *Result) SuccessRate() float64 {
	if r.Total() == 0 {
		return 0
	}
	return float64(r.SuccessfulCount()) / float64(r.Total())
}

// AllSuccessful reports whether no item failed.
func (r *Result) AllSuccessful() bool {
	return r.FailedCount() == 0
}

// AnyFailed reports whether at least one item failed.
func (r *Result) AnyFailed() bool {
	return r.FailedCount() > 0
}

// Successful returns the successful outcomes in index order.
func (r *Result) Successful() []Outcome {
	return r.filter(true)
}

// Failed returns the failed outcomes in index order.
func (r *Result) Failed() []Outcome {
	return r.filter(false)
}

func (r *Result) filter(success bool) []Outcome {
	var out []Outcome
	for _, o := range r.outcomes {
		if o.Success == success {
			out = append(out, o)
		}
	}
	return out
}

// Get returns the outcome for input index, if present.
func (r *Result) Get(index int) (Outcome, bool) {
	i, found := slices.BinarySearchFunc(r.outcomes, index, func(o Outcome, idx int) int {
		return o.Index - idx
	})
	if !found {
		return Outcome{}, false
	}
	return r.outcomes[i], true
}

// TotalTime returns the wall-clock duration of the run.
func (r *Result) TotalTime() time.Duration {
	return r.totalTime
}

// Progress returns the final progress snapshot.
func (r *Result) Progress() Progress {
	return r.progress
}

// Err returns a *PartialFailureError if any item failed, nil otherwise.
func (r *Result) Err() error {
	if r.AllSuccessful() {
		return nil
	}

	failed := r.Failed()
	failures := make([]ItemFailure, len(failed))
	for i, o := range failed {
		failures[i] = ItemFailure{Index: o.Index, Err: o.Err}
	}
	return &PartialFailureError{
		Successful: r.SuccessfulCount(),
		Failed:     len(failed),
		Failures:   failures,
	}
}

// PersistSuccessful writes every successful artifact into dir using pattern
// ({index}, {name}) and returns how many were written. Failed items are skipped.
func (r *Result) PersistSuccessful(dir, pattern string) (int, error) {
	sink := DirSink{Dir: dir}
	written := 0
	for _, o := range r.Successful() {
		name := FormatFilename(pattern, o.Index, o.Name)
		if _, err := sink.Save(context.Background(), name, o.Artifact); err != nil {
			return written, fmt.Errorf("item %d: %w", o.Index, err)
		}
		written++
	}
	return written, nil
}

// Statistics returns summary numbers for the run.
func (r *Result) Statistics() Statistics {
	stats := Statistics{
		Total:       r.Total(),
		Successful:  r.SuccessfulCount(),
		Failed:      r.FailedCount(),
		SuccessRate: r.SuccessRate(),
		TotalTime:   r.totalTime,
	}
	if stats.Total > 0 {
		stats.AverageTimePerItem = r.totalTime / time.Duration(stats.Total)
	}
	for _, o := range r.outcomes {
		if o.Success && o.Artifact != nil {
			stats.TotalBytes += int64(o.Artifact.Size())
		}
	}
	return stats
}

// String implements fmt.Stringer.
func (r *Result) String() string {
	return fmt.Sprintf("BatchResult(total=%d, successful=%d, failed=%d, success_rate=%.1f%%)",
		r.Total(), r.SuccessfulCount(), r.FailedCount(), r.SuccessRate()*100)
}
