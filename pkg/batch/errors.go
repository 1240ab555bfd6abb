package batch

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBatchAborted is matched by *AbortError.
	ErrBatchAborted = errors.New("batch aborted")

	// ErrPartialFailure is matched by *PartialFailureError.
	ErrPartialFailure = errors.New("batch partially failed")
)

// AbortError is returned by a FailFast run when an item fails.
type AbortError struct {
	Index int
	Input string
	Err   error
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	return fmt.Sprintf("batch aborted at item %d (%s): %v", e.Index, e.Input, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AbortError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrBatchAborted.
func (e *AbortError) Is(target error) bool {
	return target == ErrBatchAborted
}

// ItemFailure pairs a failed input index with its error.
type ItemFailure struct {
	Index int
	Err   error
}

// PartialFailureError reports a finished batch with at least one failed item.
type PartialFailureError struct {
	Successful int
	Failed     int
	Failures   []ItemFailure
}

// Error implements the error interface.
func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch completed with %d failure(s) (%d successful)", e.Failed, e.Successful)
	for i, f := range e.Failures {
		if i == 3 {
			fmt.Fprintf(&b, "; and %d more", len(e.Failures)-i)
			break
		}
		fmt.Fprintf(&b, "; item %d: %v", f.Index, f.Err)
	}
	return b.String()
}

// Is reports whether target is ErrPartialFailure.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}
