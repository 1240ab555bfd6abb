package retry

import (
	"context"
	"errors"
	"io"
	"net"
)

// Class is the classification of a request failure for observability and handling.
type Class string

const (
	// ClassClient represents 4xx client errors.
	ClassClient Class = "client"

	// ClassServer represents 5xx server errors.
	ClassServer Class = "server"

	// ClassRateLimit represents 429 responses from the API.
	ClassRateLimit Class = "rate_limit"

	// ClassNetwork represents transport failures and timeouts.
	ClassNetwork Class = "network"

	// ClassPermanent represents anything else, never retried.
	ClassPermanent Class = "permanent"
)

// StatusCoder is implemented by errors carrying an HTTP status code.
type StatusCoder interface {
	StatusCode() int
}

// NetworkError marks a transport failure that does not already surface as a net.Error.
type NetworkError struct {
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return "network error: " + e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *NetworkError) Unwrap() error {
	return e.Err
}

// Network wraps err so that it is classified as a network failure.
func Network(err error) error {
	if err == nil {
		return nil
	}
	return &NetworkError{Err: err}
}

// StatusCode extracts the HTTP status from the first StatusCoder in err's chain.
func StatusCode(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// IsNetwork reports whether err is a transport failure or timeout.
// Cancellation by the caller is never a network failure. A bare io.EOF is
// not one either unless it was marked with Network.
func IsNetwork(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var marked *NetworkError
	if errors.As(err, &marked) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}

// Classify categorizes err.
func Classify(err error) Class {
	if status, ok := StatusCode(err); ok {
		switch {
		case status == 429:
			return ClassRateLimit
		case status >= 400 && status < 500:
			return ClassClient
		case status >= 500:
			return ClassServer
		}
		return ClassPermanent
	}
	if IsNetwork(err) {
		return ClassNetwork
	}
	return ClassPermanent
}
