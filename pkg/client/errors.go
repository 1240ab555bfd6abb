package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sternrassler/photoroom-client/pkg/retry"
)

// Common errors returned by the client.
var (
	// ErrMissingAPIKey is returned by New when no API key is configured.
	ErrMissingAPIKey = errors.New("api key is required")

	// ErrInvalidParameter is returned for requests rejected before sending.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrBadRequest matches 400 responses.
	ErrBadRequest = errors.New("bad request")

	// ErrPaymentRequired matches 402 responses (credits exhausted).
	ErrPaymentRequired = errors.New("payment required")

	// ErrForbidden matches 403 responses (invalid API key).
	ErrForbidden = errors.New("forbidden")

	// ErrServer matches 5xx responses.
	ErrServer = errors.New("server error")
)

// APIError is an error response from the PhotoRoom API.
type APIError struct {
	Status  int
	Class   retry.Class
	Message string

	// Payload is the decoded JSON body, nil when the body was not JSON.
	Payload map[string]any
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("PhotoRoom %s error (status %d): %s", e.Class, e.Status, e.Message)
}

// StatusCode implements retry.StatusCoder.
func (e *APIError) StatusCode() int {
	return e.Status
}

// Is maps the status to the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Status == http.StatusBadRequest
	case ErrPaymentRequired:
		return e.Status == http.StatusPaymentRequired
	case ErrForbidden:
		return e.Status == http.StatusForbidden
	case ErrServer:
		return e.Status >= 500
	}
	return false
}

// ParseErrorResponse builds an APIError from a status and raw body. It
// understands {"error": {"message": ...}}, {"error": "..."} and
// {"detail": ...}; anything else is used as plain text.
func ParseErrorResponse(status int, body []byte) *APIError {
	e := &APIError{
		Status: status,
		Class:  classifyStatus(status),
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		e.Payload = payload
		e.Message = messageFromPayload(payload)
	}

	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	if e.Message == "" {
		e.Message = "Unknown error"
	}
	return e
}

func messageFromPayload(payload map[string]any) string {
	if raw, ok := payload["error"]; ok {
		switch v := raw.(type) {
		case map[string]any:
			if msg := stringValue(v["message"]); msg != "" {
				return msg
			}
			return stringValue(v["detail"])
		default:
			return stringValue(v)
		}
	}
	if msg := stringValue(payload["detail"]); msg != "" {
		return msg
	}
	return stringValue(payload["message"])
}

func stringValue(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		b, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(b)
	}
}

func classifyStatus(status int) retry.Class {
	switch {
	case status == http.StatusTooManyRequests:
		return retry.ClassRateLimit
	case status >= 400 && status < 500:
		return retry.ClassClient
	case status >= 500:
		return retry.ClassServer
	default:
		return retry.ClassPermanent
	}
}
