package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBackendUnavailable is returned while the circuit breaker is open.
	ErrBackendUnavailable = errors.New("backend temporarily unavailable, please retry shortly")
	// ErrBackendUnreachable wraps transport failures such as refused
	// connections or timeouts.
	ErrBackendUnreachable = errors.New("backend unreachable")
)

// APIError is a non-2xx answer from the backend. Message is meant to be
// shown to the cashier verbatim.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// DecodeError means a 2xx response did not have the expected shape.
type DecodeError struct {
	Route  string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("unexpected response from %s: %s: %v", e.Route, e.Reason, e.Err)
	}
	return fmt.Sprintf("unexpected response from %s: %s", e.Route, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusOf returns the HTTP status of an APIError anywhere in err's chain.
func StatusOf(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status, true
	}
	return 0, false
}

// errorMessage picks the human-readable message out of an error body:
// "message", then "error.message", then a plain "error" string.
func errorMessage(body []byte, status int) string {
	var payload struct {
		Message string          `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg := strings.TrimSpace(payload.Message); msg != "" {
			return msg
		}
		if len(payload.Error) > 0 {
			var nested struct {
				Message string `json:"message"`
			}
			if err := json.Unmarshal(payload.Error, &nested); err == nil && strings.TrimSpace(nested.Message) != "" {
				return strings.TrimSpace(nested.Message)
			}
			var plain string
			if err := json.Unmarshal(payload.Error, &plain); err == nil && strings.TrimSpace(plain) != "" {
				return strings.TrimSpace(plain)
			}
		}
	}
	return fmt.Sprintf("request failed with status %d", status)
}
