package backend

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from the Robo service.
type Error struct {
	// StatusCode is the HTTP status.
	StatusCode int `json:"-"`

	// Detail is the FastAPI "detail" message, or the raw body when the
	// response was not JSON.
	Detail string `json:"detail"`
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: http %d", e.StatusCode)
	}
	return fmt.Sprintf("backend: http %d: %s", e.StatusCode, e.Detail)
}

// Retryable reports whether the request may succeed when repeated.
func (e *Error) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// AsError extracts *Error from an error.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
