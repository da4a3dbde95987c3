// Package mediaapi is an HTTP client for the backend API's media upload and
// user endpoints.
package mediaapi

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for upstream status classification.
var (
	ErrUnauthorized = errors.New("mediaapi: unauthorized")
	ErrRedirected   = errors.New("mediaapi: unexpected redirect")
	ErrServerError  = errors.New("mediaapi: server error")
)

// UpstreamError is a non-2xx response from the backend API. Body is the raw
// response text, possibly empty.
type UpstreamError struct {
	Status   int
	Body     string
	Location string
	Err      error // sentinel, may be nil
}

func (e *UpstreamError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("mediaapi: HTTP %d (location: %s): %s", e.Status, e.Location, e.Body)
	}
	return fmt.Sprintf("mediaapi: HTTP %d: %s", e.Status, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Message is the text shown to relay clients.
func (e *UpstreamError) Message() string {
	if e.Body == "" {
		return "Upstream error"
	}
	return e.Body
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code >= http.StatusMultipleChoices && code < http.StatusBadRequest:
		return ErrRedirected
	case code >= http.StatusInternalServerError:
		return ErrServerError
	default:
		return nil
	}
}
