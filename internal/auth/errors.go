package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrStateMismatch means the callback failed the anti-CSRF check.
	ErrStateMismatch = errors.New("auth: state mismatch")

	// ErrTokenExchangeFailed is the sentinel behind every TokenExchangeError.
	ErrTokenExchangeFailed = errors.New("auth: token exchange failed")

	// ErrTokenRefreshFailed is the sentinel behind every TokenRefreshError.
	ErrTokenRefreshFailed = errors.New("auth: token refresh failed")
)

// TokenExchangeError reports a failed authorization_code grant.
// Status is 0 when the request never got an HTTP response.
type TokenExchangeError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenExchangeError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("auth: token exchange failed: %v", e.Err)
	}
	return fmt.Sprintf("auth: token exchange failed: HTTP %d: %s", e.Status, e.Body)
}

func (e *TokenExchangeError) Unwrap() []error {
	return []error{ErrTokenExchangeFailed, e.Err}
}

// TokenRefreshError reports a failed refresh_token grant.
type TokenRefreshError struct {
	Status int
	Body   string
	Err    error
}

func (e *TokenRefreshError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("auth: token refresh failed: %v", e.Err)
	}
	return fmt.Sprintf("auth: token refresh failed: HTTP %d: %s", e.Status, e.Body)
}

func (e *TokenRefreshError) Unwrap() []error {
	return []error{ErrTokenRefreshFailed, e.Err}
}

// Retryable reports whether a caller may retry with backoff. A 4xx means the
// refresh token is invalid or revoked and retrying cannot help.
func (e *TokenRefreshError) Retryable() bool {
	return e.Status == 0 || e.Status >= http.StatusInternalServerError
}
