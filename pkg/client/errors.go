package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTransport wraps connectivity failures and timeouts. Retryable.
	ErrTransport = errors.New("transport error")
	// ErrDecode wraps malformed or unexpected response bodies. Retryable.
	ErrDecode = errors.New("malformed response")
)

// HTTPError represents a non-2xx HTTP response from the API.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// IsStatus returns true if err (or any wrapped error) is an HTTPError with the given status code.
func IsStatus(err error, code int) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == code
	}
	return false
}

// IsUnauthorized reports whether the server rejected the session itself.
func IsUnauthorized(err error) bool {
	return IsStatus(err, http.StatusUnauthorized)
}

// IsNotFound reports a 404 from the API.
func IsNotFound(err error) bool {
	return IsStatus(err, http.StatusNotFound)
}

// Retryable reports whether err is a transient failure worth retrying.
// Server errors (5xx) and 429 count; other HTTP errors are authoritative.
func Retryable(err error) bool {
	if errors.Is(err, ErrTransport) || errors.Is(err, ErrDecode) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500 || httpErr.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Message returns the text a user should see for err: the server's message
// for authoritative rejections, a generic hint for transient failures.
func Message(err error) string {
	var httpErr *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &httpErr) && httpErr.Message != "":
		return httpErr.Message
	case errors.Is(err, ErrTransport):
		return "network error, please try again"
	case errors.Is(err, ErrDecode):
		return "unexpected response from server, please try again"
	}
	return err.Error()
}
