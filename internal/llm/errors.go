package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
)

// ErrRateLimited is returned when the client-side sliding window for the
// call's scope is exhausted. The call is never attempted.
var ErrRateLimited = errors.New("scoring call rate limited")

// StatusError is a non-2xx response from the scoring service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("scoring service returned %d: %s", e.StatusCode, e.Body)
}

// Retryable reports whether the status indicates a transient condition.
// 429 and server errors are transient; any other 4xx means the request
// itself is wrong and retrying cannot help.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ParseError is a structurally broken response body. It is never retried:
// a response that arrived but cannot be decoded is a content failure, not
// a transport failure.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed scoring response: %v (raw: %q)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsRetryable classifies an attempt error. Timeouts and connection resets
// are retryable; cancellation, parse failures, and non-429 client errors
// are terminal.
func IsRetryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	var pe *ParseError
	if errors.As(err, &pe) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// truncate bounds raw response text carried inside diagnostics.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
