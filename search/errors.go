package search

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrTimeout indicates the marketplace did not answer in time.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string { return fmt.Sprintf("timeout: %v", e.Err) }
func (e ErrTimeout) Unwrap() error { return e.Err }

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string { return fmt.Sprintf("connection: %v", e.Err) }
func (e ErrConnection) Unwrap() error { return e.Err }

// ErrForbidden indicates the marketplace refused the request (HTTP 403),
// usually an anti-bot block.
type ErrForbidden struct {
	Err error
}

func (e ErrForbidden) Error() string { return fmt.Sprintf("forbidden: %v", e.Err) }
func (e ErrForbidden) Unwrap() error { return e.Err }

// ErrNotFound indicates a missing results page (HTTP 404).
type ErrNotFound struct {
	Err error
}

func (e ErrNotFound) Error() string { return fmt.Sprintf("not_found: %v", e.Err) }
func (e ErrNotFound) Unwrap() error { return e.Err }

// ErrRateLimited indicates the marketplace throttled the request (HTTP 429).
type ErrRateLimited struct {
	Err error
}

func (e ErrRateLimited) Error() string { return fmt.Sprintf("rate_limited: %v", e.Err) }
func (e ErrRateLimited) Unwrap() error { return e.Err }

// classifyError maps a transport error and HTTP status to a typed error.
func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch statusCode {
		case http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		}
	}

	return err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var forbidden ErrForbidden
	if errors.As(err, &forbidden) {
		return "forbidden"
	}
	var notFound ErrNotFound
	if errors.As(err, &notFound) {
		return "not_found"
	}
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return "rate_limited"
	}
	return "other"
}

// Transient reports whether a retry may succeed: timeouts, connection drops
// and throttling qualify, hard blocks and missing pages do not.
func Transient(err error) bool {
	switch errorTypeLabel(err) {
	case "timeout", "connection", "rate_limited":
		return true
	}
	return false
}
