package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

var (
	// ErrNotFound means the addressed object or bucket does not exist.
	ErrNotFound = errors.New("remote: not found")
	// ErrTransient marks a failure worth retrying regardless of its status code.
	ErrTransient = errors.New("remote: transient failure")
	// ErrMaxRetriesExceeded is returned once a transient failure outlived the retry budget.
	ErrMaxRetriesExceeded = errors.New("remote: max retries exceeded")
	// ErrInvalidID means a folder or file id could not be parsed.
	ErrInvalidID = errors.New("remote: invalid identifier")
)

// Error describes a failed storage operation.
type Error struct {
	Op         string
	ID         string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote.%s %s: status %d: %v", e.Op, e.ID, e.StatusCode, e.Err)
	}
	if e.ID != "" {
		return fmt.Sprintf("remote.%s %s: %v", e.Op, e.ID, e.Err)
	}
	return fmt.Sprintf("remote.%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, id string, status int, err error) *Error {
	if status == http.StatusNotFound && !errors.Is(err, ErrNotFound) {
		err = fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return &Error{Op: op, ID: id, StatusCode: status, Err: err}
}

// IsNotFound reports whether err means the addressed object is gone.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTransient reports whether err is worth retrying: rate limiting, server
// side failures, timeouts and dropped connections.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) {
		return true
	}

	var re *Error
	if errors.As(err, &re) {
		switch re.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, context.DeadlineExceeded)
}
