package fault

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
)

var (
	ErrDecode            = errors.New("decode error")
	ErrUnsupportedTarget = errors.New("unsupported target")
	ErrTransient         = errors.New("transient failure")
	ErrPermanent         = errors.New("permanent failure")
	ErrDeadline          = errors.New("deadline exceeded")
	ErrPanic             = errors.New("adapter panic")
	ErrNotSupported      = errors.New("not supported")
)

// Kind is the retry classification of an error.
type Kind int

const (
	Permanent Kind = iota
	Transient
)

func (k Kind) String() string {
	if k == Transient {
		return "transient"
	}
	return "permanent"
}

// StatusError reports a non-2xx response from a remote target.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	if body == "" {
		return fmt.Sprintf("http %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("http %d: %s", e.Code, body)
}

// Transient reports whether the status code is worth retrying.
func (e *StatusError) Transient() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// Wrap tags err with marker and an operation label so callers can
// classify it with errors.Is while keeping the original cause.
func Wrap(marker error, op string, err error) error {
	if marker == nil {
		marker = ErrPermanent
	}
	op = strings.TrimSpace(op)
	switch {
	case err == nil && op == "":
		return marker
	case err == nil:
		return fmt.Errorf("%w: %s", marker, op)
	case op == "":
		return fmt.Errorf("%w: %w", marker, err)
	default:
		return fmt.Errorf("%w: %s: %w", marker, op, err)
	}
}

// Permanentf builds a permanent error with a formatted message.
func Permanentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermanent, fmt.Sprintf(format, args...))
}

// Transientf builds a transient error with a formatted message.
func Transientf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrTransient, fmt.Sprintf(format, args...))
}

// IsDeadline reports whether err came from an expired or cancelled deadline.
func IsDeadline(err error) bool {
	return errors.Is(err, ErrDeadline) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// KindOf classifies err. Context errors are permanent: once the deadline
// is gone there is nothing left to retry into.
func KindOf(err error) Kind {
	if err == nil || IsDeadline(err) {
		return Permanent
	}
	if errors.Is(err, ErrPermanent) || errors.Is(err, ErrNotSupported) ||
		errors.Is(err, ErrUnsupportedTarget) || errors.Is(err, ErrDecode) {
		return Permanent
	}
	if errors.Is(err, ErrTransient) {
		return Transient
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Transient() {
			return Transient
		}
		return Permanent
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Transient
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return Transient
	}
	return Permanent
}
