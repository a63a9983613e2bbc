package sheets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Kind classifies a remote store failure. The classification decides the
// retry behavior: auth retries after a forced token refresh, transient and
// rate-limit retry with backoff, not-found surfaces immediately.
type Kind int

const (
	KindTransient Kind = iota
	KindAuth
	KindNotFound
	KindRateLimit
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRateLimit:
		return "rate_limit"
	default:
		return "transient"
	}
}

// Error is a classified remote store failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("record store %s error: status=%d %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("record store %s error: %s", e.Kind, e.Message)
}

// KindOf extracts the failure kind; non-*Error values (including wrapped
// network and timeout errors) classify as transient.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransient
}

// classifyStatus maps an HTTP status to a failure kind.
func classifyStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimit
	default:
		return KindTransient
	}
}

// classifyTransportErr wraps non-HTTP failures (timeouts, connection errors)
// as transient so the retry policy applies.
func classifyTransportErr(err error) *Error {
	msg := err.Error()
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		msg = "request timed out"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		msg = "request timed out"
	}
	return &Error{Kind: KindTransient, Message: msg}
}
