package whale

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// ErrTooManyRedirects is returned by the client's redirect policy once the redirect
// budget is spent. The http.Client wraps it in a *url.Error.
var ErrTooManyRedirects = errors.New("stopped after too many redirects")

// OutcomeKind tags how the retry loop must treat a failure.
type OutcomeKind int

const (
	KindRetryable OutcomeKind = iota
	KindFatal
)

// Outcome is the tagged classification of a failed call.
type Outcome struct {
	Kind    OutcomeKind
	Code    int
	Message string
}

// Retryable builds an outcome the retry loop should try again.
func Retryable(code int, message string) Outcome {
	return Outcome{Kind: KindRetryable, Code: code, Message: message}
}

// Fatal builds an outcome that ends the call immediately.
func Fatal(code int, message string) Outcome {
	return Outcome{Kind: KindFatal, Code: code, Message: message}
}

// Retryable reports whether the outcome may be retried.
func (o Outcome) Retryable() bool {
	return o.Kind == KindRetryable
}

// Classify maps a transport error to an outcome. Every transport fault shares
// the same retry policy; only the code and message differ.
func Classify(err error) Outcome {
	switch {
	case errors.Is(err, ErrTooManyRedirects):
		return Retryable(CodeTooManyRedirect, "Internal error: TooManyRedirect exception when conducting API call")
	case isTimeout(err):
		return Retryable(CodeTimeout, "Internal error: Timeout exception when conducting API call")
	case isConnection(err):
		return Retryable(CodeConnection, "Internal error: Connection exception when conducting API call")
	default:
		return Retryable(CodeTransport, fmt.Sprintf("Internal error: Exception %v when conducting API call", err))
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnection(err error) bool {
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "read" || opErr.Op == "write"
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return errors.Is(urlErr.Err, net.ErrClosed)
	}
	return false
}
