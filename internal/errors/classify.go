package errors

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Classify returns the kind of err.
//
// An AppError anywhere in the chain decides. Otherwise network level
// failures, per-call deadlines and malformed response bodies count as
// transport, and everything else is fatal. A cancelled parent context is
// fatal so a shutdown stops the whole cycle instead of skipping mailboxes.
func Classify(err error) Kind {
	if err == nil {
		return KindFatal
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	if IsTransportFailure(err) {
		return KindTransport
	}
	return KindFatal
}

// IsTransportFailure reports whether err means the gateway could not be
// reached or did not answer intelligibly.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.Canceled) {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, io.EOF) {
		return true
	}
	if stderrors.Is(err, syscall.ECONNREFUSED) || stderrors.Is(err, syscall.ECONNRESET) ||
		stderrors.Is(err, syscall.EHOSTUNREACH) || stderrors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return true
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if stderrors.As(err, &urlErr) {
		return true
	}
	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) {
		return true
	}
	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "i/o timeout")
}

// IsTransportStatus reports whether an HTTP status is a transient gateway condition.
func IsTransportStatus(statusCode int) bool {
	return statusCode >= 500 || statusCode == 429 || statusCode == 408
}

// IsTransport is shorthand for Classify(err) == KindTransport
func IsTransport(err error) bool {
	return err != nil && Classify(err) == KindTransport
}

// IsFatal is shorthand for Classify(err) == KindFatal
func IsFatal(err error) bool {
	return err != nil && Classify(err) == KindFatal
}
