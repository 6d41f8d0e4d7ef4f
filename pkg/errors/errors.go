package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a relay error so callers (and the browser UI behind them)
// can decide whether an item is worth re-staging.
type Kind string

const (
	// Caller input errors. Rejected before any upstream call.
	KindInvalidCredentials Kind = "invalid_credentials"
	KindBatchTooLarge      Kind = "batch_too_large"

	// Upstream-sourced errors.
	KindUpstreamUnauthorized Kind = "upstream_unauthorized"
	KindUpstreamRateLimited  Kind = "upstream_rate_limited"
	KindUpstreamUnavailable  Kind = "upstream_unavailable"
	KindAlreadyRemoved       Kind = "already_removed"
	KindUnknown              Kind = "unknown"
)

// Error is a classified relay error.
type Error struct {
	Kind    Kind
	Message string
	// Code is the upstream HTTP status that produced this error, 0 for
	// network-level failures and caller input errors.
	Code int
	// RetryAfter carries the upstream Retry-After hint on rate-limit
	// errors. Zero when upstream gave none.
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("relay %s error (code %d): %s", e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("relay %s error: %s", e.Kind, e.Message)
}

// New creates a classified error.
func New(kind Kind, code int, message string) *Error {
	return &Error{Kind: kind, Message: message, Code: code}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, code int, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Code: code}
}

// KindOf extracts the Kind from err, unwrapping as needed. Unclassified
// errors report KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RetryAfterOf extracts the Retry-After hint from err, or 0.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if stderrors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

// IsCallerError reports whether the kind is a caller input error (4xx, never
// reached upstream) as opposed to an upstream-sourced one.
func IsCallerError(kind Kind) bool {
	return kind == KindInvalidCredentials || kind == KindBatchTooLarge
}

// HTTPStatus maps a Kind to the status the relay returns for a call-level
// failure. AlreadyRemoved only ever appears per batch item, so it has no
// call-level mapping and falls through to 502 like Unknown.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidCredentials, KindBatchTooLarge:
		return http.StatusBadRequest
	case KindUpstreamUnauthorized:
		return http.StatusUnauthorized
	case KindUpstreamRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}
