// Package apperror defines the error taxonomy shared by the dispatch core.
// Services return these errors; the HTTP and WebSocket boundaries translate
// them into status codes or error frames without ever tearing down unrelated
// connections.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies an error for the transport boundary.
type Kind string

const (
	KindAuthentication Kind = "authentication" // bad/missing token at connect; disconnect
	KindAuthorization  Kind = "authorization"  // action or room join not permitted; keep connection
	KindConflict       Kind = "conflict"       // state-machine precondition failed (accept race, double rating)
	KindThrottled      Kind = "throttled"      // rate limit exceeded; carries a retry hint
	KindNotFound       Kind = "not_found"      // entity missing
	KindInvalid        Kind = "invalid"        // malformed input
	KindInternal       Kind = "internal"       // persistence or infrastructure failure
)

// Error is the single error type the core surfaces across boundaries.
type Error struct {
	Kind       Kind
	Message    string
	Err        error
	RetryAfter time.Duration // only meaningful for KindThrottled
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports kind equality so callers can use errors.Is with a bare-kind target.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

func Authentication(msg string) *Error { return &Error{Kind: KindAuthentication, Message: msg} }
func Authorization(msg string) *Error  { return &Error{Kind: KindAuthorization, Message: msg} }
func Conflict(msg string) *Error       { return &Error{Kind: KindConflict, Message: msg} }
func NotFound(msg string) *Error       { return &Error{Kind: KindNotFound, Message: msg} }
func Invalid(msg string) *Error        { return &Error{Kind: KindInvalid, Message: msg} }

// Throttled builds a rate-limit error with a retry hint.
func Throttled(msg string, retryAfter time.Duration) *Error {
	return &Error{Kind: KindThrottled, Message: msg, RetryAfter: retryAfter}
}

// Conflictf formats a conflict error.
func Conflictf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// NotFoundf formats a not-found error.
func NotFoundf(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Internal wraps an infrastructure failure.
func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// RetryAfter returns the retry hint carried by a throttled error, or zero.
func RetryAfter(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) && e.Kind == KindThrottled {
		return e.RetryAfter
	}
	return 0
}

// KindOf extracts the kind from an error chain. Errors outside the taxonomy
// report an empty kind.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind anywhere in its chain.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to the HTTP status the REST surface returns.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindThrottled:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
