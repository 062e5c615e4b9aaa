// Package apperr defines the application-wide failure taxonomy.
//
// Every failure that should reach a client as a deliberate, well-formed HTTP
// error is constructed here. An *Error carries a closed Kind tag, the HTTP
// status fixed for that kind, a client-safe message, and optionally an
// operator-facing detail string and a wrapped cause. The cause and detail are
// for server-side logs only and are never serialized to clients.
//
// Conventions:
//   - The status code is determined by the Kind at construction time and can
//     never be changed afterwards; a custom message overrides only the default
//     user message.
//   - Values are treated as immutable once constructed: the With* builders
//     return copies, so an *Error can be passed up a call chain and shared
//     with log sinks without coordination.
//   - Callers discriminate with errors.As (for the type) and Kind() (for the
//     variant); there is no string matching anywhere in the pipeline.
//
// Example:
//
//	if widget == nil {
//	    return apperr.NotFound("Widget not found").WithCause(repoErr)
//	}
package apperr

import "net/http"

// Kind enumerates the closed set of failure variants. The zero value is
// KindGeneric so that a forgotten tag still renders as a safe 500.
type Kind uint8

const (
	// KindGeneric is the catch-all server failure (HTTP 500).
	KindGeneric Kind = iota
	// KindBadRequest marks client input that failed validation (HTTP 400).
	KindBadRequest
	// KindNotFound marks a missing resource or route (HTTP 404).
	KindNotFound
	// KindUnauthorized marks missing or invalid credentials (HTTP 401).
	KindUnauthorized
	// KindForbidden marks an authenticated but disallowed action (HTTP 403).
	KindForbidden
	// KindConflict marks a state conflict such as a duplicate resource (HTTP 409).
	KindConflict
	// KindRateLimited marks requests rejected by throttling (HTTP 429).
	KindRateLimited
	// KindServiceUnavailable marks a temporarily unusable dependency (HTTP 503).
	KindServiceUnavailable
	// KindQueueTimeout marks a background-queue handoff that missed its
	// deadline (HTTP 504).
	KindQueueTimeout
)

// kindStatus fixes the HTTP status per kind. Indexed by Kind.
var kindStatus = [...]int{
	KindGeneric:            http.StatusInternalServerError,
	KindBadRequest:         http.StatusBadRequest,
	KindNotFound:           http.StatusNotFound,
	KindUnauthorized:       http.StatusUnauthorized,
	KindForbidden:          http.StatusForbidden,
	KindConflict:           http.StatusConflict,
	KindRateLimited:        http.StatusTooManyRequests,
	KindServiceUnavailable: http.StatusServiceUnavailable,
	KindQueueTimeout:       http.StatusGatewayTimeout,
}

// kindMessage fixes the default client-safe message per kind. Indexed by Kind.
var kindMessage = [...]string{
	KindGeneric:            "Something went wrong, try again later",
	KindBadRequest:         "Validation failed",
	KindNotFound:           "Resource not found",
	KindUnauthorized:       "Unauthorized access",
	KindForbidden:          "Forbidden access",
	KindConflict:           "Resource conflict",
	KindRateLimited:        "Rate limit exceeded",
	KindServiceUnavailable: "Service temporarily unavailable",
	KindQueueTimeout:       "Gateway Timeout",
}

// kindName gives a stable operator-facing label per kind, used in logs.
var kindName = [...]string{
	KindGeneric:            "generic",
	KindBadRequest:         "bad_request",
	KindNotFound:           "not_found",
	KindUnauthorized:       "unauthorized",
	KindForbidden:          "forbidden",
	KindConflict:           "conflict",
	KindRateLimited:        "rate_limited",
	KindServiceUnavailable: "service_unavailable",
	KindQueueTimeout:       "queue_timeout",
}

// String returns the log label of the kind ("not_found", "conflict", …).
// Unknown values degrade to "generic".
func (k Kind) String() string {
	if int(k) >= len(kindName) {
		return kindName[KindGeneric]
	}
	return kindName[k]
}

// Status returns the HTTP status fixed for the kind.
func (k Kind) Status() int {
	if int(k) >= len(kindStatus) {
		return kindStatus[KindGeneric]
	}
	return kindStatus[k]
}

// defaultMessage returns the client-safe default message for the kind.
func (k Kind) defaultMessage() string {
	if int(k) >= len(kindMessage) {
		return kindMessage[KindGeneric]
	}
	return kindMessage[k]
}

// Error is a classified request failure. Construct instances via New or one
// of the per-kind constructors; the zero value is not meaningful.
//
// Error implements the standard error interface; Error() returns the
// client-safe message so that an *Error is harmless even if it accidentally
// reaches a generic "%v" log or response site.
type Error struct {
	kind    Kind
	message string // client-safe; never empty after construction
	detail  string // operator-facing detail, logs only
	cause   error  // wrapped cause, logs only
}

// New constructs an *Error of the given kind. An empty message selects the
// kind's default client-safe message. The HTTP status is fixed by the kind
// and cannot be overridden.
func New(kind Kind, message string) *Error {
	if message == "" {
		message = kind.defaultMessage()
	}
	return &Error{kind: kind, message: message}
}

// Generic constructs a 500 failure.
func Generic(message string) *Error { return New(KindGeneric, message) }

// BadRequest constructs a 400 failure.
func BadRequest(message string) *Error { return New(KindBadRequest, message) }

// NotFound constructs a 404 failure.
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Unauthorized constructs a 401 failure.
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Forbidden constructs a 403 failure.
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Conflict constructs a 409 failure.
func Conflict(message string) *Error { return New(KindConflict, message) }

// RateLimited constructs a 429 failure.
func RateLimited(message string) *Error { return New(KindRateLimited, message) }

// ServiceUnavailable constructs a 503 failure.
func ServiceUnavailable(message string) *Error { return New(KindServiceUnavailable, message) }

// QueueTimeout constructs a 504 failure.
func QueueTimeout(message string) *Error { return New(KindQueueTimeout, message) }

// WithCause returns a copy of e carrying cause for diagnostic logging.
// The cause participates in errors.Is/errors.As chains via Unwrap but is
// never serialized to clients.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

// WithDetail returns a copy of e carrying an operator-facing detail string.
// The detail may contain internal context (IDs, collection names, queries)
// and is emitted to logs only.
func (e *Error) WithDetail(detail string) *Error {
	cp := *e
	cp.detail = detail
	return &cp
}

// Error returns the client-safe message.
func (e *Error) Error() string { return e.message }

// Unwrap exposes the wrapped cause to errors.Is and errors.As.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the failure variant tag.
func (e *Error) Kind() Kind { return e.kind }

// Status returns the HTTP status fixed for the failure's kind.
func (e *Error) Status() int { return e.kind.Status() }

// Message returns the client-safe message (same value as Error()).
func (e *Error) Message() string { return e.message }

// Detail returns the operator-facing detail string, possibly empty.
func (e *Error) Detail() string { return e.detail }

// Cause returns the wrapped cause, possibly nil.
func (e *Error) Cause() error { return e.cause }
