package quota

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode classifies a resolution failure for recovery decisions.
type ErrorCode string

const (
	// CodeUnauthorized means the credential is invalid. Non-retryable by
	// the core; the caller must invalidate the credential and re-prompt.
	CodeUnauthorized ErrorCode = "unauthorized"

	// CodeForbidden means the credential lacks a required scope.
	CodeForbidden ErrorCode = "forbidden"

	// CodeNotFound usually means a stale derived identity (e.g. a cached
	// username). Retryable exactly once after an identity refresh.
	CodeNotFound ErrorCode = "not_found"

	// CodeRateLimited carries the upstream's advertised retry delay. The
	// scheduler reschedules instead of looping.
	CodeRateLimited ErrorCode = "rate_limited"

	// CodeTransient covers network, parse and unexpected upstream errors.
	CodeTransient ErrorCode = "transient"
)

// Error is the classified failure threaded through the resolution chain.
// Message is a truncated diagnostic, never a raw response body.
type Error struct {
	Code       ErrorCode
	Message    string
	ScopeHint  string        // set for forbidden
	RetryAfter time.Duration // set for rate_limited
	HTTPStatus int
}

func (e *Error) Error() string {
	switch e.Code {
	case CodeForbidden:
		if e.ScopeHint != "" {
			return fmt.Sprintf("forbidden: %s (needs %s)", e.Message, e.ScopeHint)
		}
	case CodeRateLimited:
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return string(e.Code) + ": " + e.Message
}

// AsError unwraps err into a classified *Error if it is one.
func AsError(err error) (*Error, bool) {
	var qe *Error
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}

// CodeOf returns the classification of err, defaulting to transient for
// errors that escaped classification (context, transport internals).
func CodeOf(err error) ErrorCode {
	if qe, ok := AsError(err); ok {
		return qe.Code
	}
	return CodeTransient
}

// Unauthorized builds a credential-invalid error.
func Unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg, HTTPStatus: 401}
}

// Forbidden builds a permission error with a scope hint.
func Forbidden(msg, scopeHint string) *Error {
	return &Error{Code: CodeForbidden, Message: msg, ScopeHint: scopeHint, HTTPStatus: 403}
}

// NotFound builds a resource-absent error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg, HTTPStatus: 404}
}

// RateLimited builds a rate-limit error with the advertised delay.
func RateLimited(retryAfter time.Duration) *Error {
	return &Error{Code: CodeRateLimited, Message: "upstream rate limit", RetryAfter: retryAfter, HTTPStatus: 429}
}

// Transient builds a transient error, truncating msg to keep diagnostics
// bounded.
func Transient(msg string) *Error {
	return &Error{Code: CodeTransient, Message: Truncate(msg, 200)}
}

// Transientf builds a transient error from a format string.
func Transientf(format string, args ...any) *Error {
	return Transient(fmt.Sprintf(format, args...))
}

// Truncate bounds s to max runes-ish bytes for log and error hygiene.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
