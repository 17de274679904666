// Package apperr defines the error kinds returned across the service boundary.
//
// Policy outcomes (wrong role, duplicate attendance, code mismatch...) are
// returned as *Error values carrying a Kind. Anything else is treated as
// KindInternal.
package apperr

import (
	"errors"
	"fmt"
)

// Kind discriminates the failure classes callers act on.
type Kind string

const (
	KindUnauthenticated       Kind = "UNAUTHENTICATED"
	KindForbidden             Kind = "FORBIDDEN"
	KindNotFound              Kind = "NOT_FOUND"
	KindValidation            Kind = "VALIDATION"
	KindConflict              Kind = "CONFLICT"
	KindConflictActiveSession Kind = "CONFLICT_ACTIVE_SESSION"
	KindNoActiveSession       Kind = "NO_ACTIVE_SESSION"
	KindAlreadyEnrolled       Kind = "ALREADY_ENROLLED"
	KindNotEnrolled           Kind = "NOT_ENROLLED"
	KindDuplicateAttendance   Kind = "DUPLICATE_ATTENDANCE"
	KindSessionNotActive      Kind = "SESSION_NOT_ACTIVE"
	KindWrongMethod           Kind = "WRONG_METHOD"
	KindCodeMismatch          Kind = "CODE_MISMATCH"
	KindTooFarAway            Kind = "TOO_FAR_AWAY"
	KindRateLimited           Kind = "RATE_LIMITED"
	KindInternal              Kind = "INTERNAL"
)

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Message string
	// Distance is the measured distance in meters for KindTooFarAway.
	Distance float64
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind and message, so sentinels survive
// being re-created by storage backends.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf reports the kind of err. Unclassified errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Unauthenticated, Forbidden, NotFound and Validation are shorthands for the
// common kinds.
func Unauthenticated(msg string) *Error { return New(KindUnauthenticated, msg) }
func Forbidden(msg string) *Error       { return New(KindForbidden, msg) }
func NotFound(msg string) *Error        { return New(KindNotFound, msg) }
func Validation(msg string) *Error      { return New(KindValidation, msg) }
