package planner

import (
	"errors"
	"fmt"
)

// ErrorKind discriminates the error taxonomy of §7.
type ErrorKind string

const (
	// KindMalformedQuery: empty or over-length input. No Predictor call is made.
	KindMalformedQuery ErrorKind = "malformed_query"
	// KindPredictorFailure: timeout or upstream error from the Predictor port.
	KindPredictorFailure ErrorKind = "predictor_failure"
	// KindParseFailure: the Predictor returned unparseable content.
	KindParseFailure ErrorKind = "parse_failure"
	// KindResolutionFailure: a single Resolver strategy raised; swallowed by the caller.
	KindResolutionFailure ErrorKind = "resolution_failure"
	// KindInvalidPlan: route validation and all repair fallbacks failed.
	KindInvalidPlan ErrorKind = "invalid_plan"
	// KindConfigurationError: an invariant was violated while loading SiteConfiguration.
	KindConfigurationError ErrorKind = "configuration_error"
	// KindAccessDenied: the RBAC clamp rejected the caller's role.
	KindAccessDenied ErrorKind = "access_denied"
)

// Error is a structured planning failure that preserves a Kind discriminator
// and causal chain while still implementing the standard error interface.
// Errors may be nested via Cause, retaining diagnostics across the layered
// pipeline (resolver strategy -> planner -> service).
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   *Error
}

// New constructs an Error of the given Kind with the provided message.
func New(kind ErrorKind, message string) *Error {
	if message == "" {
		message = string(kind)
	}
	return &Error{Kind: kind, Message: message}
}

// NewWithCause constructs an Error that wraps an underlying error, converting
// it into an Error chain so the Kind and message survive serialization while
// still supporting errors.Is/As through Unwrap.
func NewWithCause(kind ErrorKind, message string, cause error) *Error {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &Error{Kind: kind, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into an Error chain, preserving an
// existing Error's Kind when present and defaulting to KindPredictorFailure
// otherwise (the most common boundary at which foreign errors enter the
// pipeline).
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindPredictorFailure, Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns the result as an
// Error of the given Kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return New(kind, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Cause.Error())
	}
	return e.Message
}

// Unwrap returns the underlying Error to support errors.Is/As.
func (e *Error) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Is reports whether target is an *Error with the same Kind, so callers can
// write errors.Is(err, planner.New(planner.KindInvalidPlan, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil {
		return false
	}
	return e.Kind == t.Kind
}
