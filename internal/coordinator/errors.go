package coordinator

import "fmt"

// ErrorCode classifies handler failures per the error taxonomy:
// configuration and upstream errors are never retried, environment
// errors describe a missing precondition rather than a crash.
type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorConfiguration ErrorCode = "CONFIGURATION_ERROR"
	ErrorUpstream      ErrorCode = "UPSTREAM_ERROR"
	ErrorEnvironment   ErrorCode = "ENVIRONMENT_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

// Error is the structured failure every handler produces; surfaces
// display its text verbatim.
type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("coordinator: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("coordinator: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}
