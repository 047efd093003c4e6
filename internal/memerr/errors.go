// Package memerr defines the error taxonomy shared across the memory engine.
// Errors carry a stable Code so callers can branch with errors.Is, while the
// wrapped cause is preserved for logging.
package memerr

import (
	"errors"
	"fmt"
)

// Code is a closed set of error categories surfaced by the engine.
type Code string

const (
	NotFound            Code = "NOT_FOUND"
	InvalidInput         Code = "INVALID_INPUT"
	InvalidCategory      Code = "INVALID_CATEGORY"
	Conflict             Code = "CONFLICT"
	InitRequired         Code = "INIT_REQUIRED"
	ContextCheckRequired Code = "CONTEXT_CHECK_REQUIRED"
	Timeout              Code = "TIMEOUT"
	BackendError         Code = "BACKEND_ERROR"
	Internal             Code = "INTERNAL"
)

// Error is the concrete error type returned by engine operations.
type Error struct {
	Code    Code
	Op      string // operation that failed, e.g. "memory.Record"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, memerr.ErrNotFound)-style matching by Code alone:
// it compares e.Code to the target's Code when the target is itself a *Error.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return e.Code == te.Code
	}
	return false
}

// New constructs an *Error with no wrapped cause.
func New(code Code, op, message string) *Error {
	return &Error{Code: code, Op: op, Message: message}
}

// Wrap constructs an *Error wrapping cause.
func Wrap(code Code, op, message string, cause error) *Error {
	return &Error{Code: code, Op: op, Message: message, Cause: cause}
}

// sentinels for errors.Is comparisons against a bare code, e.g.
//
//	if errors.Is(err, memerr.ErrNotFound) { ... }
var (
	ErrNotFound            = &Error{Code: NotFound}
	ErrInvalidInput         = &Error{Code: InvalidInput}
	ErrInvalidCategory      = &Error{Code: InvalidCategory}
	ErrConflict             = &Error{Code: Conflict}
	ErrInitRequired         = &Error{Code: InitRequired}
	ErrContextCheckRequired = &Error{Code: ContextCheckRequired}
	ErrTimeout              = &Error{Code: Timeout}
	ErrBackendError         = &Error{Code: BackendError}
	ErrInternal             = &Error{Code: Internal}
)

// CodeOf extracts the Code from err, defaulting to Internal for unrecognized
// errors so callers always have a taxonomy entry to act on.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return Internal
}
