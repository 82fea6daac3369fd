package research

import (
	"errors"
	"fmt"
)

// Code classifies domain errors.
type Code string

const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeInvalidState Code = "INVALID_STATE"
	CodeValidation   Code = "VALIDATION"
)

// Error is a domain error. Errors match under errors.Is by code; a target
// with a Reason also requires the same Reason.
type Error struct {
	Code    Code
	Reason  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code && (t.Reason == "" || e.Reason == t.Reason)
	}
	return false
}

var (
	ErrNotFound     = &Error{Code: CodeNotFound, Message: "not found"}
	ErrInvalidState = &Error{Code: CodeInvalidState, Message: "invalid state"}
	ErrValidation   = &Error{Code: CodeValidation, Message: "validation failed"}

	ErrSnapshotFrozen  = &Error{Code: CodeInvalidState, Reason: "frozen", Message: "snapshot is frozen"}
	ErrVersionConflict = &Error{Code: CodeInvalidState, Reason: "version", Message: "assertion version changed"}
	ErrNotPending      = &Error{Code: CodeInvalidState, Reason: "not_pending", Message: "queue entry is not pending"}
)

func notFound(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalidState(format string, args ...any) error {
	return &Error{Code: CodeInvalidState, Message: fmt.Sprintf(format, args...)}
}

func validationError(cause error, format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...), Cause: cause}
}
