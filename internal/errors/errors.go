// Package errors provides typed domain errors with stable codes so callers
// can branch on the kind of failure without string matching. A NOT_FOUND from
// the entity store is a normal outcome and must never be conflated with a
// transport failure (UNAVAILABLE).
package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a class of error.
type Code string

const (
	ErrCodeNotFound     Code = "NOT_FOUND"
	ErrCodeConflict     Code = "CONFLICT"
	ErrCodeInvalidInput Code = "INVALID_INPUT"
	ErrCodeInvalidState Code = "INVALID_STATE"
	ErrCodeInternal     Code = "INTERNAL"
	ErrCodeUnavailable  Code = "UNAVAILABLE"
)

// Error is a domain error carrying a code, a message and an optional cause.
type Error struct {
	code    Code
	message string
	cause   error
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{code: code, message: fmt.Sprintf(format, args...)}
}

// Wrap annotates an existing error with a code and message, preserving the
// cause for errors.Is/As chains.
func Wrap(err error, code Code, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// NotFound reports that the named resource does not exist.
func NotFound(resource, id string) *Error {
	return Newf(ErrCodeNotFound, "%s %s not found", resource, id)
}

// InvalidInput reports a validation failure for a named field.
func InvalidInput(field, message string) *Error {
	return Newf(ErrCodeInvalidInput, "invalid %s: %s", field, message)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Message returns the human-readable message without the code prefix.
func (e *Error) Message() string { return e.message }

// CodeOf returns the code carried by err, or ErrCodeInternal when err is not
// a domain error.
func CodeOf(err error) Code {
	var de *Error
	if stderrors.As(err, &de) {
		return de.code
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	var de *Error
	return stderrors.As(err, &de) && de.code == code
}

// IsNotFound reports whether err is a NOT_FOUND domain error.
func IsNotFound(err error) bool { return IsCode(err, ErrCodeNotFound) }
