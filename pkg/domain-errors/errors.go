// Package dErrors defines coded domain errors shared across services and
// transports. Services create errors with a Code so handlers can map them to
// HTTP statuses without string matching, and callers can distinguish
// "forbidden" from "conflict" from "bad input".
package dErrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error. The set mirrors the failure taxonomy of the
// signing and workflow core:
//
//   - CodeInvalidState: operation attempted from a state that does not permit it
//     (signing a completed document, claiming a non-pending task).
//   - CodeForbidden: actor lacks the role or ownership required.
//   - CodeValidation: missing or malformed input the caller can fix
//     (absent signature asset, blocked signing order, empty reason).
//   - CodeImmutable: attempted mutation of an append-only or finalized record.
//   - CodeMissingVariables: document synthesis aborted because required
//     template variables did not resolve.
//   - CodeGeneration: document synthesis failed for any other reason.
type Code string

const (
	CodeInvalidInput     Code = "invalid_input"
	CodeBadRequest       Code = "bad_request"
	CodeNotFound         Code = "not_found"
	CodeConflict         Code = "conflict"
	CodeForbidden        Code = "forbidden"
	CodeInvalidState     Code = "invalid_state"
	CodeValidation       Code = "validation"
	CodeImmutable        Code = "immutable_record"
	CodeMissingVariables Code = "missing_variables"
	CodeGeneration       Code = "generation_failed"
	CodeInternal         Code = "internal"
)

// Error is a coded domain error. Wrapped causes are preserved for errors.Is/As.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}
