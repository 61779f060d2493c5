// Package domainerrors provides coded errors that cross module boundaries.
//
// Services return these so transport layers can translate them to HTTP
// statuses without string matching. Infrastructure layers should return
// pkg/platform/sentinel errors instead and let services wrap them here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies a domain error for transport translation.
type Code string

const (
	CodeBadRequest        Code = "bad_request"
	CodeValidation        Code = "validation_failed"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeInvalidTransition Code = "invalid_transition"
	CodeLedgerUnavailable Code = "ledger_unavailable"
	CodeIntegrity         Code = "integrity_violation"
	CodeInternal          Code = "internal_error"
)

// Error is a coded domain error. Violations is populated only for
// CodeValidation errors and always carries the complete list of violated
// rules, never just the first one.
type Error struct {
	Code       Code
	Message    string
	Violations []string
	Warnings   []string
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NewValidation creates a validation error carrying every violated rule and
// any non-blocking warnings gathered during validation.
func NewValidation(violations, warnings []string) *Error {
	return &Error{
		Code:       CodeValidation,
		Message:    "validation failed",
		Violations: violations,
		Warnings:   warnings,
	}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}
