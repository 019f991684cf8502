// Package errors provides structured error types for svgicon.
//
// Every failure the compiler can surface carries a machine-readable Code so
// callers can decide whether it is fatal for the whole run (discovery, target
// root problems) or local to a single asset (sanitize, per-file writes).
//
// # Error Codes
//
//   - INVALID_*: configuration or input validation failures
//   - DISCOVERY_FAILED: the source root could not be scanned
//   - READ_FAILED: one source asset could not be read
//   - SANITIZE_FAILED: an SVG document could not be parsed
//   - WRITE_FAILED: one generated file could not be written
//   - TARGET_UNWRITABLE: the target tree as a whole cannot be written
//   - NAME_COLLISION: an asset would overwrite a generated manifest
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "source path is required")
//	if errors.Is(err, errors.ErrCodeDiscovery) {
//	    // abort before touching the target tree
//	}
//
//	err := errors.Wrap(errors.ErrCodeSanitize, origErr, "parse %s", rel)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input validation errors
	ErrCodeInvalidInput    Code = "INVALID_INPUT"
	ErrCodeInvalidPath     Code = "INVALID_PATH"
	ErrCodeInvalidTemplate Code = "INVALID_TEMPLATE"
	ErrCodeInvalidConfig   Code = "INVALID_CONFIG"

	// Pipeline errors
	ErrCodeDiscovery Code = "DISCOVERY_FAILED"
	ErrCodeRead      Code = "READ_FAILED"
	ErrCodeSanitize  Code = "SANITIZE_FAILED"
	ErrCodeWrite     Code = "WRITE_FAILED"
	ErrCodeTarget    Code = "TARGET_UNWRITABLE"
	ErrCodeCollision Code = "NAME_COLLISION"
	ErrCodeTimeout   Code = "TIMEOUT"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// Only the outermost *Error in the chain is consulted, so a wrapped
// SANITIZE_FAILED inside a WRITE_FAILED reports as WRITE_FAILED.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types the code prefix is dropped and the cause is appended.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return fmt.Sprintf("%s: %v", e.Message, e.Cause)
		}
		return e.Message
	}
	return err.Error()
}

// IsFatal reports whether err must stop the whole run rather than a single asset.
func IsFatal(err error) bool {
	switch GetCode(err) {
	case ErrCodeDiscovery, ErrCodeInvalidInput, ErrCodeInvalidConfig,
		ErrCodeInvalidTemplate, ErrCodeTarget:
		return true
	}
	return false
}
