// Package errors provides structured error types for pastoralist.
//
// Error codes let the CLI and library callers tell apart the failure classes
// of a security check:
//   - PROVIDER_UNAVAILABLE: a vulnerability source is not installed or not
//     authenticated; the check continues without it, even in strict mode
//   - TRANSPORT: a provider request or subprocess failed without usable output
//   - INVALID_MANIFEST, FILE_NOT_FOUND: a package.json could not be read or parsed
//   - INVALID_PACKAGE: a package name is unsafe to put in a URL or command line
//   - MANIFEST_WRITE, BACKUP_FAILED, BACKUP_NOT_FOUND: the fix or rollback path failed
//   - INVALID_INPUT, INVALID_PATH: a usage error detected at construction time
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInvalidInput, "concurrency must be >= 1, got %d", n)
//	if errors.Is(err, errors.ErrCodeInvalidInput) {
//	    // Handle usage error
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeManifestWrite, origErr, "write %s", path)
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
	ErrCodeInvalidPackage  Code = "INVALID_PACKAGE"
	ErrCodeInvalidManifest Code = "INVALID_MANIFEST"
	ErrCodeInvalidPath     Code = "INVALID_PATH"

	// Resource not found errors
	ErrCodeFileNotFound   Code = "FILE_NOT_FOUND"
	ErrCodeBackupNotFound Code = "BACKUP_NOT_FOUND"

	// Provider errors
	ErrCodeProviderUnavailable Code = "PROVIDER_UNAVAILABLE"
	ErrCodeTransport           Code = "TRANSPORT"

	// Write path errors
	ErrCodeManifestWrite Code = "MANIFEST_WRITE"
	ErrCodeBackupFailed  Code = "BACKUP_FAILED"
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
// It unwraps the error chain looking for an *Error with a matching code.
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

// UserMessage returns a user-friendly message for the error: the chain of
// messages without code prefixes. Only a leading run of *Error values is
// rewritten; anything else, including aggregates, prints as-is.
func UserMessage(err error) string {
	e, ok := err.(*Error)
	if !ok {
		return err.Error()
	}
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + UserMessage(e.Cause)
}

// IsFatal reports whether err may fail a strict check. An unavailable
// provider is skipped instead, whatever the strictness.
func IsFatal(err error) bool {
	return err != nil && !Is(err, ErrCodeProviderUnavailable)
}
