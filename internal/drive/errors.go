package drive

import (
	"fmt"

	errors "github.com/Laisky/errors/v2"
)

// ErrorCode identifies a machine-stable drive error code.
type ErrorCode string

const (
	ErrCodeNotFound         ErrorCode = "NOT_FOUND"
	ErrCodeConflict         ErrorCode = "CONFLICT"
	ErrCodeForbidden        ErrorCode = "FORBIDDEN"
	ErrCodeQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeBlobIntegrity    ErrorCode = "BLOB_INTEGRITY_FAILURE"
	ErrCodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"
	ErrCodeDuplicateVersion ErrorCode = "DUPLICATE_VERSION"
	ErrCodeResourceBusy     ErrorCode = "RESOURCE_BUSY"
)

// Error captures a typed drive error with retryability metadata.
type Error struct {
	Code      ErrorCode
	Message   string
	Retryable bool
}

// Error returns the error message.
func (e *Error) Error() string {
	if e == nil {
		return "drive error: <nil>"
	}
	if e.Message == "" {
		return fmt.Sprintf("drive error: %s", e.Code)
	}
	return e.Message
}

// NewError constructs a typed drive error.
func NewError(code ErrorCode, message string, retryable bool) *Error {
	return &Error{Code: code, Message: message, Retryable: retryable}
}

// AsError extracts a typed drive error from the error chain.
func AsError(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed, true
	}
	return nil, false
}

// IsCode reports whether the error chain contains the given code.
func IsCode(err error, code ErrorCode) bool {
	if err == nil {
		return false
	}
	if typed, ok := AsError(err); ok {
		return typed.Code == code
	}
	return false
}

func errNotFound(what string) *Error {
	return NewError(ErrCodeNotFound, what+" not found", false)
}

func errForbidden(message string) *Error {
	return NewError(ErrCodeForbidden, message, false)
}

func errInvalid(message string) *Error {
	return NewError(ErrCodeInvalidArgument, message, false)
}
