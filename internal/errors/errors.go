// Package errors provides coded domain errors for the sync engine. Sentinels compare by
// code, so errors.Is(err, ErrOffline) matches any offline error whatever its message or
// cause. The control API maps each code to an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Standard library helpers, so callers need only one errors import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
	New  = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the engine.
const (
	CodeAuthRequired        Code = "AUTH_REQUIRED"
	CodeOffline             Code = "OFFLINE"
	CodeRemoteReadFailed    Code = "REMOTE_READ_FAILED"
	CodeRemoteWriteFailed   Code = "REMOTE_WRITE_FAILED"
	CodeTransactionAborted  Code = "TRANSACTION_ABORTED"
	CodePartialBatchFailure Code = "PARTIAL_BATCH_FAILURE"
	CodeRetriesExhausted    Code = "RETRIES_EXHAUSTED"
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION"
)

// HTTPStatus returns the status the control API reports for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeAuthRequired:
		return http.StatusUnauthorized
	case CodeOffline:
		return http.StatusServiceUnavailable
	case CodeRemoteReadFailed, CodeRemoteWriteFailed, CodeRetriesExhausted:
		return http.StatusBadGateway
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithCause returns a copy of the error wrapping err.
func (e *Error) WithCause(err error) *Error {
	return &Error{Code: e.Code, Message: e.Message, Details: e.Details, cause: err}
}

// Sentinel errors for use with errors.Is().
var (
	ErrAuthRequired        = &Error{Code: CodeAuthRequired, Message: "sign-in required"}
	ErrOffline             = &Error{Code: CodeOffline, Message: "operation requires connectivity"}
	ErrRemoteReadFailed    = &Error{Code: CodeRemoteReadFailed, Message: "remote read failed"}
	ErrRemoteWriteFailed   = &Error{Code: CodeRemoteWriteFailed, Message: "remote write failed"}
	ErrTransactionAborted  = &Error{Code: CodeTransactionAborted, Message: "local transaction aborted"}
	ErrPartialBatchFailure = &Error{Code: CodePartialBatchFailure, Message: "some items failed"}
	ErrRetriesExhausted    = &Error{Code: CodeRetriesExhausted, Message: "retries exhausted"}
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
)

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}

// RemoteRead wraps a failed remote fetch for the named resource.
func RemoteRead(resource string, err error) *Error {
	return Wrapf(err, CodeRemoteReadFailed, "fetch %s", resource)
}

// RemoteWrite wraps a failed remote write for the named resource.
func RemoteWrite(resource string, err error) *Error {
	return Wrapf(err, CodeRemoteWriteFailed, "write %s", resource)
}

// TransactionAborted wraps a local transaction failure.
func TransactionAborted(scope string, err error) *Error {
	return Wrapf(err, CodeTransactionAborted, "transaction %s", scope)
}

// PartialBatchFailure builds the aggregated message for a bulk operation.
func PartialBatchFailure(op string, failed, total int) *Error {
	return &Error{
		Code:    CodePartialBatchFailure,
		Message: fmt.Sprintf("%d of %d %s failed", failed, total, op),
		Details: map[string]int{"failed": failed, "total": total},
	}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}
