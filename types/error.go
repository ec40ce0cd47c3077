package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Workflow error codes
const (
	ErrExportFailure   ErrorCode = "EXPORT_FAILURE"
	ErrEncodingFailure ErrorCode = "ENCODING_FAILURE"
	ErrPublishFailure  ErrorCode = "PUBLISH_FAILURE"
	ErrNoSubjectLoaded ErrorCode = "NO_SUBJECT_LOADED"
	ErrBusy            ErrorCode = "BUSY"
	ErrUnsupported     ErrorCode = "UNSUPPORTED"
)

// Publish failure causes. They travel in Error.Cause wrapped by a
// PUBLISH_FAILURE error, so callers can tell a token failure from an upload one.
const (
	CauseNetwork         ErrorCode = "NETWORK"
	CauseUploadStatus    ErrorCode = "UPLOAD_STATUS"
	CauseTokenStatus     ErrorCode = "TOKEN_STATUS"
	CauseInvalidResponse ErrorCode = "INVALID_RESPONSE"
)

// API error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrNotFound       ErrorCode = "NOT_FOUND"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Strategy   string    `json:"strategy,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithStrategy sets the publish strategy name.
func (e *Error) WithStrategy(strategy string) *Error {
	e.Strategy = strategy
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the outermost error code from an error.
func GetErrorCode(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsCode reports whether any error in the chain carries code.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// PublishCause returns the cause code of a PUBLISH_FAILURE, or "" when err
// is not a publish failure.
func PublishCause(err error) ErrorCode {
	var e *Error
	if !errors.As(err, &e) || e.Code != ErrPublishFailure {
		return ""
	}
	var cause *Error
	if errors.As(e.Cause, &cause) {
		return cause.Code
	}
	return ""
}
