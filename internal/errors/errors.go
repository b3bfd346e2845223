// Package errors provides the application error type used across Backstage.
// Errors carry a machine code, a kind used for retry decisions and an HTTP status mapping.
// Clients only ever see the flat message: {"error": "..."}.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code represents an application error code.
type Code string

// Error codes for different error categories.
const (
	// Authentication
	CodeUnauthorized       Code = "UNAUTHORIZED"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeSessionExpired     Code = "SESSION_EXPIRED"

	// Validation
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeMissingField  Code = "MISSING_FIELD"
	CodeInvalidFormat Code = "INVALID_FORMAT"
	CodeUnknownItem   Code = "UNKNOWN_ITEM"
	CodeTooLarge      Code = "PAYLOAD_TOO_LARGE"

	// Resources
	CodeNotFound Code = "NOT_FOUND"
	CodeConflict Code = "CONFLICT"

	// Upstream
	CodeUpstream    Code = "UPSTREAM_ERROR"
	CodeCircuitOpen Code = "CIRCUIT_OPEN"
	CodeRateLimited Code = "RATE_LIMITED"
	CodeTimeout     Code = "TIMEOUT"

	// Internal
	CodeInternal Code = "INTERNAL_ERROR"
	CodeDatabase Code = "DATABASE_ERROR"
	CodeRender   Code = "RENDER_ERROR"
)

// Kind represents the kind of error for classification.
type Kind int

const (
	// KindUnknown is an unknown error kind.
	KindUnknown Kind = iota
	// KindUser indicates a caller-caused error (bad input, unauthorized).
	KindUser
	// KindSystem indicates a failure on our side (database down, render failure).
	KindSystem
	// KindTransient indicates a temporary error that may succeed on retry.
	KindTransient
)

// Error is the base application error type.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Kind    Kind   `json:"-"`
	// Op is the operation being performed (e.g. "tickets.SetState").
	Op  string `json:"-"`
	Err error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target carries the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthorized, CodeInvalidCredentials, CodeSessionExpired:
		return http.StatusUnauthorized
	case CodeValidation, CodeMissingField, CodeInvalidFormat, CodeUnknownItem:
		return http.StatusBadRequest
	case CodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstream, CodeCircuitOpen:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsRetriable returns true if the error may succeed on retry.
func (e *Error) IsRetriable() bool {
	return e.Kind == KindTransient
}

// IsUserError returns true if the error was caused by the caller.
func (e *Error) IsUserError() bool {
	return e.Kind == KindUser
}

// ErrorResponse is the flat JSON body returned for every API error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New creates a new Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, op string, code Code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Kind:    kindForCode(code),
		Op:      op,
		Err:     err,
	}
}

// WrapWithOp wraps an existing error preserving its code but adding operation context.
func WrapWithOp(err error, op string) *Error {
	var e *Error
	if errors.As(err, &e) {
		return &Error{
			Code:    e.Code,
			Message: e.Message,
			Kind:    e.Kind,
			Op:      op,
			Err:     e.Err,
		}
	}
	return &Error{
		Code:    CodeInternal,
		Message: err.Error(),
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

func kindForCode(code Code) Kind {
	switch code {
	case CodeUnauthorized, CodeInvalidCredentials, CodeSessionExpired:
		return KindUser
	case CodeValidation, CodeMissingField, CodeInvalidFormat, CodeUnknownItem, CodeTooLarge:
		return KindUser
	case CodeNotFound, CodeConflict:
		return KindUser
	case CodeRateLimited, CodeTimeout, CodeCircuitOpen, CodeUpstream:
		return KindTransient
	default:
		return KindSystem
	}
}

var (
	// ErrNotFound indicates a requested resource was not found.
	ErrNotFound = New(CodeNotFound, "resource not found")

	// ErrUnauthorized indicates missing or invalid authentication.
	ErrUnauthorized = New(CodeUnauthorized, "authentication required")

	// ErrInvalidCredentials indicates wrong email/password.
	ErrInvalidCredentials = New(CodeInvalidCredentials, "invalid email or password")

	// ErrSessionExpired indicates the operator session has expired.
	ErrSessionExpired = New(CodeSessionExpired, "session has expired")

	// ErrRateLimited indicates too many requests.
	ErrRateLimited = New(CodeRateLimited, "rate limit exceeded")

	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = New(CodeCircuitOpen, "service temporarily unavailable")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = New(CodeTimeout, "operation timed out")
)

// NotFound creates a not found error for a specific resource.
func NotFound(resource string) *Error {
	return &Error{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Kind:    KindUser,
	}
}

// ValidationFailed creates a validation error with details.
func ValidationFailed(message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Kind:    KindUser,
	}
}

// MissingField creates a missing field validation error.
func MissingField(field string) *Error {
	return &Error{
		Code:    CodeMissingField,
		Message: fmt.Sprintf("missing required field: %s", field),
		Kind:    KindUser,
	}
}

// InvalidFormat creates an invalid format validation error.
func InvalidFormat(field, expected string) *Error {
	return &Error{
		Code:    CodeInvalidFormat,
		Message: fmt.Sprintf("invalid format for %s: expected %s", field, expected),
		Kind:    KindUser,
	}
}

// UnknownItem reports a catalog id that does not exist.
func UnknownItem(kind, id string) *Error {
	return &Error{
		Code:    CodeUnknownItem,
		Message: fmt.Sprintf("unknown %s: %q", kind, id),
		Kind:    KindUser,
	}
}

// DatabaseError creates a database error with the underlying cause.
func DatabaseError(op string, err error) *Error {
	return &Error{
		Code:    CodeDatabase,
		Message: "database operation failed",
		Kind:    KindSystem,
		Op:      op,
		Err:     err,
	}
}

// UpstreamError creates an error for a failed call to a tenant deployment.
func UpstreamError(service string, err error) *Error {
	return &Error{
		Code:    CodeUpstream,
		Message: fmt.Sprintf("%s upstream error", service),
		Kind:    KindTransient,
		Err:     err,
	}
}

// RenderError creates an error for a failed PDF render.
func RenderError(err error) *Error {
	return &Error{
		Code:    CodeRender,
		Message: "failed to render document",
		Kind:    KindSystem,
		Err:     err,
	}
}

// InternalError creates a generic internal error.
func InternalError(message string, err error) *Error {
	return &Error{
		Code:    CodeInternal,
		Message: message,
		Kind:    KindSystem,
		Err:     err,
	}
}

// GetCode extracts the error code from an error, returning CodeInternal for non-app errors.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetHTTPStatus extracts the HTTP status from an error, returning 500 for non-app errors.
func GetHTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show clients.
// Non-app errors and system errors collapse to a generic message.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindSystem {
		return e.Message
	}
	return "internal server error"
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsRetriable()
	}
	return false
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == CodeNotFound
	}
	return false
}

// IsUserError checks if an error was caused by user action.
func IsUserError(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.IsUserError()
	}
	return false
}
