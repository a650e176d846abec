package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of kernel error.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a resource was not found.
	ErrCodeNotFound ErrorCode = "not_found"
	// ErrCodeConflict indicates a conflict with existing data (e.g., unique constraint violation).
	ErrCodeConflict ErrorCode = "conflict"
	// ErrCodeValidation indicates invalid input data.
	ErrCodeValidation ErrorCode = "validation"
	// ErrCodeInternal indicates an unexpected internal fault.
	ErrCodeInternal ErrorCode = "internal"
	// ErrCodeTimeout indicates a timeout occurred.
	ErrCodeTimeout ErrorCode = "timeout"
	// ErrCodeCanceled indicates the operation was canceled.
	ErrCodeCanceled ErrorCode = "canceled"

	// ErrCodeUnsupportedToken indicates no realm recognizes the submitted token type.
	ErrCodeUnsupportedToken ErrorCode = "unsupported_token"
	// ErrCodeIncorrectCredentials indicates the secret material did not match.
	ErrCodeIncorrectCredentials ErrorCode = "incorrect_credentials"
	// ErrCodeUnknownAccount indicates the realm has no record of the principal.
	ErrCodeUnknownAccount ErrorCode = "unknown_account"
	// ErrCodeLockedAccount indicates the account is administratively locked.
	ErrCodeLockedAccount ErrorCode = "locked_account"
	// ErrCodeExcessiveAttempts indicates too many failed attempts were made.
	ErrCodeExcessiveAttempts ErrorCode = "excessive_attempts"
	// ErrCodeExpiredCredentials indicates the credentials are no longer valid.
	ErrCodeExpiredCredentials ErrorCode = "expired_credentials"
	// ErrCodeConcurrentAccess indicates a conflicting concurrent authentication attempt.
	ErrCodeConcurrentAccess ErrorCode = "concurrent_access"
	// ErrCodeAuthenticationFailed indicates the configured strategy failed overall.
	ErrCodeAuthenticationFailed ErrorCode = "authentication_failed"

	// ErrCodeUnknownSession indicates the session identifier is not registered.
	ErrCodeUnknownSession ErrorCode = "unknown_session"
	// ErrCodeExpiredSession indicates the session timed out.
	ErrCodeExpiredSession ErrorCode = "expired_session"
	// ErrCodeStoppedSession indicates the session was explicitly stopped.
	ErrCodeStoppedSession ErrorCode = "stopped_session"

	// ErrCodeInvalidPermission indicates a malformed permission string.
	ErrCodeInvalidPermission ErrorCode = "invalid_permission"
	// ErrCodeUnauthenticated indicates an operation required an authenticated session.
	ErrCodeUnauthenticated ErrorCode = "unauthenticated"
	// ErrCodeUnauthorized indicates an authorization check denied access.
	ErrCodeUnauthorized ErrorCode = "unauthorized"
)

// AppError represents a structured error with a code, message, and optional cause.
// It supports error wrapping and unwrapping for use with errors.Is and errors.As.
type AppError struct {
	// Code categorizes the error type
	Code ErrorCode
	// Message is a human-readable error message
	Message string
	// Cause is the underlying error that caused this error (optional)
	Cause error
	// Field is the specific field that caused the error (optional, for validation errors)
	Field string
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, enabling errors.Is and errors.As.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError with the given code and message.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates an AppError with the given code and a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// NotFound creates a new NotFound error.
func NotFound(message string) *AppError {
	return New(ErrCodeNotFound, message)
}

// NotFoundf creates a new NotFound error with formatted message.
func NotFoundf(format string, args ...any) *AppError {
	return Newf(ErrCodeNotFound, format, args...)
}

// Conflict creates a new Conflict error.
func Conflict(message string) *AppError {
	return New(ErrCodeConflict, message)
}

// Validation creates a new Validation error.
func Validation(message string) *AppError {
	return New(ErrCodeValidation, message)
}

// Validationf creates a new Validation error with formatted message.
func Validationf(format string, args ...any) *AppError {
	return Newf(ErrCodeValidation, format, args...)
}

// ValidationField creates a new Validation error for a specific field.
func ValidationField(field, message string) *AppError {
	return &AppError{
		Code:    ErrCodeValidation,
		Message: message,
		Field:   field,
	}
}

// Internal creates a new Internal error.
func Internal(message string) *AppError {
	return New(ErrCodeInternal, message)
}

// Internalf creates a new Internal error with formatted message.
func Internalf(format string, args ...any) *AppError {
	return Newf(ErrCodeInternal, format, args...)
}

// Wrap wraps an existing error with an AppError, preserving the cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an existing error with an AppError and formatted message.
func Wrapf(err error, code ErrorCode, format string, args ...any) *AppError {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// isCode checks if an error has a specific error code.
func isCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

// Is reports whether err is an AppError carrying code.
func Is(err error, code ErrorCode) bool {
	return isCode(err, code)
}

// IsNotFound checks if an error is a NotFound error.
func IsNotFound(err error) bool {
	return isCode(err, ErrCodeNotFound)
}

// IsConflict checks if an error is a Conflict error.
func IsConflict(err error) bool {
	return isCode(err, ErrCodeConflict)
}

// IsValidation checks if an error is a Validation error.
func IsValidation(err error) bool {
	return isCode(err, ErrCodeValidation)
}

// IsInternal checks if an error is an Internal error.
func IsInternal(err error) bool {
	return isCode(err, ErrCodeInternal)
}

// IsTimeout checks if an error is a Timeout error.
func IsTimeout(err error) bool {
	return isCode(err, ErrCodeTimeout)
}

// IsCanceled checks if an error is a Canceled error.
func IsCanceled(err error) bool {
	return isCode(err, ErrCodeCanceled)
}

// IsUnknownSession checks if an error reports an unregistered session id.
func IsUnknownSession(err error) bool {
	return isCode(err, ErrCodeUnknownSession)
}

// IsExpiredSession checks if an error reports a timed-out session.
func IsExpiredSession(err error) bool {
	return isCode(err, ErrCodeExpiredSession)
}

// IsStoppedSession checks if an error reports an explicitly stopped session.
func IsStoppedSession(err error) bool {
	return isCode(err, ErrCodeStoppedSession)
}

// IsInvalidPermission checks if an error reports a malformed permission.
func IsInvalidPermission(err error) bool {
	return isCode(err, ErrCodeInvalidPermission)
}

// IsUnauthorized checks if an error reports a denied authorization check.
func IsUnauthorized(err error) bool {
	return isCode(err, ErrCodeUnauthorized)
}

// IsUnauthenticated checks if an error reports a missing authenticated principal.
func IsUnauthenticated(err error) bool {
	return isCode(err, ErrCodeUnauthenticated)
}

// GetCode returns the ErrorCode from an error, or empty string if not an AppError.
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the Field from an error, or empty string if not an AppError or no field set.
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
