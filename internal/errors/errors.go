// Package errors provides error handling functionality for the chat service.
// It defines error categories, error codes, and typed error construction.
//
// The wire protocol is fire-and-forget: none of these errors are ever sent
// to a client. They exist so that handlers can classify failures internally
// (logging, metrics, tests) while the connection stays up.
package errors

import "fmt"

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryAuth represents connection authentication errors (fatal for the connection)
	CategoryAuth ErrorCategory = "auth"
	// CategoryAuthorization represents per-operation access denials (silent drop)
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryValidation represents malformed or incomplete payloads (silent no-op)
	CategoryValidation ErrorCategory = "validation"
	// CategoryNotFound represents absent conversations or messages (silent no-op)
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryStore represents persistence layer faults (logged, swallowed)
	CategoryStore ErrorCategory = "store"
)

// ErrorCode represents specific error codes
type ErrorCode string

const (
	// Authentication errors
	ErrCodeMissingCredential ErrorCode = "MISSING_CREDENTIAL"
	ErrCodeInvalidCredential ErrorCode = "INVALID_CREDENTIAL"
	ErrCodeExpiredCredential ErrorCode = "EXPIRED_CREDENTIAL"
	ErrCodeInvalidSignature  ErrorCode = "INVALID_SIGNATURE"
	ErrCodeMissingClaims     ErrorCode = "MISSING_CLAIMS"

	// Authorization errors
	ErrCodeAccessDenied ErrorCode = "ACCESS_DENIED"

	// Validation errors
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	ErrCodeMissingField  ErrorCode = "MISSING_FIELD"

	// Lookup errors
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// Persistence errors
	ErrCodeStoreFault ErrorCode = "STORE_FAULT"
)

// ChatError represents an application error with category information
type ChatError struct {
	Category ErrorCategory
	Code     ErrorCode
	Message  string
	Cause    error
}

// Error implements the error interface
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// IsFatal returns true if the error requires connection closure.
// Only authentication failures are fatal; everything else is swallowed.
func (e *ChatError) IsFatal() bool {
	return e.Category == CategoryAuth
}

// NewAuthError creates a new authentication error (fatal for the connection)
func NewAuthError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category: CategoryAuth,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewAuthorizationError creates a new access-denied error
func NewAuthorizationError(message string) *ChatError {
	return &ChatError{
		Category: CategoryAuthorization,
		Code:     ErrCodeAccessDenied,
		Message:  message,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code ErrorCode, message string, cause error) *ChatError {
	return &ChatError{
		Category: CategoryValidation,
		Code:     code,
		Message:  message,
		Cause:    cause,
	}
}

// NewNotFoundError creates a new not-found error
func NewNotFoundError(message string) *ChatError {
	return &ChatError{
		Category: CategoryNotFound,
		Code:     ErrCodeNotFound,
		Message:  message,
	}
}

// NewStoreError creates a new persistence fault
func NewStoreError(message string, cause error) *ChatError {
	return &ChatError{
		Category: CategoryStore,
		Code:     ErrCodeStoreFault,
		Message:  message,
		Cause:    cause,
	}
}

// ErrInvalidEventFormat creates an invalid event format error
func ErrInvalidEventFormat(details string, cause error) *ChatError {
	return NewValidationError(ErrCodeInvalidFormat, fmt.Sprintf("Invalid event format: %s", details), cause)
}
