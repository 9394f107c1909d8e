package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for handling decisions.
type ErrorCategory string

const (
	ErrCatValidation ErrorCategory = "validation" // Invalid input
	ErrCatExecution  ErrorCategory = "execution"  // Remote failure
	ErrCatTimeout    ErrorCategory = "timeout"    // Operation timed out
	ErrCatAuth       ErrorCategory = "auth"       // Authentication failure
	ErrCatNetwork    ErrorCategory = "network"    // Network connectivity
	ErrCatStorage    ErrorCategory = "storage"    // Scope read/write failure
	ErrCatNotFound   ErrorCategory = "not_found"  // Resource not found
	ErrCatConflict   ErrorCategory = "conflict"   // Concurrent modification
	ErrCatCancelled  ErrorCategory = "cancelled"  // User declined
	ErrCatInternal   ErrorCategory = "internal"   // Unexpected internal error
)

// DomainError represents a structured error from the domain layer.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatValidation,
		Code:     code,
		Message:  message,
	}
}

// ErrExecution creates an error for a failed remote operation.
func ErrExecution(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatExecution,
		Code:      code,
		Message:   message,
		Retryable: true,
	}
}

// ErrTimeout creates a timeout error.
func ErrTimeout(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatTimeout,
		Code:      CodeTimeout,
		Message:   message,
		Retryable: true,
	}
}

// ErrNetwork creates a connectivity error.
func ErrNetwork(message string) *DomainError {
	return &DomainError{
		Category:  ErrCatNetwork,
		Code:      CodeRemoteUnreachable,
		Message:   message,
		Retryable: true,
	}
}

// ErrAuth creates an authentication error.
func ErrAuth(message string) *DomainError {
	return &DomainError{
		Category: ErrCatAuth,
		Code:     CodeAuthFailed,
		Message:  message,
	}
}

// ErrStorage creates a storage error.
func ErrStorage(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatStorage,
		Code:     code,
		Message:  message,
	}
}

// ErrNotFound creates a not found error.
func ErrNotFound(resource, id string) *DomainError {
	return &DomainError{
		Category: ErrCatNotFound,
		Code:     CodeNotFound,
		Message:  fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// ErrConflict creates a concurrent modification error.
func ErrConflict(code, message string) *DomainError {
	return &DomainError{
		Category: ErrCatConflict,
		Code:     code,
		Message:  message,
	}
}

// ErrInternal creates an unexpected internal error.
func ErrInternal(message string) *DomainError {
	return &DomainError{
		Category: ErrCatInternal,
		Code:     "INTERNAL",
		Message:  message,
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}

// Predefined error codes
const (
	CodeTimeout           = "TIMEOUT"
	CodeRemoteUnreachable = "REMOTE_UNREACHABLE"
	CodeAuthFailed        = "AUTH_FAILED"
	CodeNotFound          = "NOT_FOUND"

	// Validation error codes
	CodeDefaultAIDisabled   = "DEFAULT_AI_DISABLED"
	CodeUnknownAnalysisType = "UNKNOWN_ANALYSIS_TYPE"
	CodeInvalidTheme        = "INVALID_THEME"
	CodeInvalidNumber       = "INVALID_NUMBER"
	CodeInvalidField        = "INVALID_FIELD"
	CodeFieldDisabled       = "FIELD_DISABLED"
	CodeInvalidJSON         = "INVALID_JSON"
	CodeInvalidShape        = "INVALID_SHAPE"
	CodeInvalidCardNumber   = "INVALID_CARD_NUMBER"
	CodeJiraIncomplete      = "JIRA_CREDENTIALS_INCOMPLETE"
	CodeInvalidDocument     = "INVALID_DOCUMENT"

	// Storage and remote error codes
	CodeStorageWrite   = "STORAGE_WRITE_FAILED"
	CodeStorageRead    = "STORAGE_READ_FAILED"
	CodeRemoteRejected = "REMOTE_REJECTED"
	CodeRemoteFailed   = "REMOTE_FAILED"
	CodeStaleResponse  = "STALE_RESPONSE"
	CodeStaleDocument  = "STALE_DOCUMENT"

	CodeNavigationCancelled  = "NAVIGATION_CANCELLED"
	CodeConfirmationRequired = "CONFIRMATION_REQUIRED"
	CodeClearCancelled       = "CLEAR_CANCELLED"
)

// ErrNavigationCancelled is returned when the user declines to leave a form
// with unsaved changes.
var ErrNavigationCancelled = &DomainError{
	Category: ErrCatCancelled,
	Code:     CodeNavigationCancelled,
	Message:  "navigation cancelled: unsaved changes kept",
}

// ErrClearCancelled is returned when the user declines to wipe the stored
// settings.
var ErrClearCancelled = &DomainError{
	Category: ErrCatCancelled,
	Code:     CodeClearCancelled,
	Message:  "clear cancelled: settings kept",
}

// ErrConfirmationRequired is returned by ports that cannot ask the user
// themselves and need the caller to collect an answer first.
var ErrConfirmationRequired = &DomainError{
	Category: ErrCatConflict,
	Code:     CodeConfirmationRequired,
	Message:  "confirmation required",
}

// ErrStaleResponse is returned when a newer request for the same operation
// superseded this one.
var ErrStaleResponse = &DomainError{
	Category: ErrCatConflict,
	Code:     CodeStaleResponse,
	Message:  "response superseded by a newer request",
}
