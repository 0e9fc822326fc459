// Package errors provides structured sync errors with codes, categories, and context.
package errors

import (
	"encoding/json"
	stderr "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode identifies a class of failure inside the sync engine.
type ErrorCode string

const (
	// Configuration
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigLoad    ErrorCode = "CONFIG_LOAD"

	// Transport
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"

	// Blob store
	ErrCodeObjectNotFound  ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound  ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageRead     ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite    ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageDelete   ErrorCode = "STORAGE_DELETE"
	ErrCodeRequestTooLarge ErrorCode = "REQUEST_TOO_LARGE"
	ErrCodeAccessDenied    ErrorCode = "ACCESS_DENIED"

	// Documents
	ErrCodeMalformedDocument ErrorCode = "MALFORMED_DOCUMENT"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeForeignDocument   ErrorCode = "FOREIGN_DOCUMENT"

	// Local persistence
	ErrCodeCacheRead  ErrorCode = "CACHE_READ"
	ErrCodeCacheWrite ErrorCode = "CACHE_WRITE"

	// Operations
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeUnsupported       ErrorCode = "UNSUPPORTED"

	// Internal
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory groups error codes by the tier that failed.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryTransport     ErrorCategory = "transport"
	CategoryStorage       ErrorCategory = "storage"
	CategoryDocument      ErrorCategory = "document"
	CategoryLocal         ErrorCategory = "local"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// SyncError is a structured error carrying a code and operational context.
type SyncError struct {
	Code     ErrorCode         `json:"code"`
	Category ErrorCategory     `json:"category"`
	Message  string            `json:"message"`
	Context  map[string]string `json:"context,omitempty"`
	Cause    error             `json:"-"`

	Component string    `json:"component,omitempty"`
	Operation string    `json:"operation,omitempty"`
	Retryable bool      `json:"retryable"`
	Timestamp time.Time `json:"timestamp"`
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	var b strings.Builder
	if e.Component != "" {
		b.WriteString("[")
		b.WriteString(e.Component)
		if e.Operation != "" {
			b.WriteString(":")
			b.WriteString(e.Operation)
		}
		b.WriteString("] ")
	}
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *SyncError) Unwrap() error {
	return e.Cause
}

// Is matches another SyncError by code, so errors.Is(err, New(code, "")) works.
func (e *SyncError) Is(target error) bool {
	if t, ok := target.(*SyncError); ok {
		return e.Code == t.Code
	}
	return false
}

// String returns a detailed representation for logging.
func (e *SyncError) String() string {
	parts := []string{
		fmt.Sprintf("Code=%s", e.Code),
		fmt.Sprintf("Category=%s", e.Category),
		fmt.Sprintf("Message=%q", e.Message),
	}
	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Context) > 0 {
		ctx, _ := json.Marshal(e.Context)
		parts = append(parts, fmt.Sprintf("Context=%s", ctx))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}
	return fmt.Sprintf("SyncError{%s}", strings.Join(parts, ", "))
}

// NewError creates a SyncError with category and retryability derived from the code.
func NewError(code ErrorCode, message string) *SyncError {
	return &SyncError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
		Timestamp: time.Now(),
	}
}

// Wrap creates a SyncError around cause.
func Wrap(cause error, code ErrorCode, message string) *SyncError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category of a code.
func GetCategory(code ErrorCode) ErrorCategory {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigLoad:
		return CategoryConfiguration
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeCircuitOpen:
		return CategoryTransport
	case ErrCodeObjectNotFound, ErrCodeBucketNotFound, ErrCodeStorageRead, ErrCodeStorageWrite,
		ErrCodeStorageDelete, ErrCodeRequestTooLarge, ErrCodeAccessDenied:
		return CategoryStorage
	case ErrCodeMalformedDocument, ErrCodeValidationFailed, ErrCodeForeignDocument:
		return CategoryDocument
	case ErrCodeCacheRead, ErrCodeCacheWrite:
		return CategoryLocal
	case ErrCodeOperationCanceled, ErrCodeRetryExhausted, ErrCodeUnsupported:
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault reports whether a code is worth retrying at the transport level.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeNetworkError, ErrCodeConnectionTimeout, ErrCodeStorageRead, ErrCodeInternalError:
		return true
	}
	return false
}

// WithContext adds a context key/value.
func (e *SyncError) WithContext(key, value string) *SyncError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithComponent sets the component.
func (e *SyncError) WithComponent(component string) *SyncError {
	e.Component = component
	return e
}

// WithOperation sets the operation.
func (e *SyncError) WithOperation(operation string) *SyncError {
	e.Operation = operation
	return e
}

// WithCause sets the underlying cause.
func (e *SyncError) WithCause(cause error) *SyncError {
	e.Cause = cause
	return e
}

// WithRetryable overrides the default retryability.
func (e *SyncError) WithRetryable(retryable bool) *SyncError {
	e.Retryable = retryable
	return e
}

// CodeOf returns the code of the outermost SyncError in err's chain, or "" if none.
func CodeOf(err error) ErrorCode {
	var se *SyncError
	if stderr.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsCode reports whether any SyncError in err's chain carries code.
func IsCode(err error, code ErrorCode) bool {
	return err != nil && stderr.Is(err, &SyncError{Code: code})
}

// IsRetryable reports whether err is a SyncError flagged retryable.
func IsRetryable(err error) bool {
	var se *SyncError
	if stderr.As(err, &se) {
		return se.Retryable
	}
	return false
}
