package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a categorized error type
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig ErrorCode = "MISSING_CONFIG"

	// Database errors
	ErrCodeDatabaseConnection ErrorCode = "DATABASE_CONNECTION"
	ErrCodeDatabaseQuery      ErrorCode = "DATABASE_QUERY"
	ErrCodeDatabaseMigration  ErrorCode = "DATABASE_MIGRATION"

	// Gateway errors
	ErrCodeGatewayTransport ErrorCode = "GATEWAY_TRANSPORT"
	ErrCodeGatewayAPI       ErrorCode = "GATEWAY_API"
	ErrCodeGatewayRejected  ErrorCode = "GATEWAY_REJECTED"

	// Data errors
	ErrCodeDataIntegrity ErrorCode = "DATA_INTEGRITY"
	ErrCodeDecode        ErrorCode = "DECODE"

	// Validation errors
	ErrCodeInvalidInput     ErrorCode = "INVALID_INPUT"
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// Security errors
	ErrCodeAuthentication ErrorCode = "AUTHENTICATION"
	ErrCodeRateLimit      ErrorCode = "RATE_LIMIT"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeTimeout       ErrorCode = "TIMEOUT"
	ErrCodeBusy          ErrorCode = "BUSY"
)

// Kind is the coarse class a synchronization cycle acts on.
//
// Transport errors abort the current mailbox only, logical API errors are
// recorded in the call log and end pagination, data integrity errors are
// logged and the offending item skipped, and fatal errors abort the cycle.
type Kind int

const (
	KindFatal Kind = iota
	KindTransport
	KindLogicalAPI
	KindDataIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindLogicalAPI:
		return "logical_api"
	case KindDataIntegrity:
		return "data_integrity"
	default:
		return "fatal"
	}
}

// AppError represents a structured application error
type AppError struct {
	Code        ErrorCode              `json:"code"`
	Kind        Kind                   `json:"-"`
	Message     string                 `json:"message"`
	Cause       error                  `json:"-"`
	Context     map[string]interface{} `json:"context,omitempty"`
	Retryable   bool                   `json:"retryable"`
	UserMessage string                 `json:"user_message,omitempty"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithUserMessage sets a user-friendly message
func (e *AppError) WithUserMessage(msg string) *AppError {
	e.UserMessage = msg
	return e
}

// WithKind overrides the kind derived from the code
func (e *AppError) WithKind(kind Kind) *AppError {
	e.Kind = kind
	return e
}

// New creates a new AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kindOf(code),
		Message: message,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kindOf(code),
		Message: message,
		Cause:   err,
	}
}

// WrapRetryable wraps an error and marks it as retryable
func WrapRetryable(err error, code ErrorCode, message string) *AppError {
	appErr := Wrap(err, code, message)
	appErr.Retryable = true
	return appErr
}

func kindOf(code ErrorCode) Kind {
	switch code {
	case ErrCodeGatewayTransport, ErrCodeTimeout, ErrCodeRateLimit, ErrCodeBusy:
		return KindTransport
	case ErrCodeGatewayAPI, ErrCodeGatewayRejected:
		return KindLogicalAPI
	case ErrCodeDataIntegrity, ErrCodeDecode, ErrCodeNotFound:
		return KindDataIntegrity
	default:
		return KindFatal
	}
}

// As finds the first AppError in err's chain
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Retryable
	}
	return false
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// GetUserMessage extracts a user-friendly message from an error
func GetUserMessage(err error) string {
	if appErr, ok := As(err); ok && appErr.UserMessage != "" {
		return appErr.UserMessage
	}
	return "An internal error occurred"
}
