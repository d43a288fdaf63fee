package errors

import (
	"fmt"
	"net/http"
)

// Common error creators for frequent use cases

// NewValidationError creates a validation error with field context
func NewValidationError(field, value, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithContext("value", value).
		WithUserMessage(fmt.Sprintf("Invalid %s: %s", field, message))
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewDatabaseError creates a database error with operation context
func NewDatabaseError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeDatabaseQuery, fmt.Sprintf("database %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Database operation failed")
}

// NewTransportError creates a transport failure for a gateway call.
// statusCode is zero when no HTTP response was received.
func NewTransportError(gateway, operation string, statusCode int, err error) *AppError {
	appErr := WrapRetryable(err, ErrCodeGatewayTransport, fmt.Sprintf("gateway %s unreachable", operation)).
		WithContext("gateway", gateway).
		WithContext("operation", operation).
		WithUserMessage("Gateway temporarily unavailable")
	if statusCode != 0 {
		appErr.WithContext("status_code", statusCode)
	}
	return appErr
}

// NewAPIError creates an error for a non-success HTTP response from a gateway.
// Transient statuses are classified as transport, everything else is fatal.
func NewAPIError(gateway, operation string, statusCode int, err error) *AppError {
	if IsTransportStatus(statusCode) {
		return NewTransportError(gateway, operation, statusCode, err)
	}
	code := ErrCodeInternalError
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		code = ErrCodeAuthentication
	}
	return Wrap(err, code, fmt.Sprintf("gateway %s call failed", operation)).
		WithKind(KindFatal).
		WithContext("gateway", gateway).
		WithContext("operation", operation).
		WithContext("status_code", statusCode)
}

// NewLogicalAPIError creates an error for a well-formed gateway response
// that carries a non-zero error id.
func NewLogicalAPIError(operation string, errorID int, description string) *AppError {
	return New(ErrCodeGatewayAPI, fmt.Sprintf("gateway %s returned error %d", operation, errorID)).
		WithContext("operation", operation).
		WithContext("error_id", errorID).
		WithContext("error_desc", description).
		WithUserMessage(description)
}

// NewDataIntegrityError creates an error for missing or inconsistent local records
func NewDataIntegrityError(resource, identifier, message string) *AppError {
	return New(ErrCodeDataIntegrity, message).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s %s is not provisioned", resource, identifier))
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTP helpers

// HTTPStatusCode maps error codes to appropriate HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeNotFound, ErrCodeDataIntegrity:
		return http.StatusNotFound
	case ErrCodeBusy:
		return http.StatusConflict
	case ErrCodeGatewayRejected, ErrCodeGatewayAPI:
		return http.StatusUnprocessableEntity
	case ErrCodeRateLimit:
		return http.StatusTooManyRequests
	case ErrCodeGatewayTransport, ErrCodeTimeout:
		return http.StatusBadGateway
	case ErrCodeDatabaseConnection, ErrCodeDatabaseQuery, ErrCodeDatabaseMigration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorResponse is the JSON body written for failed API requests
type HTTPErrorResponse struct {
	Error struct {
		Code    ErrorCode   `json:"code"`
		Message string      `json:"message"`
		Context interface{} `json:"context,omitempty"`
	} `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// ToHTTPResponse converts an error to a standardized HTTP response
func ToHTTPResponse(err error, requestID string) HTTPErrorResponse {
	response := HTTPErrorResponse{
		RequestID: requestID,
	}

	appErr, ok := As(err)
	if !ok {
		response.Error.Code = ErrCodeInternalError
		response.Error.Message = GetUserMessage(err)
		return response
	}

	response.Error.Code = appErr.Code
	response.Error.Message = GetUserMessage(err)
	if len(appErr.Context) > 0 {
		publicContext := make(map[string]interface{})
		for k, v := range appErr.Context {
			if k != "password" && k != "token" && k != "secret" && k != "access_id" {
				publicContext[k] = v
			}
		}
		if len(publicContext) > 0 {
			response.Error.Context = publicContext
		}
	}
	return response
}
