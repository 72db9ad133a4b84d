// Copyright 2024 Lesson Pack Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resilience

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrorResponse represents the error envelope returned by the API
type ErrorResponse struct {
	Error      string    `json:"error"`
	Code       string    `json:"code"`
	Status     int       `json:"status"`
	RawPreview string    `json:"rawPreview,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorCode classifies a pipeline failure
type ErrorCode string

const (
	// Caller errors
	ErrorCodeRequestInvalid     ErrorCode = "REQUEST_INVALID"
	ErrorCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrorCodeAllowanceExhausted ErrorCode = "ALLOWANCE_EXHAUSTED"
	ErrorCodeNotFound           ErrorCode = "NOT_FOUND"

	// Upstream errors
	ErrorCodeUpstreamUnavailable ErrorCode = "UPSTREAM_UNAVAILABLE"
	ErrorCodeGenerationFailed    ErrorCode = "GENERATION_FAILED"
	ErrorCodeRecoveryFailed      ErrorCode = "RECOVERY_FAILED"
	ErrorCodeInternalError       ErrorCode = "INTERNAL_ERROR"
)

// ServiceError carries a user-facing message, a code and the HTTP status it maps to
type ServiceError struct {
	Message    string
	Code       ErrorCode
	StatusCode int
	Internal   error
	// RawPreview is set for recovery failures so callers can see what the generator sent
	RawPreview string
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Internal
}

// ToErrorResponse converts a ServiceError to an ErrorResponse
func (e *ServiceError) ToErrorResponse(requestID string) ErrorResponse {
	return ErrorResponse{
		Error:      e.Message,
		Code:       string(e.Code),
		Status:     e.StatusCode,
		RawPreview: e.RawPreview,
		RequestID:  requestID,
		Timestamp:  time.Now().UTC(),
	}
}

// NewServiceError creates a new ServiceError with the given parameters
func NewServiceError(message string, code ErrorCode, statusCode int, internal error) *ServiceError {
	return &ServiceError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

// NewRequestInvalidError reports missing or malformed request fields
func NewRequestInvalidError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeRequestInvalid, http.StatusBadRequest, internal)
}

// NewUnauthorizedError reports a missing or rejected credential
func NewUnauthorizedError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeUnauthorized, http.StatusUnauthorized, internal)
}

// NewAllowanceExhaustedError reports an empty allowance ledger
func NewAllowanceExhaustedError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeAllowanceExhausted, http.StatusPaymentRequired, internal)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeNotFound, http.StatusNotFound, internal)
}

// NewUpstreamUnavailableError reports a misconfigured or unreachable dependency
func NewUpstreamUnavailableError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeUpstreamUnavailable, http.StatusInternalServerError, internal)
}

// NewGenerationFailedError reports a failed call to the generative service
func NewGenerationFailedError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeGenerationFailed, http.StatusInternalServerError, internal)
}

// NewRecoveryFailedError reports generator output that could not be parsed
func NewRecoveryFailedError(message, preview string, internal error) *ServiceError {
	err := NewServiceError(message, ErrorCodeRecoveryFailed, http.StatusBadGateway, internal)
	err.RawPreview = preview
	return err
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *ServiceError {
	return NewServiceError(message, ErrorCodeInternalError, http.StatusInternalServerError, internal)
}

// AsServiceError unwraps err to a ServiceError, wrapping unknown errors as internal
func AsServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return NewInternalError("An unexpected error occurred", err)
}

// LogError logs an error with its code and status
func LogError(logger *zap.Logger, err error, operation string, fields ...zap.Field) {
	if err == nil || logger == nil {
		return
	}

	serviceErr := AsServiceError(err)
	logFields := []zap.Field{
		zap.String("operation", operation),
		zap.Error(err),
		zap.String("error_code", string(serviceErr.Code)),
		zap.Int("status_code", serviceErr.StatusCode),
	}
	logFields = append(logFields, fields...)

	if serviceErr.StatusCode >= http.StatusInternalServerError {
		logger.Error("Operation failed", logFields...)
		return
	}
	logger.Warn("Operation rejected", logFields...)
}
