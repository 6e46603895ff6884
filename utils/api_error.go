package utils

import (
	"errors"
	"net/http"
)

const (
	CodeValidation        = "VALIDATION_FAILED"
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeOrderState        = "ORDER_STATE_CONFLICT"
	CodeDriverUnavailable = "DRIVER_UNAVAILABLE"
	CodeAlreadyVerified   = "ALREADY_VERIFIED"
	CodeDuplicate         = "DUPLICATE"
	CodeOTPRejected       = "OTP_REJECTED"
	CodeAttemptsExceeded  = "OTP_ATTEMPTS_EXCEEDED"
	CodeInternal          = "INTERNAL_ERROR"
)

// ApiError is a client-facing failure with the HTTP status it maps to.
type ApiError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *ApiError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ApiError) Unwrap() error {
	return e.Err
}

// Is matches any ApiError carrying the same code, so callers can compare
// against the exported sentinels below with errors.Is.
func (e *ApiError) Is(target error) bool {
	var t *ApiError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func NewApiError(status int, code, message string) *ApiError {
	return &ApiError{StatusCode: status, Code: code, Message: message}
}

func NewValidationError(message string) *ApiError {
	return NewApiError(http.StatusBadRequest, CodeValidation, message)
}

func NewNotFoundError(message string) *ApiError {
	return NewApiError(http.StatusNotFound, CodeNotFound, message)
}

func NewConflictError(code, message string) *ApiError {
	return NewApiError(http.StatusBadRequest, code, message)
}

func NewForbiddenError(message string) *ApiError {
	return NewApiError(http.StatusForbidden, CodeForbidden, message)
}

func NewUnauthorizedError(message string) *ApiError {
	return NewApiError(http.StatusUnauthorized, CodeUnauthorized, message)
}

func NewOTPRejectedError() *ApiError {
	return NewApiError(http.StatusBadRequest, CodeOTPRejected, "Invalid or expired OTP")
}

func NewAttemptsExceededError() *ApiError {
	return NewApiError(http.StatusBadRequest, CodeAttemptsExceeded, "Maximum OTP attempts exceeded")
}

// Sentinels for errors.Is checks.
var (
	ErrValidation        = &ApiError{Code: CodeValidation}
	ErrNotFound          = &ApiError{Code: CodeNotFound}
	ErrForbidden         = &ApiError{Code: CodeForbidden}
	ErrOrderState        = &ApiError{Code: CodeOrderState}
	ErrDriverUnavailable = &ApiError{Code: CodeDriverUnavailable}
	ErrAlreadyVerified   = &ApiError{Code: CodeAlreadyVerified}
	ErrOTPRejected       = &ApiError{Code: CodeOTPRejected}
	ErrAttemptsExceeded  = &ApiError{Code: CodeAttemptsExceeded}
)
