package error

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode is the machine-readable code sent to clients in the "code" field.
type ErrorCode string

const (
	// Client input
	ErrCodeValidation ErrorCode = "VALIDATION_ERROR"

	// Authentication
	ErrCodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrCodeUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrCodeInvalidToken       ErrorCode = "INVALID_TOKEN"
	ErrCodeInvalidTokenType   ErrorCode = "INVALID_TOKEN_TYPE"
	ErrCodeNoRefreshToken     ErrorCode = "NO_REFRESH_TOKEN"

	// Authorization
	ErrCodeForbidden ErrorCode = "FORBIDDEN"

	// Rate limiting
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// Server
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
	ErrCodeRefreshError ErrorCode = "REFRESH_ERROR"
)

// AppError is a structured application error. RetryAfter and ResetAt are only
// populated for RATE_LIMITED.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Details    string    `json:"details,omitempty"`
	Cause      error     `json:"-"`
	RetryAfter int       `json:"-"`
	ResetAt    time.Time `json:"-"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(code ErrorCode, message string, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

func ErrValidation(message string) *AppError {
	return NewAppError(ErrCodeValidation, message, "", nil)
}

// ErrInvalidCredentials is deliberately identical for an unknown username and a
// wrong password.
func ErrInvalidCredentials() *AppError {
	return NewAppError(ErrCodeInvalidCredentials, "Username or password is incorrect", "", nil)
}

func ErrUnauthorized(details string) *AppError {
	return NewAppError(ErrCodeUnauthorized, "Unauthorized - Please login", details, nil)
}

func ErrInvalidToken(details string) *AppError {
	return NewAppError(ErrCodeInvalidToken, "Invalid refresh token", details, nil)
}

func ErrInvalidTokenType(details string) *AppError {
	return NewAppError(ErrCodeInvalidTokenType, "Invalid token type", details, nil)
}

func ErrNoRefreshToken() *AppError {
	return NewAppError(ErrCodeNoRefreshToken, "No refresh token provided", "", nil)
}

func ErrForbidden(details string) *AppError {
	return NewAppError(ErrCodeForbidden, "Forbidden - Admin access required", details, nil)
}

func ErrRateLimited(retryAfter int, resetAt time.Time) *AppError {
	e := NewAppError(
		ErrCodeRateLimited,
		fmt.Sprintf("Too many login attempts. Please try again in %d seconds.", retryAfter),
		"",
		nil,
	)
	e.RetryAfter = retryAfter
	e.ResetAt = resetAt
	return e
}

func ErrInternal(details string, cause error) *AppError {
	return NewAppError(ErrCodeInternal, "Internal server error. Please try again.", details, cause)
}

func ErrRefresh(cause error) *AppError {
	return NewAppError(ErrCodeRefreshError, "Failed to refresh token", "", cause)
}

// GetHTTPStatusCode maps an error to its HTTP status. Anything that is not an
// *AppError is a 500.
func GetHTTPStatusCode(err error) int {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return http.StatusInternalServerError
	}
	switch appErr.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeInvalidCredentials, ErrCodeUnauthorized, ErrCodeInvalidToken,
		ErrCodeInvalidTokenType, ErrCodeNoRefreshToken:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError returns err as an *AppError, wrapping unknown errors as internal.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal("", err)
}
