package errors

import (
	"errors"
	"fmt"
)

// Custom error types for better error handling
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUsernameTaken      = errors.New("username taken")

	// Validation errors
	ErrInvalidInput    = errors.New("invalid input")
	ErrInvalidNIC      = errors.New("invalid NIC/passport format")
	ErrInvalidAccount  = errors.New("invalid account format")
	ErrInvalidMobile   = errors.New("invalid mobile number format")
	ErrInvalidEmail    = errors.New("invalid email format")
	ErrInvalidUsername = errors.New("invalid username format")
	ErrWeakPassword    = errors.New("password does not meet requirements")
	ErrInvalidOTP      = errors.New("invalid OTP format")

	// Challenge errors
	ErrInvalidResetToken = errors.New("invalid reset token")
	ErrResetTokenExpired = errors.New("reset token expired")

	// Delivery errors
	ErrInvalidChannel = errors.New("invalid delivery channel")
	ErrNoChannel      = errors.New("no delivery channel available")

	// Storage errors
	ErrRecordNotFound = errors.New("record not found")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// AppError codes
const (
	CodeValidation = 400
	CodeConflict   = 409
)

// AppError wraps errors with additional context
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}
