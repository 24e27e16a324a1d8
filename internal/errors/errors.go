package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an AppError carrying the same code.
// This lets callers match the package sentinels with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new AppError with a formatted message
func Newf(code, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an error with additional context
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    CodeInternalError,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(*AppError); ok {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid   = "CONFIG_INVALID"
	CodeDatabaseError   = "DATABASE_ERROR"
	CodeValidationError = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInternalError   = "INTERNAL_ERROR"
	CodeInvalidInput    = "INVALID_INPUT"

	// Engine taxonomy
	CodeEmptyMatrix          = "EMPTY_MATRIX"
	CodeEmptyResult          = "EMPTY_RESULT"
	CodeInvalidConfiguration = "INVALID_CONFIGURATION"
	CodeNonConvergence       = "NON_CONVERGENCE"
)

// Sentinels for errors.Is matching. Any AppError with the same code matches.
var (
	ErrEmptyMatrix          = New(CodeEmptyMatrix, "count matrix has zero rows or columns")
	ErrEmptyResult          = New(CodeEmptyResult, "filter would remove every entry")
	ErrInvalidConfiguration = New(CodeInvalidConfiguration, "invalid configuration")
	ErrNonConvergence       = New(CodeNonConvergence, "algorithm did not converge")
)

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource))
}

func InternalError(message string) *AppError {
	return New(CodeInternalError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// EmptyMatrix reports an input matrix or embedding without rows or columns.
func EmptyMatrix(format string, args ...interface{}) *AppError {
	return Newf(CodeEmptyMatrix, format, args...)
}

// EmptyResult reports a filter step that would leave nothing behind.
func EmptyResult(format string, args ...interface{}) *AppError {
	return Newf(CodeEmptyResult, format, args...)
}

// InvalidConfiguration reports a rejected option or incompatible argument.
func InvalidConfiguration(format string, args ...interface{}) *AppError {
	return Newf(CodeInvalidConfiguration, format, args...)
}

// NonConvergence reports an iterative routine that failed within its limits.
func NonConvergence(format string, args ...interface{}) *AppError {
	return Newf(CodeNonConvergence, format, args...)
}
