// Package errors defines the error taxonomy shared by heapscan packages.
package errors

import (
	"errors"
	"fmt"
)

// Error codes for the application.
const (
	CodeUnknown            = "UNKNOWN_ERROR"
	CodeInvalidInput       = "INVALID_INPUT"
	CodeSnapshotNotFound   = "SNAPSHOT_NOT_FOUND"
	CodeCorruptedSnapshot  = "CORRUPTED_SNAPSHOT"
	CodeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	CodeCancelled          = "CANCELLED"
	CodeAnalysisError      = "ANALYSIS_ERROR"
	CodeStorageError       = "STORAGE_ERROR"
	CodeDatabaseError      = "DATABASE_ERROR"
	CodeConfigError        = "CONFIG_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeEmptySnapshot      = "EMPTY_SNAPSHOT"
	CodeReportWriteFailure = "REPORT_WRITE_ERROR"
)

// AppError represents an application error with a code and message.
type AppError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new AppError.
func New(code string, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an AppError.
func Wrap(code string, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Newf creates a new AppError with a formatted message.
func Newf(code string, format string, args ...interface{}) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Common error instances.
var (
	ErrInvalidInput      = New(CodeInvalidInput, "invalid input")
	ErrSnapshotNotFound  = New(CodeSnapshotNotFound, "snapshot not found")
	ErrCorruptedSnapshot = New(CodeCorruptedSnapshot, "corrupted snapshot")
	ErrUnsupportedFormat = New(CodeUnsupportedFormat, "unsupported snapshot format")
	ErrCancelled         = New(CodeCancelled, "calculation cancelled")
	ErrAnalysisError     = New(CodeAnalysisError, "analysis error")
	ErrStorageError      = New(CodeStorageError, "storage error")
	ErrDatabaseError     = New(CodeDatabaseError, "database error")
	ErrConfigError       = New(CodeConfigError, "configuration error")
	ErrInternal          = New(CodeInternalError, "internal error")
	ErrNotFound          = New(CodeNotFound, "resource not found")
	ErrEmptySnapshot     = New(CodeEmptySnapshot, "snapshot has no objects")
)

// IsCancelled checks if the error is a cancellation signal.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// IsCorruptedSnapshot checks if the error reports a damaged snapshot.
func IsCorruptedSnapshot(err error) bool {
	return errors.Is(err, ErrCorruptedSnapshot)
}

// IsUnsupportedFormat checks if the error reports an unknown snapshot format.
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat)
}

// IsDatabaseError checks if the error is a database error.
func IsDatabaseError(err error) bool {
	return errors.Is(err, ErrDatabaseError)
}

// IsStorageError checks if the error is a storage error.
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorageError)
}

// IsNotFound checks if the error is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrSnapshotNotFound)
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// GetErrorMessage extracts the error message from an error.
func GetErrorMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// ExitCode maps an error to a process exit status for the CLI.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetErrorCode(err) {
	case CodeCancelled:
		return 130
	case CodeInvalidInput, CodeConfigError:
		return 2
	case CodeSnapshotNotFound, CodeCorruptedSnapshot, CodeUnsupportedFormat, CodeEmptySnapshot:
		return 3
	default:
		return 1
	}
}
