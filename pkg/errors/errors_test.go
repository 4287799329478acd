package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		expected string
	}{
		{
			name:     "without underlying error",
			err:      New(CodeCorruptedSnapshot, "truncated record"),
			expected: "[CORRUPTED_SNAPSHOT] truncated record",
		},
		{
			name:     "with underlying error",
			err:      Wrap(CodeStorageError, "upload failed", errors.New("network timeout")),
			expected: "[STORAGE_ERROR] upload failed: network timeout",
		},
		{
			name:     "formatted message",
			err:      Newf(CodeInvalidInput, "unknown scan order %q", "zigzag"),
			expected: `[INVALID_INPUT] unknown scan order "zigzag"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.err.Error())
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying error")
	err := Wrap(CodeAnalysisError, "analysis failed", underlying)

	assert.Equal(t, underlying, err.Unwrap())
	assert.True(t, errors.Is(err, underlying))
}

func TestAppError_Is(t *testing.T) {
	err1 := New(CodeDatabaseError, "error 1")
	err2 := New(CodeDatabaseError, "error 2")
	err3 := New(CodeStorageError, "error 3")

	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, err3))
}

func TestIsCancelled(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"sentinel", ErrCancelled, true},
		{"wrapped with fmt", fmt.Errorf("detailed pass: %w", ErrCancelled), true},
		{"wrapped as app error", Wrap(CodeAnalysisError, "run failed", ErrCancelled), true},
		{"other error", ErrCorruptedSnapshot, false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsCancelled(tt.err))
		})
	}
}

func TestKindHelpers(t *testing.T) {
	assert.True(t, IsCorruptedSnapshot(Wrap(CodeCorruptedSnapshot, "bad", nil)))
	assert.True(t, IsUnsupportedFormat(ErrUnsupportedFormat))
	assert.True(t, IsDatabaseError(fmt.Errorf("x: %w", ErrDatabaseError)))
	assert.True(t, IsStorageError(ErrStorageError))
	assert.True(t, IsNotFound(ErrSnapshotNotFound))
	assert.True(t, IsNotFound(ErrNotFound))
	assert.False(t, IsNotFound(ErrInternal))
}

func TestGetErrorCode(t *testing.T) {
	assert.Equal(t, CodeCancelled, GetErrorCode(fmt.Errorf("wrap: %w", ErrCancelled)))
	assert.Equal(t, CodeUnknown, GetErrorCode(errors.New("plain")))
}

func TestGetErrorMessage(t *testing.T) {
	assert.Equal(t, "calculation cancelled", GetErrorMessage(ErrCancelled))
	assert.Equal(t, "plain", GetErrorMessage(errors.New("plain")))
	assert.Equal(t, "", GetErrorMessage(nil))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"cancelled", ErrCancelled, 130},
		{"invalid input", ErrInvalidInput, 2},
		{"config", ErrConfigError, 2},
		{"corrupted", ErrCorruptedSnapshot, 3},
		{"missing snapshot", ErrSnapshotNotFound, 3},
		{"plain", errors.New("boom"), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ExitCode(tt.err))
		})
	}
}
