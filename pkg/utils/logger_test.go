package utils

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"Warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"unknown", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestDefaultLogger_FilterByLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelWarn, buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn message")
	logger.Error("error message")

	output := buf.String()
	assert.NotContains(t, output, "debug message")
	assert.NotContains(t, output, "info message")
	assert.Contains(t, output, "[WARN] warn message")
	assert.Contains(t, output, "[ERROR] error message")
}

func TestDefaultLogger_Line(t *testing.T) {
	buf := &bytes.Buffer{}
	clock := NewMockClock(time.Date(2024, 3, 1, 10, 20, 30, 400_000_000, time.UTC))
	logger := NewDefaultLogger(LevelInfo, buf, WithLoggerClock(clock))

	logger.WithFields(map[string]interface{}{"snapshot": "a.snap", "order": "bfs"}).
		Info("scanned %d objects", 42)

	assert.Equal(t, "[2024-03-01 10:20:30.400] [INFO] order=bfs snapshot=a.snap scanned 42 objects\n", buf.String())
}

func TestDefaultLogger_NoArgsKeepsPercent(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelInfo, buf)

	logger.Info("100% done")

	assert.Contains(t, buf.String(), "100% done")
}

func TestDefaultLogger_ChildSharesLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelInfo, buf)
	child := logger.WithField("task", "1")

	child.Debug("hidden")
	logger.SetLevel(LevelDebug)
	child.Debug("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "task=1 shown")
}

func TestDefaultLogger_Color(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewDefaultLogger(LevelInfo, buf, WithColor(true))

	logger.Error("boom")

	line := buf.String()
	require.True(t, strings.HasSuffix(line, "boom\n"))
	assert.Contains(t, line, "\x1b[")
	assert.Contains(t, line, "[ERROR]")
}

func TestNullLogger(t *testing.T) {
	logger := &NullLogger{}
	logger.Info("info")
	assert.Equal(t, logger, logger.WithField("key", "value"))
}

func TestGlobalLogger(t *testing.T) {
	original := GetGlobalLogger()
	defer SetGlobalLogger(original)

	buf := &bytes.Buffer{}
	SetGlobalLogger(NewDefaultLogger(LevelInfo, buf))
	GetGlobalLogger().Info("global log")

	assert.Contains(t, buf.String(), "global log")
}

func TestLoggerInterface(t *testing.T) {
	var _ Logger = &DefaultLogger{}
	var _ Logger = &NullLogger{}
}
