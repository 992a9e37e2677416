package util

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bufferLogger(level string, format LogFormat) (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := &Logger{
		level:  ParseLogLevel(level),
		fields: make(map[string]interface{}),
		mu:     &sync.RWMutex{},
	}
	l.AddOutput(NewConsoleOutput(&buf, format))
	return l, &buf
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLogLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelError, ParseLogLevel("error"))
	assert.Equal(t, LevelInfo, ParseLogLevel("loud"))
}

func TestLoggerLevelsAndFields(t *testing.T) {
	l, buf := bufferLogger("info", FormatText)

	l.Debug("hidden")
	l.Info("Grid persisted", F("version", 3), F("bytes", 16384))
	out := buf.String()

	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] Grid persisted bytes=16384 version=3")
}

func TestLoggerWithAndErrors(t *testing.T) {
	l, buf := bufferLogger("debug", FormatJSON)

	child := l.With(F("component", "engine"))
	child.Error("Persist failed", Err(errors.New("disk full")))

	var entry LogEntry
	require.NoError(t, sonic.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "engine", entry.Fields["component"])
	assert.Equal(t, "disk full", entry.Fields["error"])

	buf.Reset()
	l.Info("parent")
	assert.NotContains(t, buf.String(), "engine", "With does not leak into the parent")
}

func TestLoggerWithContext(t *testing.T) {
	l, buf := bufferLogger("info", FormatText)
	ctx := context.WithValue(context.Background(), RequestIDKey, "req-7")

	l.WithContext(ctx).Warnf("slow %s", "tick")
	assert.Contains(t, buf.String(), "[WARN] slow tick request_id=req-7")

	buf.Reset()
	l.WithContext(context.Background()).Info("plain")
	assert.NotContains(t, buf.String(), "request_id")
}

func TestLoggerSetLevel(t *testing.T) {
	l, buf := bufferLogger("error", FormatText)
	l.Warn("quiet")
	l.SetLevel(LevelWarn)
	l.Warn("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.True(t, strings.Contains(buf.String(), "loud"))
}

func TestNewLoggerWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := NewLogger(LoggerOptions{Level: "debug", File: path})
	require.NoError(t, err)

	l.Debugf("tick %d", 1)
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] tick 1")
}
