package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel(" warning "))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestInitWriterHonorsLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, "warn")
	defer func() { Log = nil }()

	Info("ignored_event", "k", 1)
	Warn("flush_failed", "attempt", 2)

	out := buf.String()
	assert.NotContains(t, out, "ignored_event")
	assert.Contains(t, out, "flush_failed")
	assert.Contains(t, out, "attempt=2")
}

func TestNilLoggerIsSafe(t *testing.T) {
	Log = nil
	Info("nothing")
	Error("nothing")
}
