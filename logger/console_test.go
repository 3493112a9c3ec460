package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelInfo)

	log.Debug("hidden")
	log.Info("visible %s", "info")
	log.Error("boom")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO ] visible info")
	assert.Contains(t, out, "[ERROR] boom")
	assert.False(t, log.IsLevelEnabled(LevelDebug))
	assert.True(t, log.IsLevelEnabled(LevelWarn))
}

func TestConsoleLoggerPrefixAndMetadata(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelTrace).WithPrefix("[query]").WithPrefix("[query]")
	log = WithKV(log, "key", `["products"]`)
	log.Trace("fetch started")

	line := strings.TrimSpace(buf.String())
	assert.Equal(t, 1, strings.Count(line, "[query]"))
	assert.Contains(t, line, "fetch started")
	assert.Contains(t, line, `{"key":"[\"products\"]"}`)
	assert.NotContains(t, line, "\033[")
}

func TestConsoleLoggerNone(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriterLogger(&buf, LevelNone)
	log.Error("nothing")
	assert.Empty(t, buf.String())
}
