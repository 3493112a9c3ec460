package logger

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTestLoggerMethods(t *testing.T) {
	logger := NewTestLogger()

	logger.Trace("Trace message %d", 1)
	logger.Debug("Debug message %d", 2)
	logger.Info("Info message")
	logger.Warn("Warn message")
	logger.Error("Error message")

	logs := logger.Logs()
	assert.Len(t, logs, 5)
	assert.Equal(t, "TRACE", logs[0].Severity)
	assert.Equal(t, "Trace message 1", logs[0].String())
	assert.Equal(t, []interface{}{2}, logs[1].Arguments)
	assert.Equal(t, "WARNING", logs[3].Severity)
	assert.True(t, logger.Contains("ERROR", "Error"))
	assert.False(t, logger.Contains("ERROR", "Warn"))
}

func TestTestLoggerDerivedShareRecord(t *testing.T) {
	logger := NewTestLogger()
	child := WithKV(logger.WithPrefix("[query]"), "key", "products")
	child.Info("fetched")

	logs := logger.Logs()
	assert.Len(t, logs, 1)
	assert.Equal(t, "[query] fetched", logs[0].Message)
	assert.Equal(t, "products", logs[0].Metadata["key"])
}

func TestTestLoggerConcurrent(t *testing.T) {
	logger := NewTestLogger()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Debug("message")
		}()
	}
	wg.Wait()
	assert.Len(t, logger.Logs(), 50)
}
