package driver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hive.log")
	logger, err := NewLogger(LogConfig{
		Level:    "info",
		Format:   "json",
		Output:   "file",
		FilePath: path,
		MaxSize:  1,
	})
	require.NoError(t, err)
	logger.WithField("node", "a").Info("created")
	require.NoError(t, CloseLogger(logger))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"created"`)
	assert.Contains(t, string(data), `"node":"a"`)
}

func TestNewLoggerLevelFallback(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "chatty", Format: "text", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.NoError(t, CloseLogger(logger))
}

func TestNewLoggerRejectsUnknownOutput(t *testing.T) {
	_, err := NewLogger(LogConfig{Level: "info", Format: "text", Output: "pager"})
	assert.Error(t, err)
	_, err = NewLogger(LogConfig{Level: "info", Format: "csv"})
	assert.Error(t, err)
}
