// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/widgetpilot/internal/config"
)

// initWithBuffer resets the global logger and points its console output at a buffer.
func initWithBuffer(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console logger colors the level", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("engine").Info("option selected")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "option selected")
		assert.Contains(t, output, "\x1b[32mINFO\x1b[0m")
		assert.Contains(t, output, "TestService.engine.")
	})

	t.Run("json logger emits structured fields", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})
		GetLogger().Warn("verification timed out", zap.String("intent", "select theme Igaming"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "verification timed out", entry["msg"])
		assert.Equal(t, "select theme Igaming", entry["intent"])
	})

	t.Run("level filters lower entries", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "warn", Format: "json"})
		GetLogger().Info("hidden")
		assert.Empty(t, buf.String())
	})

	t.Run("writes rotated file output", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "widgetpilot.log")
		initWithBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "console",
			LogFile: logFile,
			MaxSize: 1,
		})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
		// The file core is JSON regardless of the console format.
		assert.True(t, strings.HasPrefix(strings.TrimSpace(string(content)), "{"))
	})

	t.Run("initializes only once", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&bytes.Buffer{}))
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
	})
}

func TestLevelEncoder(t *testing.T) {
	buf := initWithBuffer(t, config.LoggerConfig{
		Level:  "debug",
		Format: "console",
		Colors: config.ColorConfig{Warn: "Yellow", Debug: "mauve"},
	})
	GetLogger().Warn("overlay echo missing")
	GetLogger().Debug("strategy skipped")

	output := buf.String()
	assert.Contains(t, output, "\x1b[33mWARN\x1b[0m")
	assert.Contains(t, output, "\tDEBUG\t", "unknown colors print the plain level")
}

func TestTerminalSyncError(t *testing.T) {
	assert.True(t, terminalSyncError(&os.PathError{Op: "sync", Path: "/dev/stderr", Err: syscall.EINVAL}))
	assert.True(t, terminalSyncError(syscall.ENOTTY))
	assert.False(t, terminalSyncError(os.ErrPermission))
}

func TestGetLogger(t *testing.T) {
	t.Run("falls back when not initialized", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("returns the global logger after initialization", func(t *testing.T) {
		initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Equal(t, current.Load(), GetLogger())
	})
}
