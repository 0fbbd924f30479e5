// File: cmd/root_test.go
package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/widget/widgettest"
)

func TestRootCmd_VersionFlag(t *testing.T) {
	out, _, err := executeCommand(t, deps{}, "--version")
	require.NoError(t, err)
	assert.Equal(t, Version+"\n", out)
}

func TestVersionCmd(t *testing.T) {
	out, _, err := executeCommand(t, deps{}, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "widgetpilot "+Version)
}

func TestRootCmd_NoArgs(t *testing.T) {
	out, _, err := executeCommand(t, deps{})
	require.NoError(t, err)
	assert.Contains(t, out, "drives and checks the 3snet events widget builder")
	for _, sub := range []string{"run", "generate", "probe", "history", "version"} {
		assert.Contains(t, out, sub)
	}
}

func TestConfigLoading(t *testing.T) {
	t.Run("missing explicit config file", func(t *testing.T) {
		_, _, err := executeCommand(t, deps{}, "--config", "/nonexistent/widgetpilot.yaml", "version")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to initialize configuration")
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := writeConfig(t, "runner:\n  concurrency: 0\n")
		_, _, err := executeCommand(t, deps{}, "--config", path, "version")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "runner.concurrency")
	})

	t.Run("file values reach subcommands", func(t *testing.T) {
		path := writeConfig(t, "browser:\n  driver: playwright\nrunner:\n  retries: 2\n")

		var seen config.BrowserConfig
		f := &widgettest.Factory{}
		browsers := fixtureBrowsers(f)
		d := deps{browsers: func(ctx context.Context, cfg config.BrowserConfig, l *zap.Logger) (browser.Factory, error) {
			seen = cfg
			return browsers(ctx, cfg, l)
		}}

		_, _, err := executeCommand(t, d, "--config", path, "run", "page-loads", "--output", t.TempDir())
		require.NoError(t, err)
		assert.Equal(t, config.DriverPlaywright, seen.Driver)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("WIDGETPILOT_BROWSER_DRIVER", "selenium")
		_, _, err := executeCommand(t, deps{}, "version")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "selenium")
	})
}

func TestGetConfigFromContext(t *testing.T) {
	_, err := getConfigFromContext(context.Background())
	assert.Error(t, err)

	cfg := config.NewDefaultConfig()
	got, err := getConfigFromContext(context.WithValue(context.Background(), configKey, cfg))
	require.NoError(t, err)
	assert.Same(t, cfg, got)
}
