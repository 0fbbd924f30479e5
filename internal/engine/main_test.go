package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/browser/snapshot"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		AttemptTimeout:   500 * time.Millisecond,
		PollInterval:     10 * time.Millisecond,
		VerifyTimeout:    500 * time.Millisecond,
		OverlayTimeout:   100 * time.Millisecond,
		ArtifactTimeout:  500 * time.Millisecond,
		DialogWait:       100 * time.Millisecond,
		ClipboardTimeout: 100 * time.Millisecond,
	}
}

func newTestEngine(t *testing.T, drv browser.Driver) *Engine {
	t.Helper()
	return New(drv, testEngineConfig(), zaptest.NewLogger(t))
}

func newLoggedEngine(drv browser.Driver, logger *zap.Logger) *Engine {
	return New(drv, testEngineConfig(), logger)
}

func newSnapshot(t *testing.T, markup string) *snapshot.Driver {
	t.Helper()
	d, err := snapshot.New(markup)
	require.NoError(t, err)
	return d
}

// handleOf returns the handle of the first element matching css.
func handleOf(t *testing.T, d browser.Querier, css string) browser.Handle {
	t.Helper()
	hs, err := d.QueryAll(context.Background(), "", css)
	require.NoError(t, err)
	require.NotEmpty(t, hs, css)
	return hs[0]
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
