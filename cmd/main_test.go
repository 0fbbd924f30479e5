// File: cmd/main_test.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/api/schemas"
	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/observability"
	"github.com/xkilldash9x/widgetpilot/internal/widget/widgettest"
)

// resetForTest provides the single source of truth for resetting test state.
func resetForTest(t *testing.T) {
	t.Helper()
	cfgFile, logLevel = "", ""
	observability.ResetForTest()
	t.Cleanup(observability.ResetForTest)
}

// fixtureBrowsers hands out pages of the in-memory widget builder.
func fixtureBrowsers(f *widgettest.Factory) browserProvider {
	return func(context.Context, config.BrowserConfig, *zap.Logger) (browser.Factory, error) {
		return f, nil
	}
}

func failingBrowsers(err error) browserProvider {
	return func(context.Context, config.BrowserConfig, *zap.Logger) (browser.Factory, error) {
		return nil, err
	}
}

// fakeStore keeps runs in memory.
type fakeStore struct {
	mu      sync.Mutex
	saved   []*schemas.RunReport
	runs    []schemas.RunReport
	results map[string][]schemas.ScenarioResult
	err     error
}

func (s *fakeStore) SaveRun(_ context.Context, report *schemas.RunReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, report)
	return nil
}

func (s *fakeStore) RecentRuns(_ context.Context, limit int) ([]schemas.RunReport, error) {
	if s.err != nil {
		return nil, s.err
	}
	if limit < len(s.runs) {
		return s.runs[:limit], nil
	}
	return s.runs, nil
}

func (s *fakeStore) ResultsByRun(_ context.Context, runID string) ([]schemas.ScenarioResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results[runID], nil
}

type fakeStoreProvider struct {
	store     *fakeStore
	createErr error
	cleaned   bool
}

func (p *fakeStoreProvider) Create(context.Context, config.Interface, *zap.Logger) (runStore, func(), error) {
	if p.createErr != nil {
		return nil, nil, p.createErr
	}
	return p.store, func() { p.cleaned = true }, nil
}

var errNoDatabase = errors.New("no database in tests")

// executeCommand runs the command tree with d and returns what it printed to
// stdout and stderr.
func executeCommand(t *testing.T, d deps, args ...string) (string, string, error) {
	t.Helper()
	resetForTest(t)
	if d.stores == nil {
		d.stores = &fakeStoreProvider{createErr: errNoDatabase}
	}

	root := newRootCommand(d)
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	err := root.ExecuteContext(ctx)
	return stdout.String(), stderr.String(), err
}

// writeConfig writes a YAML config file and returns its path.
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}
