// internal/browser/pw/manager.go
package pw

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

const playwrightInstallTimeout = 5 * time.Minute

// Manager handles the Playwright driver and browser process lifecycle.
type Manager struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	cfg     config.BrowserConfig
	logger  *zap.Logger

	pages map[string]*Driver
	mu    sync.Mutex
	wg    sync.WaitGroup

	// Install lets tests and offline hosts skip the browser download.
	Install bool

	initOnce sync.Once
	initErr  error
}

var _ browser.Factory = (*Manager)(nil)

// NewManager creates a manager. Initialization is deferred until the first page is requested.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		cfg:     cfg,
		logger:  logger.Named("playwright"),
		pages:   make(map[string]*Driver),
		Install: true,
	}
	m.logger.Debug("Playwright manager created (initialization deferred).")
	return m
}

func (m *Manager) initialize(ctx context.Context) error {
	m.initOnce.Do(func() {
		m.logger.Info("Initializing Playwright and launching browser...")

		if m.Install {
			if err := m.ensureInstallation(ctx); err != nil {
				m.initErr = err
				return
			}
		}

		pw, err := playwright.Run()
		if err != nil {
			m.initErr = fmt.Errorf("failed to start playwright driver: %w", err)
			return
		}

		b, err := pw.Chromium.Launch(m.launchOptions())
		if err != nil {
			_ = pw.Stop()
			m.initErr = fmt.Errorf("failed to launch browser instance: %w", err)
			return
		}
		m.pw, m.browser = pw, b
		m.logger.Info("Browser launched.", zap.String("browser_version", b.Version()))
	})
	return m.initErr
}

func (m *Manager) ensureInstallation(ctx context.Context) error {
	ictx, cancel := context.WithTimeout(ctx, playwrightInstallTimeout)
	defer cancel()

	// Install blocks without honoring a context.
	errc := make(chan error, 1)
	go func() {
		if err := playwright.Install(&playwright.RunOptions{Browsers: []string{"chromium"}}); err != nil {
			errc <- fmt.Errorf("failed to install playwright browsers: %w", err)
			return
		}
		errc <- nil
	}()

	select {
	case err := <-errc:
		return err
	case <-ictx.Done():
		return fmt.Errorf("timeout waiting for Playwright installation: %w", ictx.Err())
	}
}

func (m *Manager) launchOptions() playwright.BrowserTypeLaunchOptions {
	opts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.cfg.Headless),
		Args:     append([]string{"--disable-gpu", "--no-sandbox", "--disable-dev-shm-usage"}, m.cfg.Args...),
		Timeout:  playwright.Float(60000),
	}
	if m.cfg.ExecPath != "" {
		opts.ExecutablePath = playwright.String(m.cfg.ExecPath)
	}
	return opts
}

func (m *Manager) contextOptions() playwright.BrowserNewContextOptions {
	opts := playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(m.cfg.IgnoreTLSErrors),
	}
	if m.cfg.Viewport.Width > 0 && m.cfg.Viewport.Height > 0 {
		opts.Viewport = &playwright.Size{Width: m.cfg.Viewport.Width, Height: m.cfg.Viewport.Height}
	}
	if m.cfg.Locale != "" {
		opts.Locale = playwright.String(m.cfg.Locale)
	}
	if m.cfg.UserAgent != "" {
		opts.UserAgent = playwright.String(m.cfg.UserAgent)
	}
	return opts
}

// NewPage opens a page in its own browser context.
func (m *Manager) NewPage(ctx context.Context) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.initialize(ctx); err != nil {
		return nil, err
	}

	bctx, err := m.browser.NewContext(m.contextOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}
	bctx.SetDefaultTimeout(float64(m.cfg.ActionTimeout.Milliseconds()))
	bctx.SetDefaultNavigationTimeout(float64(m.cfg.NavigationTimeout.Milliseconds()))

	p, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	id := uuid.NewString()
	d := newDriver(bctx, p, id, m.cfg, m.logger.With(zap.String("page_id", id)))

	m.wg.Add(1)
	d.onClose = func() {
		m.mu.Lock()
		delete(m.pages, id)
		m.mu.Unlock()
		m.wg.Done()
	}
	m.mu.Lock()
	m.pages[id] = d
	m.mu.Unlock()
	return d, nil
}

// Close closes every page, the browser, and the Playwright driver.
func (m *Manager) Close(ctx context.Context) error {
	if m.pw == nil {
		return nil
	}

	m.mu.Lock()
	open := make([]*Driver, 0, len(m.pages))
	for _, d := range m.pages {
		open = append(open, d)
	}
	m.mu.Unlock()
	for _, d := range open {
		if err := d.Close(); err != nil {
			m.logger.Warn("Failed to close page.", zap.String("page_id", d.id), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Timed out waiting for pages to close.", zap.Error(ctx.Err()))
	}

	var shutdownErr error
	if err := m.browser.Close(); err != nil {
		shutdownErr = fmt.Errorf("failed to close browser: %w", err)
	}
	if err := m.pw.Stop(); err != nil && shutdownErr == nil {
		shutdownErr = fmt.Errorf("failed to stop playwright driver: %w", err)
	}
	m.logger.Info("Playwright shut down.")
	return shutdownErr
}
