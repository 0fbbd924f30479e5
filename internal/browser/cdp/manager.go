// internal/browser/cdp/manager.go
package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

const (
	launchProbeTimeout  = 60 * time.Second
	shutdownGracePeriod = 15 * time.Second
)

// Manager owns one Chrome process and hands out isolated tabs. The process is
// started lazily on the first NewPage.
type Manager struct {
	root   context.Context
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	pages map[string]*Driver
	mu    sync.Mutex
	wg    sync.WaitGroup

	initOnce sync.Once
	initErr  error
}

var _ browser.Factory = (*Manager)(nil)

// NewManager creates a manager. The browser lives until Close or until ctx
// is canceled.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	m := &Manager{
		root:   ctx,
		cfg:    cfg,
		logger: logger.Named("cdp"),
		pages:  make(map[string]*Driver),
	}
	m.logger.Debug("CDP manager created (launch deferred).")
	return m
}

// AllocatorOptions translates the browser config into chromedp allocator options.
func AllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.DisableGPU,
	)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Locale != "" {
		opts = append(opts, chromedp.Flag("lang", cfg.Locale))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}

	for _, arg := range cfg.Args {
		arg = strings.TrimPrefix(strings.TrimSpace(arg), "--")
		if arg == "" {
			continue
		}
		// Boolean flags such as --no-zygote.
		key, value, ok := strings.Cut(arg, "=")
		if !ok {
			opts = append(opts, chromedp.Flag(key, true))
			continue
		}
		opts = append(opts, chromedp.Flag(key, value))
	}
	return opts
}

// initialize launches Chrome and checks it can render a blank page.
func (m *Manager) initialize() error {
	m.initOnce.Do(func() {
		m.logger.Info("Launching Chrome...", zap.Bool("headless", m.cfg.Headless))

		allocCtx, allocCancel := chromedp.NewExecAllocator(m.root, AllocatorOptions(m.cfg)...)
		browserCtx, browserCancel := chromedp.NewContext(allocCtx,
			chromedp.WithLogf(m.logger.Sugar().Debugf),
			chromedp.WithErrorf(m.logger.Sugar().Debugf))

		// The first Run starts the process and must use the unbounded context.
		probe := make(chan error, 1)
		go func() { probe <- chromedp.Run(browserCtx, chromedp.Navigate("about:blank")) }()

		select {
		case err := <-probe:
			if err != nil {
				browserCancel()
				allocCancel()
				m.initErr = fmt.Errorf("failed to launch chrome: %w", err)
				return
			}
		case <-time.After(launchProbeTimeout):
			browserCancel()
			allocCancel()
			m.initErr = fmt.Errorf("chrome did not start within %s", launchProbeTimeout)
			return
		}

		m.allocCancel = allocCancel
		m.browserCtx = browserCtx
		m.browserCancel = browserCancel
		m.logger.Info("Chrome launched.")
	})
	return m.initErr
}

// NewPage opens a tab in a fresh browser context, so cookies, storage and
// permissions never leak between pages.
func (m *Manager) NewPage(ctx context.Context) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.initialize(); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(m.browserCtx, chromedp.WithNewBrowserContext())
	started := make(chan error, 1)
	go func() {
		var err error
		if m.cfg.Viewport.Width > 0 && m.cfg.Viewport.Height > 0 {
			err = chromedp.Run(tabCtx, chromedp.EmulateViewport(int64(m.cfg.Viewport.Width), int64(m.cfg.Viewport.Height)))
		} else {
			err = chromedp.Run(tabCtx)
		}
		started <- err
	}()

	select {
	case err := <-started:
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("failed to open tab: %w", err)
		}
	case <-ctx.Done():
		tabCancel()
		return nil, ctx.Err()
	}

	id := uuid.NewString()
	d := newDriver(tabCtx, tabCancel, id, m.cfg, m.logger.With(zap.String("page_id", id)))

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

	m.logger.Debug("Tab opened.", zap.String("page_id", id))
	return d, nil
}

// Close shuts every open tab and then the browser process.
func (m *Manager) Close(ctx context.Context) error {
	if m.browserCtx == nil {
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
			m.logger.Warn("Failed to close tab.", zap.String("page_id", d.id), zap.Error(err))
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
		m.logger.Warn("Timed out waiting for tabs to close.", zap.Error(ctx.Err()))
	}

	cctx, cancel := context.WithTimeout(browser.Detach(m.browserCtx), shutdownGracePeriod)
	defer cancel()
	err := chromedp.Cancel(cctx)
	m.browserCancel()
	m.allocCancel()
	if err != nil && cctx.Err() == nil {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	m.logger.Info("Chrome closed.")
	return nil
}
