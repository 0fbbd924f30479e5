// internal/browser/pw/driver.go
package pw

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

// clipboardPermissions are the Playwright permission names for the async clipboard.
var clipboardPermissions = []string{"clipboard-read", "clipboard-write"}

type armedDialog struct {
	accept bool
	ch     chan browser.DialogEvent
}

// Driver implements browser.Driver over a Playwright page.
type Driver struct {
	id     string
	bctx   playwright.BrowserContext
	page   playwright.Page
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	armed   *armedDialog
	closed  bool
	onClose func()
}

var _ browser.Driver = (*Driver)(nil)

func newDriver(bctx playwright.BrowserContext, p playwright.Page, id string, cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	d := &Driver{id: id, bctx: bctx, page: p, cfg: cfg, logger: logger}
	p.OnDialog(d.onDialog)
	return d
}

func (d *Driver) onDialog(dlg playwright.Dialog) {
	d.mu.Lock()
	a := d.armed
	d.armed = nil
	d.mu.Unlock()

	if a == nil {
		if err := dlg.Dismiss(); err != nil {
			d.logger.Debug("Failed to dismiss dialog.", zap.Error(err))
		}
		d.logger.Debug("Dismissed unexpected dialog.", zap.String("type", dlg.Type()), zap.String("message", dlg.Message()))
		return
	}

	var err error
	if a.accept {
		err = dlg.Accept()
	} else {
		err = dlg.Dismiss()
	}
	if err != nil {
		d.logger.Debug("Failed to resolve dialog.", zap.String("type", dlg.Type()), zap.Error(err))
	}
	a.ch <- browser.DialogEvent{Type: dlg.Type(), Message: dlg.Message(), Accepted: a.accept && err == nil}
	close(a.ch)
}

// timeout sizes a Playwright timeout, in milliseconds, from ctx.
func (d *Driver) timeout(ctx context.Context) *float64 {
	return playwright.Float(float64(browser.RemainingOr(ctx, d.cfg.ActionTimeout).Milliseconds()))
}

// eval runs fn with args in the page and decodes the result into out.
// Playwright's evaluate has no cancellation, so ctx only bounds the wait.
func (d *Driver) eval(ctx context.Context, fn string, out interface{}, args ...interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if args == nil {
		args = []interface{}{}
	}
	type result struct {
		raw interface{}
		err error
	}
	done := make(chan result, 1)
	go func() {
		raw, err := d.page.Evaluate(browser.PlaywrightWrapper(fn), args)
		done <- result{raw, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("script evaluation failed: %w", r.err)
		}
		return browser.Decode(r.raw, out)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Driver) locator(h browser.Handle) playwright.Locator {
	return d.page.Locator(h.Selector())
}

// -- browser.Querier --

func (d *Driver) QueryAll(ctx context.Context, scope browser.Handle, css string) ([]browser.Handle, error) {
	var res browser.HandlesResult
	if err := d.eval(ctx, browser.QueryAllScript, &res, d.id, string(scope), css); err != nil {
		return nil, err
	}
	if res.Stale {
		return nil, fmt.Errorf("%w: %s", browser.ErrStaleHandle, scope)
	}
	return res.ToHandles(), nil
}

func (d *Driver) QueryText(ctx context.Context, scope browser.Handle, m browser.TextMatch) ([]browser.Handle, error) {
	var res browser.HandlesResult
	if err := d.eval(ctx, browser.QueryTextScript, &res, d.id, string(scope), m.Text, m.Exact); err != nil {
		return nil, err
	}
	if res.Stale {
		return nil, fmt.Errorf("%w: %s", browser.ErrStaleHandle, scope)
	}
	return res.ToHandles(), nil
}

func (d *Driver) Ancestor(ctx context.Context, h browser.Handle, hops int) (browser.Handle, error) {
	return d.handle(ctx, browser.AncestorScript, h, hops)
}

func (d *Driver) Closest(ctx context.Context, h browser.Handle, css string) (browser.Handle, error) {
	return d.handle(ctx, browser.ClosestScript, h, css)
}

func (d *Driver) handle(ctx context.Context, fn string, h browser.Handle, arg interface{}) (browser.Handle, error) {
	var res browser.HandleResult
	if err := d.eval(ctx, fn, &res, d.id, string(h), arg); err != nil {
		return "", err
	}
	if res.Stale {
		return "", fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	}
	return browser.Handle(res.Handle), nil
}

// -- browser.Reader --

func (d *Driver) Describe(ctx context.Context, h browser.Handle) (browser.ElementState, error) {
	var st browser.ElementState
	err := d.eval(ctx, browser.DescribeScript, &st, string(h))
	return st, err
}

// -- browser.Actor --

func (d *Driver) Click(ctx context.Context, h browser.Handle, opts browser.ActionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.locator(h).Click(playwright.LocatorClickOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: d.timeout(ctx),
	})
}

func (d *Driver) SetChecked(ctx context.Context, h browser.Handle, checked bool, opts browser.ActionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.locator(h).SetChecked(checked, playwright.LocatorSetCheckedOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: d.timeout(ctx),
	})
}

func (d *Driver) Fill(ctx context.Context, h browser.Handle, value string, opts browser.ActionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.locator(h).Fill(value, playwright.LocatorFillOptions{
		Force:   playwright.Bool(opts.Force),
		Timeout: d.timeout(ctx),
	}); err != nil {
		return err
	}
	var res browser.FoundResult
	return d.eval(ctx, browser.CommitValueScript, &res, string(h))
}

func (d *Driver) SelectOption(ctx context.Context, h browser.Handle, opt browser.OptionRef) error {
	st, err := d.Describe(ctx, h)
	if err != nil {
		return err
	}
	if !st.Found {
		return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	}
	if st.Tag != "select" {
		return browser.ErrNotSelect
	}

	values := playwright.SelectOptionValues{Indexes: &[]int{opt.Index}}
	if opt.Label != "" {
		values = playwright.SelectOptionValues{Labels: &[]string{opt.Label}}
	}
	_, err = d.locator(h).SelectOption(values, playwright.LocatorSelectOptionOptions{Timeout: d.timeout(ctx)})
	return err
}

func (d *Driver) ForceChecked(ctx context.Context, h browser.Handle, checked bool) error {
	var res browser.FoundResult
	if err := d.eval(ctx, browser.ForceCheckedScript, &res, string(h), checked); err != nil {
		return err
	}
	if !res.Found {
		return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	}
	return nil
}

// -- browser.Page --

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := d.cfg.NavigationTimeout
	if left := browser.RemainingOr(ctx, timeout); left < timeout {
		timeout = left
	}
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout / time.Millisecond)),
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	return d.page.URL(), ctx.Err()
}

func (d *Driver) BodyText(ctx context.Context) (string, error) {
	var text string
	err := d.eval(ctx, browser.BodyTextScript, &text)
	return text, err
}

func (d *Driver) GrantClipboard(ctx context.Context, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.bctx.GrantPermissions(clipboardPermissions, playwright.BrowserContextGrantPermissionsOptions{
		Origin: playwright.String(origin),
	}); err != nil {
		return fmt.Errorf("failed to grant clipboard permissions for %s: %w", origin, err)
	}
	return nil
}

func (d *Driver) ReadClipboard(ctx context.Context) (string, error) {
	var res browser.ClipboardResult
	if err := d.eval(ctx, browser.ReadClipboardScript, &res); err != nil {
		if strings.Contains(err.Error(), "clipboard") {
			return "", fmt.Errorf("%w: %v", browser.ErrClipboardUnavailable, err)
		}
		return "", err
	}
	if !res.Available {
		return "", fmt.Errorf("%w: %s", browser.ErrClipboardUnavailable, res.Reason)
	}
	return res.Text, nil
}

func (d *Driver) InterceptDialog(ctx context.Context, accept bool) (<-chan browser.DialogEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	a := &armedDialog{accept: accept, ch: make(chan browser.DialogEvent, 1)}
	d.mu.Lock()
	d.armed = a
	d.mu.Unlock()

	context.AfterFunc(ctx, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.armed == a {
			d.armed = nil
			close(a.ch)
		}
	})
	return a.ch, nil
}

// Close closes the page and its browser context.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	err := d.bctx.Close()
	if d.onClose != nil {
		d.onClose()
	}
	if err != nil {
		return fmt.Errorf("failed to close browser context: %w", err)
	}
	return nil
}
