// internal/browser/cdp/driver.go
package cdp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
)

const closeTimeout = 10 * time.Second

type armedDialog struct {
	accept bool
	ch     chan browser.DialogEvent
}

// Driver implements browser.Driver over one Chrome tab.
type Driver struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	cfg    config.BrowserConfig
	logger *zap.Logger

	mu      sync.Mutex
	armed   *armedDialog
	closed  bool
	onClose func()
}

var _ browser.Driver = (*Driver)(nil)

func newDriver(ctx context.Context, cancel context.CancelFunc, id string, cfg config.BrowserConfig, logger *zap.Logger) *Driver {
	d := &Driver{id: id, ctx: ctx, cancel: cancel, cfg: cfg, logger: logger}
	chromedp.ListenTarget(ctx, d.onEvent)
	return d
}

// onEvent runs on chromedp's event goroutine and must not block on the target.
func (d *Driver) onEvent(ev interface{}) {
	e, ok := ev.(*page.EventJavascriptDialogOpening)
	if !ok {
		return
	}
	d.mu.Lock()
	a := d.armed
	d.armed = nil
	d.mu.Unlock()

	accept := a != nil && a.accept
	go func() {
		if err := chromedp.Run(d.ctx, page.HandleJavaScriptDialog(accept)); err != nil {
			d.logger.Debug("Failed to resolve dialog.", zap.String("type", string(e.Type)), zap.Error(err))
		}
		if a == nil {
			d.logger.Debug("Dismissed unexpected dialog.", zap.String("type", string(e.Type)), zap.String("message", e.Message))
			return
		}
		a.ch <- browser.DialogEvent{Type: string(e.Type), Message: e.Message, Accepted: accept}
		close(a.ch)
	}()
}

// evalAwait makes Runtime.evaluate resolve promises returned by async scripts.
func evalAwait(p *runtime.EvaluateParams) *runtime.EvaluateParams {
	return p.WithAwaitPromise(true)
}

// eval runs fn with args in the page and decodes its JSON result into out.
func (d *Driver) eval(ctx context.Context, fn string, out interface{}, args ...interface{}) error {
	expr, err := browser.Invocation(fn, args...)
	if err != nil {
		return err
	}
	rctx, cancel := browser.CombineContext(d.ctx, ctx)
	defer cancel()

	var raw []byte
	if err := chromedp.Run(rctx, chromedp.Evaluate(expr, &raw, evalAwait)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("script evaluation failed: %w", err)
	}
	return browser.Decode(raw, out)
}

func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	rctx, cancel := browser.CombineContext(d.ctx, ctx)
	defer cancel()
	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
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

// actionable mirrors the checks a user-level click would fail on.
func (d *Driver) actionable(ctx context.Context, h browser.Handle) error {
	st, err := d.Describe(ctx, h)
	if err != nil {
		return err
	}
	switch {
	case !st.Found:
		return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	case !st.Visible:
		return fmt.Errorf("element <%s> is not visible", st.Tag)
	case st.Disabled:
		return fmt.Errorf("element <%s> is disabled", st.Tag)
	}
	return nil
}

func (d *Driver) Click(ctx context.Context, h browser.Handle, opts browser.ActionOptions) error {
	if opts.Force {
		var res browser.FoundResult
		if err := d.eval(ctx, browser.DOMClickScript, &res, string(h)); err != nil {
			return err
		}
		if !res.Found {
			return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
		}
		return nil
	}
	if err := d.actionable(ctx, h); err != nil {
		return err
	}
	return d.run(ctx, chromedp.Click(h.Selector(), chromedp.ByQuery, chromedp.NodeVisible))
}

func (d *Driver) SetChecked(ctx context.Context, h browser.Handle, checked bool, opts browser.ActionOptions) error {
	st, err := d.Describe(ctx, h)
	if err != nil {
		return err
	}
	if !st.Found {
		return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	}
	if st.Checked == checked {
		return nil
	}
	if err := d.Click(ctx, h, opts); err != nil {
		return err
	}
	if st, err = d.Describe(ctx, h); err != nil {
		return err
	}
	if st.Checked != checked {
		return fmt.Errorf("clicking did not change the checked state to %t", checked)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, h browser.Handle, value string, opts browser.ActionOptions) error {
	var res browser.FoundResult
	if opts.Force {
		if err := d.eval(ctx, browser.SetValueScript, &res, string(h), value); err != nil {
			return err
		}
		if !res.Found {
			return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
		}
		return nil
	}

	if err := d.actionable(ctx, h); err != nil {
		return err
	}
	sel := h.Selector()
	if err := d.run(ctx,
		chromedp.Clear(sel, chromedp.ByQuery),
		chromedp.SendKeys(sel, value, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("failed to type into field: %w", err)
	}
	// Typing fires input events only; the builder listens for change.
	return d.eval(ctx, browser.CommitValueScript, &res, string(h))
}

func (d *Driver) SelectOption(ctx context.Context, h browser.Handle, opt browser.OptionRef) error {
	var res browser.FoundResult
	if err := d.eval(ctx, browser.SelectOptionScript, &res, string(h), opt.Label, opt.Index); err != nil {
		return err
	}
	switch {
	case !res.Found:
		return fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	case !res.Select:
		return browser.ErrNotSelect
	case !res.Selected:
		return fmt.Errorf("no option %+v in select", opt)
	}
	return nil
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
	nctx, cancel := context.WithTimeout(ctx, d.cfg.NavigationTimeout)
	defer cancel()
	if err := d.run(nctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	var u string
	err := d.run(ctx, chromedp.Location(&u))
	return u, err
}

func (d *Driver) BodyText(ctx context.Context) (string, error) {
	var text string
	err := d.eval(ctx, browser.BodyTextScript, &text)
	return text, err
}

// GrantClipboard grants clipboard access to origin in this tab's browser context.
func (d *Driver) GrantClipboard(ctx context.Context, origin string) error {
	c := chromedp.FromContext(d.ctx)
	if c == nil || c.Browser == nil {
		return errors.New("tab is not attached to a browser")
	}
	rctx, cancel := browser.CombineContext(d.ctx, ctx)
	defer cancel()

	grant := cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{
		cdpbrowser.PermissionTypeClipboardReadWrite,
		cdpbrowser.PermissionTypeClipboardSanitizedWrite,
	}).WithOrigin(origin)
	if c.BrowserContextID != "" {
		grant = grant.WithBrowserContextID(c.BrowserContextID)
	}
	if err := grant.Do(cdp.WithExecutor(rctx, c.Browser)); err != nil {
		return fmt.Errorf("failed to grant clipboard permissions for %s: %w", origin, err)
	}
	return nil
}

func (d *Driver) ReadClipboard(ctx context.Context) (string, error) {
	var res browser.ClipboardResult
	if err := d.eval(ctx, browser.ReadClipboardScript, &res); err != nil {
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

// Close closes the tab and disposes of its browser context.
func (d *Driver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	cctx, cancel := context.WithTimeout(browser.Detach(d.ctx), closeTimeout)
	defer cancel()
	err := chromedp.Cancel(cctx)
	d.cancel()
	if d.onClose != nil {
		d.onClose()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close tab: %w", err)
	}
	return nil
}
