// Package widget is the caller-facing surface for the 3snet events widget
// builder. Every operation maps a user intent onto the engine and returns
// either a value or a typed *engine.Failure.
package widget

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/engine"
)

// Page drives one widget builder page.
type Page struct {
	drv  browser.Driver
	eng  *engine.Engine
	gate *engine.Gate

	cfg      config.WidgetConfig
	labels   config.LabelsConfig
	sel      config.SelectorsConfig
	controls catalogue

	artifactRe *regexp.Regexp
	contentRe  *regexp.Regexp

	grantClipboard bool
	logger         *zap.Logger
}

// Option configures a Page.
type Option func(*Page)

// WithClipboardGrant makes Open grant clipboard access to the widget origin.
func WithClipboardGrant(grant bool) Option {
	return func(p *Page) { p.grantClipboard = grant }
}

// New binds a page facade to drv.
func New(drv browser.Driver, wcfg config.WidgetConfig, ecfg config.EngineConfig, logger *zap.Logger, opts ...Option) (*Page, error) {
	artifactRe, err := tokenPattern(wcfg.ArtifactTokens)
	if err != nil {
		return nil, err
	}
	contentRe, err := regexp.Compile(wcfg.Labels.PageContent)
	if err != nil {
		return nil, fmt.Errorf("invalid page content pattern %q: %w", wcfg.Labels.PageContent, err)
	}

	logger = logger.Named("widget")
	eng := engine.New(drv, ecfg, logger)
	p := &Page{
		drv:        drv,
		eng:        eng,
		gate:       eng.Gate(wcfg.Selectors.OverlaySurface, wcfg.Selectors.OverlayPanel),
		cfg:        wcfg,
		labels:     wcfg.Labels,
		sel:        wcfg.Selectors,
		controls:   newCatalogue(wcfg.Labels, wcfg.Selectors),
		artifactRe: artifactRe,
		contentRe:  contentRe,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// tokenPattern builds the case-insensitive alternation the generated code must match.
func tokenPattern(tokens []string) (*regexp.Regexp, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no artifact tokens configured")
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return regexp.Compile(`(?i)` + strings.Join(quoted, "|"))
}

// Engine exposes the engine bound to this page.
func (p *Page) Engine() *engine.Engine { return p.eng }

// Open navigates to the widget builder and waits until the page is ready.
func (p *Page) Open(ctx context.Context) error {
	target := p.cfg.URL()
	if p.grantClipboard {
		if err := p.drv.GrantClipboard(ctx, origin(target)); err != nil {
			p.logger.Warn("Could not grant clipboard access; copy checks will degrade.", zap.Error(err))
		}
	}
	if err := p.drv.Navigate(ctx, target); err != nil {
		return fmt.Errorf("failed to open widget builder at %s: %w", target, err)
	}
	_, err := p.eng.Verifier.Until(ctx, "open widget builder", 0, func(ctx context.Context) (bool, string, error) {
		u, err := p.drv.URL(ctx)
		return strings.Contains(u, p.cfg.ReadyMarker), u, err
	})
	if err != nil {
		return err
	}
	p.logger.Info("Widget builder opened.", zap.String("url", target))
	return nil
}

func origin(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Scheme + "://" + u.Host
}

// IsLoaded reports whether the current URL is the widget builder.
func (p *Page) IsLoaded(ctx context.Context) (bool, error) {
	u, err := p.drv.URL(ctx)
	if err != nil {
		return false, err
	}
	return strings.Contains(u, p.cfg.ReadyMarker), nil
}

// BodyText returns the normalized visible text of the document.
func (p *Page) BodyText(ctx context.Context) (string, error) {
	return p.drv.BodyText(ctx)
}

// HasInstructions reports whether text carries the copy/preview instructions.
func (p *Page) HasInstructions(text string) bool {
	return p.contentRe.MatchString(text)
}

// Exists reports whether any target of c resolves.
func (p *Page) Exists(ctx context.Context, c Control) (bool, error) {
	hs, err := p.locate(ctx, c)
	return len(hs) > 0, err
}

// Visible reports whether any element of c is rendered.
func (p *Page) Visible(ctx context.Context, c Control) (bool, error) {
	hs, err := p.locate(ctx, c)
	if err != nil {
		return false, err
	}
	for _, h := range hs {
		st, err := p.drv.Describe(ctx, h)
		if err != nil {
			return false, err
		}
		if st.Found && st.Visible {
			return true, nil
		}
	}
	return false, nil
}

// locate returns the handles of the first target of c that resolves.
func (p *Page) locate(ctx context.Context, c Control) ([]browser.Handle, error) {
	targets, ok := p.controls[c]
	if !ok {
		return nil, fmt.Errorf("unknown control %d", int(c))
	}
	for _, t := range targets {
		hs, err := p.eng.Resolver.Resolve(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("failed to locate %s: %w", c, err)
		}
		if len(hs) > 0 {
			return hs, nil
		}
	}
	return nil, nil
}

// fallback is the control force-clicked when a dropdown has no overlay surface.
func (p *Page) fallback(c Control) engine.Target {
	targets := p.controls[c]
	if len(targets) == 0 {
		return engine.CSS(p.sel.OverlaySurface)
	}
	return targets[len(targets)-1]
}

// checked reads the checked state of the first element t resolves to.
func (p *Page) checked(ctx context.Context, t engine.Target) (checked, found bool, err error) {
	hs, err := p.eng.Resolver.Resolve(ctx, t)
	if err != nil || len(hs) == 0 {
		return false, false, err
	}
	st, err := p.drv.Describe(ctx, hs[0])
	if err != nil {
		return false, false, err
	}
	return st.Checked, st.Found, nil
}

// verifyChecked waits for t to reach the wanted state, when t resolves at all.
func (p *Page) verifyChecked(ctx context.Context, intent string, t engine.Target, want bool) error {
	hs, err := p.eng.Resolver.Resolve(ctx, t)
	if err != nil {
		return err
	}
	if len(hs) == 0 {
		p.logger.Debug("No checkable element to verify against.", zap.String("intent", intent))
		return nil
	}
	_, err = p.eng.Verifier.Verify(ctx, engine.Expectation{
		Intent:   intent,
		Target:   &t,
		Property: engine.PropChecked,
		Checked:  want,
	})
	return err
}
