// internal/engine/overlay.go
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

// OverlaySession describes one pass through the gate. It lives for a single
// WithOverlay call.
type OverlaySession struct {
	Index   int
	Surface browser.Handle
	Panel   browser.Handle
	// Opened is true when this call opened the panel and must close it.
	Opened bool
	// Native is true when no overlay surface existed and the fallback
	// control was used instead.
	Native bool
}

// Scope is the subtree option strategies should search: the panel when
// there is one, else the whole page.
func (s *OverlaySession) Scope() browser.Handle {
	return s.Panel
}

// Gate opens and closes the custom dropdowns that sit behind a transparent
// interception surface.
type Gate struct {
	drv        browser.Driver
	verifier   *Verifier
	surfaceCSS string
	panelCSS   string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewGate creates a gate for the given surface and panel selectors. timeout
// bounds the wait for the panel to show or hide.
func NewGate(drv browser.Driver, verifier *Verifier, surfaceCSS, panelCSS string, timeout time.Duration, logger *zap.Logger) *Gate {
	return &Gate{
		drv:        drv,
		verifier:   verifier,
		surfaceCSS: surfaceCSS,
		panelCSS:   panelCSS,
		timeout:    timeout,
		logger:     logger.Named("overlay"),
	}
}

// WithOverlay runs body with the index-th dropdown open. A panel that was
// already open is left open; one this call opened is closed again. When the
// page has no surface at index, fallback is force-clicked instead and body
// runs against the whole page. body's error takes precedence over a close error.
func (g *Gate) WithOverlay(ctx context.Context, index int, fallback Target, body func(ctx context.Context, s *OverlaySession) error) (err error) {
	s := &OverlaySession{Index: index}

	surfaces, err := g.drv.QueryAll(ctx, "", g.surfaceCSS)
	if err != nil {
		return fmt.Errorf("failed to query overlay surfaces: %w", err)
	}
	if index >= len(surfaces) {
		s.Native = true
		if err := g.openNative(ctx, fallback); err != nil {
			return err
		}
		return body(ctx, s)
	}
	s.Surface = surfaces[index]

	if s.Panel, err = g.panel(ctx, index); err != nil {
		return err
	}
	visible := false
	if s.Panel != "" {
		st, err := g.drv.Describe(ctx, s.Panel)
		if err != nil {
			return fmt.Errorf("failed to read overlay panel: %w", err)
		}
		visible = st.Found && st.Visible
	}

	if !visible {
		if err := g.toggle(ctx, s.Surface); err != nil {
			return fmt.Errorf("failed to open overlay %d: %w", index, err)
		}
		s.Opened = true
		if s.Panel == "" {
			if s.Panel, err = g.panel(ctx, index); err != nil {
				return err
			}
		}
		g.echo(ctx, s, PropVisible)
	}

	g.logger.Debug("Overlay ready.",
		zap.Int("index", index),
		zap.Bool("opened", s.Opened),
		zap.String("panel", string(s.Panel)))

	defer func() {
		if !s.Opened {
			return
		}
		closeErr := g.toggle(ctx, s.Surface)
		if closeErr == nil {
			g.echo(ctx, s, PropHidden)
		} else if err == nil {
			err = fmt.Errorf("failed to close overlay %d: %w", index, closeErr)
		}
	}()

	return body(ctx, s)
}

func (g *Gate) panel(ctx context.Context, index int) (browser.Handle, error) {
	panels, err := g.drv.QueryAll(ctx, "", g.panelCSS)
	if err != nil {
		return "", fmt.Errorf("failed to query overlay panels: %w", err)
	}
	if index < len(panels) {
		return panels[index], nil
	}
	return "", nil
}

// toggle clicks the surface, forcing it when a plain click is refused.
func (g *Gate) toggle(ctx context.Context, surface browser.Handle) error {
	if err := g.drv.Click(ctx, surface, browser.ActionOptions{}); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return err
	}
	return g.drv.Click(ctx, surface, browser.ActionOptions{Force: true})
}

func (g *Gate) openNative(ctx context.Context, fallback Target) error {
	hs, err := g.verifier.resolver.Resolve(ctx, fallback)
	if err != nil {
		return fmt.Errorf("failed to resolve overlay fallback: %w", err)
	}
	if len(hs) == 0 {
		g.logger.Debug("No overlay surface or fallback control; continuing on the page.", zap.Stringer("fallback", fallback))
		return nil
	}
	if err := g.drv.Click(ctx, hs[0], browser.ActionOptions{Force: true}); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		g.logger.Warn("Fallback control did not take the click.", zap.Stringer("fallback", fallback), zap.Error(err))
	}
	return nil
}

// echo waits for the panel to reach the given visibility. Not reaching it is
// logged; only the body's own checks decide the outcome.
func (g *Gate) echo(ctx context.Context, s *OverlaySession, prop Property) {
	if s.Panel == "" {
		return
	}
	_, err := g.verifier.Verify(ctx, Expectation{
		Intent:   fmt.Sprintf("overlay %d %s", s.Index, prop),
		Handle:   s.Panel,
		Property: prop,
		Timeout:  g.timeout,
	})
	if err != nil && ctx.Err() == nil {
		g.logger.Warn("Overlay panel did not echo.", zap.Int("index", s.Index), zap.Stringer("want", prop), zap.Error(err))
	}
}
