// internal/widget/options.go
package widget

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/engine"
)

// Dropdown order on the page.
const (
	themesOverlay    = 0
	countriesOverlay = 1
)

// SelectTheme ticks the named theme. Selecting a theme that is already
// ticked changes nothing.
func (p *Page) SelectTheme(ctx context.Context, name string) error {
	intent := fmt.Sprintf("select theme %q", name)
	return p.gate.WithOverlay(ctx, themesOverlay, p.fallback(ThemeCombobox), func(ctx context.Context, s *engine.OverlaySession) error {
		box := engine.Target{
			Label: browser.Exactly(name),
			Kind:  engine.KindCheckbox,
			Attrs: p.sel.ThemeCheckboxAttrs,
			Scope: s.Scope(),
		}
		checked, _, err := p.checked(ctx, box)
		if err != nil {
			return err
		}
		if checked {
			p.logger.Debug("Theme already selected.", zap.String("theme", name))
			return nil
		}

		res, err := p.eng.Executor.Execute(ctx, intent, engine.OptionChain(name, p.sel.ThemeCheckboxAttrs, s.Scope()))
		if err != nil {
			return err
		}
		p.logger.Debug("Theme selected.", zap.String("theme", name), zap.String("strategy", res.Winner))
		return p.verifyChecked(ctx, intent, box, true)
	})
}

// SelectAllThemes uses the dropdown's select-all entry.
func (p *Page) SelectAllThemes(ctx context.Context) error {
	return p.gate.WithOverlay(ctx, themesOverlay, p.fallback(ThemeCombobox), func(ctx context.Context, s *engine.OverlaySession) error {
		scope := s.Scope()
		_, err := p.eng.Executor.Execute(ctx, "select all themes", []engine.Strategy{
			engine.Click("click select-all text", selfText(browser.Containing(p.labels.SelectAll), scope)),
			engine.Click("click all text", selfText(browser.Exactly(p.labels.SelectAllAlt), scope)),
			engine.Click("click select-all label", selfLabel(p.labels.SelectAll, scope)),
		})
		return err
	})
}

// ClearThemes uses the dropdown's clear entry.
func (p *Page) ClearThemes(ctx context.Context) error {
	return p.gate.WithOverlay(ctx, themesOverlay, p.fallback(ThemeCombobox), func(ctx context.Context, s *engine.OverlaySession) error {
		scope := s.Scope()
		_, err := p.eng.Executor.Execute(ctx, "clear themes", []engine.Strategy{
			engine.Click("click clear text", selfText(browser.Containing(p.labels.Clear), scope)),
			engine.Click("click clear label", selfLabel(p.labels.Clear, scope)),
		})
		return err
	})
}

// IsThemeSelected reports whether the page shows name as a selected theme.
// Theme names compare whole, ignoring case and whitespace runs. It only
// reads, and absence of every indicator is a plain false.
func (p *Page) IsThemeSelected(ctx context.Context, name string) (bool, error) {
	match := browser.Exactly(name)

	// A display-only combobox echoes the current selection in its own text.
	if hs, err := p.locate(ctx, ThemeCombobox); err != nil {
		return false, err
	} else if len(hs) > 0 {
		ok, err := p.displays(ctx, hs[0], match)
		if err != nil || ok {
			return ok, err
		}
	}

	ok, err := p.checkedNear(ctx, match)
	if err != nil || ok {
		return ok, err
	}

	markers, err := p.eng.Resolver.Resolve(ctx, engine.CSS(p.sel.SelectedMarker))
	if err != nil {
		return false, err
	}
	for _, h := range markers {
		st, err := p.drv.Describe(ctx, h)
		if err != nil {
			return false, err
		}
		if st.Found && match.Matches(st.Text) {
			return true, nil
		}
	}

	selects, err := p.eng.Resolver.Resolve(ctx, engine.CSS(p.sel.ThemeSelect))
	if err != nil {
		return false, err
	}
	for _, h := range selects {
		st, err := p.drv.Describe(ctx, h)
		if err != nil {
			return false, err
		}
		if st.Found && st.Tag == "select" && match.Matches(st.Value) {
			return true, nil
		}
	}
	return false, nil
}

// displays reports whether a combobox that holds no options of its own
// lists m in its text.
func (p *Page) displays(ctx context.Context, h browser.Handle, m browser.TextMatch) (bool, error) {
	st, err := p.drv.Describe(ctx, h)
	if err != nil || !st.Found || st.Tag == "select" {
		return false, err
	}
	inner, err := p.drv.QueryAll(ctx, h, p.sel.OverlayPanel+`, input[type="checkbox"], option`)
	if err != nil || len(inner) > 0 {
		return false, err
	}
	return listed(m, st.Text), nil
}

// listed reports whether m names the whole text or one of its comma
// separated entries, as in "Igaming, Blockchain".
func listed(m browser.TextMatch, text string) bool {
	if m.Matches(text) {
		return true
	}
	for _, entry := range strings.Split(text, ",") {
		if m.Matches(entry) {
			return true
		}
	}
	return false
}

// checkedNear looks for a ticked theme checkbox whose container text is m.
// The container's parent only counts when it holds no other theme checkbox.
func (p *Page) checkedNear(ctx context.Context, m browser.TextMatch) (bool, error) {
	boxes, err := p.eng.Resolver.Resolve(ctx, engine.Target{Kind: engine.KindCheckbox, Attrs: p.sel.ThemeCheckboxAttrs})
	if err != nil {
		return false, err
	}
	selector := engine.Target{Kind: engine.KindCheckbox, Attrs: p.sel.ThemeCheckboxAttrs}.Selector()
	for _, b := range boxes {
		st, err := p.drv.Describe(ctx, b)
		if err != nil {
			return false, err
		}
		if !st.Checked {
			continue
		}
		for hops := 1; hops <= 2; hops++ {
			up, err := p.drv.Ancestor(ctx, b, hops)
			if err != nil {
				return false, err
			}
			if up == "" {
				break
			}
			if hops == 2 {
				siblings, err := p.drv.QueryAll(ctx, up, selector)
				if err != nil {
					return false, err
				}
				if len(siblings) > 1 {
					break
				}
			}
			cs, err := p.drv.Describe(ctx, up)
			if err != nil {
				return false, err
			}
			if m.Matches(cs.Text) {
				return true, nil
			}
		}
	}
	return false, nil
}

// SelectAllCountries picks every country, through the native select when
// there is one and through the dropdown otherwise.
func (p *Page) SelectAllCountries(ctx context.Context) error {
	if ok, err := p.selectNative(ctx, "select all countries", browser.OptionRef{Label: p.labels.AllCountries}); ok || err != nil {
		return err
	}
	return p.gate.WithOverlay(ctx, countriesOverlay, p.fallback(CountryCombobox), func(ctx context.Context, s *engine.OverlaySession) error {
		scope := s.Scope()
		_, err := p.eng.Executor.Execute(ctx, "select all countries", []engine.Strategy{
			engine.Click("click all-countries text", selfText(browser.Containing(p.labels.AllCountries), scope)).Forced(),
			engine.Click("click select-all text", selfText(browser.Containing(p.labels.SelectAll), scope)).Forced(),
			engine.Click("click all-countries label", selfLabel(p.labels.AllCountries, scope)).Forced(),
		})
		return err
	})
}

// ClearCountries resets the country choice.
func (p *Page) ClearCountries(ctx context.Context) error {
	if ok, err := p.selectNative(ctx, "clear countries", browser.OptionRef{Index: 0}); ok || err != nil {
		return err
	}
	return p.gate.WithOverlay(ctx, countriesOverlay, p.fallback(CountryCombobox), func(ctx context.Context, s *engine.OverlaySession) error {
		scope := s.Scope()
		_, err := p.eng.Executor.Execute(ctx, "clear countries", []engine.Strategy{
			engine.Click("click clear text", selfText(browser.Containing(p.labels.Clear), scope)).Forced(),
			engine.Click("click clear label", selfLabel(p.labels.Clear, scope)).Forced(),
		})
		return err
	})
}

// selectNative tries a native country select. It reports false without an
// error when the page has none or the option is missing, so callers can fall
// back to the dropdown.
func (p *Page) selectNative(ctx context.Context, intent string, opt browser.OptionRef) (bool, error) {
	hs, err := p.locate(ctx, CountryCombobox)
	if err != nil || len(hs) == 0 {
		return false, err
	}
	actx, cancel := context.WithTimeout(ctx, p.eng.Config().AttemptTimeout)
	defer cancel()
	if err := p.drv.SelectOption(actx, hs[0], opt); err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		p.logger.Debug("Native select unavailable; using the dropdown.", zap.String("intent", intent), zap.Error(err))
		return false, nil
	}
	return true, nil
}

func selfText(m browser.TextMatch, scope browser.Handle) engine.Target {
	return engine.Target{Label: m, Relation: engine.RelationSelf, Scope: scope}
}

func selfLabel(text string, scope browser.Handle) engine.Target {
	return engine.Target{Label: browser.Containing(text), Relation: engine.RelationSelf, Kind: engine.KindLabel, Scope: scope}
}
