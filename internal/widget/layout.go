// internal/widget/layout.go
package widget

import (
	"context"
	"fmt"
	"strconv"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/engine"
)

// SetWidth types n into the width field and returns what the field holds
// afterwards. If the page rewrites the value, the rewritten value comes back
// together with a VerificationTimeout failure.
func (p *Page) SetWidth(ctx context.Context, n int) (string, error) {
	return p.setDimension(ctx, "width", p.labels.Width, n)
}

// SetHeight is SetWidth for the height field.
func (p *Page) SetHeight(ctx context.Context, n int) (string, error) {
	return p.setDimension(ctx, "height", p.labels.Height, n)
}

func (p *Page) setDimension(ctx context.Context, what, label string, n int) (string, error) {
	intent := fmt.Sprintf("set %s %d", what, n)
	want := strconv.Itoa(n)
	field := engine.Near(label, engine.KindTextInput)

	res, err := p.eng.Executor.Execute(ctx, intent, []engine.Strategy{
		engine.Fill("fill "+what+" field", field, want),
		engine.Fill("force fill "+what+" field", field, want).Forced(),
	})
	if err != nil {
		return "", err
	}
	obs, err := p.eng.Verifier.Verify(ctx, engine.Expectation{
		Intent:   intent,
		Handle:   res.Handle,
		Property: engine.PropValue,
		Value:    want,
	})
	return obs.State.Value, err
}

// SetFullWidth sets the "full container width" checkbox. It does nothing
// when the checkbox is already in the wanted state.
func (p *Page) SetFullWidth(ctx context.Context, on bool) error {
	return p.setToggle(ctx, "full width", p.labels.FullWidth, on)
}

// SetFullHeight sets the "full block height" checkbox.
func (p *Page) SetFullHeight(ctx context.Context, on bool) error {
	return p.setToggle(ctx, "full height", p.labels.FullHeight, on)
}

// IsFullWidth reads the "full container width" checkbox. found is false
// when the page has no such checkbox.
func (p *Page) IsFullWidth(ctx context.Context) (on, found bool, err error) {
	return p.checked(ctx, engine.Near(p.labels.FullWidth, engine.KindCheckbox))
}

// IsFullHeight reads the "full block height" checkbox.
func (p *Page) IsFullHeight(ctx context.Context) (on, found bool, err error) {
	return p.checked(ctx, engine.Near(p.labels.FullHeight, engine.KindCheckbox))
}

func (p *Page) setToggle(ctx context.Context, what, label string, on bool) error {
	intent := fmt.Sprintf("set %s %t", what, on)
	box := engine.Near(label, engine.KindCheckbox)

	checked, found, err := p.checked(ctx, box)
	if err != nil {
		return err
	}
	if found && checked == on {
		return nil
	}

	_, err = p.eng.Executor.Execute(ctx, intent, []engine.Strategy{
		engine.SetChecked("set checkbox", box, on).Forced(),
		engine.Click("click label text", selfText(browser.Containing(label), "")).Expecting(box, on),
		engine.ForceChecked("force checkbox state", box, on),
	})
	if err != nil {
		return err
	}
	return p.verifyChecked(ctx, intent, box, on)
}

// SelectLightTheme picks the light color scheme.
func (p *Page) SelectLightTheme(ctx context.Context) error {
	return p.selectScheme(ctx, "light", p.labels.LightTheme)
}

// SelectDarkTheme picks the dark color scheme.
func (p *Page) SelectDarkTheme(ctx context.Context) error {
	return p.selectScheme(ctx, "dark", p.labels.DarkTheme)
}

func (p *Page) selectScheme(ctx context.Context, scheme, label string) error {
	intent := "select " + scheme + " color scheme"
	radio := engine.Near(label, engine.KindRadio)

	_, err := p.eng.Executor.Execute(ctx, intent, []engine.Strategy{
		engine.Check("check radio", radio),
		engine.Click("click choice near label", engine.Near(label, engine.KindChoice)).Expecting(radio, true),
		engine.Click("click label text", selfText(browser.Containing(label), "")).Expecting(radio, true),
		engine.ForceChecked("force radio", radio, true),
	})
	if err != nil {
		return err
	}
	return p.verifyChecked(ctx, intent, radio, true)
}
