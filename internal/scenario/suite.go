// internal/scenario/suite.go
package scenario

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/stretchr/testify/assert"

	"github.com/xkilldash9x/widgetpilot/internal/engine"
	"github.com/xkilldash9x/widgetpilot/internal/widget"
)

var (
	embedPattern    = regexp.MustCompile(`(?i)iframe|script`)
	stepHeadings    = []string{"Шаг 1", "Шаг 2", "Шаг 3", "Шаг 4"}
	nonNegativeSize = regexp.MustCompile(`^\d*$`)
)

// Suite returns the end-to-end scenarios for the widget builder.
func Suite() []Scenario {
	return []Scenario{
		{Name: "page-loads", Description: "page loads and shows its main elements", Run: pageLoads},
		{Name: "step1-themes", Description: "a theme can be selected", Run: stepThemes},
		{Name: "step2-countries", Description: "countries can be selected and cleared", Run: stepCountries},
		{Name: "step3-size", Description: "block size and full width/height toggles", Run: stepSize},
		{Name: "step4-color", Description: "light and dark color schemes", Run: stepColor},
		{Name: "generate-preview", Description: "a configured widget produces embed code", Run: generatePreview},
		{Name: "copy-code", Description: "generated code reaches the clipboard", Run: copyCode},
		{Name: "full-workflow", Description: "configure every step and generate", Run: fullWorkflow},
		{Name: "page-content", Description: "steps and instructions are on the page", Run: pageContent},
		{Name: "responsive", Description: "sections and controls are rendered", Run: responsive},
		{Name: "no-theme-generate", Description: "generating without a theme never faults", Run: noThemeGenerate},
		{Name: "toggle-idempotence", Description: "repeated toggles keep their state", Run: toggleIdempotence},
		{Name: "dimension-bounds", Description: "non-positive sizes are observed, not assumed", Run: dimensionBounds},
	}
}

// expectVisible asserts that every control is rendered.
func expectVisible(ctx context.Context, p *widget.Page, t *T, controls ...widget.Control) error {
	for _, c := range controls {
		ok, err := p.Visible(ctx, c)
		if err != nil {
			return err
		}
		assert.True(t, ok, "%s should be visible", c)
	}
	return nil
}

func pageLoads(ctx context.Context, p *widget.Page, t *T) error {
	loaded, err := p.IsLoaded(ctx)
	if err != nil {
		return err
	}
	assert.True(t, loaded, "URL should point at the widget builder")
	return expectVisible(ctx, p, t,
		widget.MainHeading, widget.Step1, widget.Step2, widget.Step3, widget.Step4, widget.GenerateButton)
}

func stepThemes(ctx context.Context, p *widget.Page, t *T) error {
	if err := expectVisible(ctx, p, t, widget.ThemeCombobox); err != nil {
		return err
	}
	if err := p.SelectTheme(ctx, "Igaming"); err != nil {
		return err
	}
	selected, err := p.IsThemeSelected(ctx, "Igaming")
	if err != nil {
		return err
	}
	assert.True(t, selected, "Igaming should be selected")
	return nil
}

func stepCountries(ctx context.Context, p *widget.Page, t *T) error {
	if err := expectVisible(ctx, p, t, widget.CountryCombobox); err != nil {
		return err
	}
	if err := p.SelectAllCountries(ctx); err != nil {
		return err
	}
	return p.ClearCountries(ctx)
}

func stepSize(ctx context.Context, p *widget.Page, t *T) error {
	if err := expectVisible(ctx, p, t, widget.WidthInput, widget.HeightInput); err != nil {
		return err
	}
	if err := setSize(ctx, p, t, 800, 600); err != nil {
		return err
	}
	for _, on := range []bool{true, false} {
		if err := p.SetFullWidth(ctx, on); err != nil {
			return err
		}
		if err := p.SetFullHeight(ctx, on); err != nil {
			return err
		}
	}
	return nil
}

func setSize(ctx context.Context, p *widget.Page, t *T, width, height int) error {
	got, err := p.SetWidth(ctx, width)
	if err != nil {
		return err
	}
	assert.Equal(t, strconv.Itoa(width), got)
	got, err = p.SetHeight(ctx, height)
	if err != nil {
		return err
	}
	assert.Equal(t, strconv.Itoa(height), got)
	return nil
}

func stepColor(ctx context.Context, p *widget.Page, t *T) error {
	if err := expectVisible(ctx, p, t, widget.Step4); err != nil {
		return err
	}
	if err := p.SelectLightTheme(ctx); err != nil {
		return err
	}
	return p.SelectDarkTheme(ctx)
}

// generate produces embed code and records it as the scenario artifact.
func generate(ctx context.Context, p *widget.Page, t *T) (string, error) {
	code, err := p.GeneratePreview(ctx)
	if err != nil {
		return code, err
	}
	t.SetArtifact(code)
	assert.Regexp(t, embedPattern, code)
	return code, nil
}

func generatePreview(ctx context.Context, p *widget.Page, t *T) error {
	if err := p.SelectTheme(ctx, "Igaming"); err != nil {
		return err
	}
	if err := setSize(ctx, p, t, 1000, 800); err != nil {
		return err
	}
	if err := p.SelectLightTheme(ctx); err != nil {
		return err
	}
	if _, err := generate(ctx, p, t); err != nil {
		return err
	}
	return expectVisible(ctx, p, t, widget.GeneratedCode, widget.CopyButton)
}

func copyCode(ctx context.Context, p *widget.Page, t *T) error {
	if err := p.SelectTheme(ctx, "Igaming"); err != nil {
		return err
	}
	code, err := generate(ctx, p, t)
	if err != nil {
		return err
	}
	res, err := p.CopyCode(ctx)
	if err != nil {
		return err
	}
	assert.Equal(t, code, res.Artifact)
	if res.Degraded {
		t.MarkDegraded()
		t.Notef("clipboard unavailable, checked the generated code only")
		return nil
	}
	assert.Equal(t, code, res.Clipboard)
	if res.Dialog != nil {
		t.Notef("copy raised %s %q", res.Dialog.Type, res.Dialog.Message)
	}
	return nil
}

func fullWorkflow(ctx context.Context, p *widget.Page, t *T) error {
	themes := []string{"Blockchain", "Development"}
	for _, name := range themes {
		if err := p.SelectTheme(ctx, name); err != nil {
			return err
		}
	}
	if err := p.SelectAllCountries(ctx); err != nil {
		return err
	}
	if err := setSize(ctx, p, t, 1200, 900); err != nil {
		return err
	}
	if err := p.SelectDarkTheme(ctx); err != nil {
		return err
	}
	if _, err := generate(ctx, p, t); err != nil {
		return err
	}
	for _, name := range themes {
		ok, err := p.IsThemeSelected(ctx, name)
		if err != nil {
			return err
		}
		assert.True(t, ok, "%s should still be selected", name)
	}
	return nil
}

func pageContent(ctx context.Context, p *widget.Page, t *T) error {
	text, err := p.BodyText(ctx)
	if err != nil {
		return err
	}
	assert.NotEmpty(t, text)
	for _, step := range stepHeadings {
		assert.Contains(t, text, step)
	}
	assert.True(t, p.HasInstructions(text), "page should carry copy/preview instructions")
	return nil
}

func responsive(ctx context.Context, p *widget.Page, t *T) error {
	if err := expectVisible(ctx, p, t,
		widget.Step1, widget.Step2, widget.Step3, widget.Step4, widget.GenerateButton); err != nil {
		return err
	}
	for _, c := range widget.Controls() {
		ok, err := p.Exists(ctx, c)
		if err != nil {
			return err
		}
		if !ok {
			t.Notef("%s not present", c)
		}
	}
	return nil
}

func noThemeGenerate(ctx context.Context, p *widget.Page, t *T) error {
	if err := p.ClearThemes(ctx); err != nil {
		return err
	}
	code, err := p.GeneratePreview(ctx)
	if err != nil {
		kind := engine.KindOf(err)
		assert.NotEqual(t, engine.KindUnknown, kind, "generation failed with an untyped error: %v", err)
		t.Notef("generation without a theme ended with %s", kind)
		return nil
	}
	t.SetArtifact(code)
	assert.Regexp(t, embedPattern, code)
	return nil
}

func toggleIdempotence(ctx context.Context, p *widget.Page, t *T) error {
	toggles := []struct {
		name    string
		control widget.Control
		set     func(context.Context, bool) error
		read    func(context.Context) (bool, bool, error)
	}{
		{"full width", widget.FullWidthCheckbox, p.SetFullWidth, p.IsFullWidth},
		{"full height", widget.FullHeightCheckbox, p.SetFullHeight, p.IsFullHeight},
	}
	for _, tg := range toggles {
		for i, on := range []bool{true, true, false, false} {
			if err := tg.set(ctx, on); err != nil {
				return fmt.Errorf("%s set to %t: %w", tg.name, on, err)
			}
			exists, err := p.Exists(ctx, tg.control)
			if err != nil {
				return err
			}
			assert.True(t, exists, "%s checkbox still present after call %d", tg.name, i+1)

			state, found, err := tg.read(ctx)
			if err != nil {
				return err
			}
			if found {
				assert.Equal(t, on, state, "%s after call %d", tg.name, i+1)
			}
		}
	}
	return nil
}

func dimensionBounds(ctx context.Context, p *widget.Page, t *T) error {
	for _, n := range []int{0, -10} {
		got, err := p.SetWidth(ctx, n)
		if err != nil && engine.KindOf(err) != engine.KindVerificationTimeout {
			return err
		}
		assert.Regexp(t, nonNegativeSize, got, "width %d", n)
		t.Notef("width %d reads back as %q", n, got)
	}
	return nil
}
