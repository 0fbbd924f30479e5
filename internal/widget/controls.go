// internal/widget/controls.go
package widget

import (
	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/config"
	"github.com/xkilldash9x/widgetpilot/internal/engine"
)

// Control names a structural part of the widget builder.
type Control int

const (
	MainHeading Control = iota
	Step1
	Step2
	Step3
	Step4
	ThemeCombobox
	CountryCombobox
	WidthInput
	HeightInput
	FullWidthCheckbox
	FullHeightCheckbox
	LightThemeRadio
	DarkThemeRadio
	GenerateButton
	CopyButton
	GeneratedCode
	PreviewRegion
)

var controlNames = map[Control]string{
	MainHeading:        "main-heading",
	Step1:              "step-1",
	Step2:              "step-2",
	Step3:              "step-3",
	Step4:              "step-4",
	ThemeCombobox:      "theme-combobox",
	CountryCombobox:    "country-combobox",
	WidthInput:         "width-input",
	HeightInput:        "height-input",
	FullWidthCheckbox:  "full-width-checkbox",
	FullHeightCheckbox: "full-height-checkbox",
	LightThemeRadio:    "light-theme-radio",
	DarkThemeRadio:     "dark-theme-radio",
	GenerateButton:     "generate-button",
	CopyButton:         "copy-button",
	GeneratedCode:      "generated-code",
	PreviewRegion:      "preview",
}

func (c Control) String() string {
	if n, ok := controlNames[c]; ok {
		return n
	}
	return "unknown-control"
}

// Controls lists every control in page order.
func Controls() []Control {
	out := make([]Control, 0, len(controlNames))
	for c := MainHeading; c <= PreviewRegion; c++ {
		out = append(out, c)
	}
	return out
}

// ParseControl looks a control up by name.
func ParseControl(name string) (Control, bool) {
	for c, n := range controlNames {
		if n == name {
			return c, true
		}
	}
	return 0, false
}

// catalogue maps every control to the targets that locate it, tried in order.
type catalogue map[Control][]engine.Target

func newCatalogue(labels config.LabelsConfig, sel config.SelectorsConfig) catalogue {
	step := func(i int) []engine.Target {
		if i >= len(labels.Steps) {
			return nil
		}
		return []engine.Target{{Label: browser.Containing(labels.Steps[i]), Relation: engine.RelationSelf}}
	}
	button := func(text string) []engine.Target {
		return []engine.Target{{Label: browser.Containing(text), Relation: engine.RelationSelf, Kind: engine.KindButton}}
	}

	return catalogue{
		MainHeading:        {engine.CSS(sel.Heading)},
		Step1:              step(0),
		Step2:              step(1),
		Step3:              step(2),
		Step4:              step(3),
		ThemeCombobox:      {engine.CSS(sel.ThemeSelect), engine.Near(labels.ThemeSelect, engine.KindCombobox)},
		CountryCombobox:    {engine.CSS(sel.CountrySelect), engine.Near(labels.CountrySelect, engine.KindCombobox)},
		WidthInput:         {engine.Near(labels.Width, engine.KindTextInput)},
		HeightInput:        {engine.Near(labels.Height, engine.KindTextInput)},
		FullWidthCheckbox:  {engine.Near(labels.FullWidth, engine.KindCheckbox)},
		FullHeightCheckbox: {engine.Near(labels.FullHeight, engine.KindCheckbox)},
		LightThemeRadio:    {engine.Near(labels.LightTheme, engine.KindRadio)},
		DarkThemeRadio:     {engine.Near(labels.DarkTheme, engine.KindRadio)},
		GenerateButton:     button(labels.Generate),
		CopyButton:         button(labels.Copy),
		GeneratedCode:      {engine.CSS(sel.Artifact)},
		PreviewRegion:      {engine.CSS(sel.Preview)},
	}
}
