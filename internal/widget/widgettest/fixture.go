// Package widgettest provides an offline copy of the widget builder for
// tests and structural probes. The page scripts are emulated by snapshot
// hooks.
package widgettest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
	"github.com/xkilldash9x/widgetpilot/internal/browser/snapshot"
)

// URL is where the builder is served in the default configuration.
const URL = "https://dev.3snet.info/eventswidget/"

// GenerateDelay is how long the emulated builder takes to render embed code.
const GenerateDelay = 30 * time.Millisecond

// Page is the builder markup.
const Page = `<html><head><title>Виджет мероприятий</title></head><body>
<h1>Конструктор виджета мероприятий</h1>
<section id="step1"><h3>Шаг 1</h3><p>Выберите тематику</p>
  <div class="checkselect" id="themes">
    <div class="checkselect-over"></div>
    <div class="checkselect-popup" style="display: none">
      <div class="checkselect-control"><span class="select-all">Выбрать все</span><span class="clear">Очистить</span></div>
      <label><input type="checkbox" name="type" value="igaming"> Igaming</label>
      <label><input type="checkbox" name="type" value="blockchain"> Blockchain</label>
      <label><input type="checkbox" name="type" value="gamedev"> Game Development</label>
      <label><input type="checkbox" name="type" value="development"> Development</label>
      <div class="opt"><input type="checkbox" name="type" value="esports" style="opacity: 0"><span>Esports</span></div>
    </div>
  </div>
</section>
<section id="step2"><h3>Шаг 2</h3><p>Выберите страны</p>
  <div class="checkselect" id="countries">
    <div class="checkselect-over"></div>
    <div class="checkselect-popup" style="display: none">
      <div class="checkselect-control"><span class="select-all">Все страны</span><span class="clear">Очистить</span></div>
      <label><input type="checkbox" name="country" value="ru"> Россия</label>
      <label><input type="checkbox" name="country" value="de"> Германия</label>
    </div>
  </div>
</section>
<section id="step3"><h3>Шаг 3</h3>
  <div class="field"><span>Ширина, px:</span><input type="text" name="width" value="640"></div>
  <div class="field"><span>Высота, px:</span><input type="text" name="height" value="480"></div>
  <label class="toggle"><input type="checkbox" name="full_width" style="display: none"><span>на всю ширину контейнера</span></label>
  <label class="toggle"><input type="checkbox" name="full_height" style="display: none"><span>на всю высоту блока</span></label>
</section>
<section id="step4"><h3>Шаг 4</h3>
  <label><input type="radio" name="color" value="blue" checked> Светлая тема:</label>
  <label><input type="radio" name="color" value="dark"> Темная тема:</label>
</section>
<button id="generate">Сгенерировать превью</button>
<div id="preview" class="preview"></div>
<p>Скопируйте код и вставьте его на свой сайт</p>
<textarea id="code" disabled></textarea>
<button id="copy">Скопировать код</button>
</body></html>`

// Embed renders the code the builder produces for the current form.
func Embed(d *snapshot.Driver) string {
	var themes []string
	for _, v := range []string{"igaming", "blockchain", "gamedev", "development", "esports"} {
		if d.Ticked(fmt.Sprintf(`input[value="%s"]`, v)) {
			themes = append(themes, v)
		}
	}
	color := "blue"
	if d.Ticked(`input[value="dark"]`) {
		color = "dark"
	}
	return fmt.Sprintf(`<iframe src="https://dev.3snet.info/eventswidget/embed?type=%s&color=%s" width="%s" height="%s"></iframe>`,
		strings.Join(themes, ","), color, d.Value(`input[name="width"]`), d.Value(`input[name="height"]`))
}

// Install registers hooks standing in for the builder's scripts.
func Install(d *snapshot.Driver) error {
	hooks := []struct {
		event, css string
		fn         snapshot.Hook
	}{
		{snapshot.EventClick, ".checkselect-over", toggleDropdown},
		{snapshot.EventClick, "#themes .select-all", func(d *snapshot.Driver, _ *goquery.Selection) {
			d.Tick(`#themes input[name="type"]`, true)
		}},
		{snapshot.EventClick, "#themes .clear", func(d *snapshot.Driver, _ *goquery.Selection) {
			d.Tick(`#themes input[name="type"]`, false)
		}},
		{snapshot.EventClick, "#countries .select-all", func(d *snapshot.Driver, _ *goquery.Selection) {
			d.Tick(`#countries input`, true)
		}},
		{snapshot.EventClick, "#countries .clear", func(d *snapshot.Driver, _ *goquery.Selection) {
			d.Tick(`#countries input`, false)
		}},
		{snapshot.EventChange, `.field input`, clampDimension},
		{snapshot.EventClick, "#generate", func(d *snapshot.Driver, _ *goquery.Selection) {
			d.After(GenerateDelay, func(d *snapshot.Driver) { d.SetValue("#code", Embed(d)) })
		}},
		{snapshot.EventClick, "#copy", func(d *snapshot.Driver, _ *goquery.Selection) {
			d.SetClipboard(d.Value("#code"))
			d.RaiseDialog("alert", "Код скопирован")
		}},
	}
	for _, h := range hooks {
		if err := d.On(h.event, h.css, h.fn); err != nil {
			return err
		}
	}
	return nil
}

// NewDriver loads the builder at URL with its hooks installed.
func NewDriver(opts ...snapshot.Option) (*snapshot.Driver, error) {
	d, err := snapshot.New(Page, append([]snapshot.Option{snapshot.WithURL(URL)}, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := Install(d); err != nil {
		return nil, err
	}
	return d, nil
}

func toggleDropdown(d *snapshot.Driver, s *goquery.Selection) {
	panel := "#" + s.Parent().AttrOr("id", "") + " .checkselect-popup"
	if d.Visible(panel) {
		d.SetStyle(panel, "display: none")
	} else {
		d.SetStyle(panel, "display: block")
	}
}

// clampDimension rewrites negative sizes to zero, the way the builder's
// input handler does.
func clampDimension(d *snapshot.Driver, s *goquery.Selection) {
	if n, err := strconv.Atoi(d.FieldValue(s)); err == nil && n < 0 {
		d.SetFieldValue(s, "0")
	}
}

// Factory hands out fresh builder pages. It satisfies browser.Factory.
type Factory struct {
	// Options apply to every page, after WithURL(URL).
	Options []snapshot.Option
	// Setup, when set, runs against each page before it is returned.
	Setup func(d *snapshot.Driver) error

	mu     sync.Mutex
	opened int
	closed bool
}

var _ browser.Factory = (*Factory)(nil)

func (f *Factory) NewPage(ctx context.Context) (browser.Driver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, errors.New("factory is closed")
	}
	f.opened++
	f.mu.Unlock()

	d, err := NewDriver(f.Options...)
	if err != nil {
		return nil, err
	}
	if f.Setup != nil {
		if err := f.Setup(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Opened counts the pages handed out so far.
func (f *Factory) Opened() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func (f *Factory) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}
