package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

const formPage = `<html><head><title>Шаг 1</title></head><body>
<div id="size">
  <label for="w">Ширина, px:</label><input id="w" type="number" value="640">
  <label><input id="full" type="checkbox"> на всю ширину контейнера</label>
</div>
<div id="scheme">
  <label><input type="radio" name="scheme" value="light" checked> Светлая тема:</label>
  <label><input type="radio" name="scheme" value="dark"> Темная тема:</label>
</div>
<div class="opt"><input type="checkbox" name="type" value="ig" disabled style="opacity: 0"><span>Igaming events</span></div>
<select name="country"><option value="">Все страны</option><option value="ru" selected>Россия</option></select>
<textarea disabled></textarea>
<div hidden><button id="ghost">ghost</button></div>
<script>var x = "Шаг 9";</script>
</body></html>`

func newDriver(t *testing.T, opts ...Option) *Driver {
	t.Helper()
	d, err := New(formPage, opts...)
	require.NoError(t, err)
	return d
}

func first(t *testing.T, d *Driver, css string) browser.Handle {
	t.Helper()
	hs, err := d.QueryAll(context.Background(), "", css)
	require.NoError(t, err)
	require.NotEmpty(t, hs, css)
	return hs[0]
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	d := newDriver(t)

	t.Run("query text returns innermost matches", func(t *testing.T) {
		hs, err := d.QueryText(ctx, "", browser.Exactly("Ширина, px:"))
		require.NoError(t, err)
		require.Len(t, hs, 1)
		st, err := d.Describe(ctx, hs[0])
		require.NoError(t, err)
		assert.Equal(t, "label", st.Tag)
	})

	t.Run("query text skips scripts and head", func(t *testing.T) {
		hs, err := d.QueryText(ctx, "", browser.Containing("Шаг"))
		require.NoError(t, err)
		assert.Empty(t, hs)
	})

	t.Run("handles are stable across queries", func(t *testing.T) {
		a := first(t, d, "#w")
		b := first(t, d, "input[type=number]")
		assert.Equal(t, a, b)
	})

	t.Run("scoped query and ancestors", func(t *testing.T) {
		size := first(t, d, "#size")
		hs, err := d.QueryAll(ctx, size, `input[type="checkbox"]`)
		require.NoError(t, err)
		require.Len(t, hs, 1)

		up, err := d.Ancestor(ctx, hs[0], 2)
		require.NoError(t, err)
		assert.Equal(t, size, up)

		top, err := d.Ancestor(ctx, size, 50)
		require.NoError(t, err)
		assert.Equal(t, browser.Handle(""), top)

		closest, err := d.Closest(ctx, hs[0], "div")
		require.NoError(t, err)
		assert.Equal(t, size, closest)
	})

	t.Run("invalid selector is an error, not a panic", func(t *testing.T) {
		_, err := d.QueryAll(ctx, "", "input[")
		assert.Error(t, err)
	})

	t.Run("unknown handle describes as not found", func(t *testing.T) {
		st, err := d.Describe(ctx, "nope-1")
		require.NoError(t, err)
		assert.False(t, st.Found)
		_, err = d.Ancestor(ctx, "nope-1", 1)
		assert.ErrorIs(t, err, browser.ErrStaleHandle)
	})
}

func TestActions(t *testing.T) {
	ctx := context.Background()

	t.Run("label click toggles its checkbox", func(t *testing.T) {
		d := newDriver(t)
		labels, err := d.QueryText(ctx, "", browser.Containing("на всю ширину"))
		require.NoError(t, err)
		require.Len(t, labels, 1)

		require.NoError(t, d.Click(ctx, labels[0], browser.ActionOptions{}))
		st, _ := d.Describe(ctx, first(t, d, "#full"))
		assert.True(t, st.Checked)

		require.NoError(t, d.Click(ctx, labels[0], browser.ActionOptions{}))
		st, _ = d.Describe(ctx, first(t, d, "#full"))
		assert.False(t, st.Checked)
	})

	t.Run("set checked is idempotent", func(t *testing.T) {
		d := newDriver(t)
		full := first(t, d, "#full")
		require.NoError(t, d.SetChecked(ctx, full, true, browser.ActionOptions{}))
		require.NoError(t, d.SetChecked(ctx, full, true, browser.ActionOptions{}))
		st, _ := d.Describe(ctx, full)
		assert.True(t, st.Checked)
	})

	t.Run("radios in a group are exclusive", func(t *testing.T) {
		d := newDriver(t)
		dark := first(t, d, `input[value="dark"]`)
		light := first(t, d, `input[value="light"]`)
		require.NoError(t, d.SetChecked(ctx, dark, true, browser.ActionOptions{}))

		ds, _ := d.Describe(ctx, dark)
		ls, _ := d.Describe(ctx, light)
		assert.True(t, ds.Checked)
		assert.False(t, ls.Checked)
	})

	t.Run("hidden elements need force", func(t *testing.T) {
		d := newDriver(t)
		ghost := first(t, d, "#ghost")
		assert.ErrorContains(t, d.Click(ctx, ghost, browser.ActionOptions{}), "not visible")
		assert.NoError(t, d.Click(ctx, ghost, browser.ActionOptions{Force: true}))
	})

	t.Run("disabled checkbox only yields to direct mutation", func(t *testing.T) {
		d := newDriver(t)
		box := first(t, d, `input[name="type"]`)
		assert.Error(t, d.SetChecked(ctx, box, true, browser.ActionOptions{}))
		assert.ErrorContains(t, d.SetChecked(ctx, box, true, browser.ActionOptions{Force: true}), "did not change")

		require.NoError(t, d.ForceChecked(ctx, box, true))
		st, _ := d.Describe(ctx, box)
		assert.True(t, st.Checked)
		assert.False(t, st.Visible)
	})

	t.Run("fill and change hooks", func(t *testing.T) {
		d := newDriver(t)
		require.NoError(t, d.On(EventChange, "#w", func(d *Driver, s *goquery.Selection) {
			if v := d.FieldValue(s); len(v) > 0 && v[0] == '-' {
				d.SetFieldValue(s, "0")
			}
		}))
		w := first(t, d, "#w")

		st, _ := d.Describe(ctx, w)
		assert.Equal(t, "640", st.Value)

		require.NoError(t, d.Fill(ctx, w, "800", browser.ActionOptions{}))
		st, _ = d.Describe(ctx, w)
		assert.Equal(t, "800", st.Value)

		require.NoError(t, d.Fill(ctx, w, "-5", browser.ActionOptions{}))
		st, _ = d.Describe(ctx, w)
		assert.Equal(t, "0", st.Value)

		assert.Error(t, d.Fill(ctx, first(t, d, "#full"), "x", browser.ActionOptions{}))
	})

	t.Run("native select by label and index", func(t *testing.T) {
		d := newDriver(t)
		sel := first(t, d, "select")
		st, _ := d.Describe(ctx, sel)
		assert.Equal(t, "ru", st.Value)

		require.NoError(t, d.SelectOption(ctx, sel, browser.OptionRef{Label: "все страны"}))
		st, _ = d.Describe(ctx, sel)
		assert.Equal(t, "", st.Value)

		require.NoError(t, d.SelectOption(ctx, sel, browser.OptionRef{Index: 1}))
		assert.Error(t, d.SelectOption(ctx, sel, browser.OptionRef{Label: "Марс"}))
		assert.ErrorIs(t, d.SelectOption(ctx, first(t, d, "#w"), browser.OptionRef{}), browser.ErrNotSelect)
	})
}

func TestPageOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("body text excludes scripts", func(t *testing.T) {
		d := newDriver(t)
		text, err := d.BodyText(ctx)
		require.NoError(t, err)
		assert.Contains(t, text, "Светлая тема:")
		assert.NotContains(t, text, "Шаг 9")
	})

	t.Run("navigate resets state", func(t *testing.T) {
		d := newDriver(t, WithURL("http://widget.test/eventswidget/"), WithPage("http://widget.test/other", "<p>other</p>"))
		require.NoError(t, d.Fill(ctx, first(t, d, "#w"), "1", browser.ActionOptions{}))

		require.NoError(t, d.Navigate(ctx, "http://widget.test/other"))
		u, err := d.URL(ctx)
		require.NoError(t, err)
		assert.Equal(t, "http://widget.test/other", u)

		require.NoError(t, d.Navigate(ctx, "http://widget.test/eventswidget/"))
		st, _ := d.Describe(ctx, first(t, d, "#w"))
		assert.Equal(t, "640", st.Value)

		assert.Error(t, d.Navigate(ctx, "http://elsewhere.test/"))
	})

	t.Run("clipboard availability", func(t *testing.T) {
		d := newDriver(t)
		_, err := d.ReadClipboard(ctx)
		assert.ErrorIs(t, err, browser.ErrClipboardUnavailable)

		d = newDriver(t, WithClipboard(true))
		d.SetClipboard("<iframe></iframe>")
		text, err := d.ReadClipboard(ctx)
		require.NoError(t, err)
		assert.Equal(t, "<iframe></iframe>", text)
	})

	t.Run("armed dialog is delivered once", func(t *testing.T) {
		d := newDriver(t)
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		ch, err := d.InterceptDialog(ctx, true)
		require.NoError(t, err)
		d.RaiseDialog("alert", "Код скопирован")
		d.RaiseDialog("alert", "second")

		ev, ok := <-ch
		require.True(t, ok)
		assert.Equal(t, browser.DialogEvent{Type: "alert", Message: "Код скопирован", Accepted: true}, ev)
		_, ok = <-ch
		assert.False(t, ok)
		assert.Len(t, d.Dismissed(), 1)
	})

	t.Run("unarmed interception closes with its context", func(t *testing.T) {
		d := newDriver(t)
		ctx, cancel := context.WithCancel(context.Background())
		ch, err := d.InterceptDialog(ctx, false)
		require.NoError(t, err)
		cancel()

		select {
		case _, ok := <-ch:
			assert.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("interception channel was not closed")
		}
	})
}
