package engine

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

const layoutPage = `<html><body>
<div id="size">
  <div class="row" id="wrow"><span>Ширина, px:</span><input id="w" type="number" value="640"></div>
  <label id="fullw"><input id="fw" type="checkbox"> на всю ширину контейнера</label>
  <div class="group" id="hgroup">
    <div class="caption"><span>Высота, px:</span></div>
    <div class="field"><input id="h" type="text" value="480"></div>
  </div>
</div>
<ul id="list">
  <li><input id="ig" type="checkbox" name="type" value="ig"><span>Igaming</span></li>
  <li><input id="bc" type="checkbox" name="type" value="bc"><span>Blockchain</span></li>
</ul>
<div class="opt" id="esopt"><div><div><span>Esports</span></div></div><input id="es" type="checkbox" name="type" value="es"></div>
<button id="gen"><span>Сгенерировать превью</span></button>
</body></html>`

func TestTargetSelector(t *testing.T) {
	tests := []struct {
		name   string
		target Target
		want   string
	}{
		{"kind only", Target{Kind: KindCheckbox}, `input[type="checkbox"]`},
		{"kind with signature", Target{Kind: KindCheckbox, Attrs: `[name="type"]`}, `input[type="checkbox"][name="type"]`},
		{"group with signature", Target{Kind: KindChoice, Attrs: `.on`}, `label.on, input[type="radio"].on`},
		{"any with signature", Target{Attrs: `[name="type"]`}, `[name="type"]`},
		{"css wins", Target{Kind: KindButton, CSS: "#gen"}, "#gen"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.target.Selector())
		})
	}
}

func TestResolve(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, layoutPage)
	r := NewResolver(d, zaptest.NewLogger(t))

	h := func(css string) browser.Handle { return handleOf(t, d, css) }

	tests := []struct {
		name   string
		target Target
		want   []browser.Handle
	}{
		{
			name:   "descendant of the label element",
			target: Near("на всю ширину", KindCheckbox),
			want:   []browser.Handle{h("#fw")},
		},
		{
			name:   "sibling within the immediate container",
			target: Near("Ширина, px:", KindTextInput),
			want:   []browser.Handle{h("#w")},
		},
		{
			name:   "two hops up",
			target: Near("Высота, px:", KindTextInput),
			want:   []browser.Handle{h("#h")},
		},
		{
			name:   "global scan by surrounding text",
			target: Target{Label: browser.Containing("esports"), Relation: RelationScan, Kind: KindCheckbox},
			want:   []browser.Handle{h("#es")},
		},
		{
			name:   "scan prefers the element's own container",
			target: Target{Label: browser.Containing("Blockchain"), Relation: RelationScan, Kind: KindCheckbox, Attrs: `[name="type"]`},
			want:   []browser.Handle{h("#bc")},
		},
		{
			name:   "self walks up to the wanted kind",
			target: Target{Label: browser.Exactly("Сгенерировать превью"), Relation: RelationSelf, Kind: KindButton},
			want:   []browser.Handle{h("#gen")},
		},
		{
			name:   "self of any kind is the text element",
			target: Text("Сгенерировать превью"),
			want:   []browser.Handle{h("#gen span")},
		},
		{
			name:   "unlabeled target is a css query",
			target: Target{Kind: KindCheckbox, Attrs: `[name="type"]`},
			want:   []browser.Handle{h("#ig"), h("#bc"), h("#es")},
		},
		{
			name:   "scope limits the search",
			target: Near("Ширина, px:", KindTextInput).Within(h("#list")),
			want:   nil,
		},
		{
			name:   "no such label",
			target: Near("Марс", KindCheckbox),
			want:   nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(ctx, tt.target)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Resolve(%s) mismatch (-want +got):\n%s", tt.target, diff)
			}
		})
	}
}

func TestResolveRanksWholeTextFirst(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, `<html><body><div id="list">
  <div class="opt"><input id="gd" type="checkbox" name="type"><span>Game Development</span></div>
  <div class="opt"><input id="dev" type="checkbox" name="type"><span>Development</span></div>
</div></body></html>`)
	r := NewResolver(d, zaptest.NewLogger(t))
	loose := browser.Containing("development")

	got, err := r.Resolve(ctx, Target{Label: loose, Relation: RelationScan, Kind: KindCheckbox, Attrs: `[name="type"]`})
	require.NoError(t, err)
	assert.Equal(t, []browser.Handle{handleOf(t, d, "#dev")}, got)

	got, err = r.Resolve(ctx, Target{Label: loose, Relation: RelationSelf})
	require.NoError(t, err)
	assert.Equal(t, []browser.Handle{handleOf(t, d, "#dev + span"), handleOf(t, d, "#gd + span")}, got)

	got, err = r.Resolve(ctx, Target{Label: browser.Exactly("development"), Relation: RelationSelf})
	require.NoError(t, err)
	assert.Equal(t, []browser.Handle{handleOf(t, d, "#dev + span")}, got)
}

func TestResolveSingleSteps(t *testing.T) {
	ctx := testContext(t)
	d := newSnapshot(t, layoutPage)
	r := NewResolver(d, zaptest.NewLogger(t))

	label := browser.Containing("Высота, px:")
	for _, rel := range []Relation{RelationDescendant, RelationSibling} {
		got, err := r.Resolve(ctx, Target{Label: label, Relation: rel, Kind: KindTextInput})
		require.NoError(t, err)
		assert.Empty(t, got, rel.String())
	}
	got, err := r.Resolve(ctx, Target{Label: label, Relation: RelationAncestor, Kind: KindTextInput})
	require.NoError(t, err)
	assert.Equal(t, []browser.Handle{handleOf(t, d, "#h")}, got)
}

func TestResolveInvalidSelector(t *testing.T) {
	d := newSnapshot(t, layoutPage)
	r := NewResolver(d, zaptest.NewLogger(t))
	_, err := r.Resolve(testContext(t), CSS("input["))
	assert.Error(t, err)
}
