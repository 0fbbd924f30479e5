// Package snapshot implements browser.Driver over a parsed HTML document.
//
// It emulates the parts of browser behavior the interaction engine depends
// on: checkbox and radio activation, label forwarding, field values, native
// selects, CSS based visibility and dialogs. Page scripts are not executed;
// callers register hooks to stand in for them. The driver backs offline
// structural probes of saved pages and the engine's unit tests.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

// Hook stands in for a page script reacting to an event on target.
type Hook func(d *Driver, target *goquery.Selection)

// Events a hook can subscribe to.
const (
	EventClick  = "click"
	EventChange = "change"
)

type hook struct {
	event   string
	matcher cascadia.Selector
	fn      Hook
}

type armedDialog struct {
	accept bool
	ch     chan browser.DialogEvent
}

// Driver is an in-memory browser.Driver. It is safe for concurrent use, but
// like a real page it is meant to be driven by one caller at a time.
type Driver struct {
	mu     sync.Mutex
	logger *zap.Logger
	prefix string
	seq    int

	pages map[string]string
	url   string
	doc   *goquery.Document

	values   map[*html.Node]string
	checked  map[*html.Node]bool
	selected map[*html.Node]int

	hooks []hook

	clipboardEnabled bool
	clipboard        string
	granted          []string

	armed     *armedDialog
	dismissed []browser.DialogEvent
	closed    bool
}

// Option configures a Driver.
type Option func(*Driver)

// WithURL sets the URL the initial document is served from.
func WithURL(u string) Option { return func(d *Driver) { d.url = u } }

// WithPage registers an additional document reachable through Navigate.
func WithPage(u, markup string) Option { return func(d *Driver) { d.pages[u] = markup } }

// WithClipboard makes the clipboard API available to ReadClipboard.
func WithClipboard(enabled bool) Option { return func(d *Driver) { d.clipboardEnabled = enabled } }

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option { return func(d *Driver) { d.logger = l } }

// New parses markup and returns a driver positioned on it.
func New(markup string, opts ...Option) (*Driver, error) {
	d := &Driver{
		logger: zap.NewNop(),
		prefix: uuid.NewString()[:8],
		pages:  make(map[string]string),
		url:    "about:snapshot",
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.Named("snapshot")
	d.pages[d.url] = markup
	if err := d.load(markup); err != nil {
		return nil, err
	}
	return d, nil
}

// Load reads a saved page from disk.
func Load(path string, opts ...Option) (*Driver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot %s: %w", path, err)
	}
	opts = append([]Option{WithURL("file://" + path)}, opts...)
	return New(string(data), opts...)
}

func (d *Driver) load(markup string) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return fmt.Errorf("failed to parse snapshot document: %w", err)
	}
	d.doc = doc
	d.values = make(map[*html.Node]string)
	d.checked = make(map[*html.Node]bool)
	d.selected = make(map[*html.Node]int)
	return nil
}

// On registers a hook for event on elements matching css. Hooks fire for the
// target and for every ancestor matching css, like delegated listeners.
func (d *Driver) On(event, css string, fn Hook) error {
	m, err := cascadia.Compile(css)
	if err != nil {
		return fmt.Errorf("invalid hook selector %q: %w", css, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = append(d.hooks, hook{event: event, matcher: m, fn: fn})
	return nil
}

// -- browser.Querier --

func (d *Driver) QueryAll(ctx context.Context, scope browser.Handle, css string) ([]browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m, err := cascadia.Compile(css)
	if err != nil {
		return nil, fmt.Errorf("invalid selector %q: %w", css, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := d.scope(scope)
	if err != nil {
		return nil, err
	}
	var out []browser.Handle
	root.FindMatcher(m).Each(func(_ int, s *goquery.Selection) {
		out = append(out, d.tag(s))
	})
	return out, nil
}

var skippedTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"title": true, "template": true, "meta": true, "link": true,
}

func (d *Driver) QueryText(ctx context.Context, scope browser.Handle, m browser.TextMatch) ([]browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	root, err := d.scope(scope)
	if err != nil {
		return nil, err
	}
	var out []browser.Handle
	root.Find("*").Each(func(_ int, s *goquery.Selection) {
		if skippedTags[goquery.NodeName(s)] || !m.Matches(s.Text()) {
			return
		}
		inner := false
		s.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
			inner = m.Matches(c.Text())
			return !inner
		})
		if !inner {
			out = append(out, d.tag(s))
		}
	})
	return out, nil
}

func (d *Driver) Ancestor(ctx context.Context, h browser.Handle, hops int) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.element(h)
	if err != nil {
		return "", err
	}
	for i := 0; i < hops; i++ {
		s = s.Parent()
		if s.Length() == 0 {
			return "", nil
		}
	}
	return d.tag(s), nil
}

func (d *Driver) Closest(ctx context.Context, h browser.Handle, css string) (browser.Handle, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m, err := cascadia.Compile(css)
	if err != nil {
		return "", fmt.Errorf("invalid selector %q: %w", css, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.element(h)
	if err != nil {
		return "", err
	}
	hit := s.ClosestMatcher(m)
	if hit.Length() == 0 {
		return "", nil
	}
	return d.tag(hit), nil
}

// -- browser.Reader --

func (d *Driver) Describe(ctx context.Context, h browser.Handle) (browser.ElementState, error) {
	if err := ctx.Err(); err != nil {
		return browser.ElementState{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.element(h)
	if errors.Is(err, browser.ErrStaleHandle) {
		return browser.ElementState{Found: false}, nil
	}
	if err != nil {
		return browser.ElementState{}, err
	}
	_, disabled := s.Attr("disabled")
	return browser.ElementState{
		Found:    true,
		Tag:      goquery.NodeName(s),
		Text:     browser.NormalizeText(s.Text()),
		Value:    d.valueOf(s),
		Visible:  d.visible(s),
		Checked:  d.isChecked(s),
		Disabled: disabled,
	}, nil
}

// -- browser.Actor --

func (d *Driver) Click(ctx context.Context, h browser.Handle, opts browser.ActionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	s, err := d.element(h)
	if err == nil && !opts.Force {
		err = d.actionable(s)
	}
	var fire []func()
	if err == nil {
		fire = d.activate(s)
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, f := range fire {
		f()
	}
	return nil
}

func (d *Driver) SetChecked(ctx context.Context, h browser.Handle, checked bool, opts browser.ActionOptions) error {
	d.mu.Lock()
	s, err := d.element(h)
	if err == nil && !isCheckable(s) {
		err = fmt.Errorf("element <%s> is not a checkbox or radio", goquery.NodeName(s))
	}
	already := err == nil && d.isChecked(s) == checked
	d.mu.Unlock()
	if err != nil || already {
		return err
	}

	if err := d.Click(ctx, h, opts); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.isChecked(s) != checked {
		return fmt.Errorf("clicking did not change the checked state to %t", checked)
	}
	return nil
}

func (d *Driver) Fill(ctx context.Context, h browser.Handle, value string, opts browser.ActionOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	s, err := d.element(h)
	if err == nil && !isFillable(s) {
		err = fmt.Errorf("element <%s> is not an editable field", goquery.NodeName(s))
	}
	if err == nil && !opts.Force {
		err = d.actionable(s)
	}
	var fire []func()
	if err == nil {
		d.values[s.Get(0)] = value
		fire = d.hooksFor(EventChange, s)
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, f := range fire {
		f()
	}
	return nil
}

func (d *Driver) SelectOption(ctx context.Context, h browser.Handle, opt browser.OptionRef) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	s, err := d.element(h)
	if err == nil && goquery.NodeName(s) != "select" {
		err = browser.ErrNotSelect
	}
	var fire []func()
	if err == nil {
		options := s.Find("option")
		idx := opt.Index
		if opt.Label != "" {
			idx = -1
			match := browser.Exactly(opt.Label)
			options.EachWithBreak(func(i int, o *goquery.Selection) bool {
				label, _ := o.Attr("label")
				if match.Matches(o.Text()) || match.Matches(label) {
					idx = i
					return false
				}
				return true
			})
		}
		if idx < 0 || idx >= options.Length() {
			err = fmt.Errorf("no option %+v in select", opt)
		} else {
			d.selected[s.Get(0)] = idx
			fire = d.hooksFor(EventChange, s)
		}
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, f := range fire {
		f()
	}
	return nil
}

func (d *Driver) ForceChecked(ctx context.Context, h browser.Handle, checked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	s, err := d.element(h)
	var fire []func()
	if err == nil {
		if checked && strings.EqualFold(s.AttrOr("type", ""), "radio") {
			d.clearGroup(s)
		}
		d.checked[s.Get(0)] = checked
		fire = d.hooksFor(EventChange, s)
	}
	d.mu.Unlock()
	if err != nil {
		return err
	}
	for _, f := range fire {
		f()
	}
	return nil
}

// -- browser.Page --

func (d *Driver) Navigate(ctx context.Context, u string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	markup, ok := d.pages[u]
	if !ok {
		return fmt.Errorf("no snapshot registered for %s", u)
	}
	d.url = u
	return d.load(markup)
}

func (d *Driver) URL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.url, ctx.Err()
}

func (d *Driver) BodyText(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	body := d.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return browser.NormalizeText(body.Text()), nil
}

func (d *Driver) GrantClipboard(ctx context.Context, origin string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.granted = append(d.granted, origin)
	return ctx.Err()
}

func (d *Driver) ReadClipboard(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.clipboardEnabled {
		return "", browser.ErrClipboardUnavailable
	}
	return d.clipboard, nil
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

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// -- helpers exposed to hooks and tests --

// Document exposes the parsed document for hooks that rewrite markup.
func (d *Driver) Document() *goquery.Document { return d.doc }

// SetClipboard stands in for a page writing to the clipboard.
func (d *Driver) SetClipboard(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.clipboard = text
}

// Clipboard returns the current clipboard content regardless of availability.
func (d *Driver) Clipboard() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clipboard
}

// GrantedOrigins lists the origins passed to GrantClipboard.
func (d *Driver) GrantedOrigins() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.granted...)
}

// RaiseDialog stands in for the page opening a native dialog. With
// interception armed the dialog is resolved and delivered; otherwise it is
// dismissed the way an unattended browser would.
func (d *Driver) RaiseDialog(kind, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a := d.armed; a != nil {
		d.armed = nil
		a.ch <- browser.DialogEvent{Type: kind, Message: message, Accepted: a.accept}
		close(a.ch)
		return
	}
	d.dismissed = append(d.dismissed, browser.DialogEvent{Type: kind, Message: message})
}

// Dismissed returns dialogs raised while nobody was intercepting.
func (d *Driver) Dismissed() []browser.DialogEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]browser.DialogEvent(nil), d.dismissed...)
}

// FieldValue reads the current value of a form field.
func (d *Driver) FieldValue(s *goquery.Selection) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.valueOf(s)
}

// SetFieldValue overwrites a form field's value without firing hooks.
func (d *Driver) SetFieldValue(s *goquery.Selection, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s.Each(func(_ int, el *goquery.Selection) { d.values[el.Get(0)] = value })
}

// SetValue overwrites the value of every field matching css without firing hooks.
func (d *Driver) SetValue(css, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(css).Each(func(_ int, el *goquery.Selection) { d.values[el.Get(0)] = value })
}

// Value returns the current value of the first field matching css.
func (d *Driver) Value(css string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.doc.Find(css).First()
	if s.Length() == 0 {
		return ""
	}
	return d.valueOf(s)
}

// Tick sets the checked state of every element matching css without firing hooks.
func (d *Driver) Tick(css string, checked bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(css).Each(func(_ int, el *goquery.Selection) { d.checked[el.Get(0)] = checked })
}

// Ticked reports whether the first element matching css is checked.
func (d *Driver) Ticked(css string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.doc.Find(css).First()
	return s.Length() > 0 && d.isChecked(s)
}

// IsChecked reads the checked state of the first element in s.
func (d *Driver) IsChecked(s *goquery.Selection) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.isChecked(s)
}

// SetStyle replaces the inline style of every element matching css.
func (d *Driver) SetStyle(css, style string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.doc.Find(css).SetAttr("style", style)
}

// Visible reports whether the first element matching css is rendered.
func (d *Driver) Visible(css string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.doc.Find(css).First()
	return s.Length() > 0 && d.visible(s)
}

// After runs fn once delay has elapsed, for page behavior that completes asynchronously.
func (d *Driver) After(delay time.Duration, fn func(d *Driver)) {
	time.AfterFunc(delay, func() { fn(d) })
}

// -- internals; callers hold d.mu --

func (d *Driver) scope(h browser.Handle) (*goquery.Selection, error) {
	if h == "" {
		return d.doc.Selection, nil
	}
	return d.element(h)
}

func (d *Driver) element(h browser.Handle) (*goquery.Selection, error) {
	if d.closed {
		return nil, errors.New("snapshot page is closed")
	}
	if h == "" {
		return nil, fmt.Errorf("%w: empty handle", browser.ErrStaleHandle)
	}
	s := d.doc.Find(h.Selector()).First()
	if s.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", browser.ErrStaleHandle, h)
	}
	return s, nil
}

func (d *Driver) tag(s *goquery.Selection) browser.Handle {
	if id, ok := s.Attr(browser.HandleAttr); ok {
		return browser.Handle(id)
	}
	d.seq++
	id := fmt.Sprintf("%s-%d", d.prefix, d.seq)
	s.SetAttr(browser.HandleAttr, id)
	return browser.Handle(id)
}

func (d *Driver) valueOf(s *goquery.Selection) string {
	node := s.Get(0)
	if v, ok := d.values[node]; ok {
		return v
	}
	switch goquery.NodeName(s) {
	case "textarea":
		return s.Text()
	case "select":
		options := s.Find("option")
		o := options.Eq(d.selectedIndex(s))
		if v, ok := o.Attr("value"); ok {
			return v
		}
		return browser.NormalizeText(o.Text())
	default:
		v, _ := s.Attr("value")
		return v
	}
}

// SelectedText returns the visible label of a native select's current option.
func (d *Driver) SelectedText(s *goquery.Selection) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return browser.NormalizeText(s.Find("option").Eq(d.selectedIndex(s)).Text())
}

func (d *Driver) selectedIndex(s *goquery.Selection) int {
	if idx, ok := d.selected[s.Get(0)]; ok {
		return idx
	}
	idx := 0
	s.Find("option").EachWithBreak(func(i int, o *goquery.Selection) bool {
		if _, ok := o.Attr("selected"); ok {
			idx = i
			return false
		}
		return true
	})
	return idx
}

func (d *Driver) isChecked(s *goquery.Selection) bool {
	if v, ok := d.checked[s.Get(0)]; ok {
		return v
	}
	_, ok := s.Attr("checked")
	return ok
}

func isCheckable(s *goquery.Selection) bool {
	if goquery.NodeName(s) != "input" {
		return false
	}
	t := strings.ToLower(s.AttrOr("type", ""))
	return t == "checkbox" || t == "radio"
}

func isFillable(s *goquery.Selection) bool {
	switch goquery.NodeName(s) {
	case "textarea":
		return true
	case "input":
		switch strings.ToLower(s.AttrOr("type", "text")) {
		case "checkbox", "radio", "button", "submit", "reset", "file", "hidden", "image":
			return false
		}
		return true
	}
	return s.AttrOr("contenteditable", "") == "true"
}

func (d *Driver) visible(s *goquery.Selection) bool {
	if goquery.NodeName(s) == "input" && strings.EqualFold(s.AttrOr("type", ""), "hidden") {
		return false
	}
	for n := s; n.Length() > 0; n = n.Parent() {
		if _, hidden := n.Attr("hidden"); hidden {
			return false
		}
		style := strings.ToLower(strings.ReplaceAll(n.AttrOr("style", ""), " ", ""))
		if strings.Contains(style, "display:none") ||
			strings.Contains(style, "visibility:hidden") ||
			strings.Contains(style, "opacity:0;") || strings.HasSuffix(style, "opacity:0") {
			return false
		}
	}
	return true
}

// actionable mirrors the checks a real driver performs before pointer dispatch.
func (d *Driver) actionable(s *goquery.Selection) error {
	if !d.visible(s) {
		return fmt.Errorf("element <%s> is not visible", goquery.NodeName(s))
	}
	if _, disabled := s.Attr("disabled"); disabled {
		return fmt.Errorf("element <%s> is disabled", goquery.NodeName(s))
	}
	return nil
}

// activate applies the default action of a click and returns the hooks to
// run once the lock is released.
func (d *Driver) activate(s *goquery.Selection) []func() {
	if _, disabled := s.Attr("disabled"); disabled {
		return nil
	}
	fire := d.hooksFor(EventClick, s)

	target := s
	if !isCheckable(s) {
		if label := s.Closest("label"); label.Length() > 0 {
			target = d.labelControl(label)
		}
	}
	if target == nil || target.Length() == 0 || !isCheckable(target) {
		return fire
	}
	if _, disabled := target.Attr("disabled"); disabled {
		return fire
	}

	node := target.Get(0)
	if strings.EqualFold(target.AttrOr("type", ""), "radio") {
		d.clearGroup(target)
		d.checked[node] = true
	} else {
		d.checked[node] = !d.isChecked(target)
	}
	return append(fire, d.hooksFor(EventChange, target)...)
}

// clearGroup unchecks every radio sharing r's name.
func (d *Driver) clearGroup(r *goquery.Selection) {
	name := r.AttrOr("name", "")
	if name == "" {
		return
	}
	d.doc.Find(`input[type="radio"]`).Each(func(_ int, o *goquery.Selection) {
		if o.AttrOr("name", "") == name {
			d.checked[o.Get(0)] = false
		}
	})
}

func (d *Driver) labelControl(label *goquery.Selection) *goquery.Selection {
	if id := label.AttrOr("for", ""); id != "" {
		var hit *goquery.Selection
		d.doc.Find("[id]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if s.AttrOr("id", "") == id {
				hit = s
				return false
			}
			return true
		})
		return hit
	}
	return label.Find("input, select, textarea").First()
}

func (d *Driver) hooksFor(event string, s *goquery.Selection) []func() {
	var out []func()
	for _, h := range d.hooks {
		if h.event != event {
			continue
		}
		for n := s; n.Length() > 0; n = n.Parent() {
			if h.matcher.Match(n.Get(0)) {
				fn, target := h.fn, n
				out = append(out, func() { fn(d, target) })
				break
			}
		}
	}
	return out
}
