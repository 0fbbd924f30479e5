// internal/browser/scripts.go
package browser

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// pageHelpers is prepended to every script. It installs a small helper object
// on window once per document: handle tagging, text normalization and
// matching, and visibility. Scripts must not use arrow functions: the
// Playwright client treats any string containing "=> " as a function body.
var pageHelpers = strings.ReplaceAll(`
var W = window.__widgetpilot;
if (!W) {
  W = window.__widgetpilot = (function () {
    var attr = 'HANDLE_ATTR';
    var doc = Math.random().toString(36).slice(2, 8);
    var seq = 0;
    var skip = { SCRIPT: 1, STYLE: 1, NOSCRIPT: 1, HEAD: 1, TITLE: 1, TEMPLATE: 1, META: 1, LINK: 1 };
    function norm(s) { return String(s == null ? '' : s).replace(/\s+/g, ' ').trim(); }
    function matches(text, want, exact) {
      var t = norm(text).toLowerCase();
      var w = norm(want).toLowerCase();
      if (w === '') { return false; }
      return exact ? t === w : t.indexOf(w) !== -1;
    }
    function tag(el, prefix) {
      var id = el.getAttribute(attr);
      if (!id) {
        seq += 1;
        id = prefix + '-' + doc + '-' + seq;
        el.setAttribute(attr, id);
      }
      return id;
    }
    function find(id) {
      if (!id) { return document; }
      return document.querySelector('[' + attr + '="' + id + '"]');
    }
    function visible(el) {
      if (!el || !el.isConnected || el === document) { return false; }
      var rect = el.getBoundingClientRect();
      if (rect.width === 0 || rect.height === 0) { return false; }
      var style = window.getComputedStyle(el);
      return style.display !== 'none' && style.visibility !== 'hidden' && style.opacity !== '0';
    }
    function fire(el, names) {
      for (var i = 0; i < names.length; i++) {
        el.dispatchEvent(new Event(names[i], { bubbles: true }));
      }
    }
    return { attr: attr, skip: skip, norm: norm, matches: matches, tag: tag, find: find, visible: visible, fire: fire };
  })();
}
`, "HANDLE_ATTR", HandleAttr)

func script(params, body string) string {
	return "function (" + params + ") {" + pageHelpers + body + "}"
}

func asyncScript(params, body string) string {
	return "async " + script(params, body)
}

// Scripts evaluated in the page. Each is a function expression. Backends
// invoke them through Invocation or PlaywrightWrapper.
var (
	QueryAllScript = script("prefix, scopeId, css", `
var root = W.find(scopeId);
if (!root) { return { stale: true, handles: [] }; }
var nodes = root.querySelectorAll(css);
var out = [];
for (var i = 0; i < nodes.length; i++) { out.push(W.tag(nodes[i], prefix)); }
return { stale: false, handles: out };
`)

	QueryTextScript = script("prefix, scopeId, text, exact", `
var root = W.find(scopeId);
if (!root) { return { stale: true, handles: [] }; }
var all = root.querySelectorAll('*');
var out = [];
for (var i = 0; i < all.length; i++) {
  var el = all[i];
  if (W.skip[el.tagName] || !W.matches(el.textContent, text, exact)) { continue; }
  var inner = false;
  for (var j = 0; j < el.children.length; j++) {
    if (W.matches(el.children[j].textContent, text, exact)) { inner = true; break; }
  }
  if (!inner) { out.push(W.tag(el, prefix)); }
}
return { stale: false, handles: out };
`)

	AncestorScript = script("prefix, id, hops", `
var el = W.find(id);
if (!el || el === document) { return { stale: true, handle: '' }; }
for (var i = 0; i < hops; i++) {
  el = el.parentElement;
  if (!el) { return { stale: false, handle: '' }; }
}
return { stale: false, handle: W.tag(el, prefix) };
`)

	ClosestScript = script("prefix, id, css", `
var el = W.find(id);
if (!el || el === document) { return { stale: true, handle: '' }; }
var hit = el.closest(css);
return { stale: false, handle: hit ? W.tag(hit, prefix) : '' };
`)

	DescribeScript = script("id", `
var el = W.find(id);
if (!el || el === document) { return { found: false }; }
return {
  found: true,
  tag: el.tagName.toLowerCase(),
  text: W.norm(el.textContent),
  value: ('value' in el && el.value != null) ? String(el.value) : '',
  visible: W.visible(el),
  checked: !!el.checked,
  disabled: !!el.disabled
};
`)

	// DOMClickScript dispatches a click without pointer hit-testing.
	DOMClickScript = script("id", `
var el = W.find(id);
if (!el || el === document) { return { found: false }; }
if (typeof el.click === 'function') { el.click(); }
else { el.dispatchEvent(new MouseEvent('click', { bubbles: true, cancelable: true })); }
return { found: true };
`)

	ForceCheckedScript = script("id, checked", `
var el = W.find(id);
if (!el || el === document) { return { found: false, checked: false }; }
el.checked = checked;
W.fire(el, ['input', 'change']);
return { found: true, checked: !!el.checked };
`)

	// SetValueScript goes through the native value setter so frameworks that
	// shadow the property still observe the change.
	SetValueScript = script("id, value", `
var el = W.find(id);
if (!el || el === document) { return { found: false, value: '' }; }
if (typeof el.focus === 'function') { el.focus(); }
var proto = el.tagName === 'TEXTAREA' ? HTMLTextAreaElement.prototype : HTMLInputElement.prototype;
var desc = Object.getOwnPropertyDescriptor(proto, 'value');
var native = el instanceof HTMLInputElement || el instanceof HTMLTextAreaElement;
if (native && desc && desc.set) { desc.set.call(el, value); } else { el.value = value; }
W.fire(el, ['input', 'change']);
return { found: true, value: String(el.value) };
`)

	CommitValueScript = script("id", `
var el = W.find(id);
if (!el || el === document) { return { found: false, value: '' }; }
W.fire(el, ['change']);
if (typeof el.blur === 'function') { el.blur(); }
return { found: true, value: String(el.value) };
`)

	SelectOptionScript = script("id, label, index", `
var el = W.find(id);
if (!el || el === document) { return { found: false, select: false, selected: false }; }
if (el.tagName !== 'SELECT') { return { found: true, select: false, selected: false }; }
var idx = -1;
if (label) {
  for (var i = 0; i < el.options.length; i++) {
    if (W.matches(el.options[i].textContent, label, true) || W.matches(el.options[i].label, label, true)) { idx = i; break; }
  }
} else {
  idx = index;
}
if (idx < 0 || idx >= el.options.length) { return { found: true, select: true, selected: false }; }
el.selectedIndex = idx;
W.fire(el, ['input', 'change']);
return { found: true, select: true, selected: true };
`)

	BodyTextScript = script("", `
return document.body ? W.norm(document.body.innerText) : '';
`)

	ReadClipboardScript = asyncScript("", `
if (!window.isSecureContext || !navigator.clipboard || typeof navigator.clipboard.readText !== 'function') {
  return { available: false, reason: 'clipboard api absent' };
}
try {
  return { available: true, text: await navigator.clipboard.readText() };
} catch (e) {
  return { available: false, reason: String((e && e.message) || e) };
}
`)
)

// Invocation renders a self-invoking expression applying fn to args, for
// backends that evaluate plain expressions (CDP Runtime.evaluate).
func Invocation(fn string, args ...interface{}) (string, error) {
	if args == nil {
		args = []interface{}{}
	}
	encoded, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("failed to encode script arguments: %w", err)
	}
	return "(" + fn + ").apply(null, " + string(encoded) + ")", nil
}

// PlaywrightWrapper returns a function expression taking a single array
// argument and applying fn to it, matching Playwright's evaluate(fn, arg).
func PlaywrightWrapper(fn string) string {
	return "function (args) { return (" + fn + ").apply(null, args); }"
}

// Decode converts a loosely typed evaluation result (raw JSON bytes or the
// maps and slices a client library hands back) into out.
func Decode(raw interface{}, out interface{}) error {
	var data []byte
	switch v := raw.(type) {
	case []byte:
		data = v
	case string:
		// A bare string result is itself a JSON value.
		encoded, err := json.Marshal(v)
		if err != nil {
			return err
		}
		data = encoded
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to re-encode evaluation result: %w", err)
		}
		data = encoded
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode evaluation result: %w", err)
	}
	return nil
}

// HandlesResult is returned by the query scripts.
type HandlesResult struct {
	Stale   bool     `json:"stale"`
	Handles []string `json:"handles"`
}

// ToHandles converts the tagged ids into handles.
func (r HandlesResult) ToHandles() []Handle {
	out := make([]Handle, 0, len(r.Handles))
	for _, id := range r.Handles {
		out = append(out, Handle(id))
	}
	return out
}

// HandleResult is returned by AncestorScript and ClosestScript.
type HandleResult struct {
	Stale  bool   `json:"stale"`
	Handle string `json:"handle"`
}

// FoundResult is returned by scripts acting on one element.
type FoundResult struct {
	Found    bool   `json:"found"`
	Checked  bool   `json:"checked"`
	Value    string `json:"value"`
	Select   bool   `json:"select"`
	Selected bool   `json:"selected"`
}

// ClipboardResult is returned by ReadClipboardScript.
type ClipboardResult struct {
	Available bool   `json:"available"`
	Text      string `json:"text"`
	Reason    string `json:"reason"`
}
