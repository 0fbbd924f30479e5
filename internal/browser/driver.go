// internal/browser/driver.go
package browser

import (
	"context"
	"errors"
	"fmt"
)

// HandleAttr is the DOM attribute used to tag elements the engine has touched.
// Tagging lets every backend address an element with a plain CSS selector
// across calls without holding remote object references.
const HandleAttr = "data-wbp-handle"

// Handle identifies an element previously returned by a query. The empty
// handle denotes the document root.
type Handle string

// Selector returns the CSS selector addressing the tagged element.
func (h Handle) Selector() string {
	return fmt.Sprintf(`[%s="%s"]`, HandleAttr, string(h))
}

var (
	// ErrStaleHandle is returned when a handle no longer points at an attached element.
	ErrStaleHandle = errors.New("element handle is no longer attached to the document")
	// ErrClipboardUnavailable signals the clipboard API is absent or denied in this context.
	ErrClipboardUnavailable = errors.New("clipboard api unavailable")
	// ErrNotSelect is returned by SelectOption for elements that are not native selects.
	ErrNotSelect = errors.New("element is not a native select")
)

// ActionOptions tunes a single pointer or keyboard action.
type ActionOptions struct {
	// Force bypasses actionability checks (visibility, hit-testing). Required
	// for visually hidden controls that are still logically present.
	Force bool
}

// OptionRef picks an option of a native select, by visible label when Label
// is set and by index otherwise.
type OptionRef struct {
	Label string
	Index int
}

// ElementState is a single read of everything the engine observes on an element.
type ElementState struct {
	Found    bool   `json:"found"`
	Tag      string `json:"tag"`
	Text     string `json:"text"`
	Value    string `json:"value"`
	Visible  bool   `json:"visible"`
	Checked  bool   `json:"checked"`
	Disabled bool   `json:"disabled"`
}

// DialogEvent describes a native prompt (alert, confirm, prompt, beforeunload)
// raised by the page while interception was armed.
type DialogEvent struct {
	Type     string
	Message  string
	Accepted bool
}

// Querier finds elements. Zero matches is never an error.
type Querier interface {
	// QueryAll returns elements matching css inside scope, in document order.
	QueryAll(ctx context.Context, scope Handle, css string) ([]Handle, error)
	// QueryText returns the innermost elements inside scope whose normalized
	// text content satisfies m.
	QueryText(ctx context.Context, scope Handle, m TextMatch) ([]Handle, error)
	// Ancestor walks hops parents up from h. It returns "" past the root.
	Ancestor(ctx context.Context, h Handle, hops int) (Handle, error)
	// Closest returns h itself or its nearest ancestor matching css, or "".
	Closest(ctx context.Context, h Handle, css string) (Handle, error)
}

// Reader observes element state without mutating it.
type Reader interface {
	Describe(ctx context.Context, h Handle) (ElementState, error)
}

// Actor dispatches actions against elements.
type Actor interface {
	Click(ctx context.Context, h Handle, opts ActionOptions) error
	// SetChecked brings a checkbox or radio to the desired state. It is a
	// no-op when the element is already there, and errors when a dispatched
	// click did not change the state.
	SetChecked(ctx context.Context, h Handle, checked bool, opts ActionOptions) error
	// Fill replaces the content of a text field.
	Fill(ctx context.Context, h Handle, value string, opts ActionOptions) error
	SelectOption(ctx context.Context, h Handle, opt OptionRef) error
	// ForceChecked mutates the checked property directly and dispatches
	// synthetic input and change events.
	ForceChecked(ctx context.Context, h Handle, checked bool) error
}

// Page covers document level operations.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	BodyText(ctx context.Context) (string, error)
	GrantClipboard(ctx context.Context, origin string) error
	// ReadClipboard returns ErrClipboardUnavailable when the API is missing or denied.
	ReadClipboard(ctx context.Context) (string, error)
	// InterceptDialog arms a one-shot interception. The next native dialog is
	// accepted or dismissed and then delivered on the channel. The channel is
	// closed without a value when ctx ends first.
	InterceptDialog(ctx context.Context, accept bool) (<-chan DialogEvent, error)
	Close() error
}

// Driver is everything the interaction engine needs from a browser backend.
type Driver interface {
	Querier
	Reader
	Actor
	Page
}

// Factory opens fresh, isolated pages. Each scenario gets its own.
type Factory interface {
	NewPage(ctx context.Context) (Driver, error)
	Close(ctx context.Context) error
}
