// internal/engine/target.go
package engine

import (
	"strings"

	"github.com/xkilldash9x/widgetpilot/internal/browser"
)

// Kind filters resolved elements by what they are.
type Kind int

const (
	KindAny Kind = iota
	KindCheckbox
	KindRadio
	KindTextInput
	KindCombobox
	KindLabel
	KindButton
	// KindChoice covers label-or-radio, for color scheme rows that render either.
	KindChoice
)

var kindSelectors = map[Kind]string{
	KindAny:       "*",
	KindCheckbox:  `input[type="checkbox"]`,
	KindRadio:     `input[type="radio"]`,
	KindTextInput: `input[type="text"], input[type="number"], input:not([type]), textarea, [role="textbox"]`,
	KindCombobox:  `select, [role="combobox"], [role="listbox"], .checkselect`,
	KindLabel:     "label",
	KindButton:    `button, input[type="button"], input[type="submit"], [role="button"], a`,
	KindChoice:    `label, input[type="radio"]`,
}

func (k Kind) String() string {
	switch k {
	case KindCheckbox:
		return "checkbox"
	case KindRadio:
		return "radio"
	case KindTextInput:
		return "text input"
	case KindCombobox:
		return "combobox"
	case KindLabel:
		return "label"
	case KindButton:
		return "button"
	case KindChoice:
		return "choice"
	default:
		return "element"
	}
}

// Relation says where, relative to the label, the resolver looks.
type Relation int

const (
	// RelationNearest widens step by step: descendant, sibling, ancestor, scan.
	RelationNearest Relation = iota
	// RelationSelf resolves the text-matched element itself, or its closest
	// ancestor of the wanted kind.
	RelationSelf
	// RelationDescendant: nested inside the label element.
	RelationDescendant
	// RelationSibling: nested inside the label's immediate container.
	RelationSibling
	// RelationAncestor: nested inside the container's parent.
	RelationAncestor
	// RelationScan: any element of the kind whose surrounding text matches the label.
	RelationScan
)

var widening = []Relation{RelationDescendant, RelationSibling, RelationAncestor, RelationScan}

func (r Relation) steps() []Relation {
	if r == RelationNearest {
		return widening
	}
	return []Relation{r}
}

func (r Relation) String() string {
	switch r {
	case RelationSelf:
		return "self"
	case RelationDescendant:
		return "descendant"
	case RelationSibling:
		return "sibling"
	case RelationAncestor:
		return "ancestor"
	case RelationScan:
		return "scan"
	default:
		return "nearest"
	}
}

// Target describes an element semantically. It is a value: resolving it
// never caches handles, so every use sees the current DOM.
type Target struct {
	// Label anchors the search. An empty label turns the target into a plain
	// CSS query for Kind and Attrs.
	Label    browser.TextMatch
	Relation Relation
	Kind     Kind
	// Attrs is an extra attribute signature appended to the kind selector,
	// e.g. `[name="type"]`.
	Attrs string
	// CSS replaces the kind selector entirely when set.
	CSS string
	// Scope restricts the search to a subtree, e.g. an open overlay panel.
	Scope browser.Handle
}

// Selector renders the CSS used to filter candidates.
func (t Target) Selector() string {
	if t.CSS != "" {
		return t.CSS
	}
	base := kindSelectors[t.Kind]
	if t.Attrs == "" {
		return base
	}
	if t.Kind == KindAny {
		return t.Attrs
	}
	// Attach the signature to each alternative of a selector group.
	parts := strings.Split(base, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p) + t.Attrs
	}
	return strings.Join(parts, ", ")
}

// Within returns a copy of t scoped to the subtree at h.
func (t Target) Within(h browser.Handle) Target {
	t.Scope = h
	return t
}

func (t Target) String() string {
	if t.Label.Text == "" {
		return t.Selector()
	}
	return t.Kind.String() + " " + t.Relation.String() + " of " + t.Label.String()
}

// Label targets, for the common shapes.

// Near finds a Kind element nearest to a label, widening as needed.
func Near(label string, kind Kind) Target {
	return Target{Label: browser.Containing(label), Kind: kind}
}

// Text finds the element whose own text is exactly label.
func Text(label string) Target {
	return Target{Label: browser.Exactly(label), Relation: RelationSelf}
}

// CSS finds elements by selector alone.
func CSS(selector string) Target {
	return Target{CSS: selector}
}
