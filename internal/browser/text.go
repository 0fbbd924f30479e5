// internal/browser/text.go
package browser

import (
	"strings"
	"unicode"
)

// TextMatch is a case-insensitive text predicate. Exact requires the whole
// normalized text to equal Text, otherwise Text must occur as a substring.
type TextMatch struct {
	Text  string
	Exact bool
}

// Exactly builds an exact, case-insensitive match.
func Exactly(text string) TextMatch { return TextMatch{Text: text, Exact: true} }

// Containing builds a substring, case-insensitive match.
func Containing(text string) TextMatch { return TextMatch{Text: text} }

// Matches reports whether s satisfies the predicate. An empty pattern matches nothing.
func (m TextMatch) Matches(s string) bool {
	want := strings.ToLower(NormalizeText(m.Text))
	if want == "" {
		return false
	}
	got := strings.ToLower(NormalizeText(s))
	if m.Exact {
		return got == want
	}
	return strings.Contains(got, want)
}

func (m TextMatch) String() string {
	if m.Exact {
		return `"` + m.Text + `"`
	}
	return `~"` + m.Text + `"`
}

// NormalizeText collapses whitespace runs into single spaces and trims the
// ends, the same way the in-page scripts normalize textContent.
func NormalizeText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
