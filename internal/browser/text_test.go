// internal/browser/text_test.go
package browser

import (
	"strings"
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	assert.Equal(t, "Ширина, px:", NormalizeText("  Ширина,\n\t px:  "))
	assert.Equal(t, "", NormalizeText(" \n\t "))
	assert.Equal(t, "a b", NormalizeText("a\u00a0b"), "non-breaking space is whitespace")
}

func TestTextMatch(t *testing.T) {
	tests := []struct {
		name  string
		match TextMatch
		input string
		want  bool
	}{
		{"exact ignores case", Exactly("Igaming"), "  IGAMING ", true},
		{"exact rejects superstring", Exactly("Igaming"), "Igaming events", false},
		{"substring hits", Containing("Выбрать все"), "✓ Выбрать   все темы", true},
		{"cyrillic case folding", Containing("светлая тема"), "Светлая Тема:", true},
		{"substring misses", Containing("Blockchain"), "Development", false},
		{"empty pattern matches nothing", Containing(""), "anything", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.match.Matches(tt.input))
		})
	}
}

func TestHandleSelector(t *testing.T) {
	assert.Equal(t, `[data-wbp-handle="abc-x1-3"]`, Handle("abc-x1-3").Selector())
}

// FuzzTextMatch checks the relations the resolver relies on: an exact hit is
// always a substring hit, and matching is insensitive to case and whitespace
// layout of the haystack.
func FuzzTextMatch(f *testing.F) {
	f.Add([]byte("Igaming\x00Igaming events"))
	f.Add([]byte("Шаг 1\x00 шаг  1 "))

	f.Fuzz(func(t *testing.T, data []byte) {
		c := fuzz.NewConsumer(data)
		pattern, err := c.GetString()
		if err != nil {
			return
		}
		haystack, err := c.GetString()
		if err != nil {
			return
		}

		if Exactly(pattern).Matches(haystack) && !Containing(pattern).Matches(haystack) {
			t.Fatalf("exact match of %q in %q without substring match", pattern, haystack)
		}

		spaced := strings.Join(strings.Fields(haystack), "  \n ")
		if Containing(pattern).Matches(haystack) != Containing(pattern).Matches(spaced) {
			t.Fatalf("whitespace layout changed the result for %q in %q", pattern, haystack)
		}
		if Exactly(pattern).Matches(haystack) != Exactly(strings.ToUpper(pattern)).Matches(strings.ToUpper(haystack)) {
			// Some runes do not round-trip through case mapping; only flag ASCII input.
			if isASCII(pattern) && isASCII(haystack) {
				t.Fatalf("case changed the exact result for %q in %q", pattern, haystack)
			}
		}
	})
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}
