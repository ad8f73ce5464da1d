// Package mention detects assistant handles inside message content.
package mention

import (
	"strings"
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Matcher finds every configured handle in one pass over the text, whatever the number of handles.
type Matcher struct {
	machine *goahocorasick.Machine
}

// NewMatcher builds the Aho-Corasick automaton from the handles, compared case-insensitively.
// Blank handles are ignored; with none left the matcher never matches.
func NewMatcher(handles []string) (*Matcher, error) {
	patterns := make([][]rune, 0, len(handles))
	for _, handle := range handles {
		handle = strings.TrimSpace(handle)
		if handle == "" {
			continue
		}
		patterns = append(patterns, lowerRunes(handle))
	}
	if len(patterns) == 0 {
		return &Matcher{}, nil
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Matcher{machine: m}, nil
}

// Mentions reports whether the text contains at least one handle as a whole word.
func (m *Matcher) Mentions(text string) bool {
	return len(m.Find(text)) > 0
}

// Find returns the handles found as whole words, in order of appearance.
// "@ai" matches in "hey @ai, help" but not in "@aider" nor in "mail@ai.dev".
func (m *Matcher) Find(text string) []string {
	if m.machine == nil || text == "" {
		return nil
	}
	runes := lowerRunes(text)
	var found []string
	for _, term := range m.machine.MultiPatternSearch(runes, false) {
		start := term.Pos
		end := start + len(term.Word)
		if start < 0 || end > len(runes) {
			continue
		}
		if start > 0 && isWordRune(runes[start-1]) {
			continue
		}
		if end < len(runes) && isWordRune(runes[end]) {
			continue
		}
		found = append(found, string(term.Word))
	}
	return found
}

// lowerRunes keeps a one to one mapping with the input runes so positions stay valid.
func lowerRunes(s string) []rune {
	runes := []rune(s)
	for i, r := range runes {
		runes[i] = unicode.ToLower(r)
	}
	return runes
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '@'
}
