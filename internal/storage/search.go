package storage

import (
	"strings"

	"golang.org/x/text/cases"
)

// textMatcher performs case-insensitive substring matching using Unicode
// case folding rather than ASCII lowering.
type textMatcher struct {
	needle string
}

func newTextMatcher(search string) textMatcher {
	search = strings.TrimSpace(search)
	if search == "" {
		return textMatcher{}
	}
	return textMatcher{needle: foldString(search)}
}

func (m textMatcher) empty() bool {
	return m.needle == ""
}

// matchesAny reports whether any field contains the needle. An empty matcher
// matches everything.
func (m textMatcher) matchesAny(fields ...string) bool {
	if m.empty() {
		return true
	}
	for _, field := range fields {
		if strings.Contains(foldString(field), m.needle) {
			return true
		}
	}
	return false
}

func foldString(value string) string {
	return cases.Fold().String(value)
}
