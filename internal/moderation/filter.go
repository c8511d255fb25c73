package moderation

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// WordFilter masks configured words in free text. Matching is case-folded and
// whole-word; whitelisted words are never masked even when they also appear
// in the banned list.
type WordFilter struct {
	enabled bool
	banned  map[string]struct{}
	allowed map[string]struct{}
}

var fold = cases.Fold()

// NewWordFilter builds a filter from the configured word lists.
func NewWordFilter(enabled bool, banned, allowed []string) *WordFilter {
	f := &WordFilter{
		enabled: enabled,
		banned:  make(map[string]struct{}, len(banned)),
		allowed: make(map[string]struct{}, len(allowed)),
	}
	for _, w := range banned {
		if w = strings.TrimSpace(w); w != "" {
			f.banned[fold.String(w)] = struct{}{}
		}
	}
	for _, w := range allowed {
		if w = strings.TrimSpace(w); w != "" {
			f.allowed[fold.String(w)] = struct{}{}
		}
	}
	return f
}

// Clean returns text with banned words replaced by runs of '*'. It always
// returns a string, even for empty input or a disabled filter.
func (f *WordFilter) Clean(text string) string {
	if !f.enabled || text == "" || len(f.banned) == 0 {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := text[start:end]
		folded := fold.String(word)
		_, isBanned := f.banned[folded]
		_, isAllowed := f.allowed[folded]
		if isBanned && !isAllowed {
			b.WriteString(strings.Repeat("*", len([]rune(word))))
		} else {
			b.WriteString(word)
		}
		start = -1
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
		b.WriteRune(r)
	}
	flush(len(text))
	return b.String()
}
