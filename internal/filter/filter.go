package filter

import (
	"strings"

	"vea/internal/domain"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Matcher reports whether an entry title mentions any configured keyword.
// With no keywords every entry matches.
type Matcher struct {
	keywords []string
}

// NewMatcher lowercases keywords as given. Surrounding spaces are kept since
// they act as word boundaries; only empty keywords are dropped.
func NewMatcher(keywords []string) *Matcher {
	lowered := make([]string, 0, len(keywords))
	seen := make(map[string]struct{}, len(keywords))

	for _, keyword := range keywords {
		k := lower(keyword)
		if k == "" {
			continue
		}

		if _, ok := seen[k]; ok {
			continue
		}

		lowered = append(lowered, k)
		seen[k] = struct{}{}
	}

	return &Matcher{keywords: lowered}
}

func (m *Matcher) Matches(entry domain.Entry) bool {
	if len(m.keywords) == 0 {
		return true
	}

	title := lower(entry.Title)
	for _, keyword := range m.keywords {
		if strings.Contains(title, keyword) {
			return true
		}
	}

	return false
}

func (m *Matcher) Keywords() []string {
	return append([]string(nil), m.keywords...)
}

func lower(s string) string {
	return cases.Lower(language.Und).String(s)
}
