// Package filter classifies entries as major news by keyword relevance.
package filter

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Matcher holds one compiled pattern per configured keyword.
type Matcher struct {
	patterns []*regexp.Regexp
}

// Compile builds matchers from lower-cased keywords. ASCII keywords match as
// whole words (so "fed" does not hit "federal"), with hyphens accepted
// between the words of a phrase. Non-ASCII keywords (CJK titles often have no
// spacing, so word boundaries are meaningless there) match as plain
// substrings. Empty keywords are skipped.
func Compile(keywords []string) *Matcher {
	m := &Matcher{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}

		var expr string
		if isASCII(kw) {
			parts := make([]string, 0, 4)
			for _, p := range strings.Fields(kw) {
				parts = append(parts, regexp.QuoteMeta(p))
			}
			expr = `(?i)\b` + strings.Join(parts, `[\s\-]+`) + `\b`
		} else {
			expr = `(?i)` + regexp.QuoteMeta(kw)
		}

		re, err := regexp.Compile(expr)
		if err != nil {
			continue
		}
		m.patterns = append(m.patterns, re)
	}
	return m
}

// IsMajor reports whether the title matches at least one keyword and is not
// an opinion piece. Only the title is consulted; bodies are not fetched at
// this stage.
func (m *Matcher) IsMajor(title string) bool {
	title = strings.TrimSpace(title)
	if strings.Contains(strings.ToLower(title), "opinion") {
		return false
	}
	for _, re := range m.patterns {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}

// Len returns the number of compiled keyword patterns.
func (m *Matcher) Len() int {
	return len(m.patterns)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
