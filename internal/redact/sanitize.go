package redact

import (
	"regexp"
	"strings"
)

var (
	reInvisible   = regexp.MustCompile("[\u200B\u200C\u200D\u2060\uFEFF\u00AD]")
	reControl     = regexp.MustCompile("[\u0000-\u0008\u000B\u000C\u000E-\u001F\u007F-\u009F]")
	reBidi        = regexp.MustCompile("[\u202A-\u202E\u2066-\u2069]")
	reHTMLComment = regexp.MustCompile(`<!--[\s\S]*?-->`)
	reHiddenAttr  = regexp.MustCompile(`\s(?:alt|title|aria-label|placeholder|data-[a-zA-Z0-9-]+)=(?:"[^"]*"|'[^']*')`)
)

// Sanitize removes content that renders invisibly on GitHub: zero-width and
// bidi control characters, hidden HTML attributes and HTML comments. An
// unterminated "<!--" is escaped so it cannot swallow the document markers
// that follow it.
func Sanitize(s string) string {
	if s == "" {
		return s
	}
	s = reInvisible.ReplaceAllString(s, "")
	s = reControl.ReplaceAllString(s, "")
	s = reBidi.ReplaceAllString(s, "")
	s = reHTMLComment.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "<!--", "&lt;!--")
	s = strings.ReplaceAll(s, "-->", "--&gt;")
	s = reHiddenAttr.ReplaceAllString(s, "")
	return s
}

// SanitizeStrings applies Sanitize to every item.
func SanitizeStrings(items []string) []string {
	if items == nil {
		return nil
	}
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = Sanitize(s)
	}
	return out
}
