package redact

import (
	"net/url"
	"regexp"
	"strings"
)

var reURL = regexp.MustCompile(`https?://\S+`)

// pattern pairs a secret shape with the placeholder that replaces it.
type pattern struct {
	re          *regexp.Regexp
	replacement string
}

// defaultPatterns lists the secret shapes that must never reach a PR comment.
// Order matters: the fine-grained PAT rule runs before the generic token rule.
func defaultPatterns() []pattern {
	return []pattern{
		{regexp.MustCompile(`(?i)github_pat_[A-Za-z0-9_]{10,}`), "[REDACTED_GITHUB_PAT]"},
		{regexp.MustCompile(`(?i)gh[pousr]_[A-Za-z0-9]{10,}`), "[REDACTED_GITHUB_TOKEN]"},
		{regexp.MustCompile(`(?i)sk-[A-Za-z0-9]{10,}`), "[REDACTED_API_KEY]"},
		{regexp.MustCompile(`(?i)pk_[A-Za-z0-9]{10,}`), "[REDACTED_API_TOKEN]"},
		{regexp.MustCompile(`(?i)AIza[0-9A-Za-z_-]{20,}`), "[REDACTED_GCP_API_KEY]"},
		{regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`), "[REDACTED_AWS_ACCESS_KEY_ID]"},
		{regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]+?-----END [A-Z ]*PRIVATE KEY-----`), "[REDACTED_PRIVATE_KEY_BLOCK]"},
		{regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}\b`), "[REDACTED_JWT]"},
		{regexp.MustCompile(`(?i)\bAuthorization:\s*(Bearer|Token)\s+\S+`), "Authorization: [REDACTED_AUTH]"},
		{regexp.MustCompile(`(?i)xox[baprs]-[A-Za-z0-9-]{10,}`), "[REDACTED_SLACK_TOKEN]"},
	}
}

// Redactor scrubs secrets, foreign URLs and the home directory from text that
// is about to be published. It is immutable after construction.
type Redactor struct {
	allowedHosts map[string]struct{}
	home         string
	patterns     []pattern
}

// New builds a Redactor. URLs pointing at one of allowedHosts survive;
// every other URL is replaced by [URL]. home, when non-empty, is rewritten to ~.
func New(home string, allowedHosts ...string) *Redactor {
	hosts := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			hosts[h] = struct{}{}
		}
	}
	return &Redactor{
		allowedHosts: hosts,
		home:         home,
		patterns:     defaultPatterns(),
	}
}

// WithHosts returns a copy that additionally allows the given hosts.
func (r *Redactor) WithHosts(hosts ...string) *Redactor {
	all := make([]string, 0, len(r.allowedHosts)+len(hosts))
	for h := range r.allowedHosts {
		all = append(all, h)
	}
	all = append(all, hosts...)
	return New(r.home, all...)
}

// Redact applies the URL filter, the secret patterns and home anonymisation.
func (r *Redactor) Redact(s string) string {
	if r == nil || s == "" {
		return s
	}
	out := reURL.ReplaceAllStringFunc(s, func(raw string) string {
		u, err := url.Parse(raw)
		if err != nil {
			return "[URL]"
		}
		if _, ok := r.allowedHosts[strings.ToLower(u.Host)]; ok {
			return raw
		}
		return "[URL]"
	})
	for _, p := range r.patterns {
		out = p.re.ReplaceAllString(out, p.replacement)
	}
	if r.home != "" && r.home != "/" {
		out = strings.ReplaceAll(out, r.home, "~")
	}
	return out
}

// RedactStrings redacts every element of a list field.
func (r *Redactor) RedactStrings(items []string) []string {
	if len(items) == 0 {
		return items
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = r.Redact(item)
	}
	return out
}
