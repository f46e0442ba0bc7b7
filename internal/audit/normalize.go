package audit

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a raw user-supplied URL into the key used for
// dedup lookups: trimmed, lowercased, scheme forced to https, leading "www."
// and a single trailing slash stripped. It never fails: if the input cannot
// be parsed as a URL the lowercased trimmed string is returned as-is so that
// dedup degrades gracefully instead of rejecting the request.
func NormalizeURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Scheme = "https"
	host := strings.TrimPrefix(u.Host, "www.")
	path := strings.TrimSuffix(u.Path, "/")
	return "https://" + host + path
}
