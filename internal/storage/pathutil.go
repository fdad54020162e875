package storage

import (
	"fmt"
	"net/url"
	"strings"
)

// SiteSegment turns a page URL into a filesystem-safe directory name built
// from its host and path, e.g. "example.com_blog_post".
func SiteSegment(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return sanitize(host), nil
	}
	return sanitize(host + "_" + strings.ReplaceAll(path, "/", "_")), nil
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 120 {
		out = out[:120]
	}
	return out
}
