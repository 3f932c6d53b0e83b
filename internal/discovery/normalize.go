package discovery

import (
	"net"
	"net/url"
	"strings"

	"prospect/internal/core"
)

// Normalize canonicalizes a URL: scheme and host lowercased, default ports
// removed, fragment stripped. A trailing slash on the path survives exactly
// as written. Normalize(Normalize(x)) == Normalize(x), which is what makes
// the string usable as a dedup key.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", core.E(core.KindInvalidURL, "empty URL")
	}

	// Bare domains are common user input for websites.
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", core.Ef(core.KindInvalidURL, "cannot parse %q: %v", raw, err)
	}

	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", core.Ef(core.KindInvalidURL, "unsupported scheme %q", u.Scheme)
	}

	u.Host = strings.ToLower(u.Host)
	if host, port, err := net.SplitHostPort(u.Host); err == nil {
		if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
			u.Host = host
		}
	}
	if u.Hostname() == "" {
		return "", core.Ef(core.KindInvalidURL, "no host in %q", raw)
	}

	u.Fragment = ""
	u.User = nil

	return u.String(), nil
}

// SameSite reports whether two hosts belong to the same site. The comparison
// ignores a www prefix and otherwise matches on the last two DNS labels, so
// blog.example.com and www.example.com both count as example.com. Multi-label
// public suffixes (co.uk) are intentionally not special-cased; company
// websites on those TLDs still crawl correctly because subdomain links are
// rare there and the homepage host always matches itself.
func SameSite(a, b string) bool {
	return siteKey(a) == siteKey(b)
}

func siteKey(host string) string {
	host = strings.ToLower(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	return strings.Join(labels[len(labels)-2:], ".")
}
