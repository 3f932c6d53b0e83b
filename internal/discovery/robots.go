package discovery

import (
	"strings"
)

// robotsInfo is the subset of robots.txt the discoverer cares about:
// sitemap locations, and the wildcard group's path rules. Disallow rules are
// advisory here; they raise an observability flag, they do not stop the
// crawl.
type robotsInfo struct {
	Sitemaps  []string
	Disallows []string
	Allows    []string
}

// parseRobots extracts Sitemap directives and the User-agent: * group's
// rules. Rules for other user agents are ignored.
func parseRobots(body string) robotsInfo {
	var info robotsInfo
	groupHasStar := false
	lastWasUA := false

	for _, line := range strings.Split(body, "\n") {
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		val = strings.TrimSpace(val)

		switch key {
		case "user-agent":
			// Consecutive user-agent lines extend one group; a user-agent
			// line after rules starts a new group.
			if !lastWasUA {
				groupHasStar = false
			}
			if val == "*" {
				groupHasStar = true
			}
			lastWasUA = true
		case "disallow":
			if groupHasStar && val != "" {
				info.Disallows = append(info.Disallows, val)
			}
			lastWasUA = false
		case "allow":
			if groupHasStar && val != "" {
				info.Allows = append(info.Allows, val)
			}
			lastWasUA = false
		case "sitemap":
			if val != "" {
				info.Sitemaps = append(info.Sitemaps, val)
			}
			lastWasUA = false
		default:
			lastWasUA = false
		}
	}

	return info
}

// BlocksPath reports whether any wildcard-group Disallow rule covers the
// path. Wildcards inside rules are honored only as a prefix cut; that is
// enough for the advisory flag.
func (r robotsInfo) BlocksPath(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, rule := range r.Disallows {
		prefix := rule
		if idx := strings.IndexByte(prefix, '*'); idx >= 0 {
			prefix = prefix[:idx]
		}
		prefix = strings.TrimSuffix(prefix, "$")
		if prefix == "" {
			continue
		}
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// maxPathHints caps how many robots rules become page candidates.
const maxPathHints = 20

// PathHints returns the plain paths mentioned in Allow and Disallow rules.
// Sites enumerate real sections in robots.txt often enough that these make
// useful low-priority candidates; the noise filter drops the admin junk.
func (r robotsInfo) PathHints() []string {
	var hints []string
	seen := make(map[string]bool)
	for _, rule := range append(append([]string{}, r.Allows...), r.Disallows...) {
		if len(hints) >= maxPathHints {
			break
		}
		if !strings.HasPrefix(rule, "/") || len(rule) < 2 {
			continue
		}
		if strings.ContainsAny(rule, "*$?") {
			continue
		}
		if seen[rule] {
			continue
		}
		seen[rule] = true
		hints = append(hints, rule)
	}
	return hints
}
