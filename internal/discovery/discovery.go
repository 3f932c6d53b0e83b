// Package discovery enumerates the candidate pages of a company website.
// It combines robots.txt hints, sitemaps, and a bounded breadth-first crawl
// from the homepage into one deduplicated, priority-ordered candidate list.
package discovery

import (
	"context"
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"prospect/internal/core"
	"prospect/internal/fetch"
	"prospect/internal/logger"
)

const (
	// DefaultMaxDepth bounds the crawl; the homepage is depth 0.
	DefaultMaxDepth = 3
	// DefaultBranching caps new links taken from any single page.
	DefaultBranching = 20
	// DefaultMaxCandidates caps the whole candidate list.
	DefaultMaxCandidates = 500
	// DefaultDeadline bounds the entire discovery phase; expiry returns
	// partial results, not an error.
	DefaultDeadline = 60 * time.Second

	// maxSitemapDocs bounds sitemap fetches, index children included.
	maxSitemapDocs = 10
)

// assetExtensions are file types that never carry extractable company text.
var assetExtensions = map[string]struct{}{
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {},
	".zip": {}, ".rar": {}, ".tar": {}, ".gz": {},
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".svg": {}, ".ico": {}, ".webp": {},
	".css": {}, ".js": {}, ".json": {}, ".txt": {},
	".mp3": {}, ".mp4": {}, ".webm": {}, ".avi": {}, ".mov": {},
	".woff": {}, ".woff2": {}, ".ttf": {}, ".eot": {},
}

// noisePattern matches path fragments that are navigational or transactional
// chrome rather than company content.
var noisePattern = regexp.MustCompile(`(?i)(^|/)(admin|wp-admin|wp-json|wp-login|login|logout|signin|sign-in|signup|sign-up|register|auth|oauth|cart|checkout|api|ajax|search|tag|category|comment|comments|reply|share|feed|rss)(/|$)|/page/\d+`)

// Result is everything discovery learned about a site.
type Result struct {
	Candidates    []core.PageCandidate // Priority-ordered, deduplicated, capped
	Anchors       map[string]string    // Normalized URL -> anchor text seen during crawl
	RobotsBlocked bool                 // robots.txt disallows the homepage for *
	SitemapPages  int                  // URLs contributed by sitemaps
	Truncated     bool                 // Cap or deadline cut the crawl short
}

// Discoverer runs phase one of the pipeline.
type Discoverer struct {
	client        *fetch.Client
	maxDepth      int
	branching     int
	maxCandidates int
	deadline      time.Duration
}

// Option customizes a Discoverer.
type Option func(*Discoverer)

// WithMaxDepth overrides the crawl depth limit.
func WithMaxDepth(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.maxDepth = n
		}
	}
}

// WithBranching overrides the per-page link limit.
func WithBranching(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.branching = n
		}
	}
}

// WithMaxCandidates overrides the global candidate cap.
func WithMaxCandidates(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.maxCandidates = n
		}
	}
}

// WithDeadline overrides the discovery deadline.
func WithDeadline(t time.Duration) Option {
	return func(d *Discoverer) {
		if t > 0 {
			d.deadline = t
		}
	}
}

// New builds a Discoverer over the shared fetch client.
func New(client *fetch.Client, opts ...Option) *Discoverer {
	d := &Discoverer{
		client:        client,
		maxDepth:      DefaultMaxDepth,
		branching:     DefaultBranching,
		maxCandidates: DefaultMaxCandidates,
		deadline:      DefaultDeadline,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Discover enumerates candidates for the site at baseURL. The only fatal
// failure is an unreachable homepage; robots and sitemap problems are logged
// and skipped, and deadline expiry returns whatever was found by then.
func (d *Discoverer) Discover(ctx context.Context, baseURL string) (*Result, error) {
	base, err := Normalize(baseURL)
	if err != nil {
		return nil, err
	}
	baseU, err := url.Parse(base)
	if err != nil {
		return nil, core.E(core.KindInvalidURL, "cannot parse normalized URL", err)
	}

	ctx, cancel := context.WithTimeout(ctx, d.deadline)
	defer cancel()

	res := &Result{Anchors: make(map[string]string)}
	seen := make(map[string]bool)
	var candidates []core.PageCandidate

	add := func(raw string, source core.CandidateSource, depth int) (string, bool) {
		norm, err := Normalize(raw)
		if err != nil {
			return "", false
		}
		u, err := url.Parse(norm)
		if err != nil {
			return "", false
		}
		if !SameSite(baseU.Host, u.Host) || !keepPath(u.Path) {
			return "", false
		}
		if seen[norm] {
			return norm, false
		}
		if len(candidates) >= d.maxCandidates {
			res.Truncated = true
			return "", false
		}
		seen[norm] = true
		candidates = append(candidates, core.PageCandidate{
			URL:          norm,
			Source:       source,
			Depth:        depth,
			DiscoveredAt: time.Now().UTC(),
		})
		return norm, true
	}

	// Homepage first: it is the one fatal failure, so it must not compete
	// with robots or sitemap fetches for the deadline budget.
	home, err := d.client.Get(ctx, base)
	if err != nil {
		if ctx.Err() == context.Canceled {
			return nil, ctx.Err()
		}
		return nil, core.E(core.KindHomepageUnreachable, "homepage fetch failed for "+base, err)
	}

	// robots.txt: sitemap directives, advisory blocked flag, path hints.
	robots := d.fetchRobots(ctx, baseU)
	res.RobotsBlocked = robots.BlocksPath(baseU.Path)
	if res.RobotsBlocked {
		logger.Warn("robots.txt disallows the homepage; crawling anyway", "url", base)
	}
	for _, hint := range robots.PathHints() {
		add(baseU.ResolveReference(&url.URL{Path: hint}).String(), core.SourceRobots, 0)
	}

	// Sitemaps: robots-declared locations plus the conventional fallback.
	sitemapURLs := robots.Sitemaps
	if len(sitemapURLs) == 0 {
		sitemapURLs = []string{baseU.Scheme + "://" + baseU.Host + "/sitemap.xml"}
	}
	res.SitemapPages = d.walkSitemaps(ctx, sitemapURLs, func(loc string) {
		add(loc, core.SourceSitemap, 0)
	})

	// Seed the crawl only after sitemap and robots candidates have claimed
	// their URLs, so overlaps keep the higher-priority source.
	add(base, core.SourceSeed, 0)

	// Breadth-first expansion up to maxDepth, branching capped per page.
	type frontierItem struct {
		url   string
		depth int
	}
	var queue []frontierItem

	d.expandPage(home.FinalURL, home.Body, 0, core.SourceSeed, res, add, func(u string, depth int) {
		queue = append(queue, frontierItem{url: u, depth: depth})
	})

	for len(queue) > 0 {
		if ctx.Err() != nil {
			res.Truncated = true
			break
		}
		if len(candidates) >= d.maxCandidates {
			res.Truncated = true
			break
		}

		item := queue[0]
		queue = queue[1:]

		page, err := d.client.Get(ctx, item.url)
		if err != nil {
			logger.Debug("crawl fetch failed", "url", item.url, "error", err)
			continue
		}
		if !fetch.IsHTML(page.ContentType) {
			continue
		}
		d.expandPage(page.FinalURL, page.Body, item.depth, core.SourceRecursive, res, add, func(u string, depth int) {
			queue = append(queue, frontierItem{url: u, depth: depth})
		})
	}

	// Priority order: sitemap > robots > seed > recursive, then shallower
	// first, then URL for a stable tail.
	sort.SliceStable(candidates, func(i, j int) bool {
		pi, pj := candidates[i].Source.Priority(), candidates[j].Source.Priority()
		if pi != pj {
			return pi < pj
		}
		if candidates[i].Depth != candidates[j].Depth {
			return candidates[i].Depth < candidates[j].Depth
		}
		return candidates[i].URL < candidates[j].URL
	})

	res.Candidates = candidates
	logger.Info("discovery finished",
		"base", base,
		"candidates", len(candidates),
		"sitemap_pages", res.SitemapPages,
		"robots_blocked", res.RobotsBlocked,
		"truncated", res.Truncated)
	return res, nil
}

// expandPage extracts same-site links from one fetched page, records them as
// candidates, and enqueues the ones shallow enough to crawl further.
func (d *Discoverer) expandPage(pageURL, html string, depth int, source core.CandidateSource, res *Result, add func(string, core.CandidateSource, int) (string, bool), enqueue func(string, int)) {
	pageU, err := url.Parse(pageURL)
	if err != nil {
		return
	}
	links, err := fetch.ExtractLinks(html)
	if err != nil {
		return
	}

	taken := 0
	for _, link := range links {
		if taken >= d.branching {
			break
		}
		ref, err := pageU.Parse(link.Href)
		if err != nil {
			continue
		}
		norm, added := add(ref.String(), source, depth+1)
		if norm != "" && link.Text != "" {
			if _, ok := res.Anchors[norm]; !ok {
				res.Anchors[norm] = link.Text
			}
		}
		if !added {
			continue
		}
		taken++
		if depth+1 < d.maxDepth {
			enqueue(norm, depth+1)
		}
	}
}

// fetchRobots downloads and parses robots.txt; failures return an empty info.
func (d *Discoverer) fetchRobots(ctx context.Context, baseU *url.URL) robotsInfo {
	robotsURL := baseU.Scheme + "://" + baseU.Host + "/robots.txt"
	res, err := d.client.Get(ctx, robotsURL)
	if err != nil {
		logger.Debug("robots.txt not available", "url", robotsURL, "error", err)
		return robotsInfo{}
	}
	return parseRobots(res.Body)
}

// walkSitemaps fetches each sitemap, following index documents one level
// deep, and feeds every page location to emit. Returns the page count.
func (d *Discoverer) walkSitemaps(ctx context.Context, sitemapURLs []string, emit func(string)) int {
	fetched := 0
	pages := 0

	var fetchDoc func(u string, allowChildren bool)
	fetchDoc = func(u string, allowChildren bool) {
		if fetched >= maxSitemapDocs || ctx.Err() != nil {
			return
		}
		fetched++

		res, err := d.client.Get(ctx, u)
		if err != nil {
			logger.Debug("sitemap fetch failed", "url", u, "error", err)
			return
		}
		locs, children, err := parseSitemap(res.Body)
		if err != nil {
			logger.Debug("sitemap parse failed", "url", u, "error", err)
			return
		}
		for _, loc := range locs {
			pages++
			emit(loc)
		}
		if allowChildren {
			for _, child := range children {
				fetchDoc(child, false)
			}
		}
	}

	for _, u := range sitemapURLs {
		fetchDoc(u, true)
	}
	return pages
}

// keepPath rejects asset files and navigational noise.
func keepPath(p string) bool {
	if ext := strings.ToLower(path.Ext(p)); ext != "" {
		if _, bad := assetExtensions[ext]; bad {
			return false
		}
	}
	return !noisePattern.MatchString(p)
}
