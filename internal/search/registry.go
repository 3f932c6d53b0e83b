package search

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"prospect/internal/core"
	"prospect/internal/logger"
)

// DefaultCacheTTL is how long merged-per-provider results stay reusable.
const DefaultCacheTTL = 30 * time.Minute

// Registry fans a query out to every enabled provider, deduplicates the
// union by normalized URL, and merges duplicate scores with noisy-or.
type Registry struct {
	providers []Provider
	limiter   *windowLimiter
	cache     *resultCache
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithCacheTTL overrides the result cache TTL.
func WithCacheTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) { r.cache.ttl = ttl }
}

// NewRegistry builds a registry over the given providers.
func NewRegistry(providers []Provider, opts ...RegistryOption) *Registry {
	r := &Registry{
		providers: providers,
		limiter:   newWindowLimiter(time.Minute),
		cache:     newResultCache(DefaultCacheTTL),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Providers returns the registered providers.
func (r *Registry) Providers() []Provider { return r.providers }

// SearchAll queries every provider in parallel. Individual provider failures
// are logged and skipped; the call fails only when no provider succeeds.
func (r *Registry) SearchAll(ctx context.Context, query string, params Params) ([]Result, error) {
	if len(r.providers) == 0 {
		return nil, core.E(core.KindNoSearchResults, "no search providers enabled")
	}

	normalized := normalizeQuery(query)
	paramKey := hashParams(params)

	type providerOutcome struct {
		name    string
		results []Result
		err     error
	}
	outcomes := make([]providerOutcome, len(r.providers))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range r.providers {
		g.Go(func() error {
			key := p.Name() + "|" + normalized + "|" + paramKey
			if cached, ok := r.cache.get(key); ok {
				outcomes[i] = providerOutcome{name: p.Name(), results: cached}
				return nil
			}
			if !r.limiter.allow(p.Name(), p.RateLimit()) {
				outcomes[i] = providerOutcome{name: p.Name(), err: ErrRateLimited}
				return nil
			}
			results, err := p.Search(gctx, query, params)
			if err != nil {
				outcomes[i] = providerOutcome{name: p.Name(), err: err}
				return nil
			}
			r.cache.put(key, results)
			outcomes[i] = providerOutcome{name: p.Name(), results: results}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	succeeded := 0
	var all []Result
	for _, o := range outcomes {
		if o.err != nil {
			logger.Warn("search provider failed", "provider", o.name, "error", o.err)
			continue
		}
		succeeded++
		all = append(all, o.results...)
	}
	if succeeded == 0 {
		return nil, core.Ef(core.KindNoSearchResults, "all %d search providers failed", len(r.providers))
	}

	return mergeResults(all), nil
}

// mergeResults deduplicates by normalized URL. Scores from duplicate hits
// combine by noisy-or: 1 - prod(1 - s_i).
func mergeResults(results []Result) []Result {
	type bucket struct {
		result    Result
		failProb  float64
		sources   []string
		seenSrc   map[string]bool
		bestScore float64
	}
	buckets := make(map[string]*bucket)
	var order []string

	for _, res := range results {
		key := normalizeURL(res.URL)
		if key == "" {
			continue
		}
		b, ok := buckets[key]
		if !ok {
			b = &bucket{result: res, failProb: 1, seenSrc: make(map[string]bool)}
			buckets[key] = b
			order = append(order, key)
		}
		b.failProb *= 1 - clamp01(res.Score)
		if res.Score > b.bestScore {
			b.bestScore = res.Score
			if res.Title != "" {
				b.result.Title = res.Title
			}
			if res.Snippet != "" {
				b.result.Snippet = res.Snippet
			}
		}
		if !b.seenSrc[res.Source] {
			b.seenSrc[res.Source] = true
			b.sources = append(b.sources, res.Source)
		}
	}

	merged := make([]Result, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		b.result.Score = 1 - b.failProb
		b.result.Source = strings.Join(b.sources, ",")
		merged = append(merged, b.result)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score > merged[j].Score
		}
		return merged[i].URL < merged[j].URL
	})
	for i := range merged {
		merged[i].Rank = i + 1
	}
	return merged
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// normalizeURL reduces a result URL to its dedupe key. Scheme and host are
// case-insensitive; the path is not, so its case is preserved.
func normalizeURL(raw string) string {
	u := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://"} {
		if len(u) >= len(prefix) && strings.EqualFold(u[:len(prefix)], prefix) {
			u = u[len(prefix):]
			break
		}
	}
	host := u
	var rest string
	if idx := strings.IndexByte(u, '/'); idx >= 0 {
		host, rest = u[:idx], u[idx:]
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	return host + strings.TrimSuffix(rest, "/")
}

func hashParams(params Params) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%d|%d|%s|%s", params.MaxResults, params.Since, params.Domain, params.Language)
	return fmt.Sprintf("%x", h.Sum64())
}

// windowLimiter enforces a per-key requests-per-minute cap with a sliding
// window of call timestamps.
type windowLimiter struct {
	mu     sync.Mutex
	window time.Duration
	calls  map[string][]time.Time
	now    func() time.Time
}

func newWindowLimiter(window time.Duration) *windowLimiter {
	return &windowLimiter{
		window: window,
		calls:  make(map[string][]time.Time),
		now:    time.Now,
	}
}

// allow records a call for key when it fits under limit within the window.
func (l *windowLimiter) allow(key string, limit int) bool {
	if limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	kept := l.calls[key][:0]
	for _, t := range l.calls[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		l.calls[key] = kept
		return false
	}
	l.calls[key] = append(kept, now)
	return true
}

// resultCache is a TTL map of provider results.
type resultCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

type cacheEntry struct {
	results []Result
	expires time.Time
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *resultCache) get(key string) ([]Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	out := make([]Result, len(entry.results))
	copy(out, entry.results)
	return out, true
}

func (c *resultCache) put(key string, results []Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := make([]Result, len(results))
	copy(stored, results)
	c.entries[key] = cacheEntry{results: stored, expires: c.now().Add(c.ttl)}
}
