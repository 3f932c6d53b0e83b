// Package selector asks the LLM which discovered pages are worth fetching
// for a company profile, with a deterministic heuristic fallback when the
// model cannot produce a usable answer.
package selector

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"prospect/internal/core"
	"prospect/internal/cost"
	"prospect/internal/llm"
	"prospect/internal/logger"
)

const (
	// DefaultMaxPages is how many pages the selector picks by default.
	DefaultMaxPages = 10

	// defaultPromptTokenBudget caps the selection prompt size. Candidates
	// beyond the budget are dropped in heuristic-priority order.
	defaultPromptTokenBudget = 8000

	// maxParseAttempts is the initial call plus retries on unparseable output.
	maxParseAttempts = 3
)

// heuristicPaths orders path keywords by how much profile signal the page
// behind them usually carries.
var heuristicPaths = []string{
	"about", "team", "leadership", "contact", "services",
	"products", "pricing", "customers", "careers",
}

// Selector picks the most informative subset of page candidates.
type Selector struct {
	provider llm.Provider
	counter  *cost.Counter
	maxPages int
	budget   int
	tally    *cost.Tally
}

// Option customizes a Selector.
type Option func(*Selector)

// WithMaxPages sets how many pages to select.
func WithMaxPages(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.maxPages = n
		}
	}
}

// WithTokenBudget overrides the prompt token budget.
func WithTokenBudget(n int) Option {
	return func(s *Selector) {
		if n > 0 {
			s.budget = n
		}
	}
}

// WithTally records LLM usage into t.
func WithTally(t *cost.Tally) Option {
	return func(s *Selector) { s.tally = t }
}

// New creates a Selector backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Selector {
	counter, err := cost.NewCounter("")
	if err != nil {
		counter = nil // Count degrades to a character heuristic
	}
	s := &Selector{
		provider: provider,
		counter:  counter,
		maxPages: DefaultMaxPages,
		budget:   defaultPromptTokenBudget,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Selection is the outcome of one selection call.
type Selection struct {
	URLs      []string // Chosen page URLs, homepage first when present
	Heuristic bool     // True when the LLM path failed and the fallback ran
	Truncated bool     // True when candidates were dropped for token budget
}

// Select picks up to maxPages URLs from candidates. The candidate list must
// carry normalized URLs; anchors maps URL to anchor text when known.
func (s *Selector) Select(ctx context.Context, companyName string, candidates []core.PageCandidate, anchors map[string]string) (*Selection, error) {
	if len(candidates) == 0 {
		return nil, core.E(core.KindNoCandidatesFound, "no page candidates to select from")
	}
	if len(candidates) <= s.maxPages {
		urls := make([]string, len(candidates))
		for i, c := range candidates {
			urls[i] = c.URL
		}
		return &Selection{URLs: urls}, nil
	}

	prompt, kept, truncated := s.buildPrompt(companyName, candidates, anchors)

	indices, err := s.askModel(ctx, prompt, len(kept))
	if err != nil {
		logger.Warn("page selection falling back to heuristic", "company", companyName, "error", err)
		return &Selection{
			URLs:      s.heuristicSelect(candidates),
			Heuristic: true,
			Truncated: truncated,
		}, nil
	}

	urls := make([]string, 0, s.maxPages)
	seen := make(map[string]bool)
	for _, idx := range indices {
		if len(urls) >= s.maxPages {
			break
		}
		// Out-of-range answers are dropped, not fatal.
		if idx < 0 || idx >= len(kept) {
			continue
		}
		u := kept[idx].URL
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		logger.Warn("model selected no valid pages, using heuristic", "company", companyName)
		return &Selection{
			URLs:      s.heuristicSelect(candidates),
			Heuristic: true,
			Truncated: truncated,
		}, nil
	}
	return &Selection{URLs: urls, Truncated: truncated}, nil
}

// buildPrompt renders a numbered candidate list, dropping the least
// promising candidates when the prompt would blow the token budget.
func (s *Selector) buildPrompt(companyName string, candidates []core.PageCandidate, anchors map[string]string) (prompt string, kept []core.PageCandidate, truncated bool) {
	kept = make([]core.PageCandidate, len(candidates))
	copy(kept, candidates)

	for {
		prompt = s.renderPrompt(companyName, kept, anchors)
		if s.countTokens(prompt) <= s.budget || len(kept) <= s.maxPages {
			return prompt, kept, truncated
		}
		// Drop the lowest-priority candidate and re-render.
		worst := len(kept) - 1
		worstRank := heuristicRank(kept[worst].URL)
		for i := len(kept) - 2; i >= 0; i-- {
			if r := heuristicRank(kept[i].URL); r > worstRank {
				worst, worstRank = i, r
			}
		}
		kept = append(kept[:worst], kept[worst+1:]...)
		truncated = true
	}
}

func (s *Selector) renderPrompt(companyName string, candidates []core.PageCandidate, anchors map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are selecting pages from the website of the company %q to build a sales intelligence profile.

Choose the %d pages most likely to reveal: what the company does, who it sells to, its services or products, leadership, technology, and company background.

Candidate pages:
`, companyName, s.maxPages)
	for i, c := range candidates {
		anchor := anchors[c.URL]
		if anchor != "" {
			fmt.Fprintf(&b, "%d. %s (link text: %s)\n", i, displayPath(c.URL), anchor)
		} else {
			fmt.Fprintf(&b, "%d. %s\n", i, displayPath(c.URL))
		}
	}
	fmt.Fprintf(&b, `
Respond with a JSON array of the chosen candidate numbers, best first, for example: [0, 4, 7]
Respond with JSON only.`)
	return b.String()
}

// askModel runs the selection prompt, retrying on unparseable output with a
// repair prompt.
func (s *Selector) askModel(ctx context.Context, prompt string, numCandidates int) ([]int, error) {
	current := prompt
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		resp, err := llm.CompleteWithRetry(ctx, s.provider, llm.Request{
			Prompt:     current,
			JSONOutput: true,
		}, llm.DefaultRetryConfig())
		if err != nil {
			return nil, err
		}
		if s.tally != nil {
			s.tally.Add(resp.Model, resp.InputTokens, resp.OutputTokens)
		}

		indices, err := parseIndices(resp.Text)
		if err == nil {
			return indices, nil
		}
		lastErr = err
		current = llm.RepairPrompt(resp.Text)
		logger.Debug("selection response unparseable, retrying", "attempt", attempt+1, "error", err)
	}
	return nil, core.E(core.KindSelectorUnparseable, "selection response unparseable after retries", lastErr)
}

// parseIndices accepts either a bare index array or an array of objects
// carrying an index field, which some models emit despite instructions.
func parseIndices(raw string) ([]int, error) {
	var plain []int
	if err := llm.ExtractJSONArray(raw, &plain); err == nil {
		return plain, nil
	}

	var objects []struct {
		Index  *int   `json:"index"`
		Number *int   `json:"number"`
		Reason string `json:"reason"`
	}
	if err := llm.ExtractJSONArray(raw, &objects); err != nil {
		return nil, err
	}
	indices := make([]int, 0, len(objects))
	for _, o := range objects {
		switch {
		case o.Index != nil:
			indices = append(indices, *o.Index)
		case o.Number != nil:
			indices = append(indices, *o.Number)
		}
	}
	if len(indices) == 0 {
		return nil, core.E(core.KindSelectorEmpty, "selection array carried no indices")
	}
	return indices, nil
}

// heuristicSelect ranks candidates by path keywords, then source priority,
// then depth. The homepage always makes the cut.
func (s *Selector) heuristicSelect(candidates []core.PageCandidate) []string {
	ranked := make([]core.PageCandidate, len(candidates))
	copy(ranked, candidates)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := heuristicRank(ranked[i].URL), heuristicRank(ranked[j].URL)
		if ri != rj {
			return ri < rj
		}
		if ranked[i].Depth != ranked[j].Depth {
			return ranked[i].Depth < ranked[j].Depth
		}
		return ranked[i].Source.Priority() < ranked[j].Source.Priority()
	})

	urls := make([]string, 0, s.maxPages)
	for _, c := range ranked {
		if len(urls) >= s.maxPages {
			break
		}
		urls = append(urls, c.URL)
	}
	return urls
}

// heuristicRank scores a URL by its path keywords: lower is better. The
// homepage ranks right after the keyword pages.
func heuristicRank(rawURL string) int {
	path := strings.ToLower(displayPath(rawURL))
	for i, keyword := range heuristicPaths {
		if strings.Contains(path, keyword) {
			return i
		}
	}
	if path == "/" || path == "" {
		return len(heuristicPaths)
	}
	return len(heuristicPaths) + 1
}

func displayPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	p := u.Path
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}

func (s *Selector) countTokens(text string) int {
	if s.counter != nil {
		return s.counter.Count(text)
	}
	return cost.EstimateTokens(text)
}
