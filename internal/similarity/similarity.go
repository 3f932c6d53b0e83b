// Package similarity finds and validates companies related to a target.
// Candidates surface from the vector index, LLM suggestion, or web search;
// an edge is written only when at least two of three scoring methods agree.
package similarity

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"prospect/internal/core"
	"prospect/internal/docstore"
	"prospect/internal/llm"
	"prospect/internal/logger"
	"prospect/internal/search"
	"prospect/internal/vectorstore"
)

const (
	// DefaultThreshold is the per-method vote threshold.
	DefaultThreshold = 0.70
	// DefaultTopK is the vector candidate count.
	DefaultTopK = 20
	// DefaultLLMCandidates is how many suggestions the model is asked for.
	DefaultLLMCandidates = 10
	// DefaultResearchBudget caps full research runs per discovery request.
	DefaultResearchBudget = 3

	// validateParallelism bounds concurrent judge calls.
	validateParallelism = 4
)

// Researcher runs a full research pipeline for a company that is not in the
// store yet. It is satisfied by the research engine.
type Researcher interface {
	ResearchSync(ctx context.Context, name, website string) (*core.Company, error)
}

// Discoverer locates and validates similar companies.
type Discoverer struct {
	provider   llm.Provider
	gateway    *vectorstore.Gateway
	store      *docstore.Store
	registry   *search.Registry
	researcher Researcher

	threshold     float64
	topK          int
	llmCandidates int
	budget        int
	weights       Weights
}

// Option customizes a Discoverer.
type Option func(*Discoverer)

// WithThreshold sets the per-method vote threshold.
func WithThreshold(t float64) Option {
	return func(d *Discoverer) {
		if t > 0 {
			d.threshold = t
		}
	}
}

// WithTopK sets the vector candidate count.
func WithTopK(k int) Option {
	return func(d *Discoverer) {
		if k > 0 {
			d.topK = k
		}
	}
}

// WithLLMCandidates sets the suggestion count requested from the model.
func WithLLMCandidates(n int) Option {
	return func(d *Discoverer) {
		if n > 0 {
			d.llmCandidates = n
		}
	}
}

// WithResearchBudget caps per-request research runs for absent candidates.
func WithResearchBudget(n int) Option {
	return func(d *Discoverer) {
		if n >= 0 {
			d.budget = n
		}
	}
}

// WithWeights overrides the structured score weights.
func WithWeights(w Weights) Option {
	return func(d *Discoverer) { d.weights = w }
}

// WithResearcher enables budgeted research of absent candidates.
func WithResearcher(r Researcher) Option {
	return func(d *Discoverer) { d.researcher = r }
}

// WithSearchRegistry enables unknown-mode discovery via web search.
func WithSearchRegistry(r *search.Registry) Option {
	return func(d *Discoverer) { d.registry = r }
}

// New creates a Discoverer.
func New(provider llm.Provider, gateway *vectorstore.Gateway, store *docstore.Store, opts ...Option) *Discoverer {
	d := &Discoverer{
		provider:      provider,
		gateway:       gateway,
		store:         store,
		threshold:     DefaultThreshold,
		topK:          DefaultTopK,
		llmCandidates: DefaultLLMCandidates,
		budget:        DefaultResearchBudget,
		weights:       DefaultWeights(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Result is the outcome of one discovery request.
type Result struct {
	Target     *core.Company         // Resolved target profile
	Edges      []core.SimilarityEdge // Validated edges, best first
	Considered int                   // How many candidates were scored
}

// candidate is one potential similar company before validation.
type candidate struct {
	name      string
	website   string
	discovery string // vector, llm, or search
	company   *core.Company
}

// Discover finds similar companies for the named target. A target already in
// the store runs known-mode (vector index + LLM suggestions); an absent
// target is researched first, after which candidates come from web search.
func (d *Discoverer) Discover(ctx context.Context, name, website string) (*Result, error) {
	key := docstore.CanonicalKey(name, website)
	target, err := d.store.GetCompanyByKey(key)
	if err != nil {
		return nil, err
	}

	var candidates []candidate
	if target != nil && len(target.Embedding) > 0 {
		candidates, err = d.knownModeCandidates(ctx, target)
	} else {
		target, candidates, err = d.unknownModeCandidates(ctx, name, website)
	}
	if err != nil {
		return nil, err
	}

	resolved := d.resolve(ctx, target, candidates)
	edges := d.validate(ctx, target, resolved)

	sort.SliceStable(edges, func(i, j int) bool {
		if edges[i].Score != edges[j].Score {
			return edges[i].Score > edges[j].Score
		}
		return edges[i].TargetID < edges[j].TargetID
	})

	if err := d.writeEdges(ctx, target, edges); err != nil {
		return nil, err
	}
	return &Result{Target: target, Edges: edges, Considered: len(resolved)}, nil
}

// knownModeCandidates gathers vector neighbors and LLM suggestions
// concurrently and merges them.
func (d *Discoverer) knownModeCandidates(ctx context.Context, target *core.Company) ([]candidate, error) {
	var vectorCands, llmCands []candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		matches, err := d.gateway.Query(gctx, target.Embedding, d.topK+1, nil)
		if err != nil {
			// The index being unavailable only narrows the candidate pool.
			logger.Warn("vector candidate query failed", "company", target.Name, "error", err)
			return nil
		}
		for _, m := range matches {
			if m.ID == target.ID {
				continue
			}
			vectorCands = append(vectorCands, candidate{
				name:      metaString(m.Metadata, "name"),
				website:   metaString(m.Metadata, "website"),
				discovery: "vector",
				company:   &core.Company{ID: m.ID},
			})
		}
		return nil
	})
	g.Go(func() error {
		cands, err := d.suggestCandidates(gctx, target)
		if err != nil {
			logger.Warn("llm candidate generation failed", "company", target.Name, "error", err)
			return nil
		}
		llmCands = cands
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return dedupe(target, append(vectorCands, llmCands...)), nil
}

// unknownModeCandidates researches the target first, then mines web search
// results for candidate companies.
func (d *Discoverer) unknownModeCandidates(ctx context.Context, name, website string) (*core.Company, []candidate, error) {
	if d.researcher == nil {
		return nil, nil, core.Ef(core.KindInvalidCompanyName, "company %q is not in the store and no researcher is configured", name)
	}
	target, err := d.researcher.ResearchSync(ctx, name, website)
	if err != nil {
		return nil, nil, err
	}

	if d.registry == nil {
		// Without search the fresh profile still supports known-mode.
		cands, err := d.knownModeCandidates(ctx, target)
		return target, cands, err
	}

	query := fmt.Sprintf("companies similar to %s %s", target.Name, target.Industry)
	results, err := d.registry.SearchAll(ctx, query, search.Params{MaxResults: 10})
	if err != nil {
		if core.IsKind(err, core.KindNoSearchResults) {
			logger.Warn("search yielded no candidates, using known mode", "company", target.Name)
			cands, kerr := d.knownModeCandidates(ctx, target)
			return target, cands, kerr
		}
		return nil, nil, err
	}

	cands, err := d.extractCandidates(ctx, target, results)
	if err != nil {
		logger.Warn("candidate extraction failed", "company", target.Name, "error", err)
		cands = nil
	}
	return target, dedupe(target, cands), nil
}

// suggestCandidates asks the model for similar companies from its own
// knowledge of the market.
func (d *Discoverer) suggestCandidates(ctx context.Context, target *core.Company) ([]candidate, error) {
	prompt := fmt.Sprintf(`Given this company profile, list up to %d real companies that are close competitors or highly similar businesses.

Company: %s
Industry: %s
Business model: %s
Target market: %s
Key services: %s
Description: %s

Respond with a JSON array of objects: [{"name": "Company", "website": "https://example.com"}]
Respond with JSON only.`,
		d.llmCandidates, target.Name, target.Industry, target.BusinessModel,
		target.TargetMarket, strings.Join(target.KeyServices, ", "), target.Description)

	return d.candidatesFromPrompt(ctx, prompt, "llm")
}

// extractCandidates mines company names out of search result summaries.
func (d *Discoverer) extractCandidates(ctx context.Context, target *core.Company, results []search.Result) ([]candidate, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `The following are web search results about companies similar to %q. Extract the distinct companies mentioned, up to %d.

`, target.Name, d.llmCandidates)
	for _, r := range results {
		fmt.Fprintf(&b, "- %s (%s): %s\n", r.Title, r.URL, r.Snippet)
	}
	b.WriteString(`
Respond with a JSON array of objects: [{"name": "Company", "website": "https://example.com"}]
Exclude the target company itself. Respond with JSON only.`)

	return d.candidatesFromPrompt(ctx, b.String(), "search")
}

func (d *Discoverer) candidatesFromPrompt(ctx context.Context, prompt, discovery string) ([]candidate, error) {
	resp, err := llm.CompleteWithRetry(ctx, d.provider, llm.Request{
		Prompt:     prompt,
		JSONOutput: true,
	}, llm.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		Name    string `json:"name"`
		Website string `json:"website"`
	}
	if err := llm.ExtractJSONArray(resp.Text, &parsed); err != nil {
		return nil, err
	}

	cands := make([]candidate, 0, len(parsed))
	for _, p := range parsed {
		if strings.TrimSpace(p.Name) == "" {
			continue
		}
		cands = append(cands, candidate{
			name:      strings.TrimSpace(p.Name),
			website:   strings.TrimSpace(p.Website),
			discovery: discovery,
		})
	}
	return cands, nil
}

// dedupe drops the target itself and folds candidates that refer to the same
// company under different discovery paths.
func dedupe(target *core.Company, cands []candidate) []candidate {
	selfKey := docstore.CanonicalKey(target.Name, target.Website)
	seen := make(map[string]bool)
	var out []candidate
	for _, c := range cands {
		key := docstore.CanonicalKey(c.name, c.website)
		if c.company != nil && c.company.ID != "" {
			key = "id|" + c.company.ID
		}
		if key == selfKey || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// resolve attaches full profiles to candidates, researching absent ones
// while the budget lasts.
func (d *Discoverer) resolve(ctx context.Context, target *core.Company, cands []candidate) []candidate {
	budget := d.budget
	var resolved []candidate
	seenID := map[string]bool{target.ID: true}

	for _, c := range cands {
		if ctx.Err() != nil {
			break
		}
		company := d.lookupCandidate(c)
		if company == nil && budget > 0 && d.researcher != nil {
			budget--
			researched, err := d.researcher.ResearchSync(ctx, c.name, c.website)
			if err != nil {
				logger.Warn("candidate research failed", "candidate", c.name, "error", err)
				continue
			}
			company = researched
		}
		if company == nil || len(company.Embedding) == 0 || seenID[company.ID] {
			continue
		}
		seenID[company.ID] = true
		c.company = company
		resolved = append(resolved, c)
	}
	return resolved
}

func (d *Discoverer) lookupCandidate(c candidate) *core.Company {
	if c.company != nil && c.company.ID != "" {
		company, err := d.store.GetCompany(c.company.ID)
		if err != nil {
			logger.Warn("candidate profile read failed", "id", c.company.ID, "error", err)
			return nil
		}
		return company
	}
	company, err := d.store.GetCompanyByKey(docstore.CanonicalKey(c.name, c.website))
	if err != nil {
		logger.Warn("candidate profile read failed", "candidate", c.name, "error", err)
		return nil
	}
	return company
}

// validate scores each candidate with all three methods and keeps those
// where at least two methods clear the threshold.
func (d *Discoverer) validate(ctx context.Context, target *core.Company, cands []candidate) []core.SimilarityEdge {
	type outcome struct {
		edge core.SimilarityEdge
		keep bool
	}
	outcomes := make([]outcome, len(cands))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateParallelism)
	for i, c := range cands {
		g.Go(func() error {
			methods := core.MethodScores{
				Structured: StructuredScore(target, c.company, d.weights),
				Embedding:  clamp01(llm.CosineSimilarity(target.Embedding, c.company.Embedding)),
				LLMJudge:   d.judge(gctx, target, c.company),
			}
			votes := 0
			for _, s := range []float64{methods.Structured, methods.Embedding, methods.LLMJudge} {
				if s >= d.threshold {
					votes++
				}
			}
			if votes < 2 {
				return nil
			}
			composite := (methods.Structured + methods.Embedding + methods.LLMJudge) / 3
			outcomes[i] = outcome{
				edge: core.SimilarityEdge{
					SourceID:  target.ID,
					TargetID:  c.company.ID,
					Score:     composite,
					Methods:   methods,
					Discovery: c.discovery,
					CreatedAt: time.Now().UTC(),
				},
				keep: true,
			}
			return nil
		})
	}
	_ = g.Wait()

	var edges []core.SimilarityEdge
	for _, o := range outcomes {
		if o.keep {
			edges = append(edges, o.edge)
		}
	}
	return edges
}

// judge asks the model to assess the pair directly. Any failure scores 0:
// the method simply does not vote.
func (d *Discoverer) judge(ctx context.Context, a, b *core.Company) float64 {
	prompt := fmt.Sprintf(`Rate how similar these two companies are as businesses, from 0.0 (unrelated) to 1.0 (near-identical competitors). Consider industry, customers, offering, and business model.

Company A: %s
%s

Company B: %s
%s

Respond with a JSON object: {"score": 0.0, "rationale": "one sentence"}
Respond with JSON only.`, a.Name, profileSummary(a), b.Name, profileSummary(b))

	resp, err := llm.CompleteWithRetry(ctx, d.provider, llm.Request{
		Prompt:     prompt,
		JSONOutput: true,
	}, llm.DefaultRetryConfig())
	if err != nil {
		logger.Warn("similarity judge call failed", "pair", a.Name+"/"+b.Name, "error", err)
		return 0
	}

	var verdict struct {
		Score     float64 `json:"score"`
		Rationale string  `json:"rationale"`
	}
	if err := llm.ExtractJSONObject(resp.Text, &verdict); err != nil {
		logger.Warn("similarity judge response unparseable", "pair", a.Name+"/"+b.Name, "error", err)
		return 0
	}
	return clamp01(verdict.Score)
}

func profileSummary(c *core.Company) string {
	return fmt.Sprintf("Industry: %s. Business model: %s. Target market: %s. Services: %s. Description: %s",
		c.Industry, c.BusinessModel, c.TargetMarket, strings.Join(c.KeyServices, ", "), c.Description)
}

// writeEdges replaces the target's edge list wholesale and mirrors each edge
// onto the other endpoint.
func (d *Discoverer) writeEdges(ctx context.Context, target *core.Company, edges []core.SimilarityEdge) error {
	if err := d.gateway.SetEdges(ctx, target.ID, edges); err != nil {
		return err
	}
	for _, edge := range edges {
		existing, err := d.gateway.Edges(ctx, edge.TargetID)
		if err != nil {
			logger.Warn("reverse edge read failed", "id", edge.TargetID, "error", err)
			continue
		}
		kept := existing[:0]
		for _, e := range existing {
			if e.TargetID != target.ID {
				kept = append(kept, e)
			}
		}
		kept = append(kept, core.SimilarityEdge{
			SourceID:  edge.TargetID,
			TargetID:  target.ID,
			Score:     edge.Score,
			Methods:   edge.Methods,
			Discovery: edge.Discovery,
			CreatedAt: edge.CreatedAt,
		})
		if err := d.gateway.SetEdges(ctx, edge.TargetID, kept); err != nil {
			logger.Warn("reverse edge write failed", "id", edge.TargetID, "error", err)
		}
	}
	return nil
}

func metaString(metadata map[string]any, key string) string {
	if v, ok := metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
