// Package aggregate turns fetched page text into a structured company
// profile plus an embedding. One LLM call handles the common case; oversized
// inputs are sharded map-reduce style before the final extraction.
package aggregate

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"prospect/internal/core"
	"prospect/internal/cost"
	"prospect/internal/llm"
	"prospect/internal/logger"
)

const (
	// DefaultPerPageChars caps how much of one page feeds the prompt.
	DefaultPerPageChars = 10_000
	// DefaultAggregateChars caps the total corpus across all pages.
	DefaultAggregateChars = 500_000
	// DefaultShards is how many shard summaries run concurrently.
	DefaultShards = 4
	// defaultInputTokenBudget is the single-call ceiling; above it the
	// map-reduce path kicks in.
	defaultInputTokenBudget = 200_000
	// embeddingTextCap bounds the embedding input in characters.
	embeddingTextCap = 8_000
)

// Aggregator extracts company profiles from page content.
type Aggregator struct {
	provider       llm.Provider
	counter        *cost.Counter
	perPageChars   int
	aggregateChars int
	shards         int
	tokenBudget    int
	embeddingModel string
	tally          *cost.Tally
	retry          llm.RetryConfig
}

// Option customizes an Aggregator.
type Option func(*Aggregator)

// WithPerPageChars caps per-page prompt contribution.
func WithPerPageChars(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.perPageChars = n
		}
	}
}

// WithAggregateChars caps the total corpus size.
func WithAggregateChars(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.aggregateChars = n
		}
	}
}

// WithShards sets the map-reduce shard parallelism.
func WithShards(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.shards = n
		}
	}
}

// WithTokenBudget overrides the single-call input budget.
func WithTokenBudget(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.tokenBudget = n
		}
	}
}

// WithEmbeddingModel overrides the embedding model identifier.
func WithEmbeddingModel(model string) Option {
	return func(a *Aggregator) {
		if model != "" {
			a.embeddingModel = model
		}
	}
}

// WithTally records LLM usage into t.
func WithTally(t *cost.Tally) Option {
	return func(a *Aggregator) { a.tally = t }
}

// WithRetryConfig overrides the rate-limit retry policy.
func WithRetryConfig(cfg llm.RetryConfig) Option {
	return func(a *Aggregator) { a.retry = cfg }
}

// New creates an Aggregator backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Aggregator {
	counter, err := cost.NewCounter("")
	if err != nil {
		counter = nil
	}
	a := &Aggregator{
		provider:       provider,
		counter:        counter,
		perPageChars:   DefaultPerPageChars,
		aggregateChars: DefaultAggregateChars,
		shards:         DefaultShards,
		tokenBudget:    defaultInputTokenBudget,
		retry:          llm.DefaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate builds a company profile from the fetched pages. The returned
// Company carries profile fields, embedding, and provenance, but no ID; the
// caller owns identity and persistence.
func (a *Aggregator) Aggregate(ctx context.Context, name, website string, pages []core.PageContent) (*core.Company, error) {
	if len(pages) == 0 {
		return nil, core.E(core.KindContentTooLarge, "no page content to aggregate")
	}

	corpus := a.buildCorpus(pages)
	raw, err := a.extract(ctx, name, corpus)
	if err != nil {
		return nil, err
	}

	company := &core.Company{Name: name, Website: website}
	payload, parseErr := a.parseProfile(ctx, raw)
	if parseErr != nil {
		// The model never produced valid JSON; keep the raw output as the
		// embedding basis and flag the profile.
		logger.Warn("profile extraction unparseable, storing low quality", "company", name, "error", parseErr)
		company.LowQuality = true
		company.EmbeddingText = normalizeEmbeddingText(name + " " + raw)
	} else {
		applyPayload(company, payload)
		if profileEmpty(company) {
			company.LowQuality = true
		}
		company.EmbeddingText = buildEmbeddingText(company)
	}

	for _, p := range pages {
		company.SourceURLs = append(company.SourceURLs, p.URL)
	}

	if err := a.embed(ctx, company); err != nil {
		return nil, err
	}
	return company, nil
}

// buildCorpus concatenates page text under the per-page and total caps.
func (a *Aggregator) buildCorpus(pages []core.PageContent) string {
	var b strings.Builder
	for _, p := range pages {
		if b.Len() >= a.aggregateChars {
			break
		}
		text := p.Text
		if len(text) > a.perPageChars {
			text = text[:a.perPageChars]
		}
		remaining := a.aggregateChars - b.Len()
		if len(text) > remaining {
			text = text[:remaining]
		}
		fmt.Fprintf(&b, "=== PAGE: %s", p.URL)
		if p.Title != "" {
			fmt.Fprintf(&b, " (%s)", p.Title)
		}
		b.WriteString(" ===\n")
		b.WriteString(text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// extract returns the raw model output for the profile-extraction prompt,
// sharding the corpus first when it exceeds the input budget.
func (a *Aggregator) extract(ctx context.Context, name, corpus string) (string, error) {
	prompt := extractionPrompt(name, corpus)
	if a.countTokens(prompt) <= a.tokenBudget {
		return a.complete(ctx, prompt, true)
	}

	summaries, err := a.summarizeShards(ctx, name, corpus)
	if err != nil {
		return "", err
	}
	return a.complete(ctx, extractionPrompt(name, strings.Join(summaries, "\n\n")), true)
}

// summarizeShards splits the corpus into shard-sized chunks and condenses
// each one concurrently.
func (a *Aggregator) summarizeShards(ctx context.Context, name, corpus string) ([]string, error) {
	// Size each shard so its summarization prompt fits the budget, leaving
	// headroom for the instructions. The 3.5 chars/token heuristic mirrors
	// the token estimator's fallback.
	shardChars := int(float64(a.tokenBudget) * 3.5 * 0.8)
	var chunks []string
	for start := 0; start < len(corpus); start += shardChars {
		end := start + shardChars
		if end > len(corpus) {
			end = len(corpus)
		}
		chunks = append(chunks, corpus[start:end])
	}

	summaries := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.shards)
	for i, chunk := range chunks {
		g.Go(func() error {
			// Shard summaries are prose, not JSON.
			out, err := a.complete(gctx, shardPrompt(name, chunk), false)
			if err != nil {
				return err
			}
			summaries[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// parseProfile decodes the extraction output, issuing one repair prompt when
// the first parse fails.
func (a *Aggregator) parseProfile(ctx context.Context, raw string) (*profilePayload, error) {
	var payload profilePayload
	if err := llm.ExtractJSONObject(raw, &payload); err == nil {
		return &payload, nil
	}

	repaired, err := a.complete(ctx, llm.RepairPrompt(raw), true)
	if err != nil {
		return nil, err
	}
	if err := llm.ExtractJSONObject(repaired, &payload); err != nil {
		return nil, core.E(core.KindLLMUnparseable, "profile JSON unparseable after repair", err)
	}
	return &payload, nil
}

func (a *Aggregator) complete(ctx context.Context, prompt string, jsonOutput bool) (string, error) {
	resp, err := llm.CompleteWithRetry(ctx, a.provider, llm.Request{
		Prompt:     prompt,
		JSONOutput: jsonOutput,
	}, a.retry)
	if err != nil {
		return "", err
	}
	if a.tally != nil {
		a.tally.Add(resp.Model, resp.InputTokens, resp.OutputTokens)
	}
	return resp.Text, nil
}

func (a *Aggregator) embed(ctx context.Context, company *core.Company) error {
	text := company.EmbeddingText
	if len(text) > embeddingTextCap {
		text = text[:embeddingTextCap]
		company.EmbeddingText = text
	}
	emb, err := a.provider.Embed(ctx, text, a.embeddingModel)
	if err != nil {
		return err
	}
	if a.tally != nil {
		a.tally.Add(emb.Model, emb.InputTokens, 0)
	}
	company.Embedding = emb.Vector
	company.EmbeddingModel = emb.Model
	return nil
}

func (a *Aggregator) countTokens(text string) int {
	if a.counter != nil {
		return a.counter.Count(text)
	}
	return cost.EstimateTokens(text)
}
