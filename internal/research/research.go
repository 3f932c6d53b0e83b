// Package research orchestrates the four-phase pipeline that turns a company
// name and website into a persisted intelligence profile. The Engine owns job
// lifecycle: admission, state transitions, progress events, cancellation, and
// the commit into the vector index and document store.
package research

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"prospect/internal/aggregate"
	"prospect/internal/config"
	"prospect/internal/core"
	"prospect/internal/cost"
	"prospect/internal/discovery"
	"prospect/internal/docstore"
	"prospect/internal/fetch"
	"prospect/internal/llm"
	"prospect/internal/logger"
	"prospect/internal/progress"
	"prospect/internal/search"
	"prospect/internal/selector"
	"prospect/internal/vectorstore"
)

const (
	// DefaultMaxConcurrentJobs bounds pipelines running at once.
	DefaultMaxConcurrentJobs = 3
	// DefaultJobDeadline bounds one pipeline end to end.
	DefaultJobDeadline = 8 * time.Minute
	// DefaultStaleness is how long a completed profile satisfies new requests.
	DefaultStaleness = 30 * 24 * time.Hour
	// DefaultJobRetention is how long a terminal job stays queryable before
	// its record and progress stream are dropped.
	DefaultJobRetention = time.Hour
)

// Engine runs research jobs and exposes their lifecycle.
type Engine struct {
	provider llm.Provider
	store    *docstore.Store
	gateway  *vectorstore.Gateway
	bus      *progress.Bus
	cancels  *progress.CancelRegistry
	registry *search.Registry

	client     *fetch.Client
	discoverer *discovery.Discoverer
	pool       *fetch.Pool

	sem       *semaphore.Weighted
	deadline  time.Duration
	staleness time.Duration
	retention time.Duration

	selectorMaxPages int
	shards           int
	perPageChars     int
	aggregateChars   int
	embeddingModel   string

	mu       sync.Mutex
	jobs     map[string]*core.ResearchJob
	inflight map[string]string        // canonical key -> running job id
	done     map[string]chan struct{} // job id -> closed on terminal
	results  map[string]*core.Company // job id -> committed profile
}

// Option customizes an Engine.
type Option func(*Engine)

// WithMaxConcurrentJobs sets the global pipeline cap.
func WithMaxConcurrentJobs(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithJobDeadline sets the per-job wall clock limit.
func WithJobDeadline(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.deadline = d
		}
	}
}

// WithStaleness sets how long a completed profile stays fresh.
func WithStaleness(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.staleness = d
		}
	}
}

// WithJobRetention sets how long terminal jobs stay queryable.
func WithJobRetention(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retention = d
		}
	}
}

// WithFetchClient replaces the shared HTTP client.
func WithFetchClient(c *fetch.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithDiscoverer replaces the phase-one crawler.
func WithDiscoverer(d *discovery.Discoverer) Option {
	return func(e *Engine) { e.discoverer = d }
}

// WithPool replaces the phase-three fetch pool.
func WithPool(p *fetch.Pool) Option {
	return func(e *Engine) { e.pool = p }
}

// WithSelectorMaxPages caps how many pages phase two may pick.
func WithSelectorMaxPages(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.selectorMaxPages = n
		}
	}
}

// WithAggregatorShards sets map-reduce width for oversized corpora.
func WithAggregatorShards(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.shards = n
		}
	}
}

// WithContentCaps sets the per-page and total character caps.
func WithContentCaps(perPage, total int) Option {
	return func(e *Engine) {
		if perPage > 0 {
			e.perPageChars = perPage
		}
		if total > 0 {
			e.aggregateChars = total
		}
	}
}

// WithEmbeddingModel names the embedding model recorded on profiles.
func WithEmbeddingModel(model string) Option {
	return func(e *Engine) { e.embeddingModel = model }
}

// WithSearchRegistry enables website resolution for name-only requests.
func WithSearchRegistry(r *search.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// New builds an Engine over the given provider and stores.
func New(provider llm.Provider, store *docstore.Store, gateway *vectorstore.Gateway, bus *progress.Bus, opts ...Option) *Engine {
	e := &Engine{
		provider:         provider,
		store:            store,
		gateway:          gateway,
		bus:              bus,
		cancels:          progress.NewCancelRegistry(),
		sem:              semaphore.NewWeighted(DefaultMaxConcurrentJobs),
		deadline:         DefaultJobDeadline,
		staleness:        DefaultStaleness,
		retention:        DefaultJobRetention,
		selectorMaxPages: selector.DefaultMaxPages,
		shards:           aggregate.DefaultShards,
		perPageChars:     aggregate.DefaultPerPageChars,
		aggregateChars:   aggregate.DefaultAggregateChars,
		jobs:             make(map[string]*core.ResearchJob),
		inflight:         make(map[string]string),
		done:             make(map[string]chan struct{}),
		results:          make(map[string]*core.Company),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.client == nil {
		e.client = fetch.NewClient()
	}
	if e.discoverer == nil {
		e.discoverer = discovery.New(e.client)
	}
	if e.pool == nil {
		e.pool = fetch.NewPool(e.client)
	}
	return e
}

// FromConfig assembles an Engine from the loaded configuration.
func FromConfig(provider llm.Provider, store *docstore.Store, gateway *vectorstore.Gateway, bus *progress.Bus, registry *search.Registry, cfg *config.Config) *Engine {
	p := cfg.Pipeline
	client := fetch.NewClient(
		fetch.WithUserAgent(p.UserAgent),
		fetch.WithTimeout(config.Duration(p.FetchTimeout, 15*time.Second)),
		fetch.WithBodyCap(p.PerPageBytes),
	)
	return New(provider, store, gateway, bus,
		WithFetchClient(client),
		WithDiscoverer(discovery.New(client,
			discovery.WithMaxCandidates(p.MaxCandidates),
			discovery.WithDeadline(config.Duration(p.DiscoveryTimeout, time.Minute)),
		)),
		WithPool(fetch.NewPool(client, fetch.WithParallelism(p.FetcherParallelism))),
		WithMaxConcurrentJobs(p.MaxConcurrentJobs),
		WithJobDeadline(config.Duration(p.JobDeadline, DefaultJobDeadline)),
		WithStaleness(p.Staleness()),
		WithSelectorMaxPages(p.SelectorMaxPages),
		WithAggregatorShards(p.AggregatorShards),
		WithContentCaps(p.PerPageChars, p.AggregateChars),
		WithEmbeddingModel(cfg.AI.Gemini.EmbeddingModel),
		WithSearchRegistry(registry),
	)
}

// Research admits a job for the named company and returns its job id. A
// fresh profile under the same canonical key completes immediately without
// re-running; a second request while a job for the key is in flight attaches
// to the running job.
func (e *Engine) Research(ctx context.Context, name, website string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", core.E(core.KindInvalidCompanyName, "company name cannot be empty")
	}
	if website != "" {
		normalized, err := discovery.Normalize(website)
		if err != nil {
			return "", core.E(core.KindInvalidURL, fmt.Sprintf("website %q is not a valid URL", website), err)
		}
		website = normalized
	}
	key := docstore.CanonicalKey(name, website)

	e.mu.Lock()
	if jobID, running := e.inflight[key]; running {
		e.mu.Unlock()
		logger.Debug("attaching to in-flight job", "company", name, "job", jobID)
		return jobID, nil
	}
	e.mu.Unlock()

	existing, err := e.store.GetFreshCompany(key, e.staleness)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return e.admitFresh(name, website, existing), nil
	}

	job := &core.ResearchJob{
		ID:          uuid.NewString(),
		CompanyID:   uuid.NewString(),
		CompanyName: name,
		Website:     website,
		State:       core.StateQueued,
		CreatedAt:   time.Now().UTC(),
	}

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.inflight[key] = job.ID
	e.done[job.ID] = make(chan struct{})
	e.mu.Unlock()

	e.bus.StateChanged(job.ID, core.StateQueued, "queued")
	go e.run(job, key)
	return job.ID, nil
}

// admitFresh records an already-completed job backed by a stored profile.
func (e *Engine) admitFresh(name, website string, company *core.Company) string {
	now := time.Now().UTC()
	job := &core.ResearchJob{
		ID:          uuid.NewString(),
		CompanyID:   company.ID,
		CompanyName: name,
		Website:     website,
		State:       core.StateCompleted,
		CreatedAt:   now,
		StartedAt:   now,
		CompletedAt: now,
	}
	ch := make(chan struct{})
	close(ch)

	e.mu.Lock()
	e.jobs[job.ID] = job
	e.done[job.ID] = ch
	e.results[job.ID] = company
	e.mu.Unlock()

	e.bus.StateChanged(job.ID, core.StateCompleted, "profile is fresh, reusing stored research")
	e.forgetAfterRetention(job.ID)
	return job.ID
}

// forgetAfterRetention drops a terminal job's bookkeeping and the bus's
// retained terminal event once the retention window passes. The audit row in
// the document store is the durable record.
func (e *Engine) forgetAfterRetention(jobID string) {
	time.AfterFunc(e.retention, func() {
		e.mu.Lock()
		delete(e.jobs, jobID)
		delete(e.done, jobID)
		delete(e.results, jobID)
		e.mu.Unlock()
		e.bus.Forget(jobID)
	})
}

// Status returns a copy of the job record.
func (e *Engine) Status(jobID string) (*core.ResearchJob, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	job, ok := e.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}
	cp := *job
	cp.Phases = append([]core.PhaseMetrics(nil), job.Phases...)
	return &cp, nil
}

// Cancel requests cancellation. It reports false when the job is unknown or
// already terminal.
func (e *Engine) Cancel(jobID string) bool {
	return e.cancels.Cancel(jobID)
}

// Subscribe returns the job's ordered progress stream.
func (e *Engine) Subscribe(ctx context.Context, jobID string) <-chan progress.Event {
	return e.bus.Subscribe(ctx, jobID)
}

// GetCompany reads a stored profile by id.
func (e *Engine) GetCompany(id string) (*core.Company, error) {
	company, err := e.store.GetCompany(id)
	if err != nil {
		return nil, err
	}
	if company == nil {
		return nil, fmt.Errorf("unknown company %q", id)
	}
	return company, nil
}

// Await blocks until the job reaches a terminal state, then returns the
// committed profile or the job's error.
func (e *Engine) Await(ctx context.Context, jobID string) (*core.Company, error) {
	e.mu.Lock()
	ch, ok := e.done[jobID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown job %q", jobID)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ch:
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	job := e.jobs[jobID]
	switch job.State {
	case core.StateCompleted:
		return e.results[jobID], nil
	case core.StateCancelled:
		return nil, core.E(core.KindCancelled, "research was cancelled")
	default:
		return nil, core.E(job.ErrorKind, job.ErrorMessage)
	}
}

// ResearchSync runs a job to completion. The similarity discoverer uses it
// to fill in absent candidates.
func (e *Engine) ResearchSync(ctx context.Context, name, website string) (*core.Company, error) {
	jobID, err := e.Research(ctx, name, website)
	if err != nil {
		return nil, err
	}
	return e.Await(ctx, jobID)
}

// run executes one pipeline. The job owns its own context so it survives
// the admitting request; the cancel registry and deadline bound it.
func (e *Engine) run(job *core.ResearchJob, key string) {
	base, cancel := context.WithCancel(context.Background())
	e.cancels.Register(job.ID, cancel)
	ctx, cancelDeadline := context.WithTimeout(base, e.deadline)

	defer func() {
		cancelDeadline()
		cancel()
		e.cancels.Remove(job.ID)
		e.mu.Lock()
		delete(e.inflight, key)
		ch := e.done[job.ID]
		e.mu.Unlock()
		close(ch)
		e.forgetAfterRetention(job.ID)
	}()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		e.fail(job, err)
		return
	}
	defer e.sem.Release(1)

	e.mu.Lock()
	job.StartedAt = time.Now().UTC()
	e.mu.Unlock()

	tally := &cost.Tally{}
	company, err := e.pipeline(ctx, job, tally)
	if err != nil {
		e.fail(job, err)
		return
	}
	if err := e.commit(ctx, job, company); err != nil {
		e.fail(job, err)
		return
	}

	e.mu.Lock()
	e.results[job.ID] = company
	e.mu.Unlock()
	e.finishPhase(job, tally)
	e.transition(job, core.StateCompleted, fmt.Sprintf("profile ready for %s", job.CompanyName))
	e.audit(job)
}

// pipeline runs the four phases and returns the uncommitted profile.
func (e *Engine) pipeline(ctx context.Context, job *core.ResearchJob, tally *cost.Tally) (*core.Company, error) {
	// Phase 1: link discovery.
	e.transition(job, core.StateDiscovering, "crawling site for candidate pages")
	e.startPhase(job, core.StateDiscovering, tally)
	if job.Website == "" {
		website, err := e.resolveWebsite(ctx, job.CompanyName)
		if err != nil {
			return nil, err
		}
		e.mu.Lock()
		job.Website = website
		e.mu.Unlock()
	}
	disc, err := e.discoverer.Discover(ctx, job.Website)
	if err != nil {
		return nil, err
	}
	if disc.RobotsBlocked {
		e.bus.Warn(job.ID, string(core.StateDiscovering), core.KindRobotsBlocked,
			"robots.txt disallows crawling; proceeding with the homepage only")
	}
	e.finishPhase(job, tally)

	// Phase 2: page selection.
	e.transition(job, core.StateSelecting, fmt.Sprintf("selecting from %d candidate pages", len(disc.Candidates)))
	e.startPhase(job, core.StateSelecting, tally)
	sel := selector.New(e.provider,
		selector.WithMaxPages(e.selectorMaxPages),
		selector.WithTally(tally),
	)
	selection, err := sel.Select(ctx, job.CompanyName, disc.Candidates, disc.Anchors)
	if err != nil {
		return nil, err
	}
	if selection.Heuristic {
		e.bus.Warn(job.ID, string(core.StateSelecting), core.KindSelectorUnparseable,
			"model selection was unusable; fell back to heuristic page ranking")
	}
	e.finishPhase(job, tally)

	// Phase 3: parallel fetch.
	e.transition(job, core.StateFetching, fmt.Sprintf("fetching %d pages", len(selection.URLs)))
	e.startPhase(job, core.StateFetching, tally)
	pages, pageErrs := e.pool.FetchAll(ctx, selection.URLs, func(done, total int, url string, err error) {
		e.bus.PhaseUpdate(job.ID, string(core.StateFetching), done, total, url)
	})
	for _, pe := range pageErrs {
		e.bus.Warn(job.ID, string(core.StateFetching), core.KindOf(pe.Err), fmt.Sprintf("skipped %s", pe.URL))
	}
	if len(pages) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var cause error
		if len(pageErrs) > 0 {
			cause = pageErrs[0].Err
		}
		return nil, core.E(core.KindFetchNetworkError, "no selected page could be fetched", cause)
	}
	e.finishPhase(job, tally)

	// Phase 4: aggregation.
	e.transition(job, core.StateAggregating, fmt.Sprintf("extracting profile from %d pages", len(pages)))
	e.startPhase(job, core.StateAggregating, tally)
	agg := aggregate.New(e.provider,
		aggregate.WithShards(e.shards),
		aggregate.WithPerPageChars(e.perPageChars),
		aggregate.WithAggregateChars(e.aggregateChars),
		aggregate.WithEmbeddingModel(e.embeddingModel),
		aggregate.WithTally(tally),
	)
	company, err := agg.Aggregate(ctx, job.CompanyName, job.Website, pages)
	if err != nil {
		return nil, err
	}
	if company.LowQuality {
		e.bus.Warn(job.ID, string(core.StateAggregating), core.KindLLMUnparseable,
			"profile fields are partial; stored as low quality")
	}

	e.decorate(job, company, tally)
	return company, nil
}

// decorate stamps identity, provenance, and spend onto the profile.
func (e *Engine) decorate(job *core.ResearchJob, company *core.Company, tally *cost.Tally) {
	company.ID = job.CompanyID
	company.Name = job.CompanyName
	company.Website = job.Website
	company.ResearchedAt = time.Now().UTC()

	_, in, out, usd := tally.Snapshot()
	company.InputTokens = in
	company.OutputTokens = out
	company.EstimatedCost = usd

	e.mu.Lock()
	defer e.mu.Unlock()
	company.PhaseDurations = make(map[string]time.Duration, len(job.Phases))
	for _, p := range job.Phases {
		d := p.Duration
		if d == 0 && !p.StartedAt.IsZero() {
			d = time.Since(p.StartedAt)
		}
		company.PhaseDurations[p.Phase] = d
	}
}

// commit persists the profile: vector record first, then the document row.
// A document write failure rolls the vector record back so the two stores
// never disagree. A cancelled job commits nothing.
func (e *Engine) commit(ctx context.Context, job *core.ResearchJob, company *core.Company) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// A prior profile under the same canonical key keeps its identity so
	// the vector record is overwritten rather than duplicated.
	key := docstore.CanonicalKey(company.Name, company.Website)
	prior, err := e.store.GetCompanyByKey(key)
	if err != nil {
		return err
	}
	if prior != nil {
		company.ID = prior.ID
		e.mu.Lock()
		job.CompanyID = prior.ID
		e.mu.Unlock()
		if prior.EmbeddingText == company.EmbeddingText && len(prior.Embedding) == len(company.Embedding) {
			// Unchanged embedding text: keep the stored vector so similarity
			// edges computed against it stay exact.
			company.Embedding = prior.Embedding
		}
	}

	metadata := companyMetadata(company)
	if rec, err := e.gateway.Fetch(ctx, company.ID); err == nil {
		// Preserve similarity edges across re-research.
		if edges, ok := rec.Metadata[vectorstore.EdgeField]; ok {
			metadata[vectorstore.EdgeField] = edges
		}
	}
	if err := e.gateway.Upsert(ctx, company.ID, company.Embedding, metadata); err != nil {
		return err
	}

	if err := e.store.SaveCompany(company); err != nil {
		if delErr := e.gateway.Delete(ctx, company.ID); delErr != nil {
			logger.Error("compensating vector delete failed", delErr, "company", company.ID)
		}
		return err
	}
	return nil
}

// companyMetadata projects the profile onto the declared vector schema.
func companyMetadata(c *core.Company) map[string]any {
	return map[string]any{
		"name":             c.Name,
		"website":          c.Website,
		"industry":         c.Industry,
		"business_model":   string(c.BusinessModel),
		"stage":            string(c.Stage),
		"geographic_scope": string(c.Scope),
		"has_leadership":   len(c.Leadership) > 0,
		"services_count":   len(c.KeyServices),
		"embedding_model":  c.EmbeddingModel,
		"updated_at":       c.ResearchedAt.Format(time.RFC3339),
		"low_quality":      c.LowQuality,
	}
}

// resolveWebsite finds an official site for a name-only request.
func (e *Engine) resolveWebsite(ctx context.Context, name string) (string, error) {
	if e.registry == nil {
		return "", core.Ef(core.KindInvalidURL, "no website given for %q and search is not configured", name)
	}
	results, err := e.registry.SearchAll(ctx, name+" official website", search.Params{MaxResults: 5})
	if err != nil {
		return "", core.E(core.KindInvalidURL, fmt.Sprintf("could not resolve a website for %q", name), err)
	}
	for _, r := range results {
		if normalized, err := discovery.Normalize(r.URL); err == nil {
			return normalized, nil
		}
	}
	return "", core.Ef(core.KindInvalidURL, "search results for %q contained no usable website", name)
}

// transition moves the job forward and emits the state event. Illegal
// transitions (e.g. after a terminal state) are ignored.
func (e *Engine) transition(job *core.ResearchJob, next core.JobState, message string) bool {
	e.mu.Lock()
	if !job.State.CanTransition(next) {
		e.mu.Unlock()
		return false
	}
	job.State = next
	if next.IsTerminal() {
		job.CompletedAt = time.Now().UTC()
	}
	e.mu.Unlock()
	e.bus.StateChanged(job.ID, next, message)
	return true
}

// startPhase opens a metrics window for the phase about to run.
func (e *Engine) startPhase(job *core.ResearchJob, state core.JobState, tally *cost.Tally) {
	calls, in, out, usd := tally.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	job.Phases = append(job.Phases, core.PhaseMetrics{
		Phase:        string(state),
		StartedAt:    time.Now().UTC(),
		LLMCalls:     -calls,
		InputTokens:  -in,
		OutputTokens: -out,
		CostUSD:      -usd,
	})
}

// finishPhase closes the open metrics window, converting the negated
// baseline snapshot into this phase's deltas.
func (e *Engine) finishPhase(job *core.ResearchJob, tally *cost.Tally) {
	calls, in, out, usd := tally.Snapshot()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(job.Phases) == 0 {
		return
	}
	p := &job.Phases[len(job.Phases)-1]
	if !p.EndedAt.IsZero() {
		return
	}
	p.EndedAt = time.Now().UTC()
	p.Duration = p.EndedAt.Sub(p.StartedAt)
	p.LLMCalls += calls
	p.InputTokens += in
	p.OutputTokens += out
	p.CostUSD += usd
}

// fail drives the job to failed or cancelled and emits the terminal event.
func (e *Engine) fail(job *core.ResearchJob, err error) {
	if errors.Is(err, context.Canceled) || core.IsKind(err, core.KindCancelled) {
		e.mu.Lock()
		job.ErrorKind = core.KindCancelled
		job.ErrorMessage = "research was cancelled"
		e.mu.Unlock()
		e.transition(job, core.StateCancelled, "research was cancelled")
		e.audit(job)
		return
	}

	kind := core.KindOf(err)
	if errors.Is(err, context.DeadlineExceeded) {
		kind = core.KindDeadlineExceeded
	}
	if kind == "" {
		kind = core.KindLLMProviderError
	}
	message := userMessage(kind, job.CompanyName, err)

	e.mu.Lock()
	if job.State.IsTerminal() {
		e.mu.Unlock()
		return
	}
	job.State = core.StateFailed
	job.CompletedAt = time.Now().UTC()
	job.ErrorKind = kind
	job.ErrorMessage = message
	e.mu.Unlock()

	logger.Error("research job failed", err, "job", job.ID, "company", job.CompanyName, "kind", string(kind))
	e.bus.Failed(job.ID, kind, message)
	e.audit(job)
}

// audit persists the job record for later inspection. Best effort.
func (e *Engine) audit(job *core.ResearchJob) {
	e.mu.Lock()
	cp := *job
	cp.Phases = append([]core.PhaseMetrics(nil), job.Phases...)
	e.mu.Unlock()
	if err := e.store.SaveJob(&cp); err != nil {
		logger.Warn("job audit write failed", "job", job.ID, "error", err)
	}
}

// userMessage phrases a terminal failure for people.
func userMessage(kind core.ErrorKind, name string, err error) string {
	switch kind {
	case core.KindHomepageUnreachable:
		return fmt.Sprintf("could not reach the website for %s", name)
	case core.KindNoCandidatesFound:
		return fmt.Sprintf("found no crawlable pages for %s", name)
	case core.KindDeadlineExceeded:
		return fmt.Sprintf("research for %s exceeded its time limit", name)
	case core.KindLLMRateLimited:
		return "the language model is rate limiting requests; try again later"
	case core.KindFetchNetworkError:
		return fmt.Sprintf("none of the selected pages for %s could be fetched", name)
	default:
		var ce *core.Error
		if errors.As(err, &ce) {
			return ce.Message
		}
		return fmt.Sprintf("research for %s failed", name)
	}
}

