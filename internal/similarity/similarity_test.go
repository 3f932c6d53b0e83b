package similarity

import (
	"context"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"prospect/internal/core"
	"prospect/internal/docstore"
	"prospect/internal/llm"
	"prospect/internal/vectorstore"
)

// memDriver is an in-memory vector backend scoring by dot product.
type memDriver struct {
	mu      sync.Mutex
	records map[string]*core.VectorRecord
}

func newMemDriver() *memDriver {
	return &memDriver{records: make(map[string]*core.VectorRecord)}
}

func (d *memDriver) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	vc := append([]float64(nil), vector...)
	mc := make(map[string]any, len(metadata))
	for k, v := range metadata {
		mc[k] = v
	}
	d.records[id] = &core.VectorRecord{ID: id, Vector: vc, Metadata: mc}
	return nil
}

func (d *memDriver) Query(ctx context.Context, vector []float64, topK int, equality map[string]any) ([]vectorstore.Match, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var matches []vectorstore.Match
	for _, rec := range d.records {
		var dot float64
		for i := range vector {
			dot += vector[i] * rec.Vector[i]
		}
		matches = append(matches, vectorstore.Match{ID: rec.ID, Score: dot, Metadata: rec.Metadata})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (d *memDriver) Fetch(ctx context.Context, id string) (*core.VectorRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	rec, ok := d.records[id]
	if !ok {
		return nil, vectorstore.ErrNotFound
	}
	return rec, nil
}

func (d *memDriver) Delete(ctx context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, id)
	return nil
}

func (d *memDriver) Close() error { return nil }

type fakeResearcher struct {
	mu      sync.Mutex
	calls   int
	names   []string
	results map[string]*core.Company
}

func (f *fakeResearcher) ResearchSync(ctx context.Context, name, website string) (*core.Company, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.names = append(f.names, name)
	if c, ok := f.results[name]; ok {
		return c, nil
	}
	return &core.Company{ID: "researched-" + name, Name: name, Website: website}, nil
}

type testEnv struct {
	store   *docstore.Store
	gateway *vectorstore.Gateway
	mock    *llm.Mock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := docstore.New(t.TempDir())
	if err != nil {
		t.Fatalf("docstore.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return &testEnv{
		store:   store,
		gateway: vectorstore.NewGateway(newMemDriver(), 4, nil),
		mock:    llm.NewMock(4),
	}
}

func (e *testEnv) seed(t *testing.T, c *core.Company) {
	t.Helper()
	if err := e.store.SaveCompany(c); err != nil {
		t.Fatalf("SaveCompany(%s): %v", c.Name, err)
	}
	if len(c.Embedding) == 0 {
		return
	}
	err := e.gateway.Upsert(context.Background(), c.ID, c.Embedding, map[string]any{
		"name":    c.Name,
		"website": c.Website,
	})
	if err != nil {
		t.Fatalf("gateway.Upsert(%s): %v", c.Name, err)
	}
}

func saasCompany(id, name, website string, embedding []float64) *core.Company {
	return &core.Company{
		ID:            id,
		Name:          name,
		Website:       website,
		Industry:      "Software",
		BusinessModel: core.ModelSaaS,
		Description:   "Project tracking for small teams",
		TargetMarket:  "small businesses needing project tools",
		KeyServices:   []string{"project tracking", "time reporting"},
		TechStack:     []string{"Go", "PostgreSQL"},
		Embedding:     embedding,
		ResearchedAt:  time.Now().UTC(),
	}
}

const judgeHigh = `{"score": 0.9, "rationale": "direct competitors in the same niche"}`

func TestDiscoverKnownMode(t *testing.T) {
	env := newTestEnv(t)

	target := saasCompany("t1", "Tracker Co", "https://tracker.example.com", []float64{1, 0, 0, 0})
	near := saasCompany("a1", "Plannerly", "https://plannerly.example.com", []float64{1, 0, 0, 0})
	far := &core.Company{
		ID:            "b1",
		Name:          "Bakery Signs",
		Website:       "https://bakerysigns.example.com",
		Industry:      "Signage",
		BusinessModel: core.ModelB2C,
		TargetMarket:  "local bakeries",
		KeyServices:   []string{"storefront signs"},
		TechStack:     []string{"WordPress"},
		Embedding:     []float64{0, 1, 0, 0},
	}
	env.seed(t, target)
	env.seed(t, near)
	env.seed(t, far)

	// One suggestion call, then one judge call per resolved candidate.
	env.mock.Enqueue(
		llm.MockReply{Text: "[]"},
		llm.MockReply{Text: judgeHigh},
		llm.MockReply{Text: judgeHigh},
	)

	d := New(env.mock, env.gateway, env.store)
	result, err := d.Discover(context.Background(), "Tracker Co", "https://tracker.example.com")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if result.Considered != 2 {
		t.Errorf("Considered = %d, want 2", result.Considered)
	}
	if len(result.Edges) != 1 {
		t.Fatalf("got %d edges, want 1: %+v", len(result.Edges), result.Edges)
	}
	edge := result.Edges[0]
	if edge.TargetID != "a1" {
		t.Errorf("edge target = %q, want a1", edge.TargetID)
	}
	if edge.Discovery != "vector" {
		t.Errorf("edge discovery = %q, want vector", edge.Discovery)
	}
	want := (1.0 + 1.0 + 0.9) / 3
	if math.Abs(edge.Score-want) > 1e-9 {
		t.Errorf("composite = %v, want %v", edge.Score, want)
	}
	if edge.Methods.LLMJudge != 0.9 {
		t.Errorf("judge score = %v, want 0.9", edge.Methods.LLMJudge)
	}

	// The edge must be visible from both endpoints.
	forward, err := env.gateway.Edges(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Edges(t1): %v", err)
	}
	if len(forward) != 1 || forward[0].TargetID != "a1" {
		t.Errorf("forward edges = %+v, want one edge to a1", forward)
	}
	reverse, err := env.gateway.Edges(context.Background(), "a1")
	if err != nil {
		t.Fatalf("Edges(a1): %v", err)
	}
	if len(reverse) != 1 || reverse[0].TargetID != "t1" {
		t.Fatalf("reverse edges = %+v, want one edge to t1", reverse)
	}
	if reverse[0].SourceID != "a1" {
		t.Errorf("reverse source = %q, want a1", reverse[0].SourceID)
	}
	if math.Abs(reverse[0].Score-want) > 1e-9 {
		t.Errorf("reverse composite = %v, want %v", reverse[0].Score, want)
	}
}

func TestDiscoverJudgeFailureDoesNotVote(t *testing.T) {
	env := newTestEnv(t)

	target := saasCompany("t1", "Tracker Co", "https://tracker.example.com", []float64{1, 0, 0, 0})
	near := saasCompany("a1", "Plannerly", "https://plannerly.example.com", []float64{1, 0, 0, 0})
	env.seed(t, target)
	env.seed(t, near)

	env.mock.Enqueue(
		llm.MockReply{Text: "[]"},
		llm.MockReply{Text: "the model rambled instead of returning JSON"},
	)

	d := New(env.mock, env.gateway, env.store)
	result, err := d.Discover(context.Background(), "Tracker Co", "https://tracker.example.com")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	// Structured and embedding both clear the threshold, so the edge
	// survives with the judge contributing zero.
	if len(result.Edges) != 1 {
		t.Fatalf("got %d edges, want 1", len(result.Edges))
	}
	edge := result.Edges[0]
	if edge.Methods.LLMJudge != 0 {
		t.Errorf("judge score = %v, want 0", edge.Methods.LLMJudge)
	}
	want := 2.0 / 3
	if math.Abs(edge.Score-want) > 1e-9 {
		t.Errorf("composite = %v, want %v", edge.Score, want)
	}
}

func TestDiscoverUnknownModeResearchesTarget(t *testing.T) {
	env := newTestEnv(t)

	near := saasCompany("a1", "Plannerly", "https://plannerly.example.com", []float64{1, 0, 0, 0})
	env.seed(t, near)

	target := saasCompany("t2", "Newco", "https://newco.example.com", []float64{1, 0, 0, 0})
	researcher := &fakeResearcher{results: map[string]*core.Company{"Newco": target}}

	env.mock.Enqueue(
		llm.MockReply{Text: "[]"},
		llm.MockReply{Text: judgeHigh},
	)

	d := New(env.mock, env.gateway, env.store, WithResearcher(researcher))
	result, err := d.Discover(context.Background(), "Newco", "https://newco.example.com")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if researcher.calls != 1 || researcher.names[0] != "Newco" {
		t.Errorf("researcher calls = %d (%v), want exactly one for Newco", researcher.calls, researcher.names)
	}
	if result.Target.ID != "t2" {
		t.Errorf("target id = %q, want t2", result.Target.ID)
	}
	if len(result.Edges) != 1 || result.Edges[0].TargetID != "a1" {
		t.Fatalf("edges = %+v, want one edge to a1", result.Edges)
	}
}

func TestDiscoverUnknownTargetWithoutResearcher(t *testing.T) {
	env := newTestEnv(t)
	d := New(env.mock, env.gateway, env.store)

	_, err := d.Discover(context.Background(), "Ghost Co", "https://ghost.example.com")
	if !core.IsKind(err, core.KindInvalidCompanyName) {
		t.Fatalf("err = %v, want kind InvalidCompanyName", err)
	}
}

func TestDiscoverResearchBudget(t *testing.T) {
	env := newTestEnv(t)

	target := saasCompany("t1", "Tracker Co", "https://tracker.example.com", []float64{1, 0, 0, 0})
	env.seed(t, target)

	// Three unknown suggestions; the budget allows researching only one.
	env.mock.Enqueue(llm.MockReply{Text: `[
		{"name": "Alpha", "website": "https://alpha.example.com"},
		{"name": "Beta", "website": "https://beta.example.com"},
		{"name": "Gamma", "website": "https://gamma.example.com"}
	]`})

	researcher := &fakeResearcher{} // yields profiles without embeddings
	d := New(env.mock, env.gateway, env.store,
		WithResearcher(researcher),
		WithResearchBudget(1),
	)
	result, err := d.Discover(context.Background(), "Tracker Co", "https://tracker.example.com")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if researcher.calls != 1 {
		t.Errorf("researcher calls = %d, want 1", researcher.calls)
	}
	if result.Considered != 0 {
		t.Errorf("Considered = %d, want 0 (no candidate had an embedding)", result.Considered)
	}
	if len(result.Edges) != 0 {
		t.Errorf("edges = %+v, want none", result.Edges)
	}
}

func TestStructuredScore(t *testing.T) {
	a := saasCompany("a", "A", "https://a.example.com", nil)
	b := saasCompany("b", "B", "https://b.example.com", nil)

	if got := StructuredScore(a, b, DefaultWeights()); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("identical profiles score = %v, want 1.0", got)
	}

	b.Industry = "Logistics"
	b.BusinessModel = core.ModelServices
	b.TargetMarket = "freight brokers"
	b.KeyServices = []string{"route planning"}
	b.TechStack = []string{"Java"}
	if got := StructuredScore(a, b, DefaultWeights()); got > 0.1 {
		t.Errorf("disjoint profiles score = %v, want near 0", got)
	}
}

func TestStructuredScoreTechSynonyms(t *testing.T) {
	a := saasCompany("a", "A", "https://a.example.com", nil)
	b := saasCompany("b", "B", "https://b.example.com", nil)
	a.TechStack = []string{"Golang", "Postgres", "K8s"}
	b.TechStack = []string{"Go", "PostgreSQL", "Kubernetes"}

	if got := StructuredScore(a, b, DefaultWeights()); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("synonym stacks score = %v, want 1.0", got)
	}
}
