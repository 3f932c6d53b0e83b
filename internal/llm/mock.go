package llm

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"prospect/internal/core"
)

// Mock is a deterministic Provider for tests and offline runs. Completions
// are served from a script (in order) or from a canned default; embeddings
// are derived from a hash of the input so equal texts embed identically.
type Mock struct {
	mu        sync.Mutex
	script    []MockReply
	next      int
	dimension int

	// CallCount tracks Complete invocations, including scripted errors.
	CallCount int
	// Prompts records every prompt received, for assertions.
	Prompts []string
	// Requests records every Complete request, for assertions on flags
	// like JSONOutput.
	Requests []Request
}

// MockReply is one scripted Complete outcome.
type MockReply struct {
	Text string
	Err  error
}

// NewMock returns a mock provider with the given embedding width.
func NewMock(dimension int) *Mock {
	if dimension <= 0 {
		dimension = int(DefaultEmbeddingDimensions)
	}
	return &Mock{dimension: dimension}
}

// Enqueue appends scripted replies; they are consumed in FIFO order.
func (m *Mock) Enqueue(replies ...MockReply) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, replies...)
}

// ModelName identifies the mock in provenance fields.
func (m *Mock) ModelName() string { return "mock" }

// Complete pops the next scripted reply, or echoes an empty JSON object when
// the script is exhausted.
func (m *Mock) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	m.CallCount++
	m.Prompts = append(m.Prompts, req.Prompt)
	m.Requests = append(m.Requests, req)
	var reply MockReply
	if m.next < len(m.script) {
		reply = m.script[m.next]
		m.next++
	} else {
		reply = MockReply{Text: "{}"}
	}
	m.mu.Unlock()

	if reply.Err != nil {
		return Response{}, reply.Err
	}
	return Response{
		Text:         reply.Text,
		Model:        "mock",
		InputTokens:  len(req.Prompt) / 4,
		OutputTokens: len(reply.Text) / 4,
	}, nil
}

// Embed returns a unit-norm vector seeded from the input text. The same text
// always embeds to the same vector, and distinct texts almost always differ.
func (m *Mock) Embed(ctx context.Context, text, model string) (Embedding, error) {
	if err := ctx.Err(); err != nil {
		return Embedding{}, err
	}
	if text == "" {
		return Embedding{}, core.E(core.KindLLMProviderError, "embedding input cannot be empty")
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vector := make([]float64, m.dimension)
	var norm float64
	for i := range vector {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed>>11))/float64(1<<52) - 1.0
		vector[i] = v
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vector {
			vector[i] /= norm
		}
	}

	return Embedding{
		Vector:      vector,
		Dimension:   m.dimension,
		Model:       "mock-embedding",
		InputTokens: len(text) / 4,
	}, nil
}
