package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockProvider returns scripted or deterministic synthetic results. It backs
// tests and offline runs.
type MockProvider struct {
	mu       sync.Mutex
	scripted map[string][]Result
	err      error
	calls    int
	name     string
}

// NewMockProvider creates a mock provider with deterministic output.
func NewMockProvider() *MockProvider {
	return &MockProvider{scripted: make(map[string][]Result), name: "mock"}
}

// SetName overrides the provider name, so tests can register several mocks.
func (m *MockProvider) SetName(name string) { m.name = name }

// Script fixes the results returned for a query.
func (m *MockProvider) Script(query string, results []Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripted[strings.ToLower(query)] = results
}

// Fail makes every subsequent call return err.
func (m *MockProvider) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many times Search ran.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Capabilities() Capabilities {
	return Capabilities{DateFiltering: true, DomainFiltering: true}
}

func (m *MockProvider) RateLimit() int { return 600 }

func (m *MockProvider) Search(ctx context.Context, query string, params Params) ([]Result, error) {
	m.mu.Lock()
	m.calls++
	err := m.err
	scripted, ok := m.scripted[strings.ToLower(query)]
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if ok {
		out := make([]Result, len(scripted))
		copy(out, scripted)
		return out, nil
	}

	// Synthetic but stable output derived from the query.
	n := params.MaxResults
	if n <= 0 || n > 5 {
		n = 3
	}
	slug := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(query)), " ", "-")
	results := make([]Result, 0, n)
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("https://example.com/%s/%d", slug, i+1)
		results = append(results, Result{
			URL:     u,
			Title:   fmt.Sprintf("Result %d for %s", i+1, query),
			Snippet: fmt.Sprintf("Synthetic snippet %d about %s.", i+1, query),
			Domain:  "example.com",
			Score:   rankScore(i + 1),
			Source:  m.name,
			Rank:    i + 1,
		})
	}
	return results, nil
}
