package selector

import (
	"context"
	"fmt"
	"testing"
	"time"

	"prospect/internal/core"
	"prospect/internal/cost"
	"prospect/internal/llm"
)

func candidate(url string) core.PageCandidate {
	return core.PageCandidate{
		URL:          url,
		Source:       core.SourceSeed,
		DiscoveredAt: time.Now(),
	}
}

func siteCandidates(n int) []core.PageCandidate {
	base := []core.PageCandidate{
		candidate("https://acme.example/"),
		candidate("https://acme.example/about"),
		candidate("https://acme.example/blog/post-1"),
		candidate("https://acme.example/team"),
		candidate("https://acme.example/pricing"),
		candidate("https://acme.example/blog/post-2"),
		candidate("https://acme.example/contact"),
	}
	for i := len(base); i < n; i++ {
		base = append(base, candidate(fmt.Sprintf("https://acme.example/blog/post-%d", i)))
	}
	return base[:n]
}

func TestSelectFollowsModelIndices(t *testing.T) {
	mock := llm.NewMock(8)
	mock.Enqueue(llm.MockReply{Text: "```json\n[0, 3, 6]\n```"})

	s := New(mock, WithMaxPages(3))
	sel, err := s.Select(context.Background(), "Acme", siteCandidates(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	if sel.Heuristic {
		t.Fatal("model path should have succeeded")
	}
	want := []string{
		"https://acme.example/",
		"https://acme.example/team",
		"https://acme.example/contact",
	}
	if fmt.Sprint(sel.URLs) != fmt.Sprint(want) {
		t.Fatalf("urls = %v, want %v", sel.URLs, want)
	}
}

func TestSelectClampsOutOfRangeIndices(t *testing.T) {
	mock := llm.NewMock(8)
	mock.Enqueue(llm.MockReply{Text: "[99, -1, 1, 1, 4]"})

	s := New(mock, WithMaxPages(3))
	sel, err := s.Select(context.Background(), "Acme", siteCandidates(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"https://acme.example/about", "https://acme.example/pricing"}
	if fmt.Sprint(sel.URLs) != fmt.Sprint(want) {
		t.Fatalf("urls = %v, want %v", sel.URLs, want)
	}
}

func TestSelectParsesObjectArray(t *testing.T) {
	mock := llm.NewMock(8)
	mock.Enqueue(llm.MockReply{Text: `[{"index": 1, "reason": "about page"}, {"index": 3, "reason": "team"}]`})

	s := New(mock, WithMaxPages(5))
	sel, err := s.Select(context.Background(), "Acme", siteCandidates(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.URLs) != 2 || sel.URLs[0] != "https://acme.example/about" {
		t.Fatalf("urls = %v", sel.URLs)
	}
}

func TestSelectHeuristicFallbackAfterRetries(t *testing.T) {
	mock := llm.NewMock(8)
	mock.Enqueue(
		llm.MockReply{Text: "I think the best pages are about and team."},
		llm.MockReply{Text: "still not json"},
		llm.MockReply{Text: "nope"},
	)

	s := New(mock, WithMaxPages(3))
	sel, err := s.Select(context.Background(), "Acme", siteCandidates(7), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Heuristic {
		t.Fatal("expected heuristic fallback")
	}
	if mock.CallCount != 3 {
		t.Fatalf("calls = %d, want 3", mock.CallCount)
	}
	// about ranks first among the heuristic keywords present.
	if sel.URLs[0] != "https://acme.example/about" {
		t.Fatalf("urls = %v", sel.URLs)
	}
	if len(sel.URLs) != 3 {
		t.Fatalf("got %d urls, want 3", len(sel.URLs))
	}
}

func TestSelectFewerCandidatesThanBudgetSkipsModel(t *testing.T) {
	mock := llm.NewMock(8)
	s := New(mock, WithMaxPages(10))

	sel, err := s.Select(context.Background(), "Acme", siteCandidates(4), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(sel.URLs) != 4 {
		t.Fatalf("got %d urls, want all 4", len(sel.URLs))
	}
	if mock.CallCount != 0 {
		t.Fatalf("model should not have been called, got %d calls", mock.CallCount)
	}
}

func TestSelectZeroCandidates(t *testing.T) {
	s := New(llm.NewMock(8))
	_, err := s.Select(context.Background(), "Acme", nil, nil)
	if !core.IsKind(err, core.KindNoCandidatesFound) {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindNoCandidatesFound)
	}
}

func TestSelectTruncatesOverTokenBudget(t *testing.T) {
	mock := llm.NewMock(8)
	mock.Enqueue(llm.MockReply{Text: "[0, 1]"})

	s := New(mock, WithMaxPages(2), WithTokenBudget(60))
	sel, err := s.Select(context.Background(), "Acme", siteCandidates(40), nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sel.Truncated {
		t.Fatal("expected truncation under a tiny token budget")
	}
	if len(sel.URLs) == 0 || len(sel.URLs) > 2 {
		t.Fatalf("urls = %v", sel.URLs)
	}
}

func TestSelectRecordsUsage(t *testing.T) {
	mock := llm.NewMock(8)
	mock.Enqueue(llm.MockReply{Text: "[0]"})
	tally := &cost.Tally{}

	s := New(mock, WithMaxPages(1), WithTally(tally))
	if _, err := s.Select(context.Background(), "Acme", siteCandidates(7), nil); err != nil {
		t.Fatal(err)
	}
	calls, in, _, _ := tally.Snapshot()
	if calls != 1 || in == 0 {
		t.Fatalf("tally calls=%d in=%d", calls, in)
	}
}
