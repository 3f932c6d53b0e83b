package vectorstore

import (
	"context"
	"fmt"
	"testing"

	"prospect/internal/core"
)

// fakeDriver keeps records in memory and reports cosine-free similarity by
// dot product, which is enough to exercise gateway ordering and filtering.
type fakeDriver struct {
	records map[string]*core.VectorRecord
	scores  map[string]float64 // optional fixed score per ID
	closed  bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		records: make(map[string]*core.VectorRecord),
		scores:  make(map[string]float64),
	}
}

func (f *fakeDriver) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error {
	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	vec := make([]float64, len(vector))
	copy(vec, vector)
	f.records[id] = &core.VectorRecord{ID: id, Vector: vec, Metadata: meta}
	return nil
}

func (f *fakeDriver) Query(ctx context.Context, vector []float64, topK int, equality map[string]any) ([]Match, error) {
	var matches []Match
	for id, rec := range f.records {
		if !equalityMatches(rec.Metadata, equality) {
			continue
		}
		score, ok := f.scores[id]
		if !ok {
			for i := range vector {
				if i < len(rec.Vector) {
					score += vector[i] * rec.Vector[i]
				}
			}
		}
		matches = append(matches, Match{ID: id, Score: score, Metadata: rec.Metadata})
	}
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func equalityMatches(metadata, equality map[string]any) bool {
	for k, want := range equality {
		got, ok := metadata[k]
		if !ok || scalarString(got) != scalarString(want) {
			return false
		}
	}
	return true
}

func (f *fakeDriver) Fetch(ctx context.Context, id string) (*core.VectorRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (f *fakeDriver) Delete(ctx context.Context, id string) error {
	delete(f.records, id)
	return nil
}

func (f *fakeDriver) Close() error {
	f.closed = true
	return nil
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	g := NewGateway(newFakeDriver(), 4, CompanySchema())

	err := g.Upsert(context.Background(), "a", []float64{1, 2, 3}, nil)
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !core.IsKind(err, core.KindVectorDimensionMismatch) {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindVectorDimensionMismatch)
	}
}

func TestQueryRejectsWrongDimension(t *testing.T) {
	g := NewGateway(newFakeDriver(), 4, CompanySchema())

	_, err := g.Query(context.Background(), []float64{1, 2}, 5, nil)
	if !core.IsKind(err, core.KindVectorDimensionMismatch) {
		t.Fatalf("kind = %q, want %q", core.KindOf(err), core.KindVectorDimensionMismatch)
	}
}

func TestUpsertRejectsUndeclaredField(t *testing.T) {
	g := NewGateway(newFakeDriver(), 2, CompanySchema())

	err := g.Upsert(context.Background(), "a", []float64{1, 0}, map[string]any{"revenue": 100})
	if err == nil {
		t.Fatal("expected schema rejection")
	}
}

func TestUpsertRejectsNonScalarValue(t *testing.T) {
	g := NewGateway(newFakeDriver(), 2, CompanySchema())

	err := g.Upsert(context.Background(), "a", []float64{1, 0}, map[string]any{
		"name": []string{"not", "scalar"},
	})
	if err == nil {
		t.Fatal("expected non-scalar rejection")
	}
}

func TestQueryDeterministicOrdering(t *testing.T) {
	drv := newFakeDriver()
	g := NewGateway(drv, 2, CompanySchema())
	ctx := context.Background()

	for _, id := range []string{"c", "a", "b"} {
		if err := g.Upsert(ctx, id, []float64{1, 0}, map[string]any{"name": id}); err != nil {
			t.Fatal(err)
		}
		drv.scores[id] = 0.9 // identical scores force the ID tie break
	}
	drv.scores["z"] = 0.95
	if err := g.Upsert(ctx, "z", []float64{0, 1}, map[string]any{"name": "z"}); err != nil {
		t.Fatal(err)
	}

	matches, err := g.Query(ctx, []float64{1, 0}, 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = m.ID
	}
	want := []string{"z", "a", "b", "c"}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("order = %v, want %v", got, want)
	}
}

func TestQueryMembershipFilter(t *testing.T) {
	g := NewGateway(newFakeDriver(), 2, CompanySchema())
	ctx := context.Background()

	companies := map[string]string{"a": "saas", "b": "agency", "c": "saas"}
	for id, model := range companies {
		if err := g.Upsert(ctx, id, []float64{1, 0}, map[string]any{"business_model": model}); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := g.Query(ctx, []float64{1, 0}, 10, Filter{"business_model": []string{"saas"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	for _, m := range matches {
		if m.ID == "b" {
			t.Fatal("agency record should have been filtered out")
		}
	}
}

func TestUpdateMetadataMergesWithoutTouchingVector(t *testing.T) {
	g := NewGateway(newFakeDriver(), 3, CompanySchema())
	ctx := context.Background()

	vec := []float64{0.1, 0.2, 0.3}
	if err := g.Upsert(ctx, "a", vec, map[string]any{"name": "Acme", "industry": "robotics"}); err != nil {
		t.Fatal(err)
	}
	if err := g.UpdateMetadata(ctx, "a", map[string]any{"industry": "logistics", "stage": "growth"}); err != nil {
		t.Fatal(err)
	}

	rec, err := g.Fetch(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Metadata["name"] != "Acme" {
		t.Errorf("name = %v, want Acme", rec.Metadata["name"])
	}
	if rec.Metadata["industry"] != "logistics" {
		t.Errorf("industry = %v, want logistics", rec.Metadata["industry"])
	}
	if rec.Metadata["stage"] != "growth" {
		t.Errorf("stage = %v, want growth", rec.Metadata["stage"])
	}
	for i := range vec {
		if rec.Vector[i] != vec[i] {
			t.Fatalf("vector changed at %d: %v", i, rec.Vector)
		}
	}
}

func TestEdgesRoundTripAndCap(t *testing.T) {
	g := NewGateway(newFakeDriver(), 2, CompanySchema())
	ctx := context.Background()

	if err := g.Upsert(ctx, "src", []float64{1, 0}, map[string]any{"name": "Src"}); err != nil {
		t.Fatal(err)
	}

	edges := make([]core.SimilarityEdge, MaxEdges+10)
	for i := range edges {
		edges[i] = core.SimilarityEdge{
			TargetID: fmt.Sprintf("t%03d", i),
			Score:    float64(i) / float64(len(edges)),
		}
	}
	if err := g.SetEdges(ctx, "src", edges); err != nil {
		t.Fatal(err)
	}

	got, err := g.Edges(ctx, "src")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != MaxEdges {
		t.Fatalf("got %d edges, want %d", len(got), MaxEdges)
	}
	// Highest scores retained, sorted descending.
	for i := 1; i < len(got); i++ {
		if got[i].Score > got[i-1].Score {
			t.Fatalf("edges not sorted at %d", i)
		}
	}
	if got[0].TargetID != "t059" {
		t.Errorf("top edge = %s, want t059", got[0].TargetID)
	}
	if got[0].SourceID != "src" {
		t.Errorf("source = %s, want src", got[0].SourceID)
	}
}

func TestEdgesEmptyWhenUnset(t *testing.T) {
	g := NewGateway(newFakeDriver(), 2, CompanySchema())
	ctx := context.Background()

	if err := g.Upsert(ctx, "a", []float64{1, 0}, nil); err != nil {
		t.Fatal(err)
	}
	edges, err := g.Edges(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(edges) != 0 {
		t.Fatalf("got %d edges, want 0", len(edges))
	}
}

func TestFetchMissingReturnsNotFound(t *testing.T) {
	g := NewGateway(newFakeDriver(), 2, CompanySchema())

	_, err := g.Fetch(context.Background(), "missing")
	if err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSchemaFieldLimit(t *testing.T) {
	fields := make([]string, MaxMetadataFields+1)
	for i := range fields {
		fields[i] = fmt.Sprintf("f%d", i)
	}
	if _, err := NewSchema(fields...); err == nil {
		t.Fatal("expected schema over field limit to be rejected")
	}
}
