package docstore

import (
	"testing"
	"time"

	"prospect/internal/core"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCompany(id, name, website string) *core.Company {
	return &core.Company{
		ID:            id,
		Name:          name,
		Website:       website,
		Industry:      "logistics software",
		BusinessModel: core.ModelSaaS,
		Stage:         core.StageGrowth,
		KeyServices:   []string{"fleet tracking", "route planning"},
		ResearchedAt:  time.Now().UTC(),
	}
}

func TestSaveAndGetCompany(t *testing.T) {
	s := openTestStore(t)

	want := sampleCompany("c1", "Acme Logistics", "https://acme.example")
	if err := s.SaveCompany(want); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCompany("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("company not found after save")
	}
	if got.Name != want.Name || got.Website != want.Website {
		t.Errorf("got %s / %s, want %s / %s", got.Name, got.Website, want.Name, want.Website)
	}
	if len(got.KeyServices) != 2 {
		t.Errorf("key services = %v", got.KeyServices)
	}
}

func TestGetCompanyMissing(t *testing.T) {
	s := openTestStore(t)

	got, err := s.GetCompany("nope")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestCanonicalKeyNormalizes(t *testing.T) {
	a := CanonicalKey("Acme  Logistics", "https://www.acme.example/")
	b := CanonicalKey("acme logistics", "http://acme.example")
	if a != b {
		t.Fatalf("keys differ: %q vs %q", a, b)
	}
}

func TestGetCompanyByKey(t *testing.T) {
	s := openTestStore(t)

	c := sampleCompany("c1", "Acme Logistics", "https://acme.example")
	if err := s.SaveCompany(c); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCompanyByKey(CanonicalKey("ACME LOGISTICS", "https://www.acme.example"))
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || got.ID != "c1" {
		t.Fatalf("lookup by canonical key failed: %+v", got)
	}
}

func TestGetFreshCompanyHonorsMaxAge(t *testing.T) {
	s := openTestStore(t)

	c := sampleCompany("c1", "Acme", "https://acme.example")
	c.ResearchedAt = time.Now().UTC().Add(-48 * time.Hour)
	if err := s.SaveCompany(c); err != nil {
		t.Fatal(err)
	}
	key := CanonicalKey(c.Name, c.Website)

	fresh, err := s.GetFreshCompany(key, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if fresh != nil {
		t.Fatal("stale company should not be returned")
	}

	fresh, err = s.GetFreshCompany(key, 30*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if fresh == nil {
		t.Fatal("company within max age should be returned")
	}
}

func TestSaveCompanyReplacesOnSameKey(t *testing.T) {
	s := openTestStore(t)

	first := sampleCompany("c1", "Acme", "https://acme.example")
	if err := s.SaveCompany(first); err != nil {
		t.Fatal(err)
	}
	second := sampleCompany("c1", "Acme", "https://acme.example")
	second.Industry = "freight brokerage"
	if err := s.SaveCompany(second); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetCompany("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Industry != "freight brokerage" {
		t.Errorf("industry = %s, want freight brokerage", got.Industry)
	}

	all, err := s.ListCompanies()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d companies, want 1", len(all))
	}
}

func TestJobRoundTrip(t *testing.T) {
	s := openTestStore(t)

	job := &core.ResearchJob{
		ID:          "j1",
		CompanyID:   "c1",
		CompanyName: "Acme",
		State:       core.StateQueued,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.SaveJob(job); err != nil {
		t.Fatal(err)
	}

	job.State = core.StateCompleted
	job.CompletedAt = time.Now().UTC()
	if err := s.SaveJob(job); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetJob("j1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("job not found")
	}
	if got.State != core.StateCompleted {
		t.Errorf("state = %s, want %s", got.State, core.StateCompleted)
	}

	jobs, err := s.ListJobs()
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 1 {
		t.Fatalf("got %d jobs, want 1", len(jobs))
	}
}
