// Package docstore persists company profiles and research job records in a
// local SQLite database. Profiles are stored as JSON documents keyed by ID
// with a canonical (name, website) key for idempotency lookups.
package docstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"prospect/internal/core"
)

// Store wraps the SQLite database holding companies and jobs.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (or creates) the database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "prospect.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing database: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	companiesTable := `
	CREATE TABLE IF NOT EXISTS companies (
		id TEXT PRIMARY KEY,
		canonical_key TEXT UNIQUE,
		name TEXT,
		website TEXT,
		profile TEXT,
		researched_at DATETIME
	);`

	jobsTable := `
	CREATE TABLE IF NOT EXISTS research_jobs (
		id TEXT PRIMARY KEY,
		company_id TEXT,
		state TEXT,
		record TEXT,
		created_at DATETIME
	);`

	for _, table := range []string{companiesTable, jobsTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("creating table: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// CanonicalKey derives the idempotency key for a research target. The same
// company requested with different casing or URL trivia maps to one key.
func CanonicalKey(name, website string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Join(strings.Fields(n), " ")
	w := strings.ToLower(strings.TrimSpace(website))
	w = strings.TrimPrefix(w, "https://")
	w = strings.TrimPrefix(w, "http://")
	w = strings.TrimPrefix(w, "www.")
	w = strings.TrimSuffix(w, "/")
	return n + "|" + w
}

// SaveCompany inserts or replaces a company profile.
func (s *Store) SaveCompany(company *core.Company) error {
	profile, err := json.Marshal(company)
	if err != nil {
		return core.E(core.KindDocumentStoreFailed, "encoding company profile", err)
	}

	query := `
	INSERT OR REPLACE INTO companies
	(id, canonical_key, name, website, profile, researched_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query,
		company.ID,
		CanonicalKey(company.Name, company.Website),
		company.Name,
		company.Website,
		string(profile),
		company.ResearchedAt,
	)
	if err != nil {
		return core.E(core.KindDocumentStoreFailed, "saving company", err)
	}
	return nil
}

// GetCompany returns a company by ID, or nil when absent.
func (s *Store) GetCompany(id string) (*core.Company, error) {
	return s.scanCompany(`SELECT profile FROM companies WHERE id = ?`, id)
}

// GetCompanyByKey returns a company by canonical key, or nil when absent.
func (s *Store) GetCompanyByKey(key string) (*core.Company, error) {
	return s.scanCompany(`SELECT profile FROM companies WHERE canonical_key = ?`, key)
}

// GetFreshCompany returns the company for a canonical key only when it was
// researched within maxAge. A stale or missing company returns nil.
func (s *Store) GetFreshCompany(key string, maxAge time.Duration) (*core.Company, error) {
	cutoff := time.Now().UTC().Add(-maxAge)
	return s.scanCompany(
		`SELECT profile FROM companies WHERE canonical_key = ? AND researched_at > ?`,
		key, cutoff,
	)
}

func (s *Store) scanCompany(query string, args ...any) (*core.Company, error) {
	var profile string
	err := s.db.QueryRow(query, args...).Scan(&profile)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "reading company", err)
	}

	var company core.Company
	if err := json.Unmarshal([]byte(profile), &company); err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "decoding company profile", err)
	}
	return &company, nil
}

// ListCompanies returns all stored companies, most recently researched first.
func (s *Store) ListCompanies() ([]*core.Company, error) {
	rows, err := s.db.Query(`SELECT profile FROM companies ORDER BY researched_at DESC`)
	if err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "listing companies", err)
	}
	defer rows.Close()

	var companies []*core.Company
	for rows.Next() {
		var profile string
		if err := rows.Scan(&profile); err != nil {
			return nil, core.E(core.KindDocumentStoreFailed, "scanning company row", err)
		}
		var company core.Company
		if err := json.Unmarshal([]byte(profile), &company); err != nil {
			return nil, core.E(core.KindDocumentStoreFailed, "decoding company profile", err)
		}
		companies = append(companies, &company)
	}
	if err := rows.Err(); err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "iterating companies", err)
	}
	return companies, nil
}

// DeleteCompany removes a company by ID. Missing IDs are not an error.
func (s *Store) DeleteCompany(id string) error {
	if _, err := s.db.Exec(`DELETE FROM companies WHERE id = ?`, id); err != nil {
		return core.E(core.KindDocumentStoreFailed, "deleting company", err)
	}
	return nil
}

// SaveJob inserts or replaces a research job record.
func (s *Store) SaveJob(job *core.ResearchJob) error {
	record, err := json.Marshal(job)
	if err != nil {
		return core.E(core.KindDocumentStoreFailed, "encoding job record", err)
	}

	query := `
	INSERT OR REPLACE INTO research_jobs
	(id, company_id, state, record, created_at)
	VALUES (?, ?, ?, ?, ?)`

	_, err = s.db.Exec(query, job.ID, job.CompanyID, string(job.State), string(record), job.CreatedAt)
	if err != nil {
		return core.E(core.KindDocumentStoreFailed, "saving job", err)
	}
	return nil
}

// GetJob returns a job by ID, or nil when absent.
func (s *Store) GetJob(id string) (*core.ResearchJob, error) {
	var record string
	err := s.db.QueryRow(`SELECT record FROM research_jobs WHERE id = ?`, id).Scan(&record)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "reading job", err)
	}

	var job core.ResearchJob
	if err := json.Unmarshal([]byte(record), &job); err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "decoding job record", err)
	}
	return &job, nil
}

// ListJobs returns all job records, newest first.
func (s *Store) ListJobs() ([]*core.ResearchJob, error) {
	rows, err := s.db.Query(`SELECT record FROM research_jobs ORDER BY created_at DESC`)
	if err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "listing jobs", err)
	}
	defer rows.Close()

	var jobs []*core.ResearchJob
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, core.E(core.KindDocumentStoreFailed, "scanning job row", err)
		}
		var job core.ResearchJob
		if err := json.Unmarshal([]byte(record), &job); err != nil {
			return nil, core.E(core.KindDocumentStoreFailed, "decoding job record", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, core.E(core.KindDocumentStoreFailed, "iterating jobs", err)
	}
	return jobs, nil
}
