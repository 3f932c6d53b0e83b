package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"

	"prospect/internal/core"
	"prospect/internal/logger"
)

// PgVectorDriver stores vectors in PostgreSQL with the pgvector extension.
// Metadata is kept as jsonb next to the embedding so equality filters can
// lean on jsonb containment.
type PgVectorDriver struct {
	db    *sql.DB
	table string
}

// NewPgVectorDriver connects to PostgreSQL and ensures the companies table
// and its HNSW index exist.
func NewPgVectorDriver(ctx context.Context, databaseURL string, dimension int) (*PgVectorDriver, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	d := &PgVectorDriver{db: db, table: "companies"}
	if err := d.ensureSchema(ctx, dimension); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("pgvector driver ready", "table", d.table, "dimension", dimension)
	return d, nil
}

func (d *PgVectorDriver) ensureSchema(ctx context.Context, dimension int) error {
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			embedding vector(%d) NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, d.table, dimension)
	if _, err := d.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("creating table %s: %w", d.table, err)
	}

	var exists bool
	checkIndex := `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes
			WHERE tablename = $1 AND indexname = $2
		)
	`
	indexName := "idx_" + d.table + "_embedding_hnsw"
	if err := d.db.QueryRowContext(ctx, checkIndex, d.table, indexName).Scan(&exists); err != nil {
		return fmt.Errorf("checking index existence: %w", err)
	}
	if exists {
		return nil
	}

	// m=16 connections per layer, ef_construction=64 build-time beam width.
	createIndex := fmt.Sprintf(`
		CREATE INDEX %s
		ON %s
		USING hnsw (embedding vector_cosine_ops)
		WITH (m = 16, ef_construction = 64)
	`, indexName, d.table)
	if _, err := d.db.ExecContext(ctx, createIndex); err != nil {
		return fmt.Errorf("creating hnsw index: %w", err)
	}
	return nil
}

func (d *PgVectorDriver) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error {
	meta, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (id, embedding, metadata, updated_at)
		VALUES ($1, $2::vector, $3::jsonb, NOW())
		ON CONFLICT (id) DO UPDATE
		SET embedding = EXCLUDED.embedding,
		    metadata = EXCLUDED.metadata,
		    updated_at = NOW()
	`, d.table)
	if _, err := d.db.ExecContext(ctx, query, id, formatVector(vector), string(meta)); err != nil {
		return fmt.Errorf("upserting %s: %w", id, err)
	}
	return nil
}

func (d *PgVectorDriver) Query(ctx context.Context, vector []float64, topK int, equality map[string]any) ([]Match, error) {
	filterClause := ""
	args := []any{formatVector(vector), topK}
	if len(equality) > 0 {
		filter, err := json.Marshal(equality)
		if err != nil {
			return nil, fmt.Errorf("encoding filter: %w", err)
		}
		filterClause = "WHERE metadata @> $3::jsonb"
		args = append(args, string(filter))
	}

	query := fmt.Sprintf(`
		SELECT
			id,
			1 - (embedding <=> $1::vector) AS similarity,
			metadata
		FROM %s
		%s
		ORDER BY embedding <=> $1::vector, id
		LIMIT $2
	`, d.table, filterClause)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		var meta []byte
		if err := rows.Scan(&m.ID, &m.Score, &meta); err != nil {
			return nil, fmt.Errorf("scanning result row: %w", err)
		}
		if err := json.Unmarshal(meta, &m.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata for %s: %w", m.ID, err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating results: %w", err)
	}
	return matches, nil
}

func (d *PgVectorDriver) Fetch(ctx context.Context, id string) (*core.VectorRecord, error) {
	query := fmt.Sprintf(`SELECT embedding::text, metadata FROM %s WHERE id = $1`, d.table)

	var embedding string
	var meta []byte
	err := d.db.QueryRowContext(ctx, query, id).Scan(&embedding, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", id, err)
	}

	vector, err := parseVector(embedding)
	if err != nil {
		return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
	}
	rec := &core.VectorRecord{ID: id, Vector: vector}
	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", id, err)
	}
	return rec, nil
}

func (d *PgVectorDriver) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, d.table)
	if _, err := d.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("deleting %s: %w", id, err)
	}
	return nil
}

func (d *PgVectorDriver) Close() error { return d.db.Close() }

// formatVector renders a float slice in pgvector literal form, e.g.
// [0.1,0.2,0.3].
func formatVector(embedding []float64) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, val := range embedding {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(val, 'f', -1, 64))
	}
	b.WriteByte(']')
	return b.String()
}

func parseVector(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
