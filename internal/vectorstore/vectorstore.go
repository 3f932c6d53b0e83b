// Package vectorstore provides a backend-agnostic gateway over a vector
// database. All writes flow through the Gateway, which enforces the embedding
// dimension and the declared metadata schema before anything reaches a
// backend driver.
package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"prospect/internal/core"
)

// MaxMetadataFields caps the number of declared metadata fields per record.
const MaxMetadataFields = 16

// MaxEdges caps the number of similarity edges stored per company.
const MaxEdges = 50

// EdgeField is the reserved metadata field holding encoded similarity edges.
const EdgeField = "similar"

// ErrNotFound is returned when a record ID does not exist in the store.
var ErrNotFound = errors.New("vectorstore: record not found")

// Match is a single query result.
type Match struct {
	ID       string
	Score    float64
	Metadata map[string]any
}

// Filter constrains a query. Values are either a scalar (equality) or a
// []string (set membership). Conditions are conjunctive.
type Filter map[string]any

// Driver is the narrow contract a backend must satisfy. Drivers receive
// already-validated input and only apply scalar equality filters; the
// gateway handles set-membership filtering and result ordering.
type Driver interface {
	Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error
	Query(ctx context.Context, vector []float64, topK int, equality map[string]any) ([]Match, error)
	Fetch(ctx context.Context, id string) (*core.VectorRecord, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Schema declares the metadata fields a collection accepts. Writes carrying
// undeclared fields are rejected so drift between backends cannot creep in.
type Schema struct {
	fields map[string]struct{}
}

// NewSchema builds a schema from the given field names.
func NewSchema(fields ...string) (*Schema, error) {
	if len(fields) > MaxMetadataFields {
		return nil, fmt.Errorf("schema declares %d fields, limit is %d", len(fields), MaxMetadataFields)
	}
	s := &Schema{fields: make(map[string]struct{}, len(fields))}
	for _, f := range fields {
		s.fields[f] = struct{}{}
	}
	return s, nil
}

// CompanySchema returns the metadata schema used for company records.
func CompanySchema() *Schema {
	s, _ := NewSchema(
		"name",
		"website",
		"industry",
		"business_model",
		"stage",
		"geographic_scope",
		"has_leadership",
		"services_count",
		"embedding_model",
		"updated_at",
		"low_quality",
		EdgeField,
	)
	return s
}

// Validate checks that every field is declared and every value is a scalar.
func (s *Schema) Validate(metadata map[string]any) error {
	for k, v := range metadata {
		if _, ok := s.fields[k]; !ok {
			return fmt.Errorf("undeclared metadata field %q", k)
		}
		switch v.(type) {
		case string, bool, int, int32, int64, float32, float64:
		default:
			return fmt.Errorf("metadata field %q has non-scalar value of type %T", k, v)
		}
	}
	return nil
}

// Gateway validates and normalizes every store operation before delegating
// to the configured backend driver.
type Gateway struct {
	driver    Driver
	dimension int
	schema    *Schema
}

// NewGateway wraps a driver with dimension and schema enforcement.
func NewGateway(driver Driver, dimension int, schema *Schema) *Gateway {
	if schema == nil {
		schema = CompanySchema()
	}
	return &Gateway{driver: driver, dimension: dimension, schema: schema}
}

// Dimension reports the embedding dimension this gateway accepts.
func (g *Gateway) Dimension() int { return g.dimension }

func (g *Gateway) checkVector(vector []float64) error {
	if len(vector) != g.dimension {
		return core.Ef(core.KindVectorDimensionMismatch,
			"vector has %d dimensions, store requires %d", len(vector), g.dimension)
	}
	return nil
}

// Upsert writes a record, replacing any existing record with the same ID.
func (g *Gateway) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error {
	if id == "" {
		return errors.New("vectorstore: empty record ID")
	}
	if err := g.checkVector(vector); err != nil {
		return err
	}
	if err := g.schema.Validate(metadata); err != nil {
		return core.E(core.KindVectorStoreError, "metadata rejected", err)
	}
	if err := g.driver.Upsert(ctx, id, vector, metadata); err != nil {
		return core.E(core.KindVectorUpsertFailed, "upsert failed", err)
	}
	return nil
}

// Query returns the topK nearest records by cosine similarity, subject to the
// filter. Results are ordered by score descending with ID ascending as the
// tie break, so identical inputs always produce identical output order.
func (g *Gateway) Query(ctx context.Context, vector []float64, topK int, filter Filter) ([]Match, error) {
	if err := g.checkVector(vector); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}
	equality, membership := splitFilter(filter)

	// Membership conditions are applied here, so over-fetch from the driver
	// to keep topK results available after post-filtering.
	fetchK := topK
	if len(membership) > 0 {
		fetchK = topK * 4
	}
	matches, err := g.driver.Query(ctx, vector, fetchK, equality)
	if err != nil {
		return nil, core.E(core.KindVectorStoreError, "query failed", err)
	}
	if len(membership) > 0 {
		kept := matches[:0]
		for _, m := range matches {
			if matchesMembership(m.Metadata, membership) {
				kept = append(kept, m)
			}
		}
		matches = kept
	}
	sort.SliceStable(matches, func(i, j int) bool {
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

// Fetch returns a record by ID, or ErrNotFound.
func (g *Gateway) Fetch(ctx context.Context, id string) (*core.VectorRecord, error) {
	rec, err := g.driver.Fetch(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, core.E(core.KindVectorStoreError, "fetch failed", err)
	}
	return rec, nil
}

// Delete removes a record. Deleting a missing ID is not an error.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	if err := g.driver.Delete(ctx, id); err != nil {
		return core.E(core.KindVectorStoreError, "delete failed", err)
	}
	return nil
}

// UpdateMetadata merges patch into the record's existing metadata without
// touching its vector. Keys in patch replace existing keys.
func (g *Gateway) UpdateMetadata(ctx context.Context, id string, patch map[string]any) error {
	if err := g.schema.Validate(patch); err != nil {
		return core.E(core.KindVectorStoreError, "metadata rejected", err)
	}
	rec, err := g.Fetch(ctx, id)
	if err != nil {
		return err
	}
	merged := make(map[string]any, len(rec.Metadata)+len(patch))
	for k, v := range rec.Metadata {
		merged[k] = v
	}
	for k, v := range patch {
		merged[k] = v
	}
	if err := g.driver.Upsert(ctx, id, rec.Vector, merged); err != nil {
		return core.E(core.KindVectorUpsertFailed, "metadata update failed", err)
	}
	return nil
}

// SetEdges replaces the similarity edges stored on a record. Edges beyond
// MaxEdges are dropped, keeping the highest scored.
func (g *Gateway) SetEdges(ctx context.Context, id string, edges []core.SimilarityEdge) error {
	encoded, err := encodeEdges(edges)
	if err != nil {
		return core.E(core.KindVectorStoreError, "edge encoding failed", err)
	}
	return g.UpdateMetadata(ctx, id, map[string]any{EdgeField: encoded})
}

// Edges returns the similarity edges stored on a record, highest score first.
func (g *Gateway) Edges(ctx context.Context, id string) ([]core.SimilarityEdge, error) {
	rec, err := g.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	raw, ok := rec.Metadata[EdgeField]
	if !ok {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil, nil
	}
	edges, err := decodeEdges(s)
	if err != nil {
		return nil, err
	}
	for i := range edges {
		edges[i].SourceID = id
	}
	return edges, nil
}

// Close releases the underlying driver.
func (g *Gateway) Close() error { return g.driver.Close() }

func splitFilter(filter Filter) (equality map[string]any, membership map[string][]string) {
	if len(filter) == 0 {
		return nil, nil
	}
	equality = make(map[string]any)
	membership = make(map[string][]string)
	for k, v := range filter {
		switch vs := v.(type) {
		case []string:
			membership[k] = vs
		case []any:
			set := make([]string, 0, len(vs))
			for _, e := range vs {
				set = append(set, fmt.Sprint(e))
			}
			membership[k] = set
		default:
			equality[k] = v
		}
	}
	if len(equality) == 0 {
		equality = nil
	}
	if len(membership) == 0 {
		membership = nil
	}
	return equality, membership
}

func matchesMembership(metadata map[string]any, membership map[string][]string) bool {
	for field, allowed := range membership {
		v, ok := metadata[field]
		if !ok {
			return false
		}
		got := scalarString(v)
		found := false
		for _, a := range allowed {
			if got == a {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// scalarString renders a metadata scalar the same way regardless of backend,
// so equality comparisons behave identically across drivers.
func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

type edgeRecord struct {
	TargetID string  `json:"target_id"`
	Score    float64 `json:"score"`
}

func encodeEdges(edges []core.SimilarityEdge) (string, error) {
	sorted := make([]core.SimilarityEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].TargetID < sorted[j].TargetID
	})
	if len(sorted) > MaxEdges {
		sorted = sorted[:MaxEdges]
	}
	out := make([]edgeRecord, len(sorted))
	for i, e := range sorted {
		out[i] = edgeRecord{TargetID: e.TargetID, Score: e.Score}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeEdges(s string) ([]core.SimilarityEdge, error) {
	var recs []edgeRecord
	if err := json.Unmarshal([]byte(s), &recs); err != nil {
		return nil, fmt.Errorf("corrupt edge list: %w", err)
	}
	edges := make([]core.SimilarityEdge, len(recs))
	for i, r := range recs {
		edges[i] = core.SimilarityEdge{TargetID: r.TargetID, Score: r.Score}
	}
	return edges, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(f)
	}
	return out
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
