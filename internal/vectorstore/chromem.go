package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/philippgille/chromem-go"

	"prospect/internal/core"
	"prospect/internal/logger"
)

// ChromemDriver stores vectors in an embedded chromem-go database, optionally
// persisted to disk. Chromem metadata is string-typed, so scalar values are
// rendered to strings on write.
type ChromemDriver struct {
	db         *chromem.DB
	collection *chromem.Collection
}

// NewChromemDriver opens (or creates) the named collection. An empty path
// selects an in-memory database.
func NewChromemDriver(path, collection string) (*ChromemDriver, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("opening chromem database at %s: %w", path, err)
		}
	}

	// Embeddings always arrive precomputed, so the collection's embedding
	// func must never run.
	col, err := db.GetOrCreateCollection(collection, nil, func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("collection accepts precomputed embeddings only")
	})
	if err != nil {
		return nil, fmt.Errorf("opening chromem collection %s: %w", collection, err)
	}

	logger.Debug("chromem driver ready", "collection", collection, "path", path)
	return &ChromemDriver{db: db, collection: col}, nil
}

func (d *ChromemDriver) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error {
	doc := chromem.Document{
		ID:        id,
		Embedding: toFloat32(vector),
		Metadata:  stringifyMetadata(metadata),
		Content:   " ",
	}
	return d.collection.AddDocument(ctx, doc)
}

func (d *ChromemDriver) Query(ctx context.Context, vector []float64, topK int, equality map[string]any) ([]Match, error) {
	count := d.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}
	results, err := d.collection.QueryEmbedding(ctx, toFloat32(vector), topK, stringifyMetadata(equality), nil)
	if err != nil {
		return nil, err
	}
	matches := make([]Match, 0, len(results))
	for _, r := range results {
		matches = append(matches, Match{
			ID:       r.ID,
			Score:    float64(r.Similarity),
			Metadata: anyMetadata(r.Metadata),
		})
	}
	return matches, nil
}

func (d *ChromemDriver) Fetch(ctx context.Context, id string) (*core.VectorRecord, error) {
	doc, err := d.collection.GetByID(ctx, id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &core.VectorRecord{
		ID:       doc.ID,
		Vector:   toFloat64(doc.Embedding),
		Metadata: anyMetadata(doc.Metadata),
	}, nil
}

func (d *ChromemDriver) Delete(ctx context.Context, id string) error {
	err := d.collection.Delete(ctx, nil, nil, id)
	if err != nil && strings.Contains(err.Error(), "not found") {
		return nil
	}
	return err
}

func (d *ChromemDriver) Close() error { return nil }

func stringifyMetadata(metadata map[string]any) map[string]string {
	if len(metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(metadata))
	for k, v := range metadata {
		out[k] = scalarString(v)
	}
	return out
}

func anyMetadata(metadata map[string]string) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	return out
}
