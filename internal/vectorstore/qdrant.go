package vectorstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"prospect/internal/core"
	"prospect/internal/logger"
)

// QdrantDriver stores vectors in a Qdrant server over gRPC.
type QdrantDriver struct {
	client     *qdrant.Client
	collection string
}

// QdrantOptions carries the connection settings for a Qdrant server.
type QdrantOptions struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// NewQdrantDriver connects to Qdrant and ensures the collection exists with
// the given dimension and cosine distance.
func NewQdrantDriver(ctx context.Context, opts QdrantOptions, collection string, dimension int) (*QdrantDriver, error) {
	if opts.Host == "" {
		opts.Host = "localhost"
	}
	if opts.Port == 0 {
		opts.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant at %s:%d: %w", opts.Host, opts.Port, err)
	}

	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !exists {
		err = client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && !strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("creating collection %s: %w", collection, err)
		}
	}

	logger.Debug("qdrant driver ready", "collection", collection, "host", opts.Host)
	return &QdrantDriver{client: client, collection: collection}, nil
}

func (d *QdrantDriver) Upsert(ctx context.Context, id string, vector []float64, metadata map[string]any) error {
	payload := make(map[string]*qdrant.Value, len(metadata))
	for key, value := range metadata {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return fmt.Errorf("converting metadata field %s: %w", key, err)
		}
		payload[key] = val
	}

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(id),
		Vectors: qdrant.NewVectors(toFloat32(vector)...),
		Payload: payload,
	}
	_, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return fmt.Errorf("upserting point %s: %w", id, err)
	}
	return nil
}

func (d *QdrantDriver) Query(ctx context.Context, vector []float64, topK int, equality map[string]any) ([]Match, error) {
	req := &qdrant.SearchPoints{
		CollectionName: d.collection,
		Vector:         toFloat32(vector),
		Limit:          uint64(topK),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(equality) > 0 {
		req.Filter = equalityFilter(equality)
	}

	res, err := d.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("searching points: %w", err)
	}

	matches := make([]Match, 0, len(res.Result))
	for _, point := range res.Result {
		matches = append(matches, Match{
			ID:       pointID(point.Id),
			Score:    float64(point.Score),
			Metadata: decodePayload(point.Payload),
		})
	}
	return matches, nil
}

func (d *QdrantDriver) Fetch(ctx context.Context, id string) (*core.VectorRecord, error) {
	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("fetching point %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, ErrNotFound
	}

	point := points[0]
	var vector []float64
	if point.Vectors != nil {
		if dense := point.Vectors.GetVector(); dense != nil {
			if v, ok := dense.Vector.(*qdrant.VectorOutput_Dense); ok && v.Dense != nil {
				vector = toFloat64(v.Dense.Data)
			}
		}
	}
	return &core.VectorRecord{
		ID:       pointID(point.Id),
		Vector:   vector,
		Metadata: decodePayload(point.Payload),
	}, nil
}

func (d *QdrantDriver) Delete(ctx context.Context, id string) error {
	_, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewID(id)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("deleting point %s: %w", id, err)
	}
	return nil
}

func (d *QdrantDriver) Close() error { return d.client.Close() }

func equalityFilter(equality map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(equality))
	for key, value := range equality {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: scalarString(value)},
					},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func pointID(id *qdrant.PointId) string {
	if id == nil || id.PointIdOptions == nil {
		return ""
	}
	switch t := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return t.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", t.Num)
	}
	return ""
}

func decodePayload(payload map[string]*qdrant.Value) map[string]any {
	metadata := make(map[string]any, len(payload))
	for key, value := range payload {
		switch v := value.Kind.(type) {
		case *qdrant.Value_StringValue:
			metadata[key] = v.StringValue
		case *qdrant.Value_IntegerValue:
			metadata[key] = v.IntegerValue
		case *qdrant.Value_DoubleValue:
			metadata[key] = v.DoubleValue
		case *qdrant.Value_BoolValue:
			metadata[key] = v.BoolValue
		}
	}
	return metadata
}
