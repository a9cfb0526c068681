package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// manifestPointID is the fixed ID of the per-collection manifest point.
const manifestPointID = "00000000-0000-0000-0000-000000000001"

// vectorName is the named vector carrying chunk embeddings. Using a named
// vector lets the manifest point live in the same collection with no
// vector at all.
const vectorName = "content"

// upsertBatchSize bounds points per upsert request.
const upsertBatchSize = 100

// Qdrant implements Store on a Qdrant gRPC endpoint, one Qdrant
// collection per knowledge base index.
type Qdrant struct {
	client *qdrant.Client
	host   string
	port   int
}

// NewQdrant creates a Qdrant-backed store with health validation. It
// performs a health check with retry on startup and fails fast if Qdrant
// is unreachable.
func NewQdrant(host string, port int) (*Qdrant, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host: host,
		Port: port,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	store := &Qdrant{client: client, host: host, port: port}

	if err := store.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return store, nil
}

// healthCheckWithRetry performs a health check with exponential backoff.
// Initial interval 500ms, max interval 10s, max elapsed 30s.
func (s *Qdrant) healthCheckWithRetry(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		return s.Health(ctx)
	}, backoff.WithContext(b, ctx))
}

// Health performs a single health check against Qdrant.
func (s *Qdrant) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Exists reports whether the collection exists.
func (s *Qdrant) Exists(ctx context.Context, collection string) (bool, error) {
	collections, err := s.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list collections: %w", err)
	}
	for _, name := range collections {
		if name == collection {
			return true, nil
		}
	}
	return false, nil
}

// Manifest retrieves the collection's manifest point.
func (s *Qdrant) Manifest(ctx context.Context, collection string) (*Manifest, error) {
	exists, err := s.Exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrIndexMissing
	}

	result, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(manifestPointID)},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get manifest: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("%w: collection %s has no manifest", ErrIndexMissing, collection)
	}

	payload := result[0].Payload
	createdAt, err := time.Parse(time.RFC3339, payload["created_at"].GetStringValue())
	if err != nil {
		createdAt = time.Time{}
	}

	return &Manifest{
		EmbeddingModel: payload["embedding_model"].GetStringValue(),
		ChunkSize:      int(payload["chunk_size"].GetIntegerValue()),
		ChunkOverlap:   int(payload["chunk_overlap"].GetIntegerValue()),
		Dimension:      int(payload["dimension"].GetIntegerValue()),
		CreatedAt:      createdAt,
	}, nil
}

// Replace swaps the collection contents for the given points. The caller
// has already embedded everything, so the previous contents are only
// destroyed once the replacement data is in hand. A failure after the
// destroy is reported as ErrIndexDestroyed rather than silently leaving a
// torn index.
func (s *Qdrant) Replace(ctx context.Context, collection string, manifest Manifest, points []*Point) error {
	if err := validateDimensions(points, manifest.Dimension); err != nil {
		return err
	}

	exists, err := s.Exists(ctx, collection)
	if err != nil {
		return err
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, collection); err != nil {
			return fmt.Errorf("failed to delete collection: %w", err)
		}
	}

	if err := s.create(ctx, collection, manifest); err != nil {
		if exists {
			return fmt.Errorf("%w: %v", ErrIndexDestroyed, err)
		}
		return err
	}
	if err := s.upsertPoints(ctx, collection, points); err != nil {
		if exists {
			return fmt.Errorf("%w: %v", ErrIndexDestroyed, err)
		}
		return err
	}
	return nil
}

// Append adds points to the collection, creating it if missing. Appending
// against a manifest recorded with a different embedding model fails with
// ErrModelMismatch before anything is written.
func (s *Qdrant) Append(ctx context.Context, collection string, manifest Manifest, points []*Point) error {
	if err := validateDimensions(points, manifest.Dimension); err != nil {
		return err
	}

	exists, err := s.Exists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		if err := s.create(ctx, collection, manifest); err != nil {
			return err
		}
		return s.upsertPoints(ctx, collection, points)
	}

	recorded, err := s.Manifest(ctx, collection)
	if err != nil {
		return err
	}
	if recorded.EmbeddingModel != manifest.EmbeddingModel {
		return fmt.Errorf("%w: index built with %s, append uses %s",
			ErrModelMismatch, recorded.EmbeddingModel, manifest.EmbeddingModel)
	}
	if recorded.Dimension != manifest.Dimension {
		return fmt.Errorf("%w: index has %d dimensions, append has %d",
			ErrDimensionMismatch, recorded.Dimension, manifest.Dimension)
	}

	return s.upsertPoints(ctx, collection, points)
}

// create makes a fresh collection with a named cosine vector and writes
// the manifest point.
func (s *Qdrant) create(ctx context.Context, collection string, manifest Manifest) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(manifest.Dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// Payload index on type speeds up the chunk filter on every search.
	_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
		CollectionName: collection,
		FieldName:      "type",
		FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
	})
	if err != nil {
		return fmt.Errorf("failed to create payload index: %w", err)
	}

	// The manifest point carries no vector; it exists for the payload.
	manifestPoint := &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(manifestPointID),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":            "manifest",
			"embedding_model": manifest.EmbeddingModel,
			"chunk_size":      manifest.ChunkSize,
			"chunk_overlap":   manifest.ChunkOverlap,
			"dimension":       manifest.Dimension,
			"created_at":      manifest.CreatedAt.Format(time.RFC3339),
		}),
	}
	return s.upsertWithRetry(ctx, collection, []*qdrant.PointStruct{manifestPoint})
}

// upsertPoints stores chunk points in batches.
func (s *Qdrant) upsertPoints(ctx context.Context, collection string, points []*Point) error {
	for i := 0; i < len(points); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(points))
		batch := points[i:end]

		structs := make([]*qdrant.PointStruct, len(batch))
		for j, p := range batch {
			structs[j] = &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(p.ID),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					vectorName: qdrant.NewVector(p.Vector...),
				}),
				Payload: qdrant.NewValueMap(map[string]any{
					"type":   "chunk",
					"text":   p.Text,
					"source": p.Source,
					"page":   p.Page,
				}),
			}
		}

		if err := s.upsertWithRetry(ctx, collection, structs); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}
	return nil
}

// upsertWithRetry performs an upsert with exponential backoff retry.
func (s *Qdrant) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	}, backoff.WithContext(b, ctx))
}

// Search performs vector similarity search over chunk points. A missing
// collection yields an empty result so callers can fall back to the
// no-context answer.
func (s *Qdrant) Search(ctx context.Context, collection string, vector []float32, limit int) ([]*ScoredPoint, error) {
	exists, err := s.Exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}

	using := vectorName
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Using:          &using,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("type", "chunk"),
			},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	scored := make([]*ScoredPoint, 0, len(results))
	for _, result := range results {
		payload := result.Payload
		scored = append(scored, &ScoredPoint{
			Point: &Point{
				ID:     result.Id.GetUuid(),
				Text:   payload["text"].GetStringValue(),
				Source: payload["source"].GetStringValue(),
				Page:   int(payload["page"].GetIntegerValue()),
			},
			Score: result.Score,
		})
	}
	return scored, nil
}

// Count returns the number of chunk points in the collection.
func (s *Qdrant) Count(ctx context.Context, collection string) (uint64, error) {
	exists, err := s.Exists(ctx, collection)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return 0, fmt.Errorf("failed to get collection: %w", err)
	}

	total := info.GetPointsCount()
	if total == 0 {
		return 0, nil
	}
	// The manifest point is not a chunk.
	return total - 1, nil
}

// Destroy removes the collection and its contents.
func (s *Qdrant) Destroy(ctx context.Context, collection string) error {
	exists, err := s.Exists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return ErrIndexMissing
	}
	if err := s.client.DeleteCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *Qdrant) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func validateDimensions(points []*Point, dimension int) error {
	for i, p := range points {
		if len(p.Vector) != dimension {
			return fmt.Errorf("%w: point %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(p.Vector), dimension)
		}
	}
	return nil
}
