package storage

import (
	"context"
	"time"
)

// Point is one stored chunk: its text, provenance, and embedding vector.
// Points are written once and never individually deleted; only a whole
// collection rebuild or destroy removes them.
type Point struct {
	ID     string // UUID
	Text   string
	Source string // originating document name
	Page   int    // 1-based page number within the source
	Vector []float32
}

// ScoredPoint is a retrieved point with its similarity score. Scores are
// cosine similarities; higher is more similar.
type ScoredPoint struct {
	Point *Point
	Score float32
}

// Manifest records the parameters an index was built with. It is written
// when a collection is created and consulted on append so that new chunks
// always share the vector space of the existing ones.
type Manifest struct {
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
	Dimension      int
	CreatedAt      time.Time
}

// Store is the vector index engine. One Store serves many collections;
// every operation names the collection it acts on.
//
// Replace expects fully embedded replacement data: implementations destroy
// the previous contents only once the new points are in hand, so a failure
// anywhere before the call leaves the old index intact.
type Store interface {
	// Exists reports whether the collection exists.
	Exists(ctx context.Context, collection string) (bool, error)
	// Manifest returns the recorded build parameters of the collection,
	// or ErrIndexMissing.
	Manifest(ctx context.Context, collection string) (*Manifest, error)
	// Replace atomically swaps the collection contents for the given
	// points, creating the collection if needed.
	Replace(ctx context.Context, collection string, manifest Manifest, points []*Point) error
	// Append adds points to the collection, creating it if missing. The
	// manifest must match the recorded one (ErrModelMismatch otherwise).
	Append(ctx context.Context, collection string, manifest Manifest, points []*Point) error
	// Search returns up to limit points ranked by similarity descending.
	// A missing or empty collection yields an empty result, not an error.
	Search(ctx context.Context, collection string, vector []float32, limit int) ([]*ScoredPoint, error)
	// Count returns the number of stored chunks.
	Count(ctx context.Context, collection string) (uint64, error)
	// Destroy removes the collection and all its contents.
	Destroy(ctx context.Context, collection string) error
	// Close releases the underlying client connection.
	Close() error
}
